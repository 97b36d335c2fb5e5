package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campus/rewards-engine/loyalty"
)

// =============================================================================
// USER STORE
// =============================================================================

const userColumns = `id, utorid, email, name, role, points, verified, suspicious,
	password_hash, last_login, created_at`

func (q *queries) CreateUser(ctx context.Context, u *loyalty.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO users (utorid, email, name, role, points, verified, suspicious,
		                   password_hash, last_login, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Utorid, u.Email, u.Name, int(u.Role), u.Points, u.Verified, u.Suspicious,
		u.PasswordHash, nullTime(u.LastLogin), formatTime(u.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return loyalty.ErrDuplicateUser
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	return err
}

func (q *queries) GetUser(ctx context.Context, id int64) (*loyalty.User, error) {
	row := q.q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUserRow(row)
}

func (q *queries) GetUserByUtorid(ctx context.Context, utorid string) (*loyalty.User, error) {
	row := q.q.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE utorid = ? COLLATE NOCASE OR email = ? COLLATE NOCASE LIMIT 1",
		utorid, utorid)
	return scanUserRow(row)
}

func (q *queries) ListUsers(ctx context.Context, f loyalty.UserFilter) ([]loyalty.User, int, error) {
	w := &where{}
	if f.Name != "" {
		w.add("(utorid LIKE ? OR name LIKE ?)", like(f.Name), like(f.Name))
	}
	if f.Role != nil {
		w.add("role = ?", int(*f.Role))
	}
	if f.Verified != nil {
		w.add("verified = ?", *f.Verified)
	}
	if f.Activated != nil {
		if *f.Activated {
			w.add("last_login IS NOT NULL")
		} else {
			w.add("last_login IS NULL")
		}
	}

	total, err := q.count(ctx, "users", w)
	if err != nil {
		return nil, 0, err
	}

	page := f.Page.Normalize()
	rows, err := q.q.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users"+w.String()+" ORDER BY id LIMIT ? OFFSET ?",
		append(w.args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []loyalty.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

func (q *queries) UpdateUser(ctx context.Context, id int64, p loyalty.UserPatch) error {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Email != nil {
		set("email", *p.Email)
	}
	if p.Name != nil {
		set("name", *p.Name)
	}
	if p.Role != nil {
		set("role", int(*p.Role))
	}
	if p.Verified != nil {
		set("verified", *p.Verified)
	}
	if p.Suspicious != nil {
		set("suspicious", *p.Suspicious)
	}
	if p.PasswordHash != nil {
		set("password_hash", *p.PasswordHash)
	}
	if p.LastLogin != nil {
		set("last_login", nullTime(p.LastLogin))
	}
	if len(sets) == 0 {
		return nil
	}

	res, err := q.q.ExecContext(ctx,
		"UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ?", append(args, id)...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return loyalty.ErrDuplicateUser
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return loyalty.ErrUserNotFound
	}
	return nil
}

// AddPoints checks the sum in Go: SQLite turns an overflowing integer
// addition into a REAL instead of failing.
func (q *queries) AddPoints(ctx context.Context, userID int64, delta int64) error {
	var points int64
	err := q.q.QueryRowContext(ctx, "SELECT points FROM users WHERE id = ?", userID).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) {
		return loyalty.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}
	points, err = loyalty.AddPoints(points, delta)
	if err != nil {
		return err
	}
	if _, err := q.q.ExecContext(ctx, "UPDATE users SET points = ? WHERE id = ?", points, userID); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*loyalty.User, error) {
	var (
		u         loyalty.User
		role      int
		lastLogin sql.NullString
		createdAt string
	)
	err := s.Scan(&u.ID, &u.Utorid, &u.Email, &u.Name, &role, &u.Points, &u.Verified,
		&u.Suspicious, &u.PasswordHash, &lastLogin, &createdAt)
	if err != nil {
		return nil, err
	}
	u.Role = loyalty.Role(role)
	u.LastLogin = timePtr(lastLogin)
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func scanUserRow(row *sql.Row) (*loyalty.User, error) {
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return u, nil
}
