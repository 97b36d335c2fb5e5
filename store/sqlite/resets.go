package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/campus/rewards-engine/loyalty"
)

// =============================================================================
// RESET TOKEN STORE
// =============================================================================

func (q *queries) IssueResetToken(ctx context.Context, t *loyalty.ResetToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if _, err := q.q.ExecContext(ctx,
		"UPDATE reset_tokens SET consumed_at = ? WHERE user_id = ? AND consumed_at IS NULL",
		formatTime(t.CreatedAt), t.UserID,
	); err != nil {
		return fmt.Errorf("failed to retire reset tokens: %w", err)
	}
	if _, err := q.q.ExecContext(ctx, `
		INSERT INTO reset_tokens (token, kind, user_id, expires_at, consumed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.Token, string(t.Kind), t.UserID, formatTime(t.ExpiresAt), nullTime(t.ConsumedAt), formatTime(t.CreatedAt),
	); err != nil {
		return fmt.Errorf("failed to insert reset token: %w", err)
	}
	return nil
}

func (q *queries) GetResetToken(ctx context.Context, token string) (*loyalty.ResetToken, error) {
	var (
		t                  loyalty.ResetToken
		kind               string
		expires, createdAt string
		consumed           sql.NullString
	)
	err := q.q.QueryRowContext(ctx,
		"SELECT token, kind, user_id, expires_at, consumed_at, created_at FROM reset_tokens WHERE token = ?", token,
	).Scan(&t.Token, &kind, &t.UserID, &expires, &consumed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan reset token: %w", err)
	}
	t.Kind = loyalty.ResetKind(kind)
	t.ExpiresAt = parseTime(expires)
	t.ConsumedAt = timePtr(consumed)
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

// ConsumeResetToken flips consumed_at once; the guard makes a replay fail.
func (q *queries) ConsumeResetToken(ctx context.Context, token string, at time.Time) error {
	res, err := q.q.ExecContext(ctx,
		"UPDATE reset_tokens SET consumed_at = ? WHERE token = ? AND consumed_at IS NULL",
		formatTime(at), token)
	if err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	ok, err := affected(res)
	if err != nil || ok {
		return err
	}
	t, err := q.GetResetToken(ctx, token)
	if err != nil {
		return err
	}
	if t == nil {
		return loyalty.ErrResetTokenNotFound
	}
	return loyalty.ErrResetTokenExpired
}
