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
// EVENT STORE
// =============================================================================

const eventColumns = `e.id, e.name, e.description, e.location, e.start_time, e.end_time,
	e.capacity, e.points_remain, e.points_awarded, e.published, e.created_at`

const confirmedCount = `(SELECT COUNT(*) FROM event_guests g WHERE g.event_id = e.id AND g.confirmed = 1)`

func (q *queries) CreateEvent(ctx context.Context, e *loyalty.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	var capacity sql.NullInt64
	if e.Capacity != nil {
		capacity = sql.NullInt64{Int64: int64(*e.Capacity), Valid: true}
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO events (name, description, location, start_time, end_time, capacity,
		                    points_remain, points_awarded, published, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Name, e.Description, e.Location, formatTime(e.StartTime), formatTime(e.EndTime),
		capacity, e.PointsRemain, e.PointsAwarded, e.Published, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (q *queries) GetEvent(ctx context.Context, id int64) (*loyalty.Event, error) {
	events, err := q.queryEvents(ctx, "SELECT "+eventColumns+" FROM events e WHERE e.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func (q *queries) ListEvents(ctx context.Context, f loyalty.EventFilter) ([]loyalty.Event, int, error) {
	w := &where{}
	now := formatTime(f.Now)
	if f.Name != "" {
		w.add("e.name LIKE ?", like(f.Name))
	}
	if f.Location != "" {
		w.add("e.location LIKE ?", like(f.Location))
	}
	if f.Started != nil {
		if *f.Started {
			w.add("e.start_time <= ?", now)
		} else {
			w.add("e.start_time > ?", now)
		}
	}
	if f.Ended != nil {
		if *f.Ended {
			w.add("e.end_time <= ?", now)
		} else {
			w.add("e.end_time > ?", now)
		}
	}
	if f.Published != nil {
		w.add("e.published = ?", *f.Published)
	}
	if !f.ShowFull {
		w.add("(e.capacity IS NULL OR " + confirmedCount + " < e.capacity)")
	}

	total, err := q.count(ctx, "events e", w)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	page := f.Page.Normalize()
	events, err := q.queryEvents(ctx,
		"SELECT "+eventColumns+" FROM events e"+w.String()+" ORDER BY e.start_time, e.id LIMIT ? OFFSET ?",
		append(w.args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (q *queries) UpdateEvent(ctx context.Context, id int64, p loyalty.EventPatch) error {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Name != nil {
		set("name", *p.Name)
	}
	if p.Description != nil {
		set("description", *p.Description)
	}
	if p.Location != nil {
		set("location", *p.Location)
	}
	if p.StartTime != nil {
		set("start_time", formatTime(*p.StartTime))
	}
	if p.EndTime != nil {
		set("end_time", formatTime(*p.EndTime))
	}
	if p.Capacity != nil {
		set("capacity", *p.Capacity)
	}
	if p.PointsRemain != nil {
		set("points_remain", *p.PointsRemain)
	}
	if p.Published != nil {
		set("published", *p.Published)
	}
	if len(sets) == 0 {
		return nil
	}

	res, err := q.q.ExecContext(ctx,
		"UPDATE events SET "+strings.Join(sets, ", ")+" WHERE id = ?", append(args, id)...)
	if err != nil {
		if isCheckConstraintError(err) {
			return loyalty.Invalid("points", "remaining budget cannot be negative")
		}
		return fmt.Errorf("failed to update event: %w", err)
	}
	return q.requireEvent(res)
}

func (q *queries) DeleteEvent(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return q.requireEvent(res)
}

func (q *queries) AddGuest(ctx context.Context, eventID, userID int64, confirmedAt time.Time) error {
	if err := q.eventExists(ctx, eventID); err != nil {
		return err
	}
	_, err := q.q.ExecContext(ctx,
		"INSERT INTO event_guests (event_id, user_id, confirmed, confirmed_at) VALUES (?, ?, 1, ?)",
		eventID, userID, formatTime(confirmedAt))
	if isUniqueConstraintError(err) {
		return loyalty.ErrAlreadyGuest
	}
	if err != nil {
		return fmt.Errorf("failed to add guest: %w", err)
	}
	return nil
}

func (q *queries) RemoveGuest(ctx context.Context, eventID, userID int64) error {
	if err := q.eventExists(ctx, eventID); err != nil {
		return err
	}
	res, err := q.q.ExecContext(ctx, "DELETE FROM event_guests WHERE event_id = ? AND user_id = ?", eventID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove guest: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return loyalty.ErrNotAGuest
	}
	return nil
}

// AddOrganizer is idempotent.
func (q *queries) AddOrganizer(ctx context.Context, eventID, userID int64) error {
	if err := q.eventExists(ctx, eventID); err != nil {
		return err
	}
	if _, err := q.q.ExecContext(ctx,
		"INSERT OR IGNORE INTO event_organizers (event_id, user_id) VALUES (?, ?)", eventID, userID,
	); err != nil {
		return fmt.Errorf("failed to add organizer: %w", err)
	}
	return nil
}

func (q *queries) RemoveOrganizer(ctx context.Context, eventID, userID int64) error {
	if err := q.eventExists(ctx, eventID); err != nil {
		return err
	}
	res, err := q.q.ExecContext(ctx, "DELETE FROM event_organizers WHERE event_id = ? AND user_id = ?", eventID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove organizer: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return loyalty.ErrNotAnOrganizer
	}
	return nil
}

// SpendEventBudget is a guarded decrement: the WHERE clause refuses to take
// points_remain below zero.
func (q *queries) SpendEventBudget(ctx context.Context, eventID int64, amount int64) error {
	if amount <= 0 {
		return loyalty.Invalid("amount", "must be a positive integer")
	}
	res, err := q.q.ExecContext(ctx, `
		UPDATE events
		SET points_remain = points_remain - ?, points_awarded = points_awarded + ?
		WHERE id = ? AND points_remain >= ?`,
		amount, amount, eventID, amount)
	if err != nil {
		return fmt.Errorf("failed to spend event budget: %w", err)
	}
	ok, err := affected(res)
	if err != nil || ok {
		return err
	}

	var remain int64
	err = q.q.QueryRowContext(ctx, "SELECT points_remain FROM events WHERE id = ?", eventID).Scan(&remain)
	if errors.Is(err, sql.ErrNoRows) {
		return loyalty.ErrEventNotFound
	}
	if err != nil {
		return err
	}
	return &loyalty.InsufficientBudgetError{EventID: eventID, Remaining: remain, Requested: amount}
}

func (q *queries) eventExists(ctx context.Context, id int64) error {
	var n int
	if err := q.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE id = ?", id).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return loyalty.ErrEventNotFound
	}
	return nil
}

func (q *queries) requireEvent(res sql.Result) error {
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return loyalty.ErrEventNotFound
	}
	return nil
}

// queryEvents scans the events, then loads organizers and guests for each.
func (q *queries) queryEvents(ctx context.Context, query string, args ...any) ([]loyalty.Event, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	var events []loyalty.Event
	for rows.Next() {
		var (
			e                  loyalty.Event
			start, end, create string
			capacity           sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.Location, &start, &end,
			&capacity, &e.PointsRemain, &e.PointsAwarded, &e.Published, &create); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.StartTime, e.EndTime, e.CreatedAt = parseTime(start), parseTime(end), parseTime(create)
		if capacity.Valid {
			c := int(capacity.Int64)
			e.Capacity = &c
		}
		events = append(events, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range events {
		if err := q.loadMembers(ctx, &events[i]); err != nil {
			return nil, err
		}
	}
	return events, nil
}

func (q *queries) loadMembers(ctx context.Context, e *loyalty.Event) error {
	rows, err := q.q.QueryContext(ctx, `
		SELECT u.id, u.utorid, u.name
		FROM event_organizers o JOIN users u ON u.id = o.user_id
		WHERE o.event_id = ? ORDER BY u.id`, e.ID)
	if err != nil {
		return fmt.Errorf("failed to query organizers: %w", err)
	}
	for rows.Next() {
		var m loyalty.Member
		if err := rows.Scan(&m.UserID, &m.Utorid, &m.Name); err != nil {
			rows.Close()
			return err
		}
		e.Organizers = append(e.Organizers, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = q.q.QueryContext(ctx, `
		SELECT u.id, u.utorid, u.name, g.confirmed, g.confirmed_at
		FROM event_guests g JOIN users u ON u.id = g.user_id
		WHERE g.event_id = ? ORDER BY g.rowid`, e.ID)
	if err != nil {
		return fmt.Errorf("failed to query guests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			g  loyalty.Guest
			at sql.NullString
		)
		if err := rows.Scan(&g.UserID, &g.Utorid, &g.Name, &g.Confirmed, &at); err != nil {
			return err
		}
		g.ConfirmedAt = timePtr(at)
		e.Guests = append(e.Guests, g)
	}
	return rows.Err()
}
