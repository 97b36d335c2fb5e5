package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campus/rewards-engine/loyalty"
)

// =============================================================================
// PROMOTION STORE
// =============================================================================

const promotionColumns = `id, name, description, type, start_time, end_time,
	min_spending, rate, points, created_at`

func (q *queries) CreatePromotion(ctx context.Context, p *loyalty.Promotion) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO promotions (name, description, type, start_time, end_time,
		                        min_spending, rate, points, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, string(p.Type), formatTime(p.StartTime), formatTime(p.EndTime),
		nullDecimal(p.MinSpending), nullDecimal(p.Rate), nullInt(p.Points), formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert promotion: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (q *queries) GetPromotion(ctx context.Context, id int64) (*loyalty.Promotion, error) {
	promos, err := q.queryPromotions(ctx, "SELECT "+promotionColumns+" FROM promotions WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(promos) == 0 {
		return nil, nil
	}
	return &promos[0], nil
}

func (q *queries) ListPromotions(ctx context.Context, f loyalty.PromotionFilter) ([]loyalty.Promotion, int, error) {
	w := &where{}
	now := formatTime(f.Now)
	if f.ActiveOnly {
		w.add("start_time <= ? AND end_time >= ?", now, now)
	}
	if f.Name != "" {
		w.add("name LIKE ?", like(f.Name))
	}
	if f.Type != nil {
		w.add("type = ?", string(*f.Type))
	}
	if f.Started != nil {
		if *f.Started {
			w.add("start_time <= ?", now)
		} else {
			w.add("start_time > ?", now)
		}
	}
	if f.Ended != nil {
		if *f.Ended {
			w.add("end_time <= ?", now)
		} else {
			w.add("end_time > ?", now)
		}
	}

	total, err := q.count(ctx, "promotions", w)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count promotions: %w", err)
	}

	page := f.Page.Normalize()
	promos, err := q.queryPromotions(ctx,
		"SELECT "+promotionColumns+" FROM promotions"+w.String()+" ORDER BY id LIMIT ? OFFSET ?",
		append(w.args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	return promos, total, nil
}

func (q *queries) ActivePromotions(ctx context.Context, typ loyalty.PromotionType, now time.Time) ([]loyalty.Promotion, error) {
	at := formatTime(now)
	return q.queryPromotions(ctx,
		"SELECT "+promotionColumns+" FROM promotions WHERE type = ? AND start_time <= ? AND end_time >= ? ORDER BY id",
		string(typ), at, at)
}

func (q *queries) UpdatePromotion(ctx context.Context, id int64, p loyalty.PromotionPatch) error {
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
	if p.Type != nil {
		set("type", string(*p.Type))
	}
	if p.StartTime != nil {
		set("start_time", formatTime(*p.StartTime))
	}
	if p.EndTime != nil {
		set("end_time", formatTime(*p.EndTime))
	}
	if p.MinSpending != nil {
		set("min_spending", nullDecimal(p.MinSpending))
	}
	if p.Rate != nil {
		set("rate", nullDecimal(p.Rate))
	}
	if p.Points != nil {
		set("points", *p.Points)
	}
	if len(sets) == 0 {
		return nil
	}

	res, err := q.q.ExecContext(ctx,
		"UPDATE promotions SET "+strings.Join(sets, ", ")+" WHERE id = ?", append(args, id)...)
	if err != nil {
		return fmt.Errorf("failed to update promotion: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return loyalty.ErrPromotionNotFound
	}
	return nil
}

func (q *queries) DeletePromotion(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, "DELETE FROM promotions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete promotion: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return loyalty.ErrPromotionNotFound
	}
	return nil
}

func (q *queries) queryPromotions(ctx context.Context, query string, args ...any) ([]loyalty.Promotion, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query promotions: %w", err)
	}
	defer rows.Close()

	var promos []loyalty.Promotion
	for rows.Next() {
		var (
			p                  loyalty.Promotion
			typ                string
			start, end, create string
			minSpending, rate  decimal.NullDecimal
			points             sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &typ, &start, &end,
			&minSpending, &rate, &points, &create); err != nil {
			return nil, fmt.Errorf("failed to scan promotion: %w", err)
		}
		p.Type = loyalty.PromotionType(typ)
		p.StartTime, p.EndTime, p.CreatedAt = parseTime(start), parseTime(end), parseTime(create)
		if minSpending.Valid {
			p.MinSpending = &minSpending.Decimal
		}
		if rate.Valid {
			p.Rate = &rate.Decimal
		}
		p.Points = intPtr(points)
		promos = append(promos, p)
	}
	return promos, rows.Err()
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
