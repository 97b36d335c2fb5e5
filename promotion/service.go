package promotion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campus/rewards-engine/loyalty"
)

// =============================================================================
// SERVICE - Promotion lifecycle
// =============================================================================

// Service creates, reads, edits and deletes promotions. A promotion may be
// deleted only before it starts.
type Service struct {
	Store loyalty.TxStore
	Now   func() time.Time
}

func NewService(store loyalty.TxStore) *Service {
	return &Service{Store: store, Now: time.Now}
}

// Draft is a promotion to create.
type Draft struct {
	Name        string
	Description string
	Type        string
	StartTime   time.Time
	EndTime     time.Time
	MinSpending *decimal.Decimal
	Rate        *decimal.Decimal
	Points      *int64
}

func (s *Service) Create(ctx context.Context, actor loyalty.Actor, d Draft) (*loyalty.Promotion, error) {
	if err := loyalty.Authorize(actor, loyalty.CapManagePromotions, loyalty.Scope{}).Err(); err != nil {
		return nil, err
	}
	now := s.Now()

	name := strings.TrimSpace(d.Name)
	if name == "" {
		return nil, loyalty.Invalid("name", "is required")
	}
	description := strings.TrimSpace(d.Description)
	if description == "" {
		return nil, loyalty.Invalid("description", "is required")
	}
	typ, ok := loyalty.ParsePromotionType(strings.TrimSpace(d.Type))
	if !ok {
		return nil, loyalty.Invalid("type", "must be automatic or onetime")
	}
	if d.StartTime.Before(now) {
		return nil, loyalty.Invalid("startTime", "must not be in the past")
	}
	if !d.EndTime.After(d.StartTime) {
		return nil, loyalty.Invalid("endTime", "must be after startTime")
	}
	if d.MinSpending != nil && !d.MinSpending.IsPositive() {
		return nil, loyalty.Invalid("minSpending", "must be positive")
	}
	if d.Rate != nil && !d.Rate.IsPositive() {
		return nil, loyalty.Invalid("rate", "must be positive")
	}
	if d.Points != nil && *d.Points < 0 {
		return nil, loyalty.Invalid("points", "must not be negative")
	}

	p := &loyalty.Promotion{
		Name:        name,
		Description: description,
		Type:        typ,
		StartTime:   d.StartTime,
		EndTime:     d.EndTime,
		MinSpending: d.MinSpending,
		Rate:        d.Rate,
		Points:      d.Points,
		CreatedAt:   now,
	}
	if err := s.Store.CreatePromotion(ctx, p); err != nil {
		return nil, fmt.Errorf("create promotion: %w", err)
	}
	return p, nil
}

// Get hides promotions that are not active from non-managers.
func (s *Service) Get(ctx context.Context, actor loyalty.Actor, id int64) (*loyalty.Promotion, error) {
	p, err := s.Store.GetPromotion(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, loyalty.ErrPromotionNotFound
	}
	if !loyalty.Can(actor, loyalty.CapViewAllPromotions, loyalty.Scope{}) && !p.ActiveAt(s.Now()) {
		return nil, loyalty.ErrPromotionNotFound
	}
	return p, nil
}

// List shows non-managers the active promotions only, filtered by name.
func (s *Service) List(ctx context.Context, actor loyalty.Actor, f loyalty.PromotionFilter) ([]loyalty.Promotion, int, error) {
	f.Now = s.Now()
	if !loyalty.Can(actor, loyalty.CapViewAllPromotions, loyalty.Scope{}) {
		f = loyalty.PromotionFilter{Name: f.Name, Type: f.Type, ActiveOnly: true, Now: f.Now, Page: f.Page}
	} else if f.Started != nil && f.Ended != nil {
		return nil, 0, loyalty.Invalid("", "cannot filter on both started and ended")
	}
	return s.Store.ListPromotions(ctx, f)
}

// Update applies a patch. A new start must lie in the future and the end
// must stay after the effective start. Once started, only the end moves.
func (s *Service) Update(ctx context.Context, actor loyalty.Actor, id int64, patch loyalty.PromotionPatch) (*loyalty.Promotion, error) {
	if err := loyalty.Authorize(actor, loyalty.CapManagePromotions, loyalty.Scope{}).Err(); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, loyalty.Invalid("", "no fields to update")
	}

	var updated *loyalty.Promotion
	err := s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		p, err := tx.GetPromotion(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return loyalty.ErrPromotionNotFound
		}
		if err := validatePatch(*p, patch, s.Now()); err != nil {
			return err
		}
		if err := tx.UpdatePromotion(ctx, id, patch); err != nil {
			return err
		}
		updated, err = tx.GetPromotion(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func validatePatch(p loyalty.Promotion, patch loyalty.PromotionPatch, now time.Time) error {
	if !p.StartTime.After(now) {
		only := loyalty.PromotionPatch{EndTime: patch.EndTime}
		if only != patch {
			return loyalty.Invalid("", "only endTime may change after the promotion has started")
		}
		if !p.EndTime.After(now) {
			return loyalty.Invalid("endTime", "cannot change after the promotion has ended")
		}
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return loyalty.Invalid("name", "must not be empty")
	}
	if patch.Description != nil && strings.TrimSpace(*patch.Description) == "" {
		return loyalty.Invalid("description", "must not be empty")
	}
	start := p.StartTime
	if patch.StartTime != nil {
		if !patch.StartTime.After(now) {
			return loyalty.Invalid("startTime", "must be in the future")
		}
		start = *patch.StartTime
	}
	if patch.EndTime != nil && !patch.EndTime.After(start) {
		return loyalty.Invalid("endTime", "must be after startTime")
	}
	if patch.StartTime != nil && patch.EndTime == nil && !p.EndTime.After(start) {
		return loyalty.Invalid("startTime", "must be before endTime")
	}
	if patch.MinSpending != nil && patch.MinSpending.IsNegative() {
		return loyalty.Invalid("minSpending", "must not be negative")
	}
	if patch.Rate != nil && patch.Rate.IsNegative() {
		return loyalty.Invalid("rate", "must not be negative")
	}
	if patch.Points != nil && *patch.Points < 0 {
		return loyalty.Invalid("points", "must not be negative")
	}
	return nil
}

// Delete refuses once the promotion has started.
func (s *Service) Delete(ctx context.Context, actor loyalty.Actor, id int64) error {
	if err := loyalty.Authorize(actor, loyalty.CapManagePromotions, loyalty.Scope{}).Err(); err != nil {
		return err
	}
	return s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		p, err := tx.GetPromotion(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return loyalty.ErrPromotionNotFound
		}
		if !p.StartTime.After(s.Now()) {
			return fmt.Errorf("%w: promotion %d already started", loyalty.ErrForbidden, id)
		}
		return tx.DeletePromotion(ctx, id)
	})
}
