package promotion

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campus/rewards-engine/loyalty"
)

// Source is the part of the store the resolver reads. Pass the
// transactional view so the one-time check shares the purchase's commit.
type Source interface {
	GetPromotion(ctx context.Context, id int64) (*loyalty.Promotion, error)
	ActivePromotions(ctx context.Context, typ loyalty.PromotionType, now time.Time) ([]loyalty.Promotion, error)
	HasUsedPromotion(ctx context.Context, userID, promotionID int64) (bool, error)
}

// Resolve loads the candidate promotions for a purchase and evaluates them.
func Resolve(ctx context.Context, src Source, userID int64, spent decimal.Decimal, requested []int64, now time.Time) (Result, error) {
	req := Request{
		Spent:        spent,
		RequestedIDs: requested,
		Manual:       make(map[int64]loyalty.Promotion, len(requested)),
		Used:         make(map[int64]bool),
	}

	for _, id := range requested {
		if _, done := req.Manual[id]; done {
			continue
		}
		p, err := src.GetPromotion(ctx, id)
		if err != nil {
			return Result{}, err
		}
		if p == nil {
			continue
		}
		req.Manual[id] = *p
		if p.Type == loyalty.PromotionOneTime {
			used, err := src.HasUsedPromotion(ctx, userID, id)
			if err != nil {
				return Result{}, err
			}
			req.Used[id] = used
		}
	}

	automatic, err := src.ActivePromotions(ctx, loyalty.PromotionAutomatic, now)
	if err != nil {
		return Result{}, err
	}
	req.Automatic = automatic

	return Evaluate(req, now)
}
