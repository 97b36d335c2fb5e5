package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/campus/rewards-engine/loyalty"
	"github.com/campus/rewards-engine/promotion"
)

// =============================================================================
// PURCHASE
// =============================================================================

type PurchaseRequest struct {
	Utorid       string
	Spent        decimal.Decimal
	PromotionIDs []int64
	Remark       string
}

// Receipt is the outcome of a purchase.
type Receipt struct {
	Transaction loyalty.Transaction
	Points      promotion.Result
	// Earned is what reached the customer's balance: zero when the
	// cashier is flagged suspicious.
	Earned int64
}

// Purchase credits a customer for spend at a cashier. A suspicious cashier's
// purchase is recorded in full and flagged, but the credit is withheld until
// a manager clears the flag.
func (e *Engine) Purchase(ctx context.Context, actor loyalty.Actor, req PurchaseRequest) (*Receipt, error) {
	if err := loyalty.Authorize(actor, loyalty.CapCreatePurchase, loyalty.Scope{}).Err(); err != nil {
		return nil, err
	}
	if !req.Spent.IsPositive() {
		return nil, loyalty.Invalid("spent", "must be greater than zero")
	}
	if !req.Spent.Equal(req.Spent.Round(2)) {
		return nil, loyalty.Invalid("spent", "must be in whole cents")
	}
	cents := req.Spent.Shift(2)
	if !cents.BigInt().IsInt64() {
		return nil, loyalty.Invalid("spent", "is too large")
	}

	var receipt *Receipt
	err := e.Store.WithTx(ctx, func(tx loyalty.Store) error {
		cashier, err := actorUser(ctx, tx, actor)
		if err != nil {
			return err
		}
		customer, err := userByUtorid(ctx, tx, req.Utorid)
		if errors.Is(err, loyalty.ErrUserNotFound) {
			return loyalty.Invalid("utorid", "no user %q", req.Utorid)
		}
		if err != nil {
			return err
		}

		now := e.Now()
		result, err := promotion.Resolve(ctx, tx, customer.ID, req.Spent, req.PromotionIDs, now)
		if err != nil {
			return err
		}

		t := &loyalty.Transaction{
			Type:        loyalty.TxPurchase,
			Amount:      result.Total(),
			UserID:      customer.ID,
			CreatedByID: cashier.ID,
			Remark:      req.Remark,
			Suspicious:  cashier.Suspicious,
			CreatedAt:   now,
			Purchase: &loyalty.PurchaseDetail{
				SpentCents:          cents.IntPart(),
				AppliedPromotionIDs: result.AppliedIDs(),
				Comment:             req.Remark,
			},
		}
		if err := record(ctx, tx, t); err != nil {
			return err
		}
		t.Utorid, t.CreatedByUtorid = customer.Utorid, cashier.Utorid
		receipt = &Receipt{Transaction: *t, Points: result, Earned: t.Applied()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}
