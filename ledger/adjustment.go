package ledger

import (
	"context"

	"github.com/campus/rewards-engine/loyalty"
)

type AdjustmentRequest struct {
	Utorid    string
	Amount    int64
	RelatedID int64
	// PromotionIDs are checked to exist but never re-applied.
	PromotionIDs []int64
	Remark       string
}

// Adjustment corrects a user's balance by a signed amount, linked to the
// transaction it corrects. It is never suppressed.
func (e *Engine) Adjustment(ctx context.Context, actor loyalty.Actor, req AdjustmentRequest) (*loyalty.Transaction, error) {
	if err := loyalty.Authorize(actor, loyalty.CapCreateAdjustment, loyalty.Scope{}).Err(); err != nil {
		return nil, err
	}

	var out *loyalty.Transaction
	err := e.Store.WithTx(ctx, func(tx loyalty.Store) error {
		manager, err := actorUser(ctx, tx, actor)
		if err != nil {
			return err
		}
		user, err := userByUtorid(ctx, tx, req.Utorid)
		if err != nil {
			return err
		}
		related, err := tx.GetTransaction(ctx, req.RelatedID)
		if err != nil {
			return err
		}
		if related == nil {
			return loyalty.ErrTransactionNotFound
		}
		if related.UserID != user.ID {
			return loyalty.Invalid("relatedId", "transaction %d belongs to another user", related.ID)
		}
		for _, id := range req.PromotionIDs {
			p, err := tx.GetPromotion(ctx, id)
			if err != nil {
				return err
			}
			if p == nil {
				return loyalty.Invalid("promotionIds", "promotion %d does not exist", id)
			}
		}

		relatedID := related.ID
		t := &loyalty.Transaction{
			Type:                  loyalty.TxAdjustment,
			Amount:                req.Amount,
			UserID:                user.ID,
			CreatedByID:           manager.ID,
			Remark:                req.Remark,
			RelatedTransactionRef: &relatedID,
			CreatedAt:             e.Now(),
		}
		if err := record(ctx, tx, t); err != nil {
			return err
		}
		t.Utorid, t.CreatedByUtorid = user.Utorid, manager.Utorid
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
