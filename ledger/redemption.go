package ledger

import (
	"context"

	"github.com/campus/rewards-engine/loyalty"
)

// =============================================================================
// REDEMPTION - Two phases: request (no balance change), then process
// =============================================================================

type RedemptionRequest struct {
	Amount int64
	Remark string
}

// RequestRedemption records the actor's intent to spend points. The balance
// is only checked here; it changes when a cashier processes the redemption.
func (e *Engine) RequestRedemption(ctx context.Context, actor loyalty.Actor, req RedemptionRequest) (*loyalty.Transaction, error) {
	if err := loyalty.Authorize(actor, loyalty.CapRequestRedemption, loyalty.Scope{Self: true}).Err(); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", req.Amount); err != nil {
		return nil, err
	}

	var out *loyalty.Transaction
	err := e.Store.WithTx(ctx, func(tx loyalty.Store) error {
		user, err := actorUser(ctx, tx, actor)
		if err != nil {
			return err
		}
		if !user.Verified {
			return loyalty.ErrUnverified
		}
		out, err = e.openRedemption(ctx, tx, user, user, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OpenRedemption is RequestRedemption started by a cashier at the counter,
// for the user identified by utorid or email.
func (e *Engine) OpenRedemption(ctx context.Context, actor loyalty.Actor, utorid string, req RedemptionRequest) (*loyalty.Transaction, error) {
	if err := loyalty.Authorize(actor, loyalty.CapOpenRedemption, loyalty.Scope{}).Err(); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", req.Amount); err != nil {
		return nil, err
	}

	var out *loyalty.Transaction
	err := e.Store.WithTx(ctx, func(tx loyalty.Store) error {
		cashier, err := actorUser(ctx, tx, actor)
		if err != nil {
			return err
		}
		user, err := userByUtorid(ctx, tx, utorid)
		if err != nil {
			return err
		}
		out, err = e.openRedemption(ctx, tx, user, cashier, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) openRedemption(ctx context.Context, tx loyalty.Store, user, creator *loyalty.User, req RedemptionRequest) (*loyalty.Transaction, error) {
	if user.Points < req.Amount {
		return nil, &loyalty.InsufficientPointsError{UserID: user.ID, Available: user.Points, Requested: req.Amount}
	}
	t := &loyalty.Transaction{
		Type:        loyalty.TxRedemption,
		Amount:      -req.Amount,
		UserID:      user.ID,
		CreatedByID: creator.ID,
		Remark:      req.Remark,
		CreatedAt:   e.Now(),
	}
	if err := record(ctx, tx, t); err != nil {
		return nil, err
	}
	t.Utorid, t.CreatedByUtorid = user.Utorid, creator.Utorid
	return t, nil
}

// ProcessRedemption completes a redemption exactly once and only then
// deducts the points. The balance is not re-checked at this point.
func (e *Engine) ProcessRedemption(ctx context.Context, actor loyalty.Actor, id int64) (*loyalty.Transaction, error) {
	if err := loyalty.Authorize(actor, loyalty.CapProcessRedemption, loyalty.Scope{}).Err(); err != nil {
		return nil, err
	}

	var out *loyalty.Transaction
	err := e.Store.WithTx(ctx, func(tx loyalty.Store) error {
		if _, err := actorUser(ctx, tx, actor); err != nil {
			return err
		}
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return loyalty.ErrTransactionNotFound
		}
		if t.Type != loyalty.TxRedemption {
			return loyalty.ErrWrongType
		}
		if t.Processed {
			return loyalty.ErrAlreadyProcessed
		}

		before := t.Applied()
		if err := tx.MarkProcessed(ctx, id, actor.UserID); err != nil {
			return err
		}
		processedBy := actor.UserID
		t.Processed, t.ProcessedByID = true, &processedBy
		if delta := t.Applied() - before; delta != 0 {
			if err := tx.AddPoints(ctx, t.UserID, delta); err != nil {
				return err
			}
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
