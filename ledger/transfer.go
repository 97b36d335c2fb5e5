package ledger

import (
	"context"

	"github.com/campus/rewards-engine/loyalty"
)

type TransferRequest struct {
	Amount int64
	Remark string
}

// TransferResult holds both sides of a transfer.
type TransferResult struct {
	Sent     loyalty.Transaction
	Received loyalty.Transaction
}

// Transfer moves points from the actor to recipientID. Both rows and both
// balance changes commit together.
func (e *Engine) Transfer(ctx context.Context, actor loyalty.Actor, recipientID int64, req TransferRequest) (*TransferResult, error) {
	if err := loyalty.Authorize(actor, loyalty.CapTransfer, loyalty.Scope{Self: true}).Err(); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", req.Amount); err != nil {
		return nil, err
	}

	var out *TransferResult
	err := e.Store.WithTx(ctx, func(tx loyalty.Store) error {
		sender, err := actorUser(ctx, tx, actor)
		if err != nil {
			return err
		}
		if !sender.Verified {
			return loyalty.ErrUnverified
		}
		recipient, err := tx.GetUser(ctx, recipientID)
		if err != nil {
			return err
		}
		if recipient == nil {
			return loyalty.ErrUserNotFound
		}
		if recipient.ID == sender.ID {
			return loyalty.Invalid("userId", "cannot transfer points to yourself")
		}
		if sender.Points < req.Amount {
			return &loyalty.InsufficientPointsError{UserID: sender.ID, Available: sender.Points, Requested: req.Amount}
		}

		now := e.Now()
		sent := &loyalty.Transaction{
			Type:        loyalty.TxTransfer,
			Amount:      -req.Amount,
			UserID:      sender.ID,
			CreatedByID: sender.ID,
			Remark:      req.Remark,
			CreatedAt:   now,
		}
		received := &loyalty.Transaction{
			Type:        loyalty.TxTransfer,
			Amount:      req.Amount,
			UserID:      recipient.ID,
			CreatedByID: sender.ID,
			Remark:      req.Remark,
			CreatedAt:   now,
		}
		for _, t := range []*loyalty.Transaction{sent, received} {
			if err := record(ctx, tx, t); err != nil {
				return err
			}
			t.CreatedByUtorid = sender.Utorid
		}
		sent.Utorid, received.Utorid = sender.Utorid, recipient.Utorid
		out = &TransferResult{Sent: *sent, Received: *received}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
