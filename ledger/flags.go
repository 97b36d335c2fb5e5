package ledger

import (
	"context"

	"github.com/campus/rewards-engine/loyalty"
)

// SetSuspicious flags or clears a transaction. Flagging withdraws the
// transaction's applied amount from the owner; clearing grants it back.
// Setting the current value changes nothing.
func (e *Engine) SetSuspicious(ctx context.Context, actor loyalty.Actor, id int64, suspicious bool) (*loyalty.Transaction, error) {
	if err := loyalty.Authorize(actor, loyalty.CapFlagSuspicious, loyalty.Scope{}).Err(); err != nil {
		return nil, err
	}

	var out *loyalty.Transaction
	err := e.Store.WithTx(ctx, func(tx loyalty.Store) error {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return loyalty.ErrTransactionNotFound
		}
		out = t
		if t.Suspicious == suspicious {
			return nil
		}

		before := t.Applied()
		if err := tx.SetSuspicious(ctx, id, suspicious); err != nil {
			return err
		}
		t.Suspicious = suspicious
		if delta := t.Applied() - before; delta != 0 {
			return tx.AddPoints(ctx, t.UserID, delta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
