package ledger

import (
	"context"
	"strings"

	"github.com/campus/rewards-engine/event"
	"github.com/campus/rewards-engine/loyalty"
)

type AwardRequest struct {
	// Utorid names one guest; empty awards every guest.
	Utorid string
	Amount int64
	Remark string
}

// AwardEvent pays amount points to one guest or to every guest out of the
// event's budget. The budget check, the per-guest rows and the budget
// decrement share one commit.
func (e *Engine) AwardEvent(ctx context.Context, actor loyalty.Actor, eventID int64, req AwardRequest) ([]loyalty.Transaction, error) {
	var out []loyalty.Transaction
	err := e.Store.WithTx(ctx, func(tx loyalty.Store) error {
		ev, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if ev == nil {
			return loyalty.ErrEventNotFound
		}
		scope := loyalty.Scope{Organizer: ev.IsOrganizer(actor.UserID)}
		if err := loyalty.Authorize(actor, loyalty.CapAwardEvent, scope).Err(); err != nil {
			return err
		}
		creator, err := actorUser(ctx, tx, actor)
		if err != nil {
			return err
		}
		if err := requirePositive("amount", req.Amount); err != nil {
			return err
		}

		var recipients []loyalty.Member
		if strings.TrimSpace(req.Utorid) == "" {
			for _, g := range ev.Guests {
				if g.Confirmed {
					recipients = append(recipients, g.Member)
				}
			}
		} else {
			u, err := userByUtorid(ctx, tx, req.Utorid)
			if err != nil {
				return err
			}
			if !ev.IsGuest(u.ID) {
				return loyalty.Invalid("utorid", "%s is not a guest of event %d", u.Utorid, ev.ID)
			}
			recipients = []loyalty.Member{{UserID: u.ID, Utorid: u.Utorid, Name: u.Name}}
		}

		if err := event.CheckAward(*ev, req.Amount, len(recipients)); err != nil {
			return err
		}
		if err := tx.SpendEventBudget(ctx, ev.ID, req.Amount*int64(len(recipients))); err != nil {
			return err
		}

		now := e.Now()
		for _, r := range recipients {
			eventRef := ev.ID
			t := &loyalty.Transaction{
				Type:        loyalty.TxEvent,
				Amount:      req.Amount,
				UserID:      r.UserID,
				CreatedByID: creator.ID,
				Remark:      req.Remark,
				EventRef:    &eventRef,
				CreatedAt:   now,
			}
			if err := record(ctx, tx, t); err != nil {
				return err
			}
			t.Utorid, t.CreatedByUtorid = r.Utorid, creator.Utorid
			out = append(out, *t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
