package ledger

import (
	"context"

	"github.com/campus/rewards-engine/loyalty"
)

// =============================================================================
// READS
// =============================================================================

func (e *Engine) Get(ctx context.Context, actor loyalty.Actor, id int64) (*loyalty.Transaction, error) {
	if err := loyalty.Authorize(actor, loyalty.CapReadTransactions, loyalty.Scope{}).Err(); err != nil {
		return nil, err
	}
	t, err := e.Store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, loyalty.ErrTransactionNotFound
	}
	return t, nil
}

func (e *Engine) List(ctx context.Context, actor loyalty.Actor, f loyalty.TransactionFilter) ([]loyalty.Transaction, int, error) {
	if err := loyalty.Authorize(actor, loyalty.CapReadTransactions, loyalty.Scope{}).Err(); err != nil {
		return nil, 0, err
	}
	if err := checkFilter(f); err != nil {
		return nil, 0, err
	}
	return e.Store.ListTransactions(ctx, f)
}

// History lists the actor's own transactions.
func (e *Engine) History(ctx context.Context, actor loyalty.Actor, f loyalty.TransactionFilter) ([]loyalty.Transaction, int, error) {
	if err := loyalty.Authorize(actor, loyalty.CapReadOwnHistory, loyalty.Scope{Self: true}).Err(); err != nil {
		return nil, 0, err
	}
	if err := checkFilter(f); err != nil {
		return nil, 0, err
	}
	self := actor.UserID
	f.UserID = &self
	f.Name, f.CreatedBy, f.Suspicious = "", "", nil
	return e.Store.ListTransactions(ctx, f)
}

func checkFilter(f loyalty.TransactionFilter) error {
	if f.Operator != "" && f.Amount == nil {
		return loyalty.Invalid("operator", "requires amount")
	}
	if f.Amount != nil && f.Operator != loyalty.AmountGTE && f.Operator != loyalty.AmountLTE {
		return loyalty.Invalid("operator", "must be gte or lte")
	}
	if f.Type != nil && !f.Type.Valid() {
		return loyalty.Invalid("type", "unknown transaction type %q", *f.Type)
	}
	return nil
}

// =============================================================================
// AUDIT - Replay the ledger and compare with the stored balance
// =============================================================================

// Audit is the result of replaying one user's transactions.
type Audit struct {
	UserID       int64
	Stored       int64
	Replayed     int64
	Transactions int
	Withheld     int64 // amounts of suspicious transactions
	Pending      int64 // unprocessed redemptions
}

// Consistent reports whether the stored balance matches the replay.
func (a Audit) Consistent() bool { return a.Stored == a.Replayed }

// Audit recomputes a user's balance from the ledger.
func (e *Engine) Audit(ctx context.Context, actor loyalty.Actor, userID int64) (*Audit, error) {
	if err := loyalty.Authorize(actor, loyalty.CapAuditBalance, loyalty.Scope{}).Err(); err != nil {
		return nil, err
	}
	return Replay(ctx, e.Store, userID)
}

// Replay recomputes a user's balance from the ledger without any
// authorization check.
func Replay(ctx context.Context, store loyalty.Store, userID int64) (*Audit, error) {
	u, err := store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, loyalty.ErrUserNotFound
	}
	txs, err := store.UserTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}

	a := &Audit{UserID: userID, Stored: u.Points, Transactions: len(txs)}
	for _, t := range txs {
		a.Replayed += t.Applied()
		switch {
		case t.Suspicious:
			a.Withheld += t.Amount
		case t.Type == loyalty.TxRedemption && !t.Processed:
			a.Pending += t.Amount
		}
	}
	return a, nil
}
