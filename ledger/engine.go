/*
engine.go - The points ledger

PURPOSE:
  The Engine is the only code that creates transactions or changes a
  user's point balance. Every operation runs inside exactly one
  Store.WithTx: the checks read through the transactional view and the
  writes commit together, or nothing is written.

CRITICAL INVARIANTS:
  1. BALANCE: User.Points == sum of Applied() over the user's transactions.
  2. APPEND-ONLY: transactions are never edited, except the suspicious and
     processed flags, and each flag change carries its balance delta in the
     same commit.
  3. ALL-OR-NOTHING: a failed check aborts the whole operation; a transfer
     never leaves a single-sided row behind.

APPLIED AMOUNT:
  A transaction counts towards the balance unless it is flagged suspicious
  or is a redemption that has not been processed yet. Flag changes apply

      delta = applied(after) - applied(before)

  so suppressing, restoring and processing all use the same arithmetic.

OPERATIONS:
  purchase.go    Purchase
  adjustment.go  Adjustment
  redemption.go  RequestRedemption, OpenRedemption, ProcessRedemption
  transfer.go    Transfer
  award.go       AwardEvent
  flags.go       SetSuspicious
  query.go       Get, List, History, Audit

SEE ALSO:
  - promotion/eligibility.go: purchase bonus points
  - event/rules.go:           award budget check
*/
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/campus/rewards-engine/loyalty"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store loyalty.TxStore
	Now   func() time.Time
}

func NewEngine(store loyalty.TxStore) *Engine {
	return &Engine{Store: store, Now: time.Now}
}

// record appends tx and applies its applied amount to the owner's balance.
func record(ctx context.Context, store loyalty.Store, tx *loyalty.Transaction) error {
	if err := store.AppendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("append %s transaction: %w", tx.Type, err)
	}
	if delta := tx.Applied(); delta != 0 {
		if err := store.AddPoints(ctx, tx.UserID, delta); err != nil {
			return fmt.Errorf("apply %s transaction %d: %w", tx.Type, tx.ID, err)
		}
	}
	return nil
}

// actorUser loads the acting user; a token for a deleted account is stale.
func actorUser(ctx context.Context, store loyalty.Store, actor loyalty.Actor) (*loyalty.User, error) {
	u, err := store.GetUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: unknown actor %d", loyalty.ErrUnauthorized, actor.UserID)
	}
	return u, nil
}

// userByUtorid resolves a utorid or email to a user.
func userByUtorid(ctx context.Context, store loyalty.Store, utorid string) (*loyalty.User, error) {
	utorid = strings.TrimSpace(utorid)
	if utorid == "" {
		return nil, loyalty.Invalid("utorid", "is required")
	}
	u, err := store.GetUserByUtorid(ctx, utorid)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, loyalty.ErrUserNotFound
	}
	return u, nil
}

func requirePositive(field string, n int64) error {
	if n <= 0 {
		return loyalty.Invalid(field, "must be a positive integer")
	}
	return nil
}
