/*
Package loyalty holds the shared model of the rewards engine.

PURPOSE:
  Every other package (ledger, promotion, event, store, api) speaks in the
  types defined here. Keeping them in one leaf package lets the engines and
  the storage layer depend on a common vocabulary without depending on
  each other.

KEY CONCEPTS IN THIS FILE (types.go):
  - User:         an account with a point balance and a role
  - Transaction:  an immutable ledger entry; the only way points move
  - PurchaseDetail / PromotionUsage: structured side records of a purchase
  - Event:        an event with a guest capacity and a points budget
  - Promotion:    a bonus rule applied at purchase time

BALANCE INVARIANT:
  User.Points always equals the sum of Applied() amounts over the user's
  transactions. A transaction is applied when it is not flagged suspicious
  and, for redemptions, once it has been processed.

SEE ALSO:
  - access.go: role hierarchy and capability checks
  - errors.go: error taxonomy
  - store.go:  persistence interfaces
*/
package loyalty

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// USERS
// =============================================================================

type User struct {
	ID           int64
	Utorid       string
	Email        string
	Name         string
	Role         Role
	Points       int64
	Verified     bool
	Suspicious   bool
	PasswordHash string
	LastLogin    *time.Time
	CreatedAt    time.Time
}

// AddPoints returns balance + delta, or an InvalidInput error when the sum
// does not fit in an int64.
func AddPoints(balance, delta int64) (int64, error) {
	sum := balance + delta
	if (delta > 0 && sum < balance) || (delta < 0 && sum > balance) {
		return balance, Invalid("amount", "%d points would overflow a balance of %d", delta, balance)
	}
	return sum, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type TransactionType string

const (
	TxPurchase   TransactionType = "purchase"
	TxAdjustment TransactionType = "adjustment"
	TxRedemption TransactionType = "redemption"
	TxTransfer   TransactionType = "transfer"
	TxEvent      TransactionType = "event"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TxPurchase, TxAdjustment, TxRedemption, TxTransfer, TxEvent:
		return true
	}
	return false
}

// Transaction is an append-only ledger row. Amount, Type and UserID never
// change after creation; Suspicious and Processed are the only mutable flags.
type Transaction struct {
	ID          int64
	Type        TransactionType
	Amount      int64
	UserID      int64
	CreatedByID int64
	Remark      string

	// EventRef links an event award to its event.
	EventRef *int64
	// RelatedTransactionRef links an adjustment to the transaction it corrects.
	RelatedTransactionRef *int64

	Suspicious    bool
	Processed     bool
	ProcessedByID *int64
	CreatedAt     time.Time

	// Purchase is set for purchases only.
	Purchase *PurchaseDetail

	// Denormalised for reads; filled by stores on Get/List.
	Utorid          string
	CreatedByUtorid string
}

// Applied returns the amount this transaction currently contributes to the
// owner's balance.
func (t Transaction) Applied() int64 {
	return AppliedAmount(t.Type, t.Amount, t.Suspicious, t.Processed)
}

// AppliedAmount is Applied for a hypothetical flag combination. The ledger
// uses it to compute the compensating delta of a toggle.
func AppliedAmount(typ TransactionType, amount int64, suspicious, processed bool) int64 {
	if suspicious {
		return 0
	}
	if typ == TxRedemption && !processed {
		return 0
	}
	return amount
}

// RelatedID is the single "related id" exposed over the API: the event for
// awards, the corrected transaction for adjustments.
func (t Transaction) RelatedID() *int64 {
	if t.EventRef != nil {
		return t.EventRef
	}
	return t.RelatedTransactionRef
}

// PromotionIDs returns the promotions applied to a purchase.
func (t Transaction) PromotionIDs() []int64 {
	if t.Purchase == nil {
		return []int64{}
	}
	return t.Purchase.AppliedPromotionIDs
}

// PurchaseDetail is owned one-to-one by a purchase transaction.
type PurchaseDetail struct {
	TransactionID       int64
	SpentCents          int64
	AppliedPromotionIDs []int64
	Comment             string
}

// Spent returns the purchase amount in dollars.
func (p PurchaseDetail) Spent() decimal.Decimal {
	return decimal.New(p.SpentCents, -2)
}

// PromotionUsage records that a user's purchase consumed a promotion.
type PromotionUsage struct {
	UserID        int64
	PromotionID   int64
	TransactionID int64
}

// =============================================================================
// EVENTS
// =============================================================================

type Event struct {
	ID            int64
	Name          string
	Description   string
	Location      string
	StartTime     time.Time
	EndTime       time.Time
	Capacity      *int
	PointsRemain  int64
	PointsAwarded int64
	Published     bool
	CreatedAt     time.Time

	Organizers []Member
	Guests     []Guest
}

// Member is a user attached to an event, as shown in listings.
type Member struct {
	UserID int64
	Utorid string
	Name   string
}

type Guest struct {
	Member
	Confirmed   bool
	ConfirmedAt *time.Time
}

// TotalBudget is the event's points budget, spent and unspent.
func (e Event) TotalBudget() int64 { return e.PointsRemain + e.PointsAwarded }

// ConfirmedGuests counts guests holding a confirmed seat.
func (e Event) ConfirmedGuests() int {
	n := 0
	for _, g := range e.Guests {
		if g.Confirmed {
			n++
		}
	}
	return n
}

func (e Event) IsOrganizer(userID int64) bool {
	for _, o := range e.Organizers {
		if o.UserID == userID {
			return true
		}
	}
	return false
}

func (e Event) IsGuest(userID int64) bool {
	for _, g := range e.Guests {
		if g.UserID == userID {
			return true
		}
	}
	return false
}

// IsFull reports whether no confirmed seat is left. Nil capacity is unlimited.
func (e Event) IsFull() bool {
	return e.Capacity != nil && e.ConfirmedGuests() >= *e.Capacity
}

func (e Event) HasStarted(now time.Time) bool { return !e.StartTime.After(now) }
func (e Event) HasEnded(now time.Time) bool   { return !e.EndTime.After(now) }

// =============================================================================
// PROMOTIONS
// =============================================================================

type PromotionType string

const (
	PromotionAutomatic PromotionType = "automatic"
	PromotionOneTime   PromotionType = "onetime"
)

// ParsePromotionType accepts the API spellings, including "one-time".
func ParsePromotionType(s string) (PromotionType, bool) {
	switch s {
	case "automatic":
		return PromotionAutomatic, true
	case "onetime", "one-time":
		return PromotionOneTime, true
	}
	return "", false
}

type Promotion struct {
	ID          int64
	Name        string
	Description string
	Type        PromotionType
	StartTime   time.Time
	EndTime     time.Time
	MinSpending *decimal.Decimal
	Rate        *decimal.Decimal
	Points      *int64
	CreatedAt   time.Time
}

// ActiveAt reports whether at lies inside [StartTime, EndTime].
func (p Promotion) ActiveAt(at time.Time) bool {
	return !p.StartTime.After(at) && !p.EndTime.Before(at)
}

// MeetsMinimum reports whether spent reaches the promotion's threshold.
func (p Promotion) MeetsMinimum(spent decimal.Decimal) bool {
	return p.MinSpending == nil || spent.GreaterThanOrEqual(*p.MinSpending)
}

// =============================================================================
// RESET TOKENS
// =============================================================================

type ResetKind string

const (
	// ResetActivation is issued at registration; the user sets a first password.
	ResetActivation ResetKind = "activation"
	ResetPassword   ResetKind = "password"
)

// ResetToken is a single-use credential for setting a password. Issuing a
// new token for a user consumes every older unconsumed one.
type ResetToken struct {
	Token      string
	Kind       ResetKind
	UserID     int64
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Usable reports whether the token may still be redeemed at now.
func (t ResetToken) Usable(now time.Time) bool {
	return t.ConsumedAt == nil && t.ExpiresAt.After(now)
}
