/*
store.go - Persistence interfaces for the rewards engine

PURPOSE:
  Defines the interface between the engines and the database. Engines only
  ever see these interfaces; the memory and SQLite implementations are
  interchangeable.

KEY INTERFACES:
  UserStore, TransactionStore, EventStore, PromotionStore, ResetTokenStore:
  per-aggregate reads and writes.
  Store:   all of the above.
  TxStore: Store plus WithTx, the single atomic boundary.

APPEND-ONLY LEDGER:
  TransactionStore has no Update or Delete. The only row mutations are the
  two flag toggles (SetSuspicious, MarkProcessed), and the engine always
  pairs them with AddPoints inside the same WithTx.

MISSING ROWS:
  Get* methods return (nil, nil) when the row does not exist. Engines turn
  that into the right NotFound error for their context.

IMPLEMENTATIONS:
  - loyalty/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go:  SQLite via database/sql

SEE ALSO:
  - ledger/engine.go: every operation runs inside one WithTx
*/
package loyalty

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FILTERS
// =============================================================================

// Page is 1-based. Zero values mean page 1 of 10.
type Page struct {
	Page  int
	Limit int
}

func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 10
	}
	return p
}

func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

type UserFilter struct {
	Name      string // substring of utorid or name
	Role      *Role
	Verified  *bool
	Activated *bool // has logged in at least once
	Page
}

type AmountOperator string

const (
	AmountGTE AmountOperator = "gte"
	AmountLTE AmountOperator = "lte"
)

type TransactionFilter struct {
	UserID      *int64
	Name        string // substring of the owner's utorid or name
	CreatedBy   string // creator utorid
	Suspicious  *bool
	PromotionID *int64
	Type        *TransactionType
	RelatedID   *int64
	Amount      *int64
	Operator    AmountOperator
	Page
}

// EventFilter results are ordered by start time. Full events are dropped
// unless ShowFull is set.
type EventFilter struct {
	Name      string
	Location  string
	Started   *bool
	Ended     *bool
	ShowFull  bool
	Published *bool
	Now       time.Time
	Page
}

type PromotionFilter struct {
	Name       string
	Type       *PromotionType
	Started    *bool
	Ended      *bool
	ActiveOnly bool
	Now        time.Time
	Page
}

// =============================================================================
// PATCHES
// =============================================================================

// UserPatch carries only the fields to change.
type UserPatch struct {
	Email        *string
	Name         *string
	Role         *Role
	Verified     *bool
	Suspicious   *bool
	PasswordHash *string
	LastLogin    *time.Time
}

type EventPatch struct {
	Name         *string
	Description  *string
	Location     *string
	StartTime    *time.Time
	EndTime      *time.Time
	Capacity     *int
	PointsRemain *int64
	Published    *bool
}

func (p EventPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Location == nil &&
		p.StartTime == nil && p.EndTime == nil && p.Capacity == nil &&
		p.PointsRemain == nil && p.Published == nil
}

type PromotionPatch struct {
	Name        *string
	Description *string
	Type        *PromotionType
	StartTime   *time.Time
	EndTime     *time.Time
	MinSpending *decimal.Decimal
	Rate        *decimal.Decimal
	Points      *int64
}

func (p PromotionPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Type == nil &&
		p.StartTime == nil && p.EndTime == nil && p.MinSpending == nil &&
		p.Rate == nil && p.Points == nil
}

// =============================================================================
// STORES
// =============================================================================

type UserStore interface {
	// CreateUser assigns u.ID. Returns ErrDuplicateUser on a utorid or email clash.
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	// GetUserByUtorid also matches email, case-insensitively.
	GetUserByUtorid(ctx context.Context, utorid string) (*User, error)
	ListUsers(ctx context.Context, f UserFilter) ([]User, int, error)
	UpdateUser(ctx context.Context, id int64, p UserPatch) error
	// AddPoints applies delta to the stored balance. Only the ledger calls it.
	AddPoints(ctx context.Context, userID int64, delta int64) error
}

type TransactionStore interface {
	// AppendTransaction assigns tx.ID and stores tx.Purchase, plus one
	// PromotionUsage per applied promotion.
	AppendTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id int64) (*Transaction, error)
	// ListTransactions returns one page, newest first, plus the total count.
	ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, int, error)
	// UserTransactions returns every transaction of a user, oldest first.
	UserTransactions(ctx context.Context, userID int64) ([]Transaction, error)
	SetSuspicious(ctx context.Context, id int64, suspicious bool) error
	MarkProcessed(ctx context.Context, id int64, processedBy int64) error
	HasUsedPromotion(ctx context.Context, userID, promotionID int64) (bool, error)
}

type EventStore interface {
	// CreateEvent assigns e.ID.
	CreateEvent(ctx context.Context, e *Event) error
	// GetEvent loads organizers and guests too.
	GetEvent(ctx context.Context, id int64) (*Event, error)
	ListEvents(ctx context.Context, f EventFilter) ([]Event, int, error)
	UpdateEvent(ctx context.Context, id int64, p EventPatch) error
	DeleteEvent(ctx context.Context, id int64) error

	AddGuest(ctx context.Context, eventID, userID int64, confirmedAt time.Time) error
	RemoveGuest(ctx context.Context, eventID, userID int64) error
	AddOrganizer(ctx context.Context, eventID, userID int64) error
	RemoveOrganizer(ctx context.Context, eventID, userID int64) error

	// SpendEventBudget moves amount from remaining to awarded. Returns an
	// *InsufficientBudgetError if fewer than amount points remain.
	SpendEventBudget(ctx context.Context, eventID int64, amount int64) error
}

type PromotionStore interface {
	// CreatePromotion assigns p.ID.
	CreatePromotion(ctx context.Context, p *Promotion) error
	GetPromotion(ctx context.Context, id int64) (*Promotion, error)
	ListPromotions(ctx context.Context, f PromotionFilter) ([]Promotion, int, error)
	// ActivePromotions returns every promotion of type typ active at now.
	ActivePromotions(ctx context.Context, typ PromotionType, now time.Time) ([]Promotion, error)
	UpdatePromotion(ctx context.Context, id int64, p PromotionPatch) error
	DeletePromotion(ctx context.Context, id int64) error
}

type ResetTokenStore interface {
	// IssueResetToken consumes the user's unconsumed tokens at t.CreatedAt,
	// then stores t.
	IssueResetToken(ctx context.Context, t *ResetToken) error
	GetResetToken(ctx context.Context, token string) (*ResetToken, error)
	// ConsumeResetToken returns ErrResetTokenNotFound for an unknown token
	// and ErrResetTokenExpired if it was already consumed.
	ConsumeResetToken(ctx context.Context, token string, at time.Time) error
}

// Store is every aggregate store.
type Store interface {
	UserStore
	TransactionStore
	EventStore
	PromotionStore
	ResetTokenStore
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
