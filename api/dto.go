/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. The domain types in
  package loyalty carry no JSON tags; everything the client sees is shaped
  here.

NAMING CONVENTION:
  - *DTO:      response types returned to clients
  - *Request:  request body types from clients
  - *Response: wrappers (lists, one-off acknowledgements)

MONEY:
  Dollar amounts arrive as JSON numbers decoded into decimal.Decimal and
  leave as JSON numbers rounded to cents. Points are always integers.

PATCH BODIES:
  Patch requests use pointer fields so an absent key and a zero value can
  be told apart. A JSON null is treated as absent.

SEE ALSO:
  - handlers.go: request helpers
  - loyalty/types.go: domain model
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/campus/rewards-engine/account"
	"github.com/campus/rewards-engine/ledger"
	"github.com/campus/rewards-engine/loyalty"
)

// ListResponse is the envelope of every paginated listing.
type ListResponse[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}

func listOf[T, D any](items []T, count int, conv func(T) D) ListResponse[D] {
	out := make([]D, len(items))
	for i, item := range items {
		out[i] = conv(item)
	}
	return ListResponse[D]{Count: count, Results: out}
}

type MessageResponse struct {
	Message string `json:"message"`
}

// =============================================================================
// AUTH
// =============================================================================

type LoginRequest struct {
	Utorid   string `json:"utorid"`
	Password string `json:"password"`
}

type SessionDTO struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ResetRequest struct {
	Utorid string `json:"utorid"`
	Email  string `json:"email"`
}

type ResetTokenDTO struct {
	ExpiresAt  time.Time `json:"expiresAt"`
	ResetToken string    `json:"resetToken"`
}

type CompleteResetRequest struct {
	Utorid   string `json:"utorid"`
	Password string `json:"password"`
}

// =============================================================================
// USERS
// =============================================================================

type RegisterRequest struct {
	Utorid string `json:"utorid"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

type RegisteredDTO struct {
	ID         int64     `json:"id"`
	Utorid     string    `json:"utorid"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Verified   bool      `json:"verified"`
	ExpiresAt  time.Time `json:"expiresAt"`
	ResetToken string    `json:"resetToken"`
}

// UserDTO is the full view of an account. Suspicious is only set for
// managers.
type UserDTO struct {
	ID         int64          `json:"id"`
	Utorid     string         `json:"utorid"`
	Name       string         `json:"name"`
	Email      string         `json:"email"`
	Role       string         `json:"role"`
	Points     int64          `json:"points"`
	Verified   bool           `json:"verified"`
	Suspicious *bool          `json:"suspicious,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	LastLogin  *time.Time     `json:"lastLogin"`
	Promotions []PromotionDTO `json:"promotions,omitempty"`
}

func toUserDTO(u loyalty.User) UserDTO {
	return UserDTO{
		ID:        u.ID,
		Utorid:    u.Utorid,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role.String(),
		Points:    u.Points,
		Verified:  u.Verified,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}

func toManagedUserDTO(u loyalty.User) UserDTO {
	dto := toUserDTO(u)
	dto.Suspicious = &u.Suspicious
	return dto
}

// CustomerDTO is what a cashier sees when looking a customer up.
type CustomerDTO struct {
	ID         int64          `json:"id"`
	Utorid     string         `json:"utorid"`
	Name       string         `json:"name"`
	Points     int64          `json:"points"`
	Verified   bool           `json:"verified"`
	Promotions []PromotionDTO `json:"promotions"`
}

func profileDTO(p *account.Profile, full bool) any {
	promos := make([]PromotionDTO, len(p.Promotions))
	for i, promo := range p.Promotions {
		promos[i] = toPromotionDTO(promo)
	}
	if !full {
		return CustomerDTO{
			ID:         p.User.ID,
			Utorid:     p.User.Utorid,
			Name:       p.User.Name,
			Points:     p.User.Points,
			Verified:   p.User.Verified,
			Promotions: promos,
		}
	}
	dto := toManagedUserDTO(p.User)
	dto.Promotions = promos
	return dto
}

type UpdateUserRequest struct {
	Email      *string `json:"email"`
	Verified   *bool   `json:"verified"`
	Suspicious *bool   `json:"suspicious"`
	Role       *string `json:"role"`
}

// UpdatedUserDTO echoes the identity plus the fields that changed.
type UpdatedUserDTO struct {
	ID         int64   `json:"id"`
	Utorid     string  `json:"utorid"`
	Name       string  `json:"name"`
	Email      *string `json:"email,omitempty"`
	Verified   *bool   `json:"verified,omitempty"`
	Suspicious *bool   `json:"suspicious,omitempty"`
	Role       *string `json:"role,omitempty"`
}

type UpdateSelfRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

type ChangePasswordRequest struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type AuditDTO struct {
	UserID       int64 `json:"userId"`
	Stored       int64 `json:"stored"`
	Replayed     int64 `json:"replayed"`
	Consistent   bool  `json:"consistent"`
	Transactions int   `json:"transactions"`
	Withheld     int64 `json:"withheld"`
	Pending      int64 `json:"pending"`
}

func toAuditDTO(a *ledger.Audit) AuditDTO {
	return AuditDTO{
		UserID:       a.UserID,
		Stored:       a.Stored,
		Replayed:     a.Replayed,
		Consistent:   a.Consistent(),
		Transactions: a.Transactions,
		Withheld:     a.Withheld,
		Pending:      a.Pending,
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// CreateTransactionRequest covers purchase, adjustment and cashier-opened
// redemption; Type selects which fields matter.
type CreateTransactionRequest struct {
	Utorid       string           `json:"utorid"`
	Type         string           `json:"type"`
	Spent        *decimal.Decimal `json:"spent"`
	Amount       *int64           `json:"amount"`
	RelatedID    *int64           `json:"relatedId"`
	PromotionIDs []int64          `json:"promotionIds"`
	Remark       string           `json:"remark"`
}

// PointsRequest is the body of self-service redemptions, transfers and
// event awards.
type PointsRequest struct {
	Type   string `json:"type"`
	Utorid string `json:"utorid"`
	Amount *int64 `json:"amount"`
	Remark string `json:"remark"`
}

type TransactionDTO struct {
	ID           int64     `json:"id"`
	Utorid       string    `json:"utorid"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	Spent        *float64  `json:"spent,omitempty"`
	RelatedID    *int64    `json:"relatedId,omitempty"`
	PromotionIDs []int64   `json:"promotionIds"`
	Suspicious   bool      `json:"suspicious"`
	Processed    *bool     `json:"processed,omitempty"`
	Remark       string    `json:"remark"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toTransactionDTO(t loyalty.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:           t.ID,
		Utorid:       t.Utorid,
		Type:         string(t.Type),
		Amount:       t.Amount,
		RelatedID:    t.RelatedID(),
		PromotionIDs: t.PromotionIDs(),
		Suspicious:   t.Suspicious,
		Remark:       t.Remark,
		CreatedBy:    t.CreatedByUtorid,
		CreatedAt:    t.CreatedAt,
	}
	if t.Purchase != nil {
		spent := t.Purchase.Spent().InexactFloat64()
		dto.Spent = &spent
	}
	if t.Type == loyalty.TxRedemption {
		dto.Processed = &t.Processed
	}
	return dto
}

type PurchaseDTO struct {
	ID           int64   `json:"id"`
	Utorid       string  `json:"utorid"`
	Type         string  `json:"type"`
	Spent        float64 `json:"spent"`
	Earned       int64   `json:"earned"`
	PromotionIDs []int64 `json:"promotionIds"`
	Remark       string  `json:"remark"`
	CreatedBy    string  `json:"createdBy"`
}

func toPurchaseDTO(r *ledger.Receipt) PurchaseDTO {
	t := r.Transaction
	return PurchaseDTO{
		ID:           t.ID,
		Utorid:       t.Utorid,
		Type:         string(t.Type),
		Spent:        t.Purchase.Spent().InexactFloat64(),
		Earned:       r.Earned,
		PromotionIDs: t.PromotionIDs(),
		Remark:       t.Remark,
		CreatedBy:    t.CreatedByUtorid,
	}
}

type RedemptionDTO struct {
	ID          int64   `json:"id"`
	Utorid      string  `json:"utorid"`
	Type        string  `json:"type"`
	Redeemed    int64   `json:"redeemed"`
	Processed   bool    `json:"processed"`
	ProcessedBy *string `json:"processedBy"`
	Remark      string  `json:"remark"`
	CreatedBy   string  `json:"createdBy"`
}

// toRedemptionDTO reports the redeemed amount as a positive number.
func toRedemptionDTO(t loyalty.Transaction, processedBy *string) RedemptionDTO {
	return RedemptionDTO{
		ID:          t.ID,
		Utorid:      t.Utorid,
		Type:        string(t.Type),
		Redeemed:    -t.Amount,
		Processed:   t.Processed,
		ProcessedBy: processedBy,
		Remark:      t.Remark,
		CreatedBy:   t.CreatedByUtorid,
	}
}

type TransferDTO struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Type      string `json:"type"`
	Sent      int64  `json:"sent"`
	Remark    string `json:"remark"`
	CreatedBy string `json:"createdBy"`
}

func toTransferDTO(r *ledger.TransferResult) TransferDTO {
	return TransferDTO{
		ID:        r.Sent.ID,
		Sender:    r.Sent.Utorid,
		Recipient: r.Received.Utorid,
		Type:      string(r.Sent.Type),
		Sent:      r.Received.Amount,
		Remark:    r.Sent.Remark,
		CreatedBy: r.Sent.CreatedByUtorid,
	}
}

type AwardDTO struct {
	ID        int64  `json:"id"`
	Recipient string `json:"recipient"`
	Awarded   int64  `json:"awarded"`
	Type      string `json:"type"`
	RelatedID *int64 `json:"relatedId"`
	Remark    string `json:"remark"`
	CreatedBy string `json:"createdBy"`
}

func toAwardDTO(t loyalty.Transaction) AwardDTO {
	return AwardDTO{
		ID:        t.ID,
		Recipient: t.Utorid,
		Awarded:   t.Amount,
		Type:      string(t.Type),
		RelatedID: t.RelatedID(),
		Remark:    t.Remark,
		CreatedBy: t.CreatedByUtorid,
	}
}

// =============================================================================
// EVENTS
// =============================================================================

type EventRequest struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	Capacity    *int       `json:"capacity"`
	Points      *int64     `json:"points"`
	Published   *bool      `json:"published"`
}

type MemberRequest struct {
	Utorid string `json:"utorid"`
}

type MemberDTO struct {
	ID     int64  `json:"id"`
	Utorid string `json:"utorid"`
	Name   string `json:"name"`
}

func toMemberDTO(m loyalty.Member) MemberDTO {
	return MemberDTO{ID: m.UserID, Utorid: m.Utorid, Name: m.Name}
}

// EventSummaryDTO is one row of an event listing. The budget fields and
// Published are only set for privileged viewers.
type EventSummaryDTO struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Location      string    `json:"location"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	Capacity      *int      `json:"capacity"`
	NumGuests     int       `json:"numGuests"`
	PointsRemain  *int64    `json:"pointsRemain,omitempty"`
	PointsAwarded *int64    `json:"pointsAwarded,omitempty"`
	Published     *bool     `json:"published,omitempty"`
	MeRsvped      *bool     `json:"meRsvped,omitempty"`
}

type EventDTO struct {
	EventSummaryDTO
	Description string      `json:"description"`
	Organizers  []MemberDTO `json:"organizers"`
	Guests      []MemberDTO `json:"guests,omitempty"`
}

func toEventSummaryDTO(e loyalty.Event, privileged bool) EventSummaryDTO {
	dto := EventSummaryDTO{
		ID:        e.ID,
		Name:      e.Name,
		Location:  e.Location,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
		Capacity:  e.Capacity,
		NumGuests: e.ConfirmedGuests(),
	}
	if privileged {
		dto.PointsRemain = &e.PointsRemain
		dto.PointsAwarded = &e.PointsAwarded
		dto.Published = &e.Published
	}
	return dto
}

func toEventDTO(e loyalty.Event, privileged bool) EventDTO {
	dto := EventDTO{
		EventSummaryDTO: toEventSummaryDTO(e, privileged),
		Description:     e.Description,
		Organizers:      make([]MemberDTO, len(e.Organizers)),
	}
	for i, o := range e.Organizers {
		dto.Organizers[i] = toMemberDTO(o)
	}
	if privileged {
		for _, g := range e.Guests {
			if g.Confirmed {
				dto.Guests = append(dto.Guests, toMemberDTO(g.Member))
			}
		}
	}
	return dto
}

type OrganizersDTO struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Location   string      `json:"location"`
	Organizers []MemberDTO `json:"organizers"`
}

type GuestAddedDTO struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Location   string    `json:"location"`
	GuestAdded MemberDTO `json:"guestAdded"`
	NumGuests  int       `json:"numGuests"`
}

type RSVPDTO struct {
	MeRsvped bool `json:"meRsvped"`
}

// =============================================================================
// PROMOTIONS
// =============================================================================

type PromotionRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Type        *string          `json:"type"`
	StartTime   *time.Time       `json:"startTime"`
	EndTime     *time.Time       `json:"endTime"`
	MinSpending *decimal.Decimal `json:"minSpending"`
	Rate        *decimal.Decimal `json:"rate"`
	Points      *int64           `json:"points"`
}

type PromotionDTO struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	MinSpending *float64  `json:"minSpending"`
	Rate        *float64  `json:"rate"`
	Points      *int64    `json:"points"`
}

func toPromotionDTO(p loyalty.Promotion) PromotionDTO {
	return PromotionDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Type:        string(p.Type),
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
		MinSpending: inexact(p.MinSpending),
		Rate:        inexact(p.Rate),
		Points:      p.Points,
	}
}

func inexact(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

// =============================================================================
// ASSISTANT
// =============================================================================

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatDTO struct {
	Reply string `json:"reply"`
}
