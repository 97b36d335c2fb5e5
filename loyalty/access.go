/*
access.go - Role hierarchy and the capability table

PURPOSE:
  One place decides who may do what. Every engine operation names a
  Capability and asks Authorize; handlers never compare role strings.

RULES:
  A capability has a minimum role. Some capabilities are also granted to
  the organizers of the event in scope (OrganizerMay), and some act only on
  the actor's own account (SelfOnly).

    role >= MinRole                       -> allowed
    OrganizerMay && scope.Organizer       -> allowed
    SelfOnly && scope.Self                -> allowed (MinRole is regular)

SEE ALSO:
  - ledger, event, promotion: call Authorize at the start of each operation
*/
package loyalty

import (
	"fmt"
	"strings"
)

// =============================================================================
// ROLES
// =============================================================================

// Role is ordered: regular < cashier < manager < superuser.
type Role int

const (
	RoleRegular Role = iota
	RoleCashier
	RoleManager
	RoleSuperuser
)

var roleNames = map[Role]string{
	RoleRegular:   "regular",
	RoleCashier:   "cashier",
	RoleManager:   "manager",
	RoleSuperuser: "superuser",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool { return r >= min }

// ParseRole is case-insensitive.
func ParseRole(s string) (Role, bool) {
	for r, name := range roleNames {
		if strings.EqualFold(s, name) {
			return r, true
		}
	}
	return RoleRegular, false
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID int64
	Role   Role
}

// =============================================================================
// CAPABILITIES
// =============================================================================

type Capability string

const (
	CapCreatePurchase    Capability = "transaction.purchase"
	CapCreateAdjustment  Capability = "transaction.adjustment"
	CapOpenRedemption    Capability = "transaction.redemption.open"
	CapRequestRedemption Capability = "transaction.redemption.request"
	CapProcessRedemption Capability = "transaction.redemption.process"
	CapTransfer          Capability = "transaction.transfer"
	CapFlagSuspicious    Capability = "transaction.suspicious"
	CapReadTransactions  Capability = "transaction.read"
	CapReadOwnHistory    Capability = "transaction.read.own"
	CapAuditBalance      Capability = "user.audit"
	CapRegisterUser      Capability = "user.register"
	CapUpdateUser        Capability = "user.update"
	CapReadUsers         Capability = "user.read"
	CapListUsers         Capability = "user.list"
	CapUpdateSelf        Capability = "user.update.self"
	CapCreateEvent       Capability = "event.create"
	CapUpdateEvent       Capability = "event.update"
	CapPublishEvent      Capability = "event.publish"
	CapDeleteEvent       Capability = "event.delete"
	CapManageOrganizers  Capability = "event.organizers"
	CapAddGuest          Capability = "event.guests.add"
	CapRemoveGuest       Capability = "event.guests.remove"
	CapRSVP              Capability = "event.rsvp"
	CapAwardEvent        Capability = "event.award"
	CapViewHiddenEvent   Capability = "event.view.hidden"
	CapManagePromotions  Capability = "promotion.manage"
	CapViewAllPromotions Capability = "promotion.view.all"
)

// Rule is one row of the capability table.
type Rule struct {
	MinRole      Role
	OrganizerMay bool
	SelfOnly     bool
}

var capabilities = map[Capability]Rule{
	CapCreatePurchase:    {MinRole: RoleCashier},
	CapCreateAdjustment:  {MinRole: RoleManager},
	CapOpenRedemption:    {MinRole: RoleCashier},
	CapRequestRedemption: {MinRole: RoleRegular, SelfOnly: true},
	CapProcessRedemption: {MinRole: RoleCashier},
	CapTransfer:          {MinRole: RoleRegular, SelfOnly: true},
	CapFlagSuspicious:    {MinRole: RoleManager},
	CapReadTransactions:  {MinRole: RoleManager},
	CapReadOwnHistory:    {MinRole: RoleRegular, SelfOnly: true},
	CapAuditBalance:      {MinRole: RoleManager},
	CapRegisterUser:      {MinRole: RoleCashier},
	CapUpdateUser:        {MinRole: RoleManager},
	CapReadUsers:         {MinRole: RoleCashier},
	CapListUsers:         {MinRole: RoleManager},
	CapUpdateSelf:        {MinRole: RoleRegular, SelfOnly: true},
	CapCreateEvent:       {MinRole: RoleManager},
	CapUpdateEvent:       {MinRole: RoleManager, OrganizerMay: true},
	CapPublishEvent:      {MinRole: RoleManager},
	CapDeleteEvent:       {MinRole: RoleManager},
	CapManageOrganizers:  {MinRole: RoleManager},
	CapAddGuest:          {MinRole: RoleManager, OrganizerMay: true},
	CapRemoveGuest:       {MinRole: RoleManager},
	CapRSVP:              {MinRole: RoleRegular, SelfOnly: true},
	CapAwardEvent:        {MinRole: RoleManager, OrganizerMay: true},
	CapViewHiddenEvent:   {MinRole: RoleManager, OrganizerMay: true},
	CapManagePromotions:  {MinRole: RoleManager},
	CapViewAllPromotions: {MinRole: RoleManager},
}

// Scope carries the relationship between the actor and the resource.
type Scope struct {
	// Organizer is true when the actor organizes the event in question.
	Organizer bool
	// Self is true when the operation targets the actor's own account.
	Self bool
}

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Reason  string
}

// Err returns nil when allowed, else an error wrapping ErrForbidden.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
}

// Authorize evaluates the capability table. Unknown capabilities are denied.
func Authorize(actor Actor, cap Capability, scope Scope) Decision {
	rule, ok := capabilities[cap]
	if !ok {
		return Decision{Reason: fmt.Sprintf("unknown capability %q", cap)}
	}
	if rule.SelfOnly && !scope.Self {
		return Decision{Reason: fmt.Sprintf("%s acts on the caller's own account only", cap)}
	}
	if actor.Role.AtLeast(rule.MinRole) {
		return Decision{Allowed: true}
	}
	if rule.OrganizerMay && scope.Organizer {
		return Decision{Allowed: true}
	}
	return Decision{Reason: fmt.Sprintf("%s requires %s", cap, rule.MinRole)}
}

// Can is Authorize reduced to a bool.
func Can(actor Actor, cap Capability, scope Scope) bool {
	return Authorize(actor, cap, scope).Allowed
}

// =============================================================================
// ROLE GRANTS
// =============================================================================

// CanGrantRole decides whether actor may set target's role to role.
// Managers may grant regular and cashier; superusers may grant anything.
// A user flagged suspicious cannot become a cashier.
func CanGrantRole(actor Actor, target User, role Role) Decision {
	switch {
	case actor.Role.AtLeast(RoleSuperuser):
	case actor.Role == RoleManager && (role == RoleRegular || role == RoleCashier):
	default:
		return Decision{Reason: fmt.Sprintf("%s may not grant %s", actor.Role, role)}
	}
	if role == RoleCashier && target.Suspicious {
		return Decision{Reason: "suspicious users cannot be cashiers"}
	}
	return Decision{Allowed: true}
}
