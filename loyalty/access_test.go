package loyalty_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/campus/rewards-engine/loyalty"
)

func TestAuthorize_RoleHierarchy(t *testing.T) {
	tests := []struct {
		role loyalty.Role
		cap  loyalty.Capability
		want bool
	}{
		{loyalty.RoleRegular, loyalty.CapCreatePurchase, false},
		{loyalty.RoleCashier, loyalty.CapCreatePurchase, true},
		{loyalty.RoleSuperuser, loyalty.CapCreatePurchase, true},
		{loyalty.RoleCashier, loyalty.CapCreateAdjustment, false},
		{loyalty.RoleManager, loyalty.CapCreateAdjustment, true},
		{loyalty.RoleCashier, loyalty.CapProcessRedemption, true},
		{loyalty.RoleCashier, loyalty.CapFlagSuspicious, false},
		{loyalty.RoleCashier, loyalty.CapListUsers, false},
		{loyalty.RoleManager, loyalty.CapManagePromotions, true},
	}
	for _, tt := range tests {
		t.Run(tt.role.String()+"/"+string(tt.cap), func(t *testing.T) {
			d := loyalty.Authorize(loyalty.Actor{UserID: 1, Role: tt.role}, tt.cap, loyalty.Scope{})
			assert.Equal(t, tt.want, d.Allowed, d.Reason)
		})
	}
}

func TestAuthorize_OrganizerScope(t *testing.T) {
	// GIVEN: A regular user who organizes the event
	// WHEN: They award points or edit the event
	// THEN: Allowed with the organizer scope; publishing still needs a manager

	organizer := loyalty.Actor{UserID: 5, Role: loyalty.RoleRegular}
	scope := loyalty.Scope{Organizer: true}

	assert.True(t, loyalty.Can(organizer, loyalty.CapAwardEvent, scope))
	assert.True(t, loyalty.Can(organizer, loyalty.CapUpdateEvent, scope))
	assert.False(t, loyalty.Can(organizer, loyalty.CapAwardEvent, loyalty.Scope{}))
	assert.False(t, loyalty.Can(organizer, loyalty.CapPublishEvent, scope))
	assert.False(t, loyalty.Can(organizer, loyalty.CapRemoveGuest, scope))
}

func TestAuthorize_SelfOnly(t *testing.T) {
	super := loyalty.Actor{UserID: 1, Role: loyalty.RoleSuperuser}

	assert.False(t, loyalty.Can(super, loyalty.CapTransfer, loyalty.Scope{}), "even superusers transfer only their own points")
	assert.True(t, loyalty.Can(super, loyalty.CapTransfer, loyalty.Scope{Self: true}))
}

func TestAuthorize_DeniedWrapsForbidden(t *testing.T) {
	err := loyalty.Authorize(loyalty.Actor{}, loyalty.CapCreateEvent, loyalty.Scope{}).Err()
	assert.ErrorIs(t, err, loyalty.ErrForbidden)
	assert.True(t, loyalty.IsClientError(err))

	err = loyalty.Authorize(loyalty.Actor{Role: loyalty.RoleSuperuser}, "no.such.capability", loyalty.Scope{}).Err()
	assert.ErrorIs(t, err, loyalty.ErrForbidden)
}

func TestCanGrantRole(t *testing.T) {
	manager := loyalty.Actor{UserID: 1, Role: loyalty.RoleManager}
	super := loyalty.Actor{UserID: 2, Role: loyalty.RoleSuperuser}
	clean := loyalty.User{ID: 3}
	flagged := loyalty.User{ID: 4, Suspicious: true}

	assert.True(t, loyalty.CanGrantRole(manager, clean, loyalty.RoleCashier).Allowed)
	assert.True(t, loyalty.CanGrantRole(manager, clean, loyalty.RoleRegular).Allowed)
	assert.False(t, loyalty.CanGrantRole(manager, clean, loyalty.RoleManager).Allowed)
	assert.True(t, loyalty.CanGrantRole(super, clean, loyalty.RoleSuperuser).Allowed)
	assert.False(t, loyalty.CanGrantRole(super, flagged, loyalty.RoleCashier).Allowed)
	assert.True(t, loyalty.CanGrantRole(super, flagged, loyalty.RoleManager).Allowed)
}

func TestParseRole(t *testing.T) {
	r, ok := loyalty.ParseRole("Manager")
	assert.True(t, ok)
	assert.Equal(t, loyalty.RoleManager, r)

	_, ok = loyalty.ParseRole("admin")
	assert.False(t, ok)
}

func TestErrorKinds(t *testing.T) {
	assert.ErrorIs(t, loyalty.ErrEventFull, loyalty.ErrGone)
	assert.ErrorIs(t, loyalty.ErrAlreadyProcessed, loyalty.ErrConflict)
	assert.ErrorIs(t, loyalty.ErrUnverified, loyalty.ErrForbidden)
	assert.True(t, loyalty.IsNotFound(loyalty.ErrEventNotFound))
	assert.False(t, loyalty.IsClientError(errors.New("disk on fire")))

	ipe := &loyalty.InsufficientPointsError{UserID: 1, Available: 10, Requested: 25}
	assert.ErrorIs(t, ipe, loyalty.ErrInsufficientPoints)
	assert.Equal(t, int64(15), ipe.Shortfall())
}
