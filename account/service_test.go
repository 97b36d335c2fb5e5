package account_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus/rewards-engine/account"
	"github.com/campus/rewards-engine/auth"
	"github.com/campus/rewards-engine/loyalty"
	"github.com/campus/rewards-engine/loyalty/store"
)

var now = time.Date(2026, time.October, 5, 10, 0, 0, 0, time.UTC)

type harness struct {
	ctx   context.Context
	store *store.Memory
	svc   *account.Service
	auth  *auth.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{ctx: context.Background(), store: store.NewMemory()}
	clock := func() time.Time { return now }

	tokens := auth.NewTokens("test-secret")
	tokens.Now = clock
	h.auth = auth.NewService(h.store, tokens)
	h.auth.Now = clock
	h.svc = account.NewService(h.store, h.auth)
	h.svc.Now = clock
	return h
}

func (h *harness) user(t *testing.T, utorid string, role loyalty.Role) loyalty.Actor {
	t.Helper()
	u := &loyalty.User{Utorid: utorid, Email: utorid + "@mail.utoronto.ca", Name: utorid, Role: role}
	require.NoError(t, h.store.CreateUser(h.ctx, u))
	return loyalty.Actor{UserID: u.ID, Role: u.Role}
}

func ptr[T any](v T) *T { return &v }

// =============================================================================
// REGISTRATION
// =============================================================================

func TestRegister_ActivationCycle(t *testing.T) {
	// GIVEN: A cashier registering a new student
	h := newHarness(t)
	cashier := h.user(t, "cashier1", loyalty.RoleCashier)

	// WHEN: The registration succeeds
	u, token, err := h.svc.Register(h.ctx, cashier, account.Registration{
		Utorid: "newbie01", Name: "New Student", Email: "new.student@mail.utoronto.ca",
	})
	require.NoError(t, err)

	// THEN: The user is an unverified regular with a seven-day activation token
	assert.Equal(t, loyalty.RoleRegular, u.Role)
	assert.False(t, u.Verified)
	assert.Equal(t, loyalty.ResetActivation, token.Kind)
	assert.True(t, token.ExpiresAt.Equal(now.Add(7*24*time.Hour)))

	// AND: The token sets the first password
	require.NoError(t, h.auth.CompleteReset(h.ctx, token.Token, "newbie01", "Welcome#2026"))
	_, err = h.auth.Login(h.ctx, "newbie01", "Welcome#2026")
	assert.NoError(t, err)
}

func TestRegister_Validation(t *testing.T) {
	h := newHarness(t)
	cashier := h.user(t, "cashier1", loyalty.RoleCashier)
	regular := h.user(t, "regular1", loyalty.RoleRegular)

	tests := []struct {
		name  string
		actor loyalty.Actor
		reg   account.Registration
		want  error
	}{
		{"regular may not register", regular, account.Registration{Utorid: "abcdefg1", Name: "A", Email: "a@mail.utoronto.ca"}, loyalty.ErrForbidden},
		{"short utorid", cashier, account.Registration{Utorid: "abc", Name: "A", Email: "a@mail.utoronto.ca"}, loyalty.ErrInvalidInput},
		{"symbol in utorid", cashier, account.Registration{Utorid: "abc-defg", Name: "A", Email: "a@mail.utoronto.ca"}, loyalty.ErrInvalidInput},
		{"empty name", cashier, account.Registration{Utorid: "abcdefg1", Name: " ", Email: "a@mail.utoronto.ca"}, loyalty.ErrInvalidInput},
		{"foreign email", cashier, account.Registration{Utorid: "abcdefg1", Name: "A", Email: "a@gmail.com"}, loyalty.ErrInvalidInput},
		{"duplicate utorid", cashier, account.Registration{Utorid: "REGULAR1", Name: "A", Email: "b@mail.utoronto.ca"}, loyalty.ErrConflict},
		{"duplicate email", cashier, account.Registration{Utorid: "abcdefg1", Name: "A", Email: "regular1@mail.utoronto.ca"}, loyalty.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := h.svc.Register(h.ctx, tt.actor, tt.reg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// =============================================================================
// PROFILES
// =============================================================================

func TestMe_ListsUsablePromotions(t *testing.T) {
	// GIVEN: One automatic and two one-time promotions, one of them used
	h := newHarness(t)
	me := h.user(t, "student1", loyalty.RoleRegular)
	cashier := h.user(t, "cashier1", loyalty.RoleCashier)

	promo := func(name string, typ loyalty.PromotionType) *loyalty.Promotion {
		p := &loyalty.Promotion{
			Name: name, Description: name, Type: typ,
			StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour), Points: ptr(int64(10)),
		}
		require.NoError(t, h.store.CreatePromotion(h.ctx, p))
		return p
	}
	auto := promo("auto", loyalty.PromotionAutomatic)
	fresh := promo("fresh", loyalty.PromotionOneTime)
	used := promo("used", loyalty.PromotionOneTime)
	require.NoError(t, h.store.AppendTransaction(h.ctx, &loyalty.Transaction{
		Type: loyalty.TxPurchase, Amount: 14, UserID: me.UserID, CreatedByID: cashier.UserID,
		Purchase: &loyalty.PurchaseDetail{SpentCents: 100, AppliedPromotionIDs: []int64{used.ID}},
	}))

	// WHEN: The user reads their profile
	profile, err := h.svc.Me(h.ctx, me)
	require.NoError(t, err)

	// THEN: The used one-time promotion is gone
	var ids []int64
	for _, p := range profile.Promotions {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, []int64{auto.ID, fresh.ID}, ids)

	// AND: A cashier looking the user up sees only the unused one-time promotion
	seen, err := h.svc.Get(h.ctx, cashier, me.UserID)
	require.NoError(t, err)
	require.Len(t, seen.Promotions, 1)
	assert.Equal(t, fresh.ID, seen.Promotions[0].ID)
}

func TestGetAndList_Permissions(t *testing.T) {
	h := newHarness(t)
	regular := h.user(t, "student1", loyalty.RoleRegular)
	cashier := h.user(t, "cashier1", loyalty.RoleCashier)
	manager := h.user(t, "manager1", loyalty.RoleManager)

	_, err := h.svc.Get(h.ctx, regular, cashier.UserID)
	assert.ErrorIs(t, err, loyalty.ErrForbidden)

	_, err = h.svc.Get(h.ctx, cashier, 999)
	assert.ErrorIs(t, err, loyalty.ErrNotFound)

	_, _, err = h.svc.List(h.ctx, cashier, loyalty.UserFilter{})
	assert.ErrorIs(t, err, loyalty.ErrForbidden)

	users, total, err := h.svc.List(h.ctx, manager, loyalty.UserFilter{Role: ptr(loyalty.RoleCashier)})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "cashier1", users[0].Utorid)
}

// =============================================================================
// UPDATES
// =============================================================================

func TestUpdate_RoleGrants(t *testing.T) {
	h := newHarness(t)
	manager := h.user(t, "manager1", loyalty.RoleManager)
	super := h.user(t, "super001", loyalty.RoleSuperuser)
	target := h.user(t, "student1", loyalty.RoleRegular)

	// Managers may create cashiers but not managers
	u, err := h.svc.Update(h.ctx, manager, target.UserID, account.Patch{Role: ptr("cashier")})
	require.NoError(t, err)
	assert.Equal(t, loyalty.RoleCashier, u.Role)

	_, err = h.svc.Update(h.ctx, manager, target.UserID, account.Patch{Role: ptr("manager")})
	assert.ErrorIs(t, err, loyalty.ErrForbidden)

	u, err = h.svc.Update(h.ctx, super, target.UserID, account.Patch{Role: ptr("manager")})
	require.NoError(t, err)
	assert.Equal(t, loyalty.RoleManager, u.Role)

	_, err = h.svc.Update(h.ctx, manager, target.UserID, account.Patch{Role: ptr("janitor")})
	assert.ErrorIs(t, err, loyalty.ErrInvalidInput)
}

func TestUpdate_SuspiciousCannotBecomeCashier(t *testing.T) {
	// GIVEN: A patch that flags the user and promotes them together
	h := newHarness(t)
	manager := h.user(t, "manager1", loyalty.RoleManager)
	target := h.user(t, "student1", loyalty.RoleRegular)

	// WHEN: It is applied
	_, err := h.svc.Update(h.ctx, manager, target.UserID, account.Patch{
		Suspicious: ptr(true), Role: ptr("cashier"),
	})

	// THEN: It is refused and nothing changes
	assert.ErrorIs(t, err, loyalty.ErrForbidden)
	u, err := h.store.GetUser(h.ctx, target.UserID)
	require.NoError(t, err)
	assert.False(t, u.Suspicious)
	assert.Equal(t, loyalty.RoleRegular, u.Role)
}

func TestUpdate_Fields(t *testing.T) {
	h := newHarness(t)
	manager := h.user(t, "manager1", loyalty.RoleManager)
	cashier := h.user(t, "cashier1", loyalty.RoleCashier)
	target := h.user(t, "student1", loyalty.RoleRegular)

	u, err := h.svc.Update(h.ctx, manager, target.UserID, account.Patch{
		Verified: ptr(true), Email: ptr("s.one@mail.utoronto.ca"),
	})
	require.NoError(t, err)
	assert.True(t, u.Verified)
	assert.Equal(t, "s.one@mail.utoronto.ca", u.Email)

	tests := []struct {
		name  string
		actor loyalty.Actor
		id    int64
		patch account.Patch
		want  error
	}{
		{"cashier may not update", cashier, target.UserID, account.Patch{Verified: ptr(true)}, loyalty.ErrForbidden},
		{"unverify", manager, target.UserID, account.Patch{Verified: ptr(false)}, loyalty.ErrInvalidInput},
		{"bad email", manager, target.UserID, account.Patch{Email: ptr("x@example.com")}, loyalty.ErrInvalidInput},
		{"empty patch", manager, target.UserID, account.Patch{}, loyalty.ErrInvalidInput},
		{"missing user", manager, 999, account.Patch{Verified: ptr(true)}, loyalty.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Update(h.ctx, tt.actor, tt.id, tt.patch)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpdateSelf(t *testing.T) {
	h := newHarness(t)
	me := h.user(t, "student1", loyalty.RoleRegular)

	u, err := h.svc.UpdateSelf(h.ctx, me, account.SelfPatch{Name: ptr("  Renamed  ")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", u.Name)

	_, err = h.svc.UpdateSelf(h.ctx, me, account.SelfPatch{})
	assert.ErrorIs(t, err, loyalty.ErrInvalidInput)

	_, err = h.svc.UpdateSelf(h.ctx, me, account.SelfPatch{Email: ptr("me@utoronto.ca")})
	assert.ErrorIs(t, err, loyalty.ErrInvalidInput)
}
