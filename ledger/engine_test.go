package ledger_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus/rewards-engine/ledger"
	"github.com/campus/rewards-engine/loyalty"
	"github.com/campus/rewards-engine/loyalty/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var now = time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctx    context.Context
	store  *store.Memory
	engine *ledger.Engine

	cashier, suspect, manager, alice, bob *loyalty.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), store: store.NewMemory()}
	f.engine = &ledger.Engine{Store: f.store, Now: func() time.Time { return now }}

	f.cashier = f.user(t, "cashier1", loyalty.RoleCashier, false)
	f.suspect = f.user(t, "cashier2", loyalty.RoleCashier, true)
	f.manager = f.user(t, "manager1", loyalty.RoleManager, false)
	f.alice = f.user(t, "alice001", loyalty.RoleRegular, false)
	f.bob = f.user(t, "bob00001", loyalty.RoleRegular, false)
	return f
}

func (f *fixture) user(t *testing.T, utorid string, role loyalty.Role, suspicious bool) *loyalty.User {
	t.Helper()
	u := &loyalty.User{
		Utorid:     utorid,
		Email:      utorid + "@mail.utoronto.ca",
		Name:       utorid,
		Role:       role,
		Verified:   true,
		Suspicious: suspicious,
	}
	require.NoError(t, f.store.CreateUser(f.ctx, u))
	return u
}

func actor(u *loyalty.User) loyalty.Actor {
	return loyalty.Actor{UserID: u.ID, Role: u.Role}
}

func (f *fixture) points(t *testing.T, u *loyalty.User) int64 {
	t.Helper()
	got, err := f.store.GetUser(f.ctx, u.ID)
	require.NoError(t, err)
	return got.Points
}

func (f *fixture) txCount(t *testing.T) int {
	t.Helper()
	_, total, err := f.store.ListTransactions(f.ctx, loyalty.TransactionFilter{})
	require.NoError(t, err)
	return total
}

// seed gives u a balance through a purchase rung up by the cashier.
func (f *fixture) seed(t *testing.T, u *loyalty.User, spent string) {
	t.Helper()
	_, err := f.engine.Purchase(f.ctx, actor(f.cashier), ledger.PurchaseRequest{
		Utorid: u.Utorid,
		Spent:  decimal.RequireFromString(spent),
	})
	require.NoError(t, err)
}

func (f *fixture) promotion(t *testing.T, typ loyalty.PromotionType, rate string, points int64) *loyalty.Promotion {
	t.Helper()
	p := &loyalty.Promotion{
		Name:        "promo",
		Description: "test",
		Type:        typ,
		StartTime:   now.Add(-time.Hour),
		EndTime:     now.Add(24 * time.Hour),
	}
	if rate != "" {
		r := decimal.RequireFromString(rate)
		p.Rate = &r
	}
	if points > 0 {
		p.Points = &points
	}
	require.NoError(t, f.store.CreatePromotion(f.ctx, p))
	return p
}

func (f *fixture) assertConsistent(t *testing.T, users ...*loyalty.User) {
	t.Helper()
	for _, u := range users {
		audit, err := ledger.Replay(f.ctx, f.store, u.ID)
		require.NoError(t, err)
		assert.True(t, audit.Consistent(), "user %s: stored %d, replayed %d", u.Utorid, audit.Stored, audit.Replayed)
	}
}

// =============================================================================
// PURCHASE
// =============================================================================

func TestPurchase_AutomaticRatePromotion(t *testing.T) {
	// GIVEN: An automatic promotion with rate 2.0
	// WHEN: Alice spends $20.00
	// THEN: 80 base + 40 bonus = 120 points

	f := newFixture(t)
	promo := f.promotion(t, loyalty.PromotionAutomatic, "2.0", 0)

	receipt, err := f.engine.Purchase(f.ctx, actor(f.cashier), ledger.PurchaseRequest{
		Utorid: f.alice.Utorid,
		Spent:  decimal.RequireFromString("20.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(80), receipt.Points.Base)
	assert.Equal(t, int64(40), receipt.Points.Bonus)
	assert.Equal(t, int64(120), receipt.Transaction.Amount)
	assert.Equal(t, int64(120), receipt.Earned)
	assert.Equal(t, []int64{promo.ID}, receipt.Transaction.PromotionIDs())
	assert.Equal(t, int64(2000), receipt.Transaction.Purchase.SpentCents)
	assert.Equal(t, int64(120), f.points(t, f.alice))
	f.assertConsistent(t, f.alice)
}

func TestPurchase_SuspiciousCashierWithholdsCredit(t *testing.T) {
	// GIVEN: A cashier flagged suspicious
	// WHEN: They ring up a $10 purchase
	// THEN: The transaction carries 40 points but Alice's balance is unchanged
	//       until a manager clears the flag

	f := newFixture(t)

	receipt, err := f.engine.Purchase(f.ctx, actor(f.suspect), ledger.PurchaseRequest{
		Utorid: f.alice.Utorid,
		Spent:  decimal.RequireFromString("10"),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(40), receipt.Transaction.Amount)
	assert.True(t, receipt.Transaction.Suspicious)
	assert.Equal(t, int64(0), receipt.Earned)
	assert.Equal(t, int64(0), f.points(t, f.alice))
	f.assertConsistent(t, f.alice)

	_, err = f.engine.SetSuspicious(f.ctx, actor(f.manager), receipt.Transaction.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(40), f.points(t, f.alice))
	f.assertConsistent(t, f.alice)
}

func TestPurchase_OneTimePromotionReuseBlocked(t *testing.T) {
	// GIVEN: A one-time promotion worth 50 points, already used by Alice
	// WHEN: It is named on a second purchase
	// THEN: InvalidInput and no transaction is created

	f := newFixture(t)
	promo := f.promotion(t, loyalty.PromotionOneTime, "", 50)

	first, err := f.engine.Purchase(f.ctx, actor(f.cashier), ledger.PurchaseRequest{
		Utorid:       f.alice.Utorid,
		Spent:        decimal.RequireFromString("5"),
		PromotionIDs: []int64{promo.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(20+50), first.Transaction.Amount)

	before := f.txCount(t)
	_, err = f.engine.Purchase(f.ctx, actor(f.cashier), ledger.PurchaseRequest{
		Utorid:       f.alice.Utorid,
		Spent:        decimal.RequireFromString("5"),
		PromotionIDs: []int64{promo.ID},
	})
	assert.ErrorIs(t, err, loyalty.ErrInvalidInput)
	assert.Equal(t, before, f.txCount(t))
	assert.Equal(t, int64(70), f.points(t, f.alice))

	// Bob has not used it yet
	_, err = f.engine.Purchase(f.ctx, actor(f.cashier), ledger.PurchaseRequest{
		Utorid:       f.bob.Utorid,
		Spent:        decimal.RequireFromString("5"),
		PromotionIDs: []int64{promo.ID},
	})
	assert.NoError(t, err)
}

func TestPurchase_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		actor loyalty.Actor
		req   ledger.PurchaseRequest
		want  error
	}{
		{"regular user", actor(f.alice), ledger.PurchaseRequest{Utorid: f.bob.Utorid, Spent: decimal.NewFromInt(1)}, loyalty.ErrForbidden},
		{"zero spend", actor(f.cashier), ledger.PurchaseRequest{Utorid: f.bob.Utorid, Spent: decimal.Zero}, loyalty.ErrInvalidInput},
		{"unknown utorid", actor(f.cashier), ledger.PurchaseRequest{Utorid: "nobody99", Spent: decimal.NewFromInt(1)}, loyalty.ErrInvalidInput},
		{"unknown promotion", actor(f.cashier), ledger.PurchaseRequest{Utorid: f.bob.Utorid, Spent: decimal.NewFromInt(1), PromotionIDs: []int64{999}}, loyalty.ErrInvalidInput},
		{"fraction of a cent", actor(f.cashier), ledger.PurchaseRequest{Utorid: f.bob.Utorid, Spent: decimal.RequireFromString("0.125")}, loyalty.ErrInvalidInput},
		{"more cents than int64", actor(f.cashier), ledger.PurchaseRequest{Utorid: f.bob.Utorid, Spent: decimal.RequireFromString("1e19")}, loyalty.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Purchase(f.ctx, tt.actor, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 0, f.txCount(t))
}

func TestPurchase_PointsMustFitABalance(t *testing.T) {
	// GIVEN: An automatic promotion whose rate pushes the bonus past int64
	// WHEN: Alice spends $100.00
	// THEN: InvalidInput, nothing recorded

	f := newFixture(t)
	f.promotion(t, loyalty.PromotionAutomatic, "1e18", 0)

	_, err := f.engine.Purchase(f.ctx, actor(f.cashier), ledger.PurchaseRequest{
		Utorid: f.alice.Utorid,
		Spent:  decimal.RequireFromString("100.00"),
	})

	assert.ErrorIs(t, err, loyalty.ErrInvalidInput)
	assert.Equal(t, 0, f.txCount(t))
	assert.Equal(t, int64(0), f.points(t, f.alice))
}

func TestPurchase_TrailingZerosAreWholeCents(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.engine.Purchase(f.ctx, actor(f.cashier), ledger.PurchaseRequest{
		Utorid: f.alice.Utorid,
		Spent:  decimal.RequireFromString("1.500"),
	})

	require.NoError(t, err)
	assert.Equal(t, int64(150), receipt.Transaction.Purchase.SpentCents)
	assert.Equal(t, int64(6), receipt.Transaction.Amount)
}

// =============================================================================
// ADJUSTMENT
// =============================================================================

func TestAdjustment_AppliesSignedAmount(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.alice, "10") // 40 points
	receipt, _, _ := f.store.ListTransactions(f.ctx, loyalty.TransactionFilter{})

	adj, err := f.engine.Adjustment(f.ctx, actor(f.manager), ledger.AdjustmentRequest{
		Utorid:    f.alice.Utorid,
		Amount:    -15,
		RelatedID: receipt[0].ID,
		Remark:    "price correction",
	})
	require.NoError(t, err)

	assert.Equal(t, loyalty.TxAdjustment, adj.Type)
	require.NotNil(t, adj.RelatedTransactionRef)
	assert.Equal(t, receipt[0].ID, *adj.RelatedTransactionRef)
	assert.Nil(t, adj.EventRef)
	assert.Equal(t, int64(25), f.points(t, f.alice))
	f.assertConsistent(t, f.alice)
}

func TestAdjustment_RelatedTransactionChecks(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.alice, "10")
	txs, _, _ := f.store.ListTransactions(f.ctx, loyalty.TransactionFilter{})

	_, err := f.engine.Adjustment(f.ctx, actor(f.manager), ledger.AdjustmentRequest{
		Utorid: f.bob.Utorid, Amount: 5, RelatedID: txs[0].ID,
	})
	assert.ErrorIs(t, err, loyalty.ErrInvalidInput, "related transaction belongs to alice")

	_, err = f.engine.Adjustment(f.ctx, actor(f.manager), ledger.AdjustmentRequest{
		Utorid: f.alice.Utorid, Amount: 5, RelatedID: 999,
	})
	assert.ErrorIs(t, err, loyalty.ErrNotFound)

	_, err = f.engine.Adjustment(f.ctx, actor(f.cashier), ledger.AdjustmentRequest{
		Utorid: f.alice.Utorid, Amount: 5, RelatedID: txs[0].ID,
	})
	assert.ErrorIs(t, err, loyalty.ErrForbidden)

	assert.Equal(t, int64(40), f.points(t, f.alice))
}

func TestAdjustment_BalanceOverflowRejected(t *testing.T) {
	// GIVEN: Alice holds 40 points
	// WHEN: A manager adjusts her by MaxInt64
	// THEN: InvalidInput, balance and ledger unchanged

	f := newFixture(t)
	f.seed(t, f.alice, "10")
	txs, _, _ := f.store.ListTransactions(f.ctx, loyalty.TransactionFilter{})

	_, err := f.engine.Adjustment(f.ctx, actor(f.manager), ledger.AdjustmentRequest{
		Utorid: f.alice.Utorid, Amount: math.MaxInt64, RelatedID: txs[0].ID,
	})

	assert.ErrorIs(t, err, loyalty.ErrInvalidInput)
	assert.Equal(t, int64(40), f.points(t, f.alice))
	assert.Equal(t, 1, f.txCount(t))
	f.assertConsistent(t, f.alice)
}

// =============================================================================
// REDEMPTION
// =============================================================================

func TestRedemption_TwoPhase(t *testing.T) {
	// GIVEN: Alice has 100 points
	// WHEN: She requests a 30 point redemption, then a cashier processes it
	// THEN: The request leaves 100; processing leaves 70, exactly once

	f := newFixture(t)
	f.seed(t, f.alice, "25")
	require.Equal(t, int64(100), f.points(t, f.alice))

	r, err := f.engine.RequestRedemption(f.ctx, actor(f.alice), ledger.RedemptionRequest{Amount: 30})
	require.NoError(t, err)
	assert.Equal(t, int64(-30), r.Amount)
	assert.False(t, r.Processed)
	assert.Equal(t, int64(100), f.points(t, f.alice))
	f.assertConsistent(t, f.alice)

	done, err := f.engine.ProcessRedemption(f.ctx, actor(f.cashier), r.ID)
	require.NoError(t, err)
	assert.True(t, done.Processed)
	require.NotNil(t, done.ProcessedByID)
	assert.Equal(t, f.cashier.ID, *done.ProcessedByID)
	assert.Equal(t, int64(70), f.points(t, f.alice))

	_, err = f.engine.ProcessRedemption(f.ctx, actor(f.cashier), r.ID)
	assert.ErrorIs(t, err, loyalty.ErrAlreadyProcessed)
	assert.ErrorIs(t, err, loyalty.ErrConflict)
	assert.Equal(t, int64(70), f.points(t, f.alice))
	f.assertConsistent(t, f.alice)
}

func TestRedemption_Rejections(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.alice, "5") // 20 points

	_, err := f.engine.RequestRedemption(f.ctx, actor(f.alice), ledger.RedemptionRequest{Amount: 21})
	var ipe *loyalty.InsufficientPointsError
	require.True(t, errors.As(err, &ipe))
	assert.Equal(t, int64(1), ipe.Shortfall())

	_, err = f.engine.RequestRedemption(f.ctx, actor(f.alice), ledger.RedemptionRequest{Amount: 0})
	assert.ErrorIs(t, err, loyalty.ErrInvalidInput)

	unverified := f.user(t, "carol001", loyalty.RoleRegular, false)
	require.NoError(t, f.store.UpdateUser(f.ctx, unverified.ID, loyalty.UserPatch{Verified: ptr(false)}))
	_, err = f.engine.RequestRedemption(f.ctx, actor(unverified), ledger.RedemptionRequest{Amount: 1})
	assert.ErrorIs(t, err, loyalty.ErrForbidden)

	txs, _, _ := f.store.ListTransactions(f.ctx, loyalty.TransactionFilter{})
	_, err = f.engine.ProcessRedemption(f.ctx, actor(f.cashier), txs[0].ID)
	assert.ErrorIs(t, err, loyalty.ErrWrongType)

	_, err = f.engine.ProcessRedemption(f.ctx, actor(f.cashier), 999)
	assert.ErrorIs(t, err, loyalty.ErrNotFound)
}

func TestOpenRedemption_ByCashier(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.alice, "5")

	r, err := f.engine.OpenRedemption(f.ctx, actor(f.cashier), f.alice.Email, ledger.RedemptionRequest{Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, r.UserID)
	assert.Equal(t, f.cashier.ID, r.CreatedByID)
	assert.Equal(t, int64(20), f.points(t, f.alice))

	_, err = f.engine.OpenRedemption(f.ctx, actor(f.alice), f.bob.Utorid, ledger.RedemptionRequest{Amount: 1})
	assert.ErrorIs(t, err, loyalty.ErrForbidden)
}

// =============================================================================
// TRANSFER
// =============================================================================

func TestTransfer_MovesPointsAtomically(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.alice, "10") // 40 points

	res, err := f.engine.Transfer(f.ctx, actor(f.alice), f.bob.ID, ledger.TransferRequest{Amount: 15, Remark: "lunch"})
	require.NoError(t, err)

	assert.Equal(t, int64(-15), res.Sent.Amount)
	assert.Equal(t, int64(15), res.Received.Amount)
	assert.Equal(t, f.alice.ID, res.Received.CreatedByID)
	assert.Equal(t, int64(25), f.points(t, f.alice))
	assert.Equal(t, int64(15), f.points(t, f.bob))
	f.assertConsistent(t, f.alice, f.bob)
}

func TestTransfer_FailureLeavesNoTrace(t *testing.T) {
	// GIVEN: Alice has 40 points
	// WHEN: She tries to send 41, or sends to a missing user
	// THEN: Neither balance nor the transaction log changes

	f := newFixture(t)
	f.seed(t, f.alice, "10")
	before := f.txCount(t)

	_, err := f.engine.Transfer(f.ctx, actor(f.alice), f.bob.ID, ledger.TransferRequest{Amount: 41})
	assert.ErrorIs(t, err, loyalty.ErrInsufficientPoints)

	_, err = f.engine.Transfer(f.ctx, actor(f.alice), 999, ledger.TransferRequest{Amount: 1})
	assert.ErrorIs(t, err, loyalty.ErrNotFound)

	_, err = f.engine.Transfer(f.ctx, actor(f.alice), f.alice.ID, ledger.TransferRequest{Amount: 1})
	assert.ErrorIs(t, err, loyalty.ErrInvalidInput)

	assert.Equal(t, before, f.txCount(t))
	assert.Equal(t, int64(40), f.points(t, f.alice))
	assert.Equal(t, int64(0), f.points(t, f.bob))
}

// =============================================================================
// EVENT AWARD
// =============================================================================

func (f *fixture) event(t *testing.T, budget int64, guests ...*loyalty.User) *loyalty.Event {
	t.Helper()
	e := &loyalty.Event{
		Name: "Hackathon", Description: "d", Location: "BA1160",
		StartTime:    now.Add(time.Hour),
		EndTime:      now.Add(3 * time.Hour),
		PointsRemain: budget,
		Published:    true,
	}
	require.NoError(t, f.store.CreateEvent(f.ctx, e))
	for _, g := range guests {
		require.NoError(t, f.store.AddGuest(f.ctx, e.ID, g.ID, now))
	}
	return e
}

func TestAwardEvent_AllGuests(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, 100, f.alice, f.bob)

	txs, err := f.engine.AwardEvent(f.ctx, actor(f.manager), ev.ID, ledger.AwardRequest{Amount: 30})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	for _, tx := range txs {
		require.NotNil(t, tx.EventRef)
		assert.Equal(t, ev.ID, *tx.EventRef)
		assert.Equal(t, loyalty.TxEvent, tx.Type)
	}

	got, err := f.store.GetEvent(f.ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), got.PointsRemain)
	assert.Equal(t, int64(60), got.PointsAwarded)
	assert.Equal(t, int64(30), f.points(t, f.alice))
	assert.Equal(t, int64(30), f.points(t, f.bob))
	f.assertConsistent(t, f.alice, f.bob)
}

func TestAwardEvent_BudgetNeverNegative(t *testing.T) {
	// GIVEN: An event with 50 points left and two guests
	// WHEN: Awarding 30 each (60 total)
	// THEN: InsufficientBudget, no transactions, budget untouched

	f := newFixture(t)
	ev := f.event(t, 50, f.alice, f.bob)

	_, err := f.engine.AwardEvent(f.ctx, actor(f.manager), ev.ID, ledger.AwardRequest{Amount: 30})
	var ibe *loyalty.InsufficientBudgetError
	require.True(t, errors.As(err, &ibe))
	assert.Equal(t, int64(60), ibe.Requested)

	got, _ := f.store.GetEvent(f.ctx, ev.ID)
	assert.Equal(t, int64(50), got.PointsRemain)
	assert.Equal(t, 0, f.txCount(t))
}

func TestAwardEvent_HugeAmountCannotWrapTheBudget(t *testing.T) {
	// GIVEN: A 100-point event with two guests
	// WHEN: Awarding 2^62 each, whose total wraps int64
	// THEN: InsufficientBudget, nothing credited, budget untouched

	f := newFixture(t)
	ev := f.event(t, 100, f.alice, f.bob)

	_, err := f.engine.AwardEvent(f.ctx, actor(f.manager), ev.ID, ledger.AwardRequest{Amount: 1 << 62})
	assert.ErrorIs(t, err, loyalty.ErrInsufficientBudget)

	got, err := f.store.GetEvent(f.ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.PointsRemain)
	assert.Equal(t, int64(0), got.PointsAwarded)
	assert.Equal(t, int64(0), f.points(t, f.alice))
	assert.Equal(t, 0, f.txCount(t))
}

func TestAwardEvent_Recipients(t *testing.T) {
	f := newFixture(t)
	empty := f.event(t, 50)
	ev := f.event(t, 50, f.alice)

	_, err := f.engine.AwardEvent(f.ctx, actor(f.manager), empty.ID, ledger.AwardRequest{Amount: 5})
	assert.ErrorIs(t, err, loyalty.ErrInvalidInput, "no guests")

	_, err = f.engine.AwardEvent(f.ctx, actor(f.manager), ev.ID, ledger.AwardRequest{Utorid: f.bob.Utorid, Amount: 5})
	assert.ErrorIs(t, err, loyalty.ErrInvalidInput, "bob is not a guest")

	_, err = f.engine.AwardEvent(f.ctx, actor(f.alice), ev.ID, ledger.AwardRequest{Amount: 5})
	assert.ErrorIs(t, err, loyalty.ErrForbidden)

	require.NoError(t, f.store.AddOrganizer(f.ctx, ev.ID, f.bob.ID))
	txs, err := f.engine.AwardEvent(f.ctx, actor(f.bob), ev.ID, ledger.AwardRequest{Utorid: f.alice.Utorid, Amount: 5})
	require.NoError(t, err, "organizers may award")
	assert.Len(t, txs, 1)
}

// =============================================================================
// SUSPICIOUS TOGGLE
// =============================================================================

func TestSetSuspicious_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.alice, "10")
	txs, _, _ := f.store.ListTransactions(f.ctx, loyalty.TransactionFilter{})
	id := txs[0].ID

	for i := 0; i < 2; i++ {
		_, err := f.engine.SetSuspicious(f.ctx, actor(f.manager), id, true)
		require.NoError(t, err)
		assert.Equal(t, int64(0), f.points(t, f.alice))
	}
	for i := 0; i < 2; i++ {
		_, err := f.engine.SetSuspicious(f.ctx, actor(f.manager), id, false)
		require.NoError(t, err)
		assert.Equal(t, int64(40), f.points(t, f.alice))
	}
	f.assertConsistent(t, f.alice)
}

func TestSetSuspicious_PendingRedemptionHasNoEffect(t *testing.T) {
	// An unprocessed redemption is not applied, so flagging it moves nothing,
	// and processing it while flagged keeps the deduction withheld.

	f := newFixture(t)
	f.seed(t, f.alice, "10")
	r, err := f.engine.RequestRedemption(f.ctx, actor(f.alice), ledger.RedemptionRequest{Amount: 10})
	require.NoError(t, err)

	_, err = f.engine.SetSuspicious(f.ctx, actor(f.manager), r.ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(40), f.points(t, f.alice))

	_, err = f.engine.ProcessRedemption(f.ctx, actor(f.cashier), r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), f.points(t, f.alice))

	_, err = f.engine.SetSuspicious(f.ctx, actor(f.manager), r.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(30), f.points(t, f.alice))
	f.assertConsistent(t, f.alice)
}

// =============================================================================
// BALANCE INVARIANT
// =============================================================================

func TestBalanceInvariant_MixedOperations(t *testing.T) {
	f := newFixture(t)
	promo := f.promotion(t, loyalty.PromotionAutomatic, "0.5", 3)
	ev := f.event(t, 500, f.alice, f.bob)

	steps := []func() error{
		func() error { _, err := f.engine.Purchase(f.ctx, actor(f.cashier), ledger.PurchaseRequest{Utorid: f.alice.Utorid, Spent: decimal.RequireFromString("12.34")}); return err },
		func() error { _, err := f.engine.Purchase(f.ctx, actor(f.suspect), ledger.PurchaseRequest{Utorid: f.bob.Utorid, Spent: decimal.RequireFromString("7.50")}); return err },
		func() error { _, err := f.engine.Transfer(f.ctx, actor(f.alice), f.bob.ID, ledger.TransferRequest{Amount: 10}); return err },
		func() error { _, err := f.engine.AwardEvent(f.ctx, actor(f.manager), ev.ID, ledger.AwardRequest{Amount: 25}); return err },
		func() error { _, err := f.engine.RequestRedemption(f.ctx, actor(f.bob), ledger.RedemptionRequest{Amount: 20}); return err },
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		f.assertConsistent(t, f.alice, f.bob)
	}

	txs, _, err := f.engine.List(f.ctx, actor(f.manager), loyalty.TransactionFilter{PromotionID: &promo.ID})
	require.NoError(t, err)
	assert.Len(t, txs, 2, "both purchases applied the automatic promotion")
}

func ptr[T any](v T) *T { return &v }
