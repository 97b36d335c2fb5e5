package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus/rewards-engine/api"
	"github.com/campus/rewards-engine/ledger"
	"github.com/campus/rewards-engine/loyalty"
)

func TestAuditScheduler_RunOnceFindsDrift(t *testing.T) {
	hs := newHarness(t)
	cashier := hs.users["cashier1"]

	// GIVEN: Two purchases recorded through the ledger
	for _, utorid := range []string{"alice001", "bob00001"} {
		_, err := hs.handler.Ledger.Purchase(hs.ctx, loyalty.Actor{UserID: cashier.ID, Role: cashier.Role},
			ledger.PurchaseRequest{Utorid: utorid, Spent: decimal.NewFromInt(5)})
		require.NoError(t, err)
	}
	// AND: A balance edited behind the ledger's back
	require.NoError(t, hs.store.AddPoints(hs.ctx, hs.users["bob00001"].ID, 7))

	scheduler := api.NewAuditScheduler(hs.store, time.Hour)
	scheduler.Now = func() time.Time { return now }

	// WHEN: One pass runs
	run, err := scheduler.RunOnce(context.Background())
	require.NoError(t, err)

	// THEN: Only bob drifted, and the pass is kept
	assert.Equal(t, 5, run.Users)
	require.Len(t, run.Drifted, 1)
	assert.Equal(t, hs.users["bob00001"].ID, run.Drifted[0].UserID)
	assert.Equal(t, int64(27), run.Drifted[0].Stored)
	assert.Equal(t, int64(20), run.Drifted[0].Replayed)
	assert.Same(t, run, scheduler.LastRun())
	assert.True(t, run.StartedAt.Equal(now))
}

func TestAuditScheduler_ZeroIntervalDisables(t *testing.T) {
	hs := newHarness(t)

	scheduler := api.NewAuditScheduler(hs.store, 0)
	scheduler.Start()
	scheduler.Stop()

	assert.False(t, scheduler.Enabled)
	assert.Nil(t, scheduler.LastRun())
}

func TestAuditScheduler_StartRunsImmediately(t *testing.T) {
	hs := newHarness(t)

	scheduler := api.NewAuditScheduler(hs.store, time.Hour)
	scheduler.Start()
	require.Eventually(t, func() bool { return scheduler.LastRun() != nil }, time.Second, 10*time.Millisecond)
	scheduler.Stop()
	scheduler.Stop()

	assert.Equal(t, 5, scheduler.LastRun().Users)
	assert.Empty(t, scheduler.LastRun().Drifted)
}
