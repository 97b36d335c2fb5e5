package promotion_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus/rewards-engine/loyalty"
	"github.com/campus/rewards-engine/promotion"
)

var now = time.Date(2026, time.May, 4, 15, 30, 0, 0, time.UTC)

// =============================================================================
// TEST HELPERS
// =============================================================================

type promoOpt func(*loyalty.Promotion)

func rate(r string) promoOpt {
	return func(p *loyalty.Promotion) { d := decimal.RequireFromString(r); p.Rate = &d }
}

func points(n int64) promoOpt {
	return func(p *loyalty.Promotion) { p.Points = &n }
}

func minSpend(m string) promoOpt {
	return func(p *loyalty.Promotion) { d := decimal.RequireFromString(m); p.MinSpending = &d }
}

func window(start, end time.Time) promoOpt {
	return func(p *loyalty.Promotion) { p.StartTime, p.EndTime = start, end }
}

func promo(id int64, typ loyalty.PromotionType, opts ...promoOpt) loyalty.Promotion {
	p := loyalty.Promotion{
		ID:        id,
		Name:      "p",
		Type:      typ,
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
	}
	for _, o := range opts {
		o(&p)
	}
	return p
}

func dollars(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// =============================================================================
// BASE POINTS
// =============================================================================

func TestBasePoints(t *testing.T) {
	tests := []struct {
		spent string
		want  int64
	}{
		{"20.00", 80},
		{"0.25", 1},
		{"0.12", 0},
		{"0.13", 1}, // 0.52 rounds up
		{"0.125", 1}, // exactly half
		{"12.34", 49},
		{"999.99", 4000},
	}
	for _, tt := range tests {
		t.Run(tt.spent, func(t *testing.T) {
			assert.Equal(t, tt.want, promotion.BasePoints(dollars(tt.spent)))
		})
	}
}

func TestBonus_PointsAndRateStack(t *testing.T) {
	p := promo(1, loyalty.PromotionAutomatic, rate("0.1"), points(5))
	assert.Equal(t, int64(5+2), promotion.Bonus(p, dollars("15")), "round(1.5) = 2")

	zero := promo(2, loyalty.PromotionAutomatic, rate("0"), points(0))
	assert.Equal(t, int64(0), promotion.Bonus(zero, dollars("15")))
}

// =============================================================================
// EVALUATE
// =============================================================================

func TestEvaluate_AutomaticRate(t *testing.T) {
	// GIVEN: One automatic promotion with rate 2.0
	// WHEN: $20.00 is spent with no named promotions
	// THEN: base 80 + bonus 40

	res, err := promotion.Evaluate(promotion.Request{
		Spent:     dollars("20.00"),
		Automatic: []loyalty.Promotion{promo(1, loyalty.PromotionAutomatic, rate("2.0"))},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, int64(80), res.Base)
	assert.Equal(t, int64(40), res.Bonus)
	assert.Equal(t, int64(120), res.Total())
	assert.Equal(t, []int64{1}, res.AppliedIDs())
}

func TestEvaluate_AutomaticFiltering(t *testing.T) {
	auto := []loyalty.Promotion{
		promo(1, loyalty.PromotionAutomatic, points(10)),
		promo(2, loyalty.PromotionAutomatic, points(20), minSpend("50")),
		promo(3, loyalty.PromotionAutomatic, points(30), window(now.Add(time.Hour), now.Add(2*time.Hour))),
		promo(4, loyalty.PromotionOneTime, points(40)),
		promo(5, loyalty.PromotionAutomatic, points(50), window(now.Add(-time.Hour), now)),
	}

	res, err := promotion.Evaluate(promotion.Request{Spent: dollars("10"), Automatic: auto}, now)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 5}, res.AppliedIDs(), "below minimum, future and one-time skipped; end is inclusive")
	assert.Equal(t, int64(60), res.Bonus)
}

func TestEvaluate_ManualAllOrNothing(t *testing.T) {
	good := promo(10, loyalty.PromotionOneTime, points(25))
	expired := promo(11, loyalty.PromotionOneTime, points(25), window(now.Add(-2*time.Hour), now.Add(-time.Hour)))
	pricey := promo(12, loyalty.PromotionOneTime, points(25), minSpend("100"))
	manual := map[int64]loyalty.Promotion{10: good, 11: expired, 12: pricey}

	tests := []struct {
		name string
		ids  []int64
		used map[int64]bool
	}{
		{"missing", []int64{10, 99}, nil},
		{"expired", []int64{10, 11}, nil},
		{"below minimum", []int64{12, 10}, nil},
		{"already used", []int64{10}, map[int64]bool{10: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := promotion.Evaluate(promotion.Request{
				Spent:        dollars("10"),
				RequestedIDs: tt.ids,
				Manual:       manual,
				Used:         tt.used,
			}, now)
			var ve *loyalty.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "promotionIds", ve.Field)
			assert.ErrorIs(t, err, loyalty.ErrInvalidInput)
		})
	}
}

func TestEvaluate_MergeNeverDoubleCounts(t *testing.T) {
	// GIVEN: An automatic promotion that the cashier also names, twice
	// WHEN: Evaluated
	// THEN: It applies once

	auto := promo(1, loyalty.PromotionAutomatic, points(10))
	res, err := promotion.Evaluate(promotion.Request{
		Spent:        dollars("4"),
		Automatic:    []loyalty.Promotion{auto},
		RequestedIDs: []int64{1, 1},
		Manual:       map[int64]loyalty.Promotion{1: auto},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, res.AppliedIDs())
	assert.Equal(t, int64(16+10), res.Total())
}

func TestEvaluate_UsedAutomaticStillApplies(t *testing.T) {
	auto := promo(1, loyalty.PromotionAutomatic, points(10))
	res, err := promotion.Evaluate(promotion.Request{
		Spent:        dollars("1"),
		RequestedIDs: []int64{1},
		Manual:       map[int64]loyalty.Promotion{1: auto},
		Used:         map[int64]bool{1: true},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(14), res.Total())
}

func TestEvaluate_SpentMustBePositive(t *testing.T) {
	for _, s := range []string{"0", "-1"} {
		_, err := promotion.Evaluate(promotion.Request{Spent: dollars(s)}, now)
		assert.ErrorIs(t, err, loyalty.ErrInvalidInput, s)
	}
}
