/*
eligibility.go - Points earned by a purchase

PURPOSE:
  Decides which promotions apply to a purchase and how many points the
  purchase earns. Evaluate is a pure function: callers load the candidate
  promotions and the customer's one-time usage, then ask for a Result.

ALGORITHM:
  1. Automatic promotions active now whose minimum spend is met always apply.
  2. Every promotion the cashier names must exist, be active now, meet its
     minimum spend and, if one-time, not have been used by this customer.
     One failing promotion rejects the whole purchase.
  3. Both sets are merged by id so a promotion never counts twice.
  4. Each applied promotion adds its fixed points (if > 0) and
     round(spent * rate) (if rate > 0).
  5. Earned = round(spent / 0.25) + bonus.

EXAMPLE:
  $20.00 spent, one automatic promotion with rate 2.0:

    base  = round(20.00 / 0.25) = 80
    bonus = round(20.00 * 2.0)  = 40
    total = 120

ROUNDING:
  Half away from zero, on the exact decimal value. spent is positive so
  this matches rounding half up.

SEE ALSO:
  - resolver.go: loads promotions through a store
  - ledger/purchase.go: applies the Result
*/
package promotion

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campus/rewards-engine/loyalty"
)

// PointValue is the spend, in dollars, that earns one base point.
var PointValue = decimal.RequireFromString("0.25")

// Result is the outcome of Evaluate.
type Result struct {
	Base    int64
	Bonus   int64
	Applied []loyalty.Promotion
}

// Total is the number of points the purchase earns.
func (r Result) Total() int64 { return r.Base + r.Bonus }

// AppliedIDs lists applied promotions in application order.
func (r Result) AppliedIDs() []int64 {
	ids := make([]int64, len(r.Applied))
	for i, p := range r.Applied {
		ids[i] = p.ID
	}
	return ids
}

// Request is everything Evaluate needs besides the clock.
type Request struct {
	Spent decimal.Decimal

	// Automatic holds candidate automatic promotions; inactive ones and
	// ones whose minimum spend is not met are skipped.
	Automatic []loyalty.Promotion

	// Manual holds the promotions the cashier named, already loaded.
	// RequestedIDs are the ids the cashier sent; an id with no entry in
	// Manual does not exist.
	RequestedIDs []int64
	Manual       map[int64]loyalty.Promotion

	// Used reports whether the customer already consumed a promotion.
	Used map[int64]bool
}

// BasePoints returns round(spent / 0.25).
func BasePoints(spent decimal.Decimal) int64 {
	return basePoints(spent).IntPart()
}

// Bonus returns the points one promotion adds to a purchase of spent.
func Bonus(p loyalty.Promotion, spent decimal.Decimal) int64 {
	return bonus(p, spent).IntPart()
}

func basePoints(spent decimal.Decimal) decimal.Decimal {
	return spent.Div(PointValue).Round(0)
}

func bonus(p loyalty.Promotion, spent decimal.Decimal) decimal.Decimal {
	b := decimal.Zero
	if p.Points != nil && *p.Points > 0 {
		b = b.Add(decimal.NewFromInt(*p.Points))
	}
	if p.Rate != nil && p.Rate.IsPositive() {
		b = b.Add(spent.Mul(*p.Rate).Round(0))
	}
	return b
}

// Evaluate applies the promotion rules at now.
func Evaluate(req Request, now time.Time) (Result, error) {
	if !req.Spent.IsPositive() {
		return Result{}, loyalty.Invalid("spent", "must be greater than zero")
	}

	var applied []loyalty.Promotion
	seen := make(map[int64]bool)

	for _, id := range req.RequestedIDs {
		if seen[id] {
			continue
		}
		p, ok := req.Manual[id]
		if !ok {
			return Result{}, invalidPromotion(id, "does not exist")
		}
		if err := checkManual(p, req.Spent, now, req.Used[id]); err != nil {
			return Result{}, err
		}
		seen[id] = true
		applied = append(applied, p)
	}

	for _, p := range req.Automatic {
		if seen[p.ID] || p.Type != loyalty.PromotionAutomatic {
			continue
		}
		if !p.ActiveAt(now) || !p.MeetsMinimum(req.Spent) {
			continue
		}
		seen[p.ID] = true
		applied = append(applied, p)
	}

	// Sums stay in decimal until they are known to fit a balance.
	base, extra := basePoints(req.Spent), decimal.Zero
	for _, p := range applied {
		extra = extra.Add(bonus(p, req.Spent))
	}
	if !base.Add(extra).BigInt().IsInt64() {
		return Result{}, loyalty.Invalid("spent", "%s earns more points than a balance can hold", req.Spent.String())
	}
	return Result{Base: base.IntPart(), Bonus: extra.IntPart(), Applied: applied}, nil
}

func checkManual(p loyalty.Promotion, spent decimal.Decimal, now time.Time, used bool) error {
	if !p.ActiveAt(now) {
		return invalidPromotion(p.ID, "is not active")
	}
	if !p.MeetsMinimum(spent) {
		return invalidPromotion(p.ID, fmt.Sprintf("requires a minimum spend of %s", p.MinSpending.StringFixed(2)))
	}
	if p.Type == loyalty.PromotionOneTime && used {
		return invalidPromotion(p.ID, "has already been used")
	}
	return nil
}

func invalidPromotion(id int64, why string) error {
	return loyalty.Invalid("promotionIds", "promotion %d %s", id, why)
}
