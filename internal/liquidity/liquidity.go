// Package liquidity models how much of a bar's volume is available to fill
// against, and the slippage consuming it incurs. A Strategy is created
// per pair and lives across every bar of that pair; the exchange resets it
// at the start of each bar via OnBar and drains it via TakeLiquidity as
// orders fill.
//
// The bookkeeping is a token bucket with a per-bar refill: a budget, a
// current level, and a Take-style operation with a precondition. Unlike a
// rate limiter's continuous wall-clock refill, the budget resets once, at
// the start of each bar.
package liquidity

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/SamiKoh/paperex/pkg/types"
)

// Strategy bounds how much base volume can fill in the current bar and
// how much slippage consuming part of that budget incurs. Implementations
// are stateful across the bars of a single pair.
type Strategy interface {
	// OnBar resets the strategy's internal liquidity budget for a new bar.
	OnBar(bar types.Bar)
	// AvailableLiquidity returns the remaining fillable base volume this bar.
	AvailableLiquidity() decimal.Decimal
	// CalculatePriceImpact returns the non-negative slippage fraction that
	// filling baseAmount more base units would incur. Monotonic
	// non-decreasing in baseAmount. Callers apply the direction (BUY raises
	// price, SELL lowers it); the strategy itself is side-agnostic.
	CalculatePriceImpact(baseAmount decimal.Decimal) decimal.Decimal
	// TakeLiquidity decrements the available budget by baseAmount.
	// Precondition: baseAmount <= AvailableLiquidity().
	TakeLiquidity(baseAmount decimal.Decimal)
}

// Factory constructs a fresh Strategy for a pair the first time the
// exchange sees a bar for it.
type Factory func() Strategy

// VolumeShareImpact is the reference liquidity model: the fillable budget
// for a bar is a configured share of that bar's reported volume, and price
// impact grows quadratically in the fraction of that budget consumed,
// reaching MaxImpact exactly when the budget is exhausted.
type VolumeShareImpact struct {
	shareFactor decimal.Decimal
	maxImpact   decimal.Decimal

	budget    decimal.Decimal // total fillable base volume for the current bar
	available decimal.Decimal
}

// NewVolumeShareImpact builds a factory for VolumeShareImpact instances,
// one per pair, each configured with the same shareFactor (e.g. 0.25 for
// 25% of bar volume) and maxImpact (e.g. 0.001 for 0.1% at full exhaustion).
func NewVolumeShareImpact(shareFactor, maxImpact decimal.Decimal) Factory {
	return func() Strategy {
		return &VolumeShareImpact{shareFactor: shareFactor, maxImpact: maxImpact}
	}
}

// OnBar resets the available budget to shareFactor * bar.Volume.
func (v *VolumeShareImpact) OnBar(bar types.Bar) {
	v.budget = bar.Volume.Mul(v.shareFactor)
	v.available = v.budget
}

// AvailableLiquidity returns the remaining fillable base volume this bar.
func (v *VolumeShareImpact) AvailableLiquidity() decimal.Decimal {
	return v.available
}

// CalculatePriceImpact computes maxImpact * (consumedFraction)^2 where
// consumedFraction = (already-consumed + baseAmount) / budget, clamped to
// [0, 1] so a caller that asks about more than the whole budget still gets
// a bounded answer rather than runaway slippage.
func (v *VolumeShareImpact) CalculatePriceImpact(baseAmount decimal.Decimal) decimal.Decimal {
	if v.budget.IsZero() {
		return v.maxImpact
	}
	consumed := v.budget.Sub(v.available).Add(baseAmount)
	fraction := consumed.Div(v.budget)
	if fraction.GreaterThan(decimal.NewFromInt(1)) {
		fraction = decimal.NewFromInt(1)
	}
	if fraction.IsNegative() {
		fraction = decimal.Zero
	}
	return v.maxImpact.Mul(fraction).Mul(fraction)
}

// TakeLiquidity decrements the available budget. Panics if baseAmount
// exceeds what's left — the matching loop always calls this with the same
// amount it already confirmed fits, so an overdraw is a programming error.
func (v *VolumeShareImpact) TakeLiquidity(baseAmount decimal.Decimal) {
	if baseAmount.GreaterThan(v.available) {
		panic(fmt.Sprintf("paperex: take_liquidity(%s) exceeds available %s", baseAmount, v.available))
	}
	v.available = v.available.Sub(baseAmount)
}

// FixedSlippage is a second, much simpler conforming Strategy: a constant
// per-bar liquidity budget and a constant price impact regardless of how
// much of the budget has been consumed. It exists to prove the liquidity
// interface is genuinely pluggable, not just a single hardcoded path
// through the matching loop.
type FixedSlippage struct {
	capacity decimal.Decimal
	impact   decimal.Decimal

	available decimal.Decimal
}

// NewFixedSlippage builds a factory for FixedSlippage instances, each
// with the same per-bar capacity and constant impact fraction.
func NewFixedSlippage(capacity, impact decimal.Decimal) Factory {
	return func() Strategy {
		return &FixedSlippage{capacity: capacity, impact: impact}
	}
}

// OnBar refills the budget back to capacity, ignoring the bar's own volume.
func (f *FixedSlippage) OnBar(types.Bar) {
	f.available = f.capacity
}

// AvailableLiquidity returns the remaining fillable base volume this bar.
func (f *FixedSlippage) AvailableLiquidity() decimal.Decimal {
	return f.available
}

// CalculatePriceImpact always returns the configured constant impact.
func (f *FixedSlippage) CalculatePriceImpact(decimal.Decimal) decimal.Decimal {
	return f.impact
}

// TakeLiquidity decrements the available budget.
func (f *FixedSlippage) TakeLiquidity(baseAmount decimal.Decimal) {
	if baseAmount.GreaterThan(f.available) {
		panic(fmt.Sprintf("paperex: take_liquidity(%s) exceeds available %s", baseAmount, f.available))
	}
	f.available = f.available.Sub(baseAmount)
}
