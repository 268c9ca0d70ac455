// Package fees models the per-fill cost charged on top of a balance update.
// A Strategy is configured once per exchange and applied to every fill of
// every order, regardless of pair.
package fees

import (
	"github.com/shopspring/decimal"

	"github.com/SamiKoh/paperex/internal/orders"
	"github.com/SamiKoh/paperex/pkg/types"
)

// Strategy computes the fees owed for an order, given the signed balance
// updates a fill (or, at pre-acceptance time, an estimated fill) would
// produce. order carries the pair and anything else a richer strategy
// might key off (kind, side, amount); a strategy that only cares about
// the pair can call order.Pair() and ignore the rest. Estimation calls
// this with a throwaway order (id "temporary") built from the request,
// since no real order exists yet. Implementations must not mutate
// balanceUpdates.
type Strategy interface {
	CalculateFees(order *orders.Order, balanceUpdates map[types.Symbol]decimal.Decimal) map[types.Symbol]decimal.Decimal
}

// NoFee charges nothing. It's the default for exchanges that only care
// about matching and slippage.
type NoFee struct{}

// CalculateFees always returns an empty fee set.
func (NoFee) CalculateFees(*orders.Order, map[types.Symbol]decimal.Decimal) map[types.Symbol]decimal.Decimal {
	return map[types.Symbol]decimal.Decimal{}
}

// PercentageFee charges a flat percentage of the quote leg of a fill,
// always as a positive (debited) amount regardless of whether that leg
// was a credit (SELL) or a debit (BUY).
type PercentageFee struct {
	// Percentage is a fraction, e.g. 0.001 for 10 bps.
	Percentage decimal.Decimal
}

// CalculateFees charges Percentage of the absolute quote-leg update. Pairs
// whose fill produced no quote-leg update (shouldn't happen in practice)
// are charged nothing.
func (p PercentageFee) CalculateFees(order *orders.Order, balanceUpdates map[types.Symbol]decimal.Decimal) map[types.Symbol]decimal.Decimal {
	pair := order.Pair()
	quoteDelta, ok := balanceUpdates[pair.Quote]
	if !ok || quoteDelta.IsZero() {
		return map[types.Symbol]decimal.Decimal{}
	}
	fee := quoteDelta.Abs().Mul(p.Percentage)
	if fee.IsZero() {
		return map[types.Symbol]decimal.Decimal{}
	}
	return map[types.Symbol]decimal.Decimal{pair.Quote: fee}
}
