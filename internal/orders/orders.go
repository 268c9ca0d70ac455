// Package orders implements the order model: the four order variants
// (Market, Limit, Stop, StopLimit), their state machine, and the per-bar
// fill computation against a liquidity strategy.
//
// Variants are modeled as tagged fields on one concrete Order struct (kind
// plus the kind-specific parameters) rather than four separate exported
// types, because the order index and the exchange need to store and compare
// orders by id regardless of kind; fill logic dispatches on the kind tag.
package orders

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/SamiKoh/paperex/internal/fixedpoint"
	"github.com/SamiKoh/paperex/internal/liquidity"
	"github.com/SamiKoh/paperex/pkg/types"
)

// Order is one resting order in the exchange. Balance mutation never
// happens on Order itself — GetBalanceUpdates only computes what a fill
// would look like; AddFill is the one place amount_filled/fees/state
// actually change, called by the exchange only after it has decided the
// fill is affordable.
type Order struct {
	id           string
	operation    types.Side
	pair         types.Pair
	amount       decimal.Decimal
	amountFilled decimal.Decimal
	fees         map[types.Symbol]decimal.Decimal
	state        types.OrderState
	kind         types.OrderKind

	limitPrice decimal.Decimal // Limit, StopLimit
	stopPrice  decimal.Decimal // Stop, StopLimit
	triggered  bool            // Stop, StopLimit
}

// ID returns the order's 128-bit hex identifier.
func (o *Order) ID() string { return o.id }

// Operation returns BUY or SELL.
func (o *Order) Operation() types.Side { return o.operation }

// Pair returns the traded pair.
func (o *Order) Pair() types.Pair { return o.pair }

// Amount returns the total requested base amount.
func (o *Order) Amount() decimal.Decimal { return o.amount }

// AmountFilled returns the cumulative filled base amount.
func (o *Order) AmountFilled() decimal.Decimal { return o.amountFilled }

// State returns the order's lifecycle state.
func (o *Order) State() types.OrderState { return o.state }

// IsOpen reports whether the order can still receive fills.
func (o *Order) IsOpen() bool { return o.state == types.StateOpen }

// Kind returns the order variant.
func (o *Order) Kind() types.OrderKind { return o.kind }

// LimitPrice returns the limit price for Limit/StopLimit orders.
func (o *Order) LimitPrice() decimal.Decimal { return o.limitPrice }

// StopPrice returns the stop price for Stop/StopLimit orders.
func (o *Order) StopPrice() decimal.Decimal { return o.stopPrice }

// Triggered reports whether a Stop/StopLimit order's trigger has fired.
func (o *Order) Triggered() bool { return o.triggered }

// Fees returns a copy of the fees accumulated across all fills so far.
func (o *Order) Fees() map[types.Symbol]decimal.Decimal {
	out := make(map[types.Symbol]decimal.Decimal, len(o.fees))
	for symbol, amount := range o.fees {
		out[symbol] = amount
	}
	return out
}

// Cancel transitions an open order to CANCELED. The caller (exchange) is
// responsible for releasing balance holds; Order itself never touches
// balances.
func (o *Order) Cancel() {
	if !o.IsOpen() {
		panic(fmt.Sprintf("paperex: cancel called on order %s in state %s", o.id, o.state))
	}
	o.state = types.StateCanceled
}

// GetBalanceUpdates computes the unrounded, pre-fee effect of one bar's
// worth of fill on this order, without mutating amount_filled, fees, or
// state. It may flip the Stop/StopLimit trigger latch, since that is not
// part of the state machine the matching loop asserts is unchanged.
//
// Returns a nil map when nothing is fillable this bar.
func (o *Order) GetBalanceUpdates(bar types.Bar, liq liquidity.Strategy) map[types.Symbol]decimal.Decimal {
	remaining := o.amount.Sub(o.amountFilled)
	if !remaining.IsPositive() {
		return nil
	}

	switch o.kind {
	case types.KindMarket:
		return o.marketFill(bar, liq, remaining, bar.Open)
	case types.KindLimit:
		return o.limitFill(bar, liq, remaining, o.limitPrice)
	case types.KindStop:
		return o.stopFill(bar, liq, remaining)
	case types.KindStopLimit:
		return o.stopLimitFill(bar, liq, remaining)
	default:
		panic(fmt.Sprintf("paperex: unknown order kind %q", o.kind))
	}
}

// marketFill fills up to the available liquidity at referencePrice,
// adjusted by price impact in the direction of the order's side.
func (o *Order) marketFill(bar types.Bar, liq liquidity.Strategy, remaining, referencePrice decimal.Decimal) map[types.Symbol]decimal.Decimal {
	fillable := decimal.Min(remaining, liq.AvailableLiquidity())
	if !fillable.IsPositive() {
		return nil
	}

	impact := liq.CalculatePriceImpact(fillable)
	price := applyImpact(o.operation, referencePrice, impact)
	return balanceUpdates(o.pair, o.operation, fillable, price)
}

// limitFill fills up to the available liquidity at min/max(limitPrice,
// bar.Open), adjusted by price impact but clamped so the executed price
// never crosses limitPrice.
func (o *Order) limitFill(bar types.Bar, liq liquidity.Strategy, remaining, limitPrice decimal.Decimal) map[types.Symbol]decimal.Decimal {
	if !limitAdmits(o.operation, bar, limitPrice) {
		return nil
	}

	fillable := decimal.Min(remaining, liq.AvailableLiquidity())
	if !fillable.IsPositive() {
		return nil
	}

	basePrice := limitBasePrice(o.operation, bar.Open, limitPrice)
	impact := liq.CalculatePriceImpact(fillable)
	price := clampToLimit(o.operation, applyImpact(o.operation, basePrice, impact), limitPrice)
	return balanceUpdates(o.pair, o.operation, fillable, price)
}

// stopFill activates the order the first bar its range crosses stopPrice,
// filling at the worst-of price for that bar, then behaves as a Market
// order (referenced off bar.Open, with price impact) on every later bar.
func (o *Order) stopFill(bar types.Bar, liq liquidity.Strategy, remaining decimal.Decimal) map[types.Symbol]decimal.Decimal {
	if !o.triggered {
		if !stopActivates(o.operation, bar, o.stopPrice) {
			return nil
		}
		o.triggered = true
		worstOf := stopWorstOfPrice(o.operation, bar.Open, o.stopPrice)
		return o.marketFill(bar, liq, remaining, worstOf)
	}
	return o.marketFill(bar, liq, remaining, bar.Open)
}

// stopLimitFill activates the order the first bar its range crosses
// stopPrice, and from that bar on (inclusive) behaves exactly like a Limit
// order at limitPrice.
func (o *Order) stopLimitFill(bar types.Bar, liq liquidity.Strategy, remaining decimal.Decimal) map[types.Symbol]decimal.Decimal {
	if !o.triggered {
		if !stopActivates(o.operation, bar, o.stopPrice) {
			return nil
		}
		o.triggered = true
	}
	return o.limitFill(bar, liq, remaining, o.limitPrice)
}

// NotFilled is invoked by the exchange when GetBalanceUpdates produced
// nothing viable this bar (including after rounding/affordability
// rejection). Market orders always cancel, whether or not they carry
// partial fills — a Market order stalled by exhausted liquidity never
// dangles across bars. Other kinds simply remain open, waiting for a
// future bar.
func (o *Order) NotFilled() {
	if o.kind == types.KindMarket && o.IsOpen() {
		o.state = types.StateCanceled
	}
}

// AddFill commits a fill: increments amount_filled by the base leg of
// updates, accumulates fees, and completes the order if it is now fully
// filled. Called only after the exchange has confirmed updates+fees are
// affordable.
func (o *Order) AddFill(updates, fees map[types.Symbol]decimal.Decimal) {
	baseDelta := updates[o.pair.Base]
	o.amountFilled = o.amountFilled.Add(baseDelta.Abs())

	if o.fees == nil {
		o.fees = make(map[types.Symbol]decimal.Decimal)
	}
	for symbol, amount := range fees {
		o.fees[symbol] = o.fees[symbol].Add(amount)
	}

	if o.amountFilled.Equal(o.amount) {
		o.state = types.StateCompleted
	}
}

// ————————————————————————————————————————————————————————————————————————
// Shared fill helpers
// ————————————————————————————————————————————————————————————————————————

// balanceUpdates builds the signed {base, quote} map for a fillableBase
// amount executed at price: base gets the order's sign, quote the
// opposite.
func balanceUpdates(pair types.Pair, op types.Side, fillableBase, price decimal.Decimal) map[types.Symbol]decimal.Decimal {
	sign := decimal.NewFromInt(op.Sign())
	baseDelta := fillableBase.Mul(sign)
	quoteDelta := fillableBase.Mul(price).Mul(sign).Neg()
	return map[types.Symbol]decimal.Decimal{
		pair.Base:  baseDelta,
		pair.Quote: quoteDelta,
	}
}

// applyImpact shifts price by impact (a non-negative fraction) in the
// direction that disadvantages the order's side: up for BUY, down for
// SELL.
func applyImpact(op types.Side, price, impact decimal.Decimal) decimal.Decimal {
	adjustment := price.Mul(impact)
	if op == types.SELL {
		return price.Sub(adjustment)
	}
	return price.Add(adjustment)
}

// limitAdmits reports whether the bar's range reaches the limit price at
// all: BUY needs the low at or below the limit, SELL needs the high at or
// above it.
func limitAdmits(op types.Side, bar types.Bar, limitPrice decimal.Decimal) bool {
	if op == types.SELL {
		return bar.High.GreaterThanOrEqual(limitPrice)
	}
	return bar.Low.LessThanOrEqual(limitPrice)
}

// limitBasePrice picks the better of the limit price and the bar's open:
// the lowest price a BUY could pay, the highest a SELL could receive.
func limitBasePrice(op types.Side, open, limitPrice decimal.Decimal) decimal.Decimal {
	if op == types.SELL {
		return decimal.Max(limitPrice, open)
	}
	return decimal.Min(limitPrice, open)
}

// clampToLimit prevents price impact from pushing the executed price past
// the order's limit.
func clampToLimit(op types.Side, price, limitPrice decimal.Decimal) decimal.Decimal {
	if op == types.SELL {
		return decimal.Max(price, limitPrice)
	}
	return decimal.Min(price, limitPrice)
}

// stopActivates reports whether this bar's range crosses the stop price:
// BUY triggers on a high at or above it, SELL on a low at or below it.
func stopActivates(op types.Side, bar types.Bar, stopPrice decimal.Decimal) bool {
	if op == types.SELL {
		return bar.Low.LessThanOrEqual(stopPrice)
	}
	return bar.High.GreaterThanOrEqual(stopPrice)
}

// stopWorstOfPrice is the fill price at the instant a stop triggers: the
// worse of the bar's open and the stop price, from the order's
// perspective.
func stopWorstOfPrice(op types.Side, open, stopPrice decimal.Decimal) decimal.Decimal {
	if op == types.SELL {
		return decimal.Min(open, stopPrice)
	}
	return decimal.Max(open, stopPrice)
}

// RoundBalanceUpdates applies the matching loop's rounding discipline:
// base is truncated toward zero, quote is rounded half-even, and any
// entry that rounds to zero is dropped. Exported because the exchange's
// required-balance estimation (done before an Order even exists) needs
// the identical rounding behavior.
func RoundBalanceUpdates(info types.PairInfo, pair types.Pair, updates map[types.Symbol]decimal.Decimal) map[types.Symbol]decimal.Decimal {
	out := make(map[types.Symbol]decimal.Decimal, len(updates))
	for symbol, amount := range updates {
		out[symbol] = amount
	}

	if base, ok := out[pair.Base]; ok {
		out[pair.Base] = fixedpoint.Truncate(base, info.BasePrecision)
	}
	if quote, ok := out[pair.Quote]; ok {
		out[pair.Quote] = fixedpoint.RoundHalfEven(quote, info.QuotePrecision)
	}
	return removeZeroAmounts(out)
}

// RoundFees rounds each fee up (away from zero) to the precision of its
// symbol, when that symbol is the pair's base or quote. Fees in any other
// symbol are left unrounded, since their precision isn't known.
func RoundFees(info types.PairInfo, pair types.Pair, fees map[types.Symbol]decimal.Decimal) map[types.Symbol]decimal.Decimal {
	out := make(map[types.Symbol]decimal.Decimal, len(fees))
	for symbol, amount := range fees {
		switch symbol {
		case pair.Base:
			out[symbol] = fixedpoint.RoundUp(amount, info.BasePrecision)
		case pair.Quote:
			out[symbol] = fixedpoint.RoundUp(amount, info.QuotePrecision)
		default:
			out[symbol] = amount
		}
	}
	return removeZeroAmounts(out)
}

// AddAmounts merges b into a, componentwise, returning a new map.
func AddAmounts(a, b map[types.Symbol]decimal.Decimal) map[types.Symbol]decimal.Decimal {
	out := make(map[types.Symbol]decimal.Decimal, len(a)+len(b))
	for symbol, amount := range a {
		out[symbol] = amount
	}
	for symbol, amount := range b {
		out[symbol] = out[symbol].Add(amount)
	}
	return removeZeroAmounts(out)
}

func removeZeroAmounts(m map[types.Symbol]decimal.Decimal) map[types.Symbol]decimal.Decimal {
	for symbol, amount := range m {
		if amount.IsZero() {
			delete(m, symbol)
		}
	}
	return m
}
