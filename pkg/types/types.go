// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the exchange — symbols, pairs,
// operations, and OHLCV bars. It has no dependencies on internal packages,
// so it can be imported by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// Sign returns +1 for BUY and -1 for SELL. This is the sign convention
// applied to the base-symbol leg of every balance update: BUY orders
// receive base (positive) and pay quote (negative), SELL orders are the
// mirror image.
func (s Side) Sign() int64 {
	if s == SELL {
		return -1
	}
	return 1
}

// OrderState is the lifecycle state of an order.
type OrderState string

const (
	StateOpen      OrderState = "OPEN"
	StateCompleted OrderState = "COMPLETED"
	StateCanceled  OrderState = "CANCELED"
)

// OrderKind distinguishes the four order variants. Kept as a string enum,
// the same shape as Side, rather than separate Go types per kind, since
// callers need to switch on kind for both validation and fill logic.
type OrderKind string

const (
	KindMarket    OrderKind = "MARKET"
	KindLimit     OrderKind = "LIMIT"
	KindStop      OrderKind = "STOP"
	KindStopLimit OrderKind = "STOP_LIMIT"
)

// ————————————————————————————————————————————————————————————————————————
// Symbols and pairs
// ————————————————————————————————————————————————————————————————————————

// Symbol is an opaque asset identifier, e.g. "BTC" or "USDT".
type Symbol string

// Pair is an ordered (base, quote) tuple. Pair is comparable, so it can be
// used directly as a map key — this is what "equality and hashability on
// both" in the data model means in Go terms.
type Pair struct {
	Base  Symbol
	Quote Symbol
}

// String renders the pair as "BASE/QUOTE", used in error messages and logs.
func (p Pair) String() string {
	return string(p.Base) + "/" + string(p.Quote)
}

// PairInfo carries the fixed-point precision used to round fills for a pair.
type PairInfo struct {
	BasePrecision  int32
	QuotePrecision int32
}

// DefaultPairInfo is used for any pair without an explicit PairInfo.
var DefaultPairInfo = PairInfo{BasePrecision: 0, QuotePrecision: 2}

// ————————————————————————————————————————————————————————————————————————
// Bars
// ————————————————————————————————————————————————————————————————————————

// Bar is one OHLCV candle for a single pair over one interval. All price
// and volume fields are exact decimals — backtesting correctness depends
// on never losing precision to float64 rounding between bars.
type Bar struct {
	Pair     Pair
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
	DateTime time.Time
}
