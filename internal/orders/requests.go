package orders

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/SamiKoh/paperex/pkg/types"
)

// Request is an order submission before it has been accepted by the
// exchange: validated, used to estimate required balances, then turned
// into a concrete Order once balances have been checked.
type Request interface {
	Pair() types.Pair
	Operation() types.Side
	Amount() decimal.Decimal
	// Validate checks the request against a pair's precision, returning a
	// descriptive error for anything a user could have gotten wrong.
	Validate(info types.PairInfo) error
	// EstimatedFillPrice returns the price required-balance estimation
	// should use, if the request carries one: the limit price for Limit
	// orders, the stop price for Stop/StopLimit, nothing for Market.
	EstimatedFillPrice() (decimal.Decimal, bool)
	// CreateOrder turns the request into a live Order with the given id.
	CreateOrder(id string) *Order
}

func validateCommon(op types.Side, amount decimal.Decimal, info types.PairInfo) error {
	if op != types.BUY && op != types.SELL {
		return fmt.Errorf("invalid operation %q", op)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be > 0, got %s", amount)
	}
	if !amount.Truncate(info.BasePrecision).Equal(amount) {
		return fmt.Errorf("amount %s has more precision than base_precision=%d allows", amount, info.BasePrecision)
	}
	return nil
}

func validatePrice(name string, price decimal.Decimal, quotePrecision int32) error {
	if !price.IsPositive() {
		return fmt.Errorf("%s must be > 0, got %s", name, price)
	}
	if !price.Truncate(quotePrecision).Equal(price) {
		return fmt.Errorf("%s %s has more precision than quote_precision=%d allows", name, price, quotePrecision)
	}
	return nil
}

// MarketRequest requests an immediate fill against available liquidity.
type MarketRequest struct {
	Op    types.Side
	PairV types.Pair
	Amt   decimal.Decimal
}

func (r MarketRequest) Pair() types.Pair { return r.PairV }
func (r MarketRequest) Operation() types.Side { return r.Op }
func (r MarketRequest) Amount() decimal.Decimal { return r.Amt }

func (r MarketRequest) Validate(info types.PairInfo) error {
	return validateCommon(r.Op, r.Amt, info)
}

func (r MarketRequest) EstimatedFillPrice() (decimal.Decimal, bool) {
	return decimal.Decimal{}, false
}

func (r MarketRequest) CreateOrder(id string) *Order {
	return &Order{
		id: id, operation: r.Op, pair: r.PairV, amount: r.Amt,
		state: types.StateOpen, kind: types.KindMarket,
	}
}

// LimitRequest requests a fill at LimitPrice or better.
type LimitRequest struct {
	Op         types.Side
	PairV      types.Pair
	Amt        decimal.Decimal
	LimitPrice decimal.Decimal
}

func (r LimitRequest) Pair() types.Pair { return r.PairV }
func (r LimitRequest) Operation() types.Side { return r.Op }
func (r LimitRequest) Amount() decimal.Decimal { return r.Amt }

func (r LimitRequest) Validate(info types.PairInfo) error {
	if err := validateCommon(r.Op, r.Amt, info); err != nil {
		return err
	}
	return validatePrice("limit_price", r.LimitPrice, info.QuotePrecision)
}

func (r LimitRequest) EstimatedFillPrice() (decimal.Decimal, bool) {
	return r.LimitPrice, true
}

func (r LimitRequest) CreateOrder(id string) *Order {
	return &Order{
		id: id, operation: r.Op, pair: r.PairV, amount: r.Amt,
		state: types.StateOpen, kind: types.KindLimit, limitPrice: r.LimitPrice,
	}
}

// StopRequest requests a Market fill once the bar range crosses StopPrice.
type StopRequest struct {
	Op        types.Side
	PairV     types.Pair
	Amt       decimal.Decimal
	StopPrice decimal.Decimal
}

func (r StopRequest) Pair() types.Pair { return r.PairV }
func (r StopRequest) Operation() types.Side { return r.Op }
func (r StopRequest) Amount() decimal.Decimal { return r.Amt }

func (r StopRequest) Validate(info types.PairInfo) error {
	if err := validateCommon(r.Op, r.Amt, info); err != nil {
		return err
	}
	return validatePrice("stop_price", r.StopPrice, info.QuotePrecision)
}

func (r StopRequest) EstimatedFillPrice() (decimal.Decimal, bool) {
	return r.StopPrice, true
}

func (r StopRequest) CreateOrder(id string) *Order {
	return &Order{
		id: id, operation: r.Op, pair: r.PairV, amount: r.Amt,
		state: types.StateOpen, kind: types.KindStop, stopPrice: r.StopPrice,
	}
}

// StopLimitRequest requests a Limit fill at LimitPrice once the bar range
// crosses StopPrice.
type StopLimitRequest struct {
	Op         types.Side
	PairV      types.Pair
	Amt        decimal.Decimal
	StopPrice  decimal.Decimal
	LimitPrice decimal.Decimal
}

func (r StopLimitRequest) Pair() types.Pair { return r.PairV }
func (r StopLimitRequest) Operation() types.Side { return r.Op }
func (r StopLimitRequest) Amount() decimal.Decimal { return r.Amt }

func (r StopLimitRequest) Validate(info types.PairInfo) error {
	if err := validateCommon(r.Op, r.Amt, info); err != nil {
		return err
	}
	if err := validatePrice("stop_price", r.StopPrice, info.QuotePrecision); err != nil {
		return err
	}
	return validatePrice("limit_price", r.LimitPrice, info.QuotePrecision)
}

func (r StopLimitRequest) EstimatedFillPrice() (decimal.Decimal, bool) {
	return r.StopPrice, true
}

func (r StopLimitRequest) CreateOrder(id string) *Order {
	return &Order{
		id: id, operation: r.Op, pair: r.PairV, amount: r.Amt,
		state: types.StateOpen, kind: types.KindStopLimit,
		stopPrice: r.StopPrice, limitPrice: r.LimitPrice,
	}
}
