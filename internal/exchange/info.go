package exchange

import (
	"github.com/shopspring/decimal"

	"github.com/SamiKoh/paperex/pkg/types"
)

// Balance is a read-only snapshot of one symbol's available and total
// (available + on hold) balance.
type Balance struct {
	Available decimal.Decimal
	Total     decimal.Decimal
}

// OrderInfo is a read-only snapshot of one order, returned by GetOrderInfo.
// It never aliases the live *orders.Order so callers can't reach past the
// exchange's single thread of control.
type OrderInfo struct {
	ID           string
	Operation    types.Side
	Pair         types.Pair
	Kind         types.OrderKind
	Amount       decimal.Decimal
	AmountFilled decimal.Decimal
	State        types.OrderState
	Fees         map[types.Symbol]decimal.Decimal
	LimitPrice   decimal.Decimal
	StopPrice    decimal.Decimal
	Triggered    bool
}

// CreatedOrder is the result of a successful CreateOrder call: just the
// new order's id, so a caller never gets a handle to more than that.
type CreatedOrder struct {
	ID string
}

// CanceledOrder is the result of a successful CancelOrder call.
type CanceledOrder struct {
	ID string
}

// OpenOrderInfo is a read-only snapshot of one open order, returned by
// GetOpenOrders. Narrower than OrderInfo: an order that's still open
// hasn't settled into a terminal state or accrued a final fee total, so
// GetOpenOrders only reports what's meaningful to check while polling —
// id, side, and fill progress.
type OpenOrderInfo struct {
	ID           string
	Operation    types.Side
	Amount       decimal.Decimal
	AmountFilled decimal.Decimal
}
