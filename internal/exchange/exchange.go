// Package exchange is the orchestrator: it owns the balance ledger and the
// order index, runs the per-bar matching loop, and exposes the
// strategy-facing API (create/cancel orders, balance and order reads,
// bid/ask, bar-event subscriptions).
//
// One struct owns every bit of mutable state, driven by bar events
// delivered through a dispatcher, exposing request/response methods to an
// outer strategy layer. All mutation happens on the dispatcher's single
// logical thread of control.
package exchange

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/SamiKoh/paperex/internal/balances"
	"github.com/SamiKoh/paperex/internal/bar"
	"github.com/SamiKoh/paperex/internal/dispatcher"
	"github.com/SamiKoh/paperex/internal/fees"
	"github.com/SamiKoh/paperex/internal/liquidity"
	"github.com/SamiKoh/paperex/internal/orders"
	"github.com/SamiKoh/paperex/pkg/types"
)

// defaultBidAskSpreadPercent is the fallback full spread when a Config
// doesn't set one: 0.5% of the last close, split evenly above and below
// it.
var defaultBidAskSpreadPercent = decimal.NewFromFloat(0.5)

// Config carries everything the Exchange needs at construction. There is
// no environment-variable or filesystem reading here — that's the CLI
// layer's job (internal/config); the core takes a plain Go struct.
type Config struct {
	InitialBalances          map[types.Symbol]decimal.Decimal
	LiquidityStrategyFactory liquidity.Factory
	FeeStrategy              fees.Strategy
	// DefaultPairInfo is used for any pair without an explicit SetPairInfo
	// call; nil falls back to types.DefaultPairInfo. A pointer, not a bare
	// types.PairInfo, so an explicitly configured {0, 0} isn't mistaken for
	// "not set".
	DefaultPairInfo *types.PairInfo
	// BidAskSpreadPercent is the full spread, as a percentage (0.5 means
	// 0.5%); half of it is applied on each side of the last close. nil
	// falls back to defaultBidAskSpreadPercent; a pointer so an explicit
	// zero spread isn't mistaken for "not set".
	BidAskSpreadPercent *decimal.Decimal
	Dispatcher          dispatcher.Dispatcher
	Logger              *slog.Logger
}

// Exchange is a single, self-contained backtesting venue for one account
// across any number of pairs. It is not safe for concurrent use: every
// method is meant to run on the dispatcher's single logical thread of
// control.
type Exchange struct {
	balances *balances.AccountBalances
	index    *orderIndex

	liquidityFactory liquidity.Factory
	liquidityByPair  map[types.Pair]liquidity.Strategy

	feeStrategy fees.Strategy

	defaultPairInfo types.PairInfo
	pairInfo        map[types.Pair]types.PairInfo

	bidAskSpreadPercent decimal.Decimal
	lastBars            map[types.Pair]types.Bar

	subscribersByPair map[types.Pair][]dispatcher.EventSource

	dispatcher dispatcher.Dispatcher
	logger     *slog.Logger
}

// New constructs an Exchange from cfg. Panics if cfg is missing a
// dispatcher, a liquidity factory or a fee strategy — these are
// programming errors in the caller, not something a user can trigger at
// runtime.
func New(cfg Config) *Exchange {
	if cfg.Dispatcher == nil {
		panic("paperex: exchange.Config.Dispatcher is required")
	}
	if cfg.LiquidityStrategyFactory == nil {
		panic("paperex: exchange.Config.LiquidityStrategyFactory is required")
	}
	if cfg.FeeStrategy == nil {
		panic("paperex: exchange.Config.FeeStrategy is required")
	}

	defaultPairInfo := types.DefaultPairInfo
	if cfg.DefaultPairInfo != nil {
		defaultPairInfo = *cfg.DefaultPairInfo
	}
	spread := defaultBidAskSpreadPercent
	if cfg.BidAskSpreadPercent != nil {
		spread = *cfg.BidAskSpreadPercent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Exchange{
		balances:            balances.New(cfg.InitialBalances),
		index:               newOrderIndex(),
		liquidityFactory:    cfg.LiquidityStrategyFactory,
		liquidityByPair:     make(map[types.Pair]liquidity.Strategy),
		feeStrategy:         cfg.FeeStrategy,
		defaultPairInfo:     defaultPairInfo,
		pairInfo:            make(map[types.Pair]types.PairInfo),
		bidAskSpreadPercent: spread,
		lastBars:            make(map[types.Pair]types.Bar),
		subscribersByPair:   make(map[types.Pair][]dispatcher.EventSource),
		dispatcher:          cfg.Dispatcher,
		logger:              logger,
	}
	return e
}

// AddBarSource registers source with the exchange's dispatcher so every
// bar.Event it produces drives the matching loop.
func (e *Exchange) AddBarSource(source dispatcher.EventSource) {
	e.dispatcher.Subscribe(source, e.handleBarEvent)
}

// SubscribeToBarEvents registers handler to be invoked, via the same
// dispatcher, with every bar.Event for pair once the matching loop for
// that bar has already run to completion. Multiple handlers may subscribe
// to the same pair.
func (e *Exchange) SubscribeToBarEvents(pair types.Pair, handler dispatcher.EventHandler) {
	source := dispatcher.NewFIFOEventSource()
	e.dispatcher.Subscribe(source, handler)
	e.subscribersByPair[pair] = append(e.subscribersByPair[pair], source)
}

func (e *Exchange) handleBarEvent(ctx context.Context, ev dispatcher.Event) error {
	bev, ok := ev.(bar.Event)
	if !ok {
		panic(fmt.Sprintf("paperex: exchange bar handler received unexpected event type %T", ev))
	}
	e.onBar(bev.Bar)
	return nil
}

// onBar is the matching loop: update the last-bar cache, refill the pair's
// liquidity strategy, process every open order for the pair in insertion
// order, then forward the bar to any subscribers.
func (e *Exchange) onBar(b types.Bar) {
	e.lastBars[b.Pair] = b

	liq := e.liquidityFor(b.Pair)
	liq.OnBar(b)

	for _, order := range e.index.openOrdersForPair(b.Pair.String()) {
		e.processOrder(order, b, liq)
	}

	e.forward(b)
}

func (e *Exchange) liquidityFor(pair types.Pair) liquidity.Strategy {
	liq, ok := e.liquidityByPair[pair]
	if !ok {
		liq = e.liquidityFactory()
		e.liquidityByPair[pair] = liq
	}
	return liq
}

func (e *Exchange) forward(b types.Bar) {
	for _, source := range e.subscribersByPair[b.Pair] {
		source.Push(bar.Event{Bar: b})
	}
	// Draining happens inside the dispatcher's own Run loop; pushing here
	// only enqueues. handleBarEvent runs from within that same Run call,
	// so these forwarded events are delivered before Run returns.
}

// processOrder runs one order through one bar of the matching loop: fill
// computation, rounding, fee calculation, the affordability recheck, and
// either commit or the not-filled path.
func (e *Exchange) processOrder(order *orders.Order, b types.Bar, liq liquidity.Strategy) {
	prevState := order.State()
	updates := order.GetBalanceUpdates(b, liq)
	if order.State() != prevState {
		panic(fmt.Sprintf("paperex: order %s state changed inside GetBalanceUpdates (programming error)", order.ID()))
	}

	if updates == nil {
		e.notFilled(order)
		return
	}
	assertSigns(order, updates)

	pairInfo := e.PairInfo(order.Pair())
	rounded := orders.RoundBalanceUpdates(pairInfo, order.Pair(), updates)
	if _, ok := rounded[order.Pair().Base]; !ok {
		e.notFilled(order)
		return
	}
	if _, ok := rounded[order.Pair().Quote]; !ok {
		e.notFilled(order)
		return
	}

	rawFees := e.feeStrategy.CalculateFees(order, rounded)
	roundedFees := orders.RoundFees(pairInfo, order.Pair(), rawFees)
	final := orders.AddAmounts(rounded, negateAmounts(roundedFees))

	if !e.affordable(order.ID(), final) {
		e.notFilled(order)
		return
	}

	liq.TakeLiquidity(rounded[order.Pair().Base].Abs())
	order.AddFill(rounded, roundedFees)
	e.balances.OrderUpdated(order.ID(), order.IsOpen(), final)
}

func (e *Exchange) notFilled(order *orders.Order) {
	order.NotFilled()
	e.balances.OrderUpdated(order.ID(), order.IsOpen(), map[types.Symbol]decimal.Decimal{})
}

// affordable reports whether committing delta to orderID would leave every
// touched symbol's available+hold balance non-negative.
func (e *Exchange) affordable(orderID string, delta map[types.Symbol]decimal.Decimal) bool {
	for symbol, amount := range delta {
		avail := e.balances.GetAvailableBalance(symbol)
		hold := e.balances.GetBalanceOnHoldForOrder(orderID, symbol)
		if avail.Add(hold).Add(amount).IsNegative() {
			return false
		}
	}
	return true
}

// assertSigns is the matching loop's sanity check on a fresh (unrounded)
// balance-update map: the base leg's sign must match the order's side and
// the quote leg must be the opposite sign. A violation means an Order
// implementation computed a fill incorrectly — a programming error.
func assertSigns(order *orders.Order, updates map[types.Symbol]decimal.Decimal) {
	base, baseOk := updates[order.Pair().Base]
	quote, quoteOk := updates[order.Pair().Quote]
	if !baseOk || !quoteOk {
		panic(fmt.Sprintf("paperex: order %s produced balance updates missing base or quote", order.ID()))
	}
	wantSign := order.Operation().Sign()
	if (wantSign > 0 && base.IsNegative()) || (wantSign < 0 && base.IsPositive()) {
		panic(fmt.Sprintf("paperex: order %s base update %s has the wrong sign for %s", order.ID(), base, order.Operation()))
	}
	if !base.IsZero() && !quote.IsZero() && base.Sign() == quote.Sign() {
		panic(fmt.Sprintf("paperex: order %s base/quote updates have the same sign (%s, %s)", order.ID(), base, quote))
	}
}

func negateAmounts(m map[types.Symbol]decimal.Decimal) map[types.Symbol]decimal.Decimal {
	out := make(map[types.Symbol]decimal.Decimal, len(m))
	for symbol, amount := range m {
		out[symbol] = amount.Neg()
	}
	return out
}

// ————————————————————————————————————————————————————————————————————————
// Order submission
// ————————————————————————————————————————————————————————————————————————

// CreateOrder validates req, estimates and checks the balances it would
// require, and if affordable, accepts it: constructs the live order,
// registers it with the index, and places its holds.
func (e *Exchange) CreateOrder(req orders.Request) (CreatedOrder, error) {
	pairInfo := e.PairInfo(req.Pair())
	if err := req.Validate(pairInfo); err != nil {
		return CreatedOrder{}, newError(KindValidation, "%v", err)
	}

	required := e.estimateRequiredBalances(req, pairInfo)
	for symbol, amount := range required {
		avail := e.balances.GetAvailableBalance(symbol)
		if avail.LessThan(amount) {
			return CreatedOrder{}, newError(KindInsufficientBalance, "%s requires %s, only %s available", symbol, amount, avail)
		}
	}

	id := newOrderID()
	order := req.CreateOrder(id)
	e.index.add(order)
	e.balances.OrderAccepted(id, required)

	e.logger.Debug("order accepted", "id", id, "pair", req.Pair(), "operation", req.Operation(), "amount", req.Amount())
	return CreatedOrder{ID: id}, nil
}

// CreateMarketOrder is a convenience wrapper over CreateOrder.
func (e *Exchange) CreateMarketOrder(op types.Side, pair types.Pair, amount decimal.Decimal) (CreatedOrder, error) {
	return e.CreateOrder(orders.MarketRequest{Op: op, PairV: pair, Amt: amount})
}

// CreateLimitOrder is a convenience wrapper over CreateOrder.
func (e *Exchange) CreateLimitOrder(op types.Side, pair types.Pair, amount, limitPrice decimal.Decimal) (CreatedOrder, error) {
	return e.CreateOrder(orders.LimitRequest{Op: op, PairV: pair, Amt: amount, LimitPrice: limitPrice})
}

// CreateStopOrder is a convenience wrapper over CreateOrder.
func (e *Exchange) CreateStopOrder(op types.Side, pair types.Pair, amount, stopPrice decimal.Decimal) (CreatedOrder, error) {
	return e.CreateOrder(orders.StopRequest{Op: op, PairV: pair, Amt: amount, StopPrice: stopPrice})
}

// CreateStopLimitOrder is a convenience wrapper over CreateOrder.
func (e *Exchange) CreateStopLimitOrder(op types.Side, pair types.Pair, amount, stopPrice, limitPrice decimal.Decimal) (CreatedOrder, error) {
	return e.CreateOrder(orders.StopLimitRequest{Op: op, PairV: pair, Amt: amount, StopPrice: stopPrice, LimitPrice: limitPrice})
}

// CancelOrder transitions an open order to CANCELED and releases its
// holds. Errors (not-found, illegal-state) leave the exchange's state
// unchanged.
func (e *Exchange) CancelOrder(id string) (CanceledOrder, error) {
	order, ok := e.index.get(id)
	if !ok {
		return CanceledOrder{}, newError(KindNotFound, "order %s not found", id)
	}
	if !order.IsOpen() {
		return CanceledOrder{}, newError(KindIllegalState, "order %s is not open (state=%s)", id, order.State())
	}
	order.Cancel()
	e.balances.OrderUpdated(id, false, map[types.Symbol]decimal.Decimal{})
	return CanceledOrder{ID: id}, nil
}

// estimateRequiredBalances computes the rounded, fee-inclusive balance
// update a request would produce if it filled immediately, and returns
// only the negative entries of that map, negated — the amounts the
// account must be able to part with before the order is accepted.
func (e *Exchange) estimateRequiredBalances(req orders.Request, pairInfo types.PairInfo) map[types.Symbol]decimal.Decimal {
	pair := req.Pair()
	sign := decimal.NewFromInt(req.Operation().Sign())

	updates := map[types.Symbol]decimal.Decimal{
		pair.Base: req.Amount().Mul(sign),
	}

	price, hasPrice := req.EstimatedFillPrice()
	if !hasPrice {
		if last, ok := e.lastBars[pair]; ok {
			price = last.Close
			hasPrice = true
		}
	}
	if hasPrice {
		updates[pair.Quote] = req.Amount().Mul(price).Mul(sign).Neg()
	}

	rounded := orders.RoundBalanceUpdates(pairInfo, pair, updates)
	if hasPrice {
		temporary := req.CreateOrder("temporary")
		rawFees := e.feeStrategy.CalculateFees(temporary, rounded)
		roundedFees := orders.RoundFees(pairInfo, pair, rawFees)
		rounded = orders.AddAmounts(rounded, negateAmounts(roundedFees))
	}

	required := make(map[types.Symbol]decimal.Decimal, len(rounded))
	for symbol, amount := range rounded {
		if amount.IsNegative() {
			required[symbol] = amount.Neg()
		}
	}
	return required
}

// newOrderID returns a 128-bit identifier rendered as 32 lowercase hex
// characters, the same shape as Python's uuid.uuid4().hex.
func newOrderID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("paperex: failed to generate order id: %v", err))
	}
	return hex.EncodeToString(buf)
}

// ————————————————————————————————————————————————————————————————————————
// Reads
// ————————————————————————————————————————————————————————————————————————

// GetOrderInfo returns a snapshot of one order.
func (e *Exchange) GetOrderInfo(id string) (OrderInfo, error) {
	order, ok := e.index.get(id)
	if !ok {
		return OrderInfo{}, newError(KindNotFound, "order %s not found", id)
	}
	return snapshot(order), nil
}

// GetOpenOrders returns a snapshot of every open order, optionally
// filtered to one pair.
func (e *Exchange) GetOpenOrders(pair *types.Pair) []OpenOrderInfo {
	var open []*orders.Order
	if pair != nil {
		open = e.index.openOrdersForPair(pair.String())
	} else {
		open = e.index.openOrders()
	}

	out := make([]OpenOrderInfo, 0, len(open))
	for _, order := range open {
		out = append(out, OpenOrderInfo{
			ID:           order.ID(),
			Operation:    order.Operation(),
			Amount:       order.Amount(),
			AmountFilled: order.AmountFilled(),
		})
	}
	return out
}

func snapshot(order *orders.Order) OrderInfo {
	return OrderInfo{
		ID:           order.ID(),
		Operation:    order.Operation(),
		Pair:         order.Pair(),
		Kind:         order.Kind(),
		Amount:       order.Amount(),
		AmountFilled: order.AmountFilled(),
		State:        order.State(),
		Fees:         order.Fees(),
		LimitPrice:   order.LimitPrice(),
		StopPrice:    order.StopPrice(),
		Triggered:    order.Triggered(),
	}
}

// GetBalance returns symbol's available and total (available + on hold)
// balance.
func (e *Exchange) GetBalance(symbol types.Symbol) Balance {
	available := e.balances.GetAvailableBalance(symbol)
	hold := e.balances.GetBalanceOnHold(symbol)
	return Balance{Available: available, Total: available.Add(hold)}
}

// GetBalances returns every symbol with a nonzero available or total
// balance.
func (e *Exchange) GetBalances() map[types.Symbol]Balance {
	out := make(map[types.Symbol]Balance)
	for _, symbol := range e.balances.Symbols() {
		b := e.GetBalance(symbol)
		if !b.Available.IsZero() || !b.Total.IsZero() {
			out[symbol] = b
		}
	}
	return out
}

// GetBidAsk returns the last close adjusted by half the configured spread
// on each side. ok is false if no bar has been seen for pair yet.
func (e *Exchange) GetBidAsk(pair types.Pair) (bid, ask decimal.Decimal, ok bool) {
	last, seen := e.lastBars[pair]
	if !seen {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	info := e.PairInfo(pair)
	halfSpread := last.Close.Mul(e.bidAskSpreadPercent).Div(decimal.NewFromInt(100)).Div(decimal.NewFromInt(2))
	halfSpread = halfSpread.Truncate(info.QuotePrecision)
	return last.Close.Sub(halfSpread), last.Close.Add(halfSpread), true
}

// PairInfo returns the configured PairInfo for pair, falling back to the
// exchange-wide default if none was set.
func (e *Exchange) PairInfo(pair types.Pair) types.PairInfo {
	if info, ok := e.pairInfo[pair]; ok {
		return info
	}
	return e.defaultPairInfo
}

// SetPairInfo configures pair's precision explicitly.
func (e *Exchange) SetPairInfo(pair types.Pair, info types.PairInfo) {
	e.pairInfo[pair] = info
}
