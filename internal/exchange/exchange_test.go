package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SamiKoh/paperex/internal/bar"
	"github.com/SamiKoh/paperex/internal/dispatcher"
	"github.com/SamiKoh/paperex/internal/fees"
	"github.com/SamiKoh/paperex/internal/liquidity"
	"github.com/SamiKoh/paperex/pkg/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

var btcUsdt = types.Pair{Base: "BTC", Quote: "USDT"}

// testSetup wires a fresh Exchange with its own dispatcher and bar source:
// precision {8, 2}, spread 0.5%, no fees, and a 25%-share liquidity budget
// with 0.1% max impact.
type testSetup struct {
	exchange *Exchange
	disp     *dispatcher.SerialDispatcher
	source   *dispatcher.FIFOEventSource
}

func newTestSetup(initial map[types.Symbol]decimal.Decimal) testSetup {
	disp := dispatcher.New()
	pairInfo := types.PairInfo{BasePrecision: 8, QuotePrecision: 2}
	spread := dec("0.5")
	ex := New(Config{
		InitialBalances:          initial,
		LiquidityStrategyFactory: liquidity.NewVolumeShareImpact(dec("0.25"), dec("0.001")),
		FeeStrategy:              fees.NoFee{},
		DefaultPairInfo:          &pairInfo,
		BidAskSpreadPercent:      &spread,
		Dispatcher:               disp,
	})
	source := dispatcher.NewFIFOEventSource()
	ex.AddBarSource(source)
	return testSetup{exchange: ex, disp: disp, source: source}
}

func pushBar(s testSetup, open, high, low, close, volume string) {
	s.source.Push(bar.Event{Bar: types.Bar{
		Pair: btcUsdt, Open: dec(open), High: dec(high), Low: dec(low),
		Close: dec(close), Volume: dec(volume), DateTime: time.Unix(0, 0),
	}})
}

func run(t *testing.T, s testSetup) {
	t.Helper()
	if err := s.disp.Run(context.Background()); err != nil {
		t.Fatalf("dispatcher.Run() = %v", err)
	}
}

// S1 — Market BUY fills at open.
func TestScenarioMarketBuyFillsAtOpen(t *testing.T) {
	s := newTestSetup(map[types.Symbol]decimal.Decimal{"USDT": dec("10000")})

	var orderID string
	s.exchange.SubscribeToBarEvents(btcUsdt, func(ctx context.Context, ev dispatcher.Event) error {
		if orderID == "" {
			created, err := s.exchange.CreateMarketOrder(types.BUY, btcUsdt, dec("10"))
			if err != nil {
				t.Fatalf("CreateMarketOrder() = %v", err)
			}
			orderID = created.ID
		}
		return nil
	})

	pushBar(s, "100", "110", "90", "105", "1000")
	pushBar(s, "100", "108", "95", "102", "1000")
	run(t, s)

	info, err := s.exchange.GetOrderInfo(orderID)
	if err != nil {
		t.Fatalf("GetOrderInfo() = %v", err)
	}
	if info.State != types.StateCompleted {
		t.Errorf("order state = %s, want COMPLETED", info.State)
	}
	if !info.AmountFilled.Equal(dec("10")) {
		t.Errorf("amount filled = %s, want 10", info.AmountFilled)
	}

	usdt := s.exchange.GetBalance("USDT")
	if usdt.Available.GreaterThan(dec("9001")) || usdt.Available.LessThan(dec("8999")) {
		t.Errorf("USDT available = %s, want ~9000", usdt.Available)
	}
	btc := s.exchange.GetBalance("BTC")
	if !btc.Available.Equal(dec("10")) {
		t.Errorf("BTC available = %s, want 10", btc.Available)
	}
}

// S2 — Limit BUY not triggered, then triggers and fills at min(limit, open).
func TestScenarioLimitBuyTriggersOnLaterBar(t *testing.T) {
	s := newTestSetup(map[types.Symbol]decimal.Decimal{"USDT": dec("10000")})

	created, err := s.exchange.CreateLimitOrder(types.BUY, btcUsdt, dec("1"), dec("50"))
	if err != nil {
		t.Fatalf("CreateLimitOrder() = %v", err)
	}

	pushBar(s, "100", "110", "80", "90", "100")
	run(t, s)

	if hold := s.exchange.GetBalance("USDT"); !hold.Total.Equal(dec("10000")) || !hold.Available.Equal(dec("9950")) {
		t.Errorf("after non-triggering bar: available=%s total=%s, want available=9950 total=10000", hold.Available, hold.Total)
	}

	pushBar(s, "45", "60", "40", "48", "100")
	run(t, s)

	info, err := s.exchange.GetOrderInfo(created.ID)
	if err != nil {
		t.Fatalf("GetOrderInfo() = %v", err)
	}
	if info.State != types.StateCompleted {
		t.Fatalf("order state = %s, want COMPLETED", info.State)
	}

	usdt := s.exchange.GetBalance("USDT")
	if !usdt.Available.Equal(dec("9955")) {
		t.Errorf("USDT available = %s, want 9955 (10000 - 45)", usdt.Available)
	}
	if !usdt.Total.Equal(dec("9955")) {
		t.Errorf("USDT total = %s, want 9955 (hold released)", usdt.Total)
	}
}

// S3 — Stop SELL triggers on a crossing bar and fills at worst-of price.
func TestScenarioStopSellTriggersAndFills(t *testing.T) {
	s := newTestSetup(map[types.Symbol]decimal.Decimal{"BTC": dec("5")})

	created, err := s.exchange.CreateStopOrder(types.SELL, btcUsdt, dec("5"), dec("90"))
	if err != nil {
		t.Fatalf("CreateStopOrder() = %v", err)
	}

	pushBar(s, "100", "105", "85", "95", "1000")
	run(t, s)

	info, err := s.exchange.GetOrderInfo(created.ID)
	if err != nil {
		t.Fatalf("GetOrderInfo() = %v", err)
	}
	if !info.Triggered {
		t.Error("expected order to have triggered")
	}
	if info.State != types.StateCompleted {
		t.Fatalf("order state = %s, want COMPLETED", info.State)
	}

	btc := s.exchange.GetBalance("BTC")
	if !btc.Available.IsZero() {
		t.Errorf("BTC available = %s, want 0", btc.Available)
	}
	usdt := s.exchange.GetBalance("USDT")
	if !usdt.Available.Equal(dec("450")) {
		t.Errorf("USDT available = %s, want 450 (5 * min(open=100, stop=90))", usdt.Available)
	}
}

// S4 — Insufficient balance leaves the exchange state unchanged.
func TestScenarioInsufficientBalance(t *testing.T) {
	s := newTestSetup(map[types.Symbol]decimal.Decimal{"USDT": dec("10000")})

	pushBar(s, "100", "105", "95", "100", "1000")
	run(t, s)

	_, err := s.exchange.CreateMarketOrder(types.BUY, btcUsdt, dec("1000"))
	if err == nil {
		t.Fatal("expected an insufficient-balance error")
	}
	exErr, ok := err.(*Error)
	if !ok || exErr.Kind != KindInsufficientBalance {
		t.Fatalf("err = %v, want *Error{Kind: KindInsufficientBalance}", err)
	}

	usdt := s.exchange.GetBalance("USDT")
	if !usdt.Available.Equal(dec("10000")) {
		t.Errorf("USDT available = %s, want unchanged 10000", usdt.Available)
	}
	if len(s.exchange.GetOpenOrders(nil)) != 0 {
		t.Error("expected no open orders after a rejected submission")
	}
}

// S5 — Partial fill across bars accumulates to completion.
func TestScenarioPartialFillAcrossBars(t *testing.T) {
	s := newTestSetup(map[types.Symbol]decimal.Decimal{"USDT": dec("100000")})

	created, err := s.exchange.CreateMarketOrder(types.BUY, btcUsdt, dec("25"))
	if err != nil {
		t.Fatalf("CreateMarketOrder() = %v", err)
	}

	// Liquidity budget per bar = 0.25 * volume(40) = 10.
	pushBar(s, "100", "105", "95", "100", "40")
	run(t, s)
	pushBar(s, "100", "105", "95", "100", "40")
	run(t, s)
	pushBar(s, "100", "105", "95", "100", "40")
	run(t, s)

	info, err := s.exchange.GetOrderInfo(created.ID)
	if err != nil {
		t.Fatalf("GetOrderInfo() = %v", err)
	}
	if info.State != types.StateCompleted {
		t.Errorf("order state = %s, want COMPLETED", info.State)
	}
	if !info.AmountFilled.Equal(dec("25")) {
		t.Errorf("amount filled = %s, want 25", info.AmountFilled)
	}
}

func TestLiquidityBoundsFillWithinOneBar(t *testing.T) {
	s := newTestSetup(map[types.Symbol]decimal.Decimal{"USDT": dec("100000")})

	created, err := s.exchange.CreateMarketOrder(types.BUY, btcUsdt, dec("25"))
	if err != nil {
		t.Fatalf("CreateMarketOrder() = %v", err)
	}

	// Budget = 0.25 * 40 = 10; the first bar can never fill more than that.
	pushBar(s, "100", "105", "95", "100", "40")
	run(t, s)

	info, err := s.exchange.GetOrderInfo(created.ID)
	if err != nil {
		t.Fatalf("GetOrderInfo() = %v", err)
	}
	if !info.AmountFilled.Equal(dec("10")) {
		t.Errorf("amount filled after one bar = %s, want 10 (bar volume share)", info.AmountFilled)
	}
	if info.State != types.StateOpen {
		t.Errorf("order state = %s, want OPEN (partially filled, making progress)", info.State)
	}
}

// S6 — Cancel releases the hold exactly.
func TestScenarioCancelReleasesHold(t *testing.T) {
	s := newTestSetup(map[types.Symbol]decimal.Decimal{"USDT": dec("10000")})

	created, err := s.exchange.CreateLimitOrder(types.BUY, btcUsdt, dec("1"), dec("50"))
	if err != nil {
		t.Fatalf("CreateLimitOrder() = %v", err)
	}

	if _, err := s.exchange.CancelOrder(created.ID); err != nil {
		t.Fatalf("CancelOrder() = %v", err)
	}

	usdt := s.exchange.GetBalance("USDT")
	if !usdt.Available.Equal(dec("10000")) {
		t.Errorf("USDT available = %s, want 10000", usdt.Available)
	}
	if !usdt.Total.Equal(dec("10000")) {
		t.Errorf("USDT total = %s, want 10000", usdt.Total)
	}

	info, err := s.exchange.GetOrderInfo(created.ID)
	if err != nil {
		t.Fatalf("GetOrderInfo() = %v", err)
	}
	if info.State != types.StateCanceled {
		t.Errorf("order state = %s, want CANCELED", info.State)
	}
}

func TestCancelOrderIdempotencyRaisesIllegalState(t *testing.T) {
	s := newTestSetup(map[types.Symbol]decimal.Decimal{"USDT": dec("10000")})

	created, err := s.exchange.CreateLimitOrder(types.BUY, btcUsdt, dec("1"), dec("50"))
	if err != nil {
		t.Fatalf("CreateLimitOrder() = %v", err)
	}
	if _, err := s.exchange.CancelOrder(created.ID); err != nil {
		t.Fatalf("first CancelOrder() = %v", err)
	}

	_, err = s.exchange.CancelOrder(created.ID)
	if err == nil {
		t.Fatal("expected illegal-state error on second cancel")
	}
	exErr, ok := err.(*Error)
	if !ok || exErr.Kind != KindIllegalState {
		t.Fatalf("err = %v, want *Error{Kind: KindIllegalState}", err)
	}
}

func TestCancelUnknownOrderRaisesNotFound(t *testing.T) {
	s := newTestSetup(map[types.Symbol]decimal.Decimal{"USDT": dec("10000")})

	_, err := s.exchange.CancelOrder("does-not-exist")
	if err == nil {
		t.Fatal("expected not-found error")
	}
	exErr, ok := err.(*Error)
	if !ok || exErr.Kind != KindNotFound {
		t.Fatalf("err = %v, want *Error{Kind: KindNotFound}", err)
	}
}

func TestNoLookAheadOrderCreatedDuringBarFillsOnlyNextBar(t *testing.T) {
	s := newTestSetup(map[types.Symbol]decimal.Decimal{"USDT": dec("100000")})

	var created bool
	var orderID string
	s.exchange.SubscribeToBarEvents(btcUsdt, func(ctx context.Context, ev dispatcher.Event) error {
		if !created {
			order, err := s.exchange.CreateMarketOrder(types.BUY, btcUsdt, dec("1"))
			if err != nil {
				t.Fatalf("CreateMarketOrder() = %v", err)
			}
			orderID = order.ID
			created = true
		}
		return nil
	})

	pushBar(s, "100", "110", "90", "105", "1000")
	run(t, s)

	info, err := s.exchange.GetOrderInfo(orderID)
	if err != nil {
		t.Fatalf("GetOrderInfo() = %v", err)
	}
	if info.AmountFilled.IsPositive() {
		t.Errorf("order created in reaction to bar t filled during bar t: amount_filled=%s", info.AmountFilled)
	}
	if info.State != types.StateOpen {
		t.Errorf("order state = %s, want OPEN (not yet matched)", info.State)
	}

	pushBar(s, "100", "108", "95", "102", "1000")
	run(t, s)

	info, err = s.exchange.GetOrderInfo(orderID)
	if err != nil {
		t.Fatalf("GetOrderInfo() = %v", err)
	}
	if info.State != types.StateCompleted {
		t.Errorf("order state after bar t+1 = %s, want COMPLETED", info.State)
	}
}

func TestGetBidAskBeforeAnyBarIsNotOK(t *testing.T) {
	s := newTestSetup(map[types.Symbol]decimal.Decimal{"USDT": dec("10000")})
	_, _, ok := s.exchange.GetBidAsk(btcUsdt)
	if ok {
		t.Error("expected ok=false with no bar seen yet")
	}
}

func TestGetBidAskHalfSpreadAroundClose(t *testing.T) {
	s := newTestSetup(map[types.Symbol]decimal.Decimal{"USDT": dec("10000")})
	pushBar(s, "100", "105", "95", "100", "1000")
	run(t, s)

	bid, ask, ok := s.exchange.GetBidAsk(btcUsdt)
	if !ok {
		t.Fatal("expected ok=true after a bar")
	}
	// half_spread = truncate(100 * 0.5 / 100 / 2, 2) = truncate(0.25, 2) = 0.25
	if !bid.Equal(dec("99.75")) {
		t.Errorf("bid = %s, want 99.75", bid)
	}
	if !ask.Equal(dec("100.25")) {
		t.Errorf("ask = %s, want 100.25", ask)
	}
}

func TestValidationErrorOnNonPositiveAmount(t *testing.T) {
	s := newTestSetup(map[types.Symbol]decimal.Decimal{"USDT": dec("10000")})
	_, err := s.exchange.CreateMarketOrder(types.BUY, btcUsdt, dec("0"))
	if err == nil {
		t.Fatal("expected a validation error")
	}
	exErr, ok := err.(*Error)
	if !ok || exErr.Kind != KindValidation {
		t.Fatalf("err = %v, want *Error{Kind: KindValidation}", err)
	}
}

func TestOpenOrdersFilteredByPair(t *testing.T) {
	s := newTestSetup(map[types.Symbol]decimal.Decimal{"USDT": dec("10000")})
	ethUsdt := types.Pair{Base: "ETH", Quote: "USDT"}
	s.exchange.SetPairInfo(ethUsdt, types.PairInfo{BasePrecision: 8, QuotePrecision: 2})

	btcOrder, err := s.exchange.CreateLimitOrder(types.BUY, btcUsdt, dec("1"), dec("50"))
	if err != nil {
		t.Fatalf("CreateLimitOrder(BTC) = %v", err)
	}
	if _, err := s.exchange.CreateLimitOrder(types.BUY, ethUsdt, dec("1"), dec("10")); err != nil {
		t.Fatalf("CreateLimitOrder(ETH) = %v", err)
	}

	all := s.exchange.GetOpenOrders(nil)
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
	onlyBTC := s.exchange.GetOpenOrders(&btcUsdt)
	if len(onlyBTC) != 1 || onlyBTC[0].ID != btcOrder.ID {
		t.Errorf("GetOpenOrders(&btcUsdt) = %v, want exactly the BTC/USDT order", onlyBTC)
	}
}

func TestConservationAcrossMixOfOrders(t *testing.T) {
	s := newTestSetup(map[types.Symbol]decimal.Decimal{"USDT": dec("10000"), "BTC": dec("5")})

	if _, err := s.exchange.CreateMarketOrder(types.BUY, btcUsdt, dec("2")); err != nil {
		t.Fatalf("CreateMarketOrder(BUY) = %v", err)
	}
	if _, err := s.exchange.CreateLimitOrder(types.SELL, btcUsdt, dec("1"), dec("95")); err != nil {
		t.Fatalf("CreateLimitOrder(SELL) = %v", err)
	}

	pushBar(s, "100", "110", "90", "100", "1000")
	run(t, s)
	pushBar(s, "100", "110", "90", "100", "1000")
	run(t, s)

	usdt := s.exchange.GetBalance("USDT")
	btc := s.exchange.GetBalance("BTC")
	if usdt.Total.IsNegative() || btc.Total.IsNegative() {
		t.Errorf("negative total balance: usdt=%s btc=%s", usdt.Total, btc.Total)
	}
	if usdt.Available.IsNegative() || btc.Available.IsNegative() {
		t.Errorf("negative available balance: usdt=%s btc=%s", usdt.Available, btc.Available)
	}

	// Both orders fill on the first bar: the BUY 2 at ~100.0000064 rounds to
	// -200.00 USDT, the SELL 1 at ~99.9999856 rounds to +100.00 USDT. With
	// no fees, totals are initial plus realized flows.
	if !usdt.Total.Equal(dec("9900")) {
		t.Errorf("USDT total = %s, want 9900 (10000 - 200 + 100)", usdt.Total)
	}
	if !btc.Total.Equal(dec("6")) {
		t.Errorf("BTC total = %s, want 6 (5 + 2 - 1)", btc.Total)
	}
}
