// Package strategy holds the sample strategy shipped with the backtest
// CLI. The exchange core treats strategy code as an external collaborator,
// so nothing here is load-bearing for the exchange itself — it exists to
// exercise order submission end to end against real bar data.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/SamiKoh/paperex/internal/bar"
	"github.com/SamiKoh/paperex/internal/dispatcher"
	"github.com/SamiKoh/paperex/internal/exchange"
	"github.com/SamiKoh/paperex/pkg/types"
)

// Snapshot is a read-only view of the strategy's rolling state, returned
// by SimpleMeanReversion.Snapshot.
type Snapshot struct {
	BarsSeen   int
	MovingAvg  decimal.Decimal
	LastSignal string
}

// SimpleMeanReversion buys when the close drops Threshold below a
// Window-bar simple moving average and has no open position, and sells
// its entire base balance when the close rises Threshold above it. It
// holds at most one resting order at a time.
type SimpleMeanReversion struct {
	exchange  *exchange.Exchange
	pair      types.Pair
	amount    decimal.Decimal
	threshold decimal.Decimal // fraction, e.g. 0.01 for 1%
	window    int
	logger    *slog.Logger

	mu         sync.Mutex
	closes     []decimal.Decimal
	lastSignal string
}

// New constructs a SimpleMeanReversion strategy for pair. amount is the
// base-unit size of every order it places; threshold is the fractional
// band width around the moving average.
func New(ex *exchange.Exchange, pair types.Pair, amount, threshold decimal.Decimal, window int, logger *slog.Logger) *SimpleMeanReversion {
	if window < 1 {
		panic("paperex: strategy window must be >= 1")
	}
	return &SimpleMeanReversion{
		exchange: ex, pair: pair, amount: amount, threshold: threshold,
		window: window, logger: logger, lastSignal: "none",
	}
}

// OnBar is a dispatcher.EventHandler: subscribe it via
// exchange.SubscribeToBarEvents(pair, strategy.OnBar).
func (s *SimpleMeanReversion) OnBar(ctx context.Context, ev dispatcher.Event) error {
	bev, ok := ev.(bar.Event)
	if !ok {
		return fmt.Errorf("strategy: unexpected event type %T", ev)
	}

	s.mu.Lock()
	s.closes = append(s.closes, bev.Bar.Close)
	if len(s.closes) > s.window {
		s.closes = s.closes[len(s.closes)-s.window:]
	}
	ready := len(s.closes) == s.window
	avg := movingAverage(s.closes)
	s.mu.Unlock()

	if !ready {
		return nil
	}

	if len(s.exchange.GetOpenOrders(&s.pair)) > 0 {
		return nil
	}

	close := bev.Bar.Close
	lowerBand := avg.Mul(decimal.NewFromInt(1).Sub(s.threshold))
	upperBand := avg.Mul(decimal.NewFromInt(1).Add(s.threshold))
	base := s.exchange.GetBalance(s.pair.Base)

	switch {
	case close.LessThan(lowerBand) && base.Total.IsZero():
		if _, err := s.exchange.CreateMarketOrder(types.BUY, s.pair, s.amount); err != nil {
			s.logger.Debug("buy signal rejected", "pair", s.pair, "error", err)
			return nil
		}
		s.setLastSignal("buy")
	case close.GreaterThan(upperBand) && base.Available.IsPositive():
		if _, err := s.exchange.CreateMarketOrder(types.SELL, s.pair, base.Available); err != nil {
			s.logger.Debug("sell signal rejected", "pair", s.pair, "error", err)
			return nil
		}
		s.setLastSignal("sell")
	}
	return nil
}

func (s *SimpleMeanReversion) setLastSignal(signal string) {
	s.mu.Lock()
	s.lastSignal = signal
	s.mu.Unlock()
}

// Snapshot returns the strategy's current rolling state.
func (s *SimpleMeanReversion) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		BarsSeen:   len(s.closes),
		MovingAvg:  movingAverage(s.closes),
		LastSignal: s.lastSignal,
	}
}

func movingAverage(closes []decimal.Decimal) decimal.Decimal {
	if len(closes) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, c := range closes {
		sum = sum.Add(c)
	}
	return sum.Div(decimal.NewFromInt(int64(len(closes))))
}
