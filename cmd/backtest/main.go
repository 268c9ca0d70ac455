// Command backtest replays historical OHLCV bars for a single pair through
// the deterministic exchange simulator, running a sample mean-reversion
// strategy against it, and prints a final balance and order summary.
//
// Architecture:
//
//	main.go                      — entry point: loads config, wires dispatcher/exchange/strategy, runs to completion
//	internal/dispatcher          — single-threaded cooperative event runtime
//	internal/exchange            — order matching + balance ledger, the simulator core
//	internal/orders              — order state machine and per-kind fill logic
//	internal/balances            — available/hold balance ledger
//	internal/liquidity           — pluggable per-bar fill-volume and slippage models
//	internal/fees                — pluggable per-fill fee models
//	internal/barsource           — CSV bar loader (an EventSource)
//	internal/strategy            — sample mean-reversion strategy consuming the exchange API
//	internal/config              — YAML + env configuration for this CLI
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"

	"github.com/SamiKoh/paperex/internal/barsource"
	"github.com/SamiKoh/paperex/internal/config"
	"github.com/SamiKoh/paperex/internal/dispatcher"
	"github.com/SamiKoh/paperex/internal/exchange"
	"github.com/SamiKoh/paperex/internal/fees"
	"github.com/SamiKoh/paperex/internal/liquidity"
	"github.com/SamiKoh/paperex/internal/strategy"
	"github.com/SamiKoh/paperex/pkg/types"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("PAPEREX_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	ex, disp, pair, err := buildExchange(cfg, logger)
	if err != nil {
		logger.Error("failed to build exchange", "error", err)
		os.Exit(1)
	}

	source, err := barsource.NewCSV(cfg.DataFile, pair)
	if err != nil {
		logger.Error("failed to load bar data", "error", err, "path", cfg.DataFile)
		os.Exit(1)
	}
	ex.AddBarSource(source)

	strat := strategy.New(ex, pair, decimal.NewFromFloat(0.1), decimal.NewFromFloat(0.02), 20, logger)
	ex.SubscribeToBarEvents(pair, strat.OnBar)

	logger.Info("backtest starting", "pair", pair, "data_file", cfg.DataFile)

	if err := disp.Run(context.Background()); err != nil {
		logger.Error("backtest run failed", "error", err)
		os.Exit(1)
	}

	printSummary(ex, pair, logger)
}

// buildExchange wires an Exchange and its dispatcher from cfg: it selects
// the liquidity and fee strategies, parses the initial balances, and
// resolves the traded pair's precision.
func buildExchange(cfg *config.Config, logger *slog.Logger) (*exchange.Exchange, *dispatcher.SerialDispatcher, types.Pair, error) {
	pair := types.Pair{Base: types.Symbol(cfg.Pair.Base), Quote: types.Symbol(cfg.Pair.Quote)}

	initial := make(map[types.Symbol]decimal.Decimal, len(cfg.Balances))
	for symbol, amount := range cfg.Balances {
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, nil, types.Pair{}, fmt.Errorf("balances.%s: %w", symbol, err)
		}
		initial[types.Symbol(symbol)] = d
	}

	shareFactor, err := decimal.NewFromString(cfg.Liquidity.ShareFactor)
	if err != nil {
		return nil, nil, types.Pair{}, fmt.Errorf("liquidity.share_factor: %w", err)
	}
	maxImpact, err := decimal.NewFromString(cfg.Liquidity.MaxImpact)
	if err != nil {
		return nil, nil, types.Pair{}, fmt.Errorf("liquidity.max_impact: %w", err)
	}

	var feeStrategy fees.Strategy = fees.NoFee{}
	if cfg.Fee.Kind == "percentage" {
		pct, err := decimal.NewFromString(cfg.Fee.Percentage)
		if err != nil {
			return nil, nil, types.Pair{}, fmt.Errorf("fee.percentage: %w", err)
		}
		feeStrategy = fees.PercentageFee{Percentage: pct}
	}

	disp := dispatcher.New()
	pairInfo := types.PairInfo{BasePrecision: cfg.Pair.BasePrecision, QuotePrecision: cfg.Pair.QuotePrecision}
	spread := decimal.NewFromFloat(cfg.BidAskSpreadPercent)
	ex := exchange.New(exchange.Config{
		InitialBalances:          initial,
		LiquidityStrategyFactory: liquidity.NewVolumeShareImpact(shareFactor, maxImpact),
		FeeStrategy:              feeStrategy,
		DefaultPairInfo:          &pairInfo,
		BidAskSpreadPercent:      &spread,
		Dispatcher:               disp,
		Logger:                   logger,
	})
	return ex, disp, pair, nil
}

func printSummary(ex *exchange.Exchange, pair types.Pair, logger *slog.Logger) {
	logger.Info("backtest complete")
	for symbol, balance := range ex.GetBalances() {
		logger.Info("final balance", "symbol", symbol, "available", balance.Available, "total", balance.Total)
	}
	open := ex.GetOpenOrders(&pair)
	logger.Info("open orders remaining", "count", len(open))
	for _, info := range open {
		logger.Info("open order", "id", info.ID, "operation", info.Operation,
			"amount", info.Amount, "filled", info.AmountFilled)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
