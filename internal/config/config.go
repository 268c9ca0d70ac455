// Package config defines the configuration for a backtest run. Config is
// loaded from a YAML file (default: configs/config.yaml) with overrides
// from PAPEREX_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the top-level configuration for one backtest run. It maps
// directly onto the YAML file structure.
type Config struct {
	Pair      PairConfig      `mapstructure:"pair"`
	DataFile  string          `mapstructure:"data_file"`
	Balances  map[string]string `mapstructure:"balances"`
	Liquidity LiquidityConfig `mapstructure:"liquidity"`
	Fee       FeeConfig       `mapstructure:"fee"`
	// BidAskSpreadPercent is the full spread, e.g. 0.5 meaning 0.5%.
	BidAskSpreadPercent float64       `mapstructure:"bid_ask_spread_percent"`
	Logging             LoggingConfig `mapstructure:"logging"`
}

// PairConfig names the single pair this run trades and its precision.
type PairConfig struct {
	Base           string `mapstructure:"base"`
	Quote          string `mapstructure:"quote"`
	BasePrecision  int32  `mapstructure:"base_precision"`
	QuotePrecision int32  `mapstructure:"quote_precision"`
}

// LiquidityConfig configures the VolumeShareImpact reference liquidity
// model. ShareFactor and MaxImpact are decimal strings (e.g. "0.25",
// "0.001") rather than floats, so a config value round-trips through the
// same exact arithmetic as everything else in the exchange.
type LiquidityConfig struct {
	ShareFactor string `mapstructure:"share_factor"`
	MaxImpact   string `mapstructure:"max_impact"`
}

// FeeConfig selects and parameterizes the fee strategy. Kind is "none" or
// "percentage"; Percentage (a decimal string, e.g. "0.001" for 10bps) is
// only used when Kind is "percentage".
type FeeConfig struct {
	Kind       string `mapstructure:"kind"`
	Percentage string `mapstructure:"percentage"`
}

// LoggingConfig controls the CLI's slog setup.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides. Values may be
// overridden with PAPEREX_<SECTION>_<FIELD> env vars, e.g.
// PAPEREX_DATA_FILE or PAPEREX_LOGGING_LEVEL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PAPEREX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("pair.base_precision", 8)
	v.SetDefault("pair.quote_precision", 2)
	v.SetDefault("liquidity.share_factor", "0.25")
	v.SetDefault("liquidity.max_impact", "0.001")
	v.SetDefault("fee.kind", "none")
	v.SetDefault("bid_ask_spread_percent", 0.5)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks all required fields and decimal-string parseability.
func (c *Config) Validate() error {
	if c.Pair.Base == "" || c.Pair.Quote == "" {
		return fmt.Errorf("pair.base and pair.quote are required")
	}
	if c.Pair.BasePrecision < 0 || c.Pair.QuotePrecision < 0 {
		return fmt.Errorf("pair.base_precision and pair.quote_precision must be >= 0")
	}
	if c.DataFile == "" {
		return fmt.Errorf("data_file is required")
	}
	if len(c.Balances) == 0 {
		return fmt.Errorf("at least one entry in balances is required")
	}
	for symbol, amount := range c.Balances {
		if _, err := decimal.NewFromString(amount); err != nil {
			return fmt.Errorf("balances.%s: %w", symbol, err)
		}
	}
	if _, err := decimal.NewFromString(c.Liquidity.ShareFactor); err != nil {
		return fmt.Errorf("liquidity.share_factor: %w", err)
	}
	if _, err := decimal.NewFromString(c.Liquidity.MaxImpact); err != nil {
		return fmt.Errorf("liquidity.max_impact: %w", err)
	}
	switch c.Fee.Kind {
	case "none":
	case "percentage":
		if _, err := decimal.NewFromString(c.Fee.Percentage); err != nil {
			return fmt.Errorf("fee.percentage: %w", err)
		}
	default:
		return fmt.Errorf("fee.kind must be \"none\" or \"percentage\", got %q", c.Fee.Kind)
	}
	if c.BidAskSpreadPercent < 0 {
		return fmt.Errorf("bid_ask_spread_percent must be >= 0")
	}
	return nil
}
