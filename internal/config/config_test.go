package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	return path
}

const minimalConfig = `
pair:
  base: BTC
  quote: USDT
data_file: bars.csv
balances:
  USDT: "10000"
`

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Pair.BasePrecision != 8 {
		t.Errorf("Pair.BasePrecision = %d, want default 8", cfg.Pair.BasePrecision)
	}
	if cfg.Liquidity.ShareFactor != "0.25" {
		t.Errorf("Liquidity.ShareFactor = %q, want default \"0.25\"", cfg.Liquidity.ShareFactor)
	}
	if cfg.Fee.Kind != "none" {
		t.Errorf("Fee.Kind = %q, want default \"none\"", cfg.Fee.Kind)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsMissingPair(t *testing.T) {
	t.Parallel()

	cfg := &Config{DataFile: "bars.csv", Balances: map[string]string{"USDT": "100"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a missing pair")
	}
}

func TestValidateRejectsUnparseableBalance(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Pair:     PairConfig{Base: "BTC", Quote: "USDT"},
		DataFile: "bars.csv",
		Balances: map[string]string{"USDT": "not-a-number"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unparseable balance")
	}
}

func TestValidateRejectsUnknownFeeKind(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Pair:     PairConfig{Base: "BTC", Quote: "USDT"},
		DataFile: "bars.csv",
		Balances: map[string]string{"USDT": "100"},
		Liquidity: LiquidityConfig{ShareFactor: "0.25", MaxImpact: "0.001"},
		Fee:       FeeConfig{Kind: "flat_rate"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unknown fee kind")
	}
}

func TestValidateRequiresPercentageWhenFeeKindIsPercentage(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Pair:      PairConfig{Base: "BTC", Quote: "USDT"},
		DataFile:  "bars.csv",
		Balances:  map[string]string{"USDT": "100"},
		Liquidity: LiquidityConfig{ShareFactor: "0.25", MaxImpact: "0.001"},
		Fee:       FeeConfig{Kind: "percentage", Percentage: "bad"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unparseable fee percentage")
	}
}
