package barsource

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/SamiKoh/paperex/internal/bar"
	"github.com/SamiKoh/paperex/internal/dispatcher"
	"github.com/SamiKoh/paperex/pkg/types"
)

var btcUsdt = types.Pair{Base: "BTC", Quote: "USDT"}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func TestParseCSVReadsRowsInOrder(t *testing.T) {
	t.Parallel()

	const data = `datetime,open,high,low,close,volume
2024-01-01,100,110,90,105,1000
2024-01-02,105,115,100,110,1200
`
	bars, err := parseCSV(strings.NewReader(data), btcUsdt)
	if err != nil {
		t.Fatalf("parseCSV() = %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("len(bars) = %d, want 2", len(bars))
	}
	if !bars[0].Open.Equal(dec(t, "100")) {
		t.Errorf("bars[0].Open = %s, want 100", bars[0].Open)
	}
	if !bars[1].Close.Equal(dec(t, "110")) {
		t.Errorf("bars[1].Close = %s, want 110", bars[1].Close)
	}
	if bars[0].Pair != btcUsdt {
		t.Errorf("bars[0].Pair = %v, want %v", bars[0].Pair, btcUsdt)
	}
}

func TestParseCSVColumnOrderIndependent(t *testing.T) {
	t.Parallel()

	const data = `close,volume,datetime,open,high,low
105,1000,2024-01-01,100,110,90
`
	bars, err := parseCSV(strings.NewReader(data), btcUsdt)
	if err != nil {
		t.Fatalf("parseCSV() = %v", err)
	}
	if !bars[0].Open.Equal(dec(t, "100")) {
		t.Errorf("Open = %s, want 100", bars[0].Open)
	}
	if !bars[0].Close.Equal(dec(t, "105")) {
		t.Errorf("Close = %s, want 105", bars[0].Close)
	}
}

func TestParseCSVMissingColumnErrors(t *testing.T) {
	t.Parallel()

	const data = `datetime,open,high,low,close
2024-01-01,100,110,90,105
`
	_, err := parseCSV(strings.NewReader(data), btcUsdt)
	if err == nil {
		t.Fatal("expected an error for a missing volume column")
	}
}

func TestParseCSVRejectsMalformedDecimal(t *testing.T) {
	t.Parallel()

	const data = `datetime,open,high,low,close,volume
2024-01-01,abc,110,90,105,1000
`
	_, err := parseCSV(strings.NewReader(data), btcUsdt)
	if err == nil {
		t.Fatal("expected an error for a malformed open price")
	}
}

func TestParseCSVAcceptsDateOnlyAndRFC3339(t *testing.T) {
	t.Parallel()

	const data = `datetime,open,high,low,close,volume
2024-01-01T00:00:00Z,100,110,90,105,1000
2024-01-02,105,115,100,110,1200
`
	bars, err := parseCSV(strings.NewReader(data), btcUsdt)
	if err != nil {
		t.Fatalf("parseCSV() = %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("len(bars) = %d, want 2", len(bars))
	}
	if bars[0].DateTime.IsZero() {
		t.Error("expected a parsed non-zero RFC 3339 datetime")
	}
	if bars[1].DateTime.IsZero() {
		t.Error("expected a parsed non-zero date-only datetime")
	}
}

func TestNewCSVMissingFileErrors(t *testing.T) {
	t.Parallel()

	_, err := NewCSV(filepath.Join(t.TempDir(), "does-not-exist.csv"), btcUsdt)
	if err == nil {
		t.Fatal("expected an error opening a missing file")
	}
}

func TestNewCSVProducesAReplayableEventSource(t *testing.T) {
	t.Parallel()

	const data = `datetime,open,high,low,close,volume
2024-01-01,100,110,90,105,1000
2024-01-02,105,115,100,110,1200
`
	path := filepath.Join(t.TempDir(), "bars.csv")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}

	source, err := NewCSV(path, btcUsdt)
	if err != nil {
		t.Fatalf("NewCSV() = %v", err)
	}

	disp := dispatcher.New()
	var delivered []types.Bar
	disp.Subscribe(source, func(ctx context.Context, ev dispatcher.Event) error {
		delivered = append(delivered, ev.(bar.Event).Bar)
		return nil
	})
	if err := disp.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if len(delivered) != 2 {
		t.Fatalf("len(delivered) = %d, want 2", len(delivered))
	}
	if !delivered[0].Open.Equal(dec(t, "100")) {
		t.Errorf("delivered[0].Open = %s, want 100", delivered[0].Open)
	}
	if !delivered[1].Open.Equal(dec(t, "105")) {
		t.Errorf("delivered[1].Open = %s, want 105", delivered[1].Open)
	}
}
