// Package barsource provides dispatcher.EventSource implementations that
// feed bar.Event values into the exchange from an external store. The CSV
// loader here (header: datetime,open,high,low,close,volume) is the
// reference implementation; anything else implementing
// dispatcher.EventSource — a live exchange feed, a database cursor — is
// just as conforming, since the core treats bar sources as opaque.
//
// The whole file is read and parsed with encoding/csv up front, rather
// than streamed row-by-row, so a malformed file fails at load time instead
// of partway through a run.
package barsource

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SamiKoh/paperex/internal/bar"
	"github.com/SamiKoh/paperex/internal/dispatcher"
	"github.com/SamiKoh/paperex/pkg/types"
)

// layout is the accepted datetime column format: RFC 3339, or a bare date
// for daily bars.
const (
	layoutDateTime = "2006-01-02T15:04:05Z07:00"
	layoutDateOnly = "2006-01-02"
)

// NewCSV reads every row of the CSV file at path as an OHLCV bar for pair,
// in file order, and returns a dispatcher.EventSource that replays them as
// bar.Event values. The file is read and parsed eagerly; NewCSV returns
// any parse error instead of surfacing it later during dispatch.
func NewCSV(path string, pair types.Pair) (dispatcher.EventSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("barsource: open %s: %w", path, err)
	}
	defer f.Close()

	bars, err := parseCSV(f, pair)
	if err != nil {
		return nil, fmt.Errorf("barsource: parse %s: %w", path, err)
	}

	source := dispatcher.NewFIFOEventSource()
	for _, b := range bars {
		source.Push(bar.Event{Bar: b})
	}
	return source, nil
}

func parseCSV(r io.Reader, pair types.Pair) ([]types.Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var bars []types.Bar
	for row := 2; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		b, err := parseRow(record, cols, pair)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

type columns struct {
	datetime, open, high, low, close, volume int
}

func columnIndex(header []string) (columns, error) {
	want := map[string]*int{}
	var c columns
	want["datetime"] = &c.datetime
	want["open"] = &c.open
	want["high"] = &c.high
	want["low"] = &c.low
	want["close"] = &c.close
	want["volume"] = &c.volume
	for name := range want {
		*want[name] = -1
	}

	for i, name := range header {
		if field, ok := want[name]; ok {
			*field = i
		}
	}
	for name, field := range want {
		if *field == -1 {
			return columns{}, fmt.Errorf("missing required column %q", name)
		}
	}
	return c, nil
}

func parseRow(record []string, cols columns, pair types.Pair) (types.Bar, error) {
	dt, err := parseDateTime(record[cols.datetime])
	if err != nil {
		return types.Bar{}, fmt.Errorf("datetime: %w", err)
	}
	open, err := decimal.NewFromString(record[cols.open])
	if err != nil {
		return types.Bar{}, fmt.Errorf("open: %w", err)
	}
	high, err := decimal.NewFromString(record[cols.high])
	if err != nil {
		return types.Bar{}, fmt.Errorf("high: %w", err)
	}
	low, err := decimal.NewFromString(record[cols.low])
	if err != nil {
		return types.Bar{}, fmt.Errorf("low: %w", err)
	}
	closePrice, err := decimal.NewFromString(record[cols.close])
	if err != nil {
		return types.Bar{}, fmt.Errorf("close: %w", err)
	}
	volume, err := decimal.NewFromString(record[cols.volume])
	if err != nil {
		return types.Bar{}, fmt.Errorf("volume: %w", err)
	}

	return types.Bar{
		Pair: pair, Open: open, High: high, Low: low, Close: closePrice,
		Volume: volume, DateTime: dt,
	}, nil
}

func parseDateTime(s string) (time.Time, error) {
	if t, err := time.Parse(layoutDateTime, s); err == nil {
		return t, nil
	}
	return time.Parse(layoutDateOnly, s)
}
