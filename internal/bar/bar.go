// Package bar defines the event wrapper carrying one OHLCV candle through
// the dispatcher. The payload itself (types.Bar) lives in pkg/types since
// it's shared vocabulary; Event is the dispatcher-facing envelope.
package bar

import "github.com/SamiKoh/paperex/pkg/types"

// Event is produced by bar sources (a CSV loader, a live exchange feed,
// anything implementing dispatcher.EventSource) and consumed by
// exchange.Exchange's bar handler.
type Event struct {
	Bar types.Bar
}
