// Package dispatcher provides the event-delivery runtime the exchange core
// is driven by. The core treats the dispatcher as an external collaborator
// (its contract is what matters, not this implementation), but a conforming
// implementation is shipped here so the exchange can be exercised
// end-to-end without a caller-supplied runtime.
//
// Delivery is deliberately single-threaded and synchronous: the core
// promises no operation ever actually suspends, so there is no concurrency
// here, only a run loop draining FIFO queues and calling registered
// handlers in order.
package dispatcher

import (
	"context"
	"fmt"
)

// Event is any payload that can be pushed through an EventSource. Handlers
// type-assert to the concrete event type they expect. Left as `any` rather
// than a sealed interface so event types can live in whichever package
// defines them (bar.Event, for instance) instead of all being forced into
// this package.
type Event = any

// EventSource is a FIFO queue of pending events. Push enqueues; the
// dispatcher drains sources via the unexported next method.
type EventSource interface {
	Push(ev Event)
	next() (Event, bool)
}

// EventHandler processes one event. Returning an error stops the
// dispatcher's Run loop.
type EventHandler func(ctx context.Context, ev Event) error

// FIFOEventSource is the reference EventSource: a mutex-free slice-backed
// queue. The exchange core is single-threaded, so no locking is needed —
// Push and the dispatcher's drain both run on the same goroutine.
type FIFOEventSource struct {
	pending []Event
}

// NewFIFOEventSource returns an empty event source.
func NewFIFOEventSource() *FIFOEventSource {
	return &FIFOEventSource{}
}

// Push enqueues an event for later delivery.
func (s *FIFOEventSource) Push(ev Event) {
	s.pending = append(s.pending, ev)
}

func (s *FIFOEventSource) next() (Event, bool) {
	if len(s.pending) == 0 {
		return nil, false
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, true
}

// Dispatcher is the contract the exchange core drives: subscribe sources
// to handlers, then run delivery to exhaustion. Exchange holds one of
// these rather than a concrete *SerialDispatcher, so a caller embedding
// the exchange in a different runtime (a real event loop, a test harness
// that steps one event at a time) can supply its own implementation.
type Dispatcher interface {
	Subscribe(source EventSource, handler EventHandler)
	Run(ctx context.Context) error
}

type subscription struct {
	source  EventSource
	handler EventHandler
}

// SerialDispatcher drains every registered source to exhaustion, one event
// at a time, calling each source's handler in registration order. It is a
// conforming, minimal scheduler: delivery is FIFO per source, and any event
// pushed onto a source as a side effect of handling another event is
// eventually delivered in the same Run call.
type SerialDispatcher struct {
	subs []subscription
}

// New returns an empty SerialDispatcher.
func New() *SerialDispatcher {
	return &SerialDispatcher{}
}

// Subscribe registers handler to receive every event pushed onto source.
func (d *SerialDispatcher) Subscribe(source EventSource, handler EventHandler) {
	d.subs = append(d.subs, subscription{source: source, handler: handler})
}

// Run drains every registered source until none has a pending event, in
// round-robin order, stopping early if ctx is canceled or a handler errors.
func (d *SerialDispatcher) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		delivered := false
		for _, sub := range d.subs {
			ev, ok := sub.source.next()
			if !ok {
				continue
			}
			delivered = true
			if err := sub.handler(ctx, ev); err != nil {
				return fmt.Errorf("dispatcher: handler error: %w", err)
			}
		}
		if !delivered {
			return nil
		}
	}
}

var _ Dispatcher = (*SerialDispatcher)(nil)
