package exchange

import (
	"fmt"

	"github.com/SamiKoh/paperex/internal/orders"
)

// reindexEvery is how many openOrders calls pass between compactions of
// the open-orders list. Between compactions, closed orders are skipped but
// left in the slice; this amortizes the O(n) cleanup instead of paying it
// on every bar.
const reindexEvery = 50

// orderIndex is an insertion-ordered store of every order the exchange has
// ever accepted, plus a best-effort list of currently-open ones. It is
// deliberately not safe for concurrent use — the exchange's matching loop
// and order-submission entry points are the only callers, and both run on
// the exchange's single logical thread of control.
type orderIndex struct {
	byID  map[string]*orders.Order
	order []*orders.Order // insertion order, including closed orders until compacted

	callsSinceReindex int
}

func newOrderIndex() *orderIndex {
	return &orderIndex{byID: make(map[string]*orders.Order)}
}

// add registers a new order. Panics on a duplicate id — the exchange
// generates ids from 128 bits of randomness, so a collision reaching here
// is a programming error, never a user-triggerable one.
func (idx *orderIndex) add(o *orders.Order) {
	if _, exists := idx.byID[o.ID()]; exists {
		panic(fmt.Sprintf("paperex: duplicate order id %s", o.ID()))
	}
	idx.byID[o.ID()] = o
	idx.order = append(idx.order, o)
}

// get looks up an order by id.
func (idx *orderIndex) get(id string) (*orders.Order, bool) {
	o, ok := idx.byID[id]
	return o, ok
}

// openOrders returns every order currently in the OPEN state, in insertion
// order. Every reindexEvery calls, the backing slice is compacted in place
// to drop references to orders no longer open.
func (idx *orderIndex) openOrders() []*orders.Order {
	idx.callsSinceReindex++
	if idx.callsSinceReindex >= reindexEvery {
		idx.compact()
	}

	open := make([]*orders.Order, 0, len(idx.order))
	for _, o := range idx.order {
		if o.IsOpen() {
			open = append(open, o)
		}
	}
	return open
}

// openOrdersForPair is openOrders filtered to one pair; the exchange's
// matching loop only ever needs one pair's open orders at a time.
func (idx *orderIndex) openOrdersForPair(pair string) []*orders.Order {
	open := idx.openOrders()
	filtered := open[:0]
	for _, o := range open {
		if o.Pair().String() == pair {
			filtered = append(filtered, o)
		}
	}
	return filtered
}

// compact rebuilds the backing slice keeping only still-open orders,
// preserving insertion order, and resets the reindex counter.
func (idx *orderIndex) compact() {
	kept := idx.order[:0]
	for _, o := range idx.order {
		if o.IsOpen() {
			kept = append(kept, o)
		}
	}
	idx.order = kept
	idx.callsSinceReindex = 0
}
