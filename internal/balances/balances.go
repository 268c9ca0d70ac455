// Package balances implements the account balance ledger: per-symbol
// available funds plus per-order holds. It is the only place money moves
// in the whole exchange — order acceptance and every fill flow through
// OrderAccepted/OrderUpdated.
package balances

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/SamiKoh/paperex/pkg/types"
)

// AccountBalances is the balance ledger for one exchange instance. All
// methods are safe for concurrent use, though the exchange core only ever
// calls them from its single logical thread of control.
type AccountBalances struct {
	mu        sync.Mutex
	available map[types.Symbol]decimal.Decimal
	holds     map[string]map[types.Symbol]decimal.Decimal // order id -> symbol -> amount
}

// New creates a ledger seeded with initial, no holds.
func New(initial map[types.Symbol]decimal.Decimal) *AccountBalances {
	available := make(map[types.Symbol]decimal.Decimal, len(initial))
	for symbol, amount := range initial {
		available[symbol] = amount
	}
	return &AccountBalances{
		available: available,
		holds:     make(map[string]map[types.Symbol]decimal.Decimal),
	}
}

// Symbols returns every symbol the ledger has ever held a balance in.
func (b *AccountBalances) Symbols() []types.Symbol {
	b.mu.Lock()
	defer b.mu.Unlock()

	symbols := make([]types.Symbol, 0, len(b.available))
	for symbol := range b.available {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// GetAvailableBalance returns the spendable balance for symbol.
func (b *AccountBalances) GetAvailableBalance(symbol types.Symbol) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available[symbol]
}

// GetBalanceOnHold returns the sum of symbol held across every order.
func (b *AccountBalances) GetBalanceOnHold(symbol types.Symbol) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := decimal.Zero
	for _, row := range b.holds {
		total = total.Add(row[symbol])
	}
	return total
}

// GetBalanceOnHoldForOrder returns what orderID currently holds in symbol.
func (b *AccountBalances) GetBalanceOnHoldForOrder(orderID string, symbol types.Symbol) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.holds[orderID][symbol]
}

// OrderAccepted moves required off available and onto orderID's hold row,
// one symbol at a time. required amounts must all be strictly positive and
// available must already cover them — the exchange guarantees this by
// calling its own affordability check before accepting the order, so a
// violation here is a programming error, not a user error.
func (b *AccountBalances) OrderAccepted(orderID string, required map[types.Symbol]decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for symbol, amount := range required {
		if !amount.IsPositive() {
			panic(fmt.Sprintf("paperex: invalid required balance %s for %s", amount, symbol))
		}
		if b.available[symbol].LessThan(amount) {
			panic(fmt.Sprintf("paperex: insufficient %s available to hold %s (have %s)", symbol, amount, b.available[symbol]))
		}
	}

	row, ok := b.holds[orderID]
	if !ok {
		row = make(map[types.Symbol]decimal.Decimal)
		b.holds[orderID] = row
	}
	for symbol, amount := range required {
		b.available[symbol] = b.available[symbol].Sub(amount)
		row[symbol] = row[symbol].Add(amount)
	}
}

// OrderUpdated applies delta, the combined effect of one fill plus its
// fees, to orderID's balances. For each symbol: a negative component is
// first drawn down from orderID's hold (up to its absolute value, with any
// remainder drawn directly from available); a positive component credits
// available directly. When isOpen is false (the order just completed or
// was canceled), whatever remains of orderID's hold row — in every symbol,
// not just those named in delta — is released back to available and the
// row is dropped.
func (b *AccountBalances) OrderUpdated(orderID string, isOpen bool, delta map[types.Symbol]decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	row, ok := b.holds[orderID]
	if !ok {
		row = make(map[types.Symbol]decimal.Decimal)
		b.holds[orderID] = row
	}

	for symbol, amount := range delta {
		switch {
		case amount.IsNegative():
			need := amount.Neg()
			held := row[symbol]
			consumed := decimal.Min(need, held)
			row[symbol] = held.Sub(consumed)
			remainder := need.Sub(consumed)
			if remainder.IsPositive() {
				b.available[symbol] = b.available[symbol].Sub(remainder)
			}
		case amount.IsPositive():
			b.available[symbol] = b.available[symbol].Add(amount)
		}
	}

	if !isOpen {
		for symbol, held := range row {
			if held.IsPositive() {
				b.available[symbol] = b.available[symbol].Add(held)
			}
		}
		delete(b.holds, orderID)
	}
}
