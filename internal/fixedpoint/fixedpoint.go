// Package fixedpoint wraps github.com/shopspring/decimal with the three
// rounding disciplines the matching loop needs: truncate toward zero (base
// amounts, so a fill never exceeds available liquidity), round-half-even
// (quote amounts), and round-up away from zero (fees, so the account never
// under-charges itself). decimal.Decimal's own .Round rounds
// half-away-from-zero, not half-even, so it can't be reused directly for
// the quote leg.
package fixedpoint

import "github.com/shopspring/decimal"

// Truncate chops amount to precision decimal places toward zero, discarding
// the remainder. Used for base-asset fills.
func Truncate(amount decimal.Decimal, precision int32) decimal.Decimal {
	return amount.Truncate(precision)
}

// RoundHalfEven rounds amount to precision decimal places using banker's
// rounding. Used for quote-asset fills.
func RoundHalfEven(amount decimal.Decimal, precision int32) decimal.Decimal {
	return amount.RoundBank(precision)
}

// RoundUp rounds amount to precision decimal places away from zero. Used
// for fees, so that a fee is never under-charged by truncation.
func RoundUp(amount decimal.Decimal, precision int32) decimal.Decimal {
	if amount.IsZero() {
		return amount
	}
	truncated := amount.Truncate(precision)
	if truncated.Equal(amount) {
		return truncated
	}
	unit := decimal.New(1, -precision)
	if amount.IsNegative() {
		return truncated.Sub(unit)
	}
	return truncated.Add(unit)
}
