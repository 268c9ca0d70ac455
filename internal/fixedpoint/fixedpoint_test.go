package fixedpoint

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		amount    string
		precision int32
		want      string
	}{
		{"truncates fractional base", "1.23456789", 8, "1.23456789"},
		{"drops extra digits, no rounding up", "1.999999999", 8, "1.99999999"},
		{"zero precision truncates to whole units", "3.99", 0, "3"},
		{"negative truncates toward zero", "-1.999", 2, "-1.99"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Truncate(dec(tt.amount), tt.precision)
			if !got.Equal(dec(tt.want)) {
				t.Errorf("Truncate(%s, %d) = %s, want %s", tt.amount, tt.precision, got, tt.want)
			}
		})
	}
}

func TestRoundHalfEven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		amount    string
		precision int32
		want      string
	}{
		{"rounds down to even", "1.005", 2, "1.00"},
		{"rounds up to even", "1.015", 2, "1.02"},
		{"exact value unchanged", "1.50", 2, "1.50"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := RoundHalfEven(dec(tt.amount), tt.precision)
			if !got.Equal(dec(tt.want)) {
				t.Errorf("RoundHalfEven(%s, %d) = %s, want %s", tt.amount, tt.precision, got, tt.want)
			}
		})
	}
}

func TestRoundUp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		amount    string
		precision int32
		want      string
	}{
		{"rounds tiny positive fee up", "0.0001", 2, "0.01"},
		{"exact value unchanged", "0.05", 2, "0.05"},
		{"zero stays zero", "0", 2, "0"},
		{"negative rounds away from zero", "-0.001", 2, "-0.01"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := RoundUp(dec(tt.amount), tt.precision)
			if !got.Equal(dec(tt.want)) {
				t.Errorf("RoundUp(%s, %d) = %s, want %s", tt.amount, tt.precision, got, tt.want)
			}
		})
	}
}
