// Package money implements the typed currency values shadow accounts are
// denominated in. Amounts are exact integers (micro-units of the currency's
// minor unit) so repeated add/sub across many reconciliation cycles never
// accumulates floating-point drift.
package money

import "fmt"

// Currency is a three-letter ISO-4217-shaped currency code, e.g. "USD".
type Currency string

// MicroUnitsPerUnit is the fixed-point scale every Amount is carried at:
// one whole currency unit equals 1,000,000 micro-units.
const MicroUnitsPerUnit = 1_000_000

// Amount is an exact quantity of a single Currency, held as micro-units.
type Amount struct {
	Currency Currency
	Micros   int64
}

// USD builds a dollar-denominated Amount from a decimal value, e.g.
// USD(0.10) == 100000 micro-units.
func USD(dollars float64) Amount {
	return Amount{Currency: "USD", Micros: int64(dollars*MicroUnitsPerUnit + sign(dollars)*0.5)}
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// IsZero reports whether the amount has no magnitude.
func (a Amount) IsZero() bool {
	return a.Micros == 0
}

// Add returns a + b. Both must share a currency; mismatched currencies
// panic since they indicate a configuration or protocol bug, not a
// recoverable runtime condition.
func (a Amount) Add(b Amount) Amount {
	a.mustMatch(b)
	return Amount{Currency: a.Currency, Micros: a.Micros + b.Micros}
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	a.mustMatch(b)
	return Amount{Currency: a.Currency, Micros: a.Micros - b.Micros}
}

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func (a Amount) Cmp(b Amount) int {
	a.mustMatch(b)
	switch {
	case a.Micros < b.Micros:
		return -1
	case a.Micros > b.Micros:
		return 1
	default:
		return 0
	}
}

func (a Amount) mustMatch(b Amount) {
	if a.Currency != b.Currency {
		panic(fmt.Sprintf("money: currency mismatch %s vs %s", a.Currency, b.Currency))
	}
}

// Decimal returns the amount as a floating-point value in whole currency
// units. Intended for display/logging only — never for arithmetic.
func (a Amount) Decimal() float64 {
	return float64(a.Micros) / MicroUnitsPerUnit
}

func (a Amount) String() string {
	return fmt.Sprintf("%s%.6f", a.Currency, a.Decimal())
}
