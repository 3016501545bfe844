package money

import (
	"fmt"
	"regexp"
	"strconv"
)

// DefaultSpendRate is the process-wide default reauthorize slice: ten
// cents per cycle. It mirrors the original SlaveBanker's
// `const CurrencyPool SlaveBanker::DefaultSpendRate = CurrencyPool(USD(0.10))`
// — a package-level constant, not mutable state on any struct.
var DefaultSpendRate = NewPool(USD(0.10))

var rateExpr = regexp.MustCompile(`^(\d+(?:\.\d+)?)([A-Za-z]{3})(?:/(\d+)([KM]?))?$`)

// ParseRate parses the --spend-rate flag syntax: "<amount><CCY>[/<divisor><K|M>]".
// "100000USD/1M" means 100000 USD divided by 1,000,000, i.e. USD(0.10) per
// reauthorize cycle — the CLI-friendly spelling of DefaultSpendRate.
func ParseRate(s string) (Pool, error) {
	m := rateExpr.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("money: invalid spend-rate syntax %q", s)
	}

	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, fmt.Errorf("money: invalid spend-rate amount %q: %w", m[1], err)
	}
	currency := Currency(m[2])

	divisor := 1.0
	if m[3] != "" {
		d, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return nil, fmt.Errorf("money: invalid spend-rate divisor %q: %w", m[3], err)
		}
		switch m[4] {
		case "K":
			d *= 1_000
		case "M":
			d *= 1_000_000
		}
		divisor = d
	}

	value := amount / divisor
	micros := int64(value*MicroUnitsPerUnit + sign(value)*0.5)
	if micros == 0 {
		return nil, fmt.Errorf("money: spend-rate %q resolves to zero", s)
	}

	return NewPool(Amount{Currency: currency, Micros: micros}), nil
}
