package money

import (
	"encoding/json"
	"sort"
)

// Pool is a multiset of amounts, at most one per currency — the unit the
// master protocol exchanges budgets, spend and adjustments in. A nil Pool
// behaves as an empty one.
type Pool map[Currency]int64

// NewPool builds a Pool from a list of amounts. Amounts sharing a
// currency are summed.
func NewPool(amounts ...Amount) Pool {
	p := Pool{}
	for _, a := range amounts {
		p[a.Currency] += a.Micros
	}
	return p
}

// Get returns the amount held in currency c, zero if absent.
func (p Pool) Get(c Currency) Amount {
	return Amount{Currency: c, Micros: p[c]}
}

// Add returns a new pool holding p + other, currency-wise.
func (p Pool) Add(other Pool) Pool {
	out := p.clone()
	for c, v := range other {
		out[c] += v
	}
	return out
}

// Sub returns a new pool holding p - other, currency-wise.
func (p Pool) Sub(other Pool) Pool {
	out := p.clone()
	for c, v := range other {
		out[c] -= v
	}
	return out
}

// IsZero reports whether every currency in the pool nets to zero.
func (p Pool) IsZero() bool {
	for _, v := range p {
		if v != 0 {
			return false
		}
	}
	return true
}

// HasNegative reports whether any currency in the pool is below zero.
func (p Pool) HasNegative() bool {
	for _, v := range p {
		if v < 0 {
			return true
		}
	}
	return false
}

// Currencies returns the pool's currencies in deterministic (sorted) order.
func (p Pool) Currencies() []Currency {
	out := make([]Currency, 0, len(p))
	for c := range p {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p Pool) clone() Pool {
	out := make(Pool, len(p))
	for c, v := range p {
		out[c] = v
	}
	return out
}

// MarshalJSON renders the pool as the canonical wire representation the
// master protocol expects: a flat object of currency -> decimal amount.
func (p Pool) MarshalJSON() ([]byte, error) {
	decimals := make(map[Currency]float64, len(p))
	for c, v := range p {
		decimals[c] = float64(v) / MicroUnitsPerUnit
	}
	return json.Marshal(decimals)
}

// UnmarshalJSON parses the canonical wire representation back into micro-units.
func (p *Pool) UnmarshalJSON(data []byte) error {
	decimals := map[Currency]float64{}
	if err := json.Unmarshal(data, &decimals); err != nil {
		return err
	}
	out := make(Pool, len(decimals))
	for c, v := range decimals {
		out[c] = int64(v*MicroUnitsPerUnit + sign(v)*0.5)
	}
	*p = out
	return nil
}
