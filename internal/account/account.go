package account

import "slavebanker/internal/money"

// Account is the master-side snapshot the slave receives opaquely over
// the wire: authorized budget, committed spend, recycled amounts,
// adjustments, and enough per-line-item detail for the store to compute
// deltas against its own local view.
type Account struct {
	Key         Key                   `json:"key"`
	Authorized  money.Pool            `json:"authorized"`
	Commitments money.Pool            `json:"commitments"`
	Recycled    money.Pool            `json:"recycled"`
	Adjustments money.Pool            `json:"adjustments"`
	LineItems   map[string]money.Pool `json:"lineItems,omitempty"`
}

// Balance returns authorized - commitments - recycled + adjustments, the
// master's view of what remains available.
func (a Account) Balance() money.Pool {
	return a.Authorized.Sub(a.Commitments).Sub(a.Recycled).Add(a.Adjustments)
}

// Summary is the aggregated view returned by getAccountSummary: the
// account's own balance plus (up to the requested depth) its children's.
type Summary struct {
	Key      Key        `json:"key"`
	Balance  money.Pool `json:"balance"`
	Children []Summary  `json:"children,omitempty"`
}
