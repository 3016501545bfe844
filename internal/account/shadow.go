package account

import "slavebanker/internal/money"

// DeltaKind classifies an authorization-ledger entry.
type DeltaKind int

const (
	DeltaBudgetIncrease DeltaKind = iota
	DeltaBudgetDecrease
)

// Delta is one entry in a ShadowAccount's authorization ledger.
type Delta struct {
	Kind DeltaKind
	Pool money.Pool
}

// ShadowAccount is the slave's local replica of a master Account. Workers
// read Available() when deciding whether to bid and add to Committed
// through Store.CommitSpend; the store's merge paths write every other
// field.
type ShadowAccount struct {
	Key Key

	// budgetIncreases/budgetDecreases: ledger of authorization deltas
	// applied locally, kept for diagnostics — each entry is a per-currency
	// change SyncFromMaster made to Authorized, which itself always holds
	// exactly what the master last returned.
	BudgetIncreases []Delta
	BudgetDecreases []Delta

	// Authorized is the net authorization last received from the master.
	Authorized money.Pool

	// Committed is spend the router has committed locally but not yet
	// reported to (or acknowledged by) the master.
	Committed money.Pool

	// AcknowledgedSpend is the cumulative spend the master has confirmed
	// receiving. Monotonically non-decreasing.
	AcknowledgedSpend money.Pool

	// Initialized becomes true only after the first successful master
	// exchange; the sync/reauthorize loops skip accounts until then.
	Initialized bool
}

// Available is the quantity the router reads when deciding to bid:
// authorized minus what has been committed locally and minus what the
// master has already confirmed spending.
func (s ShadowAccount) Available() money.Pool {
	return s.Authorized.Sub(s.Committed).Sub(s.AcknowledgedSpend)
}

// clone returns a deep-enough copy for safe return-by-value across the
// store's lock boundary (callers must not mutate the returned slices).
func (s ShadowAccount) clone() ShadowAccount {
	out := s
	out.BudgetIncreases = append([]Delta(nil), s.BudgetIncreases...)
	out.BudgetDecreases = append([]Delta(nil), s.BudgetDecreases...)
	return out
}

func (s *ShadowAccount) recordIncrease(p money.Pool) {
	s.BudgetIncreases = append(s.BudgetIncreases, Delta{Kind: DeltaBudgetIncrease, Pool: p})
}

func (s *ShadowAccount) recordDecrease(p money.Pool) {
	s.BudgetDecreases = append(s.BudgetDecreases, Delta{Kind: DeltaBudgetDecrease, Pool: p})
}
