package account

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"slavebanker/internal/money"
	"slavebanker/internal/observability"
)

// NewAccountFunc is invoked by the store the moment a key is created,
// while the store's lock is held. Implementations MUST NOT block or
// re-enter the store — see the Store godoc and internal/bridge.
type NewAccountFunc func(Key)

// Store is the mapping AccountKey -> ShadowAccount every other component
// reads and writes through. It is the single linearization point for an
// account's existence: CreateAccountAtomic and CommitSpend create keys
// through createLocked, which fires onNewAccount. InitializeAndMergeState
// also inserts a key it does not find, without firing onNewAccount.
//
// onNewAccount fires *inside* s.mu. It exists purely to notify a
// decoupled consumer (internal/bridge.CreationBridge) that a key needs
// first-time initialization; it must never perform blocking work or
// call back into the store, or it will deadlock against the very lock
// it was invoked under.
type Store struct {
	mu           sync.Mutex
	accounts     map[Key]*ShadowAccount
	onNewAccount NewAccountFunc
	log          zerolog.Logger
	metrics      *observability.Metrics
}

// NewStore constructs an empty store. onNewAccount may be nil.
func NewStore(onNewAccount NewAccountFunc, log zerolog.Logger) *Store {
	return &Store{
		accounts:     make(map[Key]*ShadowAccount),
		onNewAccount: onNewAccount,
		log:          log,
	}
}

// SetMetrics attaches the process-wide metrics registry. Safe to call
// once after construction; nil leaves the store silently uninstrumented.
func (s *Store) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// createLocked is the sole insertion path; both CreateAccountAtomic and
// CommitSpend fall through to it so there is exactly one place a key
// transitions from absent to present.
func (s *Store) createLocked(key Key) bool {
	if _, exists := s.accounts[key]; exists {
		return false
	}
	s.accounts[key] = &ShadowAccount{Key: key}
	if s.metrics != nil {
		s.metrics.AccountsCreatedTotal.Inc()
	}
	if s.onNewAccount != nil {
		s.onNewAccount(key)
	}
	return true
}

// CreateAccountAtomic is the single linearization point for a key's
// existence: it returns true exactly once across all callers for a
// given key. The true winner owns first-time initialization.
func (s *Store) CreateAccountAtomic(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(key)
}

// GetAccount returns a snapshot of the shadow account, if any.
func (s *Store) GetAccount(key Key) (ShadowAccount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.accounts[key]
	if !ok {
		return ShadowAccount{}, false
	}
	return existing.clone(), true
}

// GetAccountKeys returns every key currently in the store, initialized
// or not.
func (s *Store) GetAccountKeys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Key, 0, len(s.accounts))
	for k := range s.accounts {
		out = append(out, k)
	}
	return out
}

// IsInitialized reports whether key has completed its first-time sync.
func (s *Store) IsInitialized(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.accounts[key]
	return ok && existing.Initialized
}

// ForEachInitializedAccount invokes fn once per initialized account, in
// an unspecified order, while the store's lock is held. fn must not call
// back into any mutating Store method.
func (s *Store) ForEachInitializedAccount(fn func(Key, ShadowAccount)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.accounts {
		if v.Initialized {
			fn(k, v.clone())
		}
	}
}

// InitializeAndMergeState sets a freshly created account's first
// authorization from the master's snapshot and marks it initialized.
// It is idempotent: applying it twice with the same masterSnapshot
// produces the same result as applying it once, since it overwrites
// rather than accumulates.
func (s *Store) InitializeAndMergeState(key Key, master Account) (ShadowAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh := ShadowAccount{Key: key}
	if existing, ok := s.accounts[key]; ok {
		sh = existing.clone()
	}

	sh.Authorized = master.Authorized
	sh.Committed = money.Pool{}
	sh.AcknowledgedSpend = master.Commitments
	sh.Initialized = true

	if err := checkAvailableInvariant(sh); err != nil {
		if s.metrics != nil {
			s.metrics.MergeInvariantViolations.WithLabelValues("init").Inc()
		}
		return ShadowAccount{}, err
	}

	s.accounts[key] = &sh
	if s.metrics != nil {
		s.metrics.AccountsInitialized.Inc()
	}
	return sh.clone(), nil
}

// SyncFromMaster performs the three-way merge of local-committed,
// master-acknowledged, and new-authorization deltas described in the
// design: local committed that the master has now acknowledged moves to
// acknowledgedSpend and is cleared locally; anything committed since the
// snapshot was sent persists for the next cycle. It never decreases
// acknowledgedSpend and never lets the net authorized budget fall below
// what has already been committed — either is a merge invariant
// violation, logged and the sync aborted with the account left in its
// previous state.
func (s *Store) SyncFromMaster(key Key, master Account) (ShadowAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.accounts[key]
	if !ok {
		return ShadowAccount{}, fmt.Errorf("account %s: sync from master on unknown account", key)
	}
	merged := existing.clone()

	newAckTotal := merged.AcknowledgedSpend
	for _, c := range unionCurrencies(merged.AcknowledgedSpend, master.Commitments) {
		newAck := master.Commitments.Get(c)
		oldAck := merged.AcknowledgedSpend.Get(c)
		delta := newAck.Micros - oldAck.Micros
		if delta < 0 {
			if s.metrics != nil {
				s.metrics.MergeInvariantViolations.WithLabelValues("sync").Inc()
			}
			return ShadowAccount{}, fmt.Errorf(
				"account %s: merge invariant violated — acknowledgedSpend for %s decreased (%d -> %d)",
				key, c, oldAck.Micros, newAck.Micros)
		}
		if delta == 0 {
			continue
		}
		committedBefore := merged.Committed.Get(c).Micros
		release := delta
		if release > committedBefore {
			release = committedBefore
		}
		if release > 0 {
			merged.Committed = merged.Committed.Sub(money.NewPool(money.Amount{Currency: c, Micros: release}))
		}
		newAckTotal = newAckTotal.Add(money.NewPool(money.Amount{Currency: c, Micros: delta}))
	}
	merged.AcknowledgedSpend = newAckTotal

	previousAuthorized := merged.Authorized
	merged.Authorized = master.Authorized
	diff := master.Authorized.Sub(previousAuthorized)
	for _, c := range diff.Currencies() {
		amt := diff.Get(c)
		switch {
		case amt.Micros > 0:
			merged.recordIncrease(money.NewPool(amt))
		case amt.Micros < 0:
			merged.recordDecrease(money.NewPool(money.Amount{Currency: c, Micros: -amt.Micros}))
		}
	}

	if err := checkAvailableInvariant(merged); err != nil {
		s.log.Error().Err(err).Str("account", key.String()).Msg("merge invariant violated, aborting sync")
		if s.metrics != nil {
			s.metrics.MergeInvariantViolations.WithLabelValues("sync").Inc()
		}
		return ShadowAccount{}, err
	}

	s.accounts[key] = &merged
	return merged.clone(), nil
}

// CommitSpend records a worker's local intent to spend. It is the store
// half of lifecycle path (a) in the design: an account enters the store
// either here (first commit) or via CreateAccountAtomic driven by the
// budget controller (path (b)). Both funnel through createLocked so
// CreateAccountAtomic remains the single linearization point regardless
// of which path wins the race.
func (s *Store) CommitSpend(key Key, amount money.Pool) (ShadowAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.createLocked(key)
	existing := s.accounts[key]
	merged := existing.clone()
	merged.Committed = merged.Committed.Add(amount)

	if err := checkAvailableInvariant(merged); err != nil {
		if s.metrics != nil {
			s.metrics.MergeInvariantViolations.WithLabelValues("commit").Inc()
		}
		return ShadowAccount{}, err
	}

	s.accounts[key] = &merged
	return merged.clone(), nil
}

// unionCurrencies returns the deduplicated currencies appearing in either pool.
func unionCurrencies(a, b money.Pool) []money.Currency {
	seen := map[money.Currency]bool{}
	out := make([]money.Currency, 0, len(a)+len(b))
	for _, c := range a.Currencies() {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range b.Currencies() {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// checkAvailableInvariant enforces
// available = authorized - committed - acknowledgedSpend >= 0 for every
// currency the account has any authorization in.
func checkAvailableInvariant(s ShadowAccount) error {
	for _, c := range s.Authorized.Currencies() {
		avail := s.Authorized.Get(c).Sub(s.Committed.Get(c)).Sub(s.AcknowledgedSpend.Get(c))
		if avail.Micros < 0 {
			return fmt.Errorf("account %s: available balance for %s would go negative (%d micros)",
				s.Key, c, avail.Micros)
		}
	}
	return nil
}
