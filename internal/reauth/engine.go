// Package reauth implements the periodic balance top-up pass: request a
// fresh budget slice sized to the configured spend rate for every
// initialized account, merging whatever the master sends back.
package reauth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"slavebanker/internal/account"
	"slavebanker/internal/money"
	"slavebanker/internal/observability"
	"slavebanker/internal/transport"
)

func marshalSpendRate(rate money.Pool) ([]byte, error) {
	return json.Marshal(rate)
}

func decodeAccount(body []byte) (account.Account, error) {
	var acc account.Account
	if err := json.Unmarshal(body, &acc); err != nil {
		return account.Account{}, err
	}
	return acc, nil
}

// Engine drives the reauthorize pass and owns lastReauthorize, the
// other half of the liveness pair.
type Engine struct {
	store         *account.Store
	app           transport.ApplicationLayer
	accountSuffix string
	spendRate     money.Pool
	log           zerolog.Logger

	syncLock        sync.Mutex
	lastReauthorize time.Time
	numReauthorized atomic.Int64

	// reauthorizing and accountsLeft are touched only from the single
	// cooperative timer loop plus whatever goroutines the transport
	// completes callbacks on; per the design's open question, callbacks
	// are not guaranteed serialized here, so both are protected by mu
	// rather than left bare.
	mu            sync.Mutex
	reauthorizing bool
	accountsLeft  int
	passStart     time.Time

	metrics *observability.Metrics
}

// SetMetrics attaches the process-wide metrics registry. Nil leaves the
// engine silently uninstrumented.
func (e *Engine) SetMetrics(m *observability.Metrics) {
	e.metrics = m
}

// New builds a reauthorize engine. spendRate must be non-zero; the
// caller (the slave banker constructor) is responsible for enforcing
// that as a configuration error.
func New(store *account.Store, app transport.ApplicationLayer, accountSuffix string, spendRate money.Pool, log zerolog.Logger) *Engine {
	return &Engine{
		store:         store,
		app:           app,
		accountSuffix: accountSuffix,
		spendRate:     spendRate,
		log:           log,
	}
}

// LastReauthorize returns the timestamp of the most recently completed
// reauthorize pass, read under syncLock.
func (e *Engine) LastReauthorize() time.Time {
	e.syncLock.Lock()
	defer e.syncLock.Unlock()
	return e.lastReauthorize
}

func (e *Engine) setLastReauthorize(t time.Time) {
	e.syncLock.Lock()
	e.lastReauthorize = t
	e.syncLock.Unlock()
}

// NumReauthorized reports how many reauthorize passes have completed.
func (e *Engine) NumReauthorized() int64 { return e.numReauthorized.Load() }

// Reauthorize is the 1Hz timer entry point. If a previous pass is still
// running, the tick is skipped with a warning — unlike syncAll,
// reauthorize passes are strictly non-overlapping.
func (e *Engine) Reauthorize(ctx context.Context) {
	var keys []account.Key
	e.store.ForEachInitializedAccount(func(k account.Key, _ account.ShadowAccount) {
		keys = append(keys, k)
	})

	e.mu.Lock()
	if e.reauthorizing {
		e.mu.Unlock()
		e.log.Warn().Msg("reauthorize tick skipped, previous pass still in flight")
		if e.metrics != nil {
			e.metrics.ReauthorizeSkippedTotal.Inc()
		}
		return
	}
	if len(keys) == 0 {
		// Empty set: per the design, an empty pass does not set
		// reauthorizing at all, so liveness keeps depending solely on
		// lastSync until an account actually exists.
		e.mu.Unlock()
		return
	}
	e.reauthorizing = true
	e.accountsLeft = len(keys)
	e.passStart = time.Now()
	e.mu.Unlock()

	for _, key := range keys {
		e.reauthorizeOne(ctx, key)
	}
}

func (e *Engine) reauthorizeOne(ctx context.Context, key account.Key) {
	shadowName := key.ShadowName(e.accountSuffix)
	path := fmt.Sprintf("/v1/accounts/%s/balance", shadowName)
	body, err := marshalSpendRate(e.spendRate)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to marshal spend rate")
		e.onResponse()
		return
	}

	e.app.Request(ctx, "POST", path, map[string]string{"accountType": string(transport.TransferSpend)}, body, func(resp transport.RawResponse, err error) {
		if err != nil {
			e.log.Warn().Err(err).Str("account", key.String()).Msg("reauthorize request failed")
			e.onResponse()
			return
		}
		master, decodeErr := decodeAccount(resp.Body)
		if decodeErr != nil {
			e.log.Error().Err(decodeErr).Str("account", key.String()).Msg("failed to decode reauthorize response")
			e.onResponse()
			return
		}
		if _, mergeErr := e.store.SyncFromMaster(key, master); mergeErr != nil {
			e.log.Error().Err(mergeErr).Str("account", key.String()).Msg("merge invariant violated during reauthorize")
		}
		e.onResponse()
	})
}

// onResponse handles bookkeeping common to every per-account response:
// decrementing accountsLeft and, on the last one, clearing the overlap
// flag and publishing the pass's completion stats. Per the design's
// second open question, reauthorizing is cleared and lastReauthorize is
// set while still holding mu, so an external observer taking mu (via
// Reauthorizing/AccountsLeft) never sees the flag false while the
// timestamp is still stale. LastReauthorize itself still takes syncLock
// to stay consistent with the sync engine's read path, but that
// acquisition nests inside mu here and never the reverse, so there's no
// deadlock ordering hazard.
func (e *Engine) onResponse() {
	e.mu.Lock()
	e.accountsLeft--
	last := e.accountsLeft == 0
	var delay time.Duration
	if last {
		delay = time.Since(e.passStart)
		e.reauthorizing = false
		e.setLastReauthorize(time.Now())
		e.numReauthorized.Add(1)
	}
	e.mu.Unlock()

	if last {
		e.log.Debug().Dur("delay", delay).Msg("reauthorize pass completed")
		if e.metrics != nil {
			e.metrics.ReauthorizePassesTotal.Inc()
			e.metrics.ReauthorizeDuration.Observe(delay.Seconds())
		}
	}
}

// AccountsLeft reports the current pending-response count, for tests
// and metrics.
func (e *Engine) AccountsLeft() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accountsLeft
}

// Reauthorizing reports whether a pass is currently in flight.
func (e *Engine) Reauthorizing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reauthorizing
}

// WaitReauthorized spins on the reauthorizing flag with a bounded sleep
// until it clears or ctx is done. It is a shutdown/test helper, not a
// fast-path synchronization primitive.
func (e *Engine) WaitReauthorized(ctx context.Context) error {
	for e.Reauthorizing() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}
