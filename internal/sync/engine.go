// Package sync implements the report-spend half of reconciliation: the
// per-account sync round-trip and the fan-out across every initialized
// account that the report-spend timer drives once a second.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"slavebanker/internal/account"
	"slavebanker/internal/observability"
	"slavebanker/internal/transport"
)

// Engine drives syncAccount/syncAll and owns lastSync, the half of the
// liveness pair this package is responsible for.
type Engine struct {
	store         *account.Store
	app           transport.ApplicationLayer
	accountSuffix string
	log           zerolog.Logger

	syncLock sync.Mutex
	lastSync time.Time

	lastTick time.Time
	period   time.Duration

	// reportSpendSent records when the most recently started pass began;
	// the completion of any pass resets it to nil. A non-nil value
	// observed at the start of a new tick means a previous pass hasn't
	// finished yet; unlike reauthorize, this is only ever logged, never
	// gated on.
	tickMu          sync.Mutex
	reportSpendSent *time.Time

	metrics *observability.Metrics
}

// SetMetrics attaches the process-wide metrics registry. Nil leaves the
// engine silently uninstrumented.
func (e *Engine) SetMetrics(m *observability.Metrics) {
	e.metrics = m
}

// New builds a sync engine. period is the report-spend tick interval
// (1s per the design); it's only used to detect timer drift.
func New(store *account.Store, app transport.ApplicationLayer, accountSuffix string, period time.Duration, log zerolog.Logger) *Engine {
	return &Engine{
		store:         store,
		app:           app,
		accountSuffix: accountSuffix,
		period:        period,
		log:           log,
	}
}

// LastSync returns the timestamp of the most recently completed
// all-success syncAll pass, read under syncLock.
func (e *Engine) LastSync() time.Time {
	e.syncLock.Lock()
	defer e.syncLock.Unlock()
	return e.lastSync
}

func (e *Engine) setLastSync(t time.Time) {
	e.syncLock.Lock()
	e.lastSync = t
	e.syncLock.Unlock()
}

// syncAccount sends the account's current shadow view to the master,
// merges the returned snapshot, and invokes onDone with the post-merge
// shadow or the failure. A panicking onDone is caught and logged rather
// than crashing the caller's goroutine, since onDone runs on whatever
// goroutine the transport implementation chose to complete on.
func (e *Engine) syncAccount(ctx context.Context, key account.Key, onDone func(account.ShadowAccount, error)) {
	shadow, ok := e.store.GetAccount(key)
	if !ok {
		e.safeCallback(func() { onDone(account.ShadowAccount{}, nil) })
		return
	}
	shadowName := key.ShadowName(e.accountSuffix)

	e.app.SyncAccount(ctx, shadow, shadowName, func(master account.Account, err error) {
		if err != nil {
			e.log.Warn().Err(err).Str("account", key.String()).Msg("sync round-trip failed")
			e.safeCallback(func() { onDone(account.ShadowAccount{}, err) })
			return
		}
		merged, mergeErr := e.store.SyncFromMaster(key, master)
		if mergeErr != nil {
			e.log.Error().Err(mergeErr).Str("account", key.String()).Msg("merge invariant violated during sync")
			e.safeCallback(func() { onDone(account.ShadowAccount{}, mergeErr) })
			return
		}
		e.safeCallback(func() { onDone(merged, nil) })
	})
}

// syncAll issues one syncAccount per initialized account and fires
// onDone exactly once after all have completed. The aggregator keeps
// the first non-success failure and swallows the rest with a warning.
// An empty initialized set still advances lastSync and completes
// immediately.
func (e *Engine) syncAll(ctx context.Context, onDone func(error)) {
	start := time.Now()
	keys := e.initializedKeys()
	if e.metrics != nil {
		e.metrics.SyncAccountsPerPass.Set(float64(len(keys)))
	}
	if len(keys) == 0 {
		e.setLastSync(time.Now())
		e.recordPassMetrics(start, nil)
		onDone(nil)
		return
	}

	var (
		mu        sync.Mutex
		remaining = len(keys)
		firstErr  error
	)

	for _, key := range keys {
		key := key
		e.syncAccount(ctx, key, func(_ account.ShadowAccount, err error) {
			mu.Lock()
			if err != nil && firstErr == nil {
				firstErr = err
			} else if err != nil {
				e.log.Warn().Err(err).Str("account", key.String()).Msg("sync failure swallowed, first failure already captured")
			}
			remaining--
			done := remaining == 0
			mu.Unlock()

			if done {
				if firstErr == nil {
					e.setLastSync(time.Now())
				}
				e.recordPassMetrics(start, firstErr)
				onDone(firstErr)
			}
		})
	}
}

func (e *Engine) recordPassMetrics(start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.SyncPassesTotal.Inc()
	e.metrics.SyncPassDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.SyncPassFailuresTotal.Inc()
	}
}

func (e *Engine) initializedKeys() []account.Key {
	var keys []account.Key
	e.store.ForEachInitializedAccount(func(k account.Key, _ account.ShadowAccount) {
		keys = append(keys, k)
	})
	return keys
}

// ReportSpend is the 1Hz timer entry point. It warns on timer drift and
// on finding a previous pass still in flight, but proceeds regardless —
// overlapping passes are tolerated, not serialized.
func (e *Engine) ReportSpend(ctx context.Context) {
	now := time.Now()
	if !e.lastTick.IsZero() && e.period > 0 && now.Sub(e.lastTick) > 2*e.period {
		e.log.Warn().Dur("elapsed", now.Sub(e.lastTick)).Msg("report-spend timer drift detected")
	}
	e.lastTick = now

	e.tickMu.Lock()
	previous := e.reportSpendSent
	sent := now
	e.reportSpendSent = &sent
	e.tickMu.Unlock()
	if previous != nil {
		e.log.Warn().Time("previousSent", *previous).Msg("report-spend tick fired while previous sync pass is still in flight")
	}

	e.syncAll(ctx, func(err error) {
		e.tickMu.Lock()
		e.reportSpendSent = nil
		e.tickMu.Unlock()
		if err != nil {
			e.log.Warn().Err(err).Msg("report-spend pass completed with at least one failure")
		}
	})
}

func (e *Engine) safeCallback(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn().Interface("panic", r).Msg("sync callback panicked, recovered")
		}
	}()
	fn()
}
