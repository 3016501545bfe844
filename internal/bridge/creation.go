// Package bridge decouples account creation, which happens under the
// store's lock, from first-time initialization against the master,
// which is a blocking network round trip. Calling the master directly
// from Store.onNewAccount would mean a worker's first spend commit
// blocks on that round trip while holding the store's mutex — every
// other account's reads and writes would stall behind one slow master
// reply.
package bridge

import (
	"context"

	"github.com/rs/zerolog"

	"slavebanker/internal/account"
	"slavebanker/internal/observability"
)

// CreationBridge is the multi-producer single-consumer queue between
// Store.onNewAccount (many goroutines, invoked under the store's lock)
// and the single worker that performs first-time master initialization.
// Pending holds keys the store has created that have not yet been
// handed to the init function.
type CreationBridge struct {
	pending chan account.Key
	log     zerolog.Logger
	metrics *observability.Metrics
}

// SetMetrics attaches the process-wide metrics registry. Nil leaves the
// bridge silently uninstrumented.
func (b *CreationBridge) SetMetrics(m *observability.Metrics) {
	b.metrics = m
}

// NewCreationBridge builds a bridge with the given queue depth. A depth
// of a few thousand comfortably absorbs a burst of first-seen campaigns
// without blocking the store lock; Enqueue never blocks past that.
func NewCreationBridge(depth int, log zerolog.Logger) *CreationBridge {
	if depth <= 0 {
		depth = 4096
	}
	return &CreationBridge{
		pending: make(chan account.Key, depth),
		log:     log,
	}
}

// Enqueue is the NewAccountFunc passed to account.NewStore. It must
// never block: a full queue means initialization is falling behind, in
// which case the key is dropped and logged rather than stalling every
// other account behind the store's lock. The store only notifies on a
// key's first creation, so a dropped key is not enqueued again and
// stays uninitialized.
func (b *CreationBridge) Enqueue(key account.Key) {
	select {
	case b.pending <- key:
		if b.metrics != nil {
			b.metrics.CreationBridgeDepth.Set(float64(len(b.pending)))
		}
	default:
		b.log.Error().Str("account", key.String()).Msg("creation bridge queue full, dropping key, account stays uninitialized")
	}
}

// Run drains the queue until ctx is cancelled, calling init once per
// key. A failed init is not retried: the key stays uninitialized in the
// store and ForEachInitializedAccount keeps skipping it, since no other
// path enqueues a key that already exists.
func (b *CreationBridge) Run(ctx context.Context, init func(context.Context, account.Key)) {
	for {
		select {
		case <-ctx.Done():
			return
		case key := <-b.pending:
			if b.metrics != nil {
				b.metrics.CreationBridgeDepth.Set(float64(len(b.pending)))
			}
			b.log.Debug().Str("account", key.String()).Msg("calling addSpendAccount for newly created account")
			init(ctx, key)
		}
	}
}

// Len reports the current queue depth, for metrics.
func (b *CreationBridge) Len() int {
	return len(b.pending)
}
