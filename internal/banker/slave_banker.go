// Package banker wires the reconciliation core's pieces together: the
// shadow store, the two periodic engines, the creation bridge, and the
// liveness indicator, behind one constructor that enforces the
// configuration invariants every other component assumes hold.
package banker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"slavebanker/internal/account"
	"slavebanker/internal/bridge"
	"slavebanker/internal/budget"
	"slavebanker/internal/liveness"
	"slavebanker/internal/money"
	"slavebanker/internal/observability"
	"slavebanker/internal/reauth"
	"slavebanker/internal/sync"
	"slavebanker/internal/transport"
)

// DefaultMaxFailSyncSeconds is liveness.DefaultMaxFailSyncSeconds,
// re-exported here so callers configuring a SlaveBanker don't need to
// import internal/liveness just for the default.
const DefaultMaxFailSyncSeconds = liveness.DefaultMaxFailSyncSeconds

// Config holds the slave's construction-time parameters. AccountSuffix
// and SpendRate are mandatory; an empty suffix or a zero spend rate is
// a fatal configuration error, not a runtime condition.
type Config struct {
	AccountSuffix      string
	SpendRate          money.Pool
	MaxFailSyncSeconds time.Duration
	ReportSpendPeriod  time.Duration
	ReauthorizePeriod  time.Duration
	CreationQueueDepth int
}

// SlaveBanker is the top-level reconciliation core: the component a
// bidding worker process constructs once and drives with two 1Hz
// timers.
type SlaveBanker struct {
	cfg Config
	log zerolog.Logger

	app transport.ApplicationLayer

	Store    *account.Store
	Sync     *sync.Engine
	Reauth   *reauth.Engine
	Bridge   *bridge.CreationBridge
	Budget   *budget.Controller
	Liveness *liveness.Checker

	metrics *observability.Metrics
}

// New constructs a slave banker. It fails loudly — returns an error
// rather than a partially-usable value — if accountSuffix is empty or
// spendRate is zero, per the configuration-error error kind (§7.1).
func New(app transport.ApplicationLayer, cfg Config, log zerolog.Logger) (*SlaveBanker, error) {
	if cfg.AccountSuffix == "" {
		return nil, fmt.Errorf("configuration error: accountSuffix must be non-empty")
	}
	if cfg.SpendRate.IsZero() {
		return nil, fmt.Errorf("configuration error: spendRate must be non-zero")
	}
	if cfg.MaxFailSyncSeconds <= 0 {
		cfg.MaxFailSyncSeconds = DefaultMaxFailSyncSeconds
	}
	if cfg.ReportSpendPeriod <= 0 {
		cfg.ReportSpendPeriod = time.Second
	}
	if cfg.ReauthorizePeriod <= 0 {
		cfg.ReauthorizePeriod = time.Second
	}

	sb := &SlaveBanker{cfg: cfg, log: log, app: app}

	sb.Bridge = bridge.NewCreationBridge(cfg.CreationQueueDepth, log.With().Str("subcomponent", "bridge").Logger())
	sb.Store = account.NewStore(sb.Bridge.Enqueue, log.With().Str("subcomponent", "store").Logger())
	sb.Sync = sync.New(sb.Store, app, cfg.AccountSuffix, cfg.ReportSpendPeriod, log.With().Str("subcomponent", "sync").Logger())
	sb.Reauth = reauth.New(sb.Store, app, cfg.AccountSuffix, cfg.SpendRate, log.With().Str("subcomponent", "reauth").Logger())
	sb.Budget = budget.New(app)
	sb.Liveness = liveness.New("slavebanker", cfg.MaxFailSyncSeconds, livenessSource{sb.Sync, sb.Reauth})

	return sb, nil
}

// livenessSource adapts the sync and reauth engines' timestamp
// accessors onto liveness.Source without either engine knowing about
// the other.
type livenessSource struct {
	sync   *sync.Engine
	reauth *reauth.Engine
}

func (s livenessSource) LastSync() time.Time        { return s.sync.LastSync() }
func (s livenessSource) LastReauthorize() time.Time { return s.reauth.LastReauthorize() }

// GetProviderIndicators satisfies observability.IndicatorSource.
func (sb *SlaveBanker) GetProviderIndicators() liveness.Indicator {
	indicator := sb.Liveness.GetProviderIndicators()
	if sb.metrics != nil {
		if indicator.Status {
			sb.metrics.LivenessStatus.Set(1)
		} else {
			sb.metrics.LivenessStatus.Set(0)
		}
	}
	return indicator
}

// SetMetrics attaches the process-wide metrics registry and distributes
// it to every component that records its own counters. Nil leaves the
// whole tree silently uninstrumented.
func (sb *SlaveBanker) SetMetrics(m *observability.Metrics) {
	sb.metrics = m
	sb.Store.SetMetrics(m)
	sb.Sync.SetMetrics(m)
	sb.Reauth.SetMetrics(m)
	sb.Bridge.SetMetrics(m)
}

// RunFirstTimeInit is the bridge-side handler passed to
// bridge.CreationBridge.Run: addSpendAccount against the master, then
// merge the result as the account's first initialization. A failure
// here leaves the key uninitialized; it is not retried, since the store
// only hands a key to the bridge when the key is first created.
func (sb *SlaveBanker) RunFirstTimeInit(ctx context.Context, key account.Key) {
	shadowName := key.ShadowName(sb.cfg.AccountSuffix)
	sb.app.AddSpendAccount(ctx, shadowName, func(master account.Account, err error) {
		if err != nil {
			sb.log.Warn().Err(err).Str("account", key.String()).Msg("first-time initialization failed, account stays uninitialized")
			return
		}
		if _, mergeErr := sb.Store.InitializeAndMergeState(key, master); mergeErr != nil {
			sb.log.Error().Err(mergeErr).Str("account", key.String()).Msg("merge invariant violated during first-time initialization")
		}
	})
}

// Start launches the creation bridge's drain loop and the two 1Hz
// timers. It returns immediately; callers stop everything by
// cancelling ctx.
func (sb *SlaveBanker) Start(ctx context.Context) {
	go sb.Bridge.Run(ctx, sb.RunFirstTimeInit)

	go sb.runTicker(ctx, sb.cfg.ReportSpendPeriod, sb.Sync.ReportSpend)
	go sb.runTicker(ctx, sb.cfg.ReauthorizePeriod, sb.Reauth.Reauthorize)
}

func (sb *SlaveBanker) runTicker(ctx context.Context, period time.Duration, tick func(context.Context)) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// Shutdown waits for any in-flight reauthorize pass to finish, bounded
// by ctx. It does not stop the timers; callers are expected to cancel
// the context passed to Start first.
func (sb *SlaveBanker) Shutdown(ctx context.Context) error {
	return sb.Reauth.WaitReauthorized(ctx)
}
