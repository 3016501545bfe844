package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the slave banker exposes.
type Metrics struct {
	SyncPassesTotal          prometheus.Counter
	SyncPassFailuresTotal    prometheus.Counter
	SyncPassDuration         prometheus.Histogram
	SyncAccountsPerPass      prometheus.Gauge
	ReauthorizePassesTotal   prometheus.Counter
	ReauthorizeSkippedTotal  prometheus.Counter
	ReauthorizeDuration      prometheus.Histogram
	MergeInvariantViolations *prometheus.CounterVec
	TransportFailures        *prometheus.CounterVec
	AccountsCreatedTotal     prometheus.Counter
	CreationBridgeDepth      prometheus.Gauge
	LivenessStatus           prometheus.Gauge
	AccountsInitialized      prometheus.Gauge
}

// NewMetrics creates and registers every metric.
func NewMetrics() *Metrics {
	passBuckets := []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5}

	return &Metrics{
		SyncPassesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slavebanker_sync_passes_total",
			Help: "Completed report-spend (syncAll) passes, successful or not",
		}),

		SyncPassFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slavebanker_sync_pass_failures_total",
			Help: "Report-spend passes that completed with at least one account failure",
		}),

		SyncPassDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "slavebanker_sync_pass_duration_seconds",
			Help:    "Wall time of a full syncAll fan-out",
			Buckets: passBuckets,
		}),

		SyncAccountsPerPass: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "slavebanker_sync_accounts_per_pass",
			Help: "Number of initialized accounts included in the most recent syncAll pass",
		}),

		ReauthorizePassesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slavebanker_reauthorize_passes_total",
			Help: "Completed reauthorize passes",
		}),

		ReauthorizeSkippedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slavebanker_reauthorize_skipped_total",
			Help: "Reauthorize ticks skipped because the previous pass was still in flight",
		}),

		ReauthorizeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "slavebanker_reauthorize_pass_duration_seconds",
			Help:    "Wall time from pass start to the last per-account response",
			Buckets: passBuckets,
		}),

		MergeInvariantViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "slavebanker_merge_invariant_violations_total",
			Help: "Merge invariant violations detected during sync or reauthorize, by source",
		}, []string{"source"}),

		TransportFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "slavebanker_transport_failures_total",
			Help: "Application layer failures, by operation",
		}, []string{"operation"}),

		AccountsCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slavebanker_accounts_created_total",
			Help: "Keys admitted by createAccountAtomic",
		}),

		CreationBridgeDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "slavebanker_creation_bridge_depth",
			Help: "Pending keys awaiting first-time master initialization",
		}),

		LivenessStatus: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "slavebanker_liveness_status",
			Help: "1 if the slave considers itself live, 0 otherwise",
		}),

		AccountsInitialized: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "slavebanker_accounts_initialized",
			Help: "Accounts that have completed first-time master initialization",
		}),
	}
}
