package observability

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"slavebanker/internal/liveness"
)

// IndicatorSource supplies the liveness indicator the readiness probe
// reports once the slave has finished constructing its engines.
type IndicatorSource interface {
	GetProviderIndicators() liveness.Indicator
}

// HealthChecker exposes /healthz and /readyz. Liveness is always "the
// process is running"; readiness defers to the reconciliation core's
// own liveness indicator once one has been attached.
type HealthChecker struct {
	ready     atomic.Bool
	startTime time.Time
	source    atomic.Pointer[IndicatorSource]
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
	}
}

// SetReady marks the service as having finished startup (engines
// constructed, timers scheduled) independent of reconciliation freshness.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the service has finished startup.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// SetIndicatorSource attaches the liveness checker readiness defers to.
func (h *HealthChecker) SetIndicatorSource(src IndicatorSource) {
	h.source.Store(&src)
}

// LivenessHandler returns HTTP 200 if the process is alive.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler returns HTTP 200 once startup has finished and, if an
// indicator source is attached, the reconciliation core still considers
// itself live; 503 otherwise.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !h.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "not_ready"})
		return
	}

	if srcPtr := h.source.Load(); srcPtr != nil {
		indicator := (*srcPtr).GetProviderIndicators()
		if !indicator.Status {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":  "not_ready",
				"service": indicator.ServiceName,
				"message": indicator.Message,
			})
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{"status": "ready"})
}
