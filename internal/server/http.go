// Package server hosts the slave banker's operator-facing HTTP
// surface: health, metrics, and a handful of admin endpoints over the
// budget controller. It is plain net/http/JSON rather than gRPC, since
// a gRPC admin surface would depend on generated protobuf stubs this
// repository has no .proto sources for. It still follows the familiar
// shape: one deps struct, one constructor, a context-cancelled shutdown.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"slavebanker/internal/account"
	"slavebanker/internal/budget"
	"slavebanker/internal/money"
	"slavebanker/internal/observability"
)

// Deps holds every dependency the admin surface needs.
type Deps struct {
	Budget        *budget.Controller
	HealthChecker *observability.HealthChecker
}

// Server is the slave's own HTTP surface (distinct from the
// ApplicationLayer's outbound calls to the master): /healthz, /readyz,
// /metrics, and POST /admin/accounts*.
type Server struct {
	httpServer *http.Server
	addr       string
}

// New builds the admin/metrics/health server, bound to addr once
// Start is called.
func New(addr string, deps Deps) *Server {
	mux := http.NewServeMux()

	if deps.HealthChecker != nil {
		mux.HandleFunc("/healthz", deps.HealthChecker.LivenessHandler)
		mux.HandleFunc("/readyz", deps.HealthChecker.ReadinessHandler)
	}
	mux.Handle("/metrics", promhttp.Handler())

	if deps.Budget != nil {
		mux.HandleFunc("/admin/accounts", adminAddAccount(deps.Budget))
		mux.HandleFunc("/admin/accounts/topup", adminTopupTransfer(deps.Budget))
		mux.HandleFunc("/admin/accounts/budget", adminSetBudget(deps.Budget))
	}

	return &Server{
		addr:       addr,
		httpServer: &http.Server{Addr: addr, Handler: mux},
	}
}

// Start serves until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		log.Printf("admin server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("admin server listening on %s", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

type addAccountRequest struct {
	Key []string `json:"key"`
}

func adminAddAccount(b *budget.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		key := account.NewKey(req.Key...)
		b.AddAccount(r.Context(), key, func(err error) {
			writeResult(w, err)
		})
	}
}

type topupRequest struct {
	Key    []string   `json:"key"`
	Amount money.Pool `json:"amount"`
}

func adminTopupTransfer(b *budget.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req topupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		key := account.NewKey(req.Key...)
		b.TopupTransfer(r.Context(), key, req.Amount, func(err error) {
			writeResult(w, err)
		})
	}
}

type setBudgetRequest struct {
	TopLevel string     `json:"topLevel"`
	Amount   money.Pool `json:"amount"`
}

func adminSetBudget(b *budget.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setBudgetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.SetBudget(r.Context(), req.TopLevel, req.Amount, func(err error) {
			writeResult(w, err)
		})
	}
}

func writeResult(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
