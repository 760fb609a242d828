// Package health implements the HTTP /health and /metrics adapter (spec.md
// §6), modeled directly on the teacher's internal/web/server.go: a ServeMux,
// a *http.Server, ListenAndServe in the foreground, and a goroutine that
// calls Shutdown on context cancellation.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opsdev/podsleuthd/internal/model"
)

// Snapshotter returns the current health snapshot (spec.md §4.9
// healthSnapshot()).
type Snapshotter interface {
	HealthSnapshot() model.HealthSnapshot
}

// Server serves /health (JSON) and /metrics (Prometheus exposition).
type Server struct {
	addr    string
	health  Snapshotter
	metrics http.Handler
	log     logr.Logger
}

// New constructs a Server. metricsHandler is typically promhttp.Handler()
// (or promhttp.HandlerFor a custom registry).
func New(addr string, health Snapshotter, metricsHandler http.Handler, log logr.Logger) *Server {
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	return &Server{addr: addr, health: health, metrics: metricsHandler, log: log}
}

// Start serves until ctx is cancelled, then shuts down gracefully with a
// bounded deadline, exactly like the teacher's Server.Start.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.metrics)

	srv := &http.Server{Addr: s.addr, Handler: mux}

	s.log.Info("starting health endpoint", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error(err, "error shutting down health endpoint")
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("health endpoint error: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.health.HealthSnapshot()
	w.Header().Set("Content-Type", "application/json")
	if !snap.ConnectionState.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(snap)
}
