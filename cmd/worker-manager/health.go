// cmd/worker-manager/health.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"endorsement-workers/internal/common/database"
)

// readinessChecks run on every /ready request.
type readinessChecks map[string]func(context.Context) error

type healthServer struct {
	srv    *http.Server
	checks readinessChecks
	log    *zap.Logger
}

func newHealthServer(addr string, checks readinessChecks, redis *database.RedisClient, log *zap.Logger) *healthServer {
	if redis != nil {
		checks["redis"] = redis.Ping
	}

	h := &healthServer{checks: checks, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.health)
	mux.HandleFunc("/ready", h.ready)
	mux.Handle("/metrics", promhttp.Handler())

	h.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return h
}

func (h *healthServer) run() {
	h.log.Info("Health/Metrics server listening", zap.String("addr", h.srv.Addr))
	if err := h.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		h.log.Error("Health/Metrics server failed", zap.Error(err))
	}
}

func (h *healthServer) shutdown(ctx context.Context) {
	if err := h.srv.Shutdown(ctx); err != nil {
		h.log.Error("Health/Metrics server shutdown failed", zap.Error(err))
	}
}

func (h *healthServer) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *healthServer) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	code := http.StatusOK
	status := "ready"
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			code = http.StatusServiceUnavailable
			status = "not_ready"
			continue
		}
		deps[name] = "ok"
	}

	writeJSON(w, code, map[string]interface{}{
		"status":       status,
		"dependencies": deps,
		"time":         time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
