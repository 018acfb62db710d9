// Package server exposes the operational HTTP endpoints of a running sync.
package server

import (
	"net/http"
	"time"

	"github.com/florinutz/binsync/health"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMetricsServer creates an HTTP server listening on addr with:
//
//	GET /metrics  Prometheus exposition
//	GET /healthz  component health, 503 when any component is down
//	GET /readyz   200 only while the pipeline is streaming
//
// If checker is nil only /metrics is mounted.
func NewMetricsServer(addr string, checker *health.Checker) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if checker != nil {
		r.Get("/healthz", checker.ServeHTTP)
		r.Get("/readyz", checker.ServeReady)
	}
	r.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
