package http

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/heptiolabs/healthcheck"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iruldev/golang-api-hexagonal/internal/infra/postgres"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/resilience"
)

var errDatabaseNotConnected = errors.New("database not connected")

// readinessCheckTimeout bounds how long a single database ping may take
// before a readiness probe reports it unreachable.
const readinessCheckTimeout = 2 * time.Second

// Config bounds the transport-edge admission control that sits in front of
// the orchestrator's own per-resource rate limiter.
type Config struct {
	// RateLimitRPS is the maximum requests per second admitted per client.
	RateLimitRPS int
	// TrustProxy, when true, keys the throttle on X-Forwarded-For instead of
	// the TCP peer address.
	TrustProxy bool
}

// NewRouter builds the chi router exposing the query gateway's HTTP surface.
func NewRouter(cfg Config, orch orchestratorHandler, bulkhead resilience.Bulkhead, pools map[string]*pgxpool.Pool, registry *prometheus.Registry, log *slog.Logger) *chi.Mux {
	s := &server{orchestrator: orch, bulkhead: bulkhead, log: log}
	tm := newTransportMetrics(registry)
	health := NewHealthCheckRegistry(registry, "query_gateway")
	for name, pool := range pools {
		health.AddReadinessCheck(name, readinessCheck(pool))
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(log))
	r.Use(metricsMiddleware(tm))
	r.Use(httprate.LimitByIP(cfg.RateLimitRPS, time.Second))

	r.Post("/v1/query", s.handleQuery)
	r.Get("/healthz", health.LiveHandler())
	r.Get("/readyz", health.ReadyHandler())
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return r
}

// readinessCheck builds a healthcheck.Check that pings pool, or always fails
// if pool is nil — a database whose startup connection attempt failed and
// was tolerated rather than treated as fatal.
func readinessCheck(pool *pgxpool.Pool) healthcheck.Check {
	if pool == nil {
		return func() error { return errDatabaseNotConnected }
	}
	checker := postgres.NewDatabaseHealthChecker(pool)
	return healthcheck.Timeout(func() error {
		_, _, err := checker.CheckHealth(context.Background())
		return err
	}, readinessCheckTimeout)
}
