package http

import (
	"net/http"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// HealthCheckRegistry wraps heptiolabs/healthcheck to expose Kubernetes-style
// liveness and readiness probes for the query gateway.
//
// Liveness answers "is the process stuck and should be restarted"; it carries
// no checks of its own. Readiness answers "can this instance serve traffic
// right now" and is where per-database reachability checks are registered,
// since a database outage should pull the instance out of rotation without
// restarting it.
type HealthCheckRegistry struct {
	handler healthcheck.Handler
}

// NewHealthCheckRegistry builds a registry that publishes check outcomes as
// Prometheus metrics under namespace.
func NewHealthCheckRegistry(registerer prometheus.Registerer, namespace string) *HealthCheckRegistry {
	return &HealthCheckRegistry{handler: healthcheck.NewMetricsHandler(registerer, namespace)}
}

// AddReadinessCheck registers a named readiness check.
func (r *HealthCheckRegistry) AddReadinessCheck(name string, check healthcheck.Check) {
	r.handler.AddReadinessCheck(name, check)
}

// LiveHandler serves the liveness probe: 200 unless the process itself has a
// registered liveness check that fails.
func (r *HealthCheckRegistry) LiveHandler() http.HandlerFunc {
	return r.handler.LiveEndpoint
}

// ReadyHandler serves the readiness probe: 200 only if every registered
// readiness check (including liveness checks) currently passes.
func (r *HealthCheckRegistry) ReadyHandler() http.HandlerFunc {
	return r.handler.ReadyEndpoint
}
