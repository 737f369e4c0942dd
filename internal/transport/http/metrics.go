package http

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iruldev/golang-api-hexagonal/internal/infra/observability"
)

// transportMetrics are the HTTP-edge instruments, distinct from the
// orchestrator's domain-level metrics.
type transportMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func newTransportMetrics(registry *prometheus.Registry) *transportMetrics {
	return &transportMetrics{
		requestsTotal: observability.MustNewCounter(registry, "http_requests_total",
			"Total HTTP requests received", []string{"method", "route", "status"}),
		requestDuration: observability.MustNewHistogram(registry, "http_request_duration_seconds",
			"HTTP request duration in seconds", []string{"method", "route"}, nil),
	}
}
