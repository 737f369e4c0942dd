package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iruldev/golang-api-hexagonal/internal/infra/observability"
)

// Metrics holds the orchestrator's Prometheus instruments. Names and label
// sets are load-bearing: dashboards and alerts key off them directly.
type Metrics struct {
	QueryRequestsTotal     *prometheus.CounterVec
	QueryDurationSeconds   *prometheus.HistogramVec
	LLMCallsTotal          *prometheus.CounterVec
	LLMLatencySeconds      *prometheus.HistogramVec
	LLMTokensTotal         *prometheus.CounterVec
	DBQueryDurationSeconds *prometheus.HistogramVec
	SQLRejectedTotal       *prometheus.CounterVec
}

// NewMetrics registers the orchestrator's metrics against registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	return &Metrics{
		QueryRequestsTotal: observability.MustNewCounter(registry, "query_requests_total",
			"Total orchestrated query requests", []string{"status", "database"}),
		QueryDurationSeconds: observability.MustNewHistogram(registry, "query_duration_seconds",
			"End-to-end orchestrated query duration in seconds", nil, nil),
		LLMCallsTotal: observability.MustNewCounter(registry, "llm_calls_total",
			"Total calls made to the LLM provider", []string{"operation"}),
		LLMLatencySeconds: observability.MustNewHistogram(registry, "llm_latency_seconds",
			"LLM call latency in seconds", []string{"operation"}, nil),
		LLMTokensTotal: observability.MustNewCounter(registry, "llm_tokens_total",
			"Total tokens consumed by LLM calls", []string{"operation"}),
		DBQueryDurationSeconds: observability.MustNewHistogram(registry, "db_query_duration_seconds",
			"Database query execution duration in seconds", nil, nil),
		SQLRejectedTotal: observability.MustNewCounter(registry, "sql_rejected_total",
			"Total SQL statements rejected by the validator", []string{"code"}),
	}
}
