// Package main wires the natural-language-to-SQL query gateway's
// components and serves its HTTP surface.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/iruldev/golang-api-hexagonal/internal/app"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/config"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/llm"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/observability"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/postgres"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/ratelimit"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/resilience"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/resultvalidator"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/schemacache"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/sqlexec"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/sqlvalidator"
	"github.com/iruldev/golang-api-hexagonal/internal/orchestrator"
	transporthttp "github.com/iruldev/golang-api-hexagonal/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger := observability.NewLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "databases", cfg.Databases, "env", cfg.Env)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	tracerProvider, err := observability.InitTracer(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("tracer initialization error: %v", err)
	}

	registry, _ := observability.NewMetricsRegistry()

	pools, executorManager, closePools := connectDatabases(cfg, logger, registry)
	defer closePools()

	orch := buildOrchestrator(cfg, pools, executorManager, registry, logger, tracerProvider.Tracer("orchestrator"))

	bulkhead := resilience.NewBulkhead("http-inbound", resilience.NewResilienceConfig(cfg).Bulkhead)

	router := transporthttp.NewRouter(transporthttp.Config{
		RateLimitRPS: cfg.RateLimitRPS,
		TrustProxy:   cfg.TrustProxy,
	}, orch, bulkhead, pools, registry, logger)

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: cfg.HTTPReadHeaderTimeout,
		MaxHeaderBytes:    cfg.HTTPMaxHeaderBytes,
	}

	done := make(chan error, 1)
	go app.GracefulShutdown(server, done)

	logger.Info("listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}

	if err := <-done; err != nil {
		logger.Error("shutdown error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracer shutdown error", "err", err)
	}

	logger.Info("shutdown complete")
}

// connectDatabases builds a resilient pool and a matching C7 executor for
// every database named in cfg.Databases.
func connectDatabases(cfg *config.Config, logger *slog.Logger, registry *prometheus.Registry) (map[string]*pgxpool.Pool, *sqlexec.Manager, func()) {
	dbConfigs, err := cfg.DatabaseConfigs()
	if err != nil {
		log.Fatalf("database configuration error: %v", err)
	}

	poolCfg := postgres.PoolConfig{
		MaxConns:        cfg.DBPoolMaxConns,
		MinConns:        cfg.DBPoolMinConns,
		MaxConnLifetime: cfg.DBPoolMaxLifetime,
	}

	pools := make(map[string]*pgxpool.Pool, len(dbConfigs))
	executors := make(map[string]*sqlexec.Executor, len(dbConfigs))
	resilientPools := make([]*postgres.ResilientPool, 0, len(dbConfigs))

	ctx := context.Background()
	for _, db := range dbConfigs {
		rp := postgres.NewResilientPool(ctx, db.DSN, poolCfg, true, logger)
		resilientPools = append(resilientPools, rp)

		pools[db.Name] = rp.Pool()
		txManager := postgres.NewTxManager(rp)
		executors[db.Name] = sqlexec.New(txManager, sqlexec.Config{
			QueryTimeout: cfg.DBQueryTimeout,
			MaxRows:      cfg.SecurityMaxRows,
		})
		registerDBMetrics(db.Name, rp, logger, registry)
	}

	closeAll := func() {
		for _, rp := range resilientPools {
			rp.Close()
		}
	}

	return pools, sqlexec.NewManager(executors), closeAll
}

// registerDBMetrics registers a pool-stats collector against the given
// Prometheus registry under the database's name.
func registerDBMetrics(name string, rp *postgres.ResilientPool, logger *slog.Logger, registry *prometheus.Registry) {
	collector := postgres.NewDBMetrics(rp, logger.With("database", name))
	if err := registry.Register(collector); err != nil {
		logger.Warn("db metrics registration failed", "database", name, "err", err)
	}
}

// splitBlockedColumnsByTable expands envconfig's packed "table=col1|col2"
// map values into a table -> columns slice, since envconfig's map support
// only templates scalar string values.
func splitBlockedColumnsByTable(raw map[string]string) map[string][]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string][]string, len(raw))
	for table, packed := range raw {
		out[table] = strings.Split(packed, "|")
	}
	return out
}

func buildOrchestrator(
	cfg *config.Config,
	pools map[string]*pgxpool.Pool,
	executorManager *sqlexec.Manager,
	registry *prometheus.Registry,
	logger *slog.Logger,
	tracer trace.Tracer,
) *orchestrator.Orchestrator {
	llmClient := llm.NewHTTPClient(llm.Config{
		BaseURL:   cfg.LLMProviderURL,
		APIKey:    cfg.LLMAPIKey,
		Model:     cfg.LLMModel,
		MaxTokens: cfg.LLMMaxTokens,
	}, &http.Client{Timeout: cfg.LLMTimeout})

	validator := sqlvalidator.New(sqlvalidator.Config{
		MaxJoins:                 cfg.SecurityMaxJoins,
		RequireWhereClauseTables: cfg.SecurityRequireWhereClauseTables,
		AllowDataModification:    cfg.SecurityAllowDataModification,
		BlockedFunctions:         cfg.SecurityBlockedFunctions,
		BlockedSchemas:           cfg.SecurityBlockedSchemas,
		BlockedTables:            cfg.SecurityBlockedTables,
		BlockedColumns:           cfg.SecurityBlockedColumns,
		BlockedColumnsByTable:    splitBlockedColumnsByTable(cfg.SecurityBlockedColumnsByTable),
		AllowExplain:             cfg.SecurityAllowExplain,
	})

	resultValidator := resultvalidator.New(llmClient, resultvalidator.Config{
		Enabled:       cfg.ResultValidationEnabled,
		MinConfidence: cfg.ResultValidationMinConfidence,
		SampleRows:    cfg.ResultValidationSampleRows,
	}, logger)

	limiter := ratelimit.New(map[string]ratelimit.Config{
		"database": {RPS: cfg.RateLimitDatabaseRPS, Burst: cfg.RateLimitDatabaseBurst},
		"llm":      {RPS: cfg.RateLimitLLMRPS, Burst: cfg.RateLimitLLMBurst},
	})

	resCfg := resilience.NewResilienceConfig(cfg)
	// The gateway's half-open state admits exactly one probe, not gobreaker's
	// generic multi-probe ramp-up: CBMaxRequests configures other deployments'
	// breakers but must not loosen this one.
	breakerCfg := resCfg.CircuitBreaker
	breakerCfg.MaxRequests = 1
	llmBreaker := resilience.NewCircuitBreaker("llm", breakerCfg)
	dbBreaker := resilience.NewCircuitBreaker("database", breakerCfg)
	dbRetrier := resilience.NewRetrier("database", resCfg.Retry)

	schemaCache := schemacache.New(cfg.CacheSchemaTTL)

	metrics := orchestrator.NewMetrics(registry)

	return orchestrator.New(orchestrator.Config{
		MaxQuestionLength:  cfg.ValidationMaxQuestionLength,
		MaxGenerateRetries: cfg.ValidationMaxRetries,
	}, orchestrator.Dependencies{
		Pools:           pools,
		SchemaCache:     schemaCache,
		LLMClient:       llmClient,
		Validator:       validator,
		Executors:       executorManager,
		ResultValidator: resultValidator,
		LLMBreaker:      llmBreaker,
		DBBreaker:       dbBreaker,
		DBRetrier:       dbRetrier,
		RateLimiter:     limiter,
		Metrics:         metrics,
		Logger:          logger,
		Tracer:          tracer,
	})
}
