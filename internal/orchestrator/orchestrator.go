// Package orchestrator wires the retry policy, circuit breaker, rate
// limiter, SQL validator, schema cache, SQL generator, SQL executor, and
// result validator into the single end-to-end pipeline that turns a natural
// language question into a QueryResponse.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iruldev/golang-api-hexagonal/internal/domain"
	domainerrors "github.com/iruldev/golang-api-hexagonal/internal/domain/errors"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/llm"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/ratelimit"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/resilience"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/resultvalidator"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/sqlexec"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/sqlvalidator"
	sharedctx "github.com/iruldev/golang-api-hexagonal/internal/shared/context"
	"github.com/iruldev/golang-api-hexagonal/internal/shared/logger"
)

// Config bounds orchestrator-level policy that is not owned by one of the
// individual components it wires.
type Config struct {
	MaxQuestionLength int
	// MaxGenerateRetries is the number of EXTRA generate-and-validate
	// attempts beyond the first; spec.md calls this max_retries.
	MaxGenerateRetries int
}

// SchemaProvider resolves a database's introspected schema, normally backed
// by a TTL-and-singleflight cache. It is an interface here, rather than a
// concrete cache type, so tests can supply canned schemas without a live
// database connection.
type SchemaProvider interface {
	Get(ctx context.Context, pool *pgxpool.Pool, databaseName string) (*domain.DatabaseSchema, error)
}

// Dependencies are the already-constructed components the orchestrator
// sequences. Pools and Executors are keyed by the same database names.
type Dependencies struct {
	Pools           map[string]*pgxpool.Pool
	SchemaCache     SchemaProvider
	LLMClient       llm.Client
	Validator       *sqlvalidator.Validator
	Executors       *sqlexec.Manager
	ResultValidator *resultvalidator.Validator
	LLMBreaker      resilience.CircuitBreaker
	DBBreaker       resilience.CircuitBreaker
	DBRetrier       resilience.Retrier
	RateLimiter     ratelimit.Limiter
	Metrics         *Metrics
	Logger          *slog.Logger
	Tracer          trace.Tracer
}

// Orchestrator runs the end-to-end natural-language-to-SQL pipeline.
type Orchestrator struct {
	cfg  Config
	deps Dependencies
	log  *slog.Logger
}

// New builds an Orchestrator from cfg and deps.
func New(cfg Config, deps Dependencies) *Orchestrator {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{cfg: cfg, deps: deps, log: log}
}

// Handle runs req through the pipeline and always returns a QueryResponse:
// expected failures (bad input, policy rejection, low confidence, transient
// infra errors) are reported through resp.Error rather than a Go error,
// since every one of them maps to a documented API response.
func (o *Orchestrator) Handle(ctx context.Context, req domain.QueryRequest) *domain.QueryResponse {
	start := time.Now()
	traceID := resolveTraceID(ctx)
	ctx = sharedctx.SetTraceID(ctx, traceID)
	log := logger.FromContext(ctx, o.log)

	ctx, span := o.deps.Tracer.Start(ctx, "orchestrator.handle",
		trace.WithAttributes(attribute.String("trace_id", traceID)))
	defer span.End()

	resp := &domain.QueryResponse{TraceID: traceID}
	status := "success"
	databaseLabel := req.Database

	defer func() {
		label := databaseLabel
		if label == "" {
			label = "unresolved"
		}
		o.deps.Metrics.QueryRequestsTotal.WithLabelValues(status, label).Inc()
		o.deps.Metrics.QueryDurationSeconds.WithLabelValues().Observe(time.Since(start).Seconds())
	}()

	if len(req.Question) > o.cfg.MaxQuestionLength {
		status = "error"
		return o.fail(resp, domainerrors.NewDomainWithDetails(domainerrors.CodeQuestionTooLong,
			fmt.Sprintf("question exceeds maximum length of %d characters", o.cfg.MaxQuestionLength),
			map[string]any{"question_length": len(req.Question)}))
	}

	databaseName, err := o.resolveDatabase(req.Database)
	if err != nil {
		status = "error"
		return o.fail(resp, err)
	}
	databaseLabel = databaseName

	pool := o.deps.Pools[databaseName]
	schema, err := o.deps.SchemaCache.Get(ctx, pool, databaseName)
	if err != nil {
		status = "error"
		return o.fail(resp, err)
	}

	sql, validation, tokensUsed, err := o.generateAndValidate(ctx, req.Question, schema)
	if err != nil {
		status = classifyStatus(err)
		return o.fail(resp, err)
	}
	resp.GeneratedSQL = sql
	resp.Validation = validation
	resp.TokensUsed = tokensUsed

	if req.ReturnMode == domain.ReturnModeSQLOnly {
		resp.Success = true
		resp.Confidence = 100
		return resp
	}

	result, err := o.executeWithResilience(ctx, databaseName, sql)
	if err != nil {
		status = "error"
		return o.fail(resp, err)
	}
	resp.Data = result

	assessment := o.deps.ResultValidator.Assess(ctx, req.Question, sql, result)
	resp.Confidence = assessment.Confidence

	if assessment.LowConfidence {
		status = "low_confidence"
		return o.fail(resp, domainerrors.NewDomainWithDetails(domainerrors.CodeLowConfidence,
			"result validator scored this answer below the confidence threshold",
			map[string]any{"sql": sql, "confidence": assessment.Confidence}))
	}

	resp.Success = true
	log.Debug("query orchestrated", "database", databaseName, "confidence", assessment.Confidence)
	return resp
}

func (o *Orchestrator) fail(resp *domain.QueryResponse, err error) *domain.QueryResponse {
	resp.Success = false
	domainErr := domainerrors.IsDomainError(err)
	if domainErr == nil {
		domainErr = domainerrors.NewDomainWithCause(domainerrors.CodeInternalError, "an internal error occurred", err)
	}
	resp.Error = &domain.ErrorDetail{
		Code:    domainErr.Code,
		Message: domainErr.Message,
		Details: domainErr.Details,
	}
	return resp
}

// classifyStatus maps a generate-and-validate failure to a query_requests_total
// status label distinguishing policy rejections from infra/LLM errors.
func classifyStatus(err error) string {
	domainErr := domainerrors.IsDomainError(err)
	if domainErr == nil {
		return "error"
	}
	switch domainErr.Code {
	case domainerrors.CodeSecurityViolation:
		return "security_violation"
	case domainerrors.CodeSQLParseError:
		return "validation_failed"
	default:
		return "error"
	}
}

func (o *Orchestrator) resolveDatabase(requested string) (string, error) {
	names := o.databaseNames()

	if requested != "" {
		if _, ok := o.deps.Pools[requested]; !ok {
			return "", domainerrors.NewDomainWithDetails(domainerrors.CodeDatabaseNotFound,
				fmt.Sprintf("no database named %q", requested), map[string]any{"available_databases": names})
		}
		return requested, nil
	}

	switch len(names) {
	case 0:
		return "", domainerrors.NewDomain(domainerrors.CodeDatabaseNotFound, "no databases are registered")
	case 1:
		return names[0], nil
	default:
		return "", domainerrors.NewDomainWithDetails(domainerrors.CodeDatabaseNotFound,
			"multiple databases are registered; a database must be specified",
			map[string]any{"available_databases": names})
	}
}

func (o *Orchestrator) databaseNames() []string {
	names := make([]string, 0, len(o.deps.Pools))
	for name := range o.deps.Pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resolveTraceID(ctx context.Context) string {
	if id := sharedctx.GetTraceID(ctx); id != "" {
		return id
	}
	if id := sharedctx.GetRequestID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
