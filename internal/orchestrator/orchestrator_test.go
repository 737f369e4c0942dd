package orchestrator_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/iruldev/golang-api-hexagonal/internal/domain"
	domainerrors "github.com/iruldev/golang-api-hexagonal/internal/domain/errors"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/llm"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/ratelimit"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/resilience"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/resultvalidator"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/sqlexec"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/sqlvalidator"
	"github.com/iruldev/golang-api-hexagonal/internal/orchestrator"
)

type fakeSchemaProvider struct {
	schema *domain.DatabaseSchema
}

func (f *fakeSchemaProvider) Get(ctx context.Context, pool *pgxpool.Pool, databaseName string) (*domain.DatabaseSchema, error) {
	return f.schema, nil
}

func testSchema() *domain.DatabaseSchema {
	return &domain.DatabaseSchema{
		DatabaseName: "main",
		Tables: []domain.TableSchema{
			{Name: "customers", Columns: []domain.ColumnSchema{
				{Name: "id", SQLType: "bigint"},
				{Name: "email", SQLType: "text"},
			}},
		},
	}
}

func unlimitedRateLimiter() ratelimit.Limiter {
	return ratelimit.New(map[string]ratelimit.Config{
		"llm":      {RPS: 1000, Burst: 1000},
		"database": {RPS: 1000, Burst: 1000},
	})
}

func permissiveBreaker(name string) resilience.CircuitBreaker {
	cfg := resilience.DefaultCircuitBreakerConfig()
	cfg.FailureThreshold = 1000
	return resilience.NewCircuitBreaker(name, cfg)
}

func noDelayRetrier(name string) resilience.Retrier {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 1
	return resilience.NewRetrier(name, cfg)
}

func defaultValidatorConfig() sqlvalidator.Config {
	return sqlvalidator.Config{MaxJoins: 5, BlockedFunctions: []string{"pg_sleep"}}
}

func newTestOrchestrator(t *testing.T, llmClient llm.Client, validatorCfg sqlvalidator.Config) *orchestrator.Orchestrator {
	t.Helper()

	registry := prometheus.NewRegistry()
	metrics := orchestrator.NewMetrics(registry)

	executor := &sqlexec.Executor{}

	deps := orchestrator.Dependencies{
		Pools:           map[string]*pgxpool.Pool{"main": nil},
		SchemaCache:     &fakeSchemaProvider{schema: testSchema()},
		LLMClient:       llmClient,
		Validator:       sqlvalidator.New(validatorCfg),
		Executors:       sqlexec.NewManager(map[string]*sqlexec.Executor{"main": executor}),
		ResultValidator: resultvalidator.New(nil, resultvalidator.Config{Enabled: false}, nil),
		LLMBreaker:      permissiveBreaker("llm-test"),
		DBBreaker:       permissiveBreaker("db-test"),
		DBRetrier:       noDelayRetrier("db-test"),
		RateLimiter:     unlimitedRateLimiter(),
		Metrics:         metrics,
		Tracer:          otel.Tracer("test"),
	}

	return orchestrator.New(orchestrator.Config{MaxQuestionLength: 2000, MaxGenerateRetries: 2}, deps)
}

func TestHandle_QuestionTooLongFailsFast(t *testing.T) {
	o := newTestOrchestrator(t, llm.NewFakeClient("SELECT 1"), defaultValidatorConfig())

	resp := o.Handle(context.Background(), domain.QueryRequest{
		Question: string(make([]byte, 3000)),
		Database: "main",
	})

	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, domainerrors.CodeQuestionTooLong, resp.Error.Code)
}

func TestHandle_UnknownDatabaseFails(t *testing.T) {
	o := newTestOrchestrator(t, llm.NewFakeClient("SELECT 1"), defaultValidatorConfig())

	resp := o.Handle(context.Background(), domain.QueryRequest{
		Question: "how many customers",
		Database: "nope",
	})

	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, domainerrors.CodeDatabaseNotFound, resp.Error.Code)
}

func TestHandle_SQLOnlyShortCircuitsBeforeExecution(t *testing.T) {
	o := newTestOrchestrator(t, llm.NewFakeClient("SELECT id FROM customers"), defaultValidatorConfig())

	resp := o.Handle(context.Background(), domain.QueryRequest{
		Question:   "list customer ids",
		Database:   "main",
		ReturnMode: domain.ReturnModeSQLOnly,
	})

	require.True(t, resp.Success)
	assert.Equal(t, "SELECT id FROM customers", resp.GeneratedSQL)
	assert.Equal(t, 100, resp.Confidence)
	assert.Nil(t, resp.Data)
}

// sequencedClient returns canned SQL in order across successive Complete
// calls, used to exercise the generate-and-validate retry loop
// deterministically: the first attempt is rejected by the validator, the
// second is clean.
type sequencedClient struct {
	sequence []string
	calls    int
}

func (s *sequencedClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	idx := s.calls
	if idx >= len(s.sequence) {
		idx = len(s.sequence) - 1
	}
	s.calls++
	return &llm.CompletionResponse{Text: s.sequence[idx], TokensUsed: 5}, nil
}

func (s *sequencedClient) Score(ctx context.Context, req llm.ScoreRequest) (*llm.ScoreResponse, error) {
	return &llm.ScoreResponse{Confidence: 100}, nil
}

func TestHandle_ValidatorRejectionFeedsBackIntoRetry(t *testing.T) {
	client := &sequencedClient{sequence: []string{"SELECT pg_sleep(5)", "SELECT id FROM customers"}}

	o := newTestOrchestrator(t, client, defaultValidatorConfig())

	resp := o.Handle(context.Background(), domain.QueryRequest{
		Question:   "how many customers",
		Database:   "main",
		ReturnMode: domain.ReturnModeSQLOnly,
	})

	require.True(t, resp.Success)
	assert.Equal(t, "SELECT id FROM customers", resp.GeneratedSQL)
	assert.Equal(t, 2, client.calls)
}

func TestHandle_ValidatorRejectionExhaustsRetriesAndFails(t *testing.T) {
	client := &sequencedClient{sequence: []string{"SELECT pg_sleep(5)", "SELECT pg_sleep(5)", "SELECT pg_sleep(5)"}}

	o := newTestOrchestrator(t, client, defaultValidatorConfig())

	resp := o.Handle(context.Background(), domain.QueryRequest{
		Question:   "how many customers",
		Database:   "main",
		ReturnMode: domain.ReturnModeSQLOnly,
	})

	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, domainerrors.CodeSecurityViolation, resp.Error.Code)
}

func TestClassifyStatus_DistinguishesSecurityViolationFromParseError(t *testing.T) {
	securityErr := domainerrors.NewDomain(domainerrors.CodeSecurityViolation, "blocked")
	parseErr := domainerrors.NewDomain(domainerrors.CodeSQLParseError, "bad sql")
	otherErr := domainerrors.NewDomain(domainerrors.CodeLLMError, "provider down")

	assert.Equal(t, "security_violation", classifyStatus(securityErr))
	assert.Equal(t, "validation_failed", classifyStatus(parseErr))
	assert.Equal(t, "error", classifyStatus(otherErr))
}

type erroringClient struct {
	err error
}

func (e *erroringClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, e.err
}

func (e *erroringClient) Score(ctx context.Context, req llm.ScoreRequest) (*llm.ScoreResponse, error) {
	return &llm.ScoreResponse{Confidence: 100}, nil
}

type providerError struct{}

func (providerError) Error() string { return "llm provider unreachable" }

func TestHandle_LLMErrorReturnsLLMErrorCode(t *testing.T) {
	o := newTestOrchestrator(t, &erroringClient{err: providerError{}}, defaultValidatorConfig())

	resp := o.Handle(context.Background(), domain.QueryRequest{
		Question:   "how many customers",
		Database:   "main",
		ReturnMode: domain.ReturnModeSQLOnly,
	})

	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, domainerrors.CodeLLMError, resp.Error.Code)
}
