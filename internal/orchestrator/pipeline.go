package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iruldev/golang-api-hexagonal/internal/domain"
	domainerrors "github.com/iruldev/golang-api-hexagonal/internal/domain/errors"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/llm"
)

// generateAndValidate repeatedly calls the SQL generator and validator,
// feeding each rejection back to the generator as error context, until a
// statement passes validation or the attempt budget is exhausted. A parse
// error, a generator error or a failed rate-limit wait ends the loop at once.
func (o *Orchestrator) generateAndValidate(ctx context.Context, question string, schema *domain.DatabaseSchema) (string, *domain.ValidationResult, int, error) {
	permit, err := o.deps.LLMBreaker.AllowRequest(ctx)
	if err != nil {
		return "", nil, 0, domainerrors.NewDomainWithCause(domainerrors.CodeLLMError, "llm circuit is open", err)
	}

	maxAttempts := o.cfg.MaxGenerateRetries + 1
	var previousSQL, errorFeedback string

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := o.deps.RateLimiter.Acquire(ctx, "llm"); err != nil {
			permit.Failure()
			return "", nil, 0, domainerrors.NewDomainWithCause(domainerrors.CodeLLMError, "rate limit wait failed", err)
		}

		completion, err := o.generate(ctx, question, schema, previousSQL, errorFeedback)
		if err != nil {
			permit.Failure()
			return "", nil, 0, err
		}

		validation, err := o.deps.Validator.ValidateOrRaise(completion.Text)
		if err != nil {
			code := "UNKNOWN"
			if domainErr := domainerrors.IsDomainError(err); domainErr != nil {
				code = domainErr.Code
			}
			o.deps.Metrics.SQLRejectedTotal.WithLabelValues(code).Inc()

			if isParseError(err) || attempt == maxAttempts-1 {
				permit.Failure()
				return "", nil, 0, err
			}

			previousSQL = completion.Text
			errorFeedback = err.Error()
			continue
		}

		permit.Success()
		return completion.Text, &domain.ValidationResult{
			IsValid:                validation.IsValid,
			IsSelect:               validation.IsSelect,
			AllowsDataModification: validation.AllowsDataModification,
			BlockedFunctionsFound:  validation.BlockedFunctionsFound,
			Message:                validation.Message,
		}, completion.TokensUsed, nil
	}

	permit.Failure()
	return "", nil, 0, domainerrors.NewDomain(domainerrors.CodeLLMError, "exhausted generate-and-validate attempts")
}

func isParseError(err error) bool {
	domainErr := domainerrors.IsDomainError(err)
	return domainErr != nil && domainErr.Code == domainerrors.CodeSQLParseError
}

func (o *Orchestrator) generate(ctx context.Context, question string, schema *domain.DatabaseSchema, previousSQL, errorFeedback string) (*llm.CompletionResponse, error) {
	start := time.Now()
	completion, err := o.deps.LLMClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(schema, previousSQL, errorFeedback),
		UserMessage:  question,
	})
	o.deps.Metrics.LLMCallsTotal.WithLabelValues("generate").Inc()
	o.deps.Metrics.LLMLatencySeconds.WithLabelValues("generate").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, domainerrors.NewDomainWithCause(domainerrors.CodeLLMError, "sql generation failed", err)
	}
	o.deps.Metrics.LLMTokensTotal.WithLabelValues("generate").Add(float64(completion.TokensUsed))
	return completion, nil
}

// buildSystemPrompt renders the schema as grounding context for the
// generator, plus, on a retry, the previously rejected SQL and why it was
// rejected.
func buildSystemPrompt(schema *domain.DatabaseSchema, previousSQL, errorFeedback string) string {
	var b strings.Builder
	b.WriteString("You translate natural language questions into a single read-only PostgreSQL SELECT statement. ")
	b.WriteString("Respond with SQL only, no commentary, no markdown fences.\n\n")
	b.WriteString("Schema:\n")
	for _, table := range schema.Tables {
		b.WriteString(fmt.Sprintf("- %s(", table.Name))
		for i, col := range table.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("%s %s", col.Name, col.SQLType))
		}
		b.WriteString(")\n")
	}
	if previousSQL != "" {
		b.WriteString(fmt.Sprintf("\nThe previous attempt was rejected:\nSQL: %s\nReason: %s\nGenerate a corrected statement.\n", previousSQL, errorFeedback))
	}
	return b.String()
}

// executeWithResilience runs sql under rate limiting, circuit breaking, and
// retry, in that order, against the named database's executor.
func (o *Orchestrator) executeWithResilience(ctx context.Context, databaseName, sql string) (*domain.QueryResult, error) {
	if err := o.deps.RateLimiter.Acquire(ctx, "database"); err != nil {
		return nil, domainerrors.NewDomainWithCause(domainerrors.CodeDatabaseError, "rate limit wait failed", err)
	}

	permit, err := o.deps.DBBreaker.AllowRequest(ctx)
	if err != nil {
		return nil, domainerrors.NewDomainWithCause(domainerrors.CodeDatabaseError, "database circuit is open", err)
	}

	executor, err := o.deps.Executors.For(databaseName)
	if err != nil {
		permit.Failure()
		return nil, err
	}

	var result *domain.QueryResult
	start := time.Now()
	retryErr := o.deps.DBRetrier.Do(ctx, func(ctx context.Context) error {
		r, execErr := executor.Execute(ctx, sql)
		if execErr != nil {
			return execErr
		}
		result = r
		return nil
	})
	o.deps.Metrics.DBQueryDurationSeconds.WithLabelValues().Observe(time.Since(start).Seconds())

	if retryErr != nil {
		permit.Failure()
		return nil, domainerrors.NewDomainWithCause(domainerrors.CodeDatabaseError, "query execution failed", retryErr)
	}

	permit.Success()
	return result, nil
}
