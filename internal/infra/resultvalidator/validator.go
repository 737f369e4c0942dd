// Package resultvalidator asks the LLM whether a query result plausibly
// answers the original question, as a non-blocking sanity check rather than
// a gate: a scoring failure or a disabled validator both default to full
// confidence instead of failing the request, since correctness was already
// established by the SQL validator and the database itself.
package resultvalidator

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/iruldev/golang-api-hexagonal/internal/domain"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/llm"
)

// fullConfidence is returned whenever scoring does not run at all.
const fullConfidence = 100

// Config controls whether scoring runs and what counts as low confidence.
type Config struct {
	Enabled       bool
	MinConfidence int
	// SampleRows bounds how many rows are marshaled into the scoring
	// prompt, independent of how many rows the query actually returned:
	// scoring needs only a representative sample, not the full result set.
	SampleRows int
}

// Assessment is the outcome of scoring one query result.
type Assessment struct {
	Confidence    int
	LowConfidence bool
	Reasoning     string
}

// Validator scores query results against the question that produced them.
type Validator struct {
	client llm.Client
	cfg    Config
	log    *slog.Logger
}

// New builds a Validator. client may be nil, in which case Assess always
// returns full confidence without attempting a call.
func New(client llm.Client, cfg Config, log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{client: client, cfg: cfg, log: log}
}

// Assess scores result against question and sql. It never returns an error:
// any failure to score is logged and treated as full confidence, so a flaky
// scoring call never turns a successful query into a failed request.
func (v *Validator) Assess(ctx context.Context, question, sql string, result *domain.QueryResult) *Assessment {
	if !v.cfg.Enabled || v.client == nil {
		return &Assessment{Confidence: fullConfidence}
	}

	rows := result.Rows
	if v.cfg.SampleRows > 0 && len(rows) > v.cfg.SampleRows {
		rows = rows[:v.cfg.SampleRows]
	}

	resultJSON, err := json.Marshal(rows)
	if err != nil {
		v.log.Warn("result validator: failed to encode rows for scoring", "error", err)
		return &Assessment{Confidence: fullConfidence}
	}

	score, err := v.client.Score(ctx, llm.ScoreRequest{
		Question:   question,
		SQL:        sql,
		ResultJSON: string(resultJSON),
	})
	if err != nil {
		v.log.Warn("result validator: scoring call failed, defaulting to full confidence", "error", err)
		return &Assessment{Confidence: fullConfidence}
	}

	return &Assessment{
		Confidence:    score.Confidence,
		LowConfidence: score.Confidence < v.cfg.MinConfidence,
		Reasoning:     score.Reasoning,
	}
}
