package resultvalidator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iruldev/golang-api-hexagonal/internal/domain"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/llm"
)

type stubClient struct {
	score      *llm.ScoreResponse
	err        error
	lastResult string
}

func (s *stubClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, errors.New("not implemented")
}

func (s *stubClient) Score(ctx context.Context, req llm.ScoreRequest) (*llm.ScoreResponse, error) {
	s.lastResult = req.ResultJSON
	return s.score, s.err
}

func TestAssess_DisabledReturnsFullConfidence(t *testing.T) {
	v := New(&stubClient{score: &llm.ScoreResponse{Confidence: 10}}, Config{Enabled: false, MinConfidence: 60}, nil)

	assessment := v.Assess(context.Background(), "q", "SELECT 1", &domain.QueryResult{})

	assert.Equal(t, fullConfidence, assessment.Confidence)
	assert.False(t, assessment.LowConfidence)
}

func TestAssess_NilClientReturnsFullConfidence(t *testing.T) {
	v := New(nil, Config{Enabled: true, MinConfidence: 60}, nil)

	assessment := v.Assess(context.Background(), "q", "SELECT 1", &domain.QueryResult{})

	assert.Equal(t, fullConfidence, assessment.Confidence)
}

func TestAssess_ScoringErrorDefaultsToFullConfidence(t *testing.T) {
	v := New(&stubClient{err: errors.New("provider down")}, Config{Enabled: true, MinConfidence: 60}, nil)

	assessment := v.Assess(context.Background(), "q", "SELECT 1", &domain.QueryResult{})

	assert.Equal(t, fullConfidence, assessment.Confidence)
}

func TestAssess_ReturnsScoredConfidence(t *testing.T) {
	v := New(&stubClient{score: &llm.ScoreResponse{Confidence: 45, Reasoning: "partial match"}},
		Config{Enabled: true, MinConfidence: 60}, nil)

	assessment := v.Assess(context.Background(), "q", "SELECT 1", &domain.QueryResult{})

	assert.Equal(t, 45, assessment.Confidence)
	assert.True(t, assessment.LowConfidence)
	assert.Equal(t, "partial match", assessment.Reasoning)
}

func TestAssess_AboveThresholdIsNotLowConfidence(t *testing.T) {
	v := New(&stubClient{score: &llm.ScoreResponse{Confidence: 80}}, Config{Enabled: true, MinConfidence: 60}, nil)

	assessment := v.Assess(context.Background(), "q", "SELECT 1", &domain.QueryResult{})

	assert.False(t, assessment.LowConfidence)
}

func TestAssess_MarshalsOnlyASampleOfRows(t *testing.T) {
	rows := make([]map[string]any, 10)
	for i := range rows {
		rows[i] = map[string]any{"id": i}
	}
	client := &stubClient{score: &llm.ScoreResponse{Confidence: 90}}
	v := New(client, Config{Enabled: true, MinConfidence: 60, SampleRows: 3}, nil)

	v.Assess(context.Background(), "q", "SELECT id FROM customers", &domain.QueryResult{Rows: rows})

	var sent []map[string]any
	require.NoError(t, json.Unmarshal([]byte(client.lastResult), &sent))
	assert.Len(t, sent, 3)
}

func TestAssess_SampleRowsZeroSendsAllRows(t *testing.T) {
	rows := make([]map[string]any, 5)
	for i := range rows {
		rows[i] = map[string]any{"id": i}
	}
	client := &stubClient{score: &llm.ScoreResponse{Confidence: 90}}
	v := New(client, Config{Enabled: true, MinConfidence: 60}, nil)

	v.Assess(context.Background(), "q", "SELECT id FROM customers", &domain.QueryResult{Rows: rows})

	var sent []map[string]any
	require.NoError(t, json.Unmarshal([]byte(client.lastResult), &sent))
	assert.Len(t, sent, 5)
}
