package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iruldev/golang-api-hexagonal/internal/domain"
	domainerrors "github.com/iruldev/golang-api-hexagonal/internal/domain/errors"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/resilience"
)

type fakeOrchestrator struct {
	resp *domain.QueryResponse
}

func (f *fakeOrchestrator) Handle(ctx context.Context, req domain.QueryRequest) *domain.QueryResponse {
	return f.resp
}

func noopBulkhead() resilience.Bulkhead {
	return resilience.NewBulkhead("test", resilience.BulkheadConfig{MaxConcurrent: 10, MaxWaiting: 10})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleQuery_SuccessReturns200WithBody(t *testing.T) {
	fake := &fakeOrchestrator{resp: &domain.QueryResponse{
		Success:      true,
		GeneratedSQL: "SELECT 1",
		Confidence:   100,
		TraceID:      "abc",
	}}
	s := &server{orchestrator: fake, bulkhead: noopBulkhead(), log: discardLogger()}

	body, _ := json.Marshal(queryRequestDTO{Question: "how many customers"})
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.handleQuery(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got queryResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Success)
	assert.Equal(t, "SELECT 1", got.GeneratedSQL)
}

func TestHandleQuery_DomainErrorMapsToStatus(t *testing.T) {
	fake := &fakeOrchestrator{resp: &domain.QueryResponse{
		Success: false,
		Error:   &domain.ErrorDetail{Code: domainerrors.CodeSecurityViolation, Message: "blocked"},
	}}
	s := &server{orchestrator: fake, bulkhead: noopBulkhead(), log: discardLogger()}

	body, _ := json.Marshal(queryRequestDTO{Question: "drop everything"})
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.handleQuery(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleQuery_InvalidJSONReturns400(t *testing.T) {
	s := &server{orchestrator: &fakeOrchestrator{}, bulkhead: noopBulkhead(), log: discardLogger()}

	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()

	s.handleQuery(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusForCode_MapsKnownCodes(t *testing.T) {
	cases := map[string]int{
		domainerrors.CodeQuestionTooLong:   http.StatusBadRequest,
		domainerrors.CodeDatabaseNotFound:  http.StatusBadRequest,
		domainerrors.CodeSecurityViolation: http.StatusUnprocessableEntity,
		domainerrors.CodeSQLParseError:     http.StatusUnprocessableEntity,
		domainerrors.CodeLowConfidence:     http.StatusUnprocessableEntity,
		domainerrors.CodeLLMError:          http.StatusBadGateway,
		domainerrors.CodeDatabaseError:     http.StatusBadGateway,
		domainerrors.CodeSchemaLoadError:   http.StatusBadGateway,
		domainerrors.CodeInternalError:     http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, statusForCode(code), code)
	}
}
