package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/iruldev/golang-api-hexagonal/internal/domain"
	domainerrors "github.com/iruldev/golang-api-hexagonal/internal/domain/errors"
	"github.com/iruldev/golang-api-hexagonal/internal/infra/resilience"
	sharedctx "github.com/iruldev/golang-api-hexagonal/internal/shared/context"
)

var dtoValidator = validator.New()

// orchestratorHandler is the subset of orchestrator.Orchestrator this
// package depends on, so handler tests can supply a fake.
type orchestratorHandler interface {
	Handle(ctx context.Context, req domain.QueryRequest) *domain.QueryResponse
}

type server struct {
	orchestrator orchestratorHandler
	bulkhead     resilience.Bulkhead
	log          *slog.Logger
}

// handleQuery decodes a QueryRequest, runs it through the bulkhead-wrapped
// orchestrator, and writes the resulting QueryResponse with a status code
// derived from its error code, if any.
func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var reqDTO queryRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeJSON(w, http.StatusBadRequest, errorDetailDTO{Code: "INVALID_REQUEST", Message: "request body is not valid JSON"})
		return
	}
	if err := dtoValidator.Struct(reqDTO); err != nil {
		writeJSON(w, http.StatusBadRequest, errorDetailDTO{Code: "INVALID_REQUEST", Message: err.Error()})
		return
	}

	resp, err := resilience.DoWithBulkhead(s.bulkhead, r.Context(), func(ctx context.Context) (*domain.QueryResponse, error) {
		return s.orchestrator.Handle(ctx, reqDTO.toDomain()), nil
	})
	if err != nil {
		s.log.Warn("orchestrator request rejected by bulkhead",
			"trace_id", sharedctx.GetTraceID(r.Context()), "err", err)
		writeJSONError(w, http.StatusServiceUnavailable, "server overloaded")
		return
	}

	status := http.StatusOK
	if resp.Error != nil {
		status = statusForCode(resp.Error.Code)
	}

	writeJSON(w, status, fromDomain(resp))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorDetailDTO{Code: domainerrors.CodeInternalError, Message: message})
}
