// Package http is the thin transport surface over the orchestrator: a
// go-chi router exposing POST /v1/query, GET /healthz, GET /readyz, and
// GET /metrics. Wire DTOs live here, with json tags, keeping internal/domain
// free of marshaling concerns.
package http

import (
	"github.com/iruldev/golang-api-hexagonal/internal/domain"
)

// queryRequestDTO is the wire shape of a query request. Field-presence and
// shape checks live here via struct tags; the question-length ceiling and
// all domain-specific rules are the orchestrator's responsibility.
type queryRequestDTO struct {
	Question   string `json:"question" validate:"required"`
	Database   string `json:"database,omitempty"`
	ReturnMode string `json:"return_mode,omitempty" validate:"omitempty,oneof=RESULT SQL_ONLY"`
}

func (d queryRequestDTO) toDomain() domain.QueryRequest {
	mode := domain.ReturnModeResult
	if domain.ReturnMode(d.ReturnMode) == domain.ReturnModeSQLOnly {
		mode = domain.ReturnModeSQLOnly
	}
	return domain.QueryRequest{
		Question:   d.Question,
		Database:   d.Database,
		ReturnMode: mode,
	}
}

// queryResponseDTO is the wire shape of a query response.
type queryResponseDTO struct {
	Success      bool              `json:"success"`
	GeneratedSQL string            `json:"generated_sql,omitempty"`
	Validation   *validationDTO    `json:"validation,omitempty"`
	Data         *queryResultDTO   `json:"data,omitempty"`
	Error        *errorDetailDTO   `json:"error,omitempty"`
	Confidence   int               `json:"confidence"`
	TokensUsed   int               `json:"tokens_used,omitempty"`
	TraceID      string            `json:"trace_id"`
}

type validationDTO struct {
	IsValid                bool     `json:"is_valid"`
	IsSelect               bool     `json:"is_select"`
	AllowsDataModification bool     `json:"allows_data_modification"`
	BlockedFunctionsFound  []string `json:"blocked_functions_found,omitempty"`
	Message                string   `json:"message,omitempty"`
}

type queryResultDTO struct {
	Columns       []string         `json:"columns"`
	Rows          []map[string]any `json:"rows"`
	RowCount      int              `json:"row_count"`
	TotalCount    int              `json:"total_count"`
	ExecutionTime string           `json:"execution_time"`
}

type errorDetailDTO struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func fromDomain(resp *domain.QueryResponse) queryResponseDTO {
	dto := queryResponseDTO{
		Success:      resp.Success,
		GeneratedSQL: resp.GeneratedSQL,
		Confidence:   resp.Confidence,
		TokensUsed:   resp.TokensUsed,
		TraceID:      resp.TraceID,
	}

	if resp.Validation != nil {
		dto.Validation = &validationDTO{
			IsValid:                resp.Validation.IsValid,
			IsSelect:               resp.Validation.IsSelect,
			AllowsDataModification: resp.Validation.AllowsDataModification,
			BlockedFunctionsFound:  resp.Validation.BlockedFunctionsFound,
			Message:                resp.Validation.Message,
		}
	}

	if resp.Data != nil {
		dto.Data = &queryResultDTO{
			Columns:       resp.Data.Columns,
			Rows:          resp.Data.Rows,
			RowCount:      resp.Data.RowCount,
			TotalCount:    resp.Data.TotalCount,
			ExecutionTime: resp.Data.ExecutionTime.String(),
		}
	}

	if resp.Error != nil {
		dto.Error = &errorDetailDTO{
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
			Details: resp.Error.Details,
		}
	}

	return dto
}
