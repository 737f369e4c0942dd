package http

import (
	"net/http"

	domainerrors "github.com/iruldev/golang-api-hexagonal/internal/domain/errors"
)

// statusForCode maps a closed-taxonomy error code to the HTTP status the
// transport layer reports. The mapping lives here, not in the orchestrator,
// since it is a property of this wire surface, not the domain.
func statusForCode(code string) int {
	switch code {
	case domainerrors.CodeQuestionTooLong, domainerrors.CodeDatabaseNotFound:
		return http.StatusBadRequest
	case domainerrors.CodeSecurityViolation, domainerrors.CodeSQLParseError, domainerrors.CodeLowConfidence:
		return http.StatusUnprocessableEntity
	case domainerrors.CodeLLMError, domainerrors.CodeDatabaseError, domainerrors.CodeSchemaLoadError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
