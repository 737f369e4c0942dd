package domain

import "time"

// ReturnMode selects how much of the pipeline a QueryRequest should execute.
type ReturnMode string

const (
	// ReturnModeSQLOnly stops after the generate-and-validate loop, without
	// executing the SQL against a database.
	ReturnModeSQLOnly ReturnMode = "SQL_ONLY"

	// ReturnModeResult executes the validated SQL and returns its rows.
	ReturnModeResult ReturnMode = "RESULT"
)

// QueryRequest is a natural-language question to translate into SQL.
type QueryRequest struct {
	// Question is the user's natural-language question. Length-bounded by
	// validation.max_question_length.
	Question string

	// Database optionally names the target database. Empty means "resolve
	// automatically": auto-select if exactly one is registered, otherwise
	// fail as ambiguous.
	Database string

	// ReturnMode selects whether to stop after generating SQL or to execute it.
	ReturnMode ReturnMode
}

// QueryResponse is the orchestrator's structured result for one QueryRequest.
//
// Exactly one of Data and Error is populated on a RESULT request; on an
// SQL_ONLY success, Data is nil.
type QueryResponse struct {
	Success      bool
	GeneratedSQL string
	Validation   *ValidationResult
	Data         *QueryResult
	Error        *ErrorDetail

	// Confidence is in [0,100]. 100 on SQL_ONLY success or when the result
	// validator is disabled or fails.
	Confidence int

	// TokensUsed is the optional token-usage count reported by the SQL
	// generator, zero when unknown.
	TokensUsed int

	// TraceID is the request-id bound to this request's logs and spans.
	TraceID string
}

// ValidationResult describes the outcome of the C4 SQL validator for SQL
// that was ultimately accepted (or the shape of a would-be acceptance).
type ValidationResult struct {
	IsValid                bool
	IsSelect               bool
	AllowsDataModification bool
	BlockedFunctionsFound  []string
	Message                string
}

// QueryResult is the (possibly row-capped) result of executing validated SQL.
type QueryResult struct {
	// Columns are ordered column names, taken from the first row's keys, or
	// empty if there are no rows.
	Columns []string

	// Rows is capped at security.max_rows.
	Rows []map[string]any

	// RowCount is len(Rows); never exceeds max_rows.
	RowCount int

	// TotalCount is the unbounded count of rows the query would have
	// produced, computed via a counting CTE (see SPEC_FULL.md §9).
	TotalCount int

	// ExecutionTime is how long the statement took to execute.
	ExecutionTime time.Duration
}

// ErrorDetail is a stable, client-safe error description.
type ErrorDetail struct {
	// Code is one of the closed taxonomy constants in internal/domain/errors.
	Code    string
	Message string
	Details map[string]any
}
