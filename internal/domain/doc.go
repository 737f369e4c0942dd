// Package domain contains the core business entities of the query
// orchestration core.
//
// This package is the innermost layer of the hexagonal architecture,
// containing pure business logic with no external dependencies: the request
// and response shapes for a natural-language-to-SQL query, the database
// schema model the SQL generator and validator reason about, and (via the
// errors subpackage) the closed error taxonomy the orchestrator returns.
//
// # Layer Boundary Rules
//
// The domain layer has strict import restrictions:
//
//	| CAN Import     | CANNOT Import                                    |
//	|----------------|---------------------------------------------------|
//	| stdlib, subpkgs| slog, otel, http, pgx, app, transport, infra       |
//
// This keeps the domain pure and testable without infrastructure: its types
// carry no JSON tags (the transport layer owns its own DTOs) and it never
// logs directly, returning errors for callers to handle.
//
// # Core types
//
//	QueryRequest   — a question, optional target database, and return mode.
//	QueryResponse  — success flag, generated SQL, validation/result/error, confidence.
//	DatabaseSchema — introspected table/column structure for one database.
//
// # Domain errors
//
// internal/domain/errors defines the closed ErrorCode taxonomy and the
// DomainError type used to carry it:
//
//	return errors.NewDomainWithDetails(errors.CodeDatabaseNotFound,
//	    "no database registered with that name",
//	    map[string]any{"available_databases": names})
package domain
