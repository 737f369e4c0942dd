// Package sqlexec runs validated, generated SQL against a database inside a
// read-only transaction, enforcing a row cap and reporting the total match
// count alongside the capped result set.
package sqlexec

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/iruldev/golang-api-hexagonal/internal/domain"
	domainerrors "github.com/iruldev/golang-api-hexagonal/internal/domain/errors"
)

// Config bounds a single Executor's behavior.
type Config struct {
	// QueryTimeout caps how long a single statement may run.
	QueryTimeout time.Duration
	// MaxRows caps how many rows are returned to the caller; TotalCount in
	// the result still reports the full match count via a counting CTE.
	MaxRows int
}

// Executor runs SQL against one database.
type Executor struct {
	txManager domain.TxManager
	cfg       Config
}

// New builds an Executor bound to txManager.
func New(txManager domain.TxManager, cfg Config) *Executor {
	return &Executor{txManager: txManager, cfg: cfg}
}

// Execute runs sql (already validated by sqlvalidator) in a read-only
// transaction. The total match count is computed via a counting CTE so it
// reflects every row sql would produce, not just the capped page returned
// in Rows.
func (e *Executor) Execute(ctx context.Context, sql string) (*domain.QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()

	start := time.Now()
	var result *domain.QueryResult

	err := e.txManager.WithTx(ctx, func(tx domain.Querier) error {
		if _, err := tx.Exec(ctx, "SET TRANSACTION READ ONLY"); err != nil {
			return fmt.Errorf("setting read-only transaction: %w", err)
		}

		total, err := countRows(ctx, tx, sql)
		if err != nil {
			return fmt.Errorf("counting rows: %w", err)
		}

		columns, rows, err := selectRows(ctx, tx, sql, e.cfg.MaxRows)
		if err != nil {
			return fmt.Errorf("fetching rows: %w", err)
		}

		result = &domain.QueryResult{
			Columns:    columns,
			Rows:       rows,
			RowCount:   len(rows),
			TotalCount: total,
		}
		return nil
	})
	if err != nil {
		return nil, domainerrors.NewDomainWithCause(domainerrors.CodeDatabaseError, "query execution failed", err)
	}

	result.ExecutionTime = time.Since(start)
	return result, nil
}

func countRows(ctx context.Context, tx domain.Querier, sql string) (int, error) {
	countingSQL := fmt.Sprintf("WITH _q AS (%s) SELECT count(*) FROM _q", sql)
	raw := tx.QueryRow(ctx, countingSQL)
	scanner, ok := raw.(interface{ Scan(dest ...any) error })
	if !ok {
		return 0, fmt.Errorf("unexpected row type %T", raw)
	}
	var total int
	if err := scanner.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func selectRows(ctx context.Context, tx domain.Querier, sql string, maxRows int) ([]string, []map[string]any, error) {
	limitedSQL := fmt.Sprintf("SELECT * FROM (%s) AS _page LIMIT %d", sql, maxRows)
	raw, err := tx.Query(ctx, limitedSQL)
	if err != nil {
		return nil, nil, err
	}
	rows, ok := raw.(pgx.Rows)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected rows type %T", raw)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = values[i]
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return columns, out, nil
}

// Manager maps a database name to the Executor that runs queries against it.
type Manager struct {
	executors map[string]*Executor
}

// NewManager builds a Manager from a name-to-Executor map.
func NewManager(executors map[string]*Executor) *Manager {
	return &Manager{executors: executors}
}

// For returns the Executor registered for databaseName, or a
// CodeDatabaseNotFound domain error listing the databases that are
// available.
func (m *Manager) For(databaseName string) (*Executor, error) {
	executor, ok := m.executors[databaseName]
	if !ok {
		return nil, domainerrors.NewDomainWithDetails(domainerrors.CodeDatabaseNotFound,
			fmt.Sprintf("no database named %q", databaseName),
			map[string]any{"available_databases": m.availableNames()})
	}
	return executor, nil
}

func (m *Manager) availableNames() []string {
	names := make([]string, 0, len(m.executors))
	for name := range m.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
