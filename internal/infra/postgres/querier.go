// Package postgres provides PostgreSQL database adapters and repository implementations.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/iruldev/golang-api-hexagonal/internal/domain"
)

// TxQuerier wraps pgx.Tx to implement domain.Querier.
// Use this within transactions via TxManager.WithTx.
type TxQuerier struct {
	tx pgx.Tx
}

// NewTxQuerier creates a new TxQuerier from a pgx.Tx.
func NewTxQuerier(tx pgx.Tx) domain.Querier {
	return &TxQuerier{tx: tx}
}

// Exec executes a query that doesn't return rows within the transaction.
func (q *TxQuerier) Exec(ctx context.Context, sql string, args ...any) (any, error) {
	return q.tx.Exec(ctx, sql, args...)
}

// Query executes a query that returns rows within the transaction.
func (q *TxQuerier) Query(ctx context.Context, sql string, args ...any) (any, error) {
	return q.tx.Query(ctx, sql, args...)
}

// QueryRow executes a query that returns at most one row within the transaction.
func (q *TxQuerier) QueryRow(ctx context.Context, sql string, args ...any) any {
	return q.tx.QueryRow(ctx, sql, args...)
}
