package domain

import "context"

// TxManager runs a function within a single database transaction,
// committing on success and rolling back on error or panic.
type TxManager interface {
	WithTx(ctx context.Context, fn func(tx Querier) error) error
}
