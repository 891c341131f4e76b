package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is the unit of work shared by the order store, the stock ledger and the
// cart store, so that one commit (or rollback) covers all of them.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// PgxTx wraps a pgx transaction. Store implementations unwrap it to run
// statements inside the shared unit of work.
type PgxTx struct {
	Tx pgx.Tx
}

func (t *PgxTx) Commit(ctx context.Context) error   { return t.Tx.Commit(ctx) }
func (t *PgxTx) Rollback(ctx context.Context) error { return t.Tx.Rollback(ctx) }

func Begin(ctx context.Context, pool *pgxpool.Pool) (Tx, error) {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return &PgxTx{Tx: tx}, nil
}

// Unwrap returns the underlying pgx transaction.
func Unwrap(tx Tx) pgx.Tx {
	return tx.(*PgxTx).Tx
}
