package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/go-commerce-engine/internal/postgres"
)

// PGLedger implements Ledger on PostgreSQL. All counter mutations other than
// Provision lock the inventory row with SELECT ... FOR UPDATE first, so the
// availability check and the update happen under one exclusive lock.
type PGLedger struct {
	DB  *pgxpool.Pool
	Log zerolog.Logger
}

func NewPGLedger(db *pgxpool.Pool, log zerolog.Logger) *PGLedger {
	return &PGLedger{DB: db, Log: log}
}

// lockRecord reads the row FOR UPDATE inside tx.
func (l *PGLedger) lockRecord(ctx context.Context, tx pgx.Tx, productID string) (*Record, error) {
	var rec Record
	err := tx.QueryRow(ctx, `
		SELECT product_id, total_stock, available_stock, reserved_stock, created_at, updated_at
		FROM inventory WHERE product_id = $1
		FOR UPDATE`, productID).
		Scan(&rec.ProductID, &rec.TotalStock, &rec.AvailableStock, &rec.ReservedStock, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (l *PGLedger) setCounters(ctx context.Context, tx pgx.Tx, productID string, total, available, reserved int) error {
	_, err := tx.Exec(ctx, `
		UPDATE inventory
		SET total_stock = $2, available_stock = $3, reserved_stock = $4, updated_at = now()
		WHERE product_id = $1`, productID, total, available, reserved)
	return err
}

func (l *PGLedger) Reserve(ctx context.Context, tx postgres.Tx, productID string, qty int) error {
	pgTx := postgres.Unwrap(tx)
	rec, err := l.lockRecord(ctx, pgTx, productID)
	if err != nil {
		return err
	}
	if rec.AvailableStock < qty {
		return fmt.Errorf("%w: product %s has %d available, need %d",
			ErrInsufficientStock, productID, rec.AvailableStock, qty)
	}
	return l.setCounters(ctx, pgTx, productID,
		rec.TotalStock, rec.AvailableStock-qty, rec.ReservedStock+qty)
}

func (l *PGLedger) Finalize(ctx context.Context, tx postgres.Tx, productID string, qty int) error {
	pgTx := postgres.Unwrap(tx)
	rec, err := l.lockRecord(ctx, pgTx, productID)
	if err != nil {
		return err
	}
	return l.setCounters(ctx, pgTx, productID,
		rec.TotalStock-qty, rec.AvailableStock, rec.ReservedStock-qty)
}

func (l *PGLedger) Release(ctx context.Context, tx postgres.Tx, productID string, qty int) error {
	pgTx := postgres.Unwrap(tx)
	rec, err := l.lockRecord(ctx, pgTx, productID)
	if err != nil {
		return err
	}
	release := qty
	if rec.ReservedStock < qty {
		// Releasing more than is reserved means a double release slipped past
		// the order-level guard. Clamp instead of failing the cancellation.
		l.Log.Warn().
			Str("product_id", productID).
			Int("requested", qty).
			Int("reserved", rec.ReservedStock).
			Msg("release clamped to reserved stock")
		release = rec.ReservedStock
	}
	return l.setCounters(ctx, pgTx, productID,
		rec.TotalStock, rec.AvailableStock+release, rec.ReservedStock-release)
}

func (l *PGLedger) Provision(ctx context.Context, productID string, initial int) (*Record, error) {
	var rec Record
	err := l.DB.QueryRow(ctx, `
		INSERT INTO inventory (product_id, total_stock, available_stock, reserved_stock)
		VALUES ($1, $2, $2, 0)
		RETURNING product_id, total_stock, available_stock, reserved_stock, created_at, updated_at`,
		productID, initial).
		Scan(&rec.ProductID, &rec.TotalStock, &rec.AvailableStock, &rec.ReservedStock, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.Log.Info().Str("product_id", productID).Int("stock", initial).Msg("inventory provisioned")
	return &rec, nil
}

func (l *PGLedger) AdjustTotal(ctx context.Context, productID string, newTotal int) (*Record, error) {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rec, err := l.lockRecord(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	available := rec.AvailableStock + newTotal - rec.TotalStock
	if available < 0 {
		return nil, fmt.Errorf("%w: product %s has %d reserved+sold, new total %d",
			ErrInvalidAdjustment, productID, rec.TotalStock-rec.AvailableStock, newTotal)
	}
	if err := l.setCounters(ctx, tx, productID, newTotal, available, rec.ReservedStock); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	rec.TotalStock = newTotal
	rec.AvailableStock = available
	return rec, nil
}

func (l *PGLedger) Get(ctx context.Context, productID string) (*Record, error) {
	var rec Record
	err := l.DB.QueryRow(ctx, `
		SELECT product_id, total_stock, available_stock, reserved_stock, created_at, updated_at
		FROM inventory WHERE product_id = $1`, productID).
		Scan(&rec.ProductID, &rec.TotalStock, &rec.AvailableStock, &rec.ReservedStock, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
