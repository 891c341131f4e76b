// Package inventory is the stock ledger: per-product counters for total,
// available and reserved stock, and the atomic operations that move units
// between them. It is the single source of truth for saleable quantity.
package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-commerce-engine/internal/postgres"
)

var (
	ErrNotFound          = errors.New("inventory record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidAdjustment = errors.New("total adjustment below reserved stock")
)

// Record is one row of the ledger. Invariants: every counter >= 0 and
// available + reserved <= total.
type Record struct {
	ProductID      string    `json:"product_id"`
	TotalStock     int       `json:"total_stock"`
	AvailableStock int       `json:"available_stock"`
	ReservedStock  int       `json:"reserved_stock"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Ledger is the contract the order coordinator depends on. Reserve, Finalize
// and Release run inside the caller's unit of work and hold an exclusive row
// lock on the product for its duration, so concurrent checkouts on the same
// product serialize instead of overselling.
type Ledger interface {
	// Reserve moves qty from available to reserved.
	Reserve(ctx context.Context, tx postgres.Tx, productID string, qty int) error
	// Finalize consumes a reservation permanently: reserved and total both
	// drop by qty. Called once payment is confirmed.
	Finalize(ctx context.Context, tx postgres.Tx, productID string, qty int) error
	// Release is the inverse of Reserve. If less than qty is reserved the
	// release is clamped so reserved never goes negative.
	Release(ctx context.Context, tx postgres.Tx, productID string, qty int) error

	// Provision creates the record with all counters seeded from initial.
	Provision(ctx context.Context, productID string, initial int) (*Record, error)
	// AdjustTotal corrects total stock, moving the delta in or out of
	// available while leaving reservations untouched.
	AdjustTotal(ctx context.Context, productID string, newTotal int) (*Record, error)
	Get(ctx context.Context, productID string) (*Record, error)
}
