package orders

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-commerce-engine/internal/postgres"
)

var (
	ErrNotFound           = errors.New("order not found")
	ErrEmptyCart          = errors.New("cart is empty or has no valid items")
	ErrProductUnavailable = errors.New("product not available")
	ErrInvalidStatus      = errors.New("invalid order status")
)

// Store persists orders and their line items. Tx-scoped methods run inside
// the coordinator's unit of work; the rest are plain reads.
type Store interface {
	BeginTx(ctx context.Context) (postgres.Tx, error)

	Insert(ctx context.Context, tx postgres.Tx, o *Order) error
	InsertItem(ctx context.Context, tx postgres.Tx, it *Item) error
	// SetTotals writes the money fields accumulated after the line items.
	SetTotals(ctx context.Context, tx postgres.Tx, o *Order) error
	UpdateStatus(ctx context.Context, tx postgres.Tx, orderID string, status Status) error
	SetPayment(ctx context.Context, tx postgres.Tx, orderID, transactionID, paymentMethod string, amountPaid decimal.Decimal, paymentStatus string) error
	// MarkRollbackDone sets the rollback flag if it is still unset and
	// reports whether this call claimed it. The conditional write locks the
	// order row, so concurrent cancellations serialize on it and exactly one
	// caller proceeds to release stock.
	MarkRollbackDone(ctx context.Context, tx postgres.Tx, orderID string) (bool, error)

	// Get returns the order with its items, or ErrNotFound.
	Get(ctx context.Context, orderID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}
