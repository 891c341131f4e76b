// Package cart owns the user carts. The order coordinator consumes it only
// through Reader: an immutable snapshot of the lines at checkout time, plus
// the clear that runs inside the checkout unit of work.
package cart

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-commerce-engine/internal/postgres"
)

var (
	ErrItemNotFound    = errors.New("cart item not found")
	ErrProductNotFound = errors.New("product not found")
	ErrProductInactive = errors.New("product not active")
	ErrNotEnoughStock  = errors.New("not enough stock")
)

// Line is one cart line as the coordinator sees it.
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Reader is the snapshot view consumed during order creation.
type Reader interface {
	// Snapshot returns the cart lines in insertion order. An absent cart is
	// an empty snapshot, not an error.
	Snapshot(ctx context.Context, userID string) ([]Line, error)
	// Clear deletes the cart lines inside the caller's unit of work.
	Clear(ctx context.Context, tx postgres.Tx, userID string) error
}

type ItemView struct {
	ID          int64           `json:"id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
}

type View struct {
	Items    []ItemView      `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}
