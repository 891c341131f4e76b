// Package catalog is the product subsystem boundary. The order coordinator
// only needs FindActive; the rest is the cached read path and the admin CRUD
// that keeps those caches honest.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("product not found")

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusDeleted  = "deleted"
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Finder is the lookup the order coordinator depends on: it only ever sees
// active products.
type Finder interface {
	FindActive(ctx context.Context, productID string) (*Product, error)
}

func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusInactive, StatusDeleted:
		return true
	}
	return false
}
