package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the settlement record. Money fields carry 2-decimal fixed-point
// values; payment fields are zero-valued until a payment is attached.
type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Status          Status          `json:"status"`
	ShippingAddress string          `json:"shipping_address,omitempty"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	Discount        decimal.Decimal `json:"discount"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
	TotalItems      int             `json:"total_items"`

	// StockRollbackDone guards the release path: reserved stock for an order
	// is given back exactly once, no matter how often cancellation fires.
	StockRollbackDone bool `json:"stock_rollback_done"`

	PaymentStatus string          `json:"payment_status,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`

	Items     []Item    `json:"items,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is a line item frozen at order time. Name and unit price are
// denormalized snapshots so later catalog edits never alter history.
type Item struct {
	ID          int64           `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}
