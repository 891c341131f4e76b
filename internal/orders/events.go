package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated  = "OrderCreated"
	EventPaymentResult = "PaymentResult"
	EventOrderSettled  = "OrderSettled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually order_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	TotalItems int             `json:"total_items"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// PaymentResultPayload is what the payment gateway boundary delivers once a
// checkout session resolves.
type PaymentResultPayload struct {
	OrderID       string          `json:"order_id"`
	TransactionID string          `json:"transaction_id"`
	PaymentMethod string          `json:"payment_method"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentStatus string          `json:"payment_status"` // PAID | FAILED | ...
}

type OrderSettledPayload struct {
	OrderID       string `json:"order_id"`
	Status        Status `json:"status"`
	PaymentStatus string `json:"payment_status"`
}
