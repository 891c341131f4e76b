// Package payments consumes payment-outcome notifications from the gateway
// boundary and drives settlement through the order coordinator.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	kafkax "github.com/ariefcatur/go-commerce-engine/internal/kafka"
	"github.com/ariefcatur/go-commerce-engine/internal/orders"
	"github.com/ariefcatur/go-commerce-engine/internal/redisx"
)

// Settler is the slice of the coordinator this consumer needs.
type Settler interface {
	AttachPayment(ctx context.Context, orderID, transactionID, paymentMethod string, amount decimal.Decimal, paymentStatus string) (*orders.Order, error)
}

type Service struct {
	Orders      Settler
	Cache       redisx.Cache
	Producer    *kafkax.Producer // publishes order.settled
	Log         zerolog.Logger
	ServiceName string
}

// HandlePaymentResult is installed as the consumer handler for the
// payment.result topic.
func (s *Service) HandlePaymentResult(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventPaymentResult {
		return nil // ignore
	}

	// dedup by event_id: gateway webhooks retry, settlement must not
	dkey := fmt.Sprintf(redisx.KeyDedup, "payments", env.EventID)
	if v, err := s.Cache.Get(ctx, dkey); err == nil && v != nil {
		s.Log.Debug().Str("event_id", env.EventID).Msg("duplicate payment event, skipping")
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.PaymentResultPayload](env.Payload)
	if err != nil {
		return err
	}

	o, err := s.Orders.AttachPayment(ctx, p.OrderID, p.TransactionID, p.PaymentMethod, p.Amount, p.PaymentStatus)
	if errors.Is(err, orders.ErrNotFound) {
		// gateway knows an order we do not; drop rather than retry forever
		s.Log.Warn().Str("order_id", p.OrderID).Msg("payment result for unknown order")
		return nil
	}
	if err != nil {
		return err
	}

	_ = s.Cache.Set(ctx, dkey, []byte("1"), redisx.TTLDedup)
	s.publishSettled(o)
	return nil
}

func (s *Service) publishSettled(o *orders.Order) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderSettled,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderSettledPayload{
			OrderID:       o.ID,
			Status:        o.Status,
			PaymentStatus: o.PaymentStatus,
		}),
	}
	s.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderSettled)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
