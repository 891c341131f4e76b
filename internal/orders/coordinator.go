package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ariefcatur/go-commerce-engine/internal/cart"
	"github.com/ariefcatur/go-commerce-engine/internal/catalog"
	"github.com/ariefcatur/go-commerce-engine/internal/inventory"
	"github.com/ariefcatur/go-commerce-engine/internal/money"
	"github.com/ariefcatur/go-commerce-engine/internal/postgres"
	"github.com/ariefcatur/go-commerce-engine/internal/redisx"
)

// Coordinator converts carts into committed orders and settles them on the
// payment outcome, keeping the stock ledger and the caches consistent. Every
// state change runs as one unit of work; reservations made inside a failed
// checkout are undone by the transaction rollback, never by explicit
// releases.
type Coordinator struct {
	store    Store
	ledger   inventory.Ledger
	carts    cart.Reader
	products catalog.Finder
	cache    redisx.Cache
	log      zerolog.Logger
	tracer   trace.Tracer
}

func NewCoordinator(
	store Store,
	ledger inventory.Ledger,
	carts cart.Reader,
	products catalog.Finder,
	cache redisx.Cache,
	log zerolog.Logger,
	tracer trace.Tracer,
) *Coordinator {
	return &Coordinator{
		store:    store,
		ledger:   ledger,
		carts:    carts,
		products: products,
		cache:    cache,
		log:      log,
		tracer:   tracer,
	}
}

// CreateOrderFromCart snapshots the user's cart, reserves stock per line
// inside one transaction and commits the PENDING order. Lines with
// non-positive quantity are dropped before conversion; if nothing valid
// remains the call fails with ErrEmptyCart and nothing is written.
func (c *Coordinator) CreateOrderFromCart(ctx context.Context, userID, shippingAddress, paymentMethod string) (*Order, error) {
	ctx, span := c.tracer.Start(ctx, "orders.CreateOrderFromCart",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	lines, err := c.carts.Snapshot(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	valid := lines[:0:0]
	for _, ln := range lines {
		if ln.Quantity > 0 {
			valid = append(valid, ln)
		}
	}
	if len(valid) == 0 {
		return nil, ErrEmptyCart
	}

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	o := &Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		Status:          StatusPending,
		ShippingAddress: shippingAddress,
		PaymentMethod:   paymentMethod,
		Subtotal:        decimal.Zero,
		Tax:             decimal.Zero,
		Discount:        decimal.Zero, // coupon hook, always zero for now
		GrandTotal:      decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	// insert first so line items can reference the order id
	if err := c.store.Insert(ctx, tx, o); err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	totalItems := 0
	// cart insertion order; also the row-lock acquisition order
	for _, ln := range valid {
		p, err := c.products.FindActive(ctx, ln.ProductID)
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, ln.ProductID)
		}
		if err != nil {
			return nil, err
		}

		if err := c.ledger.Reserve(ctx, tx, p.ID, ln.Quantity); err != nil {
			return nil, err
		}

		unit := money.Quantize(p.Price)
		it := Item{
			OrderID:     o.ID,
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   unit,
			Quantity:    ln.Quantity,
			TotalPrice:  money.LineTotal(unit, ln.Quantity),
		}
		if err := c.store.InsertItem(ctx, tx, &it); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)

		subtotal = subtotal.Add(it.TotalPrice)
		totalItems += ln.Quantity
	}

	o.Subtotal = subtotal
	o.TotalItems = totalItems
	o.Tax, o.GrandTotal = money.Totals(subtotal, o.Discount)
	if err := c.store.SetTotals(ctx, tx, o); err != nil {
		return nil, err
	}

	// consumed (and invalid) cart lines go away with the same commit
	if err := c.carts.Clear(ctx, tx, userID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	c.log.Info().Str("order_id", o.ID).Str("user_id", userID).
		Int("items", totalItems).Str("grand_total", o.GrandTotal.String()).
		Msg("order created")
	c.invalidateUser(ctx, userID)
	return o, nil
}

// UpdateStatus moves the order to newStatus. CANCELLED and EXPIRED run the
// stock rollback inside the same transaction, before the status write.
func (c *Coordinator) UpdateStatus(ctx context.Context, orderID string, newStatus Status) (*Order, error) {
	ctx, span := c.tracer.Start(ctx, "orders.UpdateStatus",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.String("order.status", string(newStatus))))
	defer span.End()

	if _, ok := ParseStatus(string(newStatus)); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}

	o, err := c.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, newStatus) {
		c.log.Warn().Str("order_id", orderID).
			Str("from", string(o.Status)).Str("to", string(newStatus)).
			Msg("unusual status transition")
	}

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if newStatus == StatusCancelled || newStatus == StatusExpired {
		if err := c.releaseOrderStock(ctx, tx, o); err != nil {
			return nil, err
		}
	}
	if err := c.store.UpdateStatus(ctx, tx, orderID, newStatus); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	o.Status = newStatus
	c.invalidateUser(ctx, o.UserID)
	return o, nil
}

// AttachPayment records the payment outcome. "PAID" (case-insensitive)
// finalizes every reservation permanently; anything else cancels the order
// and releases the reserved stock. Settlement applies exactly once: an order
// that already left PENDING keeps its state, so a late PAID after an expiry
// cancellation, or a duplicate PAID under a fresh event id, never touches
// the ledger again.
func (c *Coordinator) AttachPayment(ctx context.Context, orderID, transactionID, paymentMethod string, amount decimal.Decimal, paymentStatus string) (*Order, error) {
	ctx, span := c.tracer.Start(ctx, "orders.AttachPayment",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.String("payment.status", paymentStatus)))
	defer span.End()

	o, err := c.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending {
		c.log.Warn().Str("order_id", orderID).
			Str("status", string(o.Status)).Str("payment_status", paymentStatus).
			Msg("payment result for already settled order, ignoring")
		return o, nil
	}

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	amountPaid := money.Quantize(amount)
	if err := c.store.SetPayment(ctx, tx, orderID, transactionID, paymentMethod, amountPaid, paymentStatus); err != nil {
		return nil, err
	}

	newStatus := StatusCancelled
	if strings.EqualFold(paymentStatus, "PAID") {
		for _, it := range o.Items {
			if err := c.ledger.Finalize(ctx, tx, it.ProductID, it.Quantity); err != nil {
				return nil, err
			}
		}
		newStatus = StatusPaid
	} else {
		if err := c.releaseOrderStock(ctx, tx, o); err != nil {
			return nil, err
		}
	}
	if err := c.store.UpdateStatus(ctx, tx, orderID, newStatus); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	c.log.Info().Str("order_id", orderID).Str("status", string(newStatus)).
		Str("transaction_id", transactionID).Msg("payment attached")

	o.Status = newStatus
	o.PaymentStatus = paymentStatus
	o.TransactionID = transactionID
	o.PaymentMethod = paymentMethod
	o.AmountPaid = amountPaid
	c.invalidateUser(ctx, o.UserID)
	return o, nil
}

// releaseOrderStock is the rollback path, guarded by the per-order
// stock_rollback_done flag so retried cancellation events release exactly
// once. The flag is claimed inside the transaction before anything moves:
// the order loaded by the caller may be a stale read, and two concurrent
// cancellation deliveries must not both release. A missing inventory record
// for one product is logged and skipped rather than aborting the whole
// rollback; the ledger's own underflow clamp is a second, independent net.
func (c *Coordinator) releaseOrderStock(ctx context.Context, tx postgres.Tx, o *Order) error {
	if o == nil {
		c.log.Warn().Msg("rollback requested for missing order")
		return nil
	}
	if o.StockRollbackDone {
		c.log.Debug().Str("order_id", o.ID).Msg("stock rollback already done, skipping")
		return nil
	}
	if !stockReleasable(o.Status) {
		return nil
	}

	// claimed even for zero-item orders: the flag, not the items, is what
	// makes later rollback calls short-circuit
	claimed, err := c.store.MarkRollbackDone(ctx, tx, o.ID)
	if err != nil {
		return err
	}
	if !claimed {
		c.log.Debug().Str("order_id", o.ID).Msg("stock rollback claimed elsewhere, skipping")
		return nil
	}

	for _, it := range o.Items {
		err := c.ledger.Release(ctx, tx, it.ProductID, it.Quantity)
		if errors.Is(err, inventory.ErrNotFound) {
			c.log.Warn().Str("order_id", o.ID).Str("product_id", it.ProductID).
				Msg("no inventory record during rollback, skipping")
			continue
		}
		if err != nil {
			return err
		}
		c.log.Info().Str("order_id", o.ID).Str("product_id", it.ProductID).
			Int("quantity", it.Quantity).Msg("inventory rolled back")
	}

	o.StockRollbackDone = true
	return nil
}

// ListUserOrders reads the user's orders through the cache.
func (c *Coordinator) ListUserOrders(ctx context.Context, userID string) ([]Order, error) {
	key := fmt.Sprintf(redisx.KeyUserOrders, userID)
	return redisx.GetOrSet(ctx, c.cache, key, redisx.TTLUserOrders, func(ctx context.Context) ([]Order, error) {
		return c.store.ListByUser(ctx, userID)
	})
}

// GetOrderForUser is an ownership-scoped read: an order belonging to someone
// else is indistinguishable from a missing one.
func (c *Coordinator) GetOrderForUser(ctx context.Context, orderID, userID string) (*Order, error) {
	o, err := c.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// invalidateUser evicts the caches a committed mutation made stale. Cache
// failures are logged inside the cache and never fail the mutation.
func (c *Coordinator) invalidateUser(ctx context.Context, userID string) {
	_ = c.cache.Delete(ctx,
		fmt.Sprintf(redisx.KeyUserOrders, userID),
		fmt.Sprintf(redisx.KeyCart, userID),
	)
}
