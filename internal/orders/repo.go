package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-commerce-engine/internal/postgres"
)

type PGStore struct {
	DB *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{DB: db}
}

func (s *PGStore) BeginTx(ctx context.Context) (postgres.Tx, error) {
	return postgres.Begin(ctx, s.DB)
}

func (s *PGStore) Insert(ctx context.Context, tx postgres.Tx, o *Order) error {
	_, err := postgres.Unwrap(tx).Exec(ctx, `
		INSERT INTO orders (
			id, user_id, status, shipping_address, payment_method,
			subtotal, tax, discount, grand_total, total_items,
			stock_rollback_done, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false, $11, $11)`,
		o.ID, o.UserID, o.Status, o.ShippingAddress, o.PaymentMethod,
		o.Subtotal, o.Tax, o.Discount, o.GrandTotal, o.TotalItems, o.CreatedAt)
	return err
}

func (s *PGStore) InsertItem(ctx context.Context, tx postgres.Tx, it *Item) error {
	return postgres.Unwrap(tx).QueryRow(ctx, `
		INSERT INTO order_items (order_id, product_id, product_name, unit_price, quantity, total_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		it.OrderID, it.ProductID, it.ProductName, it.UnitPrice, it.Quantity, it.TotalPrice).
		Scan(&it.ID)
}

func (s *PGStore) SetTotals(ctx context.Context, tx postgres.Tx, o *Order) error {
	_, err := postgres.Unwrap(tx).Exec(ctx, `
		UPDATE orders
		SET subtotal = $2, tax = $3, discount = $4, grand_total = $5, total_items = $6, updated_at = now()
		WHERE id = $1`,
		o.ID, o.Subtotal, o.Tax, o.Discount, o.GrandTotal, o.TotalItems)
	return err
}

func (s *PGStore) UpdateStatus(ctx context.Context, tx postgres.Tx, orderID string, status Status) error {
	_, err := postgres.Unwrap(tx).Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, orderID, status)
	return err
}

func (s *PGStore) SetPayment(ctx context.Context, tx postgres.Tx, orderID, transactionID, paymentMethod string, amountPaid decimal.Decimal, paymentStatus string) error {
	_, err := postgres.Unwrap(tx).Exec(ctx, `
		UPDATE orders
		SET transaction_id = $2, payment_method = $3, amount_paid = $4, payment_status = $5, updated_at = now()
		WHERE id = $1`,
		orderID, transactionID, paymentMethod, amountPaid, paymentStatus)
	return err
}

func (s *PGStore) MarkRollbackDone(ctx context.Context, tx postgres.Tx, orderID string) (bool, error) {
	ct, err := postgres.Unwrap(tx).Exec(ctx, `
		UPDATE orders SET stock_rollback_done = true, updated_at = now()
		WHERE id = $1 AND NOT stock_rollback_done`, orderID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

const orderCols = `
	id, user_id, status, COALESCE(shipping_address, ''), COALESCE(payment_method, ''),
	subtotal, tax, discount, grand_total, total_items,
	stock_rollback_done, COALESCE(payment_status, ''), COALESCE(transaction_id, ''),
	COALESCE(amount_paid, 0), created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.Status, &o.ShippingAddress, &o.PaymentMethod,
		&o.Subtotal, &o.Tax, &o.Discount, &o.GrandTotal, &o.TotalItems,
		&o.StockRollbackDone, &o.PaymentStatus, &o.TransactionID,
		&o.AmountPaid, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PGStore) Get(ctx context.Context, orderID string) (*Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		return nil, err
	}
	items, err := s.itemsFor(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (s *PGStore) itemsFor(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, product_id, product_name, unit_price, quantity, total_price
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.UnitPrice, &it.Quantity, &it.TotalPrice); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *PGStore) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+orderCols+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.Status, &o.ShippingAddress, &o.PaymentMethod,
			&o.Subtotal, &o.Tax, &o.Discount, &o.GrandTotal, &o.TotalItems,
			&o.StockRollbackDone, &o.PaymentStatus, &o.TransactionID,
			&o.AmountPaid, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		items, err := s.itemsFor(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}
