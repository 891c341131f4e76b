package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-commerce-engine/internal/money"
	"github.com/ariefcatur/go-commerce-engine/internal/postgres"
	"github.com/ariefcatur/go-commerce-engine/internal/redisx"
)

// Service implements Reader plus the cart CRUD behind the HTTP boundary.
// Adding to a cart validates against available stock but never deducts it;
// stock moves only when the order is created.
type Service struct {
	DB    *pgxpool.Pool
	Cache redisx.Cache
	Log   zerolog.Logger
}

func NewService(db *pgxpool.Pool, cache redisx.Cache, log zerolog.Logger) *Service {
	return &Service{DB: db, Cache: cache, Log: log}
}

func (s *Service) Snapshot(ctx context.Context, userID string) ([]Line, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT ci.product_id, ci.quantity
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		WHERE c.user_id = $1
		ORDER BY ci.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var ln Line
		if err := rows.Scan(&ln.ProductID, &ln.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, ln)
	}
	return lines, rows.Err()
}

func (s *Service) Clear(ctx context.Context, tx postgres.Tx, userID string) error {
	_, err := postgres.Unwrap(tx).Exec(ctx, `
		DELETE FROM cart_items
		WHERE cart_id = (SELECT id FROM carts WHERE user_id = $1)`, userID)
	return err
}

// ensureCart returns the user's cart id, creating the cart on first use.
func (s *Service) ensureCart(ctx context.Context, userID string) (int64, error) {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.DB.QueryRow(ctx, `SELECT id FROM carts WHERE user_id = $1`, userID).Scan(&id)
	return id, err
}

// Get reads the cart view through the cache (short TTL, writes invalidate).
func (s *Service) Get(ctx context.Context, userID string) (*View, error) {
	key := fmt.Sprintf(redisx.KeyCart, userID)
	return redisx.GetOrSet(ctx, s.Cache, key, redisx.TTLCart, func(ctx context.Context) (*View, error) {
		return s.buildView(ctx, userID)
	})
}

func (s *Service) buildView(ctx context.Context, userID string) (*View, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT ci.id, ci.product_id, p.name, p.price, ci.quantity
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		JOIN products p ON p.id = ci.product_id
		WHERE c.user_id = $1
		ORDER BY ci.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	view := &View{Items: []ItemView{}, Subtotal: decimal.Zero}
	for rows.Next() {
		var it ItemView
		if err := rows.Scan(&it.ID, &it.ProductID, &it.ProductName, &it.UnitPrice, &it.Quantity); err != nil {
			return nil, err
		}
		view.Items = append(view.Items, it)
		view.Subtotal = view.Subtotal.Add(money.LineTotal(it.UnitPrice, it.Quantity))
	}
	return view, rows.Err()
}

// checkAddable verifies the product is active and the requested quantity does
// not exceed what the ledger says is available right now. A cart line is not
// a reservation, so this is only a courtesy check.
func (s *Service) checkAddable(ctx context.Context, productID string, qty int) error {
	var status string
	var available *int
	err := s.DB.QueryRow(ctx, `
		SELECT p.status, i.available_stock
		FROM products p
		LEFT JOIN inventory i ON i.product_id = p.id
		WHERE p.id = $1`, productID).Scan(&status, &available)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrProductNotFound
	}
	if err != nil {
		return err
	}
	if status != "active" {
		return fmt.Errorf("%w: status=%s", ErrProductInactive, status)
	}
	if available != nil && qty > *available {
		return ErrNotEnoughStock
	}
	return nil
}

func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int) (*View, error) {
	if err := s.checkAddable(ctx, productID, qty); err != nil {
		return nil, err
	}
	cartID, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		cartID, productID, qty)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return s.buildView(ctx, userID)
}

func (s *Service) UpdateItem(ctx context.Context, userID string, itemID int64, qty int) (*View, error) {
	var productID string
	err := s.DB.QueryRow(ctx, `
		SELECT ci.product_id
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		WHERE ci.id = $1 AND c.user_id = $2`, itemID, userID).Scan(&productID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.checkAddable(ctx, productID, qty); err != nil {
		return nil, err
	}
	if _, err := s.DB.Exec(ctx, `UPDATE cart_items SET quantity = $2 WHERE id = $1`, itemID, qty); err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return s.buildView(ctx, userID)
}

func (s *Service) RemoveItem(ctx context.Context, userID string, itemID int64) (*View, error) {
	ct, err := s.DB.Exec(ctx, `
		DELETE FROM cart_items
		WHERE id = $1 AND cart_id = (SELECT id FROM carts WHERE user_id = $2)`, itemID, userID)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrItemNotFound
	}
	s.invalidate(ctx, userID)
	return s.buildView(ctx, userID)
}

func (s *Service) ClearCart(ctx context.Context, userID string) (*View, error) {
	_, err := s.DB.Exec(ctx, `
		DELETE FROM cart_items
		WHERE cart_id = (SELECT id FROM carts WHERE user_id = $1)`, userID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return s.buildView(ctx, userID)
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	_ = s.Cache.Delete(ctx, fmt.Sprintf(redisx.KeyCart, userID))
}
