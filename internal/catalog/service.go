package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-commerce-engine/internal/redisx"
)

type Service struct {
	DB    *pgxpool.Pool
	Cache redisx.Cache
	Log   zerolog.Logger
}

func NewService(db *pgxpool.Pool, cache redisx.Cache, log zerolog.Logger) *Service {
	return &Service{DB: db, Cache: cache, Log: log}
}

const productCols = `id, name, description, price, status, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) FindActive(ctx context.Context, productID string) (*Product, error) {
	return scanProduct(s.DB.QueryRow(ctx, `
		SELECT `+productCols+` FROM products
		WHERE id = $1 AND status = 'active'`, productID))
}

type ListParams struct {
	Offset int
	Limit  int
	Search string
}

// List reads the public product listing through the cache. The key is a
// deterministic serialization of the query params so equal queries share an
// entry.
func (s *Service) List(ctx context.Context, params ListParams) ([]Product, error) {
	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 10
	}
	key := fmt.Sprintf(redisx.KeyProductList,
		fmt.Sprintf("offset=%d:limit=%d:search=%s", params.Offset, params.Limit, params.Search))

	return redisx.GetOrSet(ctx, s.Cache, key, redisx.TTLProductList, func(ctx context.Context) ([]Product, error) {
		rows, err := s.DB.Query(ctx, `
			SELECT `+productCols+` FROM products
			WHERE status = 'active' AND ($1 = '' OR name ILIKE '%' || $1 || '%')
			ORDER BY created_at DESC
			OFFSET $2 LIMIT $3`, params.Search, params.Offset, params.Limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []Product
		for rows.Next() {
			var p Product
			if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, rows.Err()
	})
}

func (s *Service) Get(ctx context.Context, productID string) (*Product, error) {
	key := fmt.Sprintf(redisx.KeyProduct, productID)
	return redisx.GetOrSet(ctx, s.Cache, key, redisx.TTLProduct, func(ctx context.Context) (*Product, error) {
		return scanProduct(s.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id = $1`, productID))
	})
}

type ProductInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Status      string          `json:"status"`
}

func (s *Service) Create(ctx context.Context, in ProductInput) (*Product, error) {
	if in.Status == "" {
		in.Status = StatusActive
	}
	id := uuid.NewString()
	p, err := scanProduct(s.DB.QueryRow(ctx, `
		INSERT INTO products (id, name, description, price, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+productCols, id, in.Name, in.Description, in.Price, in.Status))
	if err != nil {
		return nil, err
	}
	_ = s.Cache.DeletePattern(ctx, redisx.PatternProductList)
	return p, nil
}

func (s *Service) Update(ctx context.Context, productID string, in ProductInput) (*Product, error) {
	p, err := scanProduct(s.DB.QueryRow(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4, status = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+productCols, productID, in.Name, in.Description, in.Price, in.Status))
	if err != nil {
		return nil, err
	}
	_ = s.Cache.Delete(ctx, fmt.Sprintf(redisx.KeyProduct, productID))
	_ = s.Cache.DeletePattern(ctx, redisx.PatternProductList)
	return p, nil
}
