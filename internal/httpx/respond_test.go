package httpx

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-commerce-engine/internal/cart"
	"github.com/ariefcatur/go-commerce-engine/internal/catalog"
	"github.com/ariefcatur/go-commerce-engine/internal/inventory"
	"github.com/ariefcatur/go-commerce-engine/internal/orders"
)

func TestWriteErrorStatusCodes(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{orders.ErrNotFound, 404},
		{inventory.ErrNotFound, 404},
		{catalog.ErrNotFound, 404},
		{cart.ErrItemNotFound, 404},
		{orders.ErrEmptyCart, 400},
		{orders.ErrProductUnavailable, 400},
		{orders.ErrInvalidStatus, 400},
		{inventory.ErrInsufficientStock, 400},
		{inventory.ErrInvalidAdjustment, 400},
		{cart.ErrProductInactive, 400},
		{cart.ErrNotEnoughStock, 400},
		{errors.New("pgx: broken pipe"), 500},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestWriteErrorWrappedAndOpaque(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, fmt.Errorf("reserve product abc: %w", inventory.ErrInsufficientStock))
	require.Equal(t, 400, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient stock")

	// Internal failures must not leak their message to the client.
	rec = httptest.NewRecorder()
	writeError(rec, errors.New("dial tcp 10.0.0.4:5432: connection refused"))
	require.Equal(t, 500, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.4")
}
