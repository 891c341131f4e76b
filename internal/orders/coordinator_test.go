package orders

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ariefcatur/go-commerce-engine/internal/cart"
	"github.com/ariefcatur/go-commerce-engine/internal/catalog"
	"github.com/ariefcatur/go-commerce-engine/internal/inventory"
	"github.com/ariefcatur/go-commerce-engine/internal/postgres"
)

// memTx emulates the unit of work: fakes register undo closures and row
// unlocks, Rollback after a failed operation restores every prior write,
// Rollback after Commit is a no-op.
type memTx struct {
	mu     sync.Mutex
	undo   []func()
	unlock []func()
	done   bool
}

func (t *memTx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return errors.New("tx already closed")
	}
	t.done = true
	t.release()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.release()
	return nil
}

func (t *memTx) release() {
	for i := len(t.unlock) - 1; i >= 0; i-- {
		t.unlock[i]()
	}
	t.unlock = nil
}

func (t *memTx) onRollback(fn func()) {
	t.mu.Lock()
	t.undo = append(t.undo, fn)
	t.mu.Unlock()
}

func asMemTx(tx postgres.Tx) *memTx { return tx.(*memTx) }

// memLedger honors the ledger contract including per-product row locks held
// until the transaction closes, so concurrent checkouts serialize the same
// way FOR UPDATE does.
type memLedger struct {
	mu       sync.Mutex
	recs     map[string]*inventory.Record
	rowLocks map[string]*sync.Mutex
	releases int
}

func newMemLedger() *memLedger {
	return &memLedger{
		recs:     map[string]*inventory.Record{},
		rowLocks: map[string]*sync.Mutex{},
	}
}

func (l *memLedger) seed(productID string, total, available, reserved int) {
	l.recs[productID] = &inventory.Record{
		ProductID:      productID,
		TotalStock:     total,
		AvailableStock: available,
		ReservedStock:  reserved,
	}
}

func (l *memLedger) counters(t *testing.T, productID string) (total, available, reserved int) {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.recs[productID]
	require.True(t, ok, "inventory record %s", productID)
	return rec.TotalStock, rec.AvailableStock, rec.ReservedStock
}

func (l *memLedger) lockRow(tx *memTx, productID string) (*inventory.Record, error) {
	l.mu.Lock()
	row, ok := l.rowLocks[productID]
	if !ok {
		row = &sync.Mutex{}
		l.rowLocks[productID] = row
	}
	l.mu.Unlock()

	row.Lock()
	tx.mu.Lock()
	tx.unlock = append(tx.unlock, row.Unlock)
	tx.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.recs[productID]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productID, inventory.ErrNotFound)
	}
	return rec, nil
}

func (l *memLedger) Reserve(ctx context.Context, tx postgres.Tx, productID string, qty int) error {
	rec, err := l.lockRow(asMemTx(tx), productID)
	if err != nil {
		return err
	}
	if rec.AvailableStock < qty {
		return fmt.Errorf("product %s: %w", productID, inventory.ErrInsufficientStock)
	}
	rec.AvailableStock -= qty
	rec.ReservedStock += qty
	asMemTx(tx).onRollback(func() {
		rec.AvailableStock += qty
		rec.ReservedStock -= qty
	})
	return nil
}

func (l *memLedger) Finalize(ctx context.Context, tx postgres.Tx, productID string, qty int) error {
	rec, err := l.lockRow(asMemTx(tx), productID)
	if err != nil {
		return err
	}
	rec.TotalStock -= qty
	rec.ReservedStock -= qty
	asMemTx(tx).onRollback(func() {
		rec.TotalStock += qty
		rec.ReservedStock += qty
	})
	return nil
}

func (l *memLedger) Release(ctx context.Context, tx postgres.Tx, productID string, qty int) error {
	rec, err := l.lockRow(asMemTx(tx), productID)
	if err != nil {
		return err
	}
	if rec.ReservedStock < qty {
		qty = rec.ReservedStock
	}
	rec.AvailableStock += qty
	rec.ReservedStock -= qty
	released := qty
	asMemTx(tx).onRollback(func() {
		rec.AvailableStock -= released
		rec.ReservedStock += released
	})
	l.mu.Lock()
	l.releases++
	l.mu.Unlock()
	return nil
}

func (l *memLedger) Provision(ctx context.Context, productID string, initial int) (*inventory.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := &inventory.Record{ProductID: productID, TotalStock: initial, AvailableStock: initial}
	l.recs[productID] = rec
	return rec, nil
}

func (l *memLedger) AdjustTotal(ctx context.Context, productID string, newTotal int) (*inventory.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.recs[productID]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	rec.AvailableStock += newTotal - rec.TotalStock
	rec.TotalStock = newTotal
	return rec, nil
}

func (l *memLedger) Get(ctx context.Context, productID string) (*inventory.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.recs[productID]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// memStore keeps orders in a map and participates in the tx undo protocol.
type memStore struct {
	mu     sync.Mutex
	orders map[string]*Order
	nextID int64
	lists  int
}

func newMemStore() *memStore { return &memStore{orders: map[string]*Order{}} }

func (s *memStore) BeginTx(ctx context.Context) (postgres.Tx, error) { return &memTx{}, nil }

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	return &cp
}

func (s *memStore) Insert(ctx context.Context, tx postgres.Tx, o *Order) error {
	s.mu.Lock()
	s.orders[o.ID] = cloneOrder(o)
	s.mu.Unlock()
	id := o.ID
	asMemTx(tx).onRollback(func() {
		s.mu.Lock()
		delete(s.orders, id)
		s.mu.Unlock()
	})
	return nil
}

func (s *memStore) InsertItem(ctx context.Context, tx postgres.Tx, it *Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[it.OrderID]
	if !ok {
		return ErrNotFound
	}
	s.nextID++
	it.ID = s.nextID
	o.Items = append(o.Items, *it)
	return nil
}

func (s *memStore) SetTotals(ctx context.Context, tx postgres.Tx, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	st.Subtotal, st.Tax, st.Discount, st.GrandTotal = o.Subtotal, o.Tax, o.Discount, o.GrandTotal
	st.TotalItems = o.TotalItems
	return nil
}

func (s *memStore) UpdateStatus(ctx context.Context, tx postgres.Tx, orderID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	prev := o.Status
	o.Status = status
	asMemTx(tx).onRollback(func() {
		s.mu.Lock()
		if cur, ok := s.orders[orderID]; ok {
			cur.Status = prev
		}
		s.mu.Unlock()
	})
	return nil
}

func (s *memStore) SetPayment(ctx context.Context, tx postgres.Tx, orderID, transactionID, paymentMethod string, amountPaid decimal.Decimal, paymentStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.TransactionID = transactionID
	o.PaymentMethod = paymentMethod
	o.AmountPaid = amountPaid
	o.PaymentStatus = paymentStatus
	return nil
}

func (s *memStore) MarkRollbackDone(ctx context.Context, tx postgres.Tx, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return false, ErrNotFound
	}
	if o.StockRollbackDone {
		return false, nil
	}
	o.StockRollbackDone = true
	asMemTx(tx).onRollback(func() {
		s.mu.Lock()
		if cur, ok := s.orders[orderID]; ok {
			cur.StockRollbackDone = false
		}
		s.mu.Unlock()
	})
	return true, nil
}

func (s *memStore) Get(ctx context.Context, orderID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *memStore) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	var out []Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *cloneOrder(o))
		}
	}
	return out, nil
}

type memCarts struct {
	mu    sync.Mutex
	lines map[string][]cart.Line
}

func newMemCarts() *memCarts { return &memCarts{lines: map[string][]cart.Line{}} }

func (c *memCarts) Snapshot(ctx context.Context, userID string) ([]cart.Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]cart.Line(nil), c.lines[userID]...), nil
}

func (c *memCarts) Clear(ctx context.Context, tx postgres.Tx, userID string) error {
	c.mu.Lock()
	prev := c.lines[userID]
	delete(c.lines, userID)
	c.mu.Unlock()
	asMemTx(tx).onRollback(func() {
		c.mu.Lock()
		c.lines[userID] = prev
		c.mu.Unlock()
	})
	return nil
}

func (c *memCarts) size(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines[userID])
}

type memFinder struct{ products map[string]*catalog.Product }

func (f *memFinder) FindActive(ctx context.Context, productID string) (*catalog.Product, error) {
	p, ok := f.products[productID]
	if !ok || p.Status != catalog.StatusActive {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return nil, nil
	}
	return b, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *memCache) DeletePattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(c.data, k)
		}
	}
	return nil
}

// downCache fails every operation, like redis being unreachable.
type downCache struct{}

func (downCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("redis down")
}
func (downCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("redis down")
}
func (downCache) Delete(ctx context.Context, keys ...string) error {
	return errors.New("redis down")
}
func (downCache) DeletePattern(ctx context.Context, pattern string) error {
	return errors.New("redis down")
}

type fixture struct {
	coord  *Coordinator
	store  *memStore
	ledger *memLedger
	carts  *memCarts
	finder *memFinder
	cache  *memCache
}

func newFixture() *fixture {
	f := &fixture{
		store:  newMemStore(),
		ledger: newMemLedger(),
		carts:  newMemCarts(),
		finder: &memFinder{products: map[string]*catalog.Product{}},
		cache:  newMemCache(),
	}
	f.coord = NewCoordinator(
		f.store, f.ledger, f.carts, f.finder, f.cache,
		zerolog.Nop(), noop.NewTracerProvider().Tracer("test"),
	)
	return f
}

func (f *fixture) addProduct(id, price string) {
	f.finder.products[id] = &catalog.Product{
		ID:     id,
		Name:   "product " + id,
		Price:  decimal.RequireFromString(price),
		Status: catalog.StatusActive,
	}
}

func eq(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestCreateOrderReservesStockAndComputesTotals(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "50.00")
	f.ledger.seed("p1", 10, 10, 0)
	f.carts.lines["u1"] = []cart.Line{{ProductID: "p1", Quantity: 3}}

	o, err := f.coord.CreateOrderFromCart(context.Background(), "u1", "Jl. Sudirman 1", "gopay")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, 3, o.TotalItems)
	require.Len(t, o.Items, 1)
	eq(t, "50.00", o.Items[0].UnitPrice)
	eq(t, "150.00", o.Subtotal)
	eq(t, "27.00", o.Tax)
	eq(t, "177.00", o.GrandTotal)

	total, available, reserved := f.ledger.counters(t, "p1")
	assert.Equal(t, [3]int{10, 7, 3}, [3]int{total, available, reserved})

	assert.Zero(t, f.carts.size("u1"), "cart cleared with the same commit")

	stored, err := f.store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	require.Len(t, stored.Items, 1)
}

func TestCreateOrderInsufficientStockLeavesNothingBehind(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "50.00")
	f.ledger.seed("p1", 10, 10, 0)
	f.carts.lines["u1"] = []cart.Line{{ProductID: "p1", Quantity: 15}}

	_, err := f.coord.CreateOrderFromCart(context.Background(), "u1", "", "gopay")
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	total, available, reserved := f.ledger.counters(t, "p1")
	assert.Equal(t, [3]int{10, 10, 0}, [3]int{total, available, reserved})
	assert.Empty(t, f.store.orders, "no order row survives the rollback")
	assert.Equal(t, 1, f.carts.size("u1"), "cart untouched")
}

func TestCreateOrderPartialFailureRollsBackEarlierReservations(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "10.00")
	f.ledger.seed("p1", 5, 5, 0)
	// p2 never registered in the catalog
	f.ledger.seed("p2", 5, 5, 0)
	f.carts.lines["u1"] = []cart.Line{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 1},
	}

	_, err := f.coord.CreateOrderFromCart(context.Background(), "u1", "", "ovo")
	require.ErrorIs(t, err, ErrProductUnavailable)

	_, available, reserved := f.ledger.counters(t, "p1")
	assert.Equal(t, 5, available, "reservation from the first line undone")
	assert.Zero(t, reserved)
	assert.Empty(t, f.store.orders)
}

func TestCreateOrderEmptyCart(t *testing.T) {
	f := newFixture()

	_, err := f.coord.CreateOrderFromCart(context.Background(), "nobody", "", "gopay")
	assert.ErrorIs(t, err, ErrEmptyCart)

	// lines exist but none has positive quantity
	f.carts.lines["u1"] = []cart.Line{{ProductID: "p1", Quantity: 0}, {ProductID: "p2", Quantity: -2}}
	_, err = f.coord.CreateOrderFromCart(context.Background(), "u1", "", "gopay")
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCreateOrderDropsNonPositiveLines(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "20.00")
	f.addProduct("p2", "30.00")
	f.ledger.seed("p1", 10, 10, 0)
	f.ledger.seed("p2", 10, 10, 0)
	f.carts.lines["u1"] = []cart.Line{
		{ProductID: "p1", Quantity: 0},
		{ProductID: "p2", Quantity: 2},
	}

	o, err := f.coord.CreateOrderFromCart(context.Background(), "u1", "", "gopay")
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "p2", o.Items[0].ProductID)
	eq(t, "60.00", o.Subtotal)

	_, available, _ := f.ledger.counters(t, "p1")
	assert.Equal(t, 10, available, "zero-quantity line never touches the ledger")
}

func TestAttachPaymentPaidFinalizesReservation(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "50.00")
	f.ledger.seed("p1", 10, 10, 0)
	f.carts.lines["u1"] = []cart.Line{{ProductID: "p1", Quantity: 3}}

	o, err := f.coord.CreateOrderFromCart(context.Background(), "u1", "", "gopay")
	require.NoError(t, err)

	got, err := f.coord.AttachPayment(context.Background(), o.ID, "trx-1", "gopay",
		decimal.RequireFromString("177.00"), "paid")
	require.NoError(t, err)

	assert.Equal(t, StatusPaid, got.Status)
	assert.Equal(t, "trx-1", got.TransactionID)
	eq(t, "177.00", got.AmountPaid)

	total, available, reserved := f.ledger.counters(t, "p1")
	assert.Equal(t, [3]int{7, 7, 0}, [3]int{total, available, reserved})

	stored, err := f.store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, stored.Status)
	assert.False(t, stored.StockRollbackDone)
}

func TestAttachPaymentFailureReleasesStock(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "50.00")
	f.ledger.seed("p1", 10, 10, 0)
	f.carts.lines["u1"] = []cart.Line{{ProductID: "p1", Quantity: 3}}

	o, err := f.coord.CreateOrderFromCart(context.Background(), "u1", "", "gopay")
	require.NoError(t, err)

	got, err := f.coord.AttachPayment(context.Background(), o.ID, "trx-2", "gopay",
		decimal.RequireFromString("177.00"), "FAILED")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	total, available, reserved := f.ledger.counters(t, "p1")
	assert.Equal(t, [3]int{10, 10, 0}, [3]int{total, available, reserved})

	stored, err := f.store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, stored.StockRollbackDone)
}

func TestAttachPaymentIgnoresLatePaidOnCancelledOrder(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "50.00")
	f.ledger.seed("p1", 10, 10, 0)
	f.carts.lines["u1"] = []cart.Line{{ProductID: "p1", Quantity: 3}}

	o, err := f.coord.CreateOrderFromCart(context.Background(), "u1", "", "gopay")
	require.NoError(t, err)

	// order expires before the gateway webhook lands
	_, err = f.coord.UpdateStatus(context.Background(), o.ID, StatusCancelled)
	require.NoError(t, err)

	got, err := f.coord.AttachPayment(context.Background(), o.ID, "trx-late", "gopay",
		decimal.RequireFromString("177.00"), "PAID")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status, "cancelled order stays cancelled")

	total, available, reserved := f.ledger.counters(t, "p1")
	assert.Equal(t, [3]int{10, 10, 0}, [3]int{total, available, reserved})
	assert.GreaterOrEqual(t, reserved, 0)
	assert.LessOrEqual(t, available+reserved, total)
}

func TestAttachPaymentDuplicatePaidIsNoOp(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "50.00")
	f.ledger.seed("p1", 10, 10, 0)
	f.carts.lines["u1"] = []cart.Line{{ProductID: "p1", Quantity: 3}}

	o, err := f.coord.CreateOrderFromCart(context.Background(), "u1", "", "gopay")
	require.NoError(t, err)

	_, err = f.coord.AttachPayment(context.Background(), o.ID, "trx-1", "gopay",
		decimal.RequireFromString("177.00"), "PAID")
	require.NoError(t, err)

	// the gateway retries under a fresh event id; event dedup misses it
	got, err := f.coord.AttachPayment(context.Background(), o.ID, "trx-2", "gopay",
		decimal.RequireFromString("177.00"), "PAID")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status)
	assert.Equal(t, "trx-1", got.TransactionID, "first settlement wins")

	total, available, reserved := f.ledger.counters(t, "p1")
	assert.Equal(t, [3]int{7, 7, 0}, [3]int{total, available, reserved},
		"reservation finalized once, not twice")
	assert.GreaterOrEqual(t, reserved, 0)
}

func TestCancelReleasesStockExactlyOnce(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "50.00")
	f.ledger.seed("p1", 10, 10, 0)
	f.carts.lines["u1"] = []cart.Line{{ProductID: "p1", Quantity: 3}}

	o, err := f.coord.CreateOrderFromCart(context.Background(), "u1", "", "gopay")
	require.NoError(t, err)

	got, err := f.coord.UpdateStatus(context.Background(), o.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	total, available, reserved := f.ledger.counters(t, "p1")
	assert.Equal(t, [3]int{10, 10, 0}, [3]int{total, available, reserved})
	assert.Equal(t, 1, f.ledger.releases)

	// a retried cancellation must succeed without touching the ledger again
	got, err = f.coord.UpdateStatus(context.Background(), o.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	total, available, reserved = f.ledger.counters(t, "p1")
	assert.Equal(t, [3]int{10, 10, 0}, [3]int{total, available, reserved})
	assert.Equal(t, 1, f.ledger.releases, "release ran once despite the retry")
}

func TestStaleCancellationsReleaseOnlyOnce(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "10.00")
	f.ledger.seed("p1", 10, 10, 0)
	f.carts.lines["u1"] = []cart.Line{{ProductID: "p1", Quantity: 3}}
	f.carts.lines["u2"] = []cart.Line{{ProductID: "p1", Quantity: 4}}

	ctx := context.Background()
	a, err := f.coord.CreateOrderFromCart(ctx, "u1", "", "gopay")
	require.NoError(t, err)
	_, err = f.coord.CreateOrderFromCart(ctx, "u2", "", "gopay")
	require.NoError(t, err)

	// two cancellation deliveries load the order before either commits; both
	// copies carry stock_rollback_done = false
	first, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	second, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)

	tx1, err := f.store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, f.coord.releaseOrderStock(ctx, tx1, first))
	require.NoError(t, tx1.Commit(ctx))

	tx2, err := f.store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, f.coord.releaseOrderStock(ctx, tx2, second))
	require.NoError(t, tx2.Commit(ctx))

	// only the first delivery releases; the second must not credit the other
	// order's reserved units to available stock
	total, available, reserved := f.ledger.counters(t, "p1")
	assert.Equal(t, [3]int{10, 6, 4}, [3]int{total, available, reserved})
	assert.Equal(t, 1, f.ledger.releases)
}

func TestCancelToleratesMissingInventoryRecord(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "50.00")
	f.ledger.seed("p1", 10, 10, 0)
	f.carts.lines["u1"] = []cart.Line{{ProductID: "p1", Quantity: 2}}

	o, err := f.coord.CreateOrderFromCart(context.Background(), "u1", "", "gopay")
	require.NoError(t, err)

	// inventory record vanished between checkout and cancellation
	delete(f.ledger.recs, "p1")

	_, err = f.coord.UpdateStatus(context.Background(), o.ID, StatusCancelled)
	require.NoError(t, err)

	stored, err := f.store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, stored.StockRollbackDone, "flag set even when nothing could be released")
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	f := newFixture()
	_, err := f.coord.UpdateStatus(context.Background(), "any", Status("REFUNDED"))
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "10.00")
	f.ledger.seed("p1", 10, 10, 0)

	const users = 4
	for i := 0; i < users; i++ {
		f.carts.lines[fmt.Sprintf("u%d", i)] = []cart.Line{{ProductID: "p1", Quantity: 3}}
	}

	var wg sync.WaitGroup
	errs := make([]error, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.coord.CreateOrderFromCart(context.Background(), fmt.Sprintf("u%d", i), "", "gopay")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
		}
	}
	assert.Equal(t, 3, succeeded, "10 units allow exactly three 3-unit checkouts")

	total, available, reserved := f.ledger.counters(t, "p1")
	assert.Equal(t, 10, total)
	assert.Equal(t, 1, available)
	assert.Equal(t, 9, reserved)
	assert.GreaterOrEqual(t, available, 0, "available never driven negative")
}

func TestCacheOutageDoesNotBlockCheckout(t *testing.T) {
	f := newFixture()
	coord := NewCoordinator(
		f.store, f.ledger, f.carts, f.finder, downCache{},
		zerolog.Nop(), noop.NewTracerProvider().Tracer("test"),
	)
	f.addProduct("p1", "50.00")
	f.ledger.seed("p1", 10, 10, 0)
	f.carts.lines["u1"] = []cart.Line{{ProductID: "p1", Quantity: 1}}

	o, err := coord.CreateOrderFromCart(context.Background(), "u1", "", "gopay")
	require.NoError(t, err, "checkout must not depend on the cache")

	list, err := coord.ListUserOrders(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, o.ID, list[0].ID)
}

func TestListUserOrdersServedFromCache(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "50.00")
	f.ledger.seed("p1", 10, 10, 0)
	f.carts.lines["u1"] = []cart.Line{{ProductID: "p1", Quantity: 1}}

	_, err := f.coord.CreateOrderFromCart(context.Background(), "u1", "", "gopay")
	require.NoError(t, err)

	before := f.store.lists
	_, err = f.coord.ListUserOrders(context.Background(), "u1")
	require.NoError(t, err)
	_, err = f.coord.ListUserOrders(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, before+1, f.store.lists, "second read comes from the cache")
}

func TestGetOrderForUserScopesOwnership(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "50.00")
	f.ledger.seed("p1", 10, 10, 0)
	f.carts.lines["u1"] = []cart.Line{{ProductID: "p1", Quantity: 1}}

	o, err := f.coord.CreateOrderFromCart(context.Background(), "u1", "", "gopay")
	require.NoError(t, err)

	got, err := f.coord.GetOrderForUser(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = f.coord.GetOrderForUser(context.Background(), o.ID, "someone-else")
	assert.ErrorIs(t, err, ErrNotFound)
}
