package orders

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-vendor-orders/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// memStore serializes placements per product like a row lock would.
type memStore struct {
	mu       sync.Mutex
	locks    map[int64]*sync.Mutex
	products map[int64]*Product
	orders   map[int64]Order
	nextID   int64
	hold     time.Duration // time the "row lock" is held after reading stock
	failWith error
}

func newMemStore(products ...Product) *memStore {
	s := &memStore{locks: map[int64]*sync.Mutex{}, products: map[int64]*Product{}, orders: map[int64]Order{}}
	for i := range products {
		p := products[i]
		s.products[p.ID] = &p
		s.locks[p.ID] = &sync.Mutex{}
	}
	return s
}

func (s *memStore) PlaceOrderTx(_ context.Context, productID, customerID int64, qty int) (Order, error) {
	if s.failWith != nil {
		return Order{}, s.failWith
	}
	s.mu.Lock()
	lock, ok := s.locks[productID]
	s.mu.Unlock()
	if !ok {
		return Order{}, ErrNotFound
	}
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	stock := s.products[productID].Stock
	s.mu.Unlock()
	if stock < qty {
		return Order{}, insufficientStock()
	}
	time.Sleep(s.hold)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[productID].Stock = stock - qty
	s.nextID++
	o := Order{ID: s.nextID, ProductID: productID, CustomerID: customerID, Quantity: qty, Status: StatusPending, CreatedAt: time.Now()}
	s.orders[o.ID] = o
	return o, nil
}

func (s *memStore) view(o Order) OrderView {
	p := s.products[o.ProductID]
	return OrderView{Order: o, Product: ProductRef{ID: p.ID, Name: p.Name, VendorID: p.VendorID}, Customer: UserRef{ID: o.CustomerID}}
}

func (s *memStore) GetOrder(_ context.Context, orderID int64) (OrderView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return OrderView{}, ErrNotFound
	}
	return s.view(o), nil
}

func (s *memStore) ListOrders(_ context.Context, vendorID int64, page int) (Page[OrderView], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Page[OrderView]{Data: []OrderView{}, Page: page, PerPage: PerPage}
	for _, o := range s.orders {
		v := s.view(o)
		if vendorID > 0 && v.Product.VendorID != vendorID {
			continue
		}
		out.Data = append(out.Data, v)
	}
	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].ID < out.Data[j].ID })
	out.Total = len(out.Data)
	return out, nil
}

func (s *memStore) UpdateOrderStatus(_ context.Context, orderID int64, status Status) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	o.Status = status
	s.orders[orderID] = o
	return o, nil
}

func (s *memStore) stock(productID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Stock
}

type mockQueue struct{ mock.Mock }

func (m *mockQueue) EnqueueOrderPlaced(ctx context.Context, orderID int64) error {
	return m.Called(ctx, orderID).Error(0)
}

type mockInvalidator struct{ mock.Mock }

func (m *mockInvalidator) InvalidatePopular(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var (
	customer    = auth.Identity{UserID: 7, Role: auth.RoleCustomer}
	vendor      = auth.Identity{UserID: 2, Role: auth.RoleVendor}
	otherVendor = auth.Identity{UserID: 3, Role: auth.RoleVendor}
	admin       = auth.Identity{UserID: 1, Role: auth.RoleAdmin}
)

func newService(t *testing.T, store *memStore) (*Service, *mockQueue, *mockInvalidator) {
	t.Helper()
	q, c := &mockQueue{}, &mockInvalidator{}
	return &Service{Store: store, Queue: q, Cache: c, Log: zap.NewNop()}, q, c
}

func TestPlaceOrder_Succeeds(t *testing.T) {
	store := newMemStore(Product{ID: 1, Name: "Kopi Gayo", Stock: 10, VendorID: vendor.UserID})
	svc, q, c := newService(t, store)
	q.On("EnqueueOrderPlaced", mock.Anything, int64(1)).Return(nil).Once()
	c.On("InvalidatePopular", mock.Anything).Return(nil).Once()

	o, err := svc.PlaceOrder(context.Background(), customer, 1, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(1), o.ID)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, 3, o.Quantity)
	assert.Equal(t, customer.UserID, o.CustomerID)
	assert.Equal(t, 7, store.stock(1))
	assert.Len(t, store.orders, 1)
	q.AssertExpectations(t)
	c.AssertExpectations(t)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	store := newMemStore(Product{ID: 1, Stock: 2, VendorID: vendor.UserID})
	svc, q, c := newService(t, store)

	_, err := svc.PlaceOrder(context.Background(), customer, 1, 5)

	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.NotErrorIs(t, err, ErrSystemFailure)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "quantity", ve.Field)
	assert.Equal(t, "Insufficient stock", ve.Message)

	assert.Equal(t, 2, store.stock(1))
	assert.Empty(t, store.orders)
	q.AssertNotCalled(t, "EnqueueOrderPlaced", mock.Anything, mock.Anything)
	c.AssertNotCalled(t, "InvalidatePopular", mock.Anything)
}

func TestPlaceOrder_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		caller  auth.Identity
		product int64
		qty     int
		want    error
	}{
		{name: "zero quantity", caller: customer, product: 1, qty: 0, want: ErrInvalidQuantity},
		{name: "negative quantity", caller: customer, product: 1, qty: -2, want: ErrInvalidQuantity},
		{name: "vendor cannot buy", caller: vendor, product: 1, qty: 1, want: ErrForbidden},
		{name: "admin cannot buy", caller: admin, product: 1, qty: 1, want: ErrForbidden},
		{name: "unknown product", caller: customer, product: 99, qty: 1, want: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(Product{ID: 1, Stock: 10, VendorID: vendor.UserID})
			svc, q, _ := newService(t, store)

			_, err := svc.PlaceOrder(context.Background(), tt.caller, tt.product, tt.qty)

			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 10, store.stock(1))
			q.AssertNotCalled(t, "EnqueueOrderPlaced", mock.Anything, mock.Anything)
		})
	}
}

func TestPlaceOrder_SystemFailurePropagates(t *testing.T) {
	store := newMemStore(Product{ID: 1, Stock: 10})
	store.failWith = &SystemError{Op: "lock product", Err: errors.New("canceling statement due to lock timeout")}
	svc, q, _ := newService(t, store)

	_, err := svc.PlaceOrder(context.Background(), customer, 1, 1)

	assert.ErrorIs(t, err, ErrSystemFailure)
	assert.NotErrorIs(t, err, ErrInsufficientStock)
	q.AssertNotCalled(t, "EnqueueOrderPlaced", mock.Anything, mock.Anything)
}

func TestPlaceOrder_EnqueueFailureIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := newMemStore(Product{ID: 1, Stock: 10, VendorID: vendor.UserID})
	svc, q, c := newService(t, store)
	svc.Log = zap.New(core)
	q.On("EnqueueOrderPlaced", mock.Anything, int64(1)).Return(errors.New("producer queue full"))
	c.On("InvalidatePopular", mock.Anything).Return(errors.New("redis: connection refused"))

	o, err := svc.PlaceOrder(context.Background(), customer, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, store.stock(1))

	entries := logs.FilterMessage("enqueue order notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, o.ID, entries[0].ContextMap()["order_id"])
	assert.Equal(t, 1, logs.FilterMessage("invalidate popular products").Len())
}

func TestPlaceOrder_PostCommitSurvivesCallerCancel(t *testing.T) {
	store := newMemStore(Product{ID: 1, Stock: 10})
	svc, q, c := newService(t, store)
	q.On("EnqueueOrderPlaced", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), int64(1)).Return(nil).Once()
	c.On("InvalidatePopular", mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.PlaceOrder(ctx, customer, 1, 1)
	require.NoError(t, err)
	q.AssertExpectations(t)
}

func TestPlaceOrder_ConcurrentRace(t *testing.T) {
	store := newMemStore(Product{ID: 1, Stock: 5})
	store.hold = 20 * time.Millisecond
	svc, q, c := newService(t, store)
	q.On("EnqueueOrderPlaced", mock.Anything, mock.Anything).Return(nil)
	c.On("InvalidatePopular", mock.Anything).Return(nil)

	start := make(chan struct{})
	errs := make([]error, 2)
	var g errgroup.Group
	for i := range errs {
		g.Go(func() error {
			<-start
			_, errs[i] = svc.PlaceOrder(context.Background(), customer, 1, 3)
			return nil
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, 2, store.stock(1))
	q.AssertNumberOfCalls(t, "EnqueueOrderPlaced", 1)
}

func TestPlaceOrder_NeverOversells(t *testing.T) {
	const initial = 20
	store := newMemStore(Product{ID: 1, Stock: initial})
	store.hold = time.Millisecond
	svc, q, c := newService(t, store)
	q.On("EnqueueOrderPlaced", mock.Anything, mock.Anything).Return(nil)
	c.On("InvalidatePopular", mock.Anything).Return(nil)

	var sold atomic.Int64
	var g errgroup.Group
	for i := 0; i < 40; i++ {
		qty := i%3 + 1
		g.Go(func() error {
			_, err := svc.PlaceOrder(context.Background(), customer, 1, qty)
			if err == nil {
				sold.Add(int64(qty))
				return nil
			}
			if errors.Is(err, ErrInsufficientStock) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.LessOrEqual(t, sold.Load(), int64(initial))
	assert.GreaterOrEqual(t, store.stock(1), 0)
	assert.Equal(t, initial-int(sold.Load()), store.stock(1))
	q.AssertNumberOfCalls(t, "EnqueueOrderPlaced", len(store.orders))
}

func seededOrder(t *testing.T) (*Service, *memStore, Order) {
	t.Helper()
	store := newMemStore(Product{ID: 1, Stock: 10, VendorID: vendor.UserID})
	svc, q, c := newService(t, store)
	q.On("EnqueueOrderPlaced", mock.Anything, mock.Anything).Return(nil)
	c.On("InvalidatePopular", mock.Anything).Return(nil)
	o, err := svc.PlaceOrder(context.Background(), customer, 1, 2)
	require.NoError(t, err)
	return svc, store, o
}

func TestUpdateOrderStatus(t *testing.T) {
	t.Run("owning vendor completes", func(t *testing.T) {
		svc, _, o := seededOrder(t)
		got, err := svc.UpdateOrderStatus(context.Background(), vendor, o.ID, StatusCompleted)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, got.Status)
		assert.Equal(t, o.Quantity, got.Quantity)
	})

	t.Run("other vendor is forbidden", func(t *testing.T) {
		svc, store, o := seededOrder(t)
		_, err := svc.UpdateOrderStatus(context.Background(), otherVendor, o.ID, StatusCompleted)
		assert.ErrorIs(t, err, ErrForbidden)
		assert.Equal(t, StatusPending, store.orders[o.ID].Status)
	})

	t.Run("customer is forbidden", func(t *testing.T) {
		svc, store, o := seededOrder(t)
		_, err := svc.UpdateOrderStatus(context.Background(), customer, o.ID, StatusCompleted)
		assert.ErrorIs(t, err, ErrForbidden)
		assert.Equal(t, StatusPending, store.orders[o.ID].Status)
	})

	t.Run("admin may set either status repeatedly", func(t *testing.T) {
		svc, _, o := seededOrder(t)
		for _, s := range []Status{StatusCompleted, StatusCompleted, StatusPending} {
			got, err := svc.UpdateOrderStatus(context.Background(), admin, o.ID, s)
			require.NoError(t, err)
			assert.Equal(t, s, got.Status)
		}
	})

	t.Run("invalid status", func(t *testing.T) {
		svc, _, o := seededOrder(t)
		_, err := svc.UpdateOrderStatus(context.Background(), admin, o.ID, Status("shipped"))
		assert.ErrorIs(t, err, ErrInvalidStatus)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "status", ve.Field)
	})

	t.Run("missing order", func(t *testing.T) {
		svc, _, _ := seededOrder(t)
		_, err := svc.UpdateOrderStatus(context.Background(), admin, 404, StatusCompleted)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestGetAndListOrders(t *testing.T) {
	svc, _, o := seededOrder(t)
	ctx := context.Background()

	v, err := svc.GetOrder(ctx, vendor, o.ID)
	require.NoError(t, err)
	assert.Equal(t, vendor.UserID, v.Product.VendorID)

	_, err = svc.GetOrder(ctx, otherVendor, o.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	page, err := svc.ListOrders(ctx, vendor, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = svc.ListOrders(ctx, otherVendor, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)

	page, err = svc.ListOrders(ctx, admin, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	_, err = svc.ListOrders(ctx, customer, 1)
	assert.ErrorIs(t, err, ErrForbidden)
}
