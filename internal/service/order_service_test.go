package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/events"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/repository/memory"
)

const (
	testUserID    = "user-1"
	testProductID = "prod-1"
)

type fixture struct {
	store    *memory.Store
	orders   *OrderService
	products *ProductService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.NewStore()
	logger := zap.NewNop()

	now := time.Now().UTC()
	require.NoError(t, st.CreateUser(context.Background(), &domain.User{
		UserID: testUserID, Name: "Ada", Email: "ada@example.com", CreatedAt: now, UpdatedAt: now,
	}))

	return &fixture{
		store:    st,
		orders:   NewOrderService(st, st, st, logger),
		products: NewProductService(st, logger),
	}
}

func (f *fixture) seedProduct(t *testing.T, id string, price string, stock int) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, f.store.CreateProduct(context.Background(), &domain.Product{
		ProductID: id, Name: id, Category: "books",
		Price: decimal.RequireFromString(price), Stock: stock,
		CreatedAt: now, UpdatedAt: now,
	}))
}

func (f *fixture) stockOf(t *testing.T, id string) int {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) orderCount(t *testing.T) int {
	t.Helper()
	page, err := f.store.ListOrders(context.Background(), domain.OrderFilter{Page: domain.Page{Limit: domain.MaxPageLimit}})
	require.NoError(t, err)
	return len(page.Items)
}

func line(id string, qty int) []domain.LineItem {
	return []domain.LineItem{{ProductID: id, Quantity: qty}}
}

func TestPlaceOrder_DecrementsStockAndSnapshotsPrice(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, testProductID, "12.50", 5)

	order, err := f.orders.PlaceOrder(context.Background(), testUserID, line(testProductID, 3))

	require.NoError(t, err)
	assert.Equal(t, 2, f.stockOf(t, testProductID))
	require.Len(t, order.Items, 1)
	assert.True(t, decimal.RequireFromString("12.50").Equal(order.Items[0].UnitPrice))
	assert.Equal(t, "37.50", order.Total().StringFixed(2))
	assert.Equal(t, domain.OrderStatusPlaced, order.Status)

	stored, err := f.orders.GetOrder(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.Items, stored.Items)
}

func TestPlaceOrder_InsufficientStockLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, testProductID, "1.00", 2)

	_, err := f.orders.PlaceOrder(context.Background(), testUserID, line(testProductID, 3))

	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, testProductID, domain.ProductIDOf(err))
	assert.Equal(t, 2, f.stockOf(t, testProductID))
	assert.Zero(t, f.orderCount(t))
}

func TestPlaceOrder_ConcurrentRequestsNeverOversell(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, testProductID, "1.00", 5)

	const workers = 2
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.orders.PlaceOrder(context.Background(), testUserID, line(testProductID, 3))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
		assert.Equal(t, testProductID, domain.ProductIDOf(err))
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 2, f.stockOf(t, testProductID))
	assert.Equal(t, 1, f.orderCount(t))
}

func TestPlaceOrder_ManyConcurrentBuyersSumWithinStock(t *testing.T) {
	f := newFixture(t)
	const initial = 37
	f.seedProduct(t, testProductID, "2.00", initial)

	const buyers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	sold := 0
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(qty int) {
			defer wg.Done()
			if _, err := f.orders.PlaceOrder(context.Background(), testUserID, line(testProductID, qty)); err == nil {
				mu.Lock()
				sold += qty
				mu.Unlock()
			}
		}(i%3 + 1)
	}
	wg.Wait()

	remaining := f.stockOf(t, testProductID)
	assert.GreaterOrEqual(t, remaining, 0)
	assert.Equal(t, initial, sold+remaining)
}

func TestPlaceOrder_UnknownProduct(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, testProductID, "1.00", 5)

	_, err := f.orders.PlaceOrder(context.Background(), testUserID, []domain.LineItem{
		{ProductID: testProductID, Quantity: 1},
		{ProductID: "missing", Quantity: 1},
	})

	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.Equal(t, "missing", domain.ProductIDOf(err))
	assert.Equal(t, 5, f.stockOf(t, testProductID))
	assert.Zero(t, f.orderCount(t))
}

func TestPlaceOrder_RejectsBadRequests(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		items  []domain.LineItem
		want   error
	}{
		{name: "zero quantity", userID: testUserID, items: line(testProductID, 0), want: domain.ErrInvalidQuantity},
		{name: "negative quantity", userID: testUserID, items: line(testProductID, -2), want: domain.ErrInvalidQuantity},
		{name: "empty order", userID: testUserID, items: nil, want: domain.ErrEmptyOrder},
		{name: "missing user id", userID: " ", items: line(testProductID, 1), want: domain.ErrValidation},
		{name: "missing product id", userID: testUserID, items: line("", 1), want: domain.ErrValidation},
		{
			name:   "duplicate line item",
			userID: testUserID,
			items:  []domain.LineItem{{ProductID: testProductID, Quantity: 1}, {ProductID: testProductID, Quantity: 2}},
			want:   domain.ErrDuplicateLineItem,
		},
		{name: "unknown user", userID: "ghost", items: line(testProductID, 1), want: domain.ErrUserNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedProduct(t, testProductID, "1.00", 5)

			_, err := f.orders.PlaceOrder(context.Background(), tc.userID, tc.items)

			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, 5, f.stockOf(t, testProductID))
			assert.Zero(t, f.orderCount(t))
		})
	}
}

func TestPlaceOrder_PriceChangeDoesNotRewriteHistory(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, testProductID, "10.00", 5)
	ctx := context.Background()

	order, err := f.orders.PlaceOrder(ctx, testUserID, line(testProductID, 1))
	require.NoError(t, err)

	newPrice := decimal.RequireFromString("99.99")
	_, err = f.products.UpdateProduct(ctx, testProductID, domain.UpdateProductRequest{Price: &newPrice})
	require.NoError(t, err)

	reread, err := f.orders.GetOrder(ctx, order.OrderID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10.00").Equal(reread.Items[0].UnitPrice))
}

// staleReader serves a snapshot taken before stock was sold elsewhere.
type staleReader struct {
	snapshot map[string]domain.Product
}

func (r staleReader) GetProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.snapshot[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func TestPlaceOrder_CommitRejectsWhenPreCheckIsStale(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, testProductID, "1.00", 5)
	ctx := context.Background()

	snapshot, err := f.store.GetProducts(ctx, []string{testProductID})
	require.NoError(t, err)

	_, err = f.orders.PlaceOrder(ctx, testUserID, line(testProductID, 4))
	require.NoError(t, err)

	stale := NewOrderService(f.store, staleReader{snapshot: snapshot}, f.store, zap.NewNop())
	_, err = stale.PlaceOrder(ctx, testUserID, line(testProductID, 4))

	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 1, f.stockOf(t, testProductID))
	assert.Equal(t, 1, f.orderCount(t))
}

func TestPlaceOrder_CancelledContextRollsBack(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, testProductID, "1.00", 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orders.PlaceOrder(ctx, testUserID, line(testProductID, 2))

	assert.Error(t, err)
	assert.Equal(t, domain.KindStorage, domain.KindOf(err))
	assert.Equal(t, 5, f.stockOf(t, testProductID))
	assert.Zero(t, f.orderCount(t))
}

func TestPlaceOrder_WritesOutboxEventInSameUnit(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, testProductID, "4.00", 5)
	f.orders.EnableEvents()

	order, err := f.orders.PlaceOrder(context.Background(), testUserID, line(testProductID, 2))
	require.NoError(t, err)

	outbox := f.store.OutboxEvents()
	require.Len(t, outbox, 1)
	assert.Equal(t, events.TypeOrderPlaced, outbox[0].Type)
	assert.Equal(t, order.OrderID, outbox[0].AggregateID)
	assert.Equal(t, events.StatusPending, outbox[0].Status)

	var payload events.OrderPlacedEvent
	require.NoError(t, json.Unmarshal(outbox[0].Payload, &payload))
	assert.Equal(t, order.OrderID, payload.OrderID)
	assert.True(t, decimal.RequireFromString("8").Equal(payload.Total))
}

func TestPlaceOrder_RejectedPlacementWritesNoEvent(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, testProductID, "4.00", 1)
	f.orders.EnableEvents()

	_, err := f.orders.PlaceOrder(context.Background(), testUserID, line(testProductID, 2))

	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Empty(t, f.store.OutboxEvents())
}

func TestPlaceOrder_EvictsCachedProducts(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, testProductID, "1.00", 5)
	cache := newFakeCache()
	f.orders.SetCache(cache)

	_, err := f.orders.PlaceOrder(context.Background(), testUserID, line(testProductID, 1))
	require.NoError(t, err)

	assert.Equal(t, []string{testProductID}, cache.invalidated)
}

func TestPlaceOrder_RepeatedCallCreatesSecondOrder(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, testProductID, "1.00", 5)
	ctx := context.Background()

	first, err := f.orders.PlaceOrder(ctx, testUserID, line(testProductID, 1))
	require.NoError(t, err)
	second, err := f.orders.PlaceOrder(ctx, testUserID, line(testProductID, 1))
	require.NoError(t, err)

	assert.NotEqual(t, first.OrderID, second.OrderID)
	assert.Equal(t, 3, f.stockOf(t, testProductID))
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, testProductID, "1.00", 5)
	ctx := context.Background()

	order, err := f.orders.PlaceOrder(ctx, testUserID, line(testProductID, 1))
	require.NoError(t, err)

	updated, err := f.orders.UpdateStatus(ctx, order.OrderID, domain.OrderStatusShipped)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, updated.Status)
	assert.Equal(t, order.Items, updated.Items)
	assert.Equal(t, 4, f.stockOf(t, testProductID))

	_, err = f.orders.UpdateStatus(ctx, order.OrderID, "lost")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = f.orders.UpdateStatus(ctx, "missing", domain.OrderStatusShipped)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
