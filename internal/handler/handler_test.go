package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/repository/memory"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/service"
	"github.com/cloud-wave-best-zizon/commerce-service/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	st := memory.NewStore()
	logger := zap.NewNop()

	return NewRouter(RouterConfig{
		Products:       NewProductHandler(service.NewProductService(st, logger), logger),
		Users:          NewUserHandler(service.NewUserService(st, logger), logger),
		Orders:         NewOrderHandler(service.NewOrderService(st, st, st, logger), logger),
		RequestTimeout: 5 * time.Second,
	}, logger)
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// seed creates one user and one product with the given stock and returns the user id.
func seed(t *testing.T, r http.Handler, stock int) string {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/v1/users", gin.H{"name": "Ada", "email": "ada@example.com"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	user := decode[domain.User](t, w)

	w = do(t, r, http.MethodPost, "/api/v1/products", gin.H{
		"id": "P", "name": "Widget", "category": "tools", "price": "19.99", "stock": stock,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return user.UserID
}

func TestPlaceOrder_Created(t *testing.T) {
	r := newTestRouter(t)
	userID := seed(t, r, 5)

	w := do(t, r, http.MethodPost, "/api/v1/orders", gin.H{
		"userId":     userID,
		"orderItems": []gin.H{{"productId": "P", "quantity": 3, "unitPrice": "0.01"}},
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode[domain.OrderResponse](t, w)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "19.99", order.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "59.97", order.Total.StringFixed(2))

	w = do(t, r, http.MethodGet, "/api/v1/products/P", nil)
	assert.Equal(t, 2, decode[domain.Product](t, w).Stock)

	w = do(t, r, http.MethodGet, "/api/v1/orders/"+order.OrderID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, order.OrderID, decode[domain.OrderResponse](t, w).OrderID)
}

func TestPlaceOrder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		body      any
		status    int
		code      string
		productID string
	}{
		{
			name:      "insufficient stock",
			body:      gin.H{"orderItems": []gin.H{{"productId": "P", "quantity": 3}}},
			status:    http.StatusConflict,
			code:      "insufficient_stock",
			productID: "P",
		},
		{
			name:      "unknown product",
			body:      gin.H{"orderItems": []gin.H{{"productId": "nope", "quantity": 1}}},
			status:    http.StatusNotFound,
			code:      "product_not_found",
			productID: "nope",
		},
		{
			name:      "zero quantity",
			body:      gin.H{"orderItems": []gin.H{{"productId": "P", "quantity": 0}}},
			status:    http.StatusBadRequest,
			code:      "invalid_quantity",
			productID: "P",
		},
		{
			name:      "fractional quantity",
			body:      gin.H{"orderItems": []gin.H{{"productId": "P", "quantity": 1.5}}},
			status:    http.StatusBadRequest,
			code:      "invalid_quantity",
			productID: "P",
		},
		{
			name:      "quantity beyond stock range",
			body:      gin.H{"orderItems": []gin.H{{"productId": "P", "quantity": 1 << 31}}},
			status:    http.StatusBadRequest,
			code:      "invalid_quantity",
			productID: "P",
		},
		{
			name:      "duplicate product",
			body:      gin.H{"orderItems": []gin.H{{"productId": "P", "quantity": 1}, {"productId": "P", "quantity": 1}}},
			status:    http.StatusBadRequest,
			code:      "duplicate_line_item",
			productID: "P",
		},
		{
			name:   "missing items",
			body:   gin.H{},
			status: http.StatusBadRequest,
			code:   "validation_failed",
		},
		{
			name:   "malformed json",
			body:   `{"userId":`,
			status: http.StatusBadRequest,
			code:   "validation_failed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(t)
			userID := seed(t, r, 2)

			body := tc.body
			if m, ok := body.(gin.H); ok {
				m["userId"] = userID
			}

			w := do(t, r, http.MethodPost, "/api/v1/orders", body)

			require.Equal(t, tc.status, w.Code, w.Body.String())
			resp := decode[errorResponse](t, w)
			assert.Equal(t, tc.code, resp.Code)
			assert.Equal(t, tc.productID, resp.ProductID)

			w = do(t, r, http.MethodGet, "/api/v1/products/P", nil)
			assert.Equal(t, 2, decode[domain.Product](t, w).Stock)
		})
	}
}

func TestPlaceOrder_UnknownUser(t *testing.T) {
	r := newTestRouter(t)
	seed(t, r, 2)

	w := do(t, r, http.MethodPost, "/api/v1/orders", gin.H{
		"userId":     "ghost",
		"orderItems": []gin.H{{"productId": "P", "quantity": 1}},
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "user_not_found", decode[errorResponse](t, w).Code)
}

func TestUpdateOrderStatus(t *testing.T) {
	r := newTestRouter(t)
	userID := seed(t, r, 2)

	w := do(t, r, http.MethodPost, "/api/v1/orders", gin.H{
		"userId":     userID,
		"orderItems": []gin.H{{"productId": "P", "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[domain.OrderResponse](t, w).OrderID

	w = do(t, r, http.MethodPatch, "/api/v1/orders/"+id, gin.H{"status": "shipped"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.OrderStatusShipped, decode[domain.OrderResponse](t, w).Status)

	w = do(t, r, http.MethodPatch, "/api/v1/orders/"+id, gin.H{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListOrders_FilterByUser(t *testing.T) {
	r := newTestRouter(t)
	userID := seed(t, r, 10)

	for i := 0; i < 3; i++ {
		w := do(t, r, http.MethodPost, "/api/v1/orders", gin.H{
			"userId":     userID,
			"orderItems": []gin.H{{"productId": "P", "quantity": 1}},
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := do(t, r, http.MethodGet, "/api/v1/orders?userId="+userID+"&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[domain.OrderPageResponse](t, w)
	assert.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.NextCursor)

	w = do(t, r, http.MethodGet, "/api/v1/orders?userId=someone-else", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[domain.OrderPageResponse](t, w).Items)

	w = do(t, r, http.MethodGet, "/api/v1/orders?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProductRoutes(t *testing.T) {
	r := newTestRouter(t)
	seed(t, r, 1)

	w := do(t, r, http.MethodPost, "/api/v1/products", gin.H{
		"id": "P", "name": "Dup", "category": "tools", "price": "1", "stock": 1,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/products", gin.H{"name": "NoStock", "category": "tools", "price": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPatch, "/api/v1/products/P", gin.H{"price": "24.50"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "24.50", decode[domain.Product](t, w).Price.StringFixed(2))

	w = do(t, r, http.MethodPost, "/api/v1/products/P/restock", gin.H{"quantity": 4})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, decode[domain.Product](t, w).Stock)

	w = do(t, r, http.MethodPost, "/api/v1/products/P/restock", gin.H{"quantity": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/products?category=TOOLS&minPrice=20", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[domain.ProductPage](t, w).Items, 1)

	w = do(t, r, http.MethodGet, "/api/v1/products?minPrice=cheap", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodDelete, "/api/v1/products/P", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/products/P", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProductRoutes_Bounds(t *testing.T) {
	r := newTestRouter(t)
	seed(t, r, 1)

	w := do(t, r, http.MethodPost, "/api/v1/products/P/restock", gin.H{"quantity": math.MaxInt64})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	resp := decode[errorResponse](t, w)
	assert.Equal(t, "invalid_quantity", resp.Code)
	assert.Equal(t, "P", resp.ProductID)

	w = do(t, r, http.MethodPost, "/api/v1/products/P/restock", gin.H{"quantity": domain.MaxStock - 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.MaxStock, decode[domain.Product](t, w).Stock)

	w = do(t, r, http.MethodPost, "/api/v1/products/P/restock", gin.H{"quantity": 1})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, "invalid_quantity", decode[errorResponse](t, w).Code)

	w = do(t, r, http.MethodGet, "/api/v1/products/P", nil)
	assert.Equal(t, domain.MaxStock, decode[domain.Product](t, w).Stock)

	w = do(t, r, http.MethodPost, "/api/v1/products", gin.H{"name": "Fine", "category": "tools", "price": "1.005", "stock": 1})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, "invalid_price", decode[errorResponse](t, w).Code)

	w = do(t, r, http.MethodPost, "/api/v1/products", gin.H{"name": "Deep", "category": "tools", "price": "1", "stock": int64(domain.MaxStock) + 1})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, "validation_failed", decode[errorResponse](t, w).Code)

	w = do(t, r, http.MethodPatch, "/api/v1/products/P", gin.H{"price": "10000000000"})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, "invalid_price", decode[errorResponse](t, w).Code)
}

func TestUserRoutes(t *testing.T) {
	r := newTestRouter(t)
	userID := seed(t, r, 1)

	w := do(t, r, http.MethodPost, "/api/v1/users", gin.H{"name": "Ada 2", "email": "ADA@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/users", gin.H{"name": "Bad", "email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPatch, "/api/v1/users/"+userID, gin.H{"name": "Ada L."})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ada L.", decode[domain.User](t, w).Name)

	w = do(t, r, http.MethodGet, "/api/v1/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[domain.UserPage](t, w).Items, 1)

	w = do(t, r, http.MethodPost, "/api/v1/orders", gin.H{
		"userId":     userID,
		"orderItems": []gin.H{{"productId": "P", "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, r, http.MethodDelete, "/api/v1/users/"+userID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "user_has_orders", decode[errorResponse](t, w).Code)
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	logger := zap.NewNop()
	st := memory.NewStore()
	down := NewRouter(RouterConfig{
		Products: NewProductHandler(service.NewProductService(st, logger), logger),
		Users:    NewUserHandler(service.NewUserService(st, logger), logger),
		Orders:   NewOrderHandler(service.NewOrderService(st, st, st, logger), logger),
		Ping:     func(context.Context) error { return errors.New("db down") },
	}, logger)
	w = do(t, down, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusOfIsTotal(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusOf(domain.KindValidation))
	assert.Equal(t, http.StatusBadRequest, statusOf(domain.KindInvalidQuantity))
	assert.Equal(t, http.StatusNotFound, statusOf(domain.KindNotFound))
	assert.Equal(t, http.StatusConflict, statusOf(domain.KindInsufficientStock))
	assert.Equal(t, http.StatusConflict, statusOf(domain.KindConflict))
	assert.Equal(t, http.StatusInternalServerError, statusOf(domain.KindStorage))
	assert.Equal(t, http.StatusInternalServerError, statusOf(domain.KindInternal))
}

func TestStorageErrorsHideDetails(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	writeError(c, zap.NewNop(), domain.Storage("commit placement", errors.New("password=secret")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
	assert.Equal(t, "storage_failure", decode[errorResponse](t, w).Code)
}
