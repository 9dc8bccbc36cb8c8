package domain

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "placed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPlaced, OrderStatusShipped, OrderStatusDelivered:
		return true
	}
	return false
}

// LineItem is one requested (product, quantity) pair of a placement.
type LineItem struct {
	ProductID string
	Quantity  int
}

// OrderItem is immutable once the owning order is committed. UnitPrice is the
// product price captured at placement time.
type OrderItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	OrderID   string      `json:"id"`
	UserID    string      `json:"userId"`
	Status    OrderStatus `json:"status"`
	Items     []OrderItem `json:"items"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Total is derived from the items and is never stored.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

func NewOrder(id, userID string, items []OrderItem) Order {
	now := time.Now().UTC()
	return Order{
		OrderID:   id,
		UserID:    userID,
		Status:    OrderStatusPlaced,
		Items:     items,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

type PlaceOrderItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	// Quantity is bound as a raw number so a fractional value is reported
	// as an invalid quantity for its product rather than a decode failure.
	Quantity *json.Number `json:"quantity" binding:"required"`
	// UnitPrice is accepted for compatibility; the stored price always comes
	// from the product at placement time.
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
}

type PlaceOrderRequest struct {
	UserID     string                  `json:"userId"     binding:"required"`
	OrderItems []PlaceOrderItemRequest `json:"orderItems" binding:"required,min=1,dive"`
}

// LineItems converts the request, failing with InvalidQuantity for any
// quantity that is not an integer in [1, MaxStock].
func (r PlaceOrderRequest) LineItems() ([]LineItem, error) {
	items := make([]LineItem, 0, len(r.OrderItems))
	for _, it := range r.OrderItems {
		q, err := strconv.ParseInt(it.Quantity.String(), 10, 64)
		if err != nil || q <= 0 || q > MaxStock {
			return nil, InvalidQuantity(it.ProductID)
		}
		items = append(items, LineItem{ProductID: it.ProductID, Quantity: int(q)})
	}
	return items, nil
}

type UpdateOrderRequest struct {
	Status OrderStatus `json:"status" binding:"required"`
}

type OrderItemResponse struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type OrderResponse struct {
	OrderID   string              `json:"id"`
	UserID    string              `json:"userId"`
	Status    OrderStatus         `json:"status"`
	Items     []OrderItemResponse `json:"items"`
	Total     decimal.Decimal     `json:"total"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

func NewOrderResponse(o Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: it.LineTotal(),
		})
	}
	return OrderResponse{
		OrderID:   o.OrderID,
		UserID:    o.UserID,
		Status:    o.Status,
		Items:     items,
		Total:     o.Total(),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

type OrderFilter struct {
	UserID string
	Page   Page
}

type OrderPage struct {
	Items      []Order
	NextCursor string
}

type OrderPageResponse struct {
	Items      []OrderResponse `json:"items"`
	NextCursor string          `json:"nextCursor,omitempty"`
}
