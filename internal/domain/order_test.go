package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrder_TotalIsSumOfLineTotals(t *testing.T) {
	o := NewOrder("o-1", "u-1", []OrderItem{
		{ProductID: "p-1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		{ProductID: "p-2", Quantity: 1, UnitPrice: decimal.RequireFromString("5.50")},
	})

	assert.True(t, decimal.RequireFromString("25.50").Equal(o.Total()), "got %s", o.Total())
	assert.Equal(t, OrderStatusPlaced, o.Status)
	assert.Equal(t, o.CreatedAt, o.UpdatedAt)
}

func TestOrder_TotalAvoidsFloatDrift(t *testing.T) {
	o := NewOrder("o-1", "u-1", []OrderItem{
		{ProductID: "p-1", Quantity: 3, UnitPrice: decimal.RequireFromString("0.10")},
	})

	assert.Equal(t, "0.30", o.Total().StringFixed(2))
}

func TestNewOrderResponse(t *testing.T) {
	o := NewOrder("o-1", "u-1", []OrderItem{
		{ProductID: "p-1", Quantity: 2, UnitPrice: decimal.RequireFromString("10")},
	})

	resp := NewOrderResponse(o)

	assert.Equal(t, "o-1", resp.OrderID)
	assert.Len(t, resp.Items, 1)
	assert.True(t, decimal.NewFromInt(20).Equal(resp.Items[0].LineTotal))
	assert.True(t, decimal.NewFromInt(20).Equal(resp.Total))
}

func TestOrderStatus_Valid(t *testing.T) {
	assert.True(t, OrderStatusShipped.Valid())
	assert.False(t, OrderStatus("cancelled").Valid())
	assert.False(t, OrderStatus("").Valid())
}

func TestPage_Normalize(t *testing.T) {
	assert.Equal(t, DefaultPageLimit, Page{}.Normalize().Limit)
	assert.Equal(t, MaxPageLimit, Page{Limit: 1000}.Normalize().Limit)
	assert.Equal(t, 7, Page{Limit: 7, Cursor: "c"}.Normalize().Limit)
}

func TestPlaceOrderRequest_LineItems(t *testing.T) {
	num := func(s string) *json.Number {
		n := json.Number(s)
		return &n
	}

	items, err := PlaceOrderRequest{OrderItems: []PlaceOrderItemRequest{
		{ProductID: "a", Quantity: num("2")},
		{ProductID: "b", Quantity: num("2147483647")},
	}}.LineItems()
	require.NoError(t, err)
	assert.Equal(t, []LineItem{{ProductID: "a", Quantity: 2}, {ProductID: "b", Quantity: MaxStock}}, items)

	for _, q := range []string{"1.5", "0", "-1", "2147483648", "1e2", "99999999999999999999"} {
		_, err := PlaceOrderRequest{OrderItems: []PlaceOrderItemRequest{
			{ProductID: "a", Quantity: num("1")},
			{ProductID: "b", Quantity: num(q)},
		}}.LineItems()
		assert.ErrorIs(t, err, ErrInvalidQuantity, q)
		assert.Equal(t, "b", ProductIDOf(err), q)
	}
}
