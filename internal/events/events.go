package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
)

const (
	TypeOrderPlaced = "order.placed"

	AggregateOrder = "order"
)

// OrderPlacedEvent is published for every committed placement.
type OrderPlacedEvent struct {
	EventID  string             `json:"eventId"`
	OrderID  string             `json:"orderId"`
	UserID   string             `json:"userId"`
	Items    []domain.OrderItem `json:"items"`
	Total    decimal.Decimal    `json:"total"`
	PlacedAt time.Time          `json:"placedAt"`
}

// RestockEvent is consumed from the restock topic and increases a product's stock.
type RestockEvent struct {
	EventID   string `json:"eventId"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// NewOrderPlaced builds the outbox row written in the same unit of work as the order.
func NewOrderPlaced(o domain.Order) (OutboxEvent, error) {
	ev := OrderPlacedEvent{
		EventID:  uuid.NewString(),
		OrderID:  o.OrderID,
		UserID:   o.UserID,
		Items:    o.Items,
		Total:    o.Total(),
		PlacedAt: o.CreatedAt,
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return OutboxEvent{}, err
	}
	return OutboxEvent{
		EventID:       ev.EventID,
		AggregateType: AggregateOrder,
		AggregateID:   o.OrderID,
		Type:          TypeOrderPlaced,
		Payload:       payload,
		Status:        StatusPending,
		CreatedAt:     o.CreatedAt,
	}, nil
}
