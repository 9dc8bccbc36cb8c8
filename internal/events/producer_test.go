package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaProducer_PublishKeysByAggregate(t *testing.T) {
	w := &recordingWriter{}
	p := NewKafkaProducer(w, zap.NewNop())

	err := p.Publish(context.Background(), OutboxEvent{
		EventID:     "ev-1",
		AggregateID: "order-9",
		Type:        TypeOrderPlaced,
		Payload:     []byte(`{"orderId":"order-9"}`),
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "order-9", string(msg.Key))
	assert.JSONEq(t, `{"orderId":"order-9"}`, string(msg.Value))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "ev-1", headers["event_id"])
	assert.Equal(t, TypeOrderPlaced, headers["event_type"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaProducer_PublishError(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	p := NewKafkaProducer(w, zap.NewNop())

	err := p.Publish(context.Background(), OutboxEvent{EventID: "ev-1", AggregateID: "o"})
	assert.EqualError(t, err, "leader not available")
}

func TestNewOrderPlaced(t *testing.T) {
	placedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	order := domain.Order{
		OrderID: "order-1",
		UserID:  "user-1",
		Items: []domain.OrderItem{
			{ProductID: "a", Quantity: 2, UnitPrice: decimal.RequireFromString("1.50")},
			{ProductID: "b", Quantity: 1, UnitPrice: decimal.RequireFromString("0.25")},
		},
		CreatedAt: placedAt,
	}

	ev, err := NewOrderPlaced(order)
	require.NoError(t, err)
	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, "order-1", ev.AggregateID)
	assert.Equal(t, TypeOrderPlaced, ev.Type)
	assert.Equal(t, StatusPending, ev.Status)

	var payload OrderPlacedEvent
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, ev.EventID, payload.EventID)
	assert.True(t, decimal.RequireFromString("3.25").Equal(payload.Total))
	assert.True(t, placedAt.Equal(payload.PlacedAt))
}
