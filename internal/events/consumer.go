package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
)

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Restocker applies an atomic stock increment.
type Restocker interface {
	Restock(ctx context.Context, productID string, quantity int) (*domain.Product, error)
}

// Deduper claims an event id so a redelivered message is applied once.
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

func NewKafkaReader(brokers, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(brokers, ","),
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

const maxRetryBackoff = 30 * time.Second

type RestockConsumer struct {
	reader       MessageReader
	restocker    Restocker
	deduper      Deduper
	logger       *zap.Logger
	retryBackoff time.Duration
}

// NewRestockConsumer builds a consumer; deduper may be nil.
func NewRestockConsumer(reader MessageReader, restocker Restocker, deduper Deduper, logger *zap.Logger) *RestockConsumer {
	return &RestockConsumer{
		reader:       reader,
		restocker:    restocker,
		deduper:      deduper,
		logger:       logger,
		retryBackoff: time.Second,
	}
}

func (c *RestockConsumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	c.logger.Info("Restock consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Restock consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.handleWithRetry(ctx, msg); err != nil {
			// Shutting down: the offset stays uncommitted and the message is
			// redelivered to the next member of the group.
			c.logger.Info("Restock consumer stopped")
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Error committing message", zap.Error(err))
		}
	}
}

// handleWithRetry retries a message until it is handled or ctx is done.
// Offsets commit cumulatively per partition, so skipping past a failed
// message would silently acknowledge it.
func (c *RestockConsumer) handleWithRetry(ctx context.Context, msg kafka.Message) error {
	backoff := c.retryBackoff
	for {
		err := c.handle(ctx, msg)
		if err == nil {
			return nil
		}
		c.logger.Error("Error processing message",
			zap.Error(err),
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

// handle returns an error only for failures worth redelivering.
func (c *RestockConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var ev RestockEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.logger.Warn("Dropping malformed restock message",
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}
	if ev.EventID == "" {
		ev.EventID = fmt.Sprintf("%s:%d:%d", msg.Topic, msg.Partition, msg.Offset)
	}

	key := "restock:" + ev.EventID
	if c.deduper != nil {
		ok, err := c.deduper.Claim(ctx, key)
		if err != nil {
			return fmt.Errorf("claim %s: %w", key, err)
		}
		if !ok {
			c.logger.Info("Duplicate restock skipped", zap.String("event_id", ev.EventID))
			return nil
		}
	}

	product, err := c.restocker.Restock(ctx, ev.ProductID, ev.Quantity)
	if err != nil {
		if domain.KindOf(err) != domain.KindStorage && domain.KindOf(err) != domain.KindInternal {
			c.logger.Warn("Restock rejected",
				zap.String("event_id", ev.EventID),
				zap.String("product_id", ev.ProductID),
				zap.Error(err))
			return nil
		}
		if c.deduper != nil {
			if relErr := c.deduper.Release(ctx, key); relErr != nil {
				err = errors.Join(err, relErr)
			}
		}
		return err
	}

	c.logger.Info("Stock restocked",
		zap.String("event_id", ev.EventID),
		zap.String("product_id", product.ProductID),
		zap.Int("quantity", ev.Quantity),
		zap.Int("new_stock", product.Stock))
	return nil
}
