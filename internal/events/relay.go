package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

type RelayConfig struct {
	RelayID     string
	BatchSize   int
	Interval    time.Duration
	Lease       time.Duration
	MaxAttempts int
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Interval <= 0 {
		c.Interval = 500 * time.Millisecond
	}
	if c.Lease <= 0 {
		c.Lease = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	return c
}

// Relay moves committed outbox rows to the broker. Delivery is at-least-once:
// a crash between Publish and MarkSent republishes the event after the lease.
type Relay struct {
	store     OutboxStore
	publisher Publisher
	cfg       RelayConfig
	logger    *zap.Logger
}

func NewRelay(store OutboxStore, publisher Publisher, cfg RelayConfig, logger *zap.Logger) *Relay {
	return &Relay{
		store:     store,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.cfg.Interval)
	defer t.Stop()

	r.logger.Info("Outbox relay started", zap.String("relay_id", r.cfg.RelayID))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Outbox relay stopping", zap.String("relay_id", r.cfg.RelayID))
			return nil
		case <-t.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("Outbox flush failed", zap.Error(err))
			}
		}
	}
}

// Flush publishes one batch and reports how many events were sent.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	batch, err := r.store.LockBatch(ctx, r.cfg.RelayID, r.cfg.BatchSize, r.cfg.Lease)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	sent := make([]string, 0, len(batch))
	for _, ev := range batch {
		if err := r.publisher.Publish(ctx, ev); err != nil {
			if markErr := r.store.MarkFailed(ctx, ev.EventID, err.Error(), r.cfg.MaxAttempts); markErr != nil {
				r.logger.Error("Failed to mark outbox event failed",
					zap.String("event_id", ev.EventID),
					zap.Error(markErr))
			}
			continue
		}
		sent = append(sent, ev.EventID)
	}

	if len(sent) > 0 {
		if err := r.store.MarkSent(ctx, sent); err != nil {
			return 0, err
		}
	}
	return len(sent), nil
}
