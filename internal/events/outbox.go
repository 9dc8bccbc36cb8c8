package events

import (
	"context"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// OutboxEvent is a pending message stored next to the business data that produced it.
type OutboxEvent struct {
	EventID       string
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Status        Status
	Attempts      int
	LastError     string
	CreatedAt     time.Time
}

// OutboxStore is implemented by every storage backend.
type OutboxStore interface {
	// LockBatch claims up to batchSize pending events (or events whose lease
	// expired) for relayID until now+lease.
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]OutboxEvent, error)
	MarkSent(ctx context.Context, ids []string) error
	// MarkFailed returns the event to pending, or parks it as failed once
	// maxAttempts is reached.
	MarkFailed(ctx context.Context, id string, errMsg string, maxAttempts int) error
}
