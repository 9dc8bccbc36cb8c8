package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/events"
)

type OutboxStore struct {
	pool *pgxpool.Pool
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

// LockBatch claims rows with SKIP LOCKED so several relays can share the table.
func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]events.OutboxEvent, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE outbox
		SET status = 'in_progress', relay_id = $1, lease_until = now() + make_interval(secs => $2)
		WHERE event_id IN (
			SELECT event_id FROM outbox
			WHERE status = 'pending'
				OR (status = 'in_progress' AND lease_until < now())
			ORDER BY seq
			FOR UPDATE SKIP LOCKED
			LIMIT $3
		)
		RETURNING seq, event_id, aggregate_type, aggregate_id, event_type, payload, attempts, created_at`,
		relayID, lease.Seconds(), batchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("lock outbox batch: %w", err)
	}
	defer rows.Close()

	type seqEvent struct {
		seq int64
		ev  events.OutboxEvent
	}
	var claimed []seqEvent
	for rows.Next() {
		var se seqEvent
		if err := rows.Scan(&se.seq, &se.ev.EventID, &se.ev.AggregateType, &se.ev.AggregateID,
			&se.ev.Type, &se.ev.Payload, &se.ev.Attempts, &se.ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		se.ev.Status = events.StatusInProgress
		claimed = append(claimed, se)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(claimed, func(i, j int) bool { return claimed[i].seq < claimed[j].seq })
	batch := make([]events.OutboxEvent, 0, len(claimed))
	for _, se := range claimed {
		batch = append(batch, se.ev)
	}
	return batch, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox SET status = 'sent', lease_until = NULL WHERE event_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, errMsg string, maxAttempts int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox
		SET attempts = attempts + 1,
			last_error = $2,
			lease_until = NULL,
			status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END
		WHERE event_id = $1`,
		id, errMsg, maxAttempts,
	)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}
