package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultDedupeTTL = 24 * time.Hour

// Deduper remembers processed message keys so redelivered messages are
// applied once.
type Deduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDeduper(client *redis.Client, ttl time.Duration) *Deduper {
	return &Deduper{client: client, ttl: ttl}
}

// Claim reports whether the caller is the first to see key.
func (d *Deduper) Claim(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, key, 1, d.ttl).Result()
}

// Release forgets key so a failed message can be processed again.
func (d *Deduper) Release(ctx context.Context, key string) error {
	return d.client.Del(ctx, key).Err()
}
