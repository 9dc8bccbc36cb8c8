// Package cache holds the Redis-backed read cache and consumer dedupe keys.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
)

const (
	productKeyPrefix = "product:"

	// tombstone holds an invalidated key so a read that loaded the product
	// before the write cannot repopulate it with the old value.
	tombstone = "-"
	// DefaultTombstoneTTL bounds how long a read after a write skips the cache.
	DefaultTombstoneTTL = 5 * time.Second
)

// ProductCache is a read-through cache for single-product reads. Order
// placement never reads from it: stock checks always go to the store.
//
// Set only fills an absent key and Invalidate leaves a short-lived tombstone,
// so a lookup racing a write can serve a stale product for at most the
// tombstone TTL plus its own round trip, never for the full entry TTL.
type ProductCache struct {
	client       *redis.Client
	ttl          time.Duration
	tombstoneTTL time.Duration
}

func NewProductCache(client *redis.Client, ttl time.Duration) *ProductCache {
	return &ProductCache{client: client, ttl: ttl, tombstoneTTL: DefaultTombstoneTTL}
}

// Get returns nil, nil on a miss or a tombstone.
func (c *ProductCache) Get(ctx context.Context, productID string) (*domain.Product, error) {
	raw, err := c.client.Get(ctx, productKeyPrefix+productID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	if string(raw) == tombstone {
		return nil, nil
	}

	var p domain.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return &p, nil
}

func (c *ProductCache) Set(ctx context.Context, product *domain.Product) error {
	raw, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	// A held tombstone or a concurrent fill wins; losing is not an error.
	return c.client.SetNX(ctx, productKeyPrefix+product.ProductID, raw, c.ttl).Err()
}

// Invalidate replaces each entry with a tombstone that expires after the
// tombstone TTL.
func (c *ProductCache) Invalidate(ctx context.Context, productIDs ...string) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range productIDs {
			pipe.Set(ctx, productKeyPrefix+id, tombstone, c.tombstoneTTL)
		}
		return nil
	})
	return err
}
