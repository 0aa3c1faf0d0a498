// Package cache provides the Redis-backed item summary cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/itemcache"
)

const summaryKeyPrefix = "stockledger:item-summary:"

// SummaryCache stores item summaries as JSON with a TTL.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ itemcache.SummaryCache = (*SummaryCache)(nil)

// NewSummaryCache creates a summary cache on an existing client.
func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{client: client, ttl: ttl}
}

func summaryKey(itemID id.ID) string {
	return summaryKeyPrefix + itemID.String()
}

// Get returns (nil, nil) on a miss.
func (c *SummaryCache) Get(ctx context.Context, itemID id.ID) (*itemcache.Summary, error) {
	raw, err := c.client.Get(ctx, summaryKey(itemID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get summary: %w", err)
	}

	var s itemcache.Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &s, nil
}

func (c *SummaryCache) Set(ctx context.Context, s itemcache.Summary) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := c.client.Set(ctx, summaryKey(s.ItemID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set summary: %w", err)
	}
	return nil
}

// Invalidate drops the cached summary of an item.
func (c *SummaryCache) Invalidate(ctx context.Context, itemID id.ID) error {
	return c.client.Del(ctx, summaryKey(itemID)).Err()
}

// Ping checks connectivity; used by the readiness probe.
func (c *SummaryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
