// Package cache keeps item availability summaries keyed by item version.
//
// Every transaction that changes an item's units bumps the item's version
// before commit, so a committed write makes all older entries unreachable
// and nothing ever needs to be deleted.
package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/pkg/logger"
)

// AvailabilityCache stores item summaries per item version
type AvailabilityCache interface {
	Get(ctx context.Context, itemID string, version int64) (*repository.ItemSummary, bool)
	Set(ctx context.Context, summary repository.ItemSummary)
}

// Key returns the cache key of an item summary at a version
func Key(itemID string, version int64) string {
	return fmt.Sprintf("rentora:avail:%s:%d", itemID, version)
}

// RedisCache is the redis-backed AvailabilityCache. Redis failures are
// logged and treated as misses.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewRedisCache creates a RedisCache
func NewRedisCache(rdb *redis.Client, ttl time.Duration, log *logger.Logger) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl, logger: log.WithComponent("availability_cache")}
}

// Get looks up the summary of itemID at exactly version
func (c *RedisCache) Get(ctx context.Context, itemID string, version int64) (*repository.ItemSummary, bool) {
	raw, err := c.rdb.Get(ctx, Key(itemID, version)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.ForItem(itemID).Warn().Err(err).Msg("availability cache read failed")
		return nil, false
	}

	var s repository.ItemSummary
	if err := json.Unmarshal(raw, &s); err != nil {
		c.logger.ForItem(itemID).Warn().Err(err).Msg("availability cache entry unreadable")
		return nil, false
	}
	return &s, true
}

// Set stores a summary under its own version
func (c *RedisCache) Set(ctx context.Context, summary repository.ItemSummary) {
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, Key(summary.ItemID, summary.Version), raw, c.ttl).Err(); err != nil {
		c.logger.ForItem(summary.ItemID).Warn().Err(err).Msg("availability cache write failed")
	}
}

// NopCache caches nothing
type NopCache struct{}

// Get always misses
func (NopCache) Get(context.Context, string, int64) (*repository.ItemSummary, bool) {
	return nil, false
}

// Set does nothing
func (NopCache) Set(context.Context, repository.ItemSummary) {}
