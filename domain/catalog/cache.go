package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kinohub/moviesearch/internal/config"
	"github.com/kinohub/moviesearch/pkg/logger"
)

// Lists churn as the sync daemon writes, so they expire much faster than
// single documents.
const listTTL = time.Minute

// Cache is the Redis layer in front of Elasticsearch. It never fails a
// request: any Redis error, including an unreachable server, is logged and
// treated as a miss, and writes are fire-and-forget.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
	log   *slog.Logger
}

// NewCache creates the catalog cache with the document TTL from configuration.
func NewCache(client *redis.Client, cfg *config.Config, log *slog.Logger) *Cache {
	return &Cache{
		redis: client,
		ttl:   cfg.Redis.CacheTTL(),
		log:   log.With(logger.Scope("catalog.cache")),
	}
}

// Get unmarshals the cached value for key into dest. Returns false on a
// miss, a Redis error, or a corrupt entry.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("cache read failed", slog.String("key", key), logger.Error(err))
		}
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.log.Warn("discarding corrupt cache entry", slog.String("key", key), logger.Error(err))
		return false
	}
	return true
}

// Set stores value under key with the document TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	c.set(ctx, key, value, c.ttl)
}

// SetList stores a list result under key with the shorter list TTL.
func (c *Cache) SetList(ctx context.Context, key string, value any) {
	c.set(ctx, key, value, listTTL)
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("cache encode failed", slog.String("key", key), logger.Error(err))
		return
	}
	if err := c.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		c.log.Warn("cache write failed", slog.String("key", key), logger.Error(err))
	}
}
