// Package cache provides the Redis client backing the read API cache.
package cache

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/kinohub/moviesearch/internal/config"
	"github.com/kinohub/moviesearch/pkg/logger"
)

var Module = fx.Module("cache",
	fx.Provide(NewRedis),
)

// NewRedis creates the Redis client and closes it on shutdown. A cold or
// unreachable Redis is not fatal: the catalog service treats cache errors
// as misses and falls through to Elasticsearch.
func NewRedis(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) *redis.Client {
	log = log.With(logger.Scope("cache"))

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr(),
		DialTimeout: cfg.Redis.DialTimeout,
	})

	log.Info("redis client created",
		slog.String("addr", cfg.Redis.Addr()),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing redis client")
			return client.Close()
		},
	})

	return client
}
