// Package main provides the entry point for the sync daemon that mirrors
// the film catalogue from PostgreSQL into Elasticsearch.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/kinohub/moviesearch/domain/etl"
	"github.com/kinohub/moviesearch/internal/config"
	"github.com/kinohub/moviesearch/internal/database"
	"github.com/kinohub/moviesearch/internal/elastic"
	"github.com/kinohub/moviesearch/internal/metrics"
	"github.com/kinohub/moviesearch/pkg/logger"
)

func main() {
	// Load .env files if present (for local development)
	// Note: Load() won't overwrite existing vars, Overload() will
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		// Logging
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		elastic.Module,

		// Prometheus endpoint (enabled via METRICS_PORT)
		metrics.Module,

		// Incremental sync pipeline
		etl.Module,
	).Run()
}
