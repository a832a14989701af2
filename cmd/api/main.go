// Package main provides the entry point for the movie search API
//
// @title Movie Search API
// @version 1.0.0
// @description Read API for the online cinema catalogue, serving films, genres and persons from Elasticsearch.
// @host localhost:8080
// @BasePath /
// @schemes http
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/kinohub/moviesearch/domain/catalog"
	"github.com/kinohub/moviesearch/domain/health"
	"github.com/kinohub/moviesearch/domain/scheduler"
	"github.com/kinohub/moviesearch/internal/cache"
	"github.com/kinohub/moviesearch/internal/config"
	"github.com/kinohub/moviesearch/internal/database"
	"github.com/kinohub/moviesearch/internal/elastic"
	"github.com/kinohub/moviesearch/internal/server"
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
		cache.Module,
		server.Module,

		// Domain modules
		health.Module,
		catalog.Module,

		// Scheduler module (periodic index drift check)
		scheduler.Module,
	).Run()
}
