// Package metrics serves the Prometheus endpoint for the sync daemon.
// The read API has its own echo server; this one is a bare net/http mux so
// the daemon carries no routing framework.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/kinohub/moviesearch/internal/config"
	"github.com/kinohub/moviesearch/pkg/logger"
)

var Module = fx.Module("metrics",
	fx.Invoke(StartServer),
)

// StartServer exposes /metrics and /healthz when METRICS_PORT is set.
func StartServer(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) {
	if !cfg.Metrics.Enabled() {
		return
	}

	log = log.With(logger.Scope("metrics"))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("starting metrics server", slog.String("address", server.Addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server error", logger.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down metrics server")
			return server.Shutdown(ctx)
		},
	})
}
