// Package elastic provides the shared Elasticsearch client. One client is
// created per process and reused for every request; the official client
// pools connections internally.
package elastic

import (
	"fmt"
	"log/slog"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/fx"

	"github.com/kinohub/moviesearch/internal/config"
	"github.com/kinohub/moviesearch/pkg/logger"
)

var Module = fx.Module("elastic",
	fx.Provide(NewClient),
)

// NewClient builds the Elasticsearch client from configuration.
// Connectivity is not verified here: the sync daemon retries sink calls
// with backoff, and the API reports node health through /health instead.
func NewClient(cfg *config.Config, log *slog.Logger) (*elasticsearch.Client, error) {
	log = log.With(logger.Scope("elastic"))

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Elastic.URL()},
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	log.Info("elasticsearch client created",
		slog.String("url", cfg.Elastic.URL()),
	)

	return client, nil
}
