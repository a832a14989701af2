package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"local"`
	Debug       bool   `env:"DEBUG" envDefault:"false"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"debug"`

	// Source database settings
	Database DatabaseConfig

	// Elasticsearch sink / search backend
	Elastic ElasticConfig

	// Redis cache (read API)
	Redis RedisConfig

	// Sync daemon settings
	ETL ETLConfig

	// Read API server settings
	Server ServerConfig

	// Prometheus endpoint for the sync daemon
	Metrics MetricsConfig
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"app"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"movies_database"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// ElasticConfig holds Elasticsearch connection and index settings
type ElasticConfig struct {
	Host string `env:"ES_HOST" envDefault:"localhost"`
	Port int    `env:"ES_PORT" envDefault:"9200"`

	MoviesIndex  string `env:"MOVIES_ES_INDEX" envDefault:"movies"`
	GenresIndex  string `env:"GENRES_ES_INDEX" envDefault:"genres"`
	PersonsIndex string `env:"PERSONS_ES_INDEX" envDefault:"persons"`
}

// URL returns the Elasticsearch node address
func (e *ElasticConfig) URL() string {
	return fmt.Sprintf("http://%s:%d", e.Host, e.Port)
}

// RedisConfig holds Redis connection settings for the read API cache
type RedisConfig struct {
	Host         string        `env:"REDIS_HOST" envDefault:"localhost"`
	Port         int           `env:"REDIS_PORT" envDefault:"6379"`
	CacheTTLSecs int           `env:"FILM_CACHE_TTL_SECONDS" envDefault:"300"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
}

// Addr returns the host:port pair for the Redis client
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CacheTTL returns the cache expiry as a Duration
func (r *RedisConfig) CacheTTL() time.Duration {
	return time.Duration(r.CacheTTLSecs) * time.Second
}

// ETLConfig holds the sync daemon settings
type ETLConfig struct {
	// StateFile is the watermark storage path
	StateFile string `env:"STORAGE_FILE_NAME" envDefault:"state.json"`
	// DeadLetterFile collects documents rejected by bulk indexing
	DeadLetterFile string `env:"DEAD_LETTER_FILE_NAME" envDefault:"dead_letter.jsonl"`
	// PollIntervalSecs is the sleep between sync ticks
	PollIntervalSecs int `env:"POLL_INTERVAL_SECONDS" envDefault:"10"`
	// ReconcileSchedule is the cron descriptor for the drift check
	ReconcileSchedule string `env:"RECONCILE_SCHEDULE" envDefault:"@every 1h"`
}

// PollInterval returns the tick sleep as a Duration
func (e *ETLConfig) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalSecs) * time.Second
}

// ServerConfig holds the read API HTTP settings
type ServerConfig struct {
	Port            int           `env:"SERVER_PORT" envDefault:"8080"`
	Address         string        `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// MetricsConfig holds the Prometheus endpoint settings; port 0 disables it
type MetricsConfig struct {
	Port int `env:"METRICS_PORT" envDefault:"0"`
}

// Enabled returns true when the metrics endpoint should be served
func (m *MetricsConfig) Enabled() bool {
	return m.Port > 0
}

// NewConfig loads configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("db_host", cfg.Database.Host),
		slog.String("es_url", cfg.Elastic.URL()),
		slog.String("movies_index", cfg.Elastic.MoviesIndex),
	)

	return cfg, nil
}
