// Package logger provides the shared slog setup and the structured
// attribute helpers used across the codebase.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"
)

// Module provides the application logger to the fx graph.
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
)

// NewLogger builds the process-wide logger. The level comes from LOG_LEVEL
// (case-insensitive, defaults to debug); GO_ENV=production switches to the
// JSON handler so log collectors get structured output.
func NewLogger() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if os.Getenv("GO_ENV") == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Scope tags a logger with the component it belongs to, e.g.
// log.With(logger.Scope("etl.loader")).
func Scope(scope string) slog.Attr {
	return slog.String("scope", scope)
}

// Error wraps an error for structured logging.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}
