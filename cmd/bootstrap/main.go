// Package main provides the bootstrap tool that prepares the source
// database: it applies the content schema migrations the sync daemon
// expects to find in place.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/kinohub/moviesearch/internal/config"
	"github.com/kinohub/moviesearch/internal/migrate"
	"github.com/kinohub/moviesearch/pkg/logger"
)

func main() {
	timeout := flag.Duration("timeout", time.Minute, "Abort migrations running longer than this")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	log := logger.NewLogger()

	cfg, err := config.NewConfig(log)
	if err != nil {
		log.Error("failed to load config", logger.Error(err))
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		log.Error("failed to open database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch command {
	case "up":
		err = migrate.Up(ctx, db)
		if err == nil {
			log.Info("migrations applied")
		}
	case "status":
		err = migrate.Status(ctx, db)
	case "version":
		var version int64
		version, err = migrate.Version(ctx, db)
		if err == nil {
			log.Info("schema version", slog.Int64("version", version))
		}
	default:
		fmt.Println("Usage: bootstrap [-timeout 1m] <up|status|version>")
		fmt.Println("\nCommands:")
		fmt.Println("  up       apply all pending migrations (default)")
		fmt.Println("  status   print the state of every known migration")
		fmt.Println("  version  print the current schema version")
		os.Exit(1)
	}

	if err != nil {
		log.Error("bootstrap failed", slog.String("command", command), logger.Error(err))
		os.Exit(1)
	}
}
