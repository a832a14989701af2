package etl

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/kinohub/moviesearch/internal/config"
)

// Module provides the incremental sync pipeline: state store, source reader,
// sink loader, coordinator and the worker loop that drives them.
var Module = fx.Module("etl",
	fx.Provide(
		fx.Annotate(NewStateFromConfig, fx.As(new(Watermarks))),
		NewJournalFromConfig,
		fx.Annotate(NewPgSource, fx.As(new(SourceOpener))),
		fx.Annotate(NewLoader, fx.As(new(Sink))),
		NewCoordinator,
		NewWorker,
	),
	fx.Invoke(
		RegisterWorkerLifecycle,
	),
)

// NewStateFromConfig loads the watermark store from the configured path.
func NewStateFromConfig(cfg *config.Config, log *slog.Logger) (*State, error) {
	return NewState(cfg.ETL.StateFile, log)
}

// NewJournalFromConfig creates the dead letter journal at the configured path.
func NewJournalFromConfig(cfg *config.Config, log *slog.Logger) *DeadLetterJournal {
	return NewDeadLetterJournal(cfg.ETL.DeadLetterFile, log)
}

// RegisterWorkerLifecycle ties the worker loop to the application lifecycle.
func RegisterWorkerLifecycle(lc fx.Lifecycle, worker *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return worker.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return worker.Stop(ctx)
		},
	})
}
