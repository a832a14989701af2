package scheduler

import (
	"context"
	"log/slog"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/kinohub/moviesearch/internal/config"
)

// Module provides scheduled task functionality
var Module = fx.Module("scheduler",
	fx.Provide(
		NewScheduler,
	),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

// TaskParams contains dependencies for creating scheduled tasks
type TaskParams struct {
	fx.In
	Scheduler *Scheduler
	DB        *bun.DB
	ES        *elasticsearch.Client
	Log       *slog.Logger
	Cfg       *config.Config
}

// RegisterTasks registers all scheduled tasks. An empty RECONCILE_SCHEDULE
// disables the reconcile pass entirely.
func RegisterTasks(p TaskParams) error {
	schedule := p.Cfg.ETL.ReconcileSchedule
	if schedule == "" {
		p.Log.Info("reconcile disabled, skipping task registration")
		return nil
	}

	task := NewReconcileTask(p.DB, p.ES, p.Cfg, p.Log)
	if err := p.Scheduler.AddCronTask("index_reconcile", schedule, task.Run); err != nil {
		// A malformed schedule is a configuration typo; fail startup rather
		// than run without drift detection.
		return err
	}

	p.Log.Info("registered scheduled tasks",
		slog.Any("tasks", p.Scheduler.ListTasks()))

	return nil
}

// RegisterSchedulerLifecycle registers the scheduler with fx lifecycle
func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler, cfg *config.Config) {
	if cfg.ETL.ReconcileSchedule == "" {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
