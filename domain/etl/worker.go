package etl

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/kinohub/moviesearch/internal/config"
	"github.com/kinohub/moviesearch/pkg/logger"
)

// TickRunner is what the worker drives once per poll interval.
type TickRunner interface {
	RunTick(ctx context.Context) error
}

// Worker runs the coordinator in an endless tick-sleep loop. A tick that
// failed because the catalogue database was unreachable is logged and retried
// after the normal sleep; any other failure asks the process to exit non-zero
// so the supervisor restarts it from persisted watermarks.
type Worker struct {
	ticks      TickRunner
	shutdowner fx.Shutdowner
	interval   time.Duration
	log        *slog.Logger

	cancel  context.CancelFunc
	stopCh  chan struct{}
	stopped chan struct{}
	running bool
	mu      sync.Mutex
	wg      sync.WaitGroup

	// Metrics
	tickCount   int64
	errorCount  int64
	lastSuccess time.Time
	metricsMu   sync.RWMutex
}

func NewWorker(coordinator *Coordinator, shutdowner fx.Shutdowner, cfg *config.Config, log *slog.Logger) *Worker {
	return &Worker{
		ticks:      coordinator,
		shutdowner: shutdowner,
		interval:   cfg.ETL.PollInterval(),
		log:        log.With(logger.Scope("etl.worker")),
	}
}

// Start begins the tick loop. The first tick runs immediately.
func (w *Worker) Start(context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.stopped = make(chan struct{})

	// The loop outlives the fx start context; it stops via Stop.
	runCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.mu.Unlock()

	w.log.Info("etl worker starting", slog.Duration("poll_interval", w.interval))

	w.wg.Add(1)
	go w.run(runCtx)

	return nil
}

// Stop cancels the in-flight tick and waits for the loop to exit.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	w.cancel()
	w.mu.Unlock()

	w.log.Debug("waiting for etl worker to stop...")

	select {
	case <-w.stopped:
		w.log.Info("etl worker stopped gracefully")
	case <-ctx.Done():
		w.log.Warn("etl worker stop timeout")
	}

	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	defer close(w.stopped)

	for {
		if err := w.tick(ctx); err != nil {
			w.log.Error("tick failed, requesting shutdown", logger.Error(err))
			if shutdownErr := w.shutdowner.Shutdown(fx.ExitCode(1)); shutdownErr != nil {
				w.log.Error("shutdown request failed", logger.Error(shutdownErr))
			}
			return
		}

		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}
	}
}

// tick runs one coordinator pass and decides its fate: nil to keep looping,
// an error to bring the process down.
func (w *Worker) tick(ctx context.Context) error {
	started := time.Now()
	err := w.ticks.RunTick(ctx)
	TickDuration.Observe(time.Since(started).Seconds())
	TicksTotal.Inc()

	if err == nil {
		w.recordSuccess()
		return nil
	}

	TickErrorsTotal.Inc()
	w.recordError()

	// A tick cut short by shutdown is not a failure.
	if ctx.Err() != nil {
		w.log.Debug("tick cancelled", logger.Error(err))
		return nil
	}
	if IsSourceUnavailable(err) {
		w.log.Warn("source unavailable, retrying next tick",
			slog.Duration("retry_in", w.interval),
			logger.Error(err))
		return nil
	}
	return err
}

func (w *Worker) recordSuccess() {
	w.metricsMu.Lock()
	w.tickCount++
	w.lastSuccess = time.Now()
	w.metricsMu.Unlock()
}

func (w *Worker) recordError() {
	w.metricsMu.Lock()
	w.tickCount++
	w.errorCount++
	w.metricsMu.Unlock()
}

// WorkerMetrics is a snapshot of the worker's counters.
type WorkerMetrics struct {
	Ticks       int64     `json:"ticks"`
	Errors      int64     `json:"errors"`
	LastSuccess time.Time `json:"lastSuccess"`
}

// Metrics returns current worker counters.
func (w *Worker) Metrics() WorkerMetrics {
	w.metricsMu.RLock()
	defer w.metricsMu.RUnlock()

	return WorkerMetrics{
		Ticks:       w.tickCount,
		Errors:      w.errorCount,
		LastSuccess: w.lastSuccess,
	}
}

// IsRunning returns whether the worker loop is active.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
