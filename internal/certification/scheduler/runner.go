package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"certflow/internal/certification/ports"
)

// Runner triggers a sweep on every tick until its context is cancelled.
type Runner struct {
	scheduler *Scheduler
	interval  time.Duration
	clock     ports.Clock
	logger    *slog.Logger
}

func NewRunner(scheduler *Scheduler, interval time.Duration, clock ports.Clock, logger *slog.Logger) *Runner {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{scheduler: scheduler, interval: interval, clock: clock, logger: logger}
}

// Run blocks until ctx is done. A tick that lands while another sweep, for
// example one triggered over HTTP, is still running is skipped.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "sweep runner started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "sweep runner stopped")
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	report, err := r.scheduler.RunSweep(ctx, r.clock())
	switch {
	case errors.Is(err, ErrSweepInProgress):
		r.logger.WarnContext(ctx, "skipping tick, previous sweep still running")
	case err != nil:
		r.logger.ErrorContext(ctx, "sweep failed", "error", err)
	case report.Failures() > 0:
		r.logger.WarnContext(ctx, "sweep finished with failures",
			"sweep_id", report.SweepID,
			"failures", report.Failures(),
		)
	}
}
