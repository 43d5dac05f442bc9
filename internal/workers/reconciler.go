package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/fitforge/fitforge/internal/database"
	"go.uber.org/zap"
)

// StaleReleaser is the slice of the status repository the reconciler uses.
type StaleReleaser interface {
	ReleaseStale(ctx context.Context, maxAge time.Duration) ([]database.StaleWeek, error)
}

// Reconciler sweeps weeks stuck in generating past the claim timeout,
// marks them failed and requeues them. A worker crash mid-generation
// otherwise leaves the week claimed forever.
type Reconciler struct {
	statusRepo StaleReleaser
	scheduler  *Scheduler
	interval   time.Duration
	maxAge     time.Duration
	logger     *zap.Logger
}

// NewReconciler creates a reconciler that sweeps every interval and releases
// claims older than maxAge.
func NewReconciler(statusRepo StaleReleaser, scheduler *Scheduler, interval, maxAge time.Duration, logger *zap.Logger) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}
	return &Reconciler{
		statusRepo: statusRepo,
		scheduler:  scheduler,
		interval:   interval,
		maxAge:     maxAge,
		logger:     logger,
	}
}

// Start runs the sweep loop until the context is cancelled
func (r *Reconciler) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.sweep(ctx); err != nil {
				r.logger.Error("stale_week_sweep_failed", zap.Error(err))
			}
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) error {
	stale, err := r.statusRepo.ReleaseStale(ctx, r.maxAge)
	if err != nil {
		return fmt.Errorf("failed to release stale weeks: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	requeued := 0
	for _, s := range stale {
		if r.scheduler == nil {
			continue
		}
		if err := r.scheduler.RequeueWeek(ctx, s.UserID, s.WeekNumber); err != nil {
			r.logger.Error("failed_to_requeue_stale_week",
				zap.String("user_id", s.UserID.String()),
				zap.Int("week", s.WeekNumber),
				zap.Error(err),
			)
			continue
		}
		requeued++
	}

	r.logger.Warn("stale_weeks_released",
		zap.Int("released", len(stale)),
		zap.Int("requeued", requeued),
		zap.Duration("max_age", r.maxAge),
	)
	return nil
}
