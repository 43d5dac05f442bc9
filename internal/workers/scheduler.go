package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/fitforge/fitforge/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultInterWeekDelay spaces one user's background week jobs so they run
// sequentially rather than racing each other for the same context.
const DefaultInterWeekDelay = 30 * time.Second

// Scheduler enqueues background week-generation jobs with staggered
// NotBefore times.
type Scheduler struct {
	jobQueue       queue.JobQueue
	interWeekDelay time.Duration
	logger         *zap.Logger
}

// NewScheduler creates a scheduler. A non-positive delay falls back to the
// default.
func NewScheduler(jobQueue queue.JobQueue, interWeekDelay time.Duration, logger *zap.Logger) *Scheduler {
	if interWeekDelay <= 0 {
		interWeekDelay = DefaultInterWeekDelay
	}
	return &Scheduler{
		jobQueue:       jobQueue,
		interWeekDelay: interWeekDelay,
		logger:         logger,
	}
}

// ScheduleWeeks enqueues generate_week jobs for weeks from..to inclusive.
// Week k is held back (k - from + 1) delay steps so the queue delivers the
// user's weeks in order.
func (s *Scheduler) ScheduleWeeks(ctx context.Context, userID uuid.UUID, from, to int) error {
	if from < 1 {
		from = 1
	}
	scheduled := 0
	for week := from; week <= to; week++ {
		job := queue.NewJob(queue.JobTypeGenerateWeek, userID, week)
		notBefore := time.Now().Add(time.Duration(week-from+1) * s.interWeekDelay)
		job.NotBefore = &notBefore

		if err := s.jobQueue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("failed to enqueue week %d: %w", week, err)
		}
		scheduled++
	}

	if scheduled > 0 {
		s.logger.Info("background_weeks_scheduled",
			zap.String("user_id", userID.String()),
			zap.Int("from_week", from),
			zap.Int("to_week", to),
			zap.Duration("inter_week_delay", s.interWeekDelay),
		)
	}
	return nil
}

// RequeueWeek enqueues a single week immediately, used by the reconciler
// and the admin CLI.
func (s *Scheduler) RequeueWeek(ctx context.Context, userID uuid.UUID, week int) error {
	job := queue.NewJob(queue.JobTypeGenerateWeek, userID, week)
	return s.jobQueue.Enqueue(ctx, job)
}
