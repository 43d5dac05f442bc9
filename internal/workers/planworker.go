package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitforge/fitforge/internal/database"
	"github.com/fitforge/fitforge/internal/models"
	"github.com/fitforge/fitforge/internal/orchestrator"
	"github.com/fitforge/fitforge/internal/queue"
	"github.com/fitforge/fitforge/internal/services/ai"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WeekOrchestrator is the slice of the orchestrator the worker uses.
type WeekOrchestrator interface {
	GenerateWeek(ctx context.Context, pctx *models.PlanningContext, weekNumber int, strategy ai.Strategy) (*orchestrator.Decision, error)
}

// PlanWorker processes week-generation jobs from the queue. One job is one
// (user, week) pair; the orchestrator's claim makes duplicate deliveries
// harmless.
type PlanWorker struct {
	orch        WeekOrchestrator
	profileRepo database.ProfileRepositoryInterface
	statusRepo  database.WeekStatusRepositoryInterface
	weekRepo    database.WeekPlanRepositoryInterface
	jobQueue    queue.JobQueue // for re-enqueueing jobs with delays
	scheduler   *Scheduler
	logger      *zap.Logger
}

// NewPlanWorker creates a new plan worker
func NewPlanWorker(
	orch WeekOrchestrator,
	profileRepo database.ProfileRepositoryInterface,
	statusRepo database.WeekStatusRepositoryInterface,
	weekRepo database.WeekPlanRepositoryInterface,
	jobQueue queue.JobQueue,
	scheduler *Scheduler,
	logger *zap.Logger,
) *PlanWorker {
	return &PlanWorker{
		orch:        orch,
		profileRepo: profileRepo,
		statusRepo:  statusRepo,
		weekRepo:    weekRepo,
		jobQueue:    jobQueue,
		scheduler:   scheduler,
		logger:      logger,
	}
}

// ProcessJob processes a job based on its type
func (w *PlanWorker) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	if !job.ShouldProcess() {
		// Delayed exchange missing or clock skew; requeue until ready
		if nackErr := msg.Nack(true); nackErr != nil {
			w.logger.Error("failed_to_requeue_early_job", zap.Error(nackErr))
		}
		return nil
	}

	switch job.Type {
	case queue.JobTypeGenerateWeek:
		if err := w.processGenerateWeek(ctx, job); err != nil {
			return w.handleJobError(ctx, msg, job, err)
		}
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil

	case queue.JobTypeRegeneratePlan:
		if err := w.processRegeneratePlan(ctx, job); err != nil {
			return w.handleJobError(ctx, msg, job, err)
		}
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack regeneration job: %w", ackErr)
		}
		return nil

	default:
		if nackErr := msg.Nack(false); nackErr != nil {
			w.logger.Error("failed_to_nack_unknown_job", zap.Error(nackErr))
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// processGenerateWeek generates one background week from the user's stored
// planning context snapshot.
func (w *PlanWorker) processGenerateWeek(ctx context.Context, job *queue.Job) error {
	if job.WeekNumber < 1 {
		return fmt.Errorf("week_number is required for generate_week job")
	}

	pctx, err := w.profileRepo.Get(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("failed to load planning context: %w", err)
	}

	decision, err := w.orch.GenerateWeek(ctx, pctx, job.WeekNumber, ai.StrategyChunked)
	if err != nil {
		if errors.Is(err, database.ErrWeekConflict) {
			// Another worker already owns or finished this week
			w.logger.Info("week_already_claimed",
				zap.String("user_id", job.UserID.String()),
				zap.Int("week", job.WeekNumber),
			)
			return nil
		}
		return err
	}

	w.logger.Info("background_week_generated",
		zap.String("user_id", job.UserID.String()),
		zap.Int("week", job.WeekNumber),
		zap.String("source", string(decision.Source)),
		zap.Float64("cost_usd", decision.CostUSD),
	)
	return nil
}

// processRegeneratePlan archives the active plan and rebuilds every week.
// Week 1 runs inline with the whole-week strategy; the rest go back through
// the scheduler.
func (w *PlanWorker) processRegeneratePlan(ctx context.Context, job *queue.Job) error {
	pctx, err := w.profileRepo.Get(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("failed to load planning context: %w", err)
	}

	archived, err := w.weekRepo.ArchivePlan(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("failed to archive plan: %w", err)
	}
	if err := w.statusRepo.Reset(ctx, job.UserID); err != nil {
		return fmt.Errorf("failed to reset week statuses: %w", err)
	}
	totalWeeks := pctx.Planning.TotalWeeks
	if err := w.statusRepo.EnsurePlaceholders(ctx, job.UserID, totalWeeks); err != nil {
		return fmt.Errorf("failed to create week placeholders: %w", err)
	}

	w.logger.Info("plan_regeneration_started",
		zap.String("user_id", job.UserID.String()),
		zap.Int64("archived_weeks", archived),
		zap.Int("total_weeks", totalWeeks),
	)

	if _, err := w.orch.GenerateWeek(ctx, pctx, 1, ai.StrategyWholeWeek); err != nil {
		if !errors.Is(err, database.ErrWeekConflict) {
			return fmt.Errorf("failed to regenerate week 1: %w", err)
		}
	}

	if w.scheduler != nil {
		if err := w.scheduler.ScheduleWeeks(ctx, job.UserID, 2, totalWeeks); err != nil {
			return fmt.Errorf("failed to schedule remaining weeks: %w", err)
		}
	}
	return nil
}

// handleJobError applies retry policy: quota and rate limits go back to the
// queue with a NotBefore delay, structural data errors and exhausted retries
// go to the DLQ.
func (w *PlanWorker) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	if ai.IsDataError(err) {
		// The upstream returned garbage; retrying the same prompt on the
		// same models already happened inside the pipeline
		w.logger.Error("job_failed_data_error",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		if nackErr := msg.Nack(false); nackErr != nil {
			w.logger.Error("failed_to_nack_job", zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (invalid response data): %w", err)
	}

	if ai.IsQuotaError(err) || errors.Is(err, orchestrator.ErrBudgetExhausted) || ai.IsTransientUpstream(err) {
		retryDelay := ai.GetRetryDelay(err, job.RetryCount)
		if errors.Is(err, orchestrator.ErrBudgetExhausted) {
			retryDelay = time.Hour
		}

		if job.CanRetry() && w.jobQueue != nil {
			notBefore := time.Now().Add(retryDelay)
			delayedJob := &queue.Job{
				ID:         job.ID,
				Type:       job.Type,
				UserID:     job.UserID,
				WeekNumber: job.WeekNumber,
				NotBefore:  &notBefore,
				NotAfter:   job.NotAfter,
				Metadata:   job.Metadata,
				CreatedAt:  job.CreatedAt,
				RetryCount: job.RetryCount + 1,
				MaxRetries: job.MaxRetries,
			}

			// Enqueue before Ack so a broker failure here leaves the
			// original delivery requeueable instead of lost
			if enqueueErr := w.jobQueue.Enqueue(ctx, delayedJob); enqueueErr != nil {
				if nackErr := msg.Nack(true); nackErr != nil {
					w.logger.Error("failed_to_nack_job", zap.Error(nackErr))
				}
				return fmt.Errorf("failed to re-enqueue delayed job: %w", enqueueErr)
			}
			if ackErr := msg.Ack(); ackErr != nil {
				w.logger.Error("failed_to_ack_after_reenqueue", zap.Error(ackErr))
			}

			w.logger.Warn("job_reenqueued_with_delay",
				zap.String("job_id", job.ID.String()),
				zap.Int("week", job.WeekNumber),
				zap.Duration("delay", retryDelay),
				zap.Int("retry", job.RetryCount+1),
				zap.Error(err),
			)
			return nil
		}
	}

	if job.CanRetry() {
		job.IncrementRetry()
		w.logger.Warn("job_failed_will_retry",
			zap.String("job_id", job.ID.String()),
			zap.Int("attempt", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Error(err),
		)
		if nackErr := msg.Nack(true); nackErr != nil {
			w.logger.Error("failed_to_nack_job", zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (will retry): %w", err)
	}

	w.logger.Error("job_failed_max_retries",
		zap.String("job_id", job.ID.String()),
		zap.Int("max_retries", job.MaxRetries),
		zap.Error(err),
	)
	if nackErr := msg.Nack(false); nackErr != nil {
		w.logger.Error("failed_to_nack_job_to_dlq", zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (max retries): %w", err)
}

// EnqueueRegeneration is a convenience used by handlers to request a full
// plan rebuild for a user.
func EnqueueRegeneration(ctx context.Context, q queue.JobQueue, userID uuid.UUID) error {
	job := queue.NewJob(queue.JobTypeRegeneratePlan, userID, 0)
	return q.Enqueue(ctx, job)
}
