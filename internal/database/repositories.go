package database

import (
	"context"
	"time"

	"github.com/fitforge/fitforge/internal/models"
	"github.com/google/uuid"
)

// WeekPlanRepositoryInterface defines the week plan persistence operations.
// This interface enables better testability by allowing mock implementations.
type WeekPlanRepositoryInterface interface {
	SaveWeek(ctx context.Context, plan *models.WeekPlan, snapshot *models.PlanningContext) error
	GetWeek(ctx context.Context, userID uuid.UUID, weekNumber int) (*models.WeekPlan, error)
	ArchivePlan(ctx context.Context, userID uuid.UUID) (int64, error)
}

// WeekStatusRepositoryInterface defines the week state machine operations.
type WeekStatusRepositoryInterface interface {
	EnsurePlaceholders(ctx context.Context, userID uuid.UUID, totalWeeks int) error
	Reset(ctx context.Context, userID uuid.UUID) error
	Claim(ctx context.Context, userID uuid.UUID, weekNumber int) error
	MarkGenerated(ctx context.Context, userID uuid.UUID, weekNumber int) error
	MarkError(ctx context.Context, userID uuid.UUID, weekNumber int, message string) error
	List(ctx context.Context, userID uuid.UUID) ([]models.WeekStatus, error)
	ReleaseStale(ctx context.Context, maxAge time.Duration) ([]StaleWeek, error)
}

// GenerationLogRepositoryInterface defines the audit log operations.
type GenerationLogRepositoryInterface interface {
	Append(ctx context.Context, log *models.GenerationLog) error
}

// ProfileRepositoryInterface defines the profile snapshot operations.
type ProfileRepositoryInterface interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.PlanningContext, error)
	Upsert(ctx context.Context, pctx *models.PlanningContext) error
}

// Ensure concrete types implement the interfaces
var (
	_ WeekPlanRepositoryInterface      = (*WeekPlanRepository)(nil)
	_ WeekStatusRepositoryInterface    = (*WeekStatusRepository)(nil)
	_ GenerationLogRepositoryInterface = (*GenerationLogRepository)(nil)
	_ ProfileRepositoryInterface       = (*ProfileRepository)(nil)
)
