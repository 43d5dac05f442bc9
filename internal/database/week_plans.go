package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fitforge/fitforge/internal/models"
	"github.com/google/uuid"
)

// ErrWeekNotFound is returned when no active week plan exists.
var ErrWeekNotFound = fmt.Errorf("week plan not found: %w", sql.ErrNoRows)

// WeekPlanRepository handles week plan persistence
type WeekPlanRepository struct {
	db *DB
}

// NewWeekPlanRepository creates a new week plan repository
func NewWeekPlanRepository(db *DB) *WeekPlanRepository {
	return &WeekPlanRepository{db: db}
}

// SaveWeek writes a validated week plan and its linked day-level entities in
// one transaction: upsert the week row (idempotent on (user, week) for the
// active plan), replace workout and meal rows, and for week 1 only snapshot
// the user's profile. All-or-nothing: a failure rolls everything back.
func (r *WeekPlanRepository) SaveWeek(ctx context.Context, plan *models.WeekPlan, snapshot *models.PlanningContext) error {
	payload, err := json.Marshal(plan.Days)
	if err != nil {
		return fmt.Errorf("failed to marshal week days: %w", err)
	}
	statsJSON, err := json.Marshal(plan.WeeklyStats)
	if err != nil {
		return fmt.Errorf("failed to marshal weekly stats: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			_ = rbErr
		}
	}()

	now := time.Now()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO week_plans (id, user_id, week_number, start_date, end_date, phase, source, active, days, weekly_stats, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $9, $10)
		ON CONFLICT (user_id, week_number) WHERE active DO UPDATE SET
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			phase = EXCLUDED.phase,
			source = EXCLUDED.source,
			days = EXCLUDED.days,
			weekly_stats = EXCLUDED.weekly_stats
		RETURNING id, created_at
	`,
		plan.ID, plan.UserID, plan.WeekNumber, plan.StartDate, plan.EndDate,
		plan.Phase, plan.Source, payload, statsJSON, now,
	).Scan(&plan.ID, &plan.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert week plan: %w", err)
	}

	// Replace linked day-level rows so re-saves stay idempotent
	if _, err := tx.ExecContext(ctx, `DELETE FROM workouts WHERE week_plan_id = $1`, plan.ID); err != nil {
		return fmt.Errorf("failed to clear workouts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM meals WHERE week_plan_id = $1`, plan.ID); err != nil {
		return fmt.Errorf("failed to clear meals: %w", err)
	}

	for _, day := range plan.Days {
		if day.Workout != nil {
			exercisesJSON, err := json.Marshal(day.Workout.Exercises)
			if err != nil {
				return fmt.Errorf("failed to marshal exercises: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO workouts (id, week_plan_id, day_date, focus, duration_minutes, exercises)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, uuid.New(), plan.ID, day.Date, day.Workout.Focus, day.Workout.DurationMinutes, exercisesJSON)
			if err != nil {
				return fmt.Errorf("failed to insert workout: %w", err)
			}
		}
		for _, meal := range day.Nutrition.Meals {
			ingredientsJSON, err := json.Marshal(meal.Ingredients)
			if err != nil {
				return fmt.Errorf("failed to marshal ingredients: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO meals (id, week_plan_id, day_date, slot, name, calories, ingredients)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, uuid.New(), plan.ID, day.Date, meal.Slot, meal.Name, meal.Calories, ingredientsJSON)
			if err != nil {
				return fmt.Errorf("failed to insert meal: %w", err)
			}
		}
	}

	if plan.WeekNumber == 1 && snapshot != nil {
		if err := upsertProfileTx(ctx, tx, snapshot); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit week plan: %w", err)
	}
	return nil
}

// GetWeek retrieves a user's active plan for one week.
func (r *WeekPlanRepository) GetWeek(ctx context.Context, userID uuid.UUID, weekNumber int) (*models.WeekPlan, error) {
	plan := &models.WeekPlan{}
	var daysJSON, statsJSON []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, week_number, start_date, end_date, phase, source, active, days, weekly_stats, created_at
		FROM week_plans
		WHERE user_id = $1 AND week_number = $2 AND active
	`, userID, weekNumber).Scan(
		&plan.ID, &plan.UserID, &plan.WeekNumber, &plan.StartDate, &plan.EndDate,
		&plan.Phase, &plan.Source, &plan.Active, &daysJSON, &statsJSON, &plan.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrWeekNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get week plan: %w", err)
	}

	if err := json.Unmarshal(daysJSON, &plan.Days); err != nil {
		return nil, fmt.Errorf("failed to unmarshal week days: %w", err)
	}
	if err := json.Unmarshal(statsJSON, &plan.WeeklyStats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal weekly stats: %w", err)
	}
	return plan, nil
}

// ArchivePlan deactivates every active week for a user. Regeneration
// archives rather than deletes so history is preserved.
func (r *WeekPlanRepository) ArchivePlan(ctx context.Context, userID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE week_plans SET active = FALSE WHERE user_id = $1 AND active
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to archive plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count archived weeks: %w", err)
	}
	return n, nil
}
