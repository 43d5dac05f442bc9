package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fitforge/fitforge/internal/models"
	"github.com/google/uuid"
)

// ErrWeekConflict signals that a generation claim was rejected because the
// week is already generating or generated. Duplicate requests surface this
// synchronously; they are never queued.
var ErrWeekConflict = errors.New("week generation already in progress or complete")

// WeekStatusRepository drives the per-(user, week) state machine. Transitions
// are conditional UPDATEs so exactly one pipeline invocation can hold a claim.
type WeekStatusRepository struct {
	db *DB
}

// NewWeekStatusRepository creates a new week status repository
func NewWeekStatusRepository(db *DB) *WeekStatusRepository {
	return &WeekStatusRepository{db: db}
}

// EnsurePlaceholders creates pending rows for weeks 1..totalWeeks that do not
// exist yet. Existing rows keep their current state.
func (r *WeekStatusRepository) EnsurePlaceholders(ctx context.Context, userID uuid.UUID, totalWeeks int) error {
	now := time.Now()
	for week := 1; week <= totalWeeks; week++ {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO week_generation_status (user_id, week_number, status, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, week_number) DO NOTHING
		`, userID, week, models.WeekStatePending, now)
		if err != nil {
			return fmt.Errorf("failed to create status placeholder for week %d: %w", week, err)
		}
	}
	return nil
}

// Reset forces every week back to pending. Used by regeneration after the
// previous plan is archived.
func (r *WeekStatusRepository) Reset(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE week_generation_status
		SET status = $2, message = NULL, generated_at = NULL, updated_at = $3
		WHERE user_id = $1
	`, userID, models.WeekStatePending, time.Now())
	if err != nil {
		return fmt.Errorf("failed to reset week statuses: %w", err)
	}
	return nil
}

// Claim transitions a week from pending or error to generating. A week
// already generating or generated rejects the claim with ErrWeekConflict.
func (r *WeekStatusRepository) Claim(ctx context.Context, userID uuid.UUID, weekNumber int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE week_generation_status
		SET status = $3, message = NULL, updated_at = $4
		WHERE user_id = $1 AND week_number = $2 AND status IN ($5, $6)
	`, userID, weekNumber, models.WeekStateGenerating, time.Now(),
		models.WeekStatePending, models.WeekStateError)
	if err != nil {
		return fmt.Errorf("failed to claim week %d: %w", weekNumber, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to inspect claim result: %w", err)
	}
	if n == 0 {
		var state string
		err := r.db.QueryRowContext(ctx, `
			SELECT status FROM week_generation_status WHERE user_id = $1 AND week_number = $2
		`, userID, weekNumber).Scan(&state)
		if err == sql.ErrNoRows {
			return ErrWeekNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read week status: %w", err)
		}
		return fmt.Errorf("week %d is %s: %w", weekNumber, state, ErrWeekConflict)
	}
	return nil
}

// MarkGenerated moves a claimed week to its generated terminal state.
func (r *WeekStatusRepository) MarkGenerated(ctx context.Context, userID uuid.UUID, weekNumber int) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		UPDATE week_generation_status
		SET status = $3, message = NULL, generated_at = $4, updated_at = $4
		WHERE user_id = $1 AND week_number = $2
	`, userID, weekNumber, models.WeekStateGenerated, now)
	if err != nil {
		return fmt.Errorf("failed to mark week %d generated: %w", weekNumber, err)
	}
	return nil
}

// MarkError moves a week to its retriable error state with the failure
// message attached.
func (r *WeekStatusRepository) MarkError(ctx context.Context, userID uuid.UUID, weekNumber int, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE week_generation_status
		SET status = $3, message = $4, updated_at = $5
		WHERE user_id = $1 AND week_number = $2
	`, userID, weekNumber, models.WeekStateError, message, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark week %d errored: %w", weekNumber, err)
	}
	return nil
}

// List returns every week's status for a user, ordered by week number. This
// backs the skeleton view.
func (r *WeekStatusRepository) List(ctx context.Context, userID uuid.UUID) ([]models.WeekStatus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT week_number, status, message, generated_at
		FROM week_generation_status
		WHERE user_id = $1
		ORDER BY week_number
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list week statuses: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			_ = closeErr
		}
	}()

	var statuses []models.WeekStatus
	for rows.Next() {
		var (
			week        int
			state       string
			message     sql.NullString
			generatedAt sql.NullTime
		)
		if err := rows.Scan(&week, &state, &message, &generatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan week status: %w", err)
		}
		switch models.WeekState(state) {
		case models.WeekStateGenerated:
			statuses = append(statuses, models.GeneratedStatus(week, generatedAt.Time))
		case models.WeekStateError:
			statuses = append(statuses, models.ErrorStatus(week, message.String))
		case models.WeekStateGenerating:
			statuses = append(statuses, models.GeneratingStatus(week))
		default:
			statuses = append(statuses, models.PendingStatus(week))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate week statuses: %w", err)
	}
	return statuses, nil
}

// StaleWeek identifies a week stuck in generating past the claim timeout.
type StaleWeek struct {
	UserID     uuid.UUID
	WeekNumber int
}

// ReleaseStale moves weeks stuck in generating longer than maxAge back to
// error so the reconciler can requeue them. A process crash mid-generation
// otherwise orphans the claim forever.
func (r *WeekStatusRepository) ReleaseStale(ctx context.Context, maxAge time.Duration) ([]StaleWeek, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE week_generation_status
		SET status = $1, message = 'generation timed out', updated_at = $2
		WHERE status = $3 AND updated_at < $4
		RETURNING user_id, week_number
	`, models.WeekStateError, time.Now(), models.WeekStateGenerating, time.Now().Add(-maxAge))
	if err != nil {
		return nil, fmt.Errorf("failed to release stale weeks: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			_ = closeErr
		}
	}()

	var stale []StaleWeek
	for rows.Next() {
		var s StaleWeek
		if err := rows.Scan(&s.UserID, &s.WeekNumber); err != nil {
			return nil, fmt.Errorf("failed to scan stale week: %w", err)
		}
		stale = append(stale, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stale weeks: %w", err)
	}
	return stale, nil
}
