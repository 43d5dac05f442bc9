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

// ProfileRepository stores the per-user planning context snapshot. The
// snapshot is written only on week-1 persistence of a new plan; later weeks
// read it back for background generation.
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Get retrieves a user's current planning context snapshot.
func (r *ProfileRepository) Get(ctx context.Context, userID uuid.UUID) (*models.PlanningContext, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT context FROM profiles WHERE user_id = $1
	`, userID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var pctx models.PlanningContext
	if err := json.Unmarshal(payload, &pctx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile context: %w", err)
	}
	return &pctx, nil
}

// Upsert writes the snapshot outside any surrounding transaction.
func (r *ProfileRepository) Upsert(ctx context.Context, pctx *models.PlanningContext) error {
	return upsertProfile(ctx, r.db.DB, pctx)
}

// upsertProfileTx writes the snapshot inside the week-1 save transaction.
func upsertProfileTx(ctx context.Context, tx *sql.Tx, pctx *models.PlanningContext) error {
	return upsertProfile(ctx, tx, pctx)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertProfile(ctx context.Context, ex execer, pctx *models.PlanningContext) error {
	payload, err := json.Marshal(pctx)
	if err != nil {
		return fmt.Errorf("failed to marshal profile context: %w", err)
	}
	now := time.Now()
	_, err = ex.ExecContext(ctx, `
		INSERT INTO profiles (user_id, goal, context, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			goal = EXCLUDED.goal,
			context = EXCLUDED.context,
			updated_at = EXCLUDED.updated_at
	`, pctx.UserID, pctx.Goal, payload, now)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}
