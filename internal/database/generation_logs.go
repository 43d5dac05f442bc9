package database

import (
	"context"
	"fmt"
	"time"

	"github.com/fitforge/fitforge/internal/models"
	"github.com/google/uuid"
)

// GenerationLogRepository appends generation attempt audit records.
type GenerationLogRepository struct {
	db *DB
}

// NewGenerationLogRepository creates a new generation log repository
func NewGenerationLogRepository(db *DB) *GenerationLogRepository {
	return &GenerationLogRepository{db: db}
}

// Append writes one audit record. The table is append-only; rows are never
// updated or deleted.
func (r *GenerationLogRepository) Append(ctx context.Context, log *models.GenerationLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	now := time.Now()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO generation_logs
			(id, user_id, week_number, source, model, similarity, adaptations,
			 cost_usd, input_tokens, output_tokens, duration_ms, success, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`,
		log.ID, log.UserID, log.WeekNumber, log.Source, log.Model, log.Similarity,
		log.Adaptations, log.CostUSD, log.InputTokens, log.OutputTokens,
		log.DurationMs, log.Success, log.Error, now,
	).Scan(&log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append generation log: %w", err)
	}
	return nil
}
