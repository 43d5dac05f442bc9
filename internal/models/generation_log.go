package models

import (
	"time"

	"github.com/google/uuid"
)

// GenerationLog is an append-only audit record of one generation attempt.
type GenerationLog struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	WeekNumber   int        `json:"week_number"`
	Source       PlanSource `json:"source"`
	Model        string     `json:"model,omitempty"`
	Similarity   float64    `json:"similarity,omitempty"`
	Adaptations  int        `json:"adaptations,omitempty"`
	CostUSD      float64    `json:"cost_usd"`
	InputTokens  int64      `json:"input_tokens"`
	OutputTokens int64      `json:"output_tokens"`
	DurationMs   int64      `json:"duration_ms"`
	Success      bool       `json:"success"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
