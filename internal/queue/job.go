package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of background job
type JobType string

const (
	// JobTypeGenerateWeek generates one week of a user's plan
	JobTypeGenerateWeek JobType = "generate_week"
	// JobTypeRegeneratePlan archives and fully regenerates a user's plan
	JobTypeRegeneratePlan JobType = "regenerate_plan"
)

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID      `json:"id"`
	Type       JobType        `json:"type"`
	UserID     uuid.UUID      `json:"user_id"`
	WeekNumber int            `json:"week_number,omitempty"`
	NotBefore  *time.Time     `json:"not_before,omitempty"` // Earliest time to process (nil = immediate)
	NotAfter   *time.Time     `json:"not_after,omitempty"`  // Latest time to process (nil = no expiration)
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
}

// NewJob creates a new job
func NewJob(jobType JobType, userID uuid.UUID, weekNumber int) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		UserID:     userID,
		WeekNumber: weekNumber,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: 3,
	}
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}
	return true
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}
	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}
