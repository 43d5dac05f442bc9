package models

import (
	"time"
)

// WeekState represents the generation lifecycle of one (user, week) pair
type WeekState string

const (
	WeekStatePending    WeekState = "pending"
	WeekStateGenerating WeekState = "generating"
	WeekStateGenerated  WeekState = "generated"
	WeekStateError      WeekState = "error"
)

// WeekStatus is the per-week status surface exposed to callers. The
// constructors below are the only way handlers build one, so a "generated"
// status always carries its timestamp and an "error" status its message.
type WeekStatus struct {
	WeekNumber  int        `json:"week_number"`
	State       WeekState  `json:"state"`
	Message     string     `json:"message,omitempty"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
}

// PendingStatus returns a pending status for a week.
func PendingStatus(week int) WeekStatus {
	return WeekStatus{WeekNumber: week, State: WeekStatePending}
}

// GeneratingStatus returns a generating status for a week.
func GeneratingStatus(week int) WeekStatus {
	return WeekStatus{WeekNumber: week, State: WeekStateGenerating}
}

// GeneratedStatus returns a generated status with its completion time.
func GeneratedStatus(week int, at time.Time) WeekStatus {
	return WeekStatus{WeekNumber: week, State: WeekStateGenerated, GeneratedAt: &at}
}

// ErrorStatus returns an error status carrying the failure message.
func ErrorStatus(week int, message string) WeekStatus {
	return WeekStatus{WeekNumber: week, State: WeekStateError, Message: message}
}

// Terminal reports whether the state accepts no further transitions other
// than an explicit retry (error) or regeneration (generated).
func (s WeekStatus) Terminal() bool {
	return s.State == WeekStateGenerated || s.State == WeekStateError
}

// PlanSkeleton is the lightweight all-weeks view without day content,
// used for fast initial render.
type PlanSkeleton struct {
	TotalWeeks int          `json:"total_weeks"`
	Weeks      []WeekStatus `json:"weeks"`
}
