package models

import (
	"fmt"
	"strings"
	"time"
)

// SemanticFingerprint is the coarse bucketed cache key derived from a
// PlanningContext. Identical contexts always yield identical fingerprints.
type SemanticFingerprint struct {
	AgeBand      string   `json:"age_band"`
	WeightBin    int      `json:"weight_bin"`
	Goal         Goal     `json:"goal"`
	Diet         DietType `json:"diet"`
	DaysPerWeek  int      `json:"days_per_week"`
	TimelineBand string   `json:"timeline_band"`
}

// Key renders the fingerprint as a stable string usable as a cache key.
func (f SemanticFingerprint) Key() string {
	return strings.Join([]string{
		string(f.Goal),
		string(f.Diet),
		fmt.Sprintf("d%d", f.DaysPerWeek),
		f.AgeBand,
		fmt.Sprintf("w%d", f.WeightBin),
		f.TimelineBand,
	}, ":")
}

// CachedPlanRecord is a previously generated plan held for reuse, together
// with its originating context and access/cost metadata.
type CachedPlanRecord struct {
	Fingerprint SemanticFingerprint `json:"fingerprint"`
	Context     PlanningContext     `json:"context"`
	Plan        WeekPlan            `json:"plan"`
	Source      PlanSource          `json:"source"`
	AccessCount int64               `json:"access_count"`
	CostUSD     float64             `json:"cost_usd"`
	CreatedAt   time.Time           `json:"created_at"`
	LastUsedAt  time.Time           `json:"last_used_at"`
}

// Exclusions returns the set of allergens/intolerances the cached plan was
// generated to avoid. Adaptation safety checks compare against this set.
func (r *CachedPlanRecord) Exclusions() map[string]bool {
	out := make(map[string]bool)
	for _, a := range r.Context.Nutrition.Allergies {
		out[strings.ToLower(strings.TrimSpace(a))] = true
	}
	for _, i := range r.Context.Nutrition.Intolerances {
		out[strings.ToLower(strings.TrimSpace(i))] = true
	}
	return out
}
