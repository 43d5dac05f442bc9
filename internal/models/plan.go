package models

import (
	"time"

	"github.com/google/uuid"
)

// PlanSource records how a served week plan was produced
type PlanSource string

const (
	PlanSourceAI           PlanSource = "ai"
	PlanSourceCacheExact   PlanSource = "cache_exact"
	PlanSourceCacheAdapted PlanSource = "cache_adapted"
)

// Ingredient is one component of a meal
type Ingredient struct {
	Name     string  `json:"name"`
	Grams    float64 `json:"grams"`
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	FatG     float64 `json:"fat_g"`
	CarbsG   float64 `json:"carbs_g"`
}

// Meal is one meal within a day. Every meal has at least one ingredient.
type Meal struct {
	Name        string       `json:"name"`
	Slot        string       `json:"slot"`
	Ingredients []Ingredient `json:"ingredients"`
	Calories    float64      `json:"calories"`
	Macros      MacroTargets `json:"macros"`
}

// Exercise is one movement within a workout
type Exercise struct {
	Name     string `json:"name"`
	Sets     int    `json:"sets"`
	Reps     string `json:"reps"`
	RestSecs int    `json:"rest_secs"`
	Notes    string `json:"notes,omitempty"`
}

// Workout is the training content of a training day
type Workout struct {
	Focus           string     `json:"focus"`
	DurationMinutes int        `json:"duration_minutes"`
	Exercises       []Exercise `json:"exercises"`
}

// DayNutrition holds a day's meals and their aggregate
type DayNutrition struct {
	Meals         []Meal       `json:"meals"`
	TotalCalories float64      `json:"total_calories"`
	TotalMacros   MacroTargets `json:"total_macros"`
}

// DayPlan is one day within a WeekPlan. isTrainingDay implies Workout present.
type DayPlan struct {
	Date          string       `json:"date"`
	IsTrainingDay bool         `json:"is_training_day"`
	Workout       *Workout     `json:"workout,omitempty"`
	Nutrition     DayNutrition `json:"nutrition"`
}

// WeeklyStats aggregates a week's training and nutrition volume
type WeeklyStats struct {
	TrainingDays    int     `json:"training_days"`
	AvgCalories     float64 `json:"avg_calories"`
	TotalProteinG   float64 `json:"total_protein_g"`
	TotalVolumeSets int     `json:"total_volume_sets"`
}

// WeekPlan is one user's 7-day plan for a given week number. Immutable once
// generated; regeneration archives the old row and creates a new one.
type WeekPlan struct {
	ID          uuid.UUID   `json:"id"`
	UserID      uuid.UUID   `json:"user_id"`
	WeekNumber  int         `json:"week_number"`
	StartDate   string      `json:"start_date"`
	EndDate     string      `json:"end_date"`
	Phase       Phase       `json:"phase"`
	Days        []DayPlan   `json:"days"`
	WeeklyStats WeeklyStats `json:"weekly_stats"`
	Source      PlanSource  `json:"source"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ComputeStats recomputes WeeklyStats from the day list.
func (w *WeekPlan) ComputeStats() {
	stats := WeeklyStats{}
	var calories float64
	for _, d := range w.Days {
		if d.IsTrainingDay {
			stats.TrainingDays++
		}
		if d.Workout != nil {
			for _, ex := range d.Workout.Exercises {
				stats.TotalVolumeSets += ex.Sets
			}
		}
		calories += d.Nutrition.TotalCalories
		stats.TotalProteinG += d.Nutrition.TotalMacros.ProteinG
	}
	if len(w.Days) > 0 {
		stats.AvgCalories = calories / float64(len(w.Days))
	}
	w.WeeklyStats = stats
}
