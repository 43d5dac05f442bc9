package models

import (
	"time"

	"github.com/google/uuid"
)

// Goal represents the user's primary training objective
type Goal string

const (
	GoalCut         Goal = "cut"
	GoalBulk        Goal = "bulk"
	GoalMaintain    Goal = "maintain"
	GoalRecomp      Goal = "recomp"
	GoalPerformance Goal = "performance"
)

// ActivityLevel represents baseline daily activity outside training
type ActivityLevel string

const (
	ActivitySedentary  ActivityLevel = "sedentary"
	ActivityLight      ActivityLevel = "light"
	ActivityModerate   ActivityLevel = "moderate"
	ActivityActive     ActivityLevel = "active"
	ActivityVeryActive ActivityLevel = "very_active"
)

// DietType represents the user's dietary pattern
type DietType string

const (
	DietOmnivore      DietType = "omnivore"
	DietVegetarian    DietType = "vegetarian"
	DietVegan         DietType = "vegan"
	DietPescatarian   DietType = "pescatarian"
	DietMediterranean DietType = "mediterranean"
	DietKeto          DietType = "keto"
)

// ExperienceLevel represents training experience tiers, ordered
type ExperienceLevel string

const (
	ExperienceBeginner     ExperienceLevel = "beginner"
	ExperienceIntermediate ExperienceLevel = "intermediate"
	ExperienceAdvanced     ExperienceLevel = "advanced"
	ExperienceElite        ExperienceLevel = "elite"
)

// ExperienceTier returns the ordinal tier of an experience level.
// Unknown levels map to the beginner tier.
func ExperienceTier(level ExperienceLevel) int {
	switch level {
	case ExperienceIntermediate:
		return 1
	case ExperienceAdvanced:
		return 2
	case ExperienceElite:
		return 3
	default:
		return 0
	}
}

// Sex is used by the BMR formula, which is sex-specific
type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

// Phase represents a training phase within a plan block
type Phase string

const (
	PhaseBase     Phase = "base"
	PhaseBuild    Phase = "build"
	PhasePeak     Phase = "peak"
	PhaseTaper    Phase = "taper"
	PhaseRecovery Phase = "recovery"
)

// Biometrics holds the physical measurements used for target derivation
type Biometrics struct {
	Sex      Sex     `json:"sex"`
	AgeYears int     `json:"age_years"`
	HeightCm float64 `json:"height_cm"`
	WeightKg float64 `json:"weight_kg"`
}

// TrainingProfile describes the user's training setup
type TrainingProfile struct {
	DaysPerWeek      int             `json:"days_per_week"`
	Experience       ExperienceLevel `json:"experience"`
	ActivityLevel    ActivityLevel   `json:"activity_level"`
	CompetitionPrep  bool            `json:"competition_prep"`
	SessionMinutes   int             `json:"session_minutes"`
	AvailableDays    []time.Weekday  `json:"available_days,omitempty"`
	TimelineWeeks    int             `json:"timeline_weeks"`
}

// NutritionProfile describes dietary pattern and restrictions
type NutritionProfile struct {
	Diet         DietType `json:"diet"`
	Intolerances []string `json:"intolerances,omitempty"`
	Allergies    []string `json:"allergies,omitempty"`
	MealsPerDay  int      `json:"meals_per_day"`
}

// MacroTargets holds daily macro targets in grams plus fiber
type MacroTargets struct {
	ProteinG float64 `json:"protein_g"`
	FatG     float64 `json:"fat_g"`
	CarbsG   float64 `json:"carbs_g"`
	FiberG   float64 `json:"fiber_g"`
}

// Targets holds derived calorie and macro targets
type Targets struct {
	BMR                 float64      `json:"bmr"`
	TDEE                float64      `json:"tdee"`
	AdjustedCalories    float64      `json:"adjusted_calories"`
	TrainingDayCalories float64      `json:"training_day_calories"`
	RestDayCalories     float64      `json:"rest_day_calories"`
	Macros              MacroTargets `json:"macros"`
	HeuristicFallback   bool         `json:"heuristic_fallback,omitempty"`
}

// PlanningWindow describes how the timeline is divided into blocks and phases
type PlanningWindow struct {
	BlockSizeWeeks int           `json:"block_size_weeks"`
	TotalBlocks    int           `json:"total_blocks"`
	TotalWeeks     int           `json:"total_weeks"`
	Phases         map[Phase]int `json:"phases"`
}

// PlanningContext is the canonical snapshot of one user's goals, biometrics,
// training and nutrition setup plus derived targets. It is created once per
// plan initiation and superseded, never mutated, on regeneration.
type PlanningContext struct {
	UserID     uuid.UUID        `json:"user_id"`
	Goal       Goal             `json:"goal"`
	Biometrics Biometrics       `json:"biometrics"`
	Training   TrainingProfile  `json:"training"`
	Nutrition  NutritionProfile `json:"nutrition"`
	Targets    Targets          `json:"targets"`
	Planning   PlanningWindow   `json:"planning"`
	CreatedAt  time.Time        `json:"created_at"`
}

// PhaseForWeek returns the phase a given 1-based week number falls into,
// walking phases in their canonical order.
func (c *PlanningContext) PhaseForWeek(week int) Phase {
	order := []Phase{PhaseBase, PhaseBuild, PhasePeak, PhaseTaper, PhaseRecovery}
	remaining := week
	for _, p := range order {
		n := c.Planning.Phases[p]
		if remaining <= n {
			return p
		}
		remaining -= n
	}
	return PhaseBase
}
