package planner

import (
	"math"
	"strings"
	"time"

	"github.com/fitforge/fitforge/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// activityMultipliers maps activity levels to their TDEE multiplier. This is
// the single source of truth for valid activity levels.
var activityMultipliers = map[models.ActivityLevel]float64{
	models.ActivitySedentary:  1.2,
	models.ActivityLight:      1.375,
	models.ActivityModerate:   1.55,
	models.ActivityActive:     1.725,
	models.ActivityVeryActive: 1.9,
}

// goalAdjustments maps goals to the multiplier applied on top of TDEE.
var goalAdjustments = map[models.Goal]float64{
	models.GoalCut:         0.80,
	models.GoalBulk:        1.15,
	models.GoalMaintain:    1.00,
	models.GoalRecomp:      0.95,
	models.GoalPerformance: 1.05,
}

const (
	trainingDayFactor = 1.10
	restDayFactor     = 0.95
	proteinPerKg      = 2.1
	fatCalorieShare   = 0.27
	fiberPer1000Kcal  = 14.0

	// Heuristic used when the formula would produce a non-finite target.
	heuristicKcalPerKg = 30.0
)

// Defaults substituted for unrecognized enum values. Substitutions are logged
// as anomalies, never silently propagated.
const (
	defaultGoal       = models.GoalMaintain
	defaultActivity   = models.ActivityModerate
	defaultDiet       = models.DietOmnivore
	defaultExperience = models.ExperienceBeginner
)

// OnboardingAnswers is the loosely typed input handed over by the onboarding
// component. String fields carry whatever vocabulary the form produced.
type OnboardingAnswers struct {
	Sex             string   `json:"sex"`
	AgeYears        int      `json:"age_years" validate:"gte=0,lte=130"`
	HeightCm        float64  `json:"height_cm" validate:"gt=0"`
	WeightKg        float64  `json:"weight_kg" validate:"gt=0"`
	Goal            string   `json:"goal" validate:"omitempty,goal"`
	ActivityLevel   string   `json:"activity_level" validate:"omitempty,activity_level"`
	Experience      string   `json:"experience" validate:"omitempty,experience"`
	DaysPerWeek     int      `json:"days_per_week" validate:"gte=1,lte=7"`
	SessionMinutes  int      `json:"session_minutes"`
	CompetitionPrep bool     `json:"competition_prep"`
	TimelineWeeks   int      `json:"timeline_weeks" validate:"gte=1"`
	Diet            string   `json:"diet" validate:"omitempty,diet"`
	Intolerances    []string `json:"intolerances"`
	Allergies       []string `json:"allergies"`
	MealsPerDay     int      `json:"meals_per_day"`
}

// Calculator normalizes onboarding answers into a canonical PlanningContext
// and derives calorie/macro/phase targets.
type Calculator struct {
	logger *zap.Logger
}

// NewCalculator creates a new target calculator.
func NewCalculator(logger *zap.Logger) *Calculator {
	return &Calculator{logger: logger}
}

// BuildContext normalizes answers and derives all targets for one user.
func (c *Calculator) BuildContext(userID uuid.UUID, answers OnboardingAnswers) models.PlanningContext {
	goal := c.normalizeGoal(answers.Goal)
	activity := c.normalizeActivity(answers.ActivityLevel)
	experience := c.normalizeExperience(answers.Experience)
	diet := c.normalizeDiet(answers.Diet)

	sex := models.SexFemale
	if strings.EqualFold(strings.TrimSpace(answers.Sex), "male") {
		sex = models.SexMale
	}

	mealsPerDay := answers.MealsPerDay
	if mealsPerDay < 2 || mealsPerDay > 6 {
		mealsPerDay = 4
	}

	ctx := models.PlanningContext{
		UserID: userID,
		Goal:   goal,
		Biometrics: models.Biometrics{
			Sex:      sex,
			AgeYears: answers.AgeYears,
			HeightCm: answers.HeightCm,
			WeightKg: answers.WeightKg,
		},
		Training: models.TrainingProfile{
			DaysPerWeek:     clampInt(answers.DaysPerWeek, 1, 7),
			Experience:      experience,
			ActivityLevel:   activity,
			CompetitionPrep: answers.CompetitionPrep,
			SessionMinutes:  answers.SessionMinutes,
			TimelineWeeks:   maxInt(answers.TimelineWeeks, 1),
		},
		Nutrition: models.NutritionProfile{
			Diet:         diet,
			Intolerances: normalizeList(answers.Intolerances),
			Allergies:    normalizeList(answers.Allergies),
			MealsPerDay:  mealsPerDay,
		},
		CreatedAt: time.Now().UTC(),
	}

	ctx.Targets = c.deriveTargets(ctx)
	ctx.Planning = buildPlanningWindow(experience, ctx.Training.TimelineWeeks)
	return ctx
}

// deriveTargets computes BMR, TDEE and macro targets. Never returns a
// non-finite value: if the formula path does, a weight-based heuristic is
// substituted and the anomaly flagged.
func (c *Calculator) deriveTargets(ctx models.PlanningContext) models.Targets {
	b := ctx.Biometrics

	// Mifflin-St Jeor, sex-specific constant
	bmr := 10*b.WeightKg + 6.25*b.HeightCm - 5*float64(b.AgeYears)
	if b.Sex == models.SexMale {
		bmr += 5
	} else {
		bmr -= 161
	}

	tdee := bmr * activityMultipliers[ctx.Training.ActivityLevel]
	adjusted := tdee * goalAdjustments[ctx.Goal]

	t := models.Targets{
		BMR:                 bmr,
		TDEE:                tdee,
		AdjustedCalories:    adjusted,
		TrainingDayCalories: adjusted * trainingDayFactor,
		RestDayCalories:     adjusted * restDayFactor,
	}
	t.Macros = deriveMacros(adjusted, b.WeightKg)

	if !targetsFinite(t) {
		c.anomaly("non_finite_targets",
			zap.String("user_id", ctx.UserID.String()),
			zap.Float64("weight_kg", b.WeightKg),
		)
		return heuristicTargets(b.WeightKg)
	}
	return t
}

func deriveMacros(calories, weightKg float64) models.MacroTargets {
	protein := proteinPerKg * weightKg
	fat := calories * fatCalorieShare / 9
	carbCalories := calories - protein*4 - fat*9
	if carbCalories < 0 {
		carbCalories = 0
	}
	return models.MacroTargets{
		ProteinG: protein,
		FatG:     fat,
		CarbsG:   carbCalories / 4,
		FiberG:   fiberPer1000Kcal * calories / 1000,
	}
}

// heuristicTargets is the defensive fallback: 30 kcal/kg with training/rest
// days spread ±10% around it.
func heuristicTargets(weightKg float64) models.Targets {
	if weightKg <= 0 || math.IsNaN(weightKg) || math.IsInf(weightKg, 0) {
		weightKg = 70
	}
	base := heuristicKcalPerKg * weightKg
	t := models.Targets{
		BMR:                 base * 0.65,
		TDEE:                base,
		AdjustedCalories:    base,
		TrainingDayCalories: base * 1.10,
		RestDayCalories:     base * 0.90,
		HeuristicFallback:   true,
	}
	t.Macros = deriveMacros(base, weightKg)
	return t
}

func targetsFinite(t models.Targets) bool {
	for _, v := range []float64{
		t.BMR, t.TDEE, t.AdjustedCalories, t.TrainingDayCalories, t.RestDayCalories,
		t.Macros.ProteinG, t.Macros.FatG, t.Macros.CarbsG, t.Macros.FiberG,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (c *Calculator) normalizeGoal(raw string) models.Goal {
	switch models.Goal(normalizeToken(raw)) {
	case models.GoalCut, models.GoalBulk, models.GoalMaintain, models.GoalRecomp, models.GoalPerformance:
		return models.Goal(normalizeToken(raw))
	}
	c.anomaly("unknown_goal", zap.String("value", raw))
	return defaultGoal
}

func (c *Calculator) normalizeActivity(raw string) models.ActivityLevel {
	v := models.ActivityLevel(normalizeToken(raw))
	if _, ok := activityMultipliers[v]; ok {
		return v
	}
	c.anomaly("unknown_activity_level", zap.String("value", raw))
	return defaultActivity
}

func (c *Calculator) normalizeExperience(raw string) models.ExperienceLevel {
	switch models.ExperienceLevel(normalizeToken(raw)) {
	case models.ExperienceBeginner, models.ExperienceIntermediate, models.ExperienceAdvanced, models.ExperienceElite:
		return models.ExperienceLevel(normalizeToken(raw))
	}
	c.anomaly("unknown_experience_level", zap.String("value", raw))
	return defaultExperience
}

func (c *Calculator) normalizeDiet(raw string) models.DietType {
	switch models.DietType(normalizeToken(raw)) {
	case models.DietOmnivore, models.DietVegetarian, models.DietVegan,
		models.DietPescatarian, models.DietMediterranean, models.DietKeto:
		return models.DietType(normalizeToken(raw))
	}
	c.anomaly("unknown_diet_type", zap.String("value", raw))
	return defaultDiet
}

func (c *Calculator) anomaly(event string, fields ...zap.Field) {
	if c.logger != nil {
		c.logger.Warn(event, fields...)
	}
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "_"))
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool)
	for _, v := range in {
		t := strings.ToLower(strings.TrimSpace(v))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
