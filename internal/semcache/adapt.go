package semcache

import (
	"fmt"
	"math"
	"strings"

	"github.com/fitforge/fitforge/internal/models"
)

// Hard rejection limits. Any one of these triggers a rejection regardless of
// the similarity score.
const (
	maxExperienceTierGap = 2
	maxWeightDeltaKg     = 15.0
	maxTimelineDeltaWk   = 6
	minConfidence        = 0.70
)

// dietCompatibility is a directed table: a requester with diet D accepts
// plans cached for any diet in dietCompatibility[D]. Stricter diets accept
// only equal-or-stricter sources.
var dietCompatibility = map[models.DietType][]models.DietType{
	models.DietOmnivore:      {models.DietOmnivore, models.DietMediterranean, models.DietPescatarian, models.DietVegetarian, models.DietVegan},
	models.DietMediterranean: {models.DietMediterranean, models.DietPescatarian, models.DietVegetarian, models.DietVegan},
	models.DietPescatarian:   {models.DietPescatarian, models.DietVegetarian, models.DietVegan},
	models.DietVegetarian:    {models.DietVegetarian, models.DietVegan},
	models.DietVegan:         {models.DietVegan, models.DietVegetarian},
	models.DietKeto:          {models.DietKeto},
}

// Adaptation is an approved rescale of a cached plan to a new context.
type Adaptation struct {
	Plan        models.WeekPlan `json:"plan"`
	Confidence  float64         `json:"confidence"`
	Adaptations []string        `json:"adaptations"`
}

// Adapt decides whether a near-match cached plan can be safely rescaled to
// the requested context. Returns nil when any hard rule triggers or the
// resulting confidence falls below the floor.
func Adapt(requested *models.PlanningContext, record *models.CachedPlanRecord, sim Similarity) *Adaptation {
	cached := &record.Context

	if requested.Goal != cached.Goal {
		return nil
	}
	if !dietAccepts(requested.Nutrition.Diet, cached.Nutrition.Diet) {
		return nil
	}
	gap := absInt(models.ExperienceTier(requested.Training.Experience) - models.ExperienceTier(cached.Training.Experience))
	if gap >= maxExperienceTierGap {
		return nil
	}
	if math.Abs(requested.Biometrics.WeightKg-cached.Biometrics.WeightKg) > maxWeightDeltaKg {
		return nil
	}
	if absInt(requested.Training.TimelineWeeks-cached.Training.TimelineWeeks) > maxTimelineDeltaWk {
		return nil
	}
	// Safety rule, never relaxed: every requested allergy and intolerance
	// must already be excluded by the cached plan.
	if !allergiesCovered(requested, record) {
		return nil
	}

	adapted := record.Plan
	adapted.Days = copyDays(record.Plan.Days)

	var applied []string

	ratio := 1.0
	if cached.Targets.AdjustedCalories > 0 {
		ratio = requested.Targets.AdjustedCalories / cached.Targets.AdjustedCalories
	}
	if math.Abs(ratio-1) > 0.01 {
		scalePortions(&adapted, ratio)
		applied = append(applied, fmt.Sprintf("calories_rescaled_%.2f", ratio))
	}
	if requested.Biometrics.WeightKg != cached.Biometrics.WeightKg {
		applied = append(applied, "protein_target_recomputed")
	}
	if requested.Training.TimelineWeeks != cached.Training.TimelineWeeks {
		applied = append(applied, "timeline_rebased")
	}
	if len(applied) == 0 {
		applied = append(applied, "targets_verified")
	}

	confidence := sim.Score - 0.02*float64(len(applied)-1)
	if confidence < minConfidence {
		return nil
	}

	adapted.Source = models.PlanSourceCacheAdapted
	adapted.ComputeStats()
	return &Adaptation{
		Plan:        adapted,
		Confidence:  confidence,
		Adaptations: applied,
	}
}

// copyDays deep-copies the day list so scaling never writes back into the
// cached record.
func copyDays(days []models.DayPlan) []models.DayPlan {
	out := make([]models.DayPlan, len(days))
	copy(out, days)
	for di := range out {
		meals := make([]models.Meal, len(out[di].Nutrition.Meals))
		copy(meals, out[di].Nutrition.Meals)
		for mi := range meals {
			ingredients := make([]models.Ingredient, len(meals[mi].Ingredients))
			copy(ingredients, meals[mi].Ingredients)
			meals[mi].Ingredients = ingredients
		}
		out[di].Nutrition.Meals = meals
	}
	return out
}

// scalePortions rescales every ingredient and day aggregate by ratio.
func scalePortions(plan *models.WeekPlan, ratio float64) {
	for di := range plan.Days {
		day := &plan.Days[di]
		for mi := range day.Nutrition.Meals {
			meal := &day.Nutrition.Meals[mi]
			for ii := range meal.Ingredients {
				ing := &meal.Ingredients[ii]
				ing.Grams *= ratio
				ing.Calories *= ratio
				ing.ProteinG *= ratio
				ing.FatG *= ratio
				ing.CarbsG *= ratio
			}
			meal.Calories *= ratio
			meal.Macros = scaleMacros(meal.Macros, ratio)
		}
		day.Nutrition.TotalCalories *= ratio
		day.Nutrition.TotalMacros = scaleMacros(day.Nutrition.TotalMacros, ratio)
	}
}

func scaleMacros(m models.MacroTargets, ratio float64) models.MacroTargets {
	return models.MacroTargets{
		ProteinG: m.ProteinG * ratio,
		FatG:     m.FatG * ratio,
		CarbsG:   m.CarbsG * ratio,
		FiberG:   m.FiberG * ratio,
	}
}

func dietAccepts(requested, cached models.DietType) bool {
	for _, d := range dietCompatibility[requested] {
		if d == cached {
			return true
		}
	}
	return false
}

// allergiesCovered reports whether the cached plan's exclusion set is a
// superset of the requested allergies and intolerances.
func allergiesCovered(requested *models.PlanningContext, record *models.CachedPlanRecord) bool {
	excluded := record.Exclusions()
	for _, a := range requested.Nutrition.Allergies {
		if !excluded[strings.ToLower(strings.TrimSpace(a))] {
			return false
		}
	}
	for _, i := range requested.Nutrition.Intolerances {
		if !excluded[strings.ToLower(strings.TrimSpace(i))] {
			return false
		}
	}
	return true
}
