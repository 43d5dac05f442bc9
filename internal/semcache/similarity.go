package semcache

import (
	"fmt"
	"math"

	"github.com/fitforge/fitforge/internal/models"
)

// Thresholds is the tunable similarity policy injected into the orchestrator.
// The defaults mirror long-observed production values but are policy, not
// contract.
type Thresholds struct {
	Exact  float64 `yaml:"exact"`
	Adapt  float64 `yaml:"adapt"`
	Reject float64 `yaml:"reject"`
}

// DefaultThresholds returns the standard serve/adapt/reject cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{Exact: 0.90, Adapt: 0.80, Reject: 0.75}
}

// Feature group weights for the similarity score.
const (
	weightObjective  = 2.0
	weightTraining   = 1.5
	weightBiometrics = 1.0
	weightNutrition  = 0.8
)

// Mismatch penalties subtracted after normalization.
const (
	penaltyDiet         = 0.15
	penaltyDaysPerWeek  = 0.10
	penaltyCompetition  = 0.20
	penaltyIntolerances = 0.30
)

// Similarity is the result of comparing two planning contexts.
type Similarity struct {
	Score      float64  `json:"score"`
	Mismatches []string `json:"mismatches,omitempty"`
}

// Compare scores how closely a cached context matches a requested one.
// Returns a score in [0,1] plus the list of mismatched features.
func Compare(requested, cached *models.PlanningContext) Similarity {
	var result Similarity
	var sum, total float64

	add := func(weight, score float64, mismatch string) {
		total += weight
		sum += weight * score
		if score < 1 && mismatch != "" {
			result.Mismatches = append(result.Mismatches, mismatch)
		}
	}

	// Objective group
	add(weightObjective, boolScore(requested.Goal == cached.Goal), "goal")

	// Training group: days/week, experience tier distance, competition flag
	trainScore := 0.0
	if requested.Training.DaysPerWeek == cached.Training.DaysPerWeek {
		trainScore += 0.4
	} else if absInt(requested.Training.DaysPerWeek-cached.Training.DaysPerWeek) == 1 {
		trainScore += 0.2
	}
	tierGap := absInt(models.ExperienceTier(requested.Training.Experience) - models.ExperienceTier(cached.Training.Experience))
	switch tierGap {
	case 0:
		trainScore += 0.4
	case 1:
		trainScore += 0.2
	}
	if requested.Training.CompetitionPrep == cached.Training.CompetitionPrep {
		trainScore += 0.2
	}
	add(weightTraining, trainScore, "training")

	// Biometrics group: age band, weight proximity, sex
	bioScore := 0.0
	if ageBand(requested.Biometrics.AgeYears) == ageBand(cached.Biometrics.AgeYears) {
		bioScore += 0.3
	}
	weightDelta := math.Abs(requested.Biometrics.WeightKg - cached.Biometrics.WeightKg)
	switch {
	case weightDelta <= 2.5:
		bioScore += 0.5
	case weightDelta <= 7.5:
		bioScore += 0.3
	case weightDelta <= 15:
		bioScore += 0.1
	}
	if requested.Biometrics.Sex == cached.Biometrics.Sex {
		bioScore += 0.2
	}
	add(weightBiometrics, bioScore, "biometrics")

	// Nutrition group: diet, meals/day, restriction overlap
	nutScore := 0.0
	if requested.Nutrition.Diet == cached.Nutrition.Diet {
		nutScore += 0.5
	}
	if requested.Nutrition.MealsPerDay == cached.Nutrition.MealsPerDay {
		nutScore += 0.2
	}
	if restrictionsCompatible(requested, cached) {
		nutScore += 0.3
	}
	add(weightNutrition, nutScore, "nutrition")

	score := sum / total

	// Specific mismatch penalties on top of the normalized score
	if requested.Nutrition.Diet != cached.Nutrition.Diet {
		score -= penaltyDiet
		result.Mismatches = appendUnique(result.Mismatches, "diet_type")
	}
	if requested.Training.DaysPerWeek != cached.Training.DaysPerWeek {
		score -= penaltyDaysPerWeek
		result.Mismatches = appendUnique(result.Mismatches, "days_per_week")
	}
	if requested.Training.CompetitionPrep != cached.Training.CompetitionPrep {
		score -= penaltyCompetition
		result.Mismatches = appendUnique(result.Mismatches, "competition_prep")
	}
	if !restrictionsCompatible(requested, cached) {
		score -= penaltyIntolerances
		result.Mismatches = appendUnique(result.Mismatches, "intolerances")
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	result.Score = score
	return result
}

// restrictionsCompatible reports whether every restriction the requester has
// is also held by the cached context's exclusion set.
func restrictionsCompatible(requested, cached *models.PlanningContext) bool {
	excluded := make(map[string]bool)
	for _, v := range cached.Nutrition.Intolerances {
		excluded[v] = true
	}
	for _, v := range cached.Nutrition.Allergies {
		excluded[v] = true
	}
	for _, v := range requested.Nutrition.Intolerances {
		if !excluded[v] {
			return false
		}
	}
	for _, v := range requested.Nutrition.Allergies {
		if !excluded[v] {
			return false
		}
	}
	return true
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// String renders a similarity for log fields.
func (s Similarity) String() string {
	return fmt.Sprintf("%.3f (%d mismatches)", s.Score, len(s.Mismatches))
}
