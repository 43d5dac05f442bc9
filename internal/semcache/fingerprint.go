package semcache

import (
	"fmt"

	"github.com/fitforge/fitforge/internal/models"
)

// Age bands used for fingerprinting. Coarse on purpose: exact ages would
// almost never produce cache hits.
var ageBands = []struct {
	max  int
	name string
}{
	{24, "18-24"},
	{34, "25-34"},
	{44, "35-44"},
	{54, "45-54"},
	{120, "55+"},
}

// Timeline bands in weeks.
var timelineBands = []struct {
	max  int
	name string
}{
	{4, "short"},
	{8, "medium"},
	{12, "standard"},
	{24, "long"},
	{9999, "extended"},
}

const weightBinKg = 5

// Fingerprint buckets a context into its coarse, privacy-preserving cache
// key. Deterministic: identical contexts always yield identical fingerprints.
func Fingerprint(ctx *models.PlanningContext) models.SemanticFingerprint {
	return models.SemanticFingerprint{
		AgeBand:      ageBand(ctx.Biometrics.AgeYears),
		WeightBin:    int(ctx.Biometrics.WeightKg) / weightBinKg,
		Goal:         ctx.Goal,
		Diet:         ctx.Nutrition.Diet,
		DaysPerWeek:  ctx.Training.DaysPerWeek,
		TimelineBand: timelineBand(ctx.Training.TimelineWeeks),
	}
}

func ageBand(age int) string {
	for _, b := range ageBands {
		if age <= b.max {
			return b.name
		}
	}
	return ageBands[len(ageBands)-1].name
}

func timelineBand(weeks int) string {
	for _, b := range timelineBands {
		if weeks <= b.max {
			return b.name
		}
	}
	return timelineBands[len(timelineBands)-1].name
}

// indexKey is the Redis set holding fingerprints that share goal and diet,
// the two features adaptation can never bridge.
func indexKey(goal models.Goal, diet models.DietType) string {
	return fmt.Sprintf("plancache:index:%s:%s", goal, diet)
}
