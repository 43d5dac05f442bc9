package semcache

import (
	"testing"

	"github.com/google/uuid"

	"github.com/fitforge/fitforge/internal/models"
)

func testPlanningContext() *models.PlanningContext {
	return &models.PlanningContext{
		UserID: uuid.New(),
		Goal:   models.GoalCut,
		Biometrics: models.Biometrics{
			Sex:      models.SexMale,
			AgeYears: 30,
			HeightCm: 180,
			WeightKg: 82,
		},
		Training: models.TrainingProfile{
			DaysPerWeek:   4,
			Experience:    models.ExperienceIntermediate,
			ActivityLevel: models.ActivityModerate,
			TimelineWeeks: 12,
		},
		Nutrition: models.NutritionProfile{
			Diet:        models.DietOmnivore,
			MealsPerDay: 4,
		},
		Targets: models.Targets{
			AdjustedCalories: 2200,
		},
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	t.Parallel()

	a := Fingerprint(testPlanningContext())
	b := Fingerprint(testPlanningContext())
	if a != b {
		t.Errorf("identical contexts produced different fingerprints: %v vs %v", a, b)
	}
	if a.Key() != b.Key() {
		t.Errorf("keys differ: %s vs %s", a.Key(), b.Key())
	}
}

func TestFingerprint_Buckets(t *testing.T) {
	t.Parallel()

	ctx := testPlanningContext()
	fp := Fingerprint(ctx)

	if fp.AgeBand != "25-34" {
		t.Errorf("AgeBand = %s, want 25-34", fp.AgeBand)
	}
	if fp.WeightBin != 16 {
		t.Errorf("WeightBin = %d, want 16", fp.WeightBin)
	}
	if fp.TimelineBand != "standard" {
		t.Errorf("TimelineBand = %s, want standard", fp.TimelineBand)
	}
	if fp.Goal != models.GoalCut || fp.Diet != models.DietOmnivore || fp.DaysPerWeek != 4 {
		t.Errorf("unexpected fingerprint: %+v", fp)
	}
}

func TestAgeBand_Edges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		age  int
		want string
	}{
		{18, "18-24"},
		{24, "18-24"},
		{25, "25-34"},
		{44, "35-44"},
		{55, "55+"},
		{90, "55+"},
	}
	for _, tt := range tests {
		if got := ageBand(tt.age); got != tt.want {
			t.Errorf("ageBand(%d) = %s, want %s", tt.age, got, tt.want)
		}
	}
}

func TestTimelineBand_Edges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		weeks int
		want  string
	}{
		{2, "short"},
		{4, "short"},
		{5, "medium"},
		{12, "standard"},
		{24, "long"},
		{25, "extended"},
	}
	for _, tt := range tests {
		if got := timelineBand(tt.weeks); got != tt.want {
			t.Errorf("timelineBand(%d) = %s, want %s", tt.weeks, got, tt.want)
		}
	}
}

func TestFingerprintKey_SeparatesNearbyContexts(t *testing.T) {
	t.Parallel()

	a := testPlanningContext()
	b := testPlanningContext()
	b.Biometrics.WeightKg = 90 // different 5kg bin

	if Fingerprint(a).Key() == Fingerprint(b).Key() {
		t.Error("contexts in different weight bins share a key")
	}
}
