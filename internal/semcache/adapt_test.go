package semcache

import (
	"math"
	"testing"

	"github.com/fitforge/fitforge/internal/models"
)

func testCachedRecord() *models.CachedPlanRecord {
	ctx := testPlanningContext()
	plan := models.WeekPlan{
		WeekNumber: 1,
		Phase:      models.PhaseBase,
		Days: []models.DayPlan{
			{
				IsTrainingDay: true,
				Workout: &models.Workout{
					Focus: "upper",
					Exercises: []models.Exercise{
						{Name: "bench press", Sets: 4, Reps: "6-8"},
					},
				},
				Nutrition: models.DayNutrition{
					Meals: []models.Meal{
						{
							Name: "lunch",
							Slot: "midday",
							Ingredients: []models.Ingredient{
								{Name: "rice", Grams: 200, Calories: 260, ProteinG: 5, CarbsG: 56},
							},
							Calories: 260,
							Macros:   models.MacroTargets{ProteinG: 5, CarbsG: 56},
						},
					},
					TotalCalories: 2200,
					TotalMacros:   models.MacroTargets{ProteinG: 170, FatG: 65, CarbsG: 230},
				},
			},
		},
	}
	return &models.CachedPlanRecord{
		Fingerprint: Fingerprint(ctx),
		Context:     *ctx,
		Plan:        plan,
		Source:      models.PlanSourceAI,
	}
}

func TestAdapt_IdenticalContext(t *testing.T) {
	t.Parallel()

	got := Adapt(testPlanningContext(), testCachedRecord(), Similarity{Score: 0.85})
	if got == nil {
		t.Fatal("expected adaptation, got nil")
	}
	if got.Plan.Source != models.PlanSourceCacheAdapted {
		t.Errorf("Source = %s, want cache_adapted", got.Plan.Source)
	}
	if len(got.Adaptations) != 1 || got.Adaptations[0] != "targets_verified" {
		t.Errorf("Adaptations = %v, want [targets_verified]", got.Adaptations)
	}
	if got.Confidence != 0.85 {
		t.Errorf("Confidence = %f, want 0.85", got.Confidence)
	}
}

func TestAdapt_HardRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(req *models.PlanningContext)
	}{
		{
			name:   "goal mismatch",
			mutate: func(req *models.PlanningContext) { req.Goal = models.GoalBulk },
		},
		{
			name:   "incompatible diet",
			mutate: func(req *models.PlanningContext) { req.Nutrition.Diet = models.DietVegan },
		},
		{
			name: "experience gap of two tiers",
			mutate: func(req *models.PlanningContext) {
				req.Training.Experience = models.ExperienceElite
			},
		},
		{
			name: "weight delta beyond 15kg",
			mutate: func(req *models.PlanningContext) {
				req.Biometrics.WeightKg = req.Biometrics.WeightKg + 16
			},
		},
		{
			name: "timeline delta beyond 6 weeks",
			mutate: func(req *models.PlanningContext) {
				req.Training.TimelineWeeks = req.Training.TimelineWeeks + 7
			},
		},
		{
			name: "uncovered allergy",
			mutate: func(req *models.PlanningContext) {
				req.Nutrition.Allergies = []string{"peanuts"}
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := testPlanningContext()
			tt.mutate(req)
			// Score high on purpose: hard rules must reject regardless
			if got := Adapt(req, testCachedRecord(), Similarity{Score: 0.99}); got != nil {
				t.Errorf("expected nil adaptation, got %+v", got.Adaptations)
			}
		})
	}
}

func TestAdapt_DietCompatibilityIsDirected(t *testing.T) {
	t.Parallel()

	// An omnivore accepts a vegan plan
	req := testPlanningContext()
	record := testCachedRecord()
	record.Context.Nutrition.Diet = models.DietVegan
	if got := Adapt(req, record, Similarity{Score: 0.85}); got == nil {
		t.Error("omnivore should accept a vegan plan")
	}

	// A keto requester accepts only keto plans
	req = testPlanningContext()
	req.Nutrition.Diet = models.DietKeto
	if got := Adapt(req, testCachedRecord(), Similarity{Score: 0.99}); got != nil {
		t.Error("keto requester must not accept an omnivore plan")
	}
}

func TestAdapt_PortionScaling(t *testing.T) {
	t.Parallel()

	req := testPlanningContext()
	req.Targets.AdjustedCalories = 1100 // half the cached 2200

	got := Adapt(req, testCachedRecord(), Similarity{Score: 0.85})
	if got == nil {
		t.Fatal("expected adaptation, got nil")
	}

	ing := got.Plan.Days[0].Nutrition.Meals[0].Ingredients[0]
	if math.Abs(ing.Grams-100) > 0.01 {
		t.Errorf("Grams = %f, want 100", ing.Grams)
	}
	if math.Abs(ing.Calories-130) > 0.01 {
		t.Errorf("Calories = %f, want 130", ing.Calories)
	}
	if math.Abs(got.Plan.Days[0].Nutrition.TotalCalories-1100) > 0.01 {
		t.Errorf("TotalCalories = %f, want 1100", got.Plan.Days[0].Nutrition.TotalCalories)
	}

	found := false
	for _, a := range got.Adaptations {
		if a == "calories_rescaled_0.50" {
			found = true
		}
	}
	if !found {
		t.Errorf("Adaptations = %v, want calories_rescaled_0.50", got.Adaptations)
	}
}

func TestAdapt_ScalingDoesNotMutateRecord(t *testing.T) {
	t.Parallel()

	req := testPlanningContext()
	req.Targets.AdjustedCalories = 1100

	record := testCachedRecord()
	if got := Adapt(req, record, Similarity{Score: 0.85}); got == nil {
		t.Fatal("expected adaptation, got nil")
	}
	if record.Plan.Days[0].Nutrition.TotalCalories != 2200 {
		t.Errorf("cached record mutated: TotalCalories = %f", record.Plan.Days[0].Nutrition.TotalCalories)
	}
	if g := record.Plan.Days[0].Nutrition.Meals[0].Ingredients[0].Grams; g != 200 {
		t.Errorf("cached record mutated: Grams = %f", g)
	}
}

func TestAdapt_ConfidenceFloor(t *testing.T) {
	t.Parallel()

	// Two adaptations knock 0.02 off a score already at the floor
	req := testPlanningContext()
	req.Biometrics.WeightKg = req.Biometrics.WeightKg + 5
	req.Targets.AdjustedCalories = 2000

	if got := Adapt(req, testCachedRecord(), Similarity{Score: 0.71}); got != nil {
		t.Errorf("expected nil below confidence floor, got confidence %f", got.Confidence)
	}
}

func TestAdapt_RecomputesWeeklyStats(t *testing.T) {
	t.Parallel()

	req := testPlanningContext()
	req.Targets.AdjustedCalories = 1100

	got := Adapt(req, testCachedRecord(), Similarity{Score: 0.85})
	if got == nil {
		t.Fatal("expected adaptation, got nil")
	}
	if math.Abs(got.Plan.WeeklyStats.AvgCalories-1100) > 0.01 {
		t.Errorf("AvgCalories = %f, want 1100", got.Plan.WeeklyStats.AvgCalories)
	}
	if got.Plan.WeeklyStats.TotalVolumeSets != 4 {
		t.Errorf("TotalVolumeSets = %d, want 4", got.Plan.WeeklyStats.TotalVolumeSets)
	}
}
