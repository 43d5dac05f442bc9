package models

import "testing"

func TestPhaseForWeek(t *testing.T) {
	t.Parallel()

	c := &PlanningContext{
		Planning: PlanningWindow{
			TotalWeeks: 12,
			Phases: map[Phase]int{
				PhaseBase:  4,
				PhaseBuild: 5,
				PhasePeak:  2,
				PhaseTaper: 1,
			},
		},
	}

	tests := []struct {
		week int
		want Phase
	}{
		{1, PhaseBase},
		{4, PhaseBase},
		{5, PhaseBuild},
		{9, PhaseBuild},
		{10, PhasePeak},
		{11, PhasePeak},
		{12, PhaseTaper},
		{13, PhaseBase}, // past the plan falls back to base
	}
	for _, tt := range tests {
		if got := c.PhaseForWeek(tt.week); got != tt.want {
			t.Errorf("PhaseForWeek(%d) = %s, want %s", tt.week, got, tt.want)
		}
	}
}

func TestExperienceTier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level ExperienceLevel
		want  int
	}{
		{ExperienceBeginner, 0},
		{ExperienceIntermediate, 1},
		{ExperienceAdvanced, 2},
		{ExperienceElite, 3},
		{ExperienceLevel("ninja"), 0},
	}
	for _, tt := range tests {
		if got := ExperienceTier(tt.level); got != tt.want {
			t.Errorf("ExperienceTier(%s) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestFingerprintKey(t *testing.T) {
	t.Parallel()

	fp := SemanticFingerprint{
		AgeBand:      "25-34",
		WeightBin:    16,
		Goal:         GoalCut,
		Diet:         DietOmnivore,
		DaysPerWeek:  4,
		TimelineBand: "standard",
	}
	want := "cut:omnivore:d4:25-34:w16:standard"
	if got := fp.Key(); got != want {
		t.Errorf("Key() = %s, want %s", got, want)
	}
}
