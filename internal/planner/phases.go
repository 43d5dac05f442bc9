package planner

import (
	"math"

	"github.com/fitforge/fitforge/internal/models"
)

// Block sizes by experience tier. Beginners progress on shorter blocks.
const (
	beginnerBlockWeeks = 3
	defaultBlockWeeks  = 4
)

// buildPlanningWindow derives block size, block count and the phase
// distribution from the experience level and requested timeline.
func buildPlanningWindow(experience models.ExperienceLevel, timelineWeeks int) models.PlanningWindow {
	blockSize := defaultBlockWeeks
	if experience == models.ExperienceBeginner {
		blockSize = beginnerBlockWeeks
	}
	return models.PlanningWindow{
		BlockSizeWeeks: blockSize,
		TotalBlocks:    int(math.Ceil(float64(timelineWeeks) / float64(blockSize))),
		TotalWeeks:     timelineWeeks,
		Phases:         distributePhases(timelineWeeks),
	}
}

// distributePhases splits a timeline into training phases by fixed
// thresholds. Short timelines stay in base; longer ones add build, then a
// peak/taper tail; anything past twelve weeks absorbs the remainder into a
// recovery phase.
func distributePhases(weeks int) map[models.Phase]int {
	phases := make(map[models.Phase]int)

	switch {
	case weeks <= 4:
		phases[models.PhaseBase] = weeks
	case weeks <= 8:
		base := (weeks + 1) / 2
		phases[models.PhaseBase] = base
		phases[models.PhaseBuild] = weeks - base
	case weeks <= 12:
		base := int(math.Round(float64(weeks) / 3))
		peak := int(math.Round(float64(weeks) / 6))
		taper := int(math.Round(float64(weeks) / 12))
		if taper < 1 {
			taper = 1
		}
		phases[models.PhaseBase] = base
		phases[models.PhasePeak] = peak
		phases[models.PhaseTaper] = taper
		phases[models.PhaseBuild] = weeks - base - peak - taper
	default:
		for p, n := range distributePhases(12) {
			phases[p] = n
		}
		phases[models.PhaseRecovery] = weeks - 12
	}
	return phases
}
