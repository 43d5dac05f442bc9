package ai

import (
	"fmt"
	"time"

	"github.com/fitforge/fitforge/internal/models"
)

const daysPerWeek = 7

// ValidateWeek applies the whole-week structural invariants: exactly 7
// sequential dates, every meal has at least one ingredient, and a training
// day always carries a workout. Violations are DataErrors, never retried.
func ValidateWeek(days []models.DayPlan) error {
	if len(days) != daysPerWeek {
		return &DataError{Reason: fmt.Sprintf("expected %d days, got %d", daysPerWeek, len(days))}
	}

	var prev time.Time
	for i, day := range days {
		date, err := time.Parse("2006-01-02", day.Date)
		if err != nil {
			return &DataError{Reason: fmt.Sprintf("day %d has unparseable date %q", i+1, day.Date), Err: err}
		}
		if i > 0 && date.Sub(prev) != 24*time.Hour {
			return &DataError{Reason: fmt.Sprintf("day %d date %s is not the day after %s", i+1, day.Date, prev.Format("2006-01-02"))}
		}
		prev = date

		if day.IsTrainingDay && day.Workout == nil {
			return &DataError{Reason: fmt.Sprintf("day %d is a training day without a workout", i+1)}
		}
		if day.IsTrainingDay && len(day.Workout.Exercises) == 0 {
			return &DataError{Reason: fmt.Sprintf("day %d workout has no exercises", i+1)}
		}
		if len(day.Nutrition.Meals) == 0 {
			return &DataError{Reason: fmt.Sprintf("day %d has no meals", i+1)}
		}
		for mi, meal := range day.Nutrition.Meals {
			if len(meal.Ingredients) == 0 {
				return &DataError{Reason: fmt.Sprintf("day %d meal %d (%s) has no ingredients", i+1, mi+1, meal.Name)}
			}
		}
	}
	return nil
}

// calorieTolerance is the allowed relative drift between a day's meal total
// and its calorie target. The prompt asks the model for 5 percent; the
// validator allows more drift before rejecting a whole week.
const calorieTolerance = 0.15

// ValidateWeekTargets checks each day's aggregate calories against the
// training or rest day target. Days are skipped when the target is unset.
func ValidateWeekTargets(days []models.DayPlan, targets models.Targets) error {
	for i, day := range days {
		target := targets.RestDayCalories
		if day.IsTrainingDay {
			target = targets.TrainingDayCalories
		}
		if target <= 0 {
			continue
		}
		drift := (day.Nutrition.TotalCalories - target) / target
		if drift < -calorieTolerance || drift > calorieTolerance {
			return &DataError{Reason: fmt.Sprintf(
				"day %d calories %.0f outside tolerance of target %.0f",
				i+1, day.Nutrition.TotalCalories, target)}
		}
	}
	return nil
}

// ValidateChunk applies the deliberately weaker chunk-level check: the
// response is a day list of the expected length. The whole-week invariants
// are re-checked after assembly.
func ValidateChunk(days []models.DayPlan, expected int) error {
	if len(days) != expected {
		return &DataError{Reason: fmt.Sprintf("chunk expected %d days, got %d", expected, len(days))}
	}
	return nil
}
