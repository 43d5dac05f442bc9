package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fitforge/fitforge/internal/models"
)

const systemInstruction = "You are a certified strength coach and sports nutritionist. " +
	"You produce structured weekly training and nutrition plans. " +
	"Respond with valid JSON only, no markdown fences or commentary."

// buildDayRangePrompt builds the user prompt requesting days from..to
// (1-based, inclusive) of one training week.
func buildDayRangePrompt(ctx *models.PlanningContext, weekNumber, from, to int) string {
	phase := ctx.PhaseForWeek(weekNumber)
	t := ctx.Targets

	var b strings.Builder
	fmt.Fprintf(&b, "Create days %d through %d of week %d of a %d-week plan.\n\n", from, to, weekNumber, ctx.Planning.TotalWeeks)
	fmt.Fprintf(&b, "Athlete profile:\n")
	fmt.Fprintf(&b, "- Goal: %s, phase: %s\n", ctx.Goal, phase)
	fmt.Fprintf(&b, "- Sex %s, age %d, height %.0f cm, weight %.1f kg\n",
		ctx.Biometrics.Sex, ctx.Biometrics.AgeYears, ctx.Biometrics.HeightCm, ctx.Biometrics.WeightKg)
	fmt.Fprintf(&b, "- Experience: %s, training %d days/week, %d min sessions\n",
		ctx.Training.Experience, ctx.Training.DaysPerWeek, ctx.Training.SessionMinutes)
	if ctx.Training.CompetitionPrep {
		b.WriteString("- Preparing for competition\n")
	}
	fmt.Fprintf(&b, "\nNutrition targets:\n")
	fmt.Fprintf(&b, "- Training day: %.0f kcal, rest day: %.0f kcal\n", t.TrainingDayCalories, t.RestDayCalories)
	fmt.Fprintf(&b, "- Protein %.0f g, fat %.0f g, carbs %.0f g, fiber %.0f g\n",
		t.Macros.ProteinG, t.Macros.FatG, t.Macros.CarbsG, t.Macros.FiberG)
	fmt.Fprintf(&b, "- Diet: %s, %d meals per day\n", ctx.Nutrition.Diet, ctx.Nutrition.MealsPerDay)
	if len(ctx.Nutrition.Allergies) > 0 {
		fmt.Fprintf(&b, "- STRICTLY EXCLUDE (allergies): %s\n", strings.Join(ctx.Nutrition.Allergies, ", "))
	}
	if len(ctx.Nutrition.Intolerances) > 0 {
		fmt.Fprintf(&b, "- Avoid (intolerances): %s\n", strings.Join(ctx.Nutrition.Intolerances, ", "))
	}

	fmt.Fprintf(&b, `
Spread the %d training days evenly across the full week; mark which of the
requested days are training days accordingly.

Respond with a JSON object of this exact shape:
{
  "days": [
    {
      "is_training_day": true,
      "workout": {
        "focus": "upper body strength",
        "duration_minutes": 60,
        "exercises": [{"name": "Bench Press", "sets": 4, "reps": "6-8", "rest_secs": 150}]
      },
      "nutrition": {
        "meals": [
          {
            "name": "Greek yogurt bowl",
            "slot": "breakfast",
            "ingredients": [{"name": "greek yogurt", "grams": 250, "calories": 150, "protein_g": 25, "fat_g": 4, "carbs_g": 9}]
          }
        ]
      }
    }
  ]
}

Rules:
- Return exactly %d day objects in order.
- Omit "workout" entirely on rest days and set "is_training_day" to false.
- Every meal must list at least one ingredient with gram amounts.
- Daily meal totals must land within 5%% of the calorie target for that day type.
Return only valid JSON.`, ctx.Training.DaysPerWeek, to-from+1)

	return b.String()
}

// wireDay is the day shape the model is asked to return.
type wireDay struct {
	IsTrainingDay bool            `json:"is_training_day"`
	Workout       *models.Workout `json:"workout,omitempty"`
	Nutrition     struct {
		Meals []models.Meal `json:"meals"`
	} `json:"nutrition"`
}

// parseDays strips any non-JSON wrapping, parses the response, and converts
// it to day plans. Dates are not assigned here; the pipeline stamps them
// after assembly so chunk boundaries stay contiguous.
func parseDays(content string) ([]models.DayPlan, error) {
	raw := content
	if len(raw) > 0 && raw[0] != '{' {
		start := bytes.Index([]byte(raw), []byte("{"))
		end := bytes.LastIndex([]byte(raw), []byte("}"))
		if start != -1 && end != -1 && end > start {
			raw = raw[start : end+1]
		}
	}

	var payload struct {
		Days []wireDay `json:"days"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, &DataError{Reason: "response is not valid JSON", Err: err}
	}
	if len(payload.Days) == 0 {
		return nil, &DataError{Reason: "response contains no days"}
	}

	days := make([]models.DayPlan, 0, len(payload.Days))
	for _, wd := range payload.Days {
		day := models.DayPlan{
			IsTrainingDay: wd.IsTrainingDay,
			Workout:       wd.Workout,
		}
		day.Nutrition.Meals = wd.Nutrition.Meals
		for _, meal := range day.Nutrition.Meals {
			for _, ing := range meal.Ingredients {
				day.Nutrition.TotalCalories += ing.Calories
				day.Nutrition.TotalMacros.ProteinG += ing.ProteinG
				day.Nutrition.TotalMacros.FatG += ing.FatG
				day.Nutrition.TotalMacros.CarbsG += ing.CarbsG
			}
		}
		if !day.IsTrainingDay {
			// A workout on a rest day is ignored rather than rejected
			day.Workout = nil
		}
		days = append(days, day)
	}
	return days, nil
}
