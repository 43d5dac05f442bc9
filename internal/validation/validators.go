package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/fitforge/fitforge/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	// These should never fail in normal operation, but log if they do
	if err := Validate.RegisterValidation("goal", validateGoal); err != nil {
		panic(fmt.Sprintf("failed to register goal validator: %v", err))
	}
	if err := Validate.RegisterValidation("diet", validateDiet); err != nil {
		panic(fmt.Sprintf("failed to register diet validator: %v", err))
	}
	if err := Validate.RegisterValidation("activity_level", validateActivityLevel); err != nil {
		panic(fmt.Sprintf("failed to register activity_level validator: %v", err))
	}
	if err := Validate.RegisterValidation("experience", validateExperience); err != nil {
		panic(fmt.Sprintf("failed to register experience validator: %v", err))
	}
}

// enumToken canonicalizes a field the same way the planner does, so inputs
// like " Very Active " validate the value the planner will see.
func enumToken(fl validator.FieldLevel) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(fl.Field().String()), " ", "_"))
}

// validateGoal validates that a string is a valid Goal enum value
func validateGoal(fl validator.FieldLevel) bool {
	switch models.Goal(enumToken(fl)) {
	case models.GoalCut, models.GoalBulk, models.GoalMaintain, models.GoalRecomp, models.GoalPerformance:
		return true
	default:
		return false
	}
}

// validateDiet validates that a string is a valid DietType enum value
func validateDiet(fl validator.FieldLevel) bool {
	switch models.DietType(enumToken(fl)) {
	case models.DietOmnivore, models.DietVegetarian, models.DietVegan, models.DietPescatarian, models.DietMediterranean, models.DietKeto:
		return true
	default:
		return false
	}
}

// validateActivityLevel validates that a string is a valid ActivityLevel enum value
func validateActivityLevel(fl validator.FieldLevel) bool {
	switch models.ActivityLevel(enumToken(fl)) {
	case models.ActivitySedentary, models.ActivityLight, models.ActivityModerate, models.ActivityActive, models.ActivityVeryActive:
		return true
	default:
		return false
	}
}

// validateExperience validates that a string is a valid ExperienceLevel enum value
func validateExperience(fl validator.FieldLevel) bool {
	switch models.ExperienceLevel(enumToken(fl)) {
	case models.ExperienceBeginner, models.ExperienceIntermediate, models.ExperienceAdvanced, models.ExperienceElite:
		return true
	default:
		return false
	}
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// SanitizeList sanitizes each entry of a free-text list, dropping empties.
func SanitizeList(items []string) []string {
	var out []string
	for _, item := range items {
		if cleaned := SanitizeText(item); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}
