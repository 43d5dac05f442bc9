package validation

import (
	"testing"
)

type enumFixture struct {
	Goal       string `validate:"omitempty,goal"`
	Diet       string `validate:"omitempty,diet"`
	Activity   string `validate:"omitempty,activity_level"`
	Experience string `validate:"omitempty,experience"`
}

func TestEnumValidators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   enumFixture
		wantErr bool
	}{
		{"valid goal", enumFixture{Goal: "cut"}, false},
		{"invalid goal", enumFixture{Goal: "shred"}, true},
		{"valid diet", enumFixture{Diet: "pescatarian"}, false},
		{"invalid diet", enumFixture{Diet: "carnivore"}, true},
		{"valid activity", enumFixture{Activity: "very_active"}, false},
		{"invalid activity", enumFixture{Activity: "extreme"}, true},
		{"valid experience", enumFixture{Experience: "elite"}, false},
		{"invalid experience", enumFixture{Experience: "novice"}, true},
		{"uppercase diet", enumFixture{Diet: "KETO"}, false},
		{"spaced activity", enumFixture{Activity: "  Very Active "}, false},
		{"all empty", enumFixture{}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate.Struct(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate.Struct(%+v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"trims whitespace", "  gluten  ", "gluten"},
		{"strips control characters", "pea\x00nuts", "peanuts"},
		{"keeps newlines and tabs", "a\nb\tc", "a\nb\tc"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeText(tt.input); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeList(t *testing.T) {
	t.Parallel()

	got := SanitizeList([]string{" peanuts ", "", "  ", "shellfish"})
	want := []string{"peanuts", "shellfish"}
	if len(got) != len(want) {
		t.Fatalf("SanitizeList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SanitizeList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
