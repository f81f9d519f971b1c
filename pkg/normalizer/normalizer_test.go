package normalizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwfm-inc/wwfm-engine/pkg/categories"
	"github.com/wwfm-inc/wwfm-engine/pkg/distribution"
	"github.com/wwfm-inc/wwfm-engine/pkg/models"
)

func validMedicationFields() map[string]any {
	return map[string]any{
		"time_to_results": "1-2 weeks",
		"frequency":       "Daily",
		"side_effects":    []any{"Nausea"},
	}
}

func TestNormalize_ValidFullSubmission(t *testing.T) {
	raw := validMedicationFields()
	raw["cost"] = "$20-50/month"
	raw["dosage_amount"] = float64(20)
	raw["notes"] = "  Took it   with breakfast "

	res := Normalize("medications", raw, Options{})

	require.True(t, res.IsValid, "unexpected errors: %v", res.Errors)
	assert.NoError(t, res.Err())
	assert.Equal(t, "1-2 weeks", res.Fields["time_to_results"])
	assert.Equal(t, []string{"Nausea"}, res.Fields["side_effects"])
	assert.Equal(t, "20", res.Fields["dosage_amount"])
	assert.Equal(t, "Took it with breakfast", res.Fields["notes"])
}

func TestNormalize_DeduplicatesArrayValues(t *testing.T) {
	raw := validMedicationFields()
	raw["side_effects"] = []any{"Nausea", "Nausea", "Headache"}

	res := Normalize("medications", raw, Options{})

	require.True(t, res.IsValid, "unexpected errors: %v", res.Errors)
	assert.Equal(t, []string{"Nausea", "Headache"}, res.Fields["side_effects"])
}

func TestNormalize_DeduplicatesAcrossCaseAndWhitespace(t *testing.T) {
	raw := validMedicationFields()
	raw["side_effects"] = []string{"nausea ", "NAUSEA", "Brain  fog", "brain fog"}

	res := Normalize("medications", raw, Options{})

	require.True(t, res.IsValid, "unexpected errors: %v", res.Errors)
	assert.Equal(t, []string{"Nausea", "Brain fog"}, res.Fields["side_effects"])
}

func TestNormalize_CustomEntriesShareOneSpellingAcrossRatings(t *testing.T) {
	var contributions []distribution.Contribution
	for _, typed := range []string{"vivid dreams", "Vivid Dreams", "VIVID  DREAMS "} {
		raw := validMedicationFields()
		raw["side_effects"] = []any{typed}

		res := Normalize("medications", raw, Options{})
		require.True(t, res.IsValid, "unexpected errors: %v", res.Errors)
		assert.Equal(t, []string{"Vivid dreams"}, res.Fields["side_effects"])

		votes, ok := distribution.Votes(res.Fields["side_effects"])
		require.True(t, ok)
		contributions = append(contributions, votes)
	}

	dist, err := distribution.Build(contributions)
	require.NoError(t, err)
	assert.Equal(t, []models.DistributionValue{{Value: "Vivid dreams", Count: 3, Percentage: 100}}, dist.Values)
}

func TestCanonicalCustom(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"vivid dreams", "Vivid dreams"},
		{"ÉTOURDISSEMENT léger", "Étourdissement léger"},
		{"2am wakeups", "2am wakeups"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, canonicalCustom(tt.in), tt.in)
	}
}

func TestNormalize_CanonicalizesDropdownSpelling(t *testing.T) {
	raw := validMedicationFields()
	raw["frequency"] = "  few TIMES a   week"

	res := Normalize("medications", raw, Options{})

	require.True(t, res.IsValid)
	assert.Equal(t, "Few times a week", res.Fields["frequency"])
}

func TestNormalize_RejectsValueOutsideDropdown(t *testing.T) {
	raw := validMedicationFields()
	raw["cost"] = "$100+/month"

	res := Normalize("medications", raw, Options{})

	require.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "cost", res.Errors[0].Field)
	assert.Equal(t, CodeInvalidOption, res.Errors[0].Code)
	assert.NotContains(t, res.Fields, "cost")

	err := res.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, categories.Category("medications"), verr.Category)
	assert.Len(t, verr.FieldErrors("cost"), 1)
	assert.Empty(t, verr.FieldErrors("frequency"))
}

func TestNormalize_RequiredFields(t *testing.T) {
	raw := map[string]any{"frequency": "Daily", "time_to_results": nil}

	t.Run("full submission reports every missing required field", func(t *testing.T) {
		res := Normalize("medications", raw, Options{})

		require.False(t, res.IsValid)
		fields := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			assert.Equal(t, CodeRequired, e.Code)
			fields = append(fields, e.Field)
		}
		assert.Equal(t, []string{"time_to_results", "side_effects"}, fields)
	})

	t.Run("partial submission accepts absent fields", func(t *testing.T) {
		res := Normalize("medications", raw, Options{AllowPartial: true})

		require.True(t, res.IsValid, "unexpected errors: %v", res.Errors)
		assert.Equal(t, map[string]any{"frequency": "Daily"}, res.Fields)
	})

	t.Run("partial submission still validates present values", func(t *testing.T) {
		res := Normalize("medications", map[string]any{"cost": "lots"}, Options{AllowPartial: true})

		require.False(t, res.IsValid)
		assert.Equal(t, CodeInvalidOption, res.Errors[0].Code)
	})
}

func TestNormalize_ArrayErrors(t *testing.T) {
	tests := []struct {
		name  string
		value any
		code  ErrorCode
	}{
		{"scalar instead of array", "Nausea", CodeInvalidType},
		{"non-string element", []any{"Nausea", 3}, CodeInvalidType},
		{"empty string element", []any{"Nausea", "   "}, CodeEmptyValue},
		{"empty array", []any{}, CodeEmptyValue},
		{"custom value with markup", []any{"<script>alert(1)</script>"}, CodeUnsafeText},
		{"custom value too long", []any{strings.Repeat("a", 101)}, CodeTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validMedicationFields()
			raw["side_effects"] = tt.value

			res := Normalize("medications", raw, Options{})

			require.False(t, res.IsValid)
			require.NotEmpty(t, res.Errors)
			assert.Equal(t, "side_effects", res.Errors[0].Field)
			assert.Equal(t, tt.code, res.Errors[0].Code)
		})
	}
}

func TestNormalize_FreeText(t *testing.T) {
	tests := []struct {
		name  string
		value any
		code  ErrorCode // empty means valid
		want  string
	}{
		{name: "plain", value: "Helped with racing thoughts", want: "Helped with racing thoughts"},
		{name: "too long", value: strings.Repeat("x", 501), code: CodeTooLong},
		{name: "sql injection", value: "'; DROP TABLE ratings--", code: CodeUnsafeText},
		{name: "script markup", value: "<script>alert(1)</script>", code: CodeUnsafeText},
		{name: "blank", value: "   ", code: CodeEmptyValue},
		{name: "array", value: []any{"a"}, code: CodeInvalidType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validMedicationFields()
			raw["notes"] = tt.value

			res := Normalize("medications", raw, Options{})

			if tt.code == "" {
				require.True(t, res.IsValid, "unexpected errors: %v", res.Errors)
				assert.Equal(t, tt.want, res.Fields["notes"])
				return
			}
			require.False(t, res.IsValid)
			assert.Equal(t, tt.code, res.Errors[0].Code)
		})
	}
}

func TestNormalize_Numbers(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
		code  ErrorCode
	}{
		{name: "float", value: 6.5, want: "6.5"},
		{name: "numeric string", value: " 7 ", want: "7"},
		{name: "below min", value: -1, code: CodeOutOfRange},
		{name: "above max", value: 25, code: CodeOutOfRange},
		{name: "not numeric", value: "lots", code: CodeInvalidType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := map[string]any{"previous_sleep_hours": tt.value}

			res := Normalize("sleep", raw, Options{AllowPartial: true})

			if tt.code == "" {
				require.True(t, res.IsValid, "unexpected errors: %v", res.Errors)
				assert.Equal(t, tt.want, res.Fields["previous_sleep_hours"])
				return
			}
			require.False(t, res.IsValid)
			assert.Equal(t, tt.code, res.Errors[0].Code)
		})
	}
}

func TestNormalize_UnknownFieldsAndCategory(t *testing.T) {
	raw := validMedicationFields()
	raw["wait_time"] = "Same day"
	raw["app_store_rating"] = "5"

	res := Normalize("medications", raw, Options{})

	require.False(t, res.IsValid)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "app_store_rating", res.Errors[0].Field)
	assert.Equal(t, "wait_time", res.Errors[1].Field)
	assert.Equal(t, CodeUnknownField, res.Errors[1].Code)

	res = Normalize("astrology", raw, Options{})
	require.False(t, res.IsValid)
	assert.Equal(t, CodeUnknownCategory, res.Errors[0].Code)
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	raw := validMedicationFields()
	raw["side_effects"] = []any{"nausea", "Nausea"}

	_ = Normalize("medications", raw, Options{})

	assert.Equal(t, []any{"nausea", "Nausea"}, raw["side_effects"])
}

func TestNormalize_FlexibleScalarsFromGenerator(t *testing.T) {
	raw := map[string]any{
		"time_to_results":      "Within days",
		"ongoing_cost":         "Free/No ongoing cost",
		"challenges":           []any{"None"},
		"still_following":      "yes",
		"previous_sleep_hours": "5",
	}

	res := Normalize("sleep", raw, Options{})

	require.True(t, res.IsValid, "unexpected errors: %v", res.Errors)
	assert.Equal(t, "Yes", res.Fields["still_following"])
	assert.Equal(t, "5", res.Fields["previous_sleep_hours"])
}
