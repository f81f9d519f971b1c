package categories

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_LoadsEmbeddedSchema(t *testing.T) {
	reg := Default()

	cats := reg.Categories()
	assert.Len(t, cats, 23)
	assert.Equal(t, Category("medications"), cats[0])

	for _, schema := range reg.Schemas() {
		assert.NotEmpty(t, schema.Label, "category %s has no label", schema.Category)
		_, ok := schema.Field("time_to_results")
		assert.True(t, ok, "category %s should collect time_to_results", schema.Category)
	}
}

func TestCategory_RequiresDosageVariant(t *testing.T) {
	assert.True(t, Category("medications").RequiresDosageVariant())
	assert.True(t, Category("supplements_vitamins").RequiresDosageVariant())
	assert.False(t, Category("apps_software").RequiresDosageVariant())
	assert.False(t, Category("unknown").RequiresDosageVariant())

	assert.True(t, Category("sleep").IsValid())
	assert.False(t, Category("astrology").IsValid())
}

func TestFieldSpec_MatchOption(t *testing.T) {
	schema, ok := Lookup("medications")
	require.True(t, ok)

	cost, ok := schema.Field("cost")
	require.True(t, ok)

	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"$100-200/month", "$100-200/month", true},
		{"  $100-200/MONTH ", "$100-200/month", true},
		{"under   $20/month", "Under $20/month", true},
		{"$100+/month", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := cost.MatchOption(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCategorySchema_RequiredDiffersPerCategory(t *testing.T) {
	meds, _ := Lookup("medications")
	supps, _ := Lookup("supplements_vitamins")

	medCost, _ := meds.Field("cost")
	suppCost, _ := supps.Field("cost")

	assert.False(t, medCost.Required)
	assert.True(t, suppCost.Required)
}

func TestCategorySchema_FieldNamesInFormOrder(t *testing.T) {
	schema, ok := Lookup("crisis_resources")
	require.True(t, ok)
	assert.Equal(t, []string{"time_to_results", "response_time", "format", "cost", "notes"}, schema.FieldNames())
}

func TestLoad_RejectsInvalidSchemas(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name: "dropdown without options",
			doc: `
fields:
  cost: {type: dropdown}
categories:
  - {name: apps, fields: [{name: cost}]}
`,
			wantErr: "has no options",
		},
		{
			name: "duplicate option after folding",
			doc: `
fields:
  cost: {type: dropdown, options: [Free, " free "]}
categories:
  - {name: apps, fields: [{name: cost}]}
`,
			wantErr: "twice",
		},
		{
			name: "undefined field reference",
			doc: `
fields:
  cost: {type: dropdown, options: [Free]}
categories:
  - {name: apps, fields: [{name: price}]}
`,
			wantErr: "undefined field",
		},
		{
			name: "duplicate category",
			doc: `
fields:
  notes: {type: text}
categories:
  - {name: apps, fields: [{name: notes}]}
  - {name: apps, fields: [{name: notes}]}
`,
			wantErr: "duplicate category",
		},
		{
			name: "unknown type",
			doc: `
fields:
  notes: {type: rich_text}
categories:
  - {name: apps, fields: [{name: notes}]}
`,
			wantErr: "unknown type",
		},
		{
			name: "inverted number range",
			doc: `
fields:
  hours: {type: number, min: 10, max: 1}
categories:
  - {name: sleep, fields: [{name: hours}]}
`,
			wantErr: "min greater than max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFoldOption(t *testing.T) {
	assert.Equal(t, "few times a week", FoldOption("  Few   times\ta WEEK "))
	assert.Equal(t, "", FoldOption("   "))
}
