package main

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwfm-inc/wwfm-engine/pkg/categories"
	"github.com/wwfm-inc/wwfm-engine/pkg/models"
	"github.com/wwfm-inc/wwfm-engine/pkg/normalizer"
)

func TestAuditor(t *testing.T) {
	a := newAuditor(normalizer.New(categories.Default()))
	medications := categories.Category("medications")

	clean := &models.Rating{ID: uuid.New(), SolutionFields: map[string]any{
		"time_to_results": "1-2 weeks",
		"frequency":       "Daily",
		"side_effects":    []any{"Nausea"},
	}}
	lowercase := &models.Rating{ID: uuid.New(), SolutionFields: map[string]any{
		"frequency": "daily",
	}}
	retired := &models.Rating{ID: uuid.New(), SolutionFields: map[string]any{
		"frequency": "Hourly",
	}}

	a.check(clean, medications)
	a.check(lowercase, medications)
	a.check(retired, medications)

	require.Len(t, a.findings, 2)
	assert.Equal(t, lowercase.ID, a.findings[0].ratingID)
	assert.Contains(t, a.findings[0].problem, "not canonical")
	assert.Equal(t, retired.ID, a.findings[1].ratingID)

	var buf bytes.Buffer
	a.report(&buf)
	assert.Contains(t, buf.String(), "3 ratings checked, 2 problems")
}

func TestSameValue(t *testing.T) {
	assert.True(t, sameValue("Daily", "Daily"))
	assert.False(t, sameValue("daily", "Daily"))
	assert.True(t, sameValue([]any{"Nausea", "Headache"}, []string{"Nausea", "Headache"}))
	assert.False(t, sameValue([]any{"Headache", "Nausea"}, []string{"Nausea", "Headache"}))
	assert.False(t, sameValue("Nausea", []string{"Nausea"}))
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["pair"])
	assert.True(t, names["all"])
	assert.True(t, names["audit"])

	root.SetArgs([]string{"pair", "not-a-uuid", uuid.NewString()})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid goal ID")
}
