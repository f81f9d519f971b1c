package models

import (
	"time"

	"github.com/google/uuid"
)

// DataSource identifies where a rating came from.
type DataSource string

const (
	DataSourceHuman DataSource = "human"
	DataSourceAI    DataSource = "ai"
	DataSourceTest  DataSource = "test"
)

// IsValid returns true if the data source is known.
func (d DataSource) IsValid() bool {
	switch d {
	case DataSourceHuman, DataSourceAI, DataSourceTest:
		return true
	default:
		return false
	}
}

// Rating is one contributor's effectiveness score plus category-specific
// field values for a (user, goal, solution variant) tuple.
//
// SolutionFields holds normalizer output: string for scalar fields and
// []string for multi-select fields. Values read back from JSONB arrive as
// []any and are handled by distribution.Votes.
type Rating struct {
	ID                 uuid.UUID      `json:"id"`
	UserID             uuid.UUID      `json:"user_id"`
	GoalID             uuid.UUID      `json:"goal_id"`
	VariantID          uuid.UUID      `json:"variant_id"`
	EffectivenessScore int            `json:"effectiveness_score"`
	SolutionFields     map[string]any `json:"solution_fields"`
	DataSource         DataSource     `json:"data_source"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// IsHuman returns true for ratings submitted by real users.
func (r *Rating) IsHuman() bool {
	return r.DataSource == DataSourceHuman
}

// Contributes reports whether the rating feeds the aggregate shown in the
// given display mode. Test ratings never contribute; AI ratings only while
// the pair is still displaying AI-foundation data.
func (r *Rating) Contributes(mode DisplayMode) bool {
	switch r.DataSource {
	case DataSourceHuman:
		return true
	case DataSourceAI:
		return mode == DisplayModeAI
	default:
		return false
	}
}
