package models

import (
	"time"

	"github.com/google/uuid"
)

// DisplayMode selects which population of ratings a goal-solution pair shows.
type DisplayMode string

const (
	DisplayModeAI    DisplayMode = "ai"
	DisplayModeHuman DisplayMode = "human"
)

// IsValid returns true if the display mode is known.
func (m DisplayMode) IsValid() bool {
	return m == DisplayModeAI || m == DisplayModeHuman
}

// GoalImplementationLink is the aggregate record for one (goal, solution
// variant) pair. Stored in goal_implementation_links.
//
// DisplayMode moves from ai to human exactly once and never back.
// HumanRatingCount <= RatingCount always holds.
type GoalImplementationLink struct {
	ID               uuid.UUID        `json:"id"`
	GoalID           uuid.UUID        `json:"goal_id"`
	VariantID        uuid.UUID        `json:"variant_id"`
	AvgEffectiveness float64          `json:"avg_effectiveness"`
	RatingCount      int              `json:"rating_count"`
	HumanRatingCount int              `json:"human_rating_count"`
	AggregatedFields AggregatedFields `json:"aggregated_fields"`
	DisplayMode      DisplayMode      `json:"display_mode"`
	AISnapshot       AggregatedFields `json:"ai_snapshot,omitempty"`
	TransitionedAt   *time.Time       `json:"transitioned_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// IsHumanMode returns true once the pair has transitioned to human data.
func (l *GoalImplementationLink) IsHumanMode() bool {
	return l.DisplayMode == DisplayModeHuman
}

// PairKey identifies one goal-solution variant pair.
type PairKey struct {
	GoalID    uuid.UUID `json:"goal_id"`
	VariantID uuid.UUID `json:"variant_id"`
}

// Key returns the link's pair.
func (l *GoalImplementationLink) Key() PairKey {
	return PairKey{GoalID: l.GoalID, VariantID: l.VariantID}
}
