package models

import "github.com/google/uuid"

// FieldSummary is one field of a pair as shown to users: the distribution
// trimmed to the display limit plus a "N people reported" caption.
type FieldSummary struct {
	Field         string        `json:"field"`
	Label         string        `json:"label"`
	Distribution  *Distribution `json:"distribution"`
	ReportedLabel string        `json:"reported_label"`
}

// PairSummary is the read model served for a goal-solution pair.
type PairSummary struct {
	GoalID           uuid.UUID      `json:"goal_id"`
	VariantID        uuid.UUID      `json:"variant_id"`
	DisplayMode      DisplayMode    `json:"display_mode"`
	AvgEffectiveness float64        `json:"avg_effectiveness"`
	RatingCount      int            `json:"rating_count"`
	HumanRatingCount int            `json:"human_rating_count"`
	Fields           []FieldSummary `json:"fields"`
}
