package models

import (
	"time"

	"github.com/google/uuid"
)

// Goal is a user-facing objective that solutions are rated against
// (e.g. "Reduce anxiety"). Stored in the goals table.
type Goal struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	CategoryHint string    `json:"category_hint,omitempty"` // Arena/grouping used for browsing
	IsApproved   bool      `json:"is_approved"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
