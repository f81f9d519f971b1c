package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wwfm-inc/wwfm-engine/pkg/categories"
)

// StandardVariantName is the variant name used by categories that do not
// track dosage or form.
const StandardVariantName = "Standard"

// SolutionSource records who introduced a solution to the catalog.
type SolutionSource string

const (
	SolutionSourceUser         SolutionSource = "user"
	SolutionSourceAIFoundation SolutionSource = "ai_foundation"
)

// IsValid returns true if the source is a known solution source.
func (s SolutionSource) IsValid() bool {
	return s == SolutionSourceUser || s == SolutionSourceAIFoundation
}

// Solution is a named real-world intervention belonging to exactly one category.
type Solution struct {
	ID         uuid.UUID           `json:"id"`
	Title      string              `json:"title"`
	Category   categories.Category `json:"category"`
	IsApproved bool                `json:"is_approved"`
	Source     SolutionSource      `json:"source"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// SolutionVariant is one configuration of a solution (dosage and form for
// medications, "Standard" for everything else).
type SolutionVariant struct {
	ID          uuid.UUID `json:"id"`
	SolutionID  uuid.UUID `json:"solution_id"`
	VariantName string    `json:"variant_name"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsStandard reports whether the variant is the catch-all "Standard" variant.
func (v *SolutionVariant) IsStandard() bool {
	return v.VariantName == StandardVariantName
}
