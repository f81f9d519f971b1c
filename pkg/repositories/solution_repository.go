package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wwfm-inc/wwfm-engine/pkg/categories"
	"github.com/wwfm-inc/wwfm-engine/pkg/database"
	"github.com/wwfm-inc/wwfm-engine/pkg/models"
)

// SolutionRepository defines data access for solutions and their variants.
type SolutionRepository interface {
	Create(ctx context.Context, solution *models.Solution) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Solution, error)
	CreateVariant(ctx context.Context, variant *models.SolutionVariant) error
	GetVariant(ctx context.Context, id uuid.UUID) (*models.SolutionVariant, error)
	ListVariants(ctx context.Context, solutionID uuid.UUID) ([]*models.SolutionVariant, error)

	// GetCategoryForVariant returns the category of the solution a variant
	// belongs to. Aggregation needs it to pick the field schema.
	GetCategoryForVariant(ctx context.Context, variantID uuid.UUID) (categories.Category, error)
}

type solutionRepository struct{}

// NewSolutionRepository creates a new solution repository.
func NewSolutionRepository() SolutionRepository {
	return &solutionRepository{}
}

var _ SolutionRepository = (*solutionRepository)(nil)

func (r *solutionRepository) Create(ctx context.Context, s *models.Solution) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return errNoScope
	}

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Source == "" {
		s.Source = models.SolutionSourceUser
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now

	query := `
		INSERT INTO solutions (id, title, category, is_approved, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := scope.Conn.Exec(ctx, query,
		s.ID, s.Title, string(s.Category), s.IsApproved, string(s.Source), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return mapError("create solution", err)
	}
	return nil
}

func (r *solutionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Solution, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	query := `
		SELECT id, title, category, is_approved, source, created_at, updated_at
		FROM solutions
		WHERE id = $1`

	var s models.Solution
	var category, source string
	err := scope.Conn.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Title, &category, &s.IsApproved, &source, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, mapError("get solution", err)
	}
	s.Category = categories.Category(category)
	s.Source = models.SolutionSource(source)
	return &s, nil
}

func (r *solutionRepository) CreateVariant(ctx context.Context, v *models.SolutionVariant) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return errNoScope
	}

	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	v.CreatedAt = time.Now()

	query := `
		INSERT INTO solution_variants (id, solution_id, variant_name, is_default, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := scope.Conn.Exec(ctx, query, v.ID, v.SolutionID, v.VariantName, v.IsDefault, v.CreatedAt)
	if err != nil {
		return mapError("create solution variant", err)
	}
	return nil
}

func (r *solutionRepository) GetVariant(ctx context.Context, id uuid.UUID) (*models.SolutionVariant, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	query := `
		SELECT id, solution_id, variant_name, is_default, created_at
		FROM solution_variants
		WHERE id = $1`

	var v models.SolutionVariant
	err := scope.Conn.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.SolutionID, &v.VariantName, &v.IsDefault, &v.CreatedAt)
	if err != nil {
		return nil, mapError("get solution variant", err)
	}
	return &v, nil
}

func (r *solutionRepository) ListVariants(ctx context.Context, solutionID uuid.UUID) ([]*models.SolutionVariant, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	query := `
		SELECT id, solution_id, variant_name, is_default, created_at
		FROM solution_variants
		WHERE solution_id = $1
		ORDER BY is_default DESC, variant_name`

	rows, err := scope.Conn.Query(ctx, query, solutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list solution variants: %w", err)
	}
	defer rows.Close()

	var variants []*models.SolutionVariant
	for rows.Next() {
		var v models.SolutionVariant
		if err := rows.Scan(&v.ID, &v.SolutionID, &v.VariantName, &v.IsDefault, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan solution variant: %w", err)
		}
		variants = append(variants, &v)
	}
	return variants, rows.Err()
}

func (r *solutionRepository) GetCategoryForVariant(ctx context.Context, variantID uuid.UUID) (categories.Category, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return "", errNoScope
	}

	query := `
		SELECT s.category
		FROM solution_variants v
		JOIN solutions s ON s.id = v.solution_id
		WHERE v.id = $1`

	var category string
	if err := scope.Conn.QueryRow(ctx, query, variantID).Scan(&category); err != nil {
		return "", mapError("get category for variant", err)
	}
	return categories.Category(category), nil
}
