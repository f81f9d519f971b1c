package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wwfm-inc/wwfm-engine/pkg/apperrors"
	"github.com/wwfm-inc/wwfm-engine/pkg/database"
	"github.com/wwfm-inc/wwfm-engine/pkg/models"
)

// RatingRepository defines data access for ratings.
type RatingRepository interface {
	// Create inserts a rating. A second human rating by the same user for
	// the same pair returns apperrors.ErrConflict.
	Create(ctx context.Context, rating *models.Rating) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Rating, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	// Delete removes a rating and returns it as it was.
	Delete(ctx context.Context, id uuid.UUID) (*models.Rating, error)
	// ListForPair returns every rating of a pair ordered by (created_at, id),
	// the order distributions are built in.
	ListForPair(ctx context.Context, goalID, variantID uuid.UUID) ([]*models.Rating, error)
	// ListAfter pages through all ratings by id, for maintenance tools.
	ListAfter(ctx context.Context, afterID uuid.UUID, limit int) ([]*models.Rating, error)
}

type ratingRepository struct{}

// NewRatingRepository creates a new rating repository.
func NewRatingRepository() RatingRepository {
	return &ratingRepository{}
}

var _ RatingRepository = (*ratingRepository)(nil)

const ratingColumns = `id, user_id, goal_id, variant_id, effectiveness_score, solution_fields, data_source, created_at, updated_at`

func (r *ratingRepository) Create(ctx context.Context, rating *models.Rating) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return errNoScope
	}

	if rating.ID == uuid.Nil {
		rating.ID = uuid.New()
	}
	if rating.DataSource == "" {
		rating.DataSource = models.DataSourceHuman
	}
	now := time.Now()
	rating.CreatedAt = now
	rating.UpdatedAt = now

	fields, err := marshalFields(rating.SolutionFields)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO ratings (` + ratingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = scope.Conn.Exec(ctx, query,
		rating.ID,
		rating.UserID,
		rating.GoalID,
		rating.VariantID,
		rating.EffectivenessScore,
		fields,
		string(rating.DataSource),
		rating.CreatedAt,
		rating.UpdatedAt,
	)
	if err != nil {
		return mapError("create rating", err)
	}
	return nil
}

func (r *ratingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Rating, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	query := `SELECT ` + ratingColumns + ` FROM ratings WHERE id = $1`
	rating, err := scanRating(scope.Conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError("get rating", err)
	}
	return rating, nil
}

func (r *ratingRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return errNoScope
	}

	data, err := marshalFields(fields)
	if err != nil {
		return err
	}

	// RLS hides other users' rows from the UPDATE, which surfaces as not found.
	result, err := scope.Conn.Exec(ctx,
		`UPDATE ratings SET solution_fields = $2, updated_at = $3 WHERE id = $1`,
		id, data, time.Now())
	if err != nil {
		return mapError("update rating fields", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *ratingRepository) Delete(ctx context.Context, id uuid.UUID) (*models.Rating, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	query := `DELETE FROM ratings WHERE id = $1 RETURNING ` + ratingColumns
	rating, err := scanRating(scope.Conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError("delete rating", err)
	}
	return rating, nil
}

func (r *ratingRepository) ListForPair(ctx context.Context, goalID, variantID uuid.UUID) ([]*models.Rating, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	query := `
		SELECT ` + ratingColumns + `
		FROM ratings
		WHERE goal_id = $1 AND variant_id = $2
		ORDER BY created_at, id`

	rows, err := scope.Conn.Query(ctx, query, goalID, variantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings: %w", err)
	}
	defer rows.Close()

	return collectRatings(rows)
}

func (r *ratingRepository) ListAfter(ctx context.Context, afterID uuid.UUID, limit int) ([]*models.Rating, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, errNoScope
	}
	if limit <= 0 {
		limit = 500
	}

	query := `
		SELECT ` + ratingColumns + `
		FROM ratings
		WHERE id > $1
		ORDER BY id
		LIMIT $2`

	rows, err := scope.Conn.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to page ratings: %w", err)
	}
	defer rows.Close()

	return collectRatings(rows)
}

func collectRatings(rows pgx.Rows) ([]*models.Rating, error) {
	var ratings []*models.Rating
	for rows.Next() {
		rating, err := scanRating(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings = append(ratings, rating)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ratings: %w", err)
	}
	return ratings, nil
}

func scanRating(row pgx.Row) (*models.Rating, error) {
	var rating models.Rating
	var fields []byte
	var source string

	err := row.Scan(
		&rating.ID,
		&rating.UserID,
		&rating.GoalID,
		&rating.VariantID,
		&rating.EffectivenessScore,
		&fields,
		&source,
		&rating.CreatedAt,
		&rating.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rating.DataSource = models.DataSource(source)
	rating.SolutionFields = map[string]any{}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &rating.SolutionFields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal solution_fields: %w", err)
		}
	}
	return &rating, nil
}

func marshalFields(fields map[string]any) ([]byte, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal solution_fields: %w", err)
	}
	return data, nil
}
