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

// GoalLinkRepository defines data access for goal implementation links, the
// per-pair aggregate rows.
type GoalLinkRepository interface {
	Get(ctx context.Context, goalID, variantID uuid.UUID) (*models.GoalImplementationLink, error)

	// GetForUpdate locks the pair's row for the rest of the current
	// transaction, inserting an empty ai-mode row first if none exists.
	GetForUpdate(ctx context.Context, goalID, variantID uuid.UUID) (*models.GoalImplementationLink, error)

	// SaveAggregate writes the link's aggregate state only if the stored
	// display mode still equals prevMode. Otherwise it returns a retryable
	// apperrors.ErrTransitionConflict and writes nothing.
	SaveAggregate(ctx context.Context, link *models.GoalImplementationLink, prevMode models.DisplayMode) error

	// ListPairs returns every pair that has a link or at least one rating.
	ListPairs(ctx context.Context) ([]models.PairKey, error)
}

type goalLinkRepository struct{}

// NewGoalLinkRepository creates a new goal link repository.
func NewGoalLinkRepository() GoalLinkRepository {
	return &goalLinkRepository{}
}

var _ GoalLinkRepository = (*goalLinkRepository)(nil)

const goalLinkColumns = `id, goal_id, variant_id, avg_effectiveness, rating_count, human_rating_count,
	aggregated_fields, display_mode, ai_snapshot, transitioned_at, created_at, updated_at`

func (r *goalLinkRepository) Get(ctx context.Context, goalID, variantID uuid.UUID) (*models.GoalImplementationLink, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	query := `SELECT ` + goalLinkColumns + ` FROM goal_implementation_links WHERE goal_id = $1 AND variant_id = $2`
	link, err := scanGoalLink(scope.Conn.QueryRow(ctx, query, goalID, variantID))
	if err != nil {
		return nil, mapError("get goal link", err)
	}
	return link, nil
}

func (r *goalLinkRepository) GetForUpdate(ctx context.Context, goalID, variantID uuid.UUID) (*models.GoalImplementationLink, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO goal_implementation_links (goal_id, variant_id, display_mode)
		VALUES ($1, $2, 'ai')
		ON CONFLICT (goal_id, variant_id) DO NOTHING`,
		goalID, variantID)
	if err != nil {
		return nil, mapError("ensure goal link", err)
	}

	query := `SELECT ` + goalLinkColumns + ` FROM goal_implementation_links
		WHERE goal_id = $1 AND variant_id = $2
		FOR UPDATE`
	link, err := scanGoalLink(scope.Conn.QueryRow(ctx, query, goalID, variantID))
	if err != nil {
		return nil, mapError("lock goal link", err)
	}
	return link, nil
}

func (r *goalLinkRepository) SaveAggregate(ctx context.Context, link *models.GoalImplementationLink, prevMode models.DisplayMode) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return errNoScope
	}

	fields, err := marshalAggregate(link.AggregatedFields)
	if err != nil {
		return err
	}
	var snapshot []byte
	if link.AISnapshot != nil {
		if snapshot, err = marshalAggregate(link.AISnapshot); err != nil {
			return err
		}
	}

	link.UpdatedAt = time.Now()

	query := `
		UPDATE goal_implementation_links
		SET avg_effectiveness = $3,
		    rating_count = $4,
		    human_rating_count = $5,
		    aggregated_fields = $6,
		    display_mode = $7,
		    ai_snapshot = $8,
		    transitioned_at = $9,
		    updated_at = $10
		WHERE id = $1 AND display_mode = $2`

	result, err := scope.Conn.Exec(ctx, query,
		link.ID,
		string(prevMode),
		link.AvgEffectiveness,
		link.RatingCount,
		link.HumanRatingCount,
		fields,
		string(link.DisplayMode),
		snapshot,
		link.TransitionedAt,
		link.UpdatedAt,
	)
	if err != nil {
		return mapError("save goal link aggregate", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.RetryableError(apperrors.ErrTransitionConflict)
	}
	return nil
}

func (r *goalLinkRepository) ListPairs(ctx context.Context) ([]models.PairKey, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	query := `
		SELECT goal_id, variant_id FROM goal_implementation_links
		UNION
		SELECT DISTINCT goal_id, variant_id FROM ratings
		ORDER BY goal_id, variant_id`

	rows, err := scope.Conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pairs: %w", err)
	}
	defer rows.Close()

	var pairs []models.PairKey
	for rows.Next() {
		var p models.PairKey
		if err := rows.Scan(&p.GoalID, &p.VariantID); err != nil {
			return nil, fmt.Errorf("failed to scan pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

func scanGoalLink(row pgx.Row) (*models.GoalImplementationLink, error) {
	var link models.GoalImplementationLink
	var fields, snapshot []byte
	var mode string

	err := row.Scan(
		&link.ID,
		&link.GoalID,
		&link.VariantID,
		&link.AvgEffectiveness,
		&link.RatingCount,
		&link.HumanRatingCount,
		&fields,
		&mode,
		&snapshot,
		&link.TransitionedAt,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	link.DisplayMode = models.DisplayMode(mode)
	link.AggregatedFields = models.AggregatedFields{}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &link.AggregatedFields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal aggregated_fields: %w", err)
		}
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &link.AISnapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ai_snapshot: %w", err)
		}
	}
	return &link, nil
}

func marshalAggregate(fields models.AggregatedFields) ([]byte, error) {
	if fields == nil {
		fields = models.AggregatedFields{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal aggregated fields: %w", err)
	}
	return data, nil
}
