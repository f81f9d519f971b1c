package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wwfm-inc/wwfm-engine/pkg/apperrors"
	"github.com/wwfm-inc/wwfm-engine/pkg/database"
	"github.com/wwfm-inc/wwfm-engine/pkg/models"
)

// GoalRepository defines data access for goals.
type GoalRepository interface {
	Create(ctx context.Context, goal *models.Goal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Goal, error)
	ListApproved(ctx context.Context) ([]*models.Goal, error)
	Approve(ctx context.Context, id uuid.UUID) error
}

type goalRepository struct{}

// NewGoalRepository creates a new goal repository.
func NewGoalRepository() GoalRepository {
	return &goalRepository{}
}

var _ GoalRepository = (*goalRepository)(nil)

const goalColumns = `id, title, category_hint, is_approved, created_at, updated_at`

func (r *goalRepository) Create(ctx context.Context, goal *models.Goal) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return errNoScope
	}

	if goal.ID == uuid.Nil {
		goal.ID = uuid.New()
	}
	now := time.Now()
	goal.CreatedAt = now
	goal.UpdatedAt = now

	query := `
		INSERT INTO goals (id, title, category_hint, is_approved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := scope.Conn.Exec(ctx, query,
		goal.ID, goal.Title, goal.CategoryHint, goal.IsApproved, goal.CreatedAt, goal.UpdatedAt)
	if err != nil {
		return mapError("create goal", err)
	}
	return nil
}

func (r *goalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Goal, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	query := `SELECT ` + goalColumns + ` FROM goals WHERE id = $1`

	var g models.Goal
	err := scope.Conn.QueryRow(ctx, query, id).Scan(
		&g.ID, &g.Title, &g.CategoryHint, &g.IsApproved, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, mapError("get goal", err)
	}
	return &g, nil
}

func (r *goalRepository) ListApproved(ctx context.Context) ([]*models.Goal, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, errNoScope
	}

	query := `SELECT ` + goalColumns + ` FROM goals WHERE is_approved ORDER BY title`

	rows, err := scope.Conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var goals []*models.Goal
	for rows.Next() {
		var g models.Goal
		if err := rows.Scan(&g.ID, &g.Title, &g.CategoryHint, &g.IsApproved, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		goals = append(goals, &g)
	}
	return goals, rows.Err()
}

func (r *goalRepository) Approve(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return errNoScope
	}

	result, err := scope.Conn.Exec(ctx,
		`UPDATE goals SET is_approved = true, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return mapError("approve goal", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
