package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/wwfm-inc/wwfm-engine/pkg/apperrors"
	"github.com/wwfm-inc/wwfm-engine/pkg/cache"
	"github.com/wwfm-inc/wwfm-engine/pkg/categories"
	"github.com/wwfm-inc/wwfm-engine/pkg/models"
)

// passthroughTx runs fn without a database transaction.
func passthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// mockGoalRepo implements repositories.GoalRepository for testing.
type mockGoalRepo struct {
	goals  map[uuid.UUID]*models.Goal
	getErr error
}

func newMockGoalRepo(ids ...uuid.UUID) *mockGoalRepo {
	m := &mockGoalRepo{goals: make(map[uuid.UUID]*models.Goal)}
	for _, id := range ids {
		m.goals[id] = &models.Goal{ID: id, Title: "Goal", IsApproved: true}
	}
	return m
}

func (m *mockGoalRepo) Create(_ context.Context, goal *models.Goal) error {
	if goal.ID == uuid.Nil {
		goal.ID = uuid.New()
	}
	m.goals[goal.ID] = goal
	return nil
}

func (m *mockGoalRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Goal, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	g, ok := m.goals[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return g, nil
}

func (m *mockGoalRepo) ListApproved(_ context.Context) ([]*models.Goal, error) {
	var out []*models.Goal
	for _, g := range m.goals {
		if g.IsApproved {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *mockGoalRepo) Approve(_ context.Context, id uuid.UUID) error {
	g, ok := m.goals[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	g.IsApproved = true
	return nil
}

// mockSolutionRepo implements repositories.SolutionRepository for testing.
// Only variant-to-category resolution is backed by data.
type mockSolutionRepo struct {
	variantCategories map[uuid.UUID]categories.Category
}

func newMockSolutionRepo() *mockSolutionRepo {
	return &mockSolutionRepo{variantCategories: make(map[uuid.UUID]categories.Category)}
}

func (m *mockSolutionRepo) addVariant(category categories.Category) uuid.UUID {
	id := uuid.New()
	m.variantCategories[id] = category
	return id
}

func (m *mockSolutionRepo) Create(context.Context, *models.Solution) error { return nil }

func (m *mockSolutionRepo) GetByID(context.Context, uuid.UUID) (*models.Solution, error) {
	return nil, apperrors.ErrNotFound
}

func (m *mockSolutionRepo) CreateVariant(context.Context, *models.SolutionVariant) error { return nil }

func (m *mockSolutionRepo) GetVariant(_ context.Context, id uuid.UUID) (*models.SolutionVariant, error) {
	if _, ok := m.variantCategories[id]; !ok {
		return nil, apperrors.ErrNotFound
	}
	return &models.SolutionVariant{ID: id, VariantName: models.StandardVariantName, IsDefault: true}, nil
}

func (m *mockSolutionRepo) ListVariants(context.Context, uuid.UUID) ([]*models.SolutionVariant, error) {
	return nil, nil
}

func (m *mockSolutionRepo) GetCategoryForVariant(_ context.Context, variantID uuid.UUID) (categories.Category, error) {
	c, ok := m.variantCategories[variantID]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	return c, nil
}

// mockRatingRepo implements repositories.RatingRepository in memory,
// preserving insertion order like ORDER BY created_at, id.
type mockRatingRepo struct {
	mu        sync.Mutex
	ratings   []*models.Rating
	createErr error
	listErr   error
}

func (m *mockRatingRepo) Create(_ context.Context, rating *models.Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if rating.IsHuman() {
		for _, r := range m.ratings {
			if r.IsHuman() && r.UserID == rating.UserID && r.GoalID == rating.GoalID && r.VariantID == rating.VariantID {
				return fmt.Errorf("create rating: %w", apperrors.ErrConflict)
			}
		}
	}
	if rating.ID == uuid.Nil {
		rating.ID = uuid.New()
	}
	m.ratings = append(m.ratings, rating)
	return nil
}

func (m *mockRatingRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Rating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.ratings {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockRatingRepo) UpdateFields(_ context.Context, id uuid.UUID, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.ratings {
		if r.ID == id {
			r.SolutionFields = fields
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockRatingRepo) Delete(_ context.Context, id uuid.UUID) (*models.Rating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.ratings {
		if r.ID == id {
			m.ratings = append(m.ratings[:i], m.ratings[i+1:]...)
			return r, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockRatingRepo) ListForPair(_ context.Context, goalID, variantID uuid.UUID) ([]*models.Rating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Rating
	for _, r := range m.ratings {
		if r.GoalID == goalID && r.VariantID == variantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRatingRepo) ListAfter(_ context.Context, _ uuid.UUID, _ int) ([]*models.Rating, error) {
	return nil, nil
}

// mockGoalLinkRepo implements repositories.GoalLinkRepository in memory with
// the same compare-and-swap semantics as the SQL implementation.
type mockGoalLinkRepo struct {
	mu        sync.Mutex
	links     map[models.PairKey]*models.GoalImplementationLink
	saves     int
	conflicts int // SaveAggregate fails with a conflict this many times first

	// beforeSave runs before each save; tests use it to simulate another writer.
	beforeSave func(stored *models.GoalImplementationLink)
}

func newMockGoalLinkRepo() *mockGoalLinkRepo {
	return &mockGoalLinkRepo{links: make(map[models.PairKey]*models.GoalImplementationLink)}
}

func cloneLink(l *models.GoalImplementationLink) *models.GoalImplementationLink {
	cp := *l
	cp.AggregatedFields = l.AggregatedFields.Clone()
	cp.AISnapshot = l.AISnapshot.Clone()
	return &cp
}

func (m *mockGoalLinkRepo) Get(_ context.Context, goalID, variantID uuid.UUID) (*models.GoalImplementationLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[models.PairKey{GoalID: goalID, VariantID: variantID}]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneLink(l), nil
}

func (m *mockGoalLinkRepo) GetForUpdate(_ context.Context, goalID, variantID uuid.UUID) (*models.GoalImplementationLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := models.PairKey{GoalID: goalID, VariantID: variantID}
	l, ok := m.links[key]
	if !ok {
		l = &models.GoalImplementationLink{
			ID:               uuid.New(),
			GoalID:           goalID,
			VariantID:        variantID,
			DisplayMode:      models.DisplayModeAI,
			AggregatedFields: models.AggregatedFields{},
		}
		m.links[key] = l
	}
	return cloneLink(l), nil
}

func (m *mockGoalLinkRepo) SaveAggregate(_ context.Context, link *models.GoalImplementationLink, prevMode models.DisplayMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.links[link.Key()]
	if !ok {
		return apperrors.ErrNotFound
	}
	if m.beforeSave != nil {
		m.beforeSave(stored)
	}
	if m.conflicts > 0 {
		m.conflicts--
		return apperrors.RetryableError(apperrors.ErrTransitionConflict)
	}
	if stored.DisplayMode != prevMode {
		return apperrors.RetryableError(apperrors.ErrTransitionConflict)
	}
	if stored.DisplayMode == models.DisplayModeHuman && link.DisplayMode != models.DisplayModeHuman {
		return fmt.Errorf("display_mode cannot revert from human")
	}
	m.links[link.Key()] = cloneLink(link)
	m.saves++
	return nil
}

func (m *mockGoalLinkRepo) ListPairs(_ context.Context) ([]models.PairKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PairKey
	for k := range m.links {
		out = append(out, k)
	}
	return out, nil
}

// mockSummaryCache records calls and stores summaries in memory. Every
// Invalidate starts a new generation, like the Redis cache.
type mockSummaryCache struct {
	entries     map[string]*models.PairSummary
	generations map[models.PairKey]int
	invalidated []models.PairKey
	gets        int
	skipped     int
	// afterGet runs once per Get, after the read, to interleave writers.
	afterGet func(pair models.PairKey)
}

func newMockSummaryCache() *mockSummaryCache {
	return &mockSummaryCache{
		entries:     make(map[string]*models.PairSummary),
		generations: make(map[models.PairKey]int),
	}
}

func summaryKey(pair models.PairKey, limit int) string {
	return fmt.Sprintf("%s/%s/%d", pair.GoalID, pair.VariantID, limit)
}

func (m *mockSummaryCache) Get(_ context.Context, pair models.PairKey, limit int) (*models.PairSummary, cache.Generation, error) {
	m.gets++
	s := m.entries[summaryKey(pair, limit)]
	gen := cache.Generation(strconv.Itoa(m.generations[pair]))
	if m.afterGet != nil {
		m.afterGet(pair)
	}
	return s, gen, nil
}

func (m *mockSummaryCache) Set(_ context.Context, pair models.PairKey, limit int, gen cache.Generation, summary *models.PairSummary) (bool, error) {
	if gen != cache.Generation(strconv.Itoa(m.generations[pair])) {
		m.skipped++
		return false, nil
	}
	m.entries[summaryKey(pair, limit)] = summary
	return true, nil
}

func (m *mockSummaryCache) Invalidate(_ context.Context, pair models.PairKey) error {
	m.invalidated = append(m.invalidated, pair)
	m.generations[pair]++
	prefix := fmt.Sprintf("%s/%s/", pair.GoalID, pair.VariantID)
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}
