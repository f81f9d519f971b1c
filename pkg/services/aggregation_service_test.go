package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wwfm-inc/wwfm-engine/pkg/apperrors"
	"github.com/wwfm-inc/wwfm-engine/pkg/categories"
	"github.com/wwfm-inc/wwfm-engine/pkg/config"
	"github.com/wwfm-inc/wwfm-engine/pkg/models"
	"github.com/wwfm-inc/wwfm-engine/pkg/retry"
)

type aggregationFixture struct {
	svc       *aggregationService
	solutions *mockSolutionRepo
	ratings   *mockRatingRepo
	links     *mockGoalLinkRepo
	cache     *mockSummaryCache
	goalID    uuid.UUID
	variantID uuid.UUID
}

func testAggregationConfig() config.AggregationConfig {
	return config.AggregationConfig{
		TransitionThreshold: 3,
		SummaryTopN:         3,
		SummaryCacheTTL:     time.Minute,
		RetryAttempts:       3,
	}
}

func newAggregationFixture(t *testing.T) *aggregationFixture {
	t.Helper()
	f := &aggregationFixture{
		solutions: newMockSolutionRepo(),
		ratings:   &mockRatingRepo{},
		links:     newMockGoalLinkRepo(),
		cache:     newMockSummaryCache(),
		goalID:    uuid.New(),
	}
	f.variantID = f.solutions.addVariant(categories.Category("medications"))

	svc := NewAggregationService(f.solutions, f.ratings, f.links, f.cache, testAggregationConfig(), zap.NewNop())
	f.svc = svc.(*aggregationService)
	f.svc.inTx = passthroughTx
	f.svc.now = func() time.Time { return planNow }
	f.svc.retryConfig = &retry.Config{
		MaxRetries:       3,
		InitialDelay:     time.Millisecond,
		MaxDelay:         time.Millisecond,
		Multiplier:       1,
		MaxSameErrorType: 5,
	}
	return f
}

func (f *aggregationFixture) addRating(t *testing.T, source models.DataSource, score int, frequency string) *models.Rating {
	t.Helper()
	r := rating(source, score, frequency)
	r.GoalID = f.goalID
	r.VariantID = f.variantID
	require.NoError(t, f.ratings.Create(context.Background(), r))
	return r
}

func TestAggregationService_Recompute_CreatesLink(t *testing.T) {
	f := newAggregationFixture(t)
	f.addRating(t, models.DataSourceAI, 4, "Daily")
	f.addRating(t, models.DataSourceAI, 5, "Weekly")

	result, err := f.svc.Recompute(context.Background(), f.goalID, f.variantID, TriggerRatingCreated)
	require.NoError(t, err)

	assert.False(t, result.Transitioned)
	assert.True(t, result.Changed())
	assert.Equal(t, 2, result.Link.RatingCount)
	assert.Equal(t, 4.5, result.Link.AvgEffectiveness)

	stored, err := f.links.Get(context.Background(), f.goalID, f.variantID)
	require.NoError(t, err)
	assert.Equal(t, result.Link.AggregatedFields, stored.AggregatedFields)
	assert.Equal(t, []models.PairKey{{GoalID: f.goalID, VariantID: f.variantID}}, f.cache.invalidated)
}

func TestAggregationService_Recompute_TransitionScenario(t *testing.T) {
	f := newAggregationFixture(t)
	ctx := context.Background()

	f.addRating(t, models.DataSourceAI, 5, "Daily")
	f.addRating(t, models.DataSourceHuman, 2, "Weekly")
	result, err := f.svc.Recompute(ctx, f.goalID, f.variantID, TriggerRatingCreated)
	require.NoError(t, err)
	assert.Equal(t, models.DisplayModeAI, result.Link.DisplayMode)

	f.addRating(t, models.DataSourceHuman, 3, "Weekly")
	result, err = f.svc.Recompute(ctx, f.goalID, f.variantID, TriggerRatingCreated)
	require.NoError(t, err)
	assert.False(t, result.Transitioned, "two human ratings stay in AI mode")
	preTransition := result.Link.AggregatedFields

	f.addRating(t, models.DataSourceHuman, 4, "Monthly")
	result, err = f.svc.Recompute(ctx, f.goalID, f.variantID, TriggerRatingCreated)
	require.NoError(t, err)
	require.True(t, result.Transitioned)

	stored, err := f.links.Get(ctx, f.goalID, f.variantID)
	require.NoError(t, err)
	assert.Equal(t, models.DisplayModeHuman, stored.DisplayMode)
	assert.Equal(t, preTransition, stored.AISnapshot)
	assert.Equal(t, 3, stored.HumanRatingCount)
	freq, _ := stored.AggregatedFields.Get("frequency")
	assert.Equal(t, 3, freq.TotalReports)

	// A fourth human rating is an ordinary recompute.
	f.addRating(t, models.DataSourceHuman, 4, "Monthly")
	result, err = f.svc.Recompute(ctx, f.goalID, f.variantID, TriggerRatingCreated)
	require.NoError(t, err)
	assert.False(t, result.Transitioned)
	assert.Equal(t, preTransition, result.Link.AISnapshot)
}

func TestAggregationService_Recompute_DeleteDoesNotRevert(t *testing.T) {
	f := newAggregationFixture(t)
	ctx := context.Background()

	var humans []*models.Rating
	for i := 0; i < 3; i++ {
		humans = append(humans, f.addRating(t, models.DataSourceHuman, 3, "Daily"))
	}
	_, err := f.svc.Recompute(ctx, f.goalID, f.variantID, TriggerRatingCreated)
	require.NoError(t, err)

	_, err = f.ratings.Delete(ctx, humans[0].ID)
	require.NoError(t, err)
	result, err := f.svc.Recompute(ctx, f.goalID, f.variantID, TriggerRatingDeleted)
	require.NoError(t, err)

	assert.Equal(t, models.DisplayModeHuman, result.Link.DisplayMode)
	assert.Equal(t, 2, result.Link.HumanRatingCount)
}

func TestAggregationService_Recompute_RetriesLostTransitionRace(t *testing.T) {
	f := newAggregationFixture(t)
	f.addRating(t, models.DataSourceHuman, 3, "Daily")
	f.links.conflicts = 2

	result, err := f.svc.Recompute(context.Background(), f.goalID, f.variantID, TriggerRatingCreated)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Link.HumanRatingCount)
	assert.Equal(t, 1, f.links.saves)
}

func TestAggregationService_Recompute_ConcurrentTransitionWins(t *testing.T) {
	f := newAggregationFixture(t)
	for i := 0; i < 3; i++ {
		f.addRating(t, models.DataSourceHuman, 3, "Daily")
	}

	// Another writer transitions the pair between our read and our write.
	var raced bool
	f.links.beforeSave = func(stored *models.GoalImplementationLink) {
		if raced {
			return
		}
		raced = true
		ts := planNow.Add(-time.Second)
		stored.DisplayMode = models.DisplayModeHuman
		stored.TransitionedAt = &ts
		stored.AISnapshot = models.AggregatedFields{}
	}

	result, err := f.svc.Recompute(context.Background(), f.goalID, f.variantID, TriggerRatingCreated)
	require.NoError(t, err)

	assert.False(t, result.Transitioned, "retry sees the pair already in human mode")
	stored, err := f.links.Get(context.Background(), f.goalID, f.variantID)
	require.NoError(t, err)
	assert.Equal(t, planNow.Add(-time.Second), *stored.TransitionedAt)
}

func TestAggregationService_Recompute_GivesUpAfterRetries(t *testing.T) {
	f := newAggregationFixture(t)
	f.addRating(t, models.DataSourceHuman, 3, "Daily")
	f.links.conflicts = 100

	_, err := f.svc.Recompute(context.Background(), f.goalID, f.variantID, TriggerRatingCreated)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTransitionConflict))
	assert.Empty(t, f.cache.invalidated)
}

func TestAggregationService_Recompute_UnknownVariant(t *testing.T) {
	f := newAggregationFixture(t)

	_, err := f.svc.Recompute(context.Background(), f.goalID, uuid.New(), TriggerManual)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestAggregationService_Recompute_UnknownCategory(t *testing.T) {
	f := newAggregationFixture(t)
	variantID := f.solutions.addVariant(categories.Category("astrology"))

	_, err := f.svc.Recompute(context.Background(), f.goalID, variantID, TriggerManual)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownCategory))
}

func TestAggregationService_Recompute_ReportsFieldErrors(t *testing.T) {
	f := newAggregationFixture(t)
	f.addRating(t, models.DataSourceAI, 3, "Daily")
	bad := f.addRating(t, models.DataSourceAI, 3, "Daily")
	bad.SolutionFields["side_effects"] = map[string]any{"bad": 1}

	result, err := f.svc.Recompute(context.Background(), f.goalID, f.variantID, TriggerManual)
	require.NoError(t, err)
	require.Contains(t, result.FieldErrors, "side_effects")
	_, ok := result.Link.AggregatedFields.Get("frequency")
	assert.True(t, ok)
}

func TestAggregationService_Recompute_ListError(t *testing.T) {
	f := newAggregationFixture(t)
	f.ratings.listErr = errors.New("connection reset")

	_, err := f.svc.Recompute(context.Background(), f.goalID, f.variantID, TriggerManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load ratings")
}

func TestAggregationService_Preview_DoesNotWrite(t *testing.T) {
	f := newAggregationFixture(t)
	for i := 0; i < 3; i++ {
		f.addRating(t, models.DataSourceHuman, 5, "Daily")
	}

	result, err := f.svc.Preview(context.Background(), f.goalID, f.variantID)
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.True(t, result.Transitioned)
	assert.Equal(t, 0, f.links.saves)
	assert.Empty(t, f.cache.invalidated)

	// The mock has no rollback, so the locked row exists but is untouched.
	stored, err := f.links.Get(context.Background(), f.goalID, f.variantID)
	require.NoError(t, err)
	assert.Equal(t, models.DisplayModeAI, stored.DisplayMode)
}

func TestRecomputeResult_Changed(t *testing.T) {
	base := newLink()
	same := *base

	assert.True(t, (&RecomputeResult{Link: base}).Changed())
	assert.False(t, (&RecomputeResult{Link: &same, Previous: base}).Changed())

	moved := *base
	moved.RatingCount = 1
	assert.True(t, (&RecomputeResult{Link: &moved, Previous: base}).Changed())
}
