package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/wwfm-inc/wwfm-engine/pkg/database"
	"github.com/wwfm-inc/wwfm-engine/pkg/models"
	"github.com/wwfm-inc/wwfm-engine/pkg/services"
)

// mockRatingService implements services.RatingService for handler tests.
type mockRatingService struct {
	submitReq    *services.SubmitRatingRequest
	updateID     uuid.UUID
	updateFields map[string]any
	deleteID     uuid.UUID
	summaryLimit int

	result  *services.RatingWriteResult
	summary *models.PairSummary
	err     error
}

func (m *mockRatingService) Submit(_ context.Context, req *services.SubmitRatingRequest) (*services.RatingWriteResult, error) {
	m.submitReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockRatingService) UpdateFields(_ context.Context, ratingID uuid.UUID, raw map[string]any) (*services.RatingWriteResult, error) {
	m.updateID = ratingID
	m.updateFields = raw
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockRatingService) Delete(_ context.Context, ratingID uuid.UUID) (*services.RatingWriteResult, error) {
	m.deleteID = ratingID
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockRatingService) GetSummary(_ context.Context, _, _ uuid.UUID, limit int) (*models.PairSummary, error) {
	m.summaryLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.summary, nil
}

// mockAggregationService implements services.AggregationService.
type mockAggregationService struct {
	recomputeCalls int
	previewCalls   int
	trigger        services.RecomputeTrigger
	result         *services.RecomputeResult
	err            error
}

func (m *mockAggregationService) Recompute(_ context.Context, _, _ uuid.UUID, trigger services.RecomputeTrigger) (*services.RecomputeResult, error) {
	m.recomputeCalls++
	m.trigger = trigger
	return m.result, m.err
}

func (m *mockAggregationService) Preview(context.Context, uuid.UUID, uuid.UUID) (*services.RecomputeResult, error) {
	m.previewCalls++
	return m.result, m.err
}

// fakeScope mimics database.WithScope without a pool: it reads the user
// header and stores a connection-less scope.
func fakeScope(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope := &database.Scope{}
		if raw := r.Header.Get(database.UserIDHeader); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				_ = ErrorResponse(w, http.StatusBadRequest, "invalid_user_id", "bad user")
				return
			}
			scope.UserID = id
		}
		next(w, r.WithContext(database.SetScope(r.Context(), scope)))
	}
}
