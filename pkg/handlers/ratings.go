package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wwfm-inc/wwfm-engine/pkg/database"
	"github.com/wwfm-inc/wwfm-engine/pkg/models"
	"github.com/wwfm-inc/wwfm-engine/pkg/services"
)

// ScopeMiddleware attaches a database scope to the request context.
type ScopeMiddleware func(http.HandlerFunc) http.HandlerFunc

// SubmitRatingBody is the body of a rating submission. The user comes from
// the request scope, the pair from the path. DataSource may only be "human".
type SubmitRatingBody struct {
	EffectivenessScore int               `json:"effectiveness_score"`
	SolutionFields     map[string]any    `json:"solution_fields"`
	DataSource         models.DataSource `json:"data_source,omitempty"`
}

// UpdateFieldsBody carries supplementary fields for an existing rating.
type UpdateFieldsBody struct {
	SolutionFields map[string]any `json:"solution_fields"`
}

// RatingsHandler handles rating submission, field updates and moderation.
type RatingsHandler struct {
	ratingService services.RatingService
	logger        *zap.Logger
}

// NewRatingsHandler creates a new ratings handler.
func NewRatingsHandler(ratingService services.RatingService, logger *zap.Logger) *RatingsHandler {
	return &RatingsHandler{
		ratingService: ratingService,
		logger:        logger,
	}
}

// RegisterRoutes registers the ratings handler's routes on the given mux.
func (h *RatingsHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	mux.HandleFunc("POST /api/goals/{gid}/variants/{vid}/ratings", scope(h.Submit))
	mux.HandleFunc("PATCH /api/ratings/{rid}/fields", scope(h.UpdateFields))
	mux.HandleFunc("DELETE /api/ratings/{rid}", scope(h.Delete))
}

// Submit handles POST /api/goals/{gid}/variants/{vid}/ratings
func (h *RatingsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	goalID, variantID, ok := ParseGoalAndVariantIDs(w, r, h.logger)
	if !ok {
		return
	}

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var body SubmitRatingBody
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}
	// AI and test ratings come from system jobs, never from a user request.
	if body.DataSource != "" && body.DataSource != models.DataSourceHuman {
		if err := ErrorResponse(w, http.StatusForbidden, "forbidden_data_source",
			"Only human ratings can be submitted on behalf of a user"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.ratingService.Submit(r.Context(), &services.SubmitRatingRequest{
		UserID:             userID,
		GoalID:             goalID,
		VariantID:          variantID,
		EffectivenessScore: body.EffectivenessScore,
		SolutionFields:     body.SolutionFields,
		DataSource:         body.DataSource,
	})
	if err != nil {
		writeServiceError(w, err, "submit_rating_failed", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// UpdateFields handles PATCH /api/ratings/{rid}/fields
func (h *RatingsHandler) UpdateFields(w http.ResponseWriter, r *http.Request) {
	ratingID, ok := ParseRatingID(w, r, h.logger)
	if !ok {
		return
	}
	if _, ok := h.requireUser(w, r); !ok {
		return
	}

	var body UpdateFieldsBody
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}

	result, err := h.ratingService.UpdateFields(r.Context(), ratingID, body.SolutionFields)
	if err != nil {
		writeServiceError(w, err, "update_rating_failed", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/ratings/{rid}. Without a user header this runs
// as a moderation delete on a system scope.
func (h *RatingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ratingID, ok := ParseRatingID(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.ratingService.Delete(r.Context(), ratingID)
	if err != nil {
		writeServiceError(w, err, "delete_rating_failed", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    result,
		Message: "Rating deleted",
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// requireUser returns the scope's user or writes a 401.
func (h *RatingsHandler) requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	scope, ok := database.GetScope(r.Context())
	if !ok || !scope.HasUser() {
		if err := ErrorResponse(w, http.StatusUnauthorized, "missing_user", "Header "+database.UserIDHeader+" is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return scope.UserID, true
}
