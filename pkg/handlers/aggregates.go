package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/wwfm-inc/wwfm-engine/pkg/services"
)

// AggregatesHandler serves pair summaries and manual recomputes.
type AggregatesHandler struct {
	ratingService      services.RatingService
	aggregationService services.AggregationService
	logger             *zap.Logger
}

// NewAggregatesHandler creates a new aggregates handler.
func NewAggregatesHandler(ratingService services.RatingService, aggregationService services.AggregationService, logger *zap.Logger) *AggregatesHandler {
	return &AggregatesHandler{
		ratingService:      ratingService,
		aggregationService: aggregationService,
		logger:             logger,
	}
}

// RegisterRoutes registers the aggregates handler's routes on the given mux.
func (h *AggregatesHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	base := "/api/goals/{gid}/variants/{vid}"

	mux.HandleFunc("GET "+base+"/summary", scope(h.GetSummary))
	mux.HandleFunc("POST "+base+"/recompute", scope(h.Recompute))
}

// GetSummary handles GET /api/goals/{gid}/variants/{vid}/summary?top=N
func (h *AggregatesHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	goalID, variantID, ok := ParseGoalAndVariantIDs(w, r, h.logger)
	if !ok {
		return
	}
	top, ok := parseOptionalInt(w, r, "top", h.logger)
	if !ok {
		return
	}

	summary, err := h.ratingService.GetSummary(r.Context(), goalID, variantID, top)
	if err != nil {
		writeServiceError(w, err, "get_summary_failed", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: summary}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Recompute handles POST /api/goals/{gid}/variants/{vid}/recompute.
// With ?dry_run=true it reports what would be written without writing.
func (h *AggregatesHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	goalID, variantID, ok := ParseGoalAndVariantIDs(w, r, h.logger)
	if !ok {
		return
	}

	var (
		result *services.RecomputeResult
		err    error
	)
	if r.URL.Query().Get("dry_run") == "true" {
		result, err = h.aggregationService.Preview(r.Context(), goalID, variantID)
	} else {
		result, err = h.aggregationService.Recompute(r.Context(), goalID, variantID, services.TriggerManual)
	}
	if err != nil {
		writeServiceError(w, err, "recompute_failed", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
