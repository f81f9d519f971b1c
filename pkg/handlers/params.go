package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseGoalID extracts and validates the goal ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: gid
func ParseGoalID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "gid", "invalid_goal_id", "Invalid goal ID format", logger)
}

// ParseVariantID extracts and validates the solution variant ID.
// Expects path parameter: vid
func ParseVariantID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "vid", "invalid_variant_id", "Invalid variant ID format", logger)
}

// ParseRatingID extracts and validates the rating ID.
// Expects path parameter: rid
func ParseRatingID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "rid", "invalid_rating_id", "Invalid rating ID format", logger)
}

// ParseGoalAndVariantIDs extracts both halves of a goal-solution pair.
// Expects path parameters: gid, vid
func ParseGoalAndVariantIDs(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, uuid.UUID, bool) {
	goalID, ok := ParseGoalID(w, r, logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	variantID, ok := ParseVariantID(w, r, logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	return goalID, variantID, true
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

// parseOptionalInt reads a non-negative integer query parameter. Missing
// means 0; anything else that does not parse writes a 400.
func parseOptionalInt(w http.ResponseWriter, r *http.Request, name string, logger *zap.Logger) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return 0, false
	}
	return n, true
}
