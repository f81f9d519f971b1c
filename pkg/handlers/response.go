package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/wwfm-inc/wwfm-engine/pkg/apperrors"
	"github.com/wwfm-inc/wwfm-engine/pkg/normalizer"
)

// ApiResponse is the standard JSON envelope.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ValidationErrorResponse lists every rejected field of a submission.
type ValidationErrorResponse struct {
	Error   string                  `json:"error"`
	Message string                  `json:"message"`
	Fields  []normalizer.FieldError `json:"fields"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeServiceError maps a service error to a status code and writes it.
// Unexpected errors are logged and reported as 500 with errorCode.
func writeServiceError(w http.ResponseWriter, err error, errorCode string, logger *zap.Logger) {
	var verr *normalizer.ValidationError
	var writeErr error

	switch {
	case errors.As(err, &verr):
		writeErr = WriteJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:   "validation_failed",
			Message: verr.Error(),
			Fields:  verr.Errors,
		})
	case errors.Is(err, apperrors.ErrInvalidInput):
		writeErr = ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		writeErr = ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		writeErr = ErrorResponse(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, apperrors.ErrForbidden):
		writeErr = ErrorResponse(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, apperrors.ErrTransitionConflict):
		writeErr = ErrorResponse(w, http.StatusServiceUnavailable, "aggregate_busy", "Aggregate is being updated, retry shortly")
	default:
		logger.Error("Request failed", zap.String("error_code", errorCode), zap.Error(err))
		writeErr = ErrorResponse(w, http.StatusInternalServerError, errorCode, "Internal server error")
	}

	if writeErr != nil {
		logger.Error("Failed to write error response", zap.Error(writeErr))
	}
}

// MaxRequestBodyBytes caps JSON request bodies. A full rating form is a few
// kilobytes.
const MaxRequestBodyBytes = 64 << 10

// decodeJSON decodes the request body into v, rejecting unknown top-level
// keys and bodies over MaxRequestBodyBytes. On failure it writes a 400 or 413
// and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, logger *zap.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		var writeErr error
		if errors.As(err, &tooLarge) {
			writeErr = ErrorResponse(w, http.StatusRequestEntityTooLarge, "request_too_large",
				fmt.Sprintf("Request body must be at most %d bytes", tooLarge.Limit))
		} else {
			writeErr = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		}
		if writeErr != nil {
			logger.Error("Failed to write error response", zap.Error(writeErr))
		}
		return false
	}
	return true
}
