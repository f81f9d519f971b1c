package database

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserIDHeader carries the authenticated user's ID, set by the gateway in
// front of the engine. Requests without it run in a system scope.
const UserIDHeader = "X-User-ID"

// WithScope creates middleware that sets up a request-scoped DB connection.
// The connection is automatically released after the handler returns.
func WithScope(db *DB, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			var (
				scope *Scope
				err   error
			)

			if raw := r.Header.Get(UserIDHeader); raw != "" {
				userID, parseErr := uuid.Parse(raw)
				if parseErr != nil {
					logger.Debug("Invalid user ID header",
						zap.String("user_id", raw),
						zap.Error(parseErr))
					writeError(w, http.StatusBadRequest, "invalid_user_id", "Invalid user ID format")
					return
				}
				scope, err = db.WithUser(r.Context(), userID)
			} else {
				scope, err = db.WithoutUser(r.Context())
			}
			if err != nil {
				logger.Error("Failed to acquire database connection", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "database_error", "Database connection error")
				return
			}
			defer scope.Close()

			next(w, r.WithContext(SetScope(r.Context(), scope)))
		}
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
