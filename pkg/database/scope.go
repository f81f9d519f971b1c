package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

// ScopeKey is the context key for the request-scoped database connection.
const ScopeKey contextKey = "dbScope"

// Scope wraps a pooled connection for the lifetime of one request or job.
// When UserID is set the connection carries app.current_user_id, which the
// ratings row-level security policy uses to restrict writes to the owner.
// A Scope without a user is a system scope (recomputes, moderation, tools).
type Scope struct {
	Conn   *pgxpool.Conn
	UserID uuid.UUID
}

// HasUser returns true when the scope acts on behalf of a specific user.
func (s *Scope) HasUser() bool {
	return s.UserID != uuid.Nil
}

// Close resets the user setting and releases the connection to the pool.
// This MUST be called so one request's identity never leaks into the next.
func (s *Scope) Close() {
	if s.Conn == nil {
		return
	}
	if s.HasUser() {
		_, _ = s.Conn.Exec(context.Background(), "RESET app.current_user_id")
	}
	s.Conn.Release()
}

// WithUser acquires a connection and sets app.current_user_id for RLS.
// The returned Scope MUST be closed with defer scope.Close().
func (db *DB) WithUser(ctx context.Context, userID uuid.UUID) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	_, err = conn.Exec(ctx, "SELECT set_config('app.current_user_id', $1, false)", userID.String())
	if err != nil {
		conn.Release()
		return nil, err
	}

	return &Scope{Conn: conn, UserID: userID}, nil
}

// WithoutUser acquires a connection with no user context.
// The returned Scope MUST be closed with defer scope.Close().
func (db *DB) WithoutUser(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Scope{Conn: conn}, nil
}

// GetScope retrieves the scoped database connection from context.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(ScopeKey).(*Scope)
	return scope, ok
}

// SetScope stores the scoped database connection in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// SystemContext returns a context carrying a system scope, for work that
// runs outside an HTTP request. The cleanup function must be called.
func (db *DB) SystemContext(ctx context.Context) (context.Context, func(), error) {
	scope, err := db.WithoutUser(ctx)
	if err != nil {
		return nil, nil, err
	}
	return SetScope(ctx, scope), scope.Close, nil
}
