package database

import (
	"context"
	"fmt"
)

// TxFunc runs fn inside a transaction. Services take one so unit tests can
// substitute a pass-through.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

// InTx runs fn in a transaction on the scope's connection. Repositories keep
// using scope.Conn, so every statement fn issues joins the transaction.
// The transaction commits if fn returns nil and rolls back otherwise.
func InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	scope, ok := GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(ctx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
