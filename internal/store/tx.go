package store

import (
	"context"
	"fmt"

	"dirconsole/internal/core"
)

// WithTx runs fn against a transaction-bound view of the store. The
// transaction commits when fn returns nil and rolls back otherwise, so a
// multi-row write either becomes fully visible or leaves no trace. Nested
// calls reuse the enclosing transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx core.Store) error) error {
	if s.sqlDB == nil {
		return fn(s)
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Store{db: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
