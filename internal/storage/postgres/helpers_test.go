// Package postgres provides a PostgreSQL implementation of the storage
// interfaces. This file contains test helpers only available during testing.
package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from the graph tables. It is intended
// for use in tests only. The method is defined in the postgres package
// (not the _test package) so it has access to the unexported db field.
func (s *Store) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE TABLE entities, relationships, documents RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate graph tables: %w", err)
	}
	return nil
}
