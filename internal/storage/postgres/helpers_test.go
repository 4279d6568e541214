package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from the vector table.
func (v *VectorIndex) TruncateForTest(ctx context.Context) error {
	if _, err := v.db.ExecContext(ctx, "TRUNCATE TABLE vector_items"); err != nil {
		return fmt.Errorf("postgres: failed to truncate vector_items: %w", err)
	}
	return nil
}
