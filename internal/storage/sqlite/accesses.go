package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ai-town/ai-town-cn/internal/storage"
	"github.com/ai-town/ai-town-cn/pkg/types"
)

// RecordAccesses appends one access row per memory ID in a single transaction.
func (s *Store) RecordAccesses(ctx context.Context, memoryIDs []string, at time.Time) error {
	if len(memoryIDs) == 0 {
		return nil
	}
	if at.IsZero() {
		at = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin record accesses: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO memory_accesses (id, memory_id, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare access insert: %w", err)
	}
	defer stmt.Close()

	stamp := toUnix(at)
	for _, id := range memoryIDs {
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), id, stamp); err != nil {
			return fmt.Errorf("sqlite: record access for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit accesses: %w", err)
	}
	return nil
}

// LastAccess returns the newest access row for memoryID.
func (s *Store) LastAccess(ctx context.Context, memoryID string) (*types.MemoryAccess, error) {
	var (
		access    types.MemoryAccess
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, memory_id, created_at
		FROM memory_accesses
		WHERE memory_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, memoryID).Scan(&access.ID, &access.MemoryID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: last access: %w", err)
	}
	access.CreatedAt = fromUnix(createdAt)
	return &access, nil
}
