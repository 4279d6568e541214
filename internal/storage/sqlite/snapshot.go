package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
)

// Snapshot writes a consistent copy of the database to destPath and checks
// its integrity. VACUUM INTO sees a single point in time even while WAL
// frames are pending. destPath must not exist.
func (s *Store) Snapshot(ctx context.Context, destPath string) error {
	if destPath == "" {
		return fmt.Errorf("sqlite: snapshot path is required")
	}
	if fileExists(destPath) {
		return fmt.Errorf("sqlite: snapshot target %s already exists", destPath)
	}

	quoted := strings.ReplaceAll(destPath, "'", "''")
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO '"+quoted+"'"); err != nil {
		return fmt.Errorf("sqlite: snapshot to %s: %w", destPath, err)
	}

	if err := verifySnapshot(ctx, destPath); err != nil {
		_ = os.Remove(destPath)
		return err
	}
	s.logger.Info("sqlite snapshot written", "path", destPath)
	return nil
}

// verifySnapshot runs PRAGMA integrity_check on the file at path.
func verifySnapshot(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("sqlite: open snapshot %s: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("sqlite: integrity check of %s: %w", path, err)
	}
	if result != "ok" {
		return fmt.Errorf("sqlite: snapshot %s failed integrity check: %s", path, result)
	}
	return nil
}
