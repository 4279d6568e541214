package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/ai-town/ai-town-cn/internal/storage"
)

// VectorIndex implements storage.VectorIndex on PostgreSQL with pgvector.
// Similarity is cosine similarity, 1 - cosine distance.
type VectorIndex struct {
	db *sql.DB
}

var _ storage.VectorIndex = (*VectorIndex)(nil)

// NewVectorIndex connects to dsn and applies the schema. The pgvector
// extension must be installable on the server.
func NewVectorIndex(dsn string) (*VectorIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to apply schema: %w", err)
	}

	return &VectorIndex{db: db}, nil
}

// Close closes the connection pool.
func (v *VectorIndex) Close() error {
	return v.db.Close()
}

// Upsert inserts or replaces items of namespace in one transaction.
func (v *VectorIndex) Upsert(ctx context.Context, namespace string, items []storage.VectorItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vector_items (namespace, id, metadata, embedding, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, now())
		ON CONFLICT (namespace, id) DO UPDATE
		SET metadata = EXCLUDED.metadata,
		    embedding = EXCLUDED.embedding,
		    updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return fmt.Errorf("postgres: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		if item.ID == "" || len(item.Vector) == 0 {
			return fmt.Errorf("%w: vector item needs an ID and a vector", storage.ErrInvalidInput)
		}
		meta, err := json.Marshal(metadataOrEmpty(item.Metadata))
		if err != nil {
			return fmt.Errorf("postgres: marshal metadata for %s: %w", item.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, namespace, item.ID, string(meta), pgvector.NewVector(item.Vector)); err != nil {
			return fmt.Errorf("postgres: upsert %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit upsert: %w", err)
	}
	return nil
}

// Query returns up to topK items of namespace matching filter, most similar
// first. Items of a different dimension than vector are skipped.
func (v *VectorIndex) Query(ctx context.Context, namespace string, vector []float32, filter map[string]string, topK int) ([]storage.VectorMatch, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector cannot be empty", storage.ErrInvalidInput)
	}
	filterJSON, err := json.Marshal(metadataOrEmpty(filter))
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal filter: %w", err)
	}

	rows, err := v.db.QueryContext(ctx, `
		SELECT id, 1 - (embedding <=> $1) AS score
		FROM vector_items
		WHERE namespace = $2
		  AND metadata @> $3::jsonb
		  AND vector_dims(embedding) = $4
		ORDER BY embedding <=> $1
		LIMIT $5
	`, pgvector.NewVector(vector), namespace, string(filterJSON), len(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector query: %w", err)
	}
	defer rows.Close()

	var matches []storage.VectorMatch
	for rows.Next() {
		var m storage.VectorMatch
		if err := rows.Scan(&m.ID, &m.Score); err != nil {
			return nil, fmt.Errorf("postgres: scan vector match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: vector query: %w", err)
	}
	return matches, nil
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
