package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/ai-town/ai-town-cn/internal/storage"
	"github.com/ai-town/ai-town-cn/pkg/types"
)

// EmbeddingByText returns the most recent embedding whose text equals text.
func (s *Store) EmbeddingByText(ctx context.Context, text string) (*types.Embedding, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, text, embedding, dimension, created_at
		FROM embeddings
		WHERE text = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, text)

	var (
		emb       types.Embedding
		blob      []byte
		dimension int
		createdAt int64
	)
	if err := row.Scan(&emb.ID, &emb.AgentID, &emb.Text, &blob, &dimension, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: embedding by text: %w", err)
	}

	vec, err := deserializeEmbedding(blob, dimension)
	if err != nil {
		return nil, fmt.Errorf("sqlite: embedding %s: %w", emb.ID, err)
	}
	emb.Vector = vec
	emb.CreatedAt = fromUnix(createdAt)
	return &emb, nil
}

func insertEmbedding(ctx context.Context, tx *sql.Tx, emb *types.Embedding) error {
	blob, err := serializeEmbedding(emb.Vector)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO embeddings (id, agent_id, text, embedding, dimension, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, emb.ID, emb.AgentID, emb.Text, blob, len(emb.Vector), toUnix(emb.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: insert embedding: %w", err)
	}
	return nil
}

// serializeEmbedding encodes a vector as little-endian float32 values.
func serializeEmbedding(vec []float32) ([]byte, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: embedding cannot be empty", storage.ErrInvalidInput)
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf, nil
}

// deserializeEmbedding decodes a blob written by serializeEmbedding.
func deserializeEmbedding(buf []byte, dimension int) ([]float32, error) {
	if dimension <= 0 || len(buf) != dimension*4 {
		return nil, fmt.Errorf("embedding blob of %d bytes does not hold %d float32 values", len(buf), dimension)
	}
	vec := make([]float32, dimension)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
