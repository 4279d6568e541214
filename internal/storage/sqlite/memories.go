package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ai-town/ai-town-cn/internal/storage"
	"github.com/ai-town/ai-town-cn/pkg/types"
)

const memoryColumns = `id, agent_id, description, embedding_id, importance, payload_kind, payload, created_at`

// CommitMemory writes emb and then mem in one transaction.
func (s *Store) CommitMemory(ctx context.Context, mem *types.Memory, emb *types.Embedding) error {
	if mem == nil || emb == nil {
		return fmt.Errorf("%w: memory and embedding are required", storage.ErrInvalidInput)
	}
	if !types.ValidImportance(mem.Importance) {
		return fmt.Errorf("%w: importance %d out of range", storage.ErrInvalidInput, mem.Importance)
	}
	kind, payload, err := types.EncodePayload(mem.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	if emb.ID == "" {
		emb.ID = uuid.NewString()
	}
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = now
	}
	if emb.AgentID == "" {
		emb.AgentID = mem.AgentID
	}
	if mem.ID == "" {
		mem.ID = uuid.NewString()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = now
	}
	mem.EmbeddingID = emb.ID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin commit memory: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertEmbedding(ctx, tx, emb); err != nil {
		return err
	}

	var conversationID sql.NullString
	if id := types.ConversationID(mem.Payload); id != "" {
		conversationID = sql.NullString{String: id, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (id, agent_id, description, embedding_id, importance,
			payload_kind, payload, conversation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, mem.ID, mem.AgentID, mem.Description, mem.EmbeddingID, mem.Importance,
		string(kind), string(payload), conversationID, toUnix(mem.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: insert memory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit memory: %w", err)
	}
	return nil
}

// MemoryByEmbedding returns agentID's newest memory referencing embeddingID.
func (s *Store) MemoryByEmbedding(ctx context.Context, agentID, embeddingID string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+memoryColumns+`
		FROM memories
		WHERE agent_id = ? AND embedding_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, agentID, embeddingID)
	return scanMemoryRow(row)
}

// LatestMemoryOfKind returns agentID's newest memory of kind created after since.
func (s *Store) LatestMemoryOfKind(ctx context.Context, agentID string, kind types.PayloadKind, since time.Time) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+memoryColumns+`
		FROM memories
		WHERE agent_id = ? AND payload_kind = ? AND created_at > ?
		ORDER BY created_at DESC
		LIMIT 1
	`, agentID, string(kind), sinceBound(since))
	return scanMemoryRow(row)
}

// LatestConversationMemory returns agentID's newest memory of conversationID.
func (s *Store) LatestConversationMemory(ctx context.Context, agentID, conversationID string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+memoryColumns+`
		FROM memories
		WHERE agent_id = ? AND payload_kind = ? AND conversation_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, agentID, string(types.PayloadConversation), conversationID)
	return scanMemoryRow(row)
}

// RecentMemories returns up to limit of agentID's memories created after
// since, newest first.
func (s *Store) RecentMemories(ctx context.Context, agentID string, since time.Time, limit int) ([]*types.Memory, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memoryColumns+`
		FROM memories
		WHERE agent_id = ? AND created_at > ?
		ORDER BY created_at DESC
		LIMIT ?
	`, agentID, sinceBound(since), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent memories: %w", err)
	}
	defer rows.Close()

	var out []*types.Memory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: recent memories: %w", err)
	}
	return out, nil
}

// sinceBound maps a zero time to the smallest stored value.
func sinceBound(since time.Time) int64 {
	if since.IsZero() {
		return math.MinInt64
	}
	return toUnix(since)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemoryRow(row *sql.Row) (*types.Memory, error) {
	mem, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return mem, err
}

func scanMemory(row rowScanner) (*types.Memory, error) {
	var (
		mem       types.Memory
		kind      string
		payload   string
		createdAt int64
	)
	err := row.Scan(&mem.ID, &mem.AgentID, &mem.Description, &mem.EmbeddingID,
		&mem.Importance, &kind, &payload, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: scan memory: %w", err)
	}

	p, err := types.DecodePayload(types.PayloadKind(kind), []byte(payload))
	if err != nil {
		return nil, fmt.Errorf("sqlite: memory %s: %w", mem.ID, err)
	}
	mem.Payload = p
	mem.CreatedAt = fromUnix(createdAt)
	return &mem, nil
}
