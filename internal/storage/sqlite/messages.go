package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ai-town/ai-town-cn/internal/storage"
	"github.com/ai-town/ai-town-cn/pkg/types"
)

// AddMessage stores a dialogue message.
func (s *Store) AddMessage(ctx context.Context, msg *types.Message) error {
	if msg == nil || msg.ConversationID == "" || msg.AuthorID == "" {
		return fmt.Errorf("%w: message needs a conversation and an author", storage.ErrInvalidInput)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	recipients := msg.RecipientIDs
	if recipients == nil {
		recipients = []string{}
	}
	recipientsJSON, err := json.Marshal(recipients)
	if err != nil {
		return fmt.Errorf("sqlite: marshal recipients: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, author_id, author_name, recipient_ids, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.AuthorID, msg.AuthorName, string(recipientsJSON), msg.Text, toUnix(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: insert message: %w", err)
	}
	return nil
}

// ConversationMessages returns the messages of conversationID involving
// participantID, oldest first.
func (s *Store) ConversationMessages(ctx context.Context, conversationID, participantID string, after time.Time) ([]*types.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, author_id, author_name, recipient_ids, text, created_at
		FROM messages m
		WHERE conversation_id = ?
		  AND created_at > ?
		  AND (author_id = ? OR EXISTS (
			SELECT 1 FROM json_each(m.recipient_ids) WHERE json_each.value = ?))
		ORDER BY created_at ASC, id ASC
	`, conversationID, sinceBound(after), participantID, participantID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: conversation messages: %w", err)
	}
	defer rows.Close()

	var out []*types.Message
	for rows.Next() {
		var (
			msg        types.Message
			recipients string
			createdAt  int64
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.AuthorID, &msg.AuthorName,
			&recipients, &msg.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		if err := json.Unmarshal([]byte(recipients), &msg.RecipientIDs); err != nil {
			return nil, fmt.Errorf("sqlite: message %s recipients: %w", msg.ID, err)
		}
		msg.CreatedAt = fromUnix(createdAt)
		out = append(out, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: conversation messages: %w", err)
	}
	return out, nil
}
