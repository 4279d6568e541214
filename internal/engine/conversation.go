package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ai-town/ai-town-cn/internal/llm"
	"github.com/ai-town/ai-town-cn/internal/storage"
	"github.com/ai-town/ai-town-cn/pkg/types"
)

// RememberConversation summarizes the part of conversationID that agentID
// has not yet remembered and stores the summary as a conversation memory.
// It returns false when there is nothing new: lastSpoke predates the agent's
// latest conversation memory, or no message involving the agent was sent
// after the previous summary of this conversation.
func (e *MemoryEngine) RememberConversation(ctx context.Context, agentID string, identity types.AgentIdentity, conversationID string, lastSpoke *time.Time) (bool, error) {
	defer e.metrics.observe("remember_conversation", time.Now())

	if agentID == "" || conversationID == "" {
		return false, fmt.Errorf("%w: agent and conversation IDs are required", storage.ErrInvalidInput)
	}

	latest, err := e.store.LatestMemoryOfKind(ctx, agentID, types.PayloadConversation, time.Time{})
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return false, fmt.Errorf("latest conversation memory: %w", err)
	case lastSpoke != nil && lastSpoke.Before(latest.CreatedAt):
		return false, nil
	}

	var after time.Time
	prior, err := e.store.LatestConversationMemory(ctx, agentID, conversationID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return false, fmt.Errorf("prior summary of %s: %w", conversationID, err)
	default:
		after = prior.CreatedAt
	}

	messages, err := e.store.ConversationMessages(ctx, conversationID, agentID, after)
	if err != nil {
		return false, fmt.Errorf("conversation messages: %w", err)
	}
	if len(messages) == 0 {
		return false, nil
	}

	others := otherParticipants(agentID, messages)
	summary, err := e.lm.Complete(ctx, summaryPrompt(identity, others, messages), e.config.SummaryMaxTokens)
	if err != nil {
		return false, fmt.Errorf("summarize conversation: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		e.logger.Warn("empty conversation summary", "agent_id", agentID, "conversation_id", conversationID)
		return false, nil
	}

	last := messages[len(messages)-1]
	description := fmt.Sprintf("Conversation with %s at %s: %s",
		strings.Join(others, " and "), last.CreatedAt.Format(time.RFC1123), summary)

	_, err = e.AddMemories(ctx, []types.MemoryDraft{{
		AgentID:     agentID,
		Description: description,
		Payload:     types.ConversationPayload{ConversationID: conversationID},
	}})
	if err != nil {
		return false, err
	}
	return true, nil
}

// otherParticipants lists, in order of first appearance, everyone other than
// agentID who wrote or received a message. Authors are named by AuthorName
// when set.
func otherParticipants(agentID string, messages []*types.Message) []string {
	var names []string
	seen := map[string]bool{agentID: true}
	add := func(id, name string) {
		if seen[id] {
			return
		}
		seen[id] = true
		if name == "" {
			name = id
		}
		names = append(names, name)
	}

	for _, m := range messages {
		add(m.AuthorID, m.AuthorName)
	}
	for _, m := range messages {
		for _, r := range m.RecipientIDs {
			add(r, "")
		}
	}
	if len(names) == 0 {
		names = []string{"myself"}
	}
	return names
}

func summaryPrompt(identity types.AgentIdentity, others []string, messages []*types.Message) []llm.ChatMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, and you just finished a conversation with %s. ",
		identity.Name, strings.Join(others, " and "))
	fmt.Fprintf(&b, "Summarize the conversation from %s's perspective in one paragraph, using first-person pronouns like \"I\", ", identity.Name)
	b.WriteString("and say whether you liked or disliked the interaction.\n\n")
	for _, m := range messages {
		author := m.AuthorName
		if author == "" {
			author = m.AuthorID
		}
		fmt.Fprintf(&b, "%s: %s\n", author, m.Text)
	}
	b.WriteString("\nSummary:")

	var msgs []llm.ChatMessage
	if identity.Identity != "" {
		msgs = append(msgs, llm.System(identity.Identity))
	}
	return append(msgs, llm.User(b.String()))
}
