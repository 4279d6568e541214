package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ai-town/ai-town-cn/internal/llm"
	"github.com/ai-town/ai-town-cn/internal/storage"
	"github.com/ai-town/ai-town-cn/pkg/types"
)

// maxInsights bounds the reflections stored per Reflect call.
const maxInsights = 3

type insight struct {
	Insight      string `json:"insight"`
	StatementIDs []int  `json:"statementIds"`
}

// Reflect derives up to three high-level insights from agentID's memories
// since its last reflection and stores them as reflection memories. It runs
// only when the importance of those memories sums above
// Config.ReflectionThreshold. It returns whether any insight was stored. An
// unparsable model reply is logged and reported as false.
func (e *MemoryEngine) Reflect(ctx context.Context, agentID string, identity types.AgentIdentity) (bool, error) {
	defer e.metrics.observe("reflect", time.Now())

	if agentID == "" {
		return false, fmt.Errorf("%w: agent ID is required", storage.ErrInvalidInput)
	}

	var since time.Time
	last, err := e.store.LatestMemoryOfKind(ctx, agentID, types.PayloadReflection, time.Time{})
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return false, fmt.Errorf("latest reflection: %w", err)
	default:
		since = last.CreatedAt
	}

	recent, err := e.store.RecentMemories(ctx, agentID, since, e.config.ReflectionWindow)
	if err != nil {
		return false, fmt.Errorf("recent memories: %w", err)
	}
	sum := 0
	for _, m := range recent {
		sum += m.Importance
	}
	if sum <= e.config.ReflectionThreshold {
		return false, nil
	}

	// Oldest first, so statement numbers follow the order things happened.
	statements := make([]*types.Memory, len(recent))
	for i, m := range recent {
		statements[len(recent)-1-i] = m
	}

	reply, err := e.lm.Complete(ctx, reflectionPrompt(identity, statements), e.config.SummaryMaxTokens)
	if err != nil {
		return false, fmt.Errorf("reflect: %w", err)
	}
	insights, err := parseInsights(reply)
	if err != nil {
		e.logger.Warn("unparsable reflection reply", "agent_id", agentID, "error", err)
		return false, nil
	}

	var drafts []types.MemoryDraft
	for _, in := range insights {
		text := strings.TrimSpace(in.Insight)
		if text == "" {
			continue
		}
		var related []string
		for _, id := range in.StatementIDs {
			if id >= 0 && id < len(statements) {
				related = append(related, statements[id].ID)
			}
		}
		drafts = append(drafts, types.MemoryDraft{
			AgentID:     agentID,
			Description: text,
			Payload:     types.ReflectionPayload{RelatedMemoryIDs: related},
		})
		if len(drafts) == maxInsights {
			break
		}
	}
	if len(drafts) == 0 {
		return false, nil
	}

	if _, err := e.AddMemories(ctx, drafts); err != nil {
		return false, err
	}
	e.logger.Debug("reflection stored", "agent_id", agentID, "insights", len(drafts), "importance_sum", sum)
	return true, nil
}

func reflectionPrompt(identity types.AgentIdentity, statements []*types.Memory) []llm.ChatMessage {
	var b strings.Builder
	b.WriteString("[Statements]\n")
	for i, m := range statements {
		fmt.Fprintf(&b, "Statement %d: %s\n", i, m.Description)
	}
	fmt.Fprintf(&b, "\nWhat %d high-level insights can you infer from the above statements? ", maxInsights)
	b.WriteString(`Reply with a JSON array only, where each element has the insight text and the numbers of the statements that support it. `)
	b.WriteString(`Example: [{"insight": "...", "statementIds": [1, 2]}]`)

	var msgs []llm.ChatMessage
	if identity.Identity != "" {
		msgs = append(msgs, llm.System(fmt.Sprintf("You are %s. %s", identity.Name, identity.Identity)))
	}
	return append(msgs, llm.User(b.String()))
}

// parseInsights decodes the first JSON array found in reply.
func parseInsights(reply string) ([]insight, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in reply")
	}
	var out []insight
	if err := json.Unmarshal([]byte(reply[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("decode insights: %w", err)
	}
	return out, nil
}
