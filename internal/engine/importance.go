package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ai-town/ai-town-cn/internal/llm"
	"github.com/ai-town/ai-town-cn/pkg/types"
)

const importanceInstruction = `On the scale of 0 to 9, where 0 is purely mundane (e.g., brushing teeth, making bed) and 9 is extremely poignant (e.g., a break up, college acceptance), rate the likely poignancy of the following memory.
Answer with a single digit from 0 to 9 and nothing else.`

func importancePrompt(description string) []llm.ChatMessage {
	return []llm.ChatMessage{
		llm.User(importanceInstruction + "\nMemory: " + description + "\nRating:"),
	}
}

// ParseImportance extracts a 0-9 rating from a model reply. The first digit
// wins; otherwise the whole trimmed reply is parsed as a number, rounded
// and clamped. ok is false when neither works and DefaultImportance is
// returned.
func ParseImportance(reply string) (importance int, ok bool) {
	for _, r := range reply {
		if r >= '0' && r <= '9' {
			return int(r - '0'), true
		}
	}

	// Replies with any digit never reach this point; only spelled-out
	// forms such as "NaN" or "Inf" parse here, and those are rejected.
	f, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return types.ClampImportance(int(math.Round(f))), true
	}
	return types.DefaultImportance, false
}

// scoreImportance fills in importance for every draft that lacks one, with
// at most ImportanceConcurrency prompts in flight. Parse failures default to
// DefaultImportance; model errors abort the batch.
func (e *MemoryEngine) scoreImportance(ctx context.Context, drafts []types.MemoryDraft) ([]int, error) {
	out := make([]int, len(drafts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.ImportanceConcurrency)

	for i, d := range drafts {
		if d.Importance != nil {
			out[i] = *d.Importance
			continue
		}
		g.Go(func() error {
			reply, err := e.lm.Complete(gctx, importancePrompt(d.Description), e.config.ImportanceMaxTokens)
			if err != nil {
				return fmt.Errorf("score importance: %w", err)
			}
			v, ok := ParseImportance(reply)
			if !ok {
				e.metrics.ImportanceFallbacks.Inc()
				e.logger.Warn("unparsable importance reply, using default",
					"agent_id", d.AgentID, "reply", reply, "default", v)
			}
			out[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
