// Package llm provides language model and embedding clients.
package llm

import "context"

// Role is the speaker of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of a chat prompt.
type ChatMessage struct {
	Role    Role
	Content string
}

// LanguageModel completes chat prompts.
type LanguageModel interface {
	// Complete returns the model's reply to messages, generating at most
	// maxTokens tokens (0 = provider default).
	Complete(ctx context.Context, messages []ChatMessage, maxTokens int) (string, error)
	GetModel() string
}

// EmbeddingProvider turns texts into vectors.
type EmbeddingProvider interface {
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	GetModel() string
}

// System returns a system message.
func System(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// User returns a user message.
func User(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// Assistant returns an assistant message.
func Assistant(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}
