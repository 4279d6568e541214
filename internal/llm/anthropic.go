package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultAnthropicMaxTokens is used when the caller passes maxTokens <= 0;
// the Messages API requires an explicit limit.
const defaultAnthropicMaxTokens = 1024

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey            string
	Model             string        // default: claude-haiku-4-5-20251001
	BaseURL           string        // default: SDK default
	Timeout           time.Duration // default: 60s
	RequestsPerSecond float64       // 0 = unlimited
}

// AnthropicClient implements LanguageModel using the Anthropic Messages API.
type AnthropicClient struct {
	cfg    AnthropicConfig
	client anthropic.Client
	guard  guard
}

// NewAnthropicClient creates a client. SDK retries are disabled; failures
// are counted by the circuit breaker instead.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicClient{
		cfg:    cfg,
		client: anthropic.NewClient(opts...),
		guard:  newGuard("anthropic", cfg.RequestsPerSecond),
	}
}

// Complete sends messages to the Messages API. System messages are lifted
// into the request's system prompt.
func (c *AnthropicClient) Complete(ctx context.Context, messages []ChatMessage, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(maxTokens),
	}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(params.Messages) == 0 {
		return "", fmt.Errorf("anthropic: at least one user message is required")
	}

	return do(ctx, c.guard, func(ctx context.Context) (string, error) {
		resp, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("anthropic API error: %w", err)
		}

		var text strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		if text.Len() == 0 {
			return "", fmt.Errorf("anthropic returned empty content")
		}
		return text.String(), nil
	})
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.cfg.Model
}

var _ LanguageModel = (*AnthropicClient)(nil)
