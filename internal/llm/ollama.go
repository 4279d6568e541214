package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the Ollama API root (default: http://localhost:11434).
	BaseURL string

	// Model is used for chat or embeddings depending on the client
	// (default: qwen2.5:7b for chat, nomic-embed-text for embeddings).
	Model string

	// Timeout bounds each request (default: 60s).
	Timeout time.Duration

	// RequestsPerSecond limits call rate (0 = unlimited).
	RequestsPerSecond float64
}

func (cfg *OllamaConfig) applyDefaults(model string) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
}

// OllamaClient handles local inference through the Ollama API. The same
// client type serves chat (/api/chat) and embeddings (/api/embed).
type OllamaClient struct {
	cfg    OllamaConfig
	client *http.Client
	guard  guard
}

// NewOllamaClient creates a chat client.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	cfg.applyDefaults("qwen2.5:7b")
	return newOllamaClient(cfg)
}

// NewOllamaEmbeddingClient creates an embedding client.
func NewOllamaEmbeddingClient(cfg OllamaConfig) *OllamaClient {
	cfg.applyDefaults("nomic-embed-text")
	return newOllamaClient(cfg)
}

func newOllamaClient(cfg OllamaConfig) *OllamaClient {
	return &OllamaClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		guard:  newGuard("ollama", cfg.RequestsPerSecond),
	}
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Complete sends a non-streaming chat request.
func (c *OllamaClient) Complete(ctx context.Context, messages []ChatMessage, maxTokens int) (string, error) {
	return do(ctx, c.guard, func(ctx context.Context) (string, error) {
		reqBody := ollamaChatRequest{Model: c.cfg.Model, Stream: false}
		if maxTokens > 0 {
			reqBody.Options = map[string]any{"num_predict": maxTokens}
		}
		for _, m := range messages {
			reqBody.Messages = append(reqBody.Messages, ollamaChatMessage{Role: string(m.Role), Content: m.Content})
		}

		var respData ollamaChatResponse
		if err := postJSON(ctx, c.client, "ollama", c.cfg.BaseURL+"/api/chat", nil, reqBody, &respData); err != nil {
			return "", err
		}
		return respData.Message.Content, nil
	})
}

// EmbedBatch embeds texts in one /api/embed request.
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return do(ctx, c.guard, func(ctx context.Context) ([][]float32, error) {
		var respData ollamaEmbedResponse
		reqBody := ollamaEmbedRequest{Model: c.cfg.Model, Input: texts}
		if err := postJSON(ctx, c.client, "ollama", c.cfg.BaseURL+"/api/embed", nil, reqBody, &respData); err != nil {
			return nil, err
		}
		for i, vec := range respData.Embeddings {
			if len(vec) == 0 {
				return nil, fmt.Errorf("ollama returned empty embedding at index %d", i)
			}
		}
		return respData.Embeddings, nil
	})
}

// GetModel returns the configured model name.
func (c *OllamaClient) GetModel() string {
	return c.cfg.Model
}

var (
	_ LanguageModel     = (*OllamaClient)(nil)
	_ EmbeddingProvider = (*OllamaClient)(nil)
)
