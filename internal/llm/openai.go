package llm

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// OpenAIConfig holds configuration for the OpenAI clients.
type OpenAIConfig struct {
	APIKey            string
	Model             string        // default: gpt-4o-mini (chat), text-embedding-3-small (embeddings)
	BaseURL           string        // default: https://api.openai.com
	Timeout           time.Duration // default: 60s
	RequestsPerSecond float64       // 0 = unlimited
}

func (cfg *OpenAIConfig) applyDefaults(model string) {
	if cfg.Model == "" {
		cfg.Model = model
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
}

func (cfg OpenAIConfig) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + cfg.APIKey}
}

// OpenAIClient implements LanguageModel using the chat completions API.
type OpenAIClient struct {
	cfg    OpenAIConfig
	client *http.Client
	guard  guard
}

// NewOpenAIClient creates a chat client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	cfg.applyDefaults("gpt-4o-mini")
	return &OpenAIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		guard:  newGuard("openai", cfg.RequestsPerSecond),
	}
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends messages to the chat completions endpoint.
func (c *OpenAIClient) Complete(ctx context.Context, messages []ChatMessage, maxTokens int) (string, error) {
	return do(ctx, c.guard, func(ctx context.Context) (string, error) {
		reqBody := openAIChatRequest{
			Model:     c.cfg.Model,
			MaxTokens: maxTokens,
		}
		for _, m := range messages {
			reqBody.Messages = append(reqBody.Messages, openAIChatMessage{Role: string(m.Role), Content: m.Content})
		}

		var respData openAIChatResponse
		if err := postJSON(ctx, c.client, "openai", c.cfg.BaseURL+"/v1/chat/completions", c.cfg.headers(), reqBody, &respData); err != nil {
			return "", err
		}
		if len(respData.Choices) == 0 {
			return "", fmt.Errorf("openai returned no choices")
		}
		return respData.Choices[0].Message.Content, nil
	})
}

// GetModel returns the configured model name.
func (c *OpenAIClient) GetModel() string {
	return c.cfg.Model
}

var _ LanguageModel = (*OpenAIClient)(nil)

// OpenAIEmbeddingClient implements EmbeddingProvider using the embeddings API.
type OpenAIEmbeddingClient struct {
	cfg    OpenAIConfig
	client *http.Client
	guard  guard
}

// NewOpenAIEmbeddingClient creates an embedding client.
func NewOpenAIEmbeddingClient(cfg OpenAIConfig) *OpenAIEmbeddingClient {
	cfg.applyDefaults("text-embedding-3-small")
	return &OpenAIEmbeddingClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		guard:  newGuard("openai-embeddings", cfg.RequestsPerSecond),
	}
}

type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// EmbedBatch embeds texts in one request. Results are ordered by the
// response's index field.
func (c *OpenAIEmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return do(ctx, c.guard, func(ctx context.Context) ([][]float32, error) {
		var respData openAIEmbeddingResponse
		reqBody := openAIEmbeddingRequest{Model: c.cfg.Model, Input: texts}
		if err := postJSON(ctx, c.client, "openai", c.cfg.BaseURL+"/v1/embeddings", c.cfg.headers(), reqBody, &respData); err != nil {
			return nil, err
		}

		sort.SliceStable(respData.Data, func(i, j int) bool {
			return respData.Data[i].Index < respData.Data[j].Index
		})
		out := make([][]float32, 0, len(respData.Data))
		for _, d := range respData.Data {
			vec := make([]float32, len(d.Embedding))
			for i, v := range d.Embedding {
				vec[i] = float32(v)
			}
			out = append(out, vec)
		}
		return out, nil
	})
}

// GetModel returns the configured model name.
func (c *OpenAIEmbeddingClient) GetModel() string {
	return c.cfg.Model
}

var _ EmbeddingProvider = (*OpenAIEmbeddingClient)(nil)
