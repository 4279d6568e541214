package llm

import (
	"fmt"
	"time"
)

// ProviderConfig selects and configures one provider client.
type ProviderConfig struct {
	Provider          string // "ollama" (default), "openai" or "anthropic"
	Model             string
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// NewLanguageModel creates the LanguageModel for cfg.Provider.
func NewLanguageModel(cfg ProviderConfig) (LanguageModel, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout, RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout, RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.BaseURL, Model: cfg.Model,
			Timeout: cfg.Timeout, RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbeddingProvider creates the EmbeddingProvider for cfg.Provider.
// Anthropic has no embeddings endpoint and is rejected.
func NewEmbeddingProvider(cfg ProviderConfig) (EmbeddingProvider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbeddingClient(OpenAIConfig{
			APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout, RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	case "ollama", "":
		return NewOllamaEmbeddingClient(OllamaConfig{
			BaseURL: cfg.BaseURL, Model: cfg.Model,
			Timeout: cfg.Timeout, RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}
}
