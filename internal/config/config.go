// Package config loads runtime settings for the memory engine.
//
// Values start from defaults, are overlaid by an optional YAML file, and are
// finally overridden by environment variables with the AITOWN_ prefix.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ai-town/ai-town-cn/internal/llm"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Vector index backends.
const (
	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"
)

// Config holds all configuration settings.
type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	VectorIndex VectorIndexConfig `yaml:"vector_index"`
	LLM         LLMConfig         `yaml:"llm"`
	Memory      MemoryConfig      `yaml:"memory"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// StorageConfig configures the document store.
type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path"` // default: ./data/aitown.db
}

// VectorIndexConfig configures the nearest-neighbor index.
type VectorIndexConfig struct {
	Backend     string `yaml:"backend"`      // chromem (default) or pgvector
	Namespace   string `yaml:"namespace"`    // default: memories
	PersistPath string `yaml:"persist_path"` // chromem only; default ./data/vectors, empty keeps the index in memory
	Compress    bool   `yaml:"compress"`     // chromem only
	PostgresDSN string `yaml:"postgres_dsn"` // pgvector only
}

// LLMConfig configures chat and embedding providers.
type LLMConfig struct {
	ChatProvider      string        `yaml:"chat_provider"`      // ollama (default), openai, anthropic
	ChatModel         string        `yaml:"chat_model"`         // empty = provider default
	EmbeddingProvider string        `yaml:"embedding_provider"` // ollama (default), openai
	EmbeddingModel    string        `yaml:"embedding_model"`    // empty = provider default
	OllamaURL         string        `yaml:"ollama_url"`         // default: http://localhost:11434
	OpenAIAPIKey      string        `yaml:"openai_api_key"`
	OpenAIBaseURL     string        `yaml:"openai_base_url"`
	AnthropicAPIKey   string        `yaml:"anthropic_api_key"`
	AnthropicBaseURL  string        `yaml:"anthropic_base_url"`
	Timeout           time.Duration `yaml:"timeout"`             // default: 60s
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 = unlimited
}

// MemoryConfig tunes ingestion and retrieval.
type MemoryConfig struct {
	RecencyDecayRate      float64 `yaml:"recency_decay_rate"`       // per hour, default 0.99
	SearchLimit           int     `yaml:"search_limit"`             // default 100
	AccessCount           int     `yaml:"access_count"`             // default 10
	OverFetchFactor       int     `yaml:"over_fetch_factor"`        // default 10
	ImportanceConcurrency int     `yaml:"importance_concurrency"`   // default 4
	ImportanceMaxTokens   int     `yaml:"importance_max_tokens"`    // default 16
	SummaryMaxTokens      int     `yaml:"summary_max_tokens"`       // default 500
	ReflectionThreshold   int     `yaml:"reflection_threshold"`     // default 500
	ReflectionWindow      int     `yaml:"reflection_window"`        // default 100
	EmbeddingCacheMaxCost int64   `yaml:"embedding_cache_max_cost"` // default 10000 entries
}

// LoggingConfig configures the CLI log handler.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info (default), warn, error
}

// LoadConfig loads configuration. If path is empty, AITOWN_CONFIG is
// consulted; when neither names a file only defaults and environment
// variables apply.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("AITOWN_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			SQLitePath: "./data/aitown.db",
		},
		VectorIndex: VectorIndexConfig{
			Backend:     BackendChromem,
			Namespace:   "memories",
			PersistPath: "./data/vectors",
		},
		LLM: LLMConfig{
			ChatProvider:      "ollama",
			EmbeddingProvider: "ollama",
			OllamaURL:         "http://localhost:11434",
			Timeout:           60 * time.Second,
		},
		Memory: MemoryConfig{
			RecencyDecayRate:      0.99,
			SearchLimit:           100,
			AccessCount:           10,
			OverFetchFactor:       10,
			ImportanceConcurrency: 4,
			ImportanceMaxTokens:   16,
			SummaryMaxTokens:      500,
			ReflectionThreshold:   500,
			ReflectionWindow:      100,
			EmbeddingCacheMaxCost: 10000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Storage.SQLitePath = getEnv("AITOWN_SQLITE_PATH", cfg.Storage.SQLitePath)

	cfg.VectorIndex.Backend = getEnv("AITOWN_VECTOR_BACKEND", cfg.VectorIndex.Backend)
	cfg.VectorIndex.Namespace = getEnv("AITOWN_VECTOR_NAMESPACE", cfg.VectorIndex.Namespace)
	cfg.VectorIndex.PersistPath = getEnv("AITOWN_VECTOR_PERSIST_PATH", cfg.VectorIndex.PersistPath)
	cfg.VectorIndex.Compress = getEnvBool("AITOWN_VECTOR_COMPRESS", cfg.VectorIndex.Compress)
	cfg.VectorIndex.PostgresDSN = getEnv("AITOWN_POSTGRES_DSN", cfg.VectorIndex.PostgresDSN)

	cfg.LLM.ChatProvider = getEnv("AITOWN_CHAT_PROVIDER", cfg.LLM.ChatProvider)
	cfg.LLM.ChatModel = getEnv("AITOWN_CHAT_MODEL", cfg.LLM.ChatModel)
	cfg.LLM.EmbeddingProvider = getEnv("AITOWN_EMBEDDING_PROVIDER", cfg.LLM.EmbeddingProvider)
	cfg.LLM.EmbeddingModel = getEnv("AITOWN_EMBEDDING_MODEL", cfg.LLM.EmbeddingModel)
	cfg.LLM.OllamaURL = getEnv("AITOWN_OLLAMA_URL", cfg.LLM.OllamaURL)
	cfg.LLM.OpenAIAPIKey = getEnv("AITOWN_OPENAI_API_KEY", cfg.LLM.OpenAIAPIKey)
	cfg.LLM.OpenAIBaseURL = getEnv("AITOWN_OPENAI_BASE_URL", cfg.LLM.OpenAIBaseURL)
	cfg.LLM.AnthropicAPIKey = getEnv("AITOWN_ANTHROPIC_API_KEY", cfg.LLM.AnthropicAPIKey)
	cfg.LLM.AnthropicBaseURL = getEnv("AITOWN_ANTHROPIC_BASE_URL", cfg.LLM.AnthropicBaseURL)
	cfg.LLM.Timeout = getEnvDuration("AITOWN_LLM_TIMEOUT", cfg.LLM.Timeout)
	cfg.LLM.RequestsPerSecond = getEnvFloat("AITOWN_LLM_REQUESTS_PER_SECOND", cfg.LLM.RequestsPerSecond)

	cfg.Memory.RecencyDecayRate = getEnvFloat("AITOWN_RECENCY_DECAY_RATE", cfg.Memory.RecencyDecayRate)
	cfg.Memory.SearchLimit = getEnvInt("AITOWN_SEARCH_LIMIT", cfg.Memory.SearchLimit)
	cfg.Memory.AccessCount = getEnvInt("AITOWN_ACCESS_COUNT", cfg.Memory.AccessCount)
	cfg.Memory.OverFetchFactor = getEnvInt("AITOWN_OVER_FETCH_FACTOR", cfg.Memory.OverFetchFactor)
	cfg.Memory.ImportanceConcurrency = getEnvInt("AITOWN_IMPORTANCE_CONCURRENCY", cfg.Memory.ImportanceConcurrency)
	cfg.Memory.ImportanceMaxTokens = getEnvInt("AITOWN_IMPORTANCE_MAX_TOKENS", cfg.Memory.ImportanceMaxTokens)
	cfg.Memory.SummaryMaxTokens = getEnvInt("AITOWN_SUMMARY_MAX_TOKENS", cfg.Memory.SummaryMaxTokens)
	cfg.Memory.ReflectionThreshold = getEnvInt("AITOWN_REFLECTION_THRESHOLD", cfg.Memory.ReflectionThreshold)
	cfg.Memory.ReflectionWindow = getEnvInt("AITOWN_REFLECTION_WINDOW", cfg.Memory.ReflectionWindow)
	cfg.Memory.EmbeddingCacheMaxCost = int64(getEnvInt("AITOWN_EMBEDDING_CACHE_MAX_COST", int(cfg.Memory.EmbeddingCacheMaxCost)))

	cfg.Logging.Level = getEnv("AITOWN_LOG_LEVEL", cfg.Logging.Level)
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	var problems []string

	switch c.VectorIndex.Backend {
	case BackendChromem:
	case BackendPgvector:
		if c.VectorIndex.PostgresDSN == "" {
			problems = append(problems, "vector_index.postgres_dsn is required for the pgvector backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown vector_index.backend %q", c.VectorIndex.Backend))
	}
	if c.VectorIndex.Namespace == "" {
		problems = append(problems, "vector_index.namespace must not be empty")
	}
	if c.Storage.SQLitePath == "" {
		problems = append(problems, "storage.sqlite_path must not be empty")
	}

	switch c.LLM.ChatProvider {
	case "ollama", "openai", "anthropic":
	default:
		problems = append(problems, fmt.Sprintf("unknown llm.chat_provider %q", c.LLM.ChatProvider))
	}
	switch c.LLM.EmbeddingProvider {
	case "ollama", "openai":
	default:
		problems = append(problems, fmt.Sprintf("unsupported llm.embedding_provider %q", c.LLM.EmbeddingProvider))
	}
	if c.LLM.RequestsPerSecond < 0 {
		problems = append(problems, "llm.requests_per_second must not be negative")
	}

	m := c.Memory
	if m.RecencyDecayRate <= 0 || m.RecencyDecayRate >= 1 {
		problems = append(problems, fmt.Sprintf("memory.recency_decay_rate %v must be in (0, 1)", m.RecencyDecayRate))
	}
	for name, v := range map[string]int{
		"memory.search_limit":           m.SearchLimit,
		"memory.access_count":           m.AccessCount,
		"memory.over_fetch_factor":      m.OverFetchFactor,
		"memory.importance_concurrency": m.ImportanceConcurrency,
		"memory.importance_max_tokens":  m.ImportanceMaxTokens,
		"memory.summary_max_tokens":     m.SummaryMaxTokens,
		"memory.reflection_window":      m.ReflectionWindow,
	} {
		if v <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive", name))
		}
	}
	if m.ReflectionThreshold < 0 {
		problems = append(problems, "memory.reflection_threshold must not be negative")
	}
	if m.EmbeddingCacheMaxCost <= 0 {
		problems = append(problems, "memory.embedding_cache_max_cost must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown logging.level %q", c.Logging.Level))
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ChatProviderConfig returns the llm factory settings for the chat model.
func (c LLMConfig) ChatProviderConfig() llm.ProviderConfig {
	return c.providerConfig(c.ChatProvider, c.ChatModel)
}

// EmbeddingProviderConfig returns the llm factory settings for embeddings.
func (c LLMConfig) EmbeddingProviderConfig() llm.ProviderConfig {
	return c.providerConfig(c.EmbeddingProvider, c.EmbeddingModel)
}

func (c LLMConfig) providerConfig(provider, model string) llm.ProviderConfig {
	pc := llm.ProviderConfig{
		Provider:          provider,
		Model:             model,
		Timeout:           c.Timeout,
		RequestsPerSecond: c.RequestsPerSecond,
	}
	switch provider {
	case "openai":
		pc.APIKey = c.OpenAIAPIKey
		pc.BaseURL = c.OpenAIBaseURL
	case "anthropic":
		pc.APIKey = c.AnthropicAPIKey
		pc.BaseURL = c.AnthropicBaseURL
	default:
		pc.BaseURL = c.OllamaURL
	}
	return pc
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value when unset or unparsable.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value when unset or unparsable.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration parses values such as "30s" or "2m".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
