package engine

import "fmt"

// Config tunes ingestion and retrieval.
type Config struct {
	// Namespace is the vector index namespace holding memory embeddings.
	Namespace string

	// RecencyDecayRate is the per-hour multiplicative decay of the recency
	// signal. Must be in (0, 1). Default: 0.99.
	RecencyDecayRate float64

	// SearchLimit is the default result limit of Search. Default: 100.
	SearchLimit int

	// AccessCount is the default result count of AccessMemories. Default: 10.
	AccessCount int

	// OverFetchFactor multiplies the requested count when gathering
	// retrieval candidates. Default: 10.
	OverFetchFactor int

	// ImportanceConcurrency bounds parallel importance prompts. Default: 4.
	ImportanceConcurrency int

	// ImportanceMaxTokens caps the importance reply. Default: 16.
	ImportanceMaxTokens int

	// SummaryMaxTokens caps conversation summaries and reflections. Default: 500.
	SummaryMaxTokens int

	// ReflectionThreshold is the importance sum that must be exceeded by
	// memories since the last reflection before Reflect runs. Default: 500.
	ReflectionThreshold int

	// ReflectionWindow is how many recent memories Reflect considers. Default: 100.
	ReflectionWindow int

	// EmbeddingCacheMaxCost is the number of vectors kept in the in-process
	// cache tier. Default: 10000.
	EmbeddingCacheMaxCost int64
}

// DefaultConfig returns a Config with the reference values.
func DefaultConfig() Config {
	return Config{
		Namespace:             "memories",
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
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("Namespace must not be empty")
	}
	if c.RecencyDecayRate <= 0 || c.RecencyDecayRate >= 1 {
		return fmt.Errorf("RecencyDecayRate must be in (0, 1), got %v", c.RecencyDecayRate)
	}
	if c.SearchLimit < 1 {
		return fmt.Errorf("SearchLimit must be >= 1, got %d", c.SearchLimit)
	}
	if c.AccessCount < 1 {
		return fmt.Errorf("AccessCount must be >= 1, got %d", c.AccessCount)
	}
	if c.OverFetchFactor < 1 {
		return fmt.Errorf("OverFetchFactor must be >= 1, got %d", c.OverFetchFactor)
	}
	if c.ImportanceConcurrency < 1 {
		return fmt.Errorf("ImportanceConcurrency must be >= 1, got %d", c.ImportanceConcurrency)
	}
	if c.ImportanceMaxTokens < 1 {
		return fmt.Errorf("ImportanceMaxTokens must be >= 1, got %d", c.ImportanceMaxTokens)
	}
	if c.SummaryMaxTokens < 1 {
		return fmt.Errorf("SummaryMaxTokens must be >= 1, got %d", c.SummaryMaxTokens)
	}
	if c.ReflectionThreshold < 0 {
		return fmt.Errorf("ReflectionThreshold must be >= 0, got %d", c.ReflectionThreshold)
	}
	if c.ReflectionWindow < 1 {
		return fmt.Errorf("ReflectionWindow must be >= 1, got %d", c.ReflectionWindow)
	}
	if c.EmbeddingCacheMaxCost < 1 {
		return fmt.Errorf("EmbeddingCacheMaxCost must be >= 1, got %d", c.EmbeddingCacheMaxCost)
	}
	return nil
}
