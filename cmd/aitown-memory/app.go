package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ai-town/ai-town-cn/internal/config"
	"github.com/ai-town/ai-town-cn/internal/engine"
	"github.com/ai-town/ai-town-cn/internal/llm"
	"github.com/ai-town/ai-town-cn/internal/logging"
	"github.com/ai-town/ai-town-cn/internal/storage"
	"github.com/ai-town/ai-town-cn/internal/storage/chromem"
	"github.com/ai-town/ai-town-cn/internal/storage/postgres"
	"github.com/ai-town/ai-town-cn/internal/storage/sqlite"
)

// app is everything one command invocation needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *sqlite.Store
	engine   *engine.MemoryEngine
	registry *prometheus.Registry
	closers  []io.Closer
}

// loadConfig reads --config and applies --log-level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// openApp wires config, stores, providers and the engine.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logging.New(cfg.Logging.Level, cmd.ErrOrStderr()),
		registry: prometheus.NewRegistry(),
	}

	if err := a.open(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open() error {
	path := a.cfg.Storage.SQLitePath
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	store, err := sqlite.NewStore(path, sqlite.WithLogger(a.logger))
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, store)

	index, err := a.openIndex()
	if err != nil {
		return err
	}

	lm, err := llm.NewLanguageModel(a.cfg.LLM.ChatProviderConfig())
	if err != nil {
		return err
	}
	embedder, err := llm.NewEmbeddingProvider(a.cfg.LLM.EmbeddingProviderConfig())
	if err != nil {
		return err
	}

	eng, err := engine.NewMemoryEngine(engine.Dependencies{
		Store:         store,
		Index:         index,
		Embedder:      embedder,
		LanguageModel: lm,
	}, engineConfig(a.cfg),
		engine.WithLogger(a.logger),
		engine.WithMetrics(engine.NewMetrics(a.registry)),
	)
	if err != nil {
		return err
	}
	a.engine = eng

	a.logger.Debug("memory engine ready",
		"vector_backend", a.cfg.VectorIndex.Backend,
		"chat_model", lm.GetModel(),
		"embedding_model", embedder.GetModel())
	return nil
}

func (a *app) openIndex() (storage.VectorIndex, error) {
	vc := a.cfg.VectorIndex
	switch vc.Backend {
	case config.BackendPgvector:
		idx, err := postgres.NewVectorIndex(vc.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, idx)
		return idx, nil
	default:
		if vc.PersistPath == "" {
			return chromem.New(chromem.WithLogger(a.logger)), nil
		}
		return chromem.NewPersistent(vc.PersistPath, vc.Compress, chromem.WithLogger(a.logger))
	}
}

// Close logs the collected metrics at debug level and releases resources in
// reverse order of acquisition.
func (a *app) Close() {
	if a.engine != nil {
		a.logMetrics()
		a.engine.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func (a *app) logMetrics() {
	families, err := a.registry.Gather()
	if err != nil {
		a.logger.Debug("gather metrics", "error", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				a.logger.Debug("metric", "name", mf.GetName(), "value", m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				a.logger.Debug("metric", "name", mf.GetName(),
					"labels", m.GetLabel(), "count", m.GetHistogram().GetSampleCount(),
					"sum_seconds", m.GetHistogram().GetSampleSum())
			}
		}
	}
}

// engineConfig maps the configuration file onto engine settings.
func engineConfig(cfg *config.Config) engine.Config {
	m := cfg.Memory
	return engine.Config{
		Namespace:             cfg.VectorIndex.Namespace,
		RecencyDecayRate:      m.RecencyDecayRate,
		SearchLimit:           m.SearchLimit,
		AccessCount:           m.AccessCount,
		OverFetchFactor:       m.OverFetchFactor,
		ImportanceConcurrency: m.ImportanceConcurrency,
		ImportanceMaxTokens:   m.ImportanceMaxTokens,
		SummaryMaxTokens:      m.SummaryMaxTokens,
		ReflectionThreshold:   m.ReflectionThreshold,
		ReflectionWindow:      m.ReflectionWindow,
		EmbeddingCacheMaxCost: m.EmbeddingCacheMaxCost,
	}
}
