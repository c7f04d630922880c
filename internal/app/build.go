package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ent0n29/spectre/internal/completion"
	"github.com/ent0n29/spectre/internal/config"
	"github.com/ent0n29/spectre/internal/conversation"
	"github.com/ent0n29/spectre/internal/httpapi"
	"github.com/ent0n29/spectre/internal/memory"
	"github.com/ent0n29/spectre/internal/observability"
	"github.com/ent0n29/spectre/internal/prompt"
	"github.com/ent0n29/spectre/internal/provider"
	"github.com/ent0n29/spectre/internal/session"
	"github.com/ent0n29/spectre/internal/toolcatalog"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Memory       *memory.Manager
	Catalog      *toolcatalog.Catalog
	Orchestrator *conversation.Orchestrator
	Metrics      *observability.Metrics
	Providers    []string
	Speech       string

	// Cleanup flushes memory and releases the store.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mem := memory.NewManager(store, memory.ManagerOptions{
		Retention: cfg.MemoryRetention,
		Logger:    logger,
		Observer:  metrics,
	})
	mem.Load(ctx)
	logger.Info("conversation memory initialized", "backend", backendName(cfg), "users", mem.UserCount())

	catalog, err := toolcatalog.Default()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("tool catalog init failed: %w", err)
	}
	categories := make([]string, 0, len(catalog.Categories()))
	for _, c := range catalog.Categories() {
		categories = append(categories, c.Name)
	}
	logger.Info("tool catalog initialized", "categories", strings.Join(categories, ", "))

	registry := buildRegistry(cfg, logger)
	dispatcher := completion.NewDispatcher(registry, completion.Options{
		Timeout:         cfg.CompletionTimeout,
		MaxOutputTokens: cfg.MaxOutputTokens,
		Logger:          logger,
		Metrics:         metrics,
	})

	speech, err := resolveSynthesizer(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	logger.Info("speech synthesis", "synthesizer", speech.detail)

	sessions := session.NewManager()
	sessions.SetTeardownHook(func(s *session.Session) {
		logger.Debug("session released", "session_id", s.ID, "user_id", s.UserID)
	})

	orchestrator := conversation.NewOrchestrator(
		sessions,
		mem,
		prompt.NewAssembler(mem, catalog, cfg.MemoryContextWindow),
		dispatcher,
		speech.synthesizer,
		conversation.Options{
			MaxInFlight:       cfg.MaxInFlightPerConnection,
			SpeechTimeout:     cfg.TTSTimeout,
			StripSpeechMarkup: cfg.TTSStripMarkup,
			Logger:            logger,
			Metrics:           metrics,
		},
	)

	api := httpapi.New(cfg, httpapi.Options{
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Memory:       mem,
		Tools:        catalog,
		Metrics:      metrics,
		Logger:       logger,
	})

	cleanup := func() error {
		flushCtx := context.WithoutCancel(ctx)
		return errors.Join(mem.Flush(flushCtx), store.Close())
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Memory:       mem,
		Catalog:      catalog,
		Orchestrator: orchestrator,
		Metrics:      metrics,
		Providers:    registry.IDs(),
		Speech:       speech.detail,
		Cleanup:      cleanup,
	}, nil
}

// OpenStore opens the configured persistent memory backend.
func OpenStore(ctx context.Context, cfg config.Config) (memory.Store, error) {
	store, err := memory.NewStore(ctx, memory.StoreConfig{
		Backend:     cfg.MemoryBackend,
		FilePath:    cfg.MemoryFilePath,
		SQLitePath:  cfg.MemorySQLitePath,
		DatabaseURL: cfg.DatabaseURL,
		BadgerDir:   cfg.MemoryBadgerDir,
	})
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}
	return store, nil
}

// buildRegistry always registers the hosted backends so a missing key
// surfaces as an in-band provider error rather than an unknown provider.
func buildRegistry(cfg config.Config, logger *slog.Logger) *completion.Registry {
	logger.Info("provider keys",
		"openai", yesNo(cfg.OpenAIAPIKey != ""),
		"anthropic", yesNo(cfg.AnthropicAPIKey != ""),
	)

	registry := completion.NewRegistry(
		provider.NewOpenAI(provider.OpenAIConfig{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL}),
		provider.NewAnthropic(provider.AnthropicConfig{APIKey: cfg.AnthropicAPIKey, BaseURL: cfg.AnthropicBaseURL}),
	)
	if cfg.ProviderHTTPURL != "" {
		registry.Register(provider.NewHTTP(cfg.ProviderHTTPURL, cfg.CompletionTimeout))
		logger.Info("http provider enabled", "url", cfg.ProviderHTTPURL)
	}
	if cfg.ProviderCLIPath != "" {
		registry.Register(provider.NewCLI(cfg.ProviderCLIPath, cfg.ProviderCLIArgs...))
		logger.Info("cli provider enabled", "path", cfg.ProviderCLIPath)
	}
	if cfg.ProviderMock {
		registry.Register(provider.NewMock())
		logger.Warn("mock provider enabled")
	}
	return registry
}

func backendName(cfg config.Config) string {
	switch {
	case cfg.MemoryBackend != "":
		return cfg.MemoryBackend
	case cfg.DatabaseURL != "":
		return "postgres"
	default:
		return "file"
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
