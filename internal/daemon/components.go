package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/radquest/radquest/internal/catalog"
	"github.com/radquest/radquest/internal/config"
	"github.com/radquest/radquest/internal/domain"
	"github.com/radquest/radquest/internal/evaluation"
	"github.com/radquest/radquest/internal/ledger"
	"github.com/radquest/radquest/internal/lifecycle"
	"github.com/radquest/radquest/internal/llm"
	"github.com/radquest/radquest/internal/metrics"
	"github.com/radquest/radquest/internal/progression"
	"github.com/radquest/radquest/internal/queue"
	"github.com/radquest/radquest/internal/storage/postgres"
	"github.com/radquest/radquest/internal/storage/sqlite"
)

// store is everything the services need from a storage backend
type store interface {
	ledger.Store
	progression.Store
	lifecycle.Store
}

// components are the opened dependencies of a server
type components struct {
	store         store
	catalog       catalog.Catalog
	evaluator     evaluation.Evaluator
	providers     []string
	metrics       *metrics.Metrics
	events        *domain.EventDispatcher
	eventsEnabled bool
	closers       []func() error
}

func (c *components) onClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

// closeAll releases what was opened so far after a failed build
func (c *components) closeAll() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func build(ctx context.Context, cfg ServerConfig) (*components, error) {
	c := &components{
		metrics: metrics.New(),
		events:  domain.NewEventDispatcher(),
	}

	sqlDB, err := c.openStore(ctx, cfg)
	if err != nil {
		c.closeAll()
		return nil, err
	}

	if err := c.openCatalog(ctx, cfg.Config, sqlDB, cfg.Logger); err != nil {
		c.closeAll()
		return nil, err
	}

	registry := llm.NewRegistry()
	for _, rp := range setupLLMProviders(registry, cfg.Config, cfg.Logger) {
		c.onClose(rp.Close)
	}
	c.providers = registry.Names()
	c.evaluator = newEvaluator(registry, cfg.Config, c.metrics, cfg.Logger)

	c.connectQueue(cfg.Config, cfg.Logger)

	return c, nil
}

// openStore opens and migrates the configured database. For SQLite it
// returns the database so a SQL catalog can share it.
func (c *components) openStore(ctx context.Context, cfg ServerConfig) (*sqlite.DB, error) {
	switch cfg.Config.Database.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Config.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		c.onClose(func() error { db.Close(); return nil })
		if err := db.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		c.store = postgres.NewStore(db)
		return nil, nil

	default:
		path := cfg.Config.Database.DSN
		if path == "" {
			path = config.SQLitePath(cfg.DataDir)
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		c.onClose(db.Close)
		if err := db.Migrate(); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		c.store = sqlite.NewStore(db)
		return db, nil
	}
}

// openCatalog loads the YAML content and, for the sql source, imports it
// into the database and serves from there. A Redis cache goes in front
// when configured and reachable.
func (c *components) openCatalog(ctx context.Context, cfg *config.Config, sqlDB *sqlite.DB, logger *slog.Logger) error {
	files, err := catalog.OpenFileCatalog(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	c.catalog = files

	if cfg.Catalog.Source == config.CatalogSQL {
		var sc *catalog.SQLCatalog
		if sqlDB != nil {
			sc = catalog.NewSQLCatalog(sqlDB.DB)
		} else {
			sc, err = catalog.OpenPostgresCatalog(cfg.Database.DSN)
			if err != nil {
				return err
			}
			c.onClose(sc.Close)
		}
		if err := sc.Import(ctx, files); err != nil {
			return fmt.Errorf("import catalog: %w", err)
		}
		c.catalog = sc
	}

	if cfg.Redis.Addr == "" {
		return nil
	}
	client, err := catalog.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("catalog cache disabled", "addr", cfg.Redis.Addr, "error", err)
		return nil
	}
	c.onClose(client.Close)

	cached := catalog.NewCachedCatalog(c.catalog, client, cfg.CacheTTL())
	if err := cached.Invalidate(ctx); err != nil {
		logger.Warn("failed to clear catalog cache", "error", err)
	}
	c.catalog = cached
	logger.Info("catalog cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.CacheTTL())
	return nil
}

// setupLLMProviders registers every enabled provider wrapped in the
// resilience layer
func setupLLMProviders(registry *llm.Registry, cfg *config.Config, logger *slog.Logger) []*llm.ResilientProvider {
	var registered []*llm.ResilientProvider
	rcfg := llm.DefaultResilientConfig()
	rcfg.MaxAttempts = cfg.Evaluation.MaxAttempts
	rcfg.RetryDelay = cfg.RetryDelay()
	rcfg.Logger = logger

	for name, providerCfg := range cfg.LLM.Providers {
		if !providerCfg.Enabled {
			continue
		}

		var provider llm.Provider
		switch name {
		case "claude":
			if providerCfg.APIKey == "" {
				logger.Debug("Claude provider enabled but no API key set")
				continue
			}
			provider = llm.NewClaudeProvider(llm.ClaudeConfig{
				APIKey: providerCfg.APIKey,
				Model:  providerCfg.Model,
			})

		case "openai":
			if providerCfg.APIKey == "" {
				logger.Debug("OpenAI provider enabled but no API key set")
				continue
			}
			provider = llm.NewOpenAIProvider(llm.OpenAIConfig{
				APIKey:  providerCfg.APIKey,
				Model:   providerCfg.Model,
				BaseURL: providerCfg.URL,
			})

		case "ollama":
			provider = llm.NewOllamaProvider(llm.OllamaConfig{
				BaseURL: providerCfg.URL,
				Model:   providerCfg.Model,
			})

		default:
			logger.Warn("unknown LLM provider in config", "name", name)
			continue
		}

		rp := llm.NewResilientProvider(provider, rcfg)
		registry.Register(rp)
		registered = append(registered, rp)
		logger.Info("registered LLM provider", "name", name, "model", providerCfg.Model)
	}
	return registered
}

// newEvaluator picks the judge provider. It returns nil when judging is
// switched off or no provider is usable, so the ledger scores without
// verdicts.
func newEvaluator(registry *llm.Registry, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) evaluation.Evaluator {
	name := cfg.LLM.DefaultProvider
	if name == config.ProviderNone {
		logger.Info("reasoning evaluation disabled")
		return nil
	}
	provider, err := registry.Select(name)
	switch {
	case errors.Is(err, llm.ErrNoDefaultProvider):
		logger.Info("no LLM provider registered, evaluation disabled")
		return nil
	case err != nil:
		logger.Warn("configured LLM provider unavailable, evaluation disabled", "provider", name, "error", err)
		return nil
	}
	logger.Info("reasoning evaluation enabled", "provider", provider.Name())

	return evaluation.NewClient(provider, evaluation.Config{
		Timeout: cfg.EvaluationTimeout(),
		Logger:  logger,
		Metrics: m,
	})
}

// connectQueue forwards domain events to RabbitMQ when a URL is set.
// An unreachable broker leaves events unpublished.
func (c *components) connectQueue(cfg *config.Config, logger *slog.Logger) {
	if cfg.RabbitMQ.URL == "" {
		return
	}
	conn, err := queue.NewConnection(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Warn("event publishing disabled", "error", err)
		return
	}
	c.onClose(conn.Close)
	c.events.SubscribeAll(queue.NewProducer(conn).Handler())
	c.eventsEnabled = true
}
