package main

import (
	"context"
	"fmt"

	"github.com/nidhogg/nuka-mind/internal/config"
	"github.com/nidhogg/nuka-mind/internal/embedding"
	"github.com/nidhogg/nuka-mind/internal/memory"
	"github.com/nidhogg/nuka-mind/internal/mind"
	"github.com/nidhogg/nuka-mind/internal/orchestrator"
	"github.com/nidhogg/nuka-mind/internal/provider"
	pgstore "github.com/nidhogg/nuka-mind/internal/store"
	"go.uber.org/zap"
)

// app bundles the long-lived collaborators shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	router   *provider.Router
	embedder embedding.Provider
	backend  memory.Backend
	pg       *pgstore.Store
	bus      *orchestrator.EventBus
	registry *mind.Registry
}

// newApp connects the model providers, embedder and memory backend. With
// infra set it also connects PostgreSQL and Redis when they are configured;
// either one being unavailable only disables its feature.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, infra bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	// Initialize provider router
	a.router = provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		provCfg := provider.ProviderConfig{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Models: pc.Models, Extra: pc.Extra,
		}
		switch pc.Type {
		case "openai":
			a.router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			a.router.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}

	// Initialize embedder
	emb, err := embedding.New(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
		CacheSize: cfg.Embedding.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	a.embedder = emb

	// Initialize memory backend
	a.backend, err = memory.OpenBackend(ctx, cfg, logger)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("memory backend %s: %w", cfg.Memory.Backend, err)
	}
	logger.Info("Memory backend ready", zap.String("backend", a.backend.Name()))

	var publishers orchestrator.Fanout
	var persister mind.Persister
	if infra {
		// Initialize PostgreSQL store
		if cfg.Database.Postgres.DSN != "" {
			ps, pgErr := pgstore.New(ctx, cfg.Database.Postgres.DSN, logger)
			if pgErr != nil {
				logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(pgErr))
			} else if mErr := ps.Migrate(ctx); mErr != nil {
				ps.Close()
				a.close(ctx)
				return nil, fmt.Errorf("migrate: %w", mErr)
			} else {
				a.pg = ps
				persister = ps
				publishers = append(publishers, ps)
			}
		}

		// Initialize event bus
		if cfg.Database.Redis.URL != "" {
			bus, busErr := orchestrator.NewEventBus(cfg.Database.Redis.URL, logger)
			if busErr != nil {
				logger.Warn("Redis unavailable, running without event stream", zap.Error(busErr))
			} else {
				a.bus = bus
				publishers = append(publishers, bus)
			}
		}
	}

	scoring := memory.ScoringFromConfig(cfg.Memory.Scoring)
	opts := mind.Options{
		Backend:           a.backend,
		Embedder:          a.embedder,
		Router:            a.router,
		Pipeline:          mind.PipelineConfig(cfg.Pipeline, scoring),
		SeedImportance:    cfg.Pipeline.SeedImportance,
		ConversationLimit: cfg.Pipeline.ConversationLimit,
		Persister:         persister,
		Logger:            logger,
	}
	if len(publishers) > 0 {
		opts.Publisher = publishers
	}
	a.registry = mind.NewRegistry(opts)
	return a, nil
}

// loadProfiles creates every profile mind that is not registered yet.
func (a *app) loadProfiles(ctx context.Context, dir string) int {
	specs, err := mind.LoadProfiles(dir)
	if err != nil {
		a.logger.Warn("failed to load profiles", zap.String("dir", dir), zap.Error(err))
		return 0
	}
	created := 0
	for _, spec := range specs {
		if _, err := a.registry.Get(spec.ID); err == nil {
			continue
		}
		if _, err := a.registry.Create(ctx, spec); err != nil {
			a.logger.Warn("failed to create mind from profile", zap.String("mind", spec.ID), zap.Error(err))
			continue
		}
		created++
	}
	return created
}

func (a *app) close(ctx context.Context) {
	if a.bus != nil {
		a.bus.Close()
	}
	if a.pg != nil {
		a.pg.Close()
	}
	if a.backend != nil {
		if err := a.backend.Close(ctx); err != nil {
			a.logger.Warn("close memory backend", zap.Error(err))
		}
	}
	if c, ok := a.embedder.(interface{ Close() }); ok {
		c.Close()
	}
}
