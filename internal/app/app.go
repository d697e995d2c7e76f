// Package app wires configuration, storage, providers and services into a
// runnable application shared by the server and the ops CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"gorm.io/gorm"

	"github.com/tgo/captain/knowdesk/internal/chunker"
	"github.com/tgo/captain/knowdesk/internal/config"
	"github.com/tgo/captain/knowdesk/internal/database"
	"github.com/tgo/captain/knowdesk/internal/handler"
	"github.com/tgo/captain/knowdesk/internal/llm"
	"github.com/tgo/captain/knowdesk/internal/pkg/redis"
	"github.com/tgo/captain/knowdesk/internal/repository"
	"github.com/tgo/captain/knowdesk/internal/repository/memory"
	"github.com/tgo/captain/knowdesk/internal/service"
)

// Options override the providers built from config. Tests and the CLI use
// them to run without network access.
type Options struct {
	ChatModel model.BaseChatModel
	Embedder  embedding.Embedder
	// SkipMigrate leaves the schema untouched on startup.
	SkipMigrate bool
}

type Stores struct {
	Tenants   service.TenantStore
	Documents service.DocumentStore
	Chunks    service.ChunkIndex
	Jobs      service.CrawlJobStore
	QueryLogs service.QueryLogStore
}

type App struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *gorm.DB
	Cache  *redis.Client
	Stores Stores

	Tenants *service.TenantService
	Crawl   *service.CrawlService
	Jobs    *service.CrawlJobManager
	Query   *service.QueryService
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := a.openStores(opts.SkipMigrate); err != nil {
		return nil, err
	}

	if cfg.RedisURL != "" {
		cache, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, provider cache disabled", "error", err)
		} else {
			a.Cache = cache
			logger.Info("provider cache enabled")
		}
	}

	providers, err := a.buildProviders(ctx, opts)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Tenants = service.NewTenantService(a.Stores.Tenants, a.Stores.Documents)

	a.Crawl, err = service.NewCrawlService(service.CrawlDeps{
		Tenants:   a.Stores.Tenants,
		Documents: a.Stores.Documents,
		Chunks:    a.Stores.Chunks,
		Jobs:      a.Stores.Jobs,
		Fetcher:   service.NewHTTPFetcher(cfg.CrawlFetchTimeout, cfg.CrawlUserAgent),
		Embedder:  providers.embedder,
		Detector:  providers.detector,
	}, service.CrawlConfig{
		MaxPages:    cfg.CrawlMaxPages,
		MaxDepth:    cfg.CrawlMaxDepth,
		RateLimitMs: cfg.CrawlRateLimitMs,
		Chunking: chunker.Config{
			ChunkSizeTokens: cfg.ChunkSizeTokens,
			OverlapTokens:   cfg.ChunkOverlapTokens,
		},
		ProviderTimeout: cfg.ProviderTimeout,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("crawl service: %w", err)
	}
	a.Jobs = service.NewCrawlJobManager(a.Crawl, a.Stores.Jobs)

	a.Query = service.NewQueryService(service.QueryDeps{
		Tenants:    a.Stores.Tenants,
		Chunks:     a.Stores.Chunks,
		QueryLogs:  a.Stores.QueryLogs,
		Detector:   providers.detector,
		Translator: providers.translator,
		Embedder:   providers.embedder,
		Generator:  providers.generator,
	}, service.QueryConfig{
		TopK:                cfg.QueryTopK,
		SimilarityThreshold: cfg.QuerySimilarityThreshold,
		Temperature:         float32(cfg.AnswerTemperature),
		MaxTokens:           cfg.AnswerMaxTokens,
		ProviderTimeout:     cfg.ProviderTimeout,
	})

	return a, nil
}

func (a *App) openStores(skipMigrate bool) error {
	switch a.Config.StoreDriver {
	case "memory":
		store := memory.New(a.Config.EmbeddingDimensions)
		a.Stores = Stores{
			Tenants:   store.Tenants(),
			Documents: store.Documents(),
			Chunks:    store.Chunks(),
			Jobs:      store.CrawlJobs(),
			QueryLogs: store.QueryLogs(),
		}
		a.Logger.Warn("using in-memory store, data is lost on exit")
		return nil
	case "postgres":
		db, err := database.Connect(a.Config)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		if !skipMigrate {
			if err := database.AutoMigrate(db, a.Config.EmbeddingDimensions); err != nil {
				if sqlDB, dbErr := db.DB(); dbErr == nil {
					_ = sqlDB.Close()
				}
				return fmt.Errorf("migrate database: %w", err)
			}
		}
		a.DB = db
		a.Stores = Stores{
			Tenants:   repository.NewTenantRepository(db),
			Documents: repository.NewDocumentRepository(db),
			Chunks:    repository.NewChunkRepository(db, a.Config.EmbeddingDimensions),
			Jobs:      repository.NewCrawlJobRepository(db),
			QueryLogs: repository.NewQueryLogRepository(db),
		}
		return nil
	default:
		return fmt.Errorf("unknown store driver %q", a.Config.StoreDriver)
	}
}

type providerSet struct {
	embedder   llm.Embedder
	generator  llm.Generator
	detector   llm.LanguageDetector
	translator llm.Translator
}

func (a *App) buildProviders(ctx context.Context, opts Options) (*providerSet, error) {
	cfg := a.Config
	factory := llm.NewFactory()
	kind := llm.ProviderKind(cfg.LLMProvider)

	chatModel := opts.ChatModel
	if chatModel == nil {
		var err error
		chatModel, err = factory.CreateChatModel(ctx, &llm.ProviderConfig{
			Kind:    kind,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.ChatModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("create chat model: %w", err)
		}
	}

	embedder := opts.Embedder
	if embedder == nil {
		var err error
		embedder, err = factory.CreateEmbedder(ctx, &llm.ProviderConfig{
			Kind:    kind,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.EmbeddingModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
	}

	set := &providerSet{
		embedder:   llm.NewEmbeddingService(embedder, cfg.EmbeddingDimensions),
		generator:  llm.NewChatGenerator(chatModel),
		detector:   llm.NewChatLanguageDetector(chatModel),
		translator: llm.NewChatTranslator(chatModel),
	}
	if a.Cache != nil {
		set.detector = llm.NewCachedDetector(set.detector, a.Cache, cfg.CacheTTL)
		set.translator = llm.NewCachedTranslator(set.translator, a.Cache, cfg.CacheTTL)
	}
	return set, nil
}

// Ready pings the database and the cache when they are configured.
func (a *App) Ready(ctx context.Context) error {
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *App) Services() *handler.Services {
	return &handler.Services{
		Tenants: a.Tenants,
		Crawl:   a.Crawl,
		Jobs:    a.Jobs,
		Query:   a.Query,
		Ready:   a.Ready,
	}
}

// Close releases the database and cache connections.
func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
