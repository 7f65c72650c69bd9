package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	infraes "github.com/north-cloud/huv-matcher/infrastructure/elasticsearch"
	infralogger "github.com/north-cloud/huv-matcher/infrastructure/logger"
	infraredis "github.com/north-cloud/huv-matcher/infrastructure/redis"
	"github.com/north-cloud/huv-matcher/infrastructure/retry"
	"github.com/north-cloud/huv-matcher/internal/aimatch"
	"github.com/north-cloud/huv-matcher/internal/config"
	"github.com/north-cloud/huv-matcher/internal/database"
	"github.com/north-cloud/huv-matcher/internal/inference"
	"github.com/north-cloud/huv-matcher/internal/matching"
	"github.com/north-cloud/huv-matcher/internal/reference"
	"github.com/north-cloud/huv-matcher/internal/runner"
	"github.com/north-cloud/huv-matcher/internal/storage"
	"github.com/north-cloud/huv-matcher/internal/telemetry"
)

const driverMemory = "memory"

// App holds the wired components. Optional parts are nil when not configured.
type App struct {
	Config    *config.Config
	Logger    infralogger.Logger
	Telemetry *telemetry.Provider
	Provider  reference.Provider
	Engine    *matching.Engine
	AI        *aimatch.Service
	Runner    *runner.Runner
	// Results is set when reference data lives in a database.
	Results *storage.ResultsRepository

	DB        *sqlx.DB
	Redis     *goredis.Client
	Inference inference.Client
	ollama    *inference.OllamaClient
	sql       *reference.SQLProvider
	memory    *reference.MemoryProvider
	closers   []func() error
}

// Build wires every component from cfg. On error everything opened so far
// is closed.
func Build(ctx context.Context, cfg *config.Config, log infralogger.Logger) (*App, error) {
	app := &App{
		Config:    cfg,
		Logger:    infralogger.OrNop(log),
		Telemetry: telemetry.NewProvider(),
	}
	if err := app.wire(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context) error {
	if err := a.setupReference(ctx); err != nil {
		return err
	}

	a.Engine = matching.NewEngine(a.Config.Matching, a.Logger, matching.WithObserver(a.Telemetry))

	if err := a.setupAI(); err != nil {
		return err
	}

	sink, err := a.setupSinks(ctx)
	if err != nil {
		return err
	}

	opts := []runner.Option{runner.WithObserver(a.Telemetry), runner.WithAI(a.AI)}
	if sink != nil {
		opts = append(opts, runner.WithSink(sink))
	}
	a.Runner = runner.New(a.Provider, a.Engine, runner.Config{
		ChunkSize:      a.Config.Batch.ChunkSize,
		Concurrency:    a.Config.Batch.Concurrency,
		FilterByBranch: a.Config.AI.FilterByBranch,
	}, a.Logger, opts...)
	return nil
}

func (a *App) setupReference(ctx context.Context) error {
	cfg := a.Config
	if cfg.Reference.Driver == driverMemory {
		p, err := reference.LoadDataset(cfg.Reference.DatasetPath)
		if err != nil {
			return fmt.Errorf("failed to load reference dataset: %w", err)
		}
		a.Logger.Info("Loaded reference dataset", infralogger.String("path", cfg.Reference.DatasetPath))
		a.memory = p
		a.Provider = p
		return nil
	}

	dbCfg := cfg.Database
	dbCfg.Driver = cfg.Reference.Driver

	a.Logger.Info("Connecting to reference database", infralogger.String("driver", dbCfg.Driver))
	db, err := database.Open(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	a.sql = reference.NewSQLProvider(db, retry.DefaultConfig())
	var provider reference.Provider = a.sql
	a.Results = storage.NewResultsRepository(db)

	if cfg.Reference.CacheEnabled {
		client, err := infraredis.NewClient(ctx, infraredis.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.Redis = client
		a.closers = append(a.closers, client.Close)
		provider = reference.NewCachedProvider(provider, client, cfg.Reference.CacheTTL, a.Logger)
		a.Logger.Info("Candidate cache enabled", infralogger.Duration("ttl", cfg.Reference.CacheTTL))
	}

	a.Provider = provider
	return nil
}

func (a *App) setupAI() error {
	cfg := a.Config.AI

	var client inference.Client
	switch cfg.Provider {
	case config.ProviderAnthropic:
		c, err := inference.NewAnthropicClient(inference.AnthropicConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.Endpoint,
		})
		if err != nil {
			return fmt.Errorf("failed to create anthropic client: %w", err)
		}
		client = c
	default:
		c, err := inference.NewOllamaClient(inference.OllamaConfig{
			Endpoint: cfg.Endpoint,
			Model:    cfg.Model,
		})
		if err != nil {
			return fmt.Errorf("failed to create ollama client: %w", err)
		}
		a.ollama = c
		client = c
	}

	a.Inference = inference.NewGuarded(client, inference.GuardConfig{
		RequestsPerSecond: cfg.RateLimit,
		Burst:             cfg.Burst,
		Breaker:           cfg.Breaker,
	}, a.Logger)

	a.AI = aimatch.NewService(a.Provider, a.Inference, a.Engine, cfg.Config, a.Logger,
		aimatch.WithObserver(a.Telemetry),
		aimatch.WithTracer(a.Telemetry.Tracer),
	)
	a.Logger.Info("AI matching configured",
		infralogger.String("provider", cfg.Provider),
		infralogger.String("model", cfg.Model),
		infralogger.Float64("min_confidence", cfg.MinConfidence),
	)
	return nil
}

func (a *App) setupSinks(ctx context.Context) (storage.ResultSink, error) {
	var sinks storage.MultiSink
	if a.Results != nil {
		sinks = append(sinks, a.Results)
	}

	esCfg := a.Config.Elasticsearch
	if esCfg.URL != "" {
		client, err := infraes.NewClient(ctx, esCfg, retry.DefaultConfig(), a.Logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, storage.NewElasticsearchIndexer(client, esCfg.ResultsIndex))
		a.Logger.Info("Indexing results to Elasticsearch", infralogger.String("index", esCfg.ResultsIndex))
	}

	if len(sinks) == 0 {
		return nil, nil
	}
	return sinks, nil
}

// ListSourceIDs returns every known source id.
func (a *App) ListSourceIDs(ctx context.Context) ([]string, error) {
	switch {
	case a.sql != nil:
		return a.sql.ListSourceIDs(ctx)
	case a.memory != nil:
		return a.memory.SourceIDs(), nil
	default:
		return nil, errors.New("no reference provider configured")
	}
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
