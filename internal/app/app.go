// Package app assembles the pipeline from configuration. Both binaries build the same
// graph; the api serves it over HTTP and the worker drains its queue.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"

	"sketchgen/internal/adapter/repo"
	"sketchgen/internal/background"
	"sketchgen/internal/budget"
	"sketchgen/internal/domain"
	"sketchgen/internal/events"
	"sketchgen/internal/generation"
	"sketchgen/internal/infra"
	"sketchgen/internal/infra/credentials"
	"sketchgen/internal/lifecycle"
	"sketchgen/internal/metrics"
	"sketchgen/internal/moderation"
	"sketchgen/internal/providers"
	"sketchgen/internal/providers/catalog"
	"sketchgen/internal/queue"
	"sketchgen/internal/ratelimit"
	"sketchgen/internal/router"
	"sketchgen/internal/storage"
	"sketchgen/internal/worker"
)

const rateLimitKey = "sketchgen:provider-calls"

// App is the assembled component graph.
type App struct {
	Config      *infra.Config
	Logger      infra.Logger
	DB          *pgxpool.Pool
	Metrics     *metrics.Metrics
	Generations *generation.Service
	Workers     *worker.Pool
	Guardian    *budget.Guardian
	Queue       queue.Queue
	Credentials *credentials.Store
	// StaticDir is the filesystem storage root, empty for object storage.
	StaticDir string

	runners []*background.Runner
	closers []func() error
}

// Build connects every backend named by cfg. On error, whatever was opened is closed.
func Build(ctx context.Context, cfg *infra.Config, logger infra.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	var (
		assets  domain.AssetRepository
		billing domain.BillingRepository
		creds   credentials.Source
	)
	static := credentials.Static{
		string(providers.Qwen):   cfg.QwenAPIKey,
		string(providers.OpenAI): cfg.OpenAIAPIKey,
		string(providers.Gemini): cfg.GeminiAPIKey,
	}
	switch cfg.QueueBackend {
	case infra.QueueBackendPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.DB = pool
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		runner := infra.NewSQLRunner(pool, logger)
		assets = repo.NewAssetRepository(runner)
		billing = repo.NewBillingRepository(runner)
		a.Queue = repo.NewJobQueue(runner)
		a.Credentials = credentials.NewStore(runner)
		creds = credentials.Chain{static, a.Credentials}
	default:
		logger.Warn().Msg("app: in-memory queue and stores; state is lost on restart")
		assets = lifecycle.NewMemoryStore()
		billing = budget.NewMemoryLedger()
		a.Queue = queue.NewMemory(time.Now)
		creds = static
	}

	publisher, err := a.publisher(cfg, logger)
	if err != nil {
		return nil, err
	}
	dispatcher := events.NewDispatcher(publisher, a.runner("events", 256, logger))

	limiter, err := a.limiter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	clients, err := catalog.All(catalog.OptionsFromConfig(cfg, &logger))
	if err != nil {
		return nil, err
	}
	if !cfg.SyntheticProvider {
		delete(clients, providers.Synthetic)
	}
	rt := router.New(router.Config{
		Clients:     clients,
		Credentials: creds,
		Limiter:     limiter,
		MinAttempts: cfg.RouterMinAttempts,
		CallTimeout: cfg.ProviderTimeout(),
		Logger:      logger,
	})
	rt.Register(a.Metrics)
	rt.Register(dispatcher)

	detector, err := a.detector(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	gate := moderation.NewGate(detector, moderation.Options{Timeout: cfg.ModerationTimeout(), Logger: logger})

	backend, err := a.backend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	uploader := storage.NewUploader(backend, storage.Options{
		BaseURL: cfg.StorageBaseURL,
		Runner:  a.runner("storage", 64, logger),
		Logger:  logger,
	})

	machine := lifecycle.NewMachine(assets, logger, dispatcher)
	a.Guardian = budget.NewGuardian(billing, budget.Options{
		LimitCents: cfg.MonthlyBudgetCents,
		Alerter:    dispatcher,
		Observer:   a.Metrics,
		Logger:     logger,
	})

	pipeline := worker.NewPipeline(worker.PipelineDeps{
		Queue:      a.Queue,
		Assets:     machine,
		Moderation: gate,
		Generator:  rt,
		Uploader:   uploader,
		Billing:    budget.NewRecorder(billing, cfg.CostPerImageCents),
		Observer:   a.Metrics,
		Logger:     logger,
	})
	a.Workers = worker.NewPool(a.Queue, pipeline, worker.PoolConfig{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.JobPollInterval(),
		RetryBase:    cfg.JobRetryBase(),
		Depth:        a.Metrics,
		Logger:       logger,
		Retention:    cfg.JobRetention(),
		PurgeEvery:   cfg.JobPurgeInterval(),
	})

	a.Generations = generation.NewService(generation.Config{
		MaxImageBase64Bytes: cfg.MaxImageBytes(),
		EstimatedJobMs:      int64(cfg.EstimatedJobMs),
		WorkerConcurrency:   cfg.WorkerConcurrency,
		JobMaxAttempts:      cfg.JobMaxAttempts,
		DefaultProvider:     cfg.DefaultProvider,
		FallbackProviders:   cfg.FallbackProviders,
		Privileged:          cfg.IsPrivileged,
	}, generation.Deps{
		Budget:    a.Guardian,
		Assets:    machine,
		Queue:     a.Queue,
		Artifacts: uploader,
		Observer:  a.Metrics,
		Logger:    logger,
	})
	return a, nil
}

func (a *App) runner(name string, size int, logger infra.Logger) *background.Runner {
	r := background.NewRunner(name, background.Options{QueueSize: size, OnDrop: a.Metrics.TaskDropped}, logger)
	a.runners = append(a.runners, r)
	return r
}

func (a *App) publisher(cfg *infra.Config, logger infra.Logger) (events.Publisher, error) {
	logPub := events.NewLogPublisher(logger)
	if cfg.AMQPURL == "" {
		return logPub, nil
	}
	conn, err := infra.NewAMQPConnection(cfg)
	if err != nil {
		return nil, err
	}
	pub, err := events.NewAMQPPublisher(conn, events.DefaultExchange, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	a.closers = append(a.closers, pub.Close, closeAMQP(conn))
	return events.Multi{logPub, pub}, nil
}

func closeAMQP(conn *amqp.Connection) func() error {
	return func() error {
		if conn.IsClosed() {
			return nil
		}
		return conn.Close()
	}
}

// limiter shares the provider call window through Redis when configured so that every
// worker process draws from one budget.
func (a *App) limiter(ctx context.Context, cfg *infra.Config) (ratelimit.Limiter, error) {
	if cfg.RedisURL == "" {
		return ratelimit.NewWindow(cfg.RateLimitMax, cfg.RateLimitWindow(), time.Now), nil
	}
	client, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return ratelimit.NewRedis(client, rateLimitKey, cfg.RateLimitMax, cfg.RateLimitWindow()), nil
}

func (a *App) detector(ctx context.Context, cfg *infra.Config, logger infra.Logger) (moderation.Detector, error) {
	if !cfg.ModerationEnabled {
		logger.Warn().Msg("app: content moderation disabled")
		return moderation.AllowAll(), nil
	}
	if cfg.GoogleVisionAPIKey == "" {
		return nil, errors.New("GOOGLE_VISION_API_KEY is required when MODERATION_ENABLED is true")
	}
	return moderation.NewVisionDetector(ctx, cfg.GoogleVisionAPIKey, logger)
}

func (a *App) backend(ctx context.Context, cfg *infra.Config) (storage.Backend, error) {
	if cfg.StorageBackend == infra.StorageBackendGCS {
		store, err := storage.NewGCSStore(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	}
	path := cfg.StoragePath
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	store, err := storage.NewFileStore(path)
	if err != nil {
		return nil, err
	}
	a.StaticDir = store.BasePath()
	return store, nil
}

// StaticURLPrefix is the path under which filesystem artifacts are served, derived from
// STORAGE_BASE_URL. It is empty when artifacts live in object storage.
func (a *App) StaticURLPrefix() string {
	if a.StaticDir == "" {
		return ""
	}
	u, err := url.Parse(a.Config.StorageBaseURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return ""
	}
	return u.Path
}

// Migrate applies schema migrations when the queue lives in Postgres.
func Migrate(cfg *infra.Config, logger infra.Logger) error {
	if cfg.QueueBackend != infra.QueueBackendPostgres {
		return nil
	}
	if err := infra.Migrate(cfg.DatabaseURL, logger); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}

// Close drains background runners, then closes connections in reverse order of opening.
func (a *App) Close(ctx context.Context) {
	for _, r := range a.runners {
		if err := r.Close(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("app: background runner did not drain")
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn().Err(err).Msg("app: close failed")
		}
	}
	a.closers = nil
	a.runners = nil
}
