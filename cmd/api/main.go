package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"sketchgen/internal/app"
	"sketchgen/internal/http/handlers"
	"sketchgen/internal/http/httpapi"
	"sketchgen/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Migrate(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api: migrations failed")
	}
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to build application")
	}

	var db handlers.Pinger
	if a.DB != nil {
		db = a.DB
	}
	h := handlers.NewApp(a.Generations, db, int64(cfg.MaxImageBytes())+64*1024, logger)
	router := httpapi.NewRouter(h, httpapi.Options{
		CORSOrigins:     cfg.CORSAllowedOrigins,
		SubmitPerMinute: cfg.HTTPRateLimitPerMin,
		Metrics:         a.Metrics.Handler(),
		StaticDir:       a.StaticDir,
		StaticURLPrefix: a.StaticURLPrefix(),
		Logger:          logger,
	})
	server := infra.NewHTTPServer(cfg, ":"+cfg.Port, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("port", cfg.Port).Msg("api: listening")
		return server.Start()
	})
	// The in-memory queue is process-local, so the api drains it itself.
	if cfg.QueueBackend == infra.QueueBackendMemory {
		g.Go(func() error { return a.Workers.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout())
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("api: stopped with error")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Close(closeCtx)
	logger.Info().Msg("api: stopped")
}
