package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sketchgen/internal/infra"
)

const commandTimeout = 30 * time.Second

// env is what every database-backed command needs.
type env struct {
	cfg    *infra.Config
	logger infra.Logger
	pool   *pgxpool.Pool
	sql    *infra.SQLRunner
}

// openEnv loads configuration and connects to Postgres. Only the database settings have
// to be valid; the rest of the configuration is not consulted.
func openEnv(ctx context.Context) (*env, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	logger := infra.NewLogger(cfg.AppEnv, "")
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, pool: pool, sql: infra.NewSQLRunner(pool, logger)}, nil
}

func (e *env) Close() {
	e.pool.Close()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
