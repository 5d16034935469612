package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"sketchgen/internal/domain"
	"sketchgen/internal/generation"
	"sketchgen/internal/infra"
	"sketchgen/internal/queue"
)

// Generations is the admission and status surface the handlers expose.
type Generations interface {
	Submit(ctx context.Context, req generation.SubmitRequest) (*generation.SubmitResult, error)
	GetStatus(ctx context.Context, assetID string) (*domain.Asset, error)
	Cancel(ctx context.Context, jobID string) (queue.CancelResult, error)
	DeleteAsset(ctx context.Context, assetID string) error
	Budget(ctx context.Context) (domain.BudgetInfo, error)
}

// Pinger reports backing-store health; *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Generations  Generations
	DB           Pinger
	Logger       infra.Logger
	MaxBodyBytes int64
}

func NewApp(gen Generations, db Pinger, maxBodyBytes int64, logger infra.Logger) *App {
	return &App{Generations: gen, DB: db, MaxBodyBytes: maxBodyBytes, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
