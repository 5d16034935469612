package domain

import (
	"context"
	"time"
)

// AssetRepository persists asset records. Only the asset state machine writes through it.
type AssetRepository interface {
	Create(ctx context.Context, asset *Asset) error
	GetByID(ctx context.Context, id string) (*Asset, error)
	// UpdateStatus writes the new status and fields only if the stored status still
	// equals from; it returns ErrConcurrentUpdate otherwise.
	UpdateStatus(ctx context.Context, id string, from, to AssetStatus, fields AssetFields, updatedAt time.Time) (*Asset, error)
	// Delete removes the record; it returns ErrNotFound when nothing was deleted.
	Delete(ctx context.Context, id string) error
}

// BillingRepository is the append-only (one row per asset) billing ledger.
type BillingRepository interface {
	// Upsert inserts the event or replaces the existing row for the same asset.
	Upsert(ctx context.Context, event BillingEvent) error
	// SumBetween totals cost_cents for events created in [from, to).
	SumBetween(ctx context.Context, from, to time.Time) (int64, error)
	GetByAssetID(ctx context.Context, assetID string) (*BillingEvent, error)
}
