package repo

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"sketchgen/internal/domain"
	"sketchgen/internal/infra"
	"sketchgen/internal/sqlinline"
)

// AssetRepositoryPG implements domain.AssetRepository using PostgreSQL.
type AssetRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewAssetRepository constructs a new asset repository instance.
func NewAssetRepository(sql infra.SQLExecutor) *AssetRepositoryPG {
	return &AssetRepositoryPG{sql: sql}
}

// Create inserts a new asset record.
func (r *AssetRepositoryPG) Create(ctx context.Context, asset *domain.Asset) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertAsset,
		asset.ID,
		asset.ProjectID,
		asset.SourceSketchID,
		asset.Prompt,
		string(asset.Status),
		asset.CreatedAt,
	)
	return err
}

// GetByID fetches an asset by its identifier.
func (r *AssetRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Asset, error) {
	var asset domain.Asset
	if err := pgxscan.Get(ctx, r.sql, &asset, sqlinline.QSelectAssetByID, id); err != nil {
		if pgxscan.NotFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &asset, nil
}

// UpdateStatus moves the asset from one status to another in a single compare-and-set.
func (r *AssetRepositoryPG) UpdateStatus(ctx context.Context, id string, from, to domain.AssetStatus, fields domain.AssetFields, updatedAt time.Time) (*domain.Asset, error) {
	var errorCode *string
	if fields.ErrorCode != nil {
		code := string(*fields.ErrorCode)
		errorCode = &code
	}
	var asset domain.Asset
	err := pgxscan.Get(ctx, r.sql, &asset, sqlinline.QUpdateAssetStatus,
		id,
		string(from),
		string(to),
		fields.StorageURL,
		errorCode,
		fields.ErrorMessage,
		fields.AIModelVersion,
		fields.GenerationSeed,
		fields.ProcessingTimeMs,
		updatedAt,
	)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, domain.ErrConcurrentUpdate
		}
		return nil, err
	}
	return &asset, nil
}

// Delete removes the asset; queued jobs referencing it are removed by the foreign key.
func (r *AssetRepositoryPG) Delete(ctx context.Context, id string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteAsset, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.AssetRepository = (*AssetRepositoryPG)(nil)
