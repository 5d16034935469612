package repo

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"sketchgen/internal/domain"
	"sketchgen/internal/infra"
	"sketchgen/internal/sqlinline"
)

// BillingRepositoryPG implements domain.BillingRepository.
type BillingRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewBillingRepository(sql infra.SQLExecutor) *BillingRepositoryPG {
	return &BillingRepositoryPG{sql: sql}
}

func (r *BillingRepositoryPG) Upsert(ctx context.Context, event domain.BillingEvent) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpsertBillingEvent,
		event.AssetID,
		event.CostCents,
		event.APICalls,
		string(event.Status),
		event.CreatedAt,
	)
	return err
}

func (r *BillingRepositoryPG) SumBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var total int64
	if err := r.sql.QueryRow(ctx, sqlinline.QSumBillingBetween, from, to).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *BillingRepositoryPG) GetByAssetID(ctx context.Context, assetID string) (*domain.BillingEvent, error) {
	var event domain.BillingEvent
	if err := pgxscan.Get(ctx, r.sql, &event, sqlinline.QSelectBillingEvent, assetID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &event, nil
}

var _ domain.BillingRepository = (*BillingRepositoryPG)(nil)
