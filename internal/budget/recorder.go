package budget

import (
	"context"
	"fmt"
	"time"

	"sketchgen/internal/domain"
)

// Recorder writes the single billing row of an asset at a fixed per-image cost. Router
// retries inside one job are not billed separately; apiCalls only documents them.
type Recorder struct {
	repo      domain.BillingRepository
	costCents int64
	now       func() time.Time
}

func NewRecorder(repo domain.BillingRepository, costCents int64) *Recorder {
	return &Recorder{repo: repo, costCents: costCents, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, assetID string, status domain.BillingStatus, apiCalls int) error {
	event := domain.BillingEvent{
		AssetID:   assetID,
		CostCents: r.costCents,
		APICalls:  apiCalls,
		Status:    status,
		CreatedAt: r.now().UTC(),
	}
	if err := r.repo.Upsert(ctx, event); err != nil {
		return fmt.Errorf("record billing event for %s: %w", assetID, err)
	}
	return nil
}
