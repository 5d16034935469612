package budget

import (
	"context"
	"sync"
	"time"

	"sketchgen/internal/domain"
)

// MemoryLedger is an in-process billing ledger with the same one-row-per-asset upsert
// semantics as the Postgres table. Used with QUEUE_BACKEND=memory and in tests.
type MemoryLedger struct {
	mu     sync.Mutex
	events map[string]domain.BillingEvent
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{events: make(map[string]domain.BillingEvent)}
}

func (l *MemoryLedger) Upsert(_ context.Context, event domain.BillingEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.events[event.AssetID]; ok {
		event.CreatedAt = prev.CreatedAt
	}
	l.events[event.AssetID] = event
	return nil
}

func (l *MemoryLedger) SumBetween(_ context.Context, from, to time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total int64
	for _, e := range l.events {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			total += e.CostCents
		}
	}
	return total, nil
}

func (l *MemoryLedger) GetByAssetID(_ context.Context, assetID string) (*domain.BillingEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.events[assetID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

var _ domain.BillingRepository = (*MemoryLedger)(nil)
