// Package lifecycle owns every asset status change. Transitions only move forward along
// the pipeline (failed is reachable from any non-terminal state) and are serialized per
// asset by an in-process lock plus a compare-and-set on the stored status.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sketchgen/internal/domain"
	"sketchgen/internal/infra"
)

// Listener is told about every committed transition. It must not block.
type Listener interface {
	AssetStatusChanged(asset *domain.Asset)
}

type Machine struct {
	store     domain.AssetRepository
	logger    infra.Logger
	now       func() time.Time
	listeners []Listener

	mu    sync.Mutex
	locks map[string]*assetLock
}

type assetLock struct {
	mu   sync.Mutex
	refs int
}

func NewMachine(store domain.AssetRepository, logger infra.Logger, listeners ...Listener) *Machine {
	return &Machine{
		store:     store,
		logger:    logger,
		now:       time.Now,
		listeners: listeners,
		locks:     make(map[string]*assetLock),
	}
}

// Create stores a new pending asset, assigning an id when empty.
func (m *Machine) Create(ctx context.Context, asset *domain.Asset) error {
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	now := m.now().UTC()
	asset.Status = domain.AssetStatusPending
	asset.CreatedAt = now
	asset.UpdatedAt = now
	if err := m.store.Create(ctx, asset); err != nil {
		return fmt.Errorf("create asset: %w", err)
	}
	m.notify(asset)
	return nil
}

func (m *Machine) Get(ctx context.Context, assetID string) (*domain.Asset, error) {
	return m.store.GetByID(ctx, assetID)
}

// Transition moves the asset to status, applying fields. It returns
// domain.ErrInvalidTransition for backward moves or moves out of a terminal state.
func (m *Machine) Transition(ctx context.Context, assetID string, status domain.AssetStatus, fields domain.AssetFields) (*domain.Asset, error) {
	return m.transition(ctx, assetID, status, fields, false)
}

// Advance is Transition for resumed work: a target that is not ahead of the current status
// leaves the asset untouched and returns it without error.
func (m *Machine) Advance(ctx context.Context, assetID string, status domain.AssetStatus, fields domain.AssetFields) (*domain.Asset, error) {
	return m.transition(ctx, assetID, status, fields, true)
}

// Fail moves the asset to failed with the code and message of err.
func (m *Machine) Fail(ctx context.Context, assetID string, err *domain.Error) (*domain.Asset, error) {
	return m.Transition(ctx, assetID, domain.AssetStatusFailed, domain.FailureFields(err))
}

func (m *Machine) transition(ctx context.Context, assetID string, to domain.AssetStatus, fields domain.AssetFields, resume bool) (*domain.Asset, error) {
	unlock := m.lock(assetID)
	defer unlock()

	current, err := m.store.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(current.Status, to) {
		if resume && (current.Status == to || current.Status.Ahead(to)) {
			return current, nil
		}
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, to)
	}
	updated, err := m.store.UpdateStatus(ctx, assetID, current.Status, to, fields, m.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrConcurrentUpdate) {
			m.logger.Warn().Str("asset_id", assetID).Str("from", string(current.Status)).Str("to", string(to)).Msg("lifecycle: lost status race")
		}
		return nil, err
	}
	m.logger.Debug().Str("asset_id", assetID).Str("from", string(current.Status)).Str("to", string(to)).Msg("lifecycle: transition")
	m.notify(updated)
	return updated, nil
}

// Delete removes a finished asset. Assets still moving through the pipeline return
// domain.ErrJobInFlight.
func (m *Machine) Delete(ctx context.Context, assetID string) (*domain.Asset, error) {
	unlock := m.lock(assetID)
	defer unlock()

	current, err := m.store.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if !current.Status.Terminal() {
		return nil, fmt.Errorf("%w: asset is %s", domain.ErrJobInFlight, current.Status)
	}
	if err := m.store.Delete(ctx, assetID); err != nil {
		return nil, err
	}
	return current, nil
}

func (m *Machine) notify(asset *domain.Asset) {
	for _, l := range m.listeners {
		l.AssetStatusChanged(asset)
	}
}

// lock takes the per-asset mutex; entries are dropped once no caller holds them.
func (m *Machine) lock(assetID string) func() {
	m.mu.Lock()
	l, ok := m.locks[assetID]
	if !ok {
		l = &assetLock{}
		m.locks[assetID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, assetID)
		}
		m.mu.Unlock()
	}
}
