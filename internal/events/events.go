// Package events fans pipeline notifications (router progress, asset status changes,
// budget alerts) out to log and RabbitMQ sinks.
package events

import (
	"context"
	"errors"
	"time"

	"sketchgen/internal/domain"
	"sketchgen/internal/infra"
)

// Kind names an event for routing keys and log fields.
type Kind string

const (
	KindRouterStarted   Kind = "router.started"
	KindRouterProgress  Kind = "router.progress"
	KindRouterCompleted Kind = "router.completed"
	KindRouterFailed    Kind = "router.failed"
	KindAssetStatus     Kind = "asset.status_changed"
	KindBudgetAlert     Kind = "budget.alert"
)

// Event is the wire payload published for every notification.
type Event struct {
	Kind        Kind               `json:"kind"`
	RequestID   string             `json:"request_id,omitempty"`
	AssetID     string             `json:"asset_id,omitempty"`
	Provider    string             `json:"provider,omitempty"`
	Status      string             `json:"status,omitempty"`
	Code        string             `json:"code,omitempty"`
	Message     string             `json:"message,omitempty"`
	Attempt     int                `json:"attempt,omitempty"`
	MaxAttempts int                `json:"max_attempts,omitempty"`
	DelayMs     int64              `json:"delay_ms,omitempty"`
	Budget      *domain.BudgetInfo `json:"budget,omitempty"`
	At          time.Time          `json:"at"`
}

// Publisher delivers events to one sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher writes events as structured log records.
type LogPublisher struct {
	logger infra.Logger
}

func NewLogPublisher(logger infra.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	level := p.logger.Info()
	switch e.Kind {
	case KindRouterFailed, KindBudgetAlert:
		level = p.logger.Warn()
	case KindRouterProgress:
		level = p.logger.Debug()
	}
	level.
		Str("kind", string(e.Kind)).
		Str("request_id", e.RequestID).
		Str("asset_id", e.AssetID).
		Str("provider", e.Provider).
		Str("status", e.Status).
		Str("code", e.Code).
		Int("attempt", e.Attempt).
		Int64("delay_ms", e.DelayMs).
		Msg("events: " + e.Message)
	return nil
}

// Multi publishes to every sink and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
