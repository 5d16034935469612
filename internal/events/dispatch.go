package events

import (
	"context"
	"time"

	"sketchgen/internal/background"
	"sketchgen/internal/domain"
	"sketchgen/internal/router"
)

// Dispatcher hands events to a publisher on a background runner so callers never wait on
// a broker.
type Dispatcher struct {
	pub    Publisher
	runner *background.Runner
	now    func() time.Time
}

func NewDispatcher(pub Publisher, runner *background.Runner) *Dispatcher {
	return &Dispatcher{pub: pub, runner: runner, now: time.Now}
}

// Emit schedules e for delivery. It reports false when the event was dropped.
func (d *Dispatcher) Emit(e Event) bool {
	if d == nil || d.pub == nil {
		return false
	}
	if e.At.IsZero() {
		e.At = d.now().UTC()
	}
	return d.runner.Submit(string(e.Kind), func(ctx context.Context) error {
		return d.pub.Publish(ctx, e)
	})
}

// AssetStatusChanged emits a status change notification.
func (d *Dispatcher) AssetStatusChanged(asset *domain.Asset) {
	e := Event{Kind: KindAssetStatus, AssetID: asset.ID, Status: string(asset.Status), At: asset.UpdatedAt}
	if asset.ErrorCode != nil {
		e.Code = string(*asset.ErrorCode)
	}
	if asset.ErrorMessage != nil {
		e.Message = *asset.ErrorMessage
	}
	d.Emit(e)
}

// BudgetAlert emits a budget threshold warning.
func (d *Dispatcher) BudgetAlert(info domain.BudgetInfo, message string) bool {
	return d.Emit(Event{Kind: KindBudgetAlert, Budget: &info, Message: message})
}

// OnEvent forwards router lifecycle events.
func (d *Dispatcher) OnEvent(re router.Event) {
	e := Event{
		RequestID:   re.RequestID,
		Provider:    string(re.Provider),
		Attempt:     re.Attempt,
		MaxAttempts: re.MaxAttempts,
		DelayMs:     re.Delay.Milliseconds(),
		At:          re.At,
	}
	switch re.Type {
	case router.EventStarted:
		e.Kind = KindRouterStarted
	case router.EventProgress:
		e.Kind = KindRouterProgress
	case router.EventCompleted:
		e.Kind = KindRouterCompleted
	default:
		e.Kind = KindRouterFailed
	}
	if re.Err != nil {
		e.Code = string(re.Err.Code)
		e.Message = re.Err.Message
	}
	d.Emit(e)
}

var _ router.Observer = (*Dispatcher)(nil)
