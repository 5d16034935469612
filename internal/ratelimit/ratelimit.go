// Package ratelimit caps provider-bound calls across all workers with a rolling window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter blocks until a call may proceed or ctx ends.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Window is an in-process rolling-window limiter: at most Max calls in any Window-long
// interval. It is safe for concurrent use.
type Window struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	now    func() time.Time
	calls  []time.Time
}

// NewWindow creates a limiter. A nil clock defaults to time.Now.
func NewWindow(max int, window time.Duration, now func() time.Time) *Window {
	if now == nil {
		now = time.Now
	}
	if max <= 0 {
		max = 1
	}
	return &Window{max: max, window: window, now: now}
}

// Reserve records a call if the window has room and returns zero; otherwise it records
// nothing and returns how long until the oldest call leaves the window.
func (w *Window) Reserve() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)
	keep := w.calls[:0]
	for _, t := range w.calls {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	w.calls = keep
	if len(w.calls) < w.max {
		w.calls = append(w.calls, now)
		return 0
	}
	return w.calls[0].Add(w.window).Sub(now)
}

func (w *Window) Wait(ctx context.Context) error {
	return waitFor(ctx, func(context.Context) (time.Duration, error) {
		return w.Reserve(), nil
	})
}

// waitFor polls reserve until it grants a slot.
func waitFor(ctx context.Context, reserve func(context.Context) (time.Duration, error)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delay, err := reserve(ctx)
		if err != nil {
			return err
		}
		if delay <= 0 {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Unlimited never blocks.
type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}
