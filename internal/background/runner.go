// Package background runs fire-and-forget side effects (alerts, artifact cleanup) on a
// bounded queue. When the queue is full new tasks are dropped, never blocking the caller.
package background

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"sketchgen/internal/infra"
)

// Task is a unit of background work. Its error is logged and otherwise ignored.
type Task func(ctx context.Context) error

type queuedTask struct {
	label string
	run   Task
}

// Runner drains tasks with a fixed number of goroutines.
type Runner struct {
	name    string
	tasks   chan queuedTask
	timeout time.Duration
	logger  infra.Logger
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	dropped   atomic.Int64
	failed    atomic.Int64
	onDrop    func(name string)
}

// Options tunes a Runner. Zero values pick small defaults.
type Options struct {
	QueueSize   int
	Workers     int
	TaskTimeout time.Duration
	// OnDrop is called, outside any lock, each time a task is discarded.
	OnDrop func(name string)
}

// NewRunner starts the workers immediately; Close stops them.
func NewRunner(name string, opts Options, logger infra.Logger) *Runner {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		name:    name,
		tasks:   make(chan queuedTask, opts.QueueSize),
		timeout: opts.TaskTimeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		onDrop:  opts.OnDrop,
	}
	for i := 0; i < opts.Workers; i++ {
		r.wg.Add(1)
		go r.work()
	}
	return r
}

// Submit enqueues task without blocking. It reports false when the task was dropped
// because the queue is full or the runner is closed.
func (r *Runner) Submit(label string, task Task) bool {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		r.drop(label, "closed")
		return false
	}
	select {
	case r.tasks <- queuedTask{label: label, run: task}:
		r.mu.RUnlock()
		return true
	default:
		r.mu.RUnlock()
		r.drop(label, "queue full")
		return false
	}
}

func (r *Runner) drop(label, reason string) {
	r.dropped.Add(1)
	r.logger.Warn().Str("runner", r.name).Str("task", label).Str("reason", reason).Msg("background: task dropped")
	if r.onDrop != nil {
		r.onDrop(r.name)
	}
}

func (r *Runner) work() {
	defer r.wg.Done()
	for t := range r.tasks {
		r.run(t)
	}
}

func (r *Runner) run(t queuedTask) {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			r.failed.Add(1)
			r.logger.Error().Str("runner", r.name).Str("task", t.label).Interface("panic", p).Msg("background: task panicked")
		}
	}()
	if err := t.run(ctx); err != nil {
		r.failed.Add(1)
		r.logger.Warn().Err(err).Str("runner", r.name).Str("task", t.label).Msg("background: task failed")
	}
}

// Close stops accepting tasks and waits for queued ones to finish until ctx ends, after
// which running tasks see their context cancelled.
func (r *Runner) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.tasks)
		r.mu.Unlock()
	})
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

// Dropped counts tasks discarded since start.
func (r *Runner) Dropped() int64 { return r.dropped.Load() }

// Failed counts tasks that returned an error or panicked.
func (r *Runner) Failed() int64 { return r.failed.Load() }
