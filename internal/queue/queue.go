// Package queue defines the durable job queue contract the worker pool consumes and an
// in-memory implementation for development and tests.
package queue

import (
	"context"
	"time"

	"sketchgen/internal/domain"
)

// CancelOutcome describes what a cancellation request achieved.
type CancelOutcome string

const (
	// CancelRemoved means the job was still queued and has been deleted. The queue does not
	// touch the asset; callers decide what happens to it.
	CancelRemoved CancelOutcome = "removed"
	// CancelRequested means a worker holds the job; it stops at the next checkpoint if it can.
	CancelRequested CancelOutcome = "requested"
	// CancelNotFound means no queued or running job has that id.
	CancelNotFound CancelOutcome = "not_found"
)

// CancelResult reports a cancellation outcome and the asset the job belonged to.
type CancelResult struct {
	Outcome CancelOutcome
	AssetID string
}

// Queue is the FIFO-with-priority job queue. Implementations guarantee that at most one
// queued or running job references a given asset and that a job is claimed by exactly one
// worker at a time.
type Queue interface {
	// Enqueue stores job as queued. It returns domain.ErrJobInFlight when another queued or
	// running job references the same asset.
	Enqueue(ctx context.Context, job *domain.GenerationJob) error
	// Claim hands the next ready job to the caller, incrementing its attempt count. It
	// returns domain.ErrNoJobAvailable when nothing is ready.
	Claim(ctx context.Context) (*domain.GenerationJob, error)
	Complete(ctx context.Context, jobID string) error
	// Retry puts a running job back in the queue to be claimed no earlier than runAt.
	Retry(ctx context.Context, jobID string, runAt time.Time, reason string) error
	// Fail marks a running job dead; it will not be retried.
	Fail(ctx context.Context, jobID string, reason string) error
	Cancel(ctx context.Context, jobID string) (CancelResult, error)
	CancelRequested(ctx context.Context, jobID string) (bool, error)
	// Depth counts queued (not running) jobs.
	Depth(ctx context.Context) (int, error)
	// Purge deletes done and dead jobs last updated before cutoff and reports how many
	// were removed.
	Purge(ctx context.Context, cutoff time.Time) (int, error)
}
