package repo

import (
	"context"
	"errors"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"sketchgen/internal/domain"
	"sketchgen/internal/infra"
	"sketchgen/internal/queue"
	"sketchgen/internal/sqlinline"
)

const inFlightIndex = "generation_jobs_asset_in_flight_idx"

// JobQueuePG implements queue.Queue on the generation_jobs table. Claims use
// FOR UPDATE SKIP LOCKED so any number of worker processes can share the table.
type JobQueuePG struct {
	sql infra.SQLExecutor
	now func() time.Time
}

// NewJobQueue creates a new job queue backed by PostgreSQL.
func NewJobQueue(sql infra.SQLExecutor) *JobQueuePG {
	return &JobQueuePG{sql: sql, now: time.Now}
}

// Enqueue inserts a queued job; the partial unique index rejects a second in-flight job
// for the same asset.
func (q *JobQueuePG) Enqueue(ctx context.Context, job *domain.GenerationJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := q.now().UTC()
	if job.RunAt.IsZero() {
		job.RunAt = now
	}
	fallbacks := job.Fallbacks
	if fallbacks == nil {
		fallbacks = []string{}
	}
	// pgx encodes a nil slice as NULL
	image := job.SourceImage
	if image == nil {
		image = []byte{}
	}
	_, err := q.sql.Exec(ctx, sqlinline.QEnqueueJob,
		job.ID,
		job.AssetID,
		image,
		job.SourceMIME,
		job.Prompt,
		string(job.RequestedQuality),
		job.Style,
		job.Seed,
		job.Provider,
		fallbacks,
		job.Priority,
		job.MaxAttempts,
		job.RunAt,
	)
	if err != nil {
		if infra.IsUniqueViolation(err, inFlightIndex) {
			return domain.ErrJobInFlight
		}
		return err
	}
	job.Status = domain.JobStatusQueued
	job.CreatedAt = job.RunAt
	job.UpdatedAt = job.RunAt
	return nil
}

// Claim locks and marks the next ready job as running.
func (q *JobQueuePG) Claim(ctx context.Context) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	if err := pgxscan.Get(ctx, q.sql, &job, sqlinline.QClaimJob); err != nil {
		if pgxscan.NotFound(err) {
			return nil, domain.ErrNoJobAvailable
		}
		return nil, err
	}
	return &job, nil
}

func (q *JobQueuePG) Complete(ctx context.Context, jobID string) error {
	return q.expectOne(q.sql.Exec(ctx, sqlinline.QCompleteJob, jobID))
}

func (q *JobQueuePG) Retry(ctx context.Context, jobID string, runAt time.Time, reason string) error {
	return q.expectOne(q.sql.Exec(ctx, sqlinline.QRetryJob, jobID, runAt.UTC(), reason))
}

func (q *JobQueuePG) Fail(ctx context.Context, jobID string, reason string) error {
	return q.expectOne(q.sql.Exec(ctx, sqlinline.QFailJob, jobID, reason))
}

// Cancel deletes a queued job outright or flags a running one for cooperative cancellation.
func (q *JobQueuePG) Cancel(ctx context.Context, jobID string) (queue.CancelResult, error) {
	var assetID string
	err := q.sql.QueryRow(ctx, sqlinline.QDeleteQueuedJob, jobID).Scan(&assetID)
	switch {
	case err == nil:
		return queue.CancelResult{Outcome: queue.CancelRemoved, AssetID: assetID}, nil
	case !infra.IsNoRows(err):
		return queue.CancelResult{}, err
	}

	err = q.sql.QueryRow(ctx, sqlinline.QRequestJobCancel, jobID).Scan(&assetID)
	switch {
	case err == nil:
		return queue.CancelResult{Outcome: queue.CancelRequested, AssetID: assetID}, nil
	case infra.IsNoRows(err):
		return queue.CancelResult{Outcome: queue.CancelNotFound}, nil
	default:
		return queue.CancelResult{}, err
	}
}

func (q *JobQueuePG) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	var requested bool
	if err := q.sql.QueryRow(ctx, sqlinline.QSelectJobCancelRequested, jobID).Scan(&requested); err != nil {
		if infra.IsNoRows(err) {
			return false, domain.ErrNotFound
		}
		return false, err
	}
	return requested, nil
}

func (q *JobQueuePG) Depth(ctx context.Context) (int, error) {
	var n int
	if err := q.sql.QueryRow(ctx, sqlinline.QCountQueuedJobs).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Purge removes finished jobs older than cutoff.
func (q *JobQueuePG) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := q.sql.Exec(ctx, sqlinline.QPurgeFinishedJobs, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// GetByID fetches a job by its identifier, including finished ones.
func (q *JobQueuePG) GetByID(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	if err := pgxscan.Get(ctx, q.sql, &job, sqlinline.QSelectJobByID, jobID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (q *JobQueuePG) expectOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.Join(domain.ErrNotFound, errors.New("job is not running"))
	}
	return nil
}

var _ queue.Queue = (*JobQueuePG)(nil)
