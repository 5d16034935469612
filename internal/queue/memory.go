package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"sketchgen/internal/domain"
)

// Memory is a process-local Queue. It is not durable across restarts and is meant for
// development (QUEUE_BACKEND=memory) and tests.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	seq      int64
	jobs     map[string]*memoryJob
	inFlight map[string]string // asset id -> job id
}

type memoryJob struct {
	job domain.GenerationJob
	seq int64
}

// NewMemory creates an empty queue. A nil clock defaults to time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		now:      now,
		jobs:     make(map[string]*memoryJob),
		inFlight: make(map[string]string),
	}
}

func (m *Memory) Enqueue(ctx context.Context, job *domain.GenerationJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.inFlight[job.AssetID]; busy {
		return domain.ErrJobInFlight
	}
	now := m.now()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.RunAt.IsZero() {
		job.RunAt = now
	}
	job.Status = domain.JobStatusQueued
	job.CreatedAt = now
	job.UpdatedAt = now
	m.seq++
	m.jobs[job.ID] = &memoryJob{job: cloneJob(*job), seq: m.seq}
	m.inFlight[job.AssetID] = job.ID
	return nil
}

func (m *Memory) Claim(ctx context.Context) (*domain.GenerationJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var next *memoryJob
	for _, candidate := range m.jobs {
		if candidate.job.Status != domain.JobStatusQueued || candidate.job.RunAt.After(now) {
			continue
		}
		if next == nil || claimsBefore(candidate, next) {
			next = candidate
		}
	}
	if next == nil {
		return nil, domain.ErrNoJobAvailable
	}
	next.job.Status = domain.JobStatusRunning
	next.job.Attempts++
	next.job.UpdatedAt = now
	claimed := cloneJob(next.job)
	return &claimed, nil
}

// claimsBefore orders by priority desc, run_at asc, created_at asc, then insertion order.
func claimsBefore(a, b *memoryJob) bool {
	if a.job.Priority != b.job.Priority {
		return a.job.Priority > b.job.Priority
	}
	if !a.job.RunAt.Equal(b.job.RunAt) {
		return a.job.RunAt.Before(b.job.RunAt)
	}
	if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
		return a.job.CreatedAt.Before(b.job.CreatedAt)
	}
	return a.seq < b.seq
}

func (m *Memory) Complete(_ context.Context, jobID string) error {
	return m.finish(jobID, domain.JobStatusDone, nil)
}

func (m *Memory) Fail(_ context.Context, jobID string, reason string) error {
	return m.finish(jobID, domain.JobStatusDead, &reason)
}

func (m *Memory) finish(jobID string, status domain.JobStatus, reason *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.jobs[jobID]
	if !ok || entry.job.Status != domain.JobStatusRunning {
		return domain.ErrNotFound
	}
	entry.job.Status = status
	entry.job.LastError = reason
	entry.job.UpdatedAt = m.now()
	// drop the payload; only the bookkeeping outlives the job
	entry.job.SourceImage = nil
	delete(m.inFlight, entry.job.AssetID)
	return nil
}

func (m *Memory) Retry(_ context.Context, jobID string, runAt time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.jobs[jobID]
	if !ok || entry.job.Status != domain.JobStatusRunning {
		return domain.ErrNotFound
	}
	entry.job.Status = domain.JobStatusQueued
	entry.job.RunAt = runAt
	entry.job.LastError = &reason
	entry.job.UpdatedAt = m.now()
	return nil
}

func (m *Memory) Cancel(_ context.Context, jobID string) (CancelResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.jobs[jobID]
	if !ok {
		return CancelResult{Outcome: CancelNotFound}, nil
	}
	switch entry.job.Status {
	case domain.JobStatusQueued:
		delete(m.jobs, jobID)
		delete(m.inFlight, entry.job.AssetID)
		return CancelResult{Outcome: CancelRemoved, AssetID: entry.job.AssetID}, nil
	case domain.JobStatusRunning:
		entry.job.CancelRequested = true
		entry.job.UpdatedAt = m.now()
		return CancelResult{Outcome: CancelRequested, AssetID: entry.job.AssetID}, nil
	default:
		return CancelResult{Outcome: CancelNotFound, AssetID: entry.job.AssetID}, nil
	}
}

func (m *Memory) CancelRequested(_ context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.jobs[jobID]
	if !ok {
		return false, domain.ErrNotFound
	}
	return entry.job.CancelRequested, nil
}

func (m *Memory) Depth(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, entry := range m.jobs {
		if entry.job.Status == domain.JobStatusQueued {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Purge(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, entry := range m.jobs {
		if entry.job.Status.Finished() && entry.job.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}

// Get returns a copy of the job's current bookkeeping, for inspection.
func (m *Memory) Get(jobID string) (domain.GenerationJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.jobs[jobID]
	if !ok {
		return domain.GenerationJob{}, false
	}
	return cloneJob(entry.job), true
}

func cloneJob(j domain.GenerationJob) domain.GenerationJob {
	out := j
	if j.SourceImage != nil {
		out.SourceImage = append([]byte(nil), j.SourceImage...)
	}
	if j.Fallbacks != nil {
		out.Fallbacks = append([]string(nil), j.Fallbacks...)
	}
	if j.Seed != nil {
		seed := *j.Seed
		out.Seed = &seed
	}
	if j.LastError != nil {
		reason := *j.LastError
		out.LastError = &reason
	}
	return out
}

var _ Queue = (*Memory)(nil)
