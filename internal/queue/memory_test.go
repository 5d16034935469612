package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"sketchgen/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue() (*Memory, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewMemory(clock.Now), clock
}

func TestClaimOrdersByPriorityThenAge(t *testing.T) {
	q, clock := newTestQueue()
	ctx := context.Background()

	low := &domain.GenerationJob{AssetID: "a-low"}
	if err := q.Enqueue(ctx, low); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	clock.Advance(time.Second)
	high := &domain.GenerationJob{AssetID: "a-high", Priority: 5}
	if err := q.Enqueue(ctx, high); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	clock.Advance(time.Second)
	later := &domain.GenerationJob{AssetID: "a-later"}
	if err := q.Enqueue(ctx, later); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	want := []string{high.ID, low.ID, later.ID}
	for i, id := range want {
		job, err := q.Claim(ctx)
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if job.ID != id {
			t.Fatalf("claim %d = %s, want %s", i, job.ID, id)
		}
		if job.Status != domain.JobStatusRunning || job.Attempts != 1 {
			t.Fatalf("claimed job status=%s attempts=%d", job.Status, job.Attempts)
		}
	}
	if _, err := q.Claim(ctx); !errors.Is(err, domain.ErrNoJobAvailable) {
		t.Fatalf("expected ErrNoJobAvailable, got %v", err)
	}
}

func TestEnqueueRejectsSecondJobForAsset(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()
	if err := q.Enqueue(ctx, &domain.GenerationJob{AssetID: "a1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, &domain.GenerationJob{AssetID: "a1"}); !errors.Is(err, domain.ErrJobInFlight) {
		t.Fatalf("expected ErrJobInFlight, got %v", err)
	}

	job, _ := q.Claim(ctx)
	if err := q.Complete(ctx, job.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := q.Enqueue(ctx, &domain.GenerationJob{AssetID: "a1"}); err != nil {
		t.Fatalf("enqueue after completion: %v", err)
	}
}

func TestRetryDelaysClaim(t *testing.T) {
	q, clock := newTestQueue()
	ctx := context.Background()
	job := &domain.GenerationJob{AssetID: "a1", SourceImage: []byte{1, 2, 3}}
	_ = q.Enqueue(ctx, job)
	claimed, _ := q.Claim(ctx)

	if err := q.Retry(ctx, claimed.ID, clock.Now().Add(time.Minute), "upload failed"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if _, err := q.Claim(ctx); !errors.Is(err, domain.ErrNoJobAvailable) {
		t.Fatalf("job claimable before run_at: %v", err)
	}
	clock.Advance(time.Minute)
	again, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("claim after run_at: %v", err)
	}
	if again.Attempts != 2 || again.LastError == nil || *again.LastError != "upload failed" {
		t.Fatalf("unexpected retried job %+v", again)
	}
	if len(again.SourceImage) != 3 {
		t.Fatalf("retry must keep the source image")
	}
}

func TestCancel(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()
	queued := &domain.GenerationJob{AssetID: "a-queued"}
	running := &domain.GenerationJob{AssetID: "a-running", Priority: 1}
	_ = q.Enqueue(ctx, queued)
	_ = q.Enqueue(ctx, running)
	if claimed, _ := q.Claim(ctx); claimed.ID != running.ID {
		t.Fatalf("expected the higher priority job to be claimed")
	}

	res, err := q.Cancel(ctx, queued.ID)
	if err != nil || res.Outcome != CancelRemoved || res.AssetID != "a-queued" {
		t.Fatalf("cancel queued = %+v, %v", res, err)
	}
	if depth, _ := q.Depth(ctx); depth != 0 {
		t.Fatalf("depth = %d after removing the only queued job", depth)
	}

	res, err = q.Cancel(ctx, running.ID)
	if err != nil || res.Outcome != CancelRequested {
		t.Fatalf("cancel running = %+v, %v", res, err)
	}
	requested, err := q.CancelRequested(ctx, running.ID)
	if err != nil || !requested {
		t.Fatalf("cancel flag = %v, %v", requested, err)
	}

	res, _ = q.Cancel(ctx, "missing")
	if res.Outcome != CancelNotFound {
		t.Fatalf("cancel missing = %+v", res)
	}
}

func TestFailDropsPayloadAndFreesAsset(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()
	job := &domain.GenerationJob{AssetID: "a1", SourceImage: []byte{9}}
	_ = q.Enqueue(ctx, job)
	_, _ = q.Claim(ctx)
	if err := q.Fail(ctx, job.ID, "INPUT_REJECTED"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	stored, ok := q.Get(job.ID)
	if !ok || stored.Status != domain.JobStatusDead || stored.SourceImage != nil {
		t.Fatalf("unexpected stored job %+v", stored)
	}
	if err := q.Fail(ctx, job.ID, "again"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second fail should report not found, got %v", err)
	}
	if err := q.Enqueue(ctx, &domain.GenerationJob{AssetID: "a1"}); err != nil {
		t.Fatalf("asset should be free again: %v", err)
	}
}

func TestPurgeDropsOnlyOldFinishedJobs(t *testing.T) {
	q, clock := newTestQueue()
	ctx := context.Background()

	finish := func(assetID string, fail bool) string {
		job := &domain.GenerationJob{AssetID: assetID}
		if err := q.Enqueue(ctx, job); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		if _, err := q.Claim(ctx); err != nil {
			t.Fatalf("claim: %v", err)
		}
		var err error
		if fail {
			err = q.Fail(ctx, job.ID, "PROVIDER_ERROR")
		} else {
			err = q.Complete(ctx, job.ID)
		}
		if err != nil {
			t.Fatalf("finish: %v", err)
		}
		return job.ID
	}
	done := finish("a-done", false)
	dead := finish("a-dead", true)
	clock.Advance(2 * time.Hour)
	recent := finish("a-recent", false)
	queued := &domain.GenerationJob{AssetID: "a-queued", RunAt: clock.Now().Add(-3 * time.Hour)}
	if err := q.Enqueue(ctx, queued); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	n, err := q.Purge(ctx, clock.Now().Add(-time.Hour))
	if err != nil || n != 2 {
		t.Fatalf("purge = %d, %v; want 2", n, err)
	}
	for _, id := range []string{done, dead} {
		if _, ok := q.Get(id); ok {
			t.Fatalf("job %s survived the purge", id)
		}
	}
	for _, id := range []string{recent, queued.ID} {
		if _, ok := q.Get(id); !ok {
			t.Fatalf("job %s was purged", id)
		}
	}
}
