package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"sketchgen/internal/domain"
	"sketchgen/internal/queue"
	"sketchgen/internal/sqlinline"
)

type stubExecutor struct {
	rows     map[string]stubRow
	execTag  pgconn.CommandTag
	execErr  error
	queries  []string
	lastArgs []any
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.queries = append(s.queries, query)
	s.lastArgs = args
	return s.execTag, s.execErr
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.queries = append(s.queries, query)
	s.lastArgs = args
	if row, ok := s.rows[query]; ok {
		return row
	}
	return stubRow{err: pgx.ErrNoRows}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	value any
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	switch ptr := dest[0].(type) {
	case *string:
		*ptr = r.value.(string)
	case *bool:
		*ptr = r.value.(bool)
	case *int:
		*ptr = r.value.(int)
	case *int64:
		*ptr = r.value.(int64)
	default:
		return errors.New("invalid dest")
	}
	return nil
}

func TestCancelQueuedJobIsRemoved(t *testing.T) {
	exec := &stubExecutor{rows: map[string]stubRow{
		sqlinline.QDeleteQueuedJob: {value: "asset-1"},
	}}
	res, err := NewJobQueue(exec).Cancel(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if res.Outcome != queue.CancelRemoved || res.AssetID != "asset-1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(exec.queries) != 1 {
		t.Fatalf("expected a single statement, got %d", len(exec.queries))
	}
}

func TestCancelRunningJobIsFlagged(t *testing.T) {
	exec := &stubExecutor{rows: map[string]stubRow{
		sqlinline.QRequestJobCancel: {value: "asset-2"},
	}}
	res, err := NewJobQueue(exec).Cancel(context.Background(), "job-2")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if res.Outcome != queue.CancelRequested || res.AssetID != "asset-2" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	res, err := NewJobQueue(&stubExecutor{}).Cancel(context.Background(), "job-3")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if res.Outcome != queue.CancelNotFound {
		t.Fatalf("expected not_found, got %s", res.Outcome)
	}
}

func TestEnqueueMapsUniqueViolation(t *testing.T) {
	exec := &stubExecutor{execErr: &pgconn.PgError{Code: "23505", ConstraintName: inFlightIndex}}
	job := &domain.GenerationJob{AssetID: "asset-1", Prompt: "p"}
	err := NewJobQueue(exec).Enqueue(context.Background(), job)
	if !errors.Is(err, domain.ErrJobInFlight) {
		t.Fatalf("expected ErrJobInFlight, got %v", err)
	}
	if job.ID == "" {
		t.Fatalf("expected an id to be assigned")
	}
	fallbacks, ok := exec.lastArgs[9].([]string)
	if !ok || fallbacks == nil {
		t.Fatalf("expected non-nil fallbacks array, got %#v", exec.lastArgs[9])
	}
}

func TestCompleteRequiresRunningJob(t *testing.T) {
	exec := &stubExecutor{execTag: pgconn.NewCommandTag("UPDATE 0")}
	err := NewJobQueue(exec).Complete(context.Background(), "job-1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	exec.execTag = pgconn.NewCommandTag("UPDATE 1")
	if err := NewJobQueue(exec).Complete(context.Background(), "job-1"); err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if !strings.Contains(exec.queries[len(exec.queries)-1], "status = 'done'") {
		t.Fatalf("unexpected statement %q", exec.queries[len(exec.queries)-1])
	}
}

func TestDepth(t *testing.T) {
	exec := &stubExecutor{rows: map[string]stubRow{sqlinline.QCountQueuedJobs: {value: 7}}}
	n, err := NewJobQueue(exec).Depth(context.Background())
	if err != nil {
		t.Fatalf("Depth error: %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7, got %d", n)
	}
}

func TestFinishedStatementsClearPayload(t *testing.T) {
	for name, query := range map[string]string{"complete": sqlinline.QCompleteJob, "fail": sqlinline.QFailJob} {
		if !strings.Contains(query, "source_image = ''::bytea") {
			t.Fatalf("%s keeps the source image: %q", name, query)
		}
	}
}

func TestPurgeReportsDeletedRows(t *testing.T) {
	exec := &stubExecutor{execTag: pgconn.NewCommandTag("DELETE 4")}
	cutoff := time.Date(2025, 3, 10, 12, 0, 0, 0, time.FixedZone("X", 3600))
	n, err := NewJobQueue(exec).Purge(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("Purge error: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4, got %d", n)
	}
	if exec.queries[0] != sqlinline.QPurgeFinishedJobs {
		t.Fatalf("unexpected statement %q", exec.queries[0])
	}
	if got := exec.lastArgs[0].(time.Time); got.Location() != time.UTC || !got.Equal(cutoff) {
		t.Fatalf("cutoff = %v", got)
	}
}

func TestEnqueueSendsEmptyPayloadForNilImage(t *testing.T) {
	exec := &stubExecutor{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	job := &domain.GenerationJob{AssetID: "asset-1", Prompt: "p"}
	if err := NewJobQueue(exec).Enqueue(context.Background(), job); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if img, ok := exec.lastArgs[2].([]byte); !ok || img == nil {
		t.Fatalf("source image arg = %#v", exec.lastArgs[2])
	}
}
