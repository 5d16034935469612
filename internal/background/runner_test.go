package background

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"sketchgen/internal/infra"
)

func TestRunnerExecutesTasks(t *testing.T) {
	r := NewRunner("test", Options{QueueSize: 8, Workers: 2}, infra.NopLogger())
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		if !r.Submit("count", func(context.Context) error {
			ran.Add(1)
			return nil
		}) {
			t.Fatalf("submit %d dropped", i)
		}
	}
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if ran.Load() != 5 {
		t.Fatalf("ran %d tasks, want 5", ran.Load())
	}
}

func TestRunnerDropsWhenFull(t *testing.T) {
	var drops atomic.Int32
	r := NewRunner("test", Options{QueueSize: 1, Workers: 1, OnDrop: func(string) { drops.Add(1) }}, infra.NopLogger())
	release := make(chan struct{})
	started := make(chan struct{})
	r.Submit("block", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started
	if !r.Submit("queued", func(context.Context) error { return nil }) {
		t.Fatalf("second task should fit the queue")
	}

	begin := time.Now()
	if r.Submit("overflow", func(context.Context) error { return nil }) {
		t.Fatalf("third task should be dropped")
	}
	if time.Since(begin) > 100*time.Millisecond {
		t.Fatalf("submit blocked on a full queue")
	}
	if r.Dropped() != 1 || drops.Load() != 1 {
		t.Fatalf("dropped = %d, hook = %d", r.Dropped(), drops.Load())
	}
	close(release)
	_ = r.Close(context.Background())
}

func TestRunnerSurvivesFailures(t *testing.T) {
	r := NewRunner("test", Options{}, infra.NopLogger())
	r.Submit("err", func(context.Context) error { return errors.New("boom") })
	r.Submit("panic", func(context.Context) error { panic("oops") })
	var ok atomic.Bool
	r.Submit("after", func(context.Context) error {
		ok.Store(true)
		return nil
	})
	_ = r.Close(context.Background())
	if !ok.Load() {
		t.Fatalf("runner stopped after a failing task")
	}
	if r.Failed() != 2 {
		t.Fatalf("failed = %d, want 2", r.Failed())
	}
}

func TestSubmitAfterCloseIsDropped(t *testing.T) {
	r := NewRunner("test", Options{}, infra.NopLogger())
	_ = r.Close(context.Background())
	if r.Submit("late", func(context.Context) error { return nil }) {
		t.Fatalf("expected drop after close")
	}
}
