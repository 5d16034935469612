package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestWindowCapsCallsPerWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	w := NewWindow(5, time.Minute, clock.Now)

	for i := 0; i < 5; i++ {
		if d := w.Reserve(); d != 0 {
			t.Fatalf("call %d should be granted, got wait %s", i, d)
		}
		clock.Advance(time.Second)
	}
	if d := w.Reserve(); d != 55*time.Second {
		t.Fatalf("sixth call wait = %s, want 55s", d)
	}
	clock.Advance(55 * time.Second)
	if d := w.Reserve(); d != 0 {
		t.Fatalf("slot should free once the first call leaves the window, got %s", d)
	}
}

func TestWindowConcurrentReserve(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	w := NewWindow(5, time.Minute, clock.Now)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.Reserve() == 0 {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if granted != 5 {
		t.Fatalf("granted %d calls, want 5", granted)
	}
}

func TestWindowWaitHonoursContext(t *testing.T) {
	w := NewWindow(1, time.Hour, nil)
	if err := w.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := w.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

type stubScripter struct {
	redis.Scripter
	replies []int64
	calls   int
	keys    []string
}

func (s *stubScripter) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	s.keys = keys
	cmd := redis.NewCmd(ctx)
	cmd.SetVal(s.replies[min(s.calls, len(s.replies)-1)])
	s.calls++
	return cmd
}

func TestRedisWaitRetriesUntilGranted(t *testing.T) {
	stub := &stubScripter{replies: []int64{3, 0}}
	limiter := NewRedis(stub, "", 5, time.Minute)

	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if stub.calls != 2 {
		t.Fatalf("script calls = %d, want 2", stub.calls)
	}
	if len(stub.keys) != 1 || stub.keys[0] != "sketchgen:ratelimit:providers" {
		t.Fatalf("keys = %v", stub.keys)
	}
}
