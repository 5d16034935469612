// Package router executes one generation request across providers: selection, credential
// resolution, global rate limiting, retries with backoff and fallback switching.
package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"sketchgen/internal/infra"
	"sketchgen/internal/infra/credentials"
	"sketchgen/internal/providers"
	"sketchgen/internal/ratelimit"
)

const (
	DefaultMinAttempts = 3
	baseBackoff        = time.Second
	maxBackoff         = 10 * time.Second
)

// Config wires the router's collaborators.
type Config struct {
	Clients     map[providers.ID]providers.Client
	Credentials credentials.Source
	Limiter     ratelimit.Limiter
	// MinAttempts raises the attempt budget above len(fallbacks)+1.
	MinAttempts int
	CallTimeout time.Duration
	Logger      infra.Logger
	// Sleep and Now are replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Options are per-request routing choices.
type Options struct {
	RequestID string
	Provider  providers.ID
	Fallbacks []providers.ID
}

// Execution is the outcome of Execute. Errors holds every failed attempt in order.
type Execution struct {
	Result   *providers.Result
	Attempts int
	Errors   []*providers.Error
}

// LastError is the final attempt's error, or nil.
func (e *Execution) LastError() *providers.Error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

type Router struct {
	clients     map[providers.ID]providers.Client
	creds       credentials.Source
	limiter     ratelimit.Limiter
	minAttempts int
	callTimeout time.Duration
	logger      infra.Logger
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time

	mu        sync.RWMutex
	observers []Observer
}

func New(cfg Config) *Router {
	r := &Router{
		clients:     cfg.Clients,
		creds:       cfg.Credentials,
		limiter:     cfg.Limiter,
		minAttempts: cfg.MinAttempts,
		callTimeout: cfg.CallTimeout,
		logger:      cfg.Logger,
		sleep:       cfg.Sleep,
		now:         cfg.Now,
	}
	if r.creds == nil {
		r.creds = credentials.Static{}
	}
	if r.limiter == nil {
		r.limiter = ratelimit.Unlimited{}
	}
	if r.minAttempts <= 0 {
		r.minAttempts = DefaultMinAttempts
	}
	if r.sleep == nil {
		r.sleep = sleepContext
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Register adds an observer for lifecycle events.
func (r *Router) Register(o Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

func (r *Router) emit(e Event) {
	e.At = r.now()
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()
	for _, o := range observers {
		o.OnEvent(e)
	}
}

// Backoff is the delay after the given failed attempt (1-based).
func Backoff(attempt int) time.Duration {
	d := baseBackoff
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

// Execute runs req until a provider succeeds, a non-retryable error occurs or the attempt
// budget is spent. The returned Execution is never nil; on failure the error is the last
// attempt's *providers.Error.
func (r *Router) Execute(ctx context.Context, req providers.Request, opts Options) (*Execution, error) {
	req = req.Normalized()
	if req.RequestID == "" {
		req.RequestID = opts.RequestID
	}
	maxAttempts := max(len(opts.Fallbacks)+1, r.minAttempts)
	exec := &Execution{}
	keys := make(map[providers.ID]string)
	tried := make(map[providers.ID]bool)
	start := r.now()
	var queued providers.ID

	fail := func(pe *providers.Error, attempt int) (*Execution, error) {
		exec.Errors = append(exec.Errors, pe)
		exec.Attempts = attempt
		r.emit(Event{Type: EventFailed, RequestID: opts.RequestID, Provider: pe.Provider, Attempt: attempt, MaxAttempts: maxAttempts, Err: pe, Elapsed: r.now().Sub(start)})
		return exec, pe
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		id := queued
		queued = ""
		if id == "" {
			available := r.available(ctx, keys)
			pref := Preference{}
			if _, ok := r.clients[opts.Provider]; ok {
				pref.Provider = opts.Provider
			}
			selected, err := Select(req, available, pref)
			if err != nil {
				return fail(providers.AsError("", err), attempt)
			}
			id = selected
		}
		tried[id] = true

		if attempt == 1 {
			r.emit(Event{Type: EventStarted, RequestID: opts.RequestID, Provider: id, Attempt: attempt, MaxAttempts: maxAttempts})
		}

		client, ok := r.clients[id]
		if !ok {
			return fail(providers.NewError(id, providers.KindNoProvider, "provider is not configured"), attempt)
		}
		key, pe := r.credential(ctx, id, keys)
		if pe != nil {
			return fail(pe, attempt)
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return fail(providers.FromTransport(id, err), attempt)
		}

		result, err := r.call(ctx, client, id, key, req)
		if err == nil {
			exec.Result = result
			exec.Attempts = attempt
			result.Attempts = attempt
			if result.Provider == "" {
				result.Provider = id
			}
			r.emit(Event{Type: EventCompleted, RequestID: opts.RequestID, Provider: id, Attempt: attempt, MaxAttempts: maxAttempts, Elapsed: r.now().Sub(start)})
			return exec, nil
		}

		pe = providers.AsError(id, err)
		if pe.Provider == "" {
			pe.Provider = id
		}
		r.logger.Warn().
			Str("request_id", opts.RequestID).
			Str("provider", string(id)).
			Str("kind", string(pe.Kind)).
			Bool("retryable", pe.Retryable).
			Int("attempt", attempt).
			Msg("router: provider attempt failed")

		if !pe.Retryable || ctx.Err() != nil {
			return fail(pe, attempt)
		}

		if attempt < maxAttempts {
			if next := r.nextFallback(ctx, req, opts.Fallbacks, tried, keys); next != "" {
				exec.Errors = append(exec.Errors, pe)
				queued = next
				r.emit(Event{Type: EventProgress, RequestID: opts.RequestID, Provider: next, Attempt: attempt, MaxAttempts: maxAttempts, Err: pe})
				continue
			}
		}

		// the final attempt also backs off before reporting failure
		delay := Backoff(attempt)
		r.emit(Event{Type: EventProgress, RequestID: opts.RequestID, Provider: id, Attempt: attempt, MaxAttempts: maxAttempts, Delay: delay, Err: pe})
		if err := r.sleep(ctx, delay); err != nil || attempt == maxAttempts {
			return fail(pe, attempt)
		}
		exec.Errors = append(exec.Errors, pe)
	}
	// unreachable: the loop returns on its last iteration
	return exec, errors.New("router: attempts exhausted")
}

func (r *Router) call(ctx context.Context, client providers.Client, id providers.ID, key string, req providers.Request) (*providers.Result, error) {
	callCtx := ctx
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}
	result, err := client.Generate(callCtx, key, req)
	if err != nil {
		// a client that ignored its deadline still reports a timeout
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			var pe *providers.Error
			if !errors.As(err, &pe) || pe.Kind != providers.KindTimeout {
				return nil, providers.FromTransport(id, context.DeadlineExceeded)
			}
		}
		return nil, err
	}
	if result == nil || len(result.Image) == 0 {
		return nil, providers.NewError(id, providers.KindServer, "provider returned no image")
	}
	return result, nil
}

// available lists configured providers the caller can use right now.
func (r *Router) available(ctx context.Context, keys map[providers.ID]string) []providers.ID {
	var out []providers.ID
	for _, id := range providers.IDs() {
		if _, ok := r.clients[id]; !ok {
			continue
		}
		if _, pe := r.credential(ctx, id, keys); pe != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (r *Router) credential(ctx context.Context, id providers.ID, keys map[providers.ID]string) (string, *providers.Error) {
	c, ok := providers.Lookup(id)
	if !ok {
		return "", providers.NewError(id, providers.KindNoProvider, "unknown provider")
	}
	if !c.RequiresCredential {
		return "", nil
	}
	if key, ok := keys[id]; ok && key != "" {
		return key, nil
	}
	key, err := r.creds.APIKey(ctx, string(id))
	if err != nil {
		r.logger.Warn().Err(err).Str("provider", string(id)).Msg("router: credential lookup failed")
	}
	if key == "" {
		return "", providers.NewError(id, providers.KindNoAPIKey, "no api key configured")
	}
	keys[id] = key
	return key, nil
}

// nextFallback is the first untried fallback that can serve req and has a usable
// credential. Unusable fallbacks are marked tried so they are not reconsidered.
func (r *Router) nextFallback(ctx context.Context, req providers.Request, fallbacks []providers.ID, tried map[providers.ID]bool, keys map[providers.ID]string) providers.ID {
	for _, id := range fallbacks {
		if tried[id] {
			continue
		}
		if !r.usable(ctx, id, req, keys) {
			tried[id] = true
			r.logger.Debug().Str("provider", string(id)).Msg("router: skipping unusable fallback")
			continue
		}
		return id
	}
	return ""
}

// usable reports whether id is configured, supports req and has a credential.
func (r *Router) usable(ctx context.Context, id providers.ID, req providers.Request, keys map[providers.ID]string) bool {
	if _, ok := r.clients[id]; !ok {
		return false
	}
	c, ok := providers.Lookup(id)
	if !ok || !c.Supports(req) {
		return false
	}
	_, pe := r.credential(ctx, id, keys)
	return pe == nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
