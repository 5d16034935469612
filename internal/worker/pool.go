package worker

import (
	"context"
	"errors"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"sketchgen/internal/domain"
	"sketchgen/internal/infra"
	"sketchgen/internal/queue"
)

const (
	DefaultConcurrency  = 3
	DefaultPollInterval = 2 * time.Second
	DefaultRetryBase    = 60 * time.Second
	DefaultDrainTimeout = 30 * time.Second
	DefaultRetention    = 24 * time.Hour
	DefaultPurgeEvery   = 10 * time.Minute
)

// DepthObserver is told the queue depth after each idle poll.
type DepthObserver interface {
	SetQueueDepth(n int)
}

// PoolConfig tunes a Pool. Zero values pick the defaults above.
type PoolConfig struct {
	Concurrency  int
	PollInterval time.Duration
	RetryBase    time.Duration
	DrainTimeout time.Duration
	Depth        DepthObserver
	Logger       infra.Logger
	Now          func() time.Time

	// Retention is how long done and dead jobs are kept before the purge deletes them.
	Retention  time.Duration
	PurgeEvery time.Duration
}

// Pool runs Concurrency workers that claim jobs and run them through a Pipeline.
type Pool struct {
	queue    queue.Queue
	pipeline *Pipeline
	cfg      PoolConfig
}

func NewPool(q queue.Queue, pipeline *Pipeline, cfg PoolConfig) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultRetryBase
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.PurgeEvery <= 0 {
		cfg.PurgeEvery = DefaultPurgeEvery
	}
	return &Pool{queue: q, pipeline: pipeline, cfg: cfg}
}

// RetryDelay is the job-level backoff after the given failed attempt (1-based).
func RetryDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
}

// Run blocks until ctx is cancelled. Workers stop claiming at once; jobs already running
// keep a live context for DrainTimeout before it is cancelled too.
func (p *Pool) Run(ctx context.Context) error {
	work, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	stop := context.AfterFunc(ctx, func() {
		time.AfterFunc(p.cfg.DrainTimeout, cancelWork)
	})
	defer stop()

	p.cfg.Logger.Info().Int("concurrency", p.cfg.Concurrency).Msg("worker: pool started")
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Concurrency; i++ {
		id := i + 1
		g.Go(func() error {
			p.loop(gctx, work, id)
			return nil
		})
	}
	g.Go(func() error {
		p.purgeLoop(gctx)
		return nil
	})
	err := g.Wait()
	p.cfg.Logger.Info().Msg("worker: pool stopped")
	return err
}

// Purge deletes finished jobs older than the retention window.
func (p *Pool) Purge(ctx context.Context) (int, error) {
	n, err := p.queue.Purge(ctx, p.cfg.Now().Add(-p.cfg.Retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.cfg.Logger.Info().Int("jobs", n).Dur("retention", p.cfg.Retention).Msg("worker: purged finished jobs")
	}
	return n, nil
}

func (p *Pool) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PurgeEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Purge(ctx); err != nil && ctx.Err() == nil {
				p.cfg.Logger.Warn().Err(err).Msg("worker: purge failed")
			}
		}
	}
}

func (p *Pool) loop(ctx, work context.Context, id int) {
	log := p.cfg.Logger.With().Int("worker", id).Logger()
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := p.RunOnce(work)
		if err != nil {
			log.Error().Err(err).Msg("worker: claim failed")
		}
		if processed {
			continue
		}
		if p.cfg.Depth != nil {
			if n, err := p.queue.Depth(work); err == nil {
				p.cfg.Depth.SetQueueDepth(n)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// RunOnce claims and processes at most one job. It reports whether a job was claimed.
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.queue.Claim(ctx)
	if errors.Is(err, domain.ErrNoJobAvailable) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	p.process(ctx, job)
	return true, nil
}

func (p *Pool) process(ctx context.Context, job *domain.GenerationJob) {
	start := p.cfg.Now()
	log := p.cfg.Logger.With().Str("job_id", job.ID).Str("asset_id", job.AssetID).Logger()
	outcome, err := p.pipeline.Run(ctx, job)

	var re *retryableError
	switch {
	case errors.As(err, &re):
		outcome = p.retry(ctx, job, re.err, log)
	case err != nil:
		log.Error().Err(err).Msg("worker: job bookkeeping failed")
	}
	if p.pipeline.Observer != nil && outcome != "" {
		p.pipeline.Observer.ObserveJob(outcome, p.cfg.Now().Sub(start))
	}
}

// retry requeues the job with backoff, or fails its asset once attempts are spent. A job
// interrupted by shutdown is requeued for immediate pickup.
func (p *Pool) retry(ctx context.Context, job *domain.GenerationJob, cause *domain.Error, log infra.Logger) string {
	if ctx.Err() != nil {
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := p.queue.Retry(bg, job.ID, p.cfg.Now(), cause.Error()); err != nil {
			log.Error().Err(err).Msg("worker: requeue after shutdown failed")
		}
		return OutcomeRetried
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if job.Attempts < maxAttempts {
		delay := RetryDelay(p.cfg.RetryBase, job.Attempts)
		if err := p.queue.Retry(ctx, job.ID, p.cfg.Now().Add(delay), cause.Error()); err != nil {
			log.Error().Err(err).Msg("worker: requeue failed")
		} else {
			log.Warn().Err(cause).Dur("delay", delay).Int("attempt", job.Attempts).Msg("worker: job requeued")
		}
		return OutcomeRetried
	}
	if err := p.pipeline.terminal(ctx, job, log, cause); err != nil {
		log.Error().Err(err).Msg("worker: fail job")
	}
	return OutcomeFailed
}
