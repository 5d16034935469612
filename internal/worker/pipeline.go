// Package worker drives claimed generation jobs through moderation, generation, upload
// and billing, and runs the fixed-size pool that claims them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sketchgen/internal/domain"
	"sketchgen/internal/infra"
	"sketchgen/internal/moderation"
	"sketchgen/internal/providers"
	"sketchgen/internal/queue"
	"sketchgen/internal/router"
)

// Generator runs one routed provider request.
type Generator interface {
	Execute(ctx context.Context, req providers.Request, opts router.Options) (*router.Execution, error)
}

// Auditor is the content moderation gate.
type Auditor interface {
	Audit(ctx context.Context, image []byte) moderation.Result
}

// Uploader stores the generated artifact and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, assetID string) (string, error)
}

// BillingRecorder writes the single billing row of an asset.
type BillingRecorder interface {
	Record(ctx context.Context, assetID string, status domain.BillingStatus, apiCalls int) error
}

// Assets is the asset state machine.
type Assets interface {
	Get(ctx context.Context, assetID string) (*domain.Asset, error)
	Advance(ctx context.Context, assetID string, status domain.AssetStatus, fields domain.AssetFields) (*domain.Asset, error)
	Fail(ctx context.Context, assetID string, err *domain.Error) (*domain.Asset, error)
}

// Observer receives pipeline measurements.
type Observer interface {
	ObserveJob(outcome string, elapsed time.Duration)
	ObserveModeration(stage string, passed bool)
}

const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRetried   = "retried"
	OutcomeCancelled = "cancelled"
)

// retryableError marks a failure worth re-running the whole job for.
type retryableError struct {
	err *domain.Error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func retryable(code domain.ErrorCode, msg string, cause error) error {
	return &retryableError{err: domain.WrapError(code, msg, true, cause)}
}

// PipelineDeps wires the collaborators of a Pipeline.
type PipelineDeps struct {
	Queue      queue.Queue
	Assets     Assets
	Moderation Auditor
	Generator  Generator
	Uploader   Uploader
	Billing    BillingRecorder
	Observer   Observer
	Logger     infra.Logger
	Now        func() time.Time
}

// Pipeline runs the per-job sequence: audit input, generate, audit output, upload,
// complete, bill. Steps use Advance so a retried job resumes past statuses it already
// reached.
type Pipeline struct {
	PipelineDeps
}

func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{PipelineDeps: deps}
}

// Run executes job and reports the outcome. A non-nil error returned from Run is a
// job-level retryable failure; terminal failures are recorded on the asset and return nil.
func (p *Pipeline) Run(ctx context.Context, job *domain.GenerationJob) (string, error) {
	start := p.Now()
	log := p.Logger.With().Str("job_id", job.ID).Str("asset_id", job.AssetID).Int("attempt", job.Attempts).Logger()

	asset, err := p.Assets.Get(ctx, job.AssetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("worker: asset vanished, dropping job")
			return OutcomeFailed, p.Queue.Fail(ctx, job.ID, string(domain.CodeAssetNotFound))
		}
		return "", retryable(domain.CodeServiceUnavailable, "load asset", err)
	}
	if asset.Status.Terminal() {
		log.Info().Str("status", string(asset.Status)).Msg("worker: asset already terminal")
		return string(asset.Status), p.Queue.Complete(ctx, job.ID)
	}

	// 1-2: input moderation
	if err := p.advance(ctx, job, domain.AssetStatusAuditingInput, domain.AssetFields{}); err != nil {
		return "", err
	}
	if res := p.audit(ctx, "input", job.SourceImage); !res.Passed {
		if res.ErrorCode != "" {
			return "", retryable(res.ErrorCode, "input moderation unavailable", res.Err)
		}
		return OutcomeFailed, p.terminal(ctx, job, log, domain.NewError(domain.CodeInputRejected, describe(res.Violations)))
	}

	// best-effort cancellation: last point before provider cost is incurred
	cancelled, err := p.Queue.CancelRequested(ctx, job.ID)
	if err != nil {
		log.Warn().Err(err).Msg("worker: cancel check failed, continuing")
	}
	if cancelled {
		log.Info().Msg("worker: cancellation honoured before generation")
		return OutcomeCancelled, p.terminal(ctx, job, log, domain.NewError(domain.CodeJobCancelled, "job cancelled"))
	}

	// 3: generation
	if err := p.advance(ctx, job, domain.AssetStatusGenerating, domain.AssetFields{}); err != nil {
		return "", err
	}
	exec, err := p.Generator.Execute(ctx, requestFor(job), router.Options{
		RequestID: job.ID,
		Provider:  providers.ID(job.Provider),
		Fallbacks: fallbackIDs(job.Fallbacks),
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", retryable(domain.CodeServiceUnavailable, "worker stopped during generation", ctx.Err())
		}
		return OutcomeFailed, p.terminal(ctx, job, log, generationError(err))
	}
	result := exec.Result
	// provider cost is incurred from here on
	if err := p.Billing.Record(ctx, job.AssetID, domain.BillingStatusGenerated, exec.Attempts); err != nil {
		log.Error().Err(err).Msg("worker: billing record failed")
	}

	// 4: output moderation
	if err := p.advance(ctx, job, domain.AssetStatusAuditingOutput, domain.AssetFields{}); err != nil {
		return "", err
	}
	if res := p.audit(ctx, "output", result.Image); !res.Passed {
		if res.ErrorCode != "" {
			return "", retryable(res.ErrorCode, "output moderation unavailable", res.Err)
		}
		if err := p.Billing.Record(ctx, job.AssetID, domain.BillingStatusOutputRejected, exec.Attempts); err != nil {
			log.Error().Err(err).Msg("worker: billing record failed")
		}
		return OutcomeFailed, p.terminal(ctx, job, log, domain.NewError(domain.CodeOutputRejected, describe(res.Violations)))
	}

	// 5: upload
	if err := p.advance(ctx, job, domain.AssetStatusUploading, domain.AssetFields{}); err != nil {
		return "", err
	}
	url, err := p.Uploader.Upload(ctx, result.Image, job.AssetID)
	if err != nil {
		return "", retryable(domain.CodeUploadFailed, "upload artifact", err)
	}

	// 6: complete
	elapsed := p.Now().Sub(start).Milliseconds()
	model := result.ModelVersion
	if model == "" {
		model = string(result.Provider)
	}
	fields := domain.AssetFields{
		StorageURL:       &url,
		AIModelVersion:   &model,
		GenerationSeed:   seedOf(result, job),
		ProcessingTimeMs: &elapsed,
	}
	if err := p.advance(ctx, job, domain.AssetStatusCompleted, fields); err != nil {
		return "", err
	}

	// 7: billing
	if err := p.Billing.Record(ctx, job.AssetID, domain.BillingStatusCompleted, exec.Attempts); err != nil {
		log.Error().Err(err).Msg("worker: billing record failed")
	}
	if err := p.Queue.Complete(ctx, job.ID); err != nil {
		log.Warn().Err(err).Msg("worker: complete job")
	}
	log.Info().
		Str("provider", string(result.Provider)).
		Int("provider_attempts", exec.Attempts).
		Int64("processing_ms", elapsed).
		Msg("worker: asset completed")
	return OutcomeCompleted, nil
}

func (p *Pipeline) advance(ctx context.Context, job *domain.GenerationJob, status domain.AssetStatus, fields domain.AssetFields) error {
	if _, err := p.Assets.Advance(ctx, job.AssetID, status, fields); err != nil {
		return retryable(domain.CodeServiceUnavailable, fmt.Sprintf("advance asset to %s", status), err)
	}
	return nil
}

func (p *Pipeline) audit(ctx context.Context, stage string, image []byte) moderation.Result {
	res := p.Moderation.Audit(ctx, image)
	if p.Observer != nil && res.ErrorCode == "" {
		p.Observer.ObserveModeration(stage, res.Passed)
	}
	return res
}

// terminal fails the asset with cause and retires the job.
func (p *Pipeline) terminal(ctx context.Context, job *domain.GenerationJob, log infra.Logger, cause *domain.Error) error {
	if _, err := p.Assets.Fail(ctx, job.AssetID, cause); err != nil {
		log.Error().Err(err).Str("code", string(cause.Code)).Msg("worker: could not mark asset failed")
	} else {
		log.Info().Str("code", string(cause.Code)).Str("reason", cause.Message).Msg("worker: asset failed")
	}
	return p.Queue.Fail(ctx, job.ID, string(cause.Code))
}

func requestFor(job *domain.GenerationJob) providers.Request {
	return providers.Request{
		Operation:   providers.OperationImageToImage,
		Prompt:      job.Prompt,
		SourceImage: job.SourceImage,
		SourceMIME:  job.SourceMIME,
		Quality:     job.RequestedQuality,
		Style:       job.Style,
		Seed:        job.Seed,
		RequestID:   job.ID,
	}.Normalized()
}

func fallbackIDs(in []string) []providers.ID {
	out := make([]providers.ID, 0, len(in))
	for _, s := range in {
		out = append(out, providers.ID(s))
	}
	return out
}

func generationError(err error) *domain.Error {
	var pe *providers.Error
	if errors.As(err, &pe) {
		return pe.Domain()
	}
	return domain.WrapError(domain.CodeGenerationFailed, "generation failed", false, err)
}

func seedOf(result *providers.Result, job *domain.GenerationJob) *int64 {
	if result.Seed != nil {
		return result.Seed
	}
	return job.Seed
}

func describe(violations []moderation.Violation) string {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, v.String())
	}
	return "content rejected: " + strings.Join(parts, ", ")
}
