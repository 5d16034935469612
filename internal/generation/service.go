// Package generation is the admission and status surface: it validates submissions, runs
// the budget check, creates the pending asset and enqueues its job.
package generation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"sketchgen/internal/budget"
	"sketchgen/internal/domain"
	"sketchgen/internal/imaging"
	"sketchgen/internal/infra"
	"sketchgen/internal/providers"
	"sketchgen/internal/queue"
)

// BudgetChecker is the admission gate.
type BudgetChecker interface {
	CheckBudget(ctx context.Context, caller budget.Caller) budget.Decision
	Status(ctx context.Context) (domain.BudgetInfo, error)
}

// Assets is the subset of the asset state machine the service drives.
type Assets interface {
	Create(ctx context.Context, asset *domain.Asset) error
	Get(ctx context.Context, assetID string) (*domain.Asset, error)
	Fail(ctx context.Context, assetID string, err *domain.Error) (*domain.Asset, error)
	Delete(ctx context.Context, assetID string) (*domain.Asset, error)
}

// ArtifactDeleter removes stored artifacts in the background.
type ArtifactDeleter interface {
	DeleteAsync(url string) bool
}

// Observer counts submissions by result code; empty means accepted.
type Observer interface {
	ObserveSubmission(code string)
}

// SubmitRequest is one generation submission. Image takes precedence over ImageBase64,
// which may carry a data URL prefix.
type SubmitRequest struct {
	ProjectID      string   `json:"project_id"`
	SourceSketchID string   `json:"source_sketch_id,omitempty"`
	Image          []byte   `json:"-"`
	ImageBase64    string   `json:"image"`
	Prompt         string   `json:"prompt"`
	Quality        string   `json:"quality,omitempty"`
	Style          string   `json:"style,omitempty"`
	Seed           *int64   `json:"seed,omitempty"`
	Provider       string   `json:"provider,omitempty"`
	Fallbacks      []string `json:"fallbacks,omitempty"`
	Priority       int      `json:"priority,omitempty"`
}

type SubmitResult struct {
	AssetID         string `json:"asset_id"`
	JobID           string `json:"job_id"`
	EstimatedTimeMs int64  `json:"estimated_time_ms"`
}

// Config holds the admission limits and job defaults.
type Config struct {
	MaxImageBase64Bytes int
	EstimatedJobMs      int64
	WorkerConcurrency   int
	JobMaxAttempts      int
	DefaultProvider     string
	FallbackProviders   []string
	Privileged          func(projectID string) bool
}

// Deps wires the service's collaborators.
type Deps struct {
	Budget    BudgetChecker
	Assets    Assets
	Queue     queue.Queue
	Artifacts ArtifactDeleter
	Observer  Observer
	Logger    infra.Logger
}

type Service struct {
	cfg  Config
	deps Deps
}

func NewService(cfg Config, deps Deps) *Service {
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.EstimatedJobMs <= 0 {
		cfg.EstimatedJobMs = 30000
	}
	if cfg.JobMaxAttempts <= 0 {
		cfg.JobMaxAttempts = 3
	}
	if cfg.Privileged == nil {
		cfg.Privileged = func(string) bool { return false }
	}
	return &Service{cfg: cfg, deps: deps}
}

// Submit admits a generation request. Validation and budget rejections return a
// *domain.Error; nothing is persisted for rejected submissions.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	res, err := s.submit(ctx, req)
	if s.deps.Observer != nil {
		s.deps.Observer.ObserveSubmission(string(domain.CodeOf(err, "")))
	}
	return res, err
}

func (s *Service) submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	image, mime, err := s.decodeImage(req)
	if err != nil {
		return nil, err
	}
	provider, fallbacks, err := s.routing(req)
	if err != nil {
		return nil, err
	}

	decision := s.deps.Budget.CheckBudget(ctx, budget.Caller{ProjectID: req.ProjectID, Privileged: s.cfg.Privileged(req.ProjectID)})
	if err := decision.Err(); err != nil {
		s.deps.Logger.Info().Str("project_id", req.ProjectID).Str("code", string(decision.Code)).Msg("generation: submission rejected by budget")
		return nil, err
	}

	asset := &domain.Asset{
		ID:             uuid.NewString(),
		ProjectID:      req.ProjectID,
		SourceSketchID: req.SourceSketchID,
		Prompt:         strings.TrimSpace(req.Prompt),
	}
	if err := s.deps.Assets.Create(ctx, asset); err != nil {
		return nil, domain.WrapError(domain.CodeServiceUnavailable, "could not create asset", true, err)
	}

	job := &domain.GenerationJob{
		ID:               uuid.NewString(),
		AssetID:          asset.ID,
		SourceImage:      image,
		SourceMIME:       mime,
		Prompt:           asset.Prompt,
		RequestedQuality: domain.NormalizeQuality(req.Quality),
		Style:            strings.TrimSpace(req.Style),
		Seed:             req.Seed,
		Provider:         provider,
		Fallbacks:        fallbacks,
		Priority:         req.Priority,
		MaxAttempts:      s.cfg.JobMaxAttempts,
	}
	if err := s.deps.Queue.Enqueue(ctx, job); err != nil {
		cause := domain.WrapError(domain.CodeServiceUnavailable, "could not enqueue job", true, err)
		if _, ferr := s.deps.Assets.Fail(ctx, asset.ID, cause); ferr != nil {
			s.deps.Logger.Error().Err(ferr).Str("asset_id", asset.ID).Msg("generation: could not fail orphaned asset")
		}
		return nil, cause
	}

	est := s.estimate(ctx)
	s.deps.Logger.Info().
		Str("project_id", req.ProjectID).
		Str("asset_id", asset.ID).
		Str("job_id", job.ID).
		Int("image_bytes", len(image)).
		Float64("budget_used_percent", decision.Budget.UsagePercent).
		Msg("generation: job enqueued")
	return &SubmitResult{AssetID: asset.ID, JobID: job.ID, EstimatedTimeMs: est}, nil
}

func (s *Service) decodeImage(req SubmitRequest) ([]byte, string, error) {
	image := req.Image
	encoded := strings.TrimSpace(req.ImageBase64)
	if req.ProjectID == "" || (len(image) == 0 && encoded == "") {
		return nil, "", domain.NewError(domain.CodeMissingRequiredFields, "project_id and image are required")
	}
	if len(image) == 0 {
		if i := strings.Index(encoded, ";base64,"); strings.HasPrefix(encoded, "data:") && i >= 0 {
			encoded = encoded[i+len(";base64,"):]
		}
		if s.cfg.MaxImageBase64Bytes > 0 && len(encoded) > s.cfg.MaxImageBase64Bytes {
			return nil, "", domain.NewError(domain.CodeInvalidImageData, fmt.Sprintf("image exceeds %d bytes of base64", s.cfg.MaxImageBase64Bytes))
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", domain.WrapError(domain.CodeInvalidImageEncoding, "image is not valid base64", false, err)
		}
		image = decoded
	} else if s.cfg.MaxImageBase64Bytes > 0 && base64.StdEncoding.EncodedLen(len(image)) > s.cfg.MaxImageBase64Bytes {
		return nil, "", domain.NewError(domain.CodeInvalidImageData, "image is too large")
	}

	mime, _, err := imaging.Inspect(image)
	switch {
	case errors.Is(err, imaging.ErrUnsupported):
		return nil, "", domain.NewError(domain.CodeUnsupportedImageType, "only png, jpeg and webp images are accepted")
	case err != nil:
		return nil, "", domain.WrapError(domain.CodeInvalidImageData, "image could not be decoded", false, err)
	}
	return image, mime, nil
}

// routing resolves the requested provider and fallbacks against the closed provider set,
// applying configured defaults when the request names none.
func (s *Service) routing(req SubmitRequest) (string, []string, error) {
	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		provider = s.cfg.DefaultProvider
	}
	fallbacks := req.Fallbacks
	if len(fallbacks) == 0 {
		fallbacks = s.cfg.FallbackProviders
	}
	if provider != "" {
		id, ok := providers.ParseID(provider)
		if !ok {
			return "", nil, domain.NewError(domain.CodeInvalidRequest, fmt.Sprintf("unknown provider %q", provider))
		}
		provider = string(id)
	}
	out := make([]string, 0, len(fallbacks))
	for _, f := range fallbacks {
		if strings.TrimSpace(f) == "" {
			continue
		}
		id, ok := providers.ParseID(f)
		if !ok {
			return "", nil, domain.NewError(domain.CodeInvalidRequest, fmt.Sprintf("unknown fallback provider %q", f))
		}
		if string(id) != provider && !slices.Contains(out, string(id)) {
			out = append(out, string(id))
		}
	}
	return provider, out, nil
}

// estimate assumes each worker drains its share of the queue one job at a time.
func (s *Service) estimate(ctx context.Context) int64 {
	depth, err := s.deps.Queue.Depth(ctx)
	if err != nil || depth < 1 {
		depth = 1
	}
	rounds := (depth + s.cfg.WorkerConcurrency - 1) / s.cfg.WorkerConcurrency
	return int64(rounds) * s.cfg.EstimatedJobMs
}

// GetStatus returns the asset or ASSET_NOT_FOUND.
func (s *Service) GetStatus(ctx context.Context, assetID string) (*domain.Asset, error) {
	if _, err := uuid.Parse(assetID); err != nil {
		return nil, domain.NewError(domain.CodeAssetNotFound, "asset not found")
	}
	asset, err := s.deps.Assets.Get(ctx, assetID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewError(domain.CodeAssetNotFound, "asset not found")
	}
	if err != nil {
		return nil, domain.WrapError(domain.CodeServiceUnavailable, "could not load asset", true, err)
	}
	return asset, nil
}

// Cancel removes a queued job (failing its asset with JOB_CANCELLED so pollers see a
// terminal state) or flags a running one for best-effort cancellation.
func (s *Service) Cancel(ctx context.Context, jobID string) (queue.CancelResult, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return queue.CancelResult{Outcome: queue.CancelNotFound}, domain.NewError(domain.CodeJobNotFound, "job not found")
	}
	res, err := s.deps.Queue.Cancel(ctx, jobID)
	if err != nil {
		return res, domain.WrapError(domain.CodeServiceUnavailable, "could not cancel job", true, err)
	}
	switch res.Outcome {
	case queue.CancelNotFound:
		return res, domain.NewError(domain.CodeJobNotFound, "job not found or already finished")
	case queue.CancelRemoved:
		if _, err := s.deps.Assets.Fail(ctx, res.AssetID, domain.NewError(domain.CodeJobCancelled, "job cancelled before processing")); err != nil {
			s.deps.Logger.Warn().Err(err).Str("asset_id", res.AssetID).Msg("generation: could not mark cancelled asset")
		}
	}
	s.deps.Logger.Info().Str("job_id", jobID).Str("outcome", string(res.Outcome)).Msg("generation: cancel requested")
	return res, nil
}

// DeleteAsset removes a finished asset and schedules deletion of its artifact.
func (s *Service) DeleteAsset(ctx context.Context, assetID string) error {
	if _, err := uuid.Parse(assetID); err != nil {
		return domain.NewError(domain.CodeAssetNotFound, "asset not found")
	}
	asset, err := s.deps.Assets.Delete(ctx, assetID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.NewError(domain.CodeAssetNotFound, "asset not found")
	case errors.Is(err, domain.ErrJobInFlight):
		return domain.WrapError(domain.CodeJobInFlight, "asset is still being generated", false, err)
	case err != nil:
		return domain.WrapError(domain.CodeServiceUnavailable, "could not delete asset", true, err)
	}
	if asset.StorageURL != nil && s.deps.Artifacts != nil {
		s.deps.Artifacts.DeleteAsync(*asset.StorageURL)
	}
	return nil
}

// Budget reports the current month's spend.
func (s *Service) Budget(ctx context.Context) (domain.BudgetInfo, error) {
	info, err := s.deps.Budget.Status(ctx)
	if err != nil {
		return info, domain.WrapError(domain.CodeServiceUnavailable, "budget unavailable", true, err)
	}
	return info, nil
}
