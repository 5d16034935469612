// Package moderation audits source and generated images against SafeSearch-style category
// likelihoods. The gate fails closed: a detector error rejects the image.
package moderation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sketchgen/internal/domain"
	"sketchgen/internal/infra"
)

// Likelihood is the ordinal confidence a detector reports for a category.
type Likelihood int

const (
	Unknown Likelihood = iota
	VeryUnlikely
	Unlikely
	Possible
	Likely
	VeryLikely
)

var likelihoodNames = map[Likelihood]string{
	Unknown:      "UNKNOWN",
	VeryUnlikely: "VERY_UNLIKELY",
	Unlikely:     "UNLIKELY",
	Possible:     "POSSIBLE",
	Likely:       "LIKELY",
	VeryLikely:   "VERY_LIKELY",
}

func (l Likelihood) String() string {
	if s, ok := likelihoodNames[l]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseLikelihood maps the Vision API enum names; anything else is Unknown.
func ParseLikelihood(s string) Likelihood {
	for l, name := range likelihoodNames {
		if name == s {
			return l
		}
	}
	return Unknown
}

// Category is one SafeSearch dimension.
type Category string

const (
	CategoryAdult    Category = "adult"
	CategoryViolence Category = "violence"
	CategoryRacy     Category = "racy"
	CategoryMedical  Category = "medical"
	CategorySpoof    Category = "spoof"
)

// Annotation is a detector's verdict per category. Missing categories count as Unknown.
type Annotation map[Category]Likelihood

// Detector scores an image.
type Detector interface {
	Detect(ctx context.Context, image []byte) (Annotation, error)
}

// Thresholds is the lowest likelihood at which a category fails.
type Thresholds map[Category]Likelihood

// DefaultThresholds rejects likely adult or violent content and near-certain racy,
// medical or spoof content.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CategoryAdult:    Likely,
		CategoryViolence: Likely,
		CategoryRacy:     VeryLikely,
		CategoryMedical:  VeryLikely,
		CategorySpoof:    VeryLikely,
	}
}

// Violation names one failing category.
type Violation struct {
	Category  Category   `json:"category"`
	Detected  Likelihood `json:"detected"`
	Threshold Likelihood `json:"threshold"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s=%s (threshold %s)", v.Category, v.Detected, v.Threshold)
}

// Result is the gate's verdict. ErrorCode is set only when the detector itself failed.
type Result struct {
	Passed     bool
	Violations []Violation
	ErrorCode  domain.ErrorCode
	Err        error
}

// Options configures a Gate.
type Options struct {
	Thresholds Thresholds
	Timeout    time.Duration
	Logger     infra.Logger
}

type Gate struct {
	detector   Detector
	thresholds Thresholds
	timeout    time.Duration
	logger     infra.Logger
}

func NewGate(detector Detector, opts Options) *Gate {
	if opts.Thresholds == nil {
		opts.Thresholds = DefaultThresholds()
	}
	return &Gate{
		detector:   detector,
		thresholds: opts.Thresholds,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}
}

// Audit runs the detector on image and compares every category with its threshold.
func (g *Gate) Audit(ctx context.Context, image []byte) Result {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	annotation, err := g.detector.Detect(ctx, image)
	if err != nil {
		g.logger.Error().Err(err).Msg("moderation: detector failed, rejecting")
		return Result{Passed: false, ErrorCode: domain.CodeServiceUnavailable, Err: err}
	}

	var violations []Violation
	for category, threshold := range g.thresholds {
		detected := annotation[category]
		if detected >= threshold {
			violations = append(violations, Violation{Category: category, Detected: detected, Threshold: threshold})
		}
	}
	sort.Slice(violations, func(i, j int) bool { return violations[i].Category < violations[j].Category })
	if len(violations) > 0 {
		g.logger.Info().Int("violations", len(violations)).Str("first", violations[0].String()).Msg("moderation: image rejected")
	}
	return Result{Passed: len(violations) == 0, Violations: violations}
}
