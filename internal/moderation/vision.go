package moderation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"sketchgen/internal/imaging"
	"sketchgen/internal/infra"
)

// MaxVisionSide bounds the longest side sent to the Vision API.
const MaxVisionSide = 1600

// VisionDetector runs Google Cloud Vision SafeSearch detection.
type VisionDetector struct {
	svc    *vision.Service
	logger infra.Logger
}

// NewVisionDetector authenticates with an API key. Extra client options (endpoint, HTTP
// client) are appended after it.
func NewVisionDetector(ctx context.Context, apiKey string, logger infra.Logger, opts ...option.ClientOption) (*VisionDetector, error) {
	if apiKey == "" {
		return nil, errors.New("vision api key is required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create vision service: %w", err)
	}
	return &VisionDetector{svc: svc, logger: logger}, nil
}

func (d *VisionDetector) Detect(ctx context.Context, image []byte) (Annotation, error) {
	payload, err := imaging.Downscale(image, MaxVisionSide)
	if err != nil {
		// let the API judge formats we cannot decode locally
		d.logger.Debug().Err(err).Msg("moderation: sending original image")
		payload = image
	}
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(payload)},
			Features: []*vision.Feature{{Type: "SAFE_SEARCH_DETECTION"}},
		}},
	}
	resp, err := d.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("vision annotate: %w", err)
	}
	if len(resp.Responses) == 0 {
		return nil, errors.New("vision annotate: empty response")
	}
	first := resp.Responses[0]
	if first.Error != nil {
		return nil, fmt.Errorf("vision annotate: %s (code %d)", first.Error.Message, first.Error.Code)
	}
	ss := first.SafeSearchAnnotation
	if ss == nil {
		return nil, errors.New("vision annotate: missing safe search annotation")
	}
	return Annotation{
		CategoryAdult:    ParseLikelihood(ss.Adult),
		CategoryViolence: ParseLikelihood(ss.Violence),
		CategoryRacy:     ParseLikelihood(ss.Racy),
		CategoryMedical:  ParseLikelihood(ss.Medical),
		CategorySpoof:    ParseLikelihood(ss.Spoof),
	}, nil
}

var _ Detector = (*VisionDetector)(nil)
