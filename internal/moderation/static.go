package moderation

import "context"

// StaticDetector returns a fixed annotation. It stands in for the Vision API when
// moderation is disabled and in tests.
type StaticDetector struct {
	Annotation Annotation
	Err        error
}

// AllowAll reports every category as very unlikely.
func AllowAll() *StaticDetector {
	return &StaticDetector{Annotation: Annotation{
		CategoryAdult:    VeryUnlikely,
		CategoryViolence: VeryUnlikely,
		CategoryRacy:     VeryUnlikely,
		CategoryMedical:  VeryUnlikely,
		CategorySpoof:    VeryUnlikely,
	}}
}

func (s *StaticDetector) Detect(ctx context.Context, _ []byte) (Annotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := make(Annotation, len(s.Annotation))
	for k, v := range s.Annotation {
		out[k] = v
	}
	return out, nil
}
