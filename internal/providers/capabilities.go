package providers

import (
	"slices"

	"sketchgen/internal/domain"
)

// ReferencePixels is the output area that earns full resolution headroom when scoring.
const ReferencePixels = 1024 * 1024

// Capability is the static descriptor of what a provider can do and what it costs.
// An empty Styles list accepts any style hint.
type Capability struct {
	ID                 ID
	Operations         []Operation
	MaxWidth           int
	MaxHeight          int
	Qualities          []domain.Quality
	Styles             []string
	RequestsPerMinute  int
	CostPerCall        float64 // USD
	ModelVersion       string
	RequiresCredential bool
}

// capabilities is ordered; the order breaks scoring ties.
var capabilities = []Capability{
	{
		ID:                 Qwen,
		Operations:         []Operation{OperationTextToImage, OperationImageToImage},
		MaxWidth:           2048,
		MaxHeight:          2048,
		Qualities:          []domain.Quality{domain.QualityStandard, domain.QualityHD},
		Styles:             []string{"photographic", "anime", "sketch", "watercolor", "oil_painting", "3d"},
		RequestsPerMinute:  10,
		CostPerCall:        0.02,
		ModelVersion:       "qwen-image-edit",
		RequiresCredential: true,
	},
	{
		ID:                 OpenAI,
		Operations:         []Operation{OperationTextToImage, OperationImageToImage},
		MaxWidth:           1536,
		MaxHeight:          1536,
		Qualities:          []domain.Quality{domain.QualityStandard, domain.QualityHD},
		Styles:             []string{"vivid", "natural", "photographic"},
		RequestsPerMinute:  5,
		CostPerCall:        0.04,
		ModelVersion:       "gpt-image-1",
		RequiresCredential: true,
	},
	{
		ID:                 Gemini,
		Operations:         []Operation{OperationTextToImage, OperationImageToImage},
		MaxWidth:           2048,
		MaxHeight:          2048,
		Qualities:          []domain.Quality{domain.QualityStandard, domain.QualityHD, domain.QualityUltra},
		RequestsPerMinute:  15,
		CostPerCall:        0.039,
		ModelVersion:       "gemini-2.5-flash-image",
		RequiresCredential: true,
	},
	{
		ID:                 Synthetic,
		Operations:         []Operation{OperationTextToImage, OperationImageToImage},
		MaxWidth:           1024,
		MaxHeight:          1024,
		Qualities:          []domain.Quality{domain.QualityStandard, domain.QualityHD},
		RequestsPerMinute:  60,
		CostPerCall:        0,
		ModelVersion:       "synthetic-v1",
		RequiresCredential: false,
	},
}

// Capabilities returns the table in declaration order.
func Capabilities() []Capability {
	return slices.Clone(capabilities)
}

// Lookup returns the capability entry for id.
func Lookup(id ID) (Capability, bool) {
	for _, c := range capabilities {
		if c.ID == id {
			return c, true
		}
	}
	return Capability{}, false
}

// IDs lists every provider in declaration order.
func IDs() []ID {
	ids := make([]ID, len(capabilities))
	for i, c := range capabilities {
		ids[i] = c.ID
	}
	return ids
}

func (c Capability) SupportsOperation(op Operation) bool {
	return slices.Contains(c.Operations, op)
}

func (c Capability) SupportsQuality(q domain.Quality) bool {
	return slices.Contains(c.Qualities, q)
}

func (c Capability) SupportsStyle(style string) bool {
	if style == "" || len(c.Styles) == 0 {
		return true
	}
	return slices.Contains(c.Styles, style)
}

func (c Capability) FitsDimensions(width, height int) bool {
	return width <= c.MaxWidth && height <= c.MaxHeight
}

// Supports reports whether the provider can serve req; req should be normalized.
func (c Capability) Supports(req Request) bool {
	return c.SupportsOperation(req.Operation) &&
		c.FitsDimensions(req.Width, req.Height) &&
		c.SupportsQuality(req.Quality) &&
		c.SupportsStyle(req.Style)
}

// MaxPixels is the largest output area the provider produces.
func (c Capability) MaxPixels() int {
	return c.MaxWidth * c.MaxHeight
}

// BestQuality is the highest quality tier the provider offers.
func (c Capability) BestQuality() domain.Quality {
	best := domain.Quality("")
	for _, q := range c.Qualities {
		if q.Rank() > best.Rank() {
			best = q
		}
	}
	return best
}
