// Package providers describes the AI generation backends: the closed set of provider ids,
// their static capabilities, and the normalized request, result and error types every
// provider client speaks.
package providers

import (
	"context"
	"strings"

	"sketchgen/internal/domain"
)

// ID identifies a provider. The set is closed; adding a provider means adding a constant,
// a capability entry and a catalog constructor.
type ID string

const (
	Qwen      ID = "qwen"
	OpenAI    ID = "openai"
	Gemini    ID = "gemini"
	Synthetic ID = "synthetic"
)

// ParseID maps a configuration string onto a known provider.
func ParseID(s string) (ID, bool) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	_, ok := Lookup(id)
	return id, ok
}

// ParseIDs parses a list, dropping unknown or repeated entries.
func ParseIDs(values []string) []ID {
	seen := make(map[ID]bool, len(values))
	out := make([]ID, 0, len(values))
	for _, v := range values {
		id, ok := ParseID(v)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Operation is the kind of generation a provider performs.
type Operation string

const (
	OperationTextToImage  Operation = "text_to_image"
	OperationImageToImage Operation = "image_to_image"
)

// Request is the provider-neutral generation request.
type Request struct {
	Operation   Operation
	Prompt      string
	SourceImage []byte
	SourceMIME  string
	Width       int
	Height      int
	Quality     domain.Quality
	Style       string
	Seed        *int64
	RequestID   string
}

// Default output dimensions when the caller does not ask for any.
const (
	DefaultWidth  = 1024
	DefaultHeight = 1024
)

// Normalized fills defaults and infers the operation from the presence of a source image.
func (r Request) Normalized() Request {
	if r.Width <= 0 {
		r.Width = DefaultWidth
	}
	if r.Height <= 0 {
		r.Height = DefaultHeight
	}
	if r.Quality == "" {
		r.Quality = domain.QualityStandard
	}
	if r.Operation == "" {
		r.Operation = OperationTextToImage
		if len(r.SourceImage) > 0 {
			r.Operation = OperationImageToImage
		}
	}
	r.Style = strings.ToLower(strings.TrimSpace(r.Style))
	return r
}

// Result is a successful generation. Attempts counts the provider calls the router made for
// it, including the successful one.
type Result struct {
	Image        []byte
	MIME         string
	Width        int
	Height       int
	Provider     ID
	ModelVersion string
	Seed         *int64
	Attempts     int
}

// Client executes one generation call against a provider. Implementations return only
// *Error values so callers never inspect raw transport errors.
type Client interface {
	Generate(ctx context.Context, apiKey string, req Request) (*Result, error)
}
