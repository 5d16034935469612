// Package synthetic renders deterministic placeholder images locally. It needs no
// credential and keeps the whole pipeline runnable in development and CI.
package synthetic

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"sketchgen/internal/infra"
	"sketchgen/internal/providers"
)

// Options configures the synthetic generator.
type Options struct {
	// Latency simulates upstream processing time.
	Latency time.Duration
	Logger  *infra.Logger
}

type Client struct {
	latency time.Duration
	logger  *infra.Logger
}

func NewClient(opts Options) *Client {
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{latency: opts.Latency, logger: logger}
}

// Generate ignores apiKey. The same prompt, seed and source image always produce the same
// bytes.
func (c *Client) Generate(ctx context.Context, _ string, req providers.Request) (*providers.Result, error) {
	if c.latency > 0 {
		timer := time.NewTimer(c.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, providers.FromTransport(providers.Synthetic, ctx.Err())
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, providers.FromTransport(providers.Synthetic, err)
	}

	width, height := req.Width, req.Height
	if width <= 0 || width > 1024 {
		width = providers.DefaultWidth
	}
	if height <= 0 || height > 1024 {
		height = providers.DefaultHeight
	}
	var seedPart any = "none"
	if req.Seed != nil {
		seedPart = *req.Seed
	}
	seed := deterministicSeed(req.Prompt, req.Style, seedPart, sha256.Sum256(req.SourceImage))
	data, err := renderSyntheticImage(width, height, seed)
	if err != nil {
		return nil, providers.Errorf(providers.Synthetic, providers.KindUnknown, "render: %v", err)
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("seed", seed).
		Msg("synthetic: generated image")

	resultSeed := req.Seed
	if resultSeed == nil {
		n, _ := strconv.ParseInt(seed[:15], 16, 64)
		resultSeed = &n
	}
	return &providers.Result{
		Image:        data,
		MIME:         "image/png",
		Width:        width,
		Height:       height,
		Provider:     providers.Synthetic,
		ModelVersion: "synthetic-v1",
		Seed:         resultSeed,
	}, nil
}

func renderSyntheticImage(width, height int, seed string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripeHeight := max(32, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y, width, min(height, y+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for x := 0; x < max(width, height); x += max(16, width/32) {
		for y := 0; y < height; y++ {
			if x+y >= width {
				break
			}
			img.Set(x+y, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func colorFromSeed(seed string, shift int) color.RGBA {
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func hexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(hasher, "%v|", part)
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

var _ providers.Client = (*Client)(nil)
