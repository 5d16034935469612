// Package openai adapts the OpenAI images API to the provider contract.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"

	"sketchgen/internal/infra"
	"sketchgen/internal/providers"
)

// Options configures the OpenAI images client.
type Options struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client calls the images edit endpoint for sketch input and the generations endpoint for
// text-only requests. The go-openai client is built per call because the key is resolved
// per request.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-image-1"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{baseURL: baseURL, model: model, httpClient: opts.HTTPClient, logger: logger}
}

func (c *Client) Generate(ctx context.Context, apiKey string, req providers.Request) (*providers.Result, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, providers.NewError(providers.OpenAI, providers.KindNoAPIKey, "api key is required")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, providers.NewError(providers.OpenAI, providers.KindInvalidRequest, "prompt is required")
	}
	if style := strings.TrimSpace(req.Style); style != "" && !isDallE3(c.model) {
		prompt += "\nStyle: " + style
	}

	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = c.baseURL
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}
	client := goopenai.NewClientWithConfig(cfg)

	var (
		resp goopenai.ImageResponse
		err  error
	)
	if len(req.SourceImage) > 0 {
		resp, err = c.edit(ctx, client, prompt, req)
	} else {
		resp, err = client.CreateImage(ctx, c.imageRequest(prompt, req))
	}
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, providers.NewError(providers.OpenAI, providers.KindServer, "empty image response")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, providers.Errorf(providers.OpenAI, providers.KindServer, "decode image: %v", err)
	}

	c.logger.Debug().
		Str("model", c.model).
		Str("request_id", req.RequestID).
		Int("bytes", len(data)).
		Msg("openai: generated image")
	return &providers.Result{
		Image:        data,
		MIME:         http.DetectContentType(data),
		Width:        req.Width,
		Height:       req.Height,
		Provider:     providers.OpenAI,
		ModelVersion: c.model,
		Seed:         req.Seed,
	}, nil
}

func (c *Client) imageRequest(prompt string, req providers.Request) goopenai.ImageRequest {
	out := goopenai.ImageRequest{
		Prompt:  prompt,
		Model:   c.model,
		N:       1,
		Size:    sizeFor(req.Width, req.Height),
		Quality: qualityFor(c.model, string(req.Quality)),
	}
	if isDallE(c.model) {
		out.ResponseFormat = goopenai.CreateImageResponseFormatB64JSON
	}
	if isDallE3(c.model) && req.Style != "" {
		out.Style = req.Style
	}
	return out
}

// edit stages the source image in a temp file; the SDK uploads it as multipart form data.
func (c *Client) edit(ctx context.Context, client *goopenai.Client, prompt string, req providers.Request) (goopenai.ImageResponse, error) {
	f, err := os.CreateTemp("", "sketch-*"+extensionFor(req.SourceMIME))
	if err != nil {
		return goopenai.ImageResponse{}, fmt.Errorf("stage source image: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()
	if _, err := f.Write(req.SourceImage); err != nil {
		return goopenai.ImageResponse{}, fmt.Errorf("stage source image: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return goopenai.ImageResponse{}, fmt.Errorf("stage source image: %w", err)
	}
	editReq := goopenai.ImageEditRequest{
		Image:  f,
		Prompt: prompt,
		Model:  c.model,
		N:      1,
		Size:   sizeFor(req.Width, req.Height),
	}
	if isDallE(c.model) {
		editReq.ResponseFormat = goopenai.CreateImageResponseFormatB64JSON
	}
	return client.CreateEditImage(ctx, editReq)
}

// classify maps SDK errors onto provider kinds by HTTP status, then by the API error code.
func classify(err error) *providers.Error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		e := providers.FromStatus(providers.OpenAI, apiErr.HTTPStatusCode, apiErr.Message)
		switch fmt.Sprint(apiErr.Code) {
		case "content_policy_violation", "moderation_blocked":
			e = providers.NewError(providers.OpenAI, providers.KindContentPolicy, apiErr.Message)
		case "insufficient_quota", "billing_hard_limit_reached":
			e = providers.NewError(providers.OpenAI, providers.KindQuota, apiErr.Message)
		case "invalid_api_key":
			e = providers.NewError(providers.OpenAI, providers.KindAuth, apiErr.Message)
		}
		e.StatusCode = apiErr.HTTPStatusCode
		e.Err = err
		return e
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		e := providers.FromStatus(providers.OpenAI, reqErr.HTTPStatusCode, reqErr.Error())
		e.Err = err
		return e
	}
	return providers.FromTransport(providers.OpenAI, err)
}

func isDallE(model string) bool {
	return strings.HasPrefix(model, "dall-e")
}

func isDallE3(model string) bool {
	return model == goopenai.CreateImageModelDallE3
}

func qualityFor(model string, q string) string {
	switch {
	case isDallE3(model):
		if q == "hd" || q == "ultra" {
			return goopenai.CreateImageQualityHD
		}
		return goopenai.CreateImageQualityStandard
	case isDallE(model):
		return ""
	default:
		if q == "hd" || q == "ultra" {
			return "high"
		}
		return "medium"
	}
}

func sizeFor(width, height int) string {
	switch {
	case width > height:
		return "1536x1024"
	case height > width:
		return "1024x1536"
	default:
		return goopenai.CreateImageSize1024x1024
	}
}

func extensionFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

var _ providers.Client = (*Client)(nil)
