// Package gemini adapts the Gemini generateContent image API to the provider contract.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"sketchgen/internal/infra"
	"sketchgen/internal/providers"
)

// Options controls how the Gemini client is configured.
type Options struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client sends the prompt and optional sketch as inline data and reads the image back
// from the first inline part of the response.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
	Seed               *int64   `json:"seed,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
	ModelVersion string `json:"modelVersion,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client. Callers may provide a nil HTTP client; the
// request context bounds every call.
func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

func (c *Client) Generate(ctx context.Context, apiKey string, req providers.Request) (*providers.Result, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, providers.NewError(providers.Gemini, providers.KindNoAPIKey, "api key is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, providers.NewError(providers.Gemini, providers.KindInvalidRequest, "prompt is required")
	}

	parts := []geminiPart{{Text: buildImagePrompt(req)}}
	if len(req.SourceImage) > 0 {
		mime := req.SourceMIME
		if mime == "" {
			mime = http.DetectContentType(req.SourceImage)
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(req.SourceImage),
		}})
	}
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			Seed:               req.Seed,
		},
	}

	var response geminiGenerateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model))
	if err := c.invokeGemini(ctx, apiKey, path, payload, &response); err != nil {
		return nil, err
	}
	if response.PromptFeedback != nil && response.PromptFeedback.BlockReason != "" {
		return nil, providers.Errorf(providers.Gemini, providers.KindContentPolicy, "prompt blocked: %s", response.PromptFeedback.BlockReason)
	}

	for _, candidate := range response.Candidates {
		if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "PROHIBITED_CONTENT" {
			return nil, providers.Errorf(providers.Gemini, providers.KindContentPolicy, "generation stopped: %s", candidate.FinishReason)
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, providers.Errorf(providers.Gemini, providers.KindServer, "decode inline data: %v", err)
			}
			width, height := decodeImageDimensions(data)
			if width == 0 || height == 0 {
				width, height = req.Width, req.Height
			}
			model := firstNonEmpty(response.ModelVersion, c.model)
			c.logger.Debug().
				Str("request_id", req.RequestID).
				Str("model", model).
				Msg("gemini: generated image")
			return &providers.Result{
				Image:        data,
				MIME:         firstNonEmpty(part.InlineData.MimeType, "image/png"),
				Width:        width,
				Height:       height,
				Provider:     providers.Gemini,
				ModelVersion: model,
				Seed:         req.Seed,
			}, nil
		}
	}
	return nil, providers.NewError(providers.Gemini, providers.KindServer, "no image content returned")
}

func (c *Client) invokeGemini(ctx context.Context, apiKey, path string, payload any, out any) error {
	endpoint := c.baseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return providers.Errorf(providers.Gemini, providers.KindInvalidRequest, "marshal request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return providers.Errorf(providers.Gemini, providers.KindInvalidRequest, "create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return providers.FromTransport(providers.Gemini, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		var apiErr geminiErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			e := providers.FromStatus(providers.Gemini, resp.StatusCode, apiErr.Error.Message)
			if apiErr.Error.Status == "RESOURCE_EXHAUSTED" && strings.Contains(strings.ToLower(apiErr.Error.Message), "quota") {
				e = providers.NewError(providers.Gemini, providers.KindQuota, apiErr.Error.Message)
				e.StatusCode = resp.StatusCode
			}
			return e
		}
		return providers.FromStatus(providers.Gemini, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return providers.Errorf(providers.Gemini, providers.KindServer, "decode response: %v", err)
	}
	return nil
}

func buildImagePrompt(req providers.Request) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(req.Prompt))
	if len(req.SourceImage) > 0 {
		b.WriteString("\nUse the attached sketch as the composition reference.")
	}
	if style := strings.TrimSpace(req.Style); style != "" {
		b.WriteString("\nStyle: ")
		b.WriteString(style)
	}
	if req.Width > 0 && req.Height > 0 {
		fmt.Fprintf(&b, "\nOutput size: %dx%d", req.Width, req.Height)
	}
	return b.String()
}

func decodeImageDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var _ providers.Client = (*Client)(nil)
