package qwen

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
	"time"

	"github.com/rs/zerolog"

	"sketchgen/internal/infra"
	"sketchgen/internal/providers"
)

// Options configures the DashScope Qwen client.
type Options struct {
	BaseURL        string
	Model          string
	TextModel      string
	Watermark      bool
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the DashScope Qwen image APIs. Requests carrying a source
// image go to the edit model; text-only requests go to the text model.
type Client struct {
	baseURL    string
	model      string
	textModel  string
	watermark  bool
	httpClient *http.Client
	logger     *infra.Logger
}

type generationRequest struct {
	Model      string           `json:"model"`
	Input      generationInput  `json:"input"`
	Parameters generationParams `json:"parameters"`
}

type generationInput struct {
	Messages []generationMessage `json:"messages"`
}

type generationMessage struct {
	Role    string              `json:"role"`
	Content []generationContent `json:"content"`
}

type generationContent struct {
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

type generationParams struct {
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Size           string `json:"size,omitempty"`
	Watermark      *bool  `json:"watermark,omitempty"`
	Seed           *int64 `json:"seed,omitempty"`
}

type generationResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Image string `json:"image"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"usage"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "qwen-image-edit"
	}
	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = "qwen-image-plus"
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
		textModel:  textModel,
		watermark:  opts.Watermark,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Model returns the configured edit model identifier.
func (c *Client) Model() string {
	return c.model
}

// Generate invokes the DashScope API once and downloads the produced image.
func (c *Client) Generate(ctx context.Context, apiKey string, req providers.Request) (*providers.Result, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, providers.NewError(providers.Qwen, providers.KindNoAPIKey, "api key is required")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, providers.NewError(providers.Qwen, providers.KindInvalidRequest, "prompt is required")
	}

	payload := generationRequest{Model: c.textModel}
	content := []generationContent{{Text: prompt}}
	if len(req.SourceImage) > 0 {
		payload.Model = c.model
		content = []generationContent{{Image: dataURL(req.SourceMIME, req.SourceImage)}, {Text: prompt}}
	} else {
		payload.Parameters.Size = fmt.Sprintf("%d*%d", req.Width, req.Height)
	}
	payload.Input.Messages = []generationMessage{{Role: "user", Content: content}}
	watermark := c.watermark
	payload.Parameters.Watermark = &watermark
	payload.Parameters.Seed = req.Seed
	if style := strings.TrimSpace(req.Style); style != "" {
		payload.Input.Messages[0].Content = append(payload.Input.Messages[0].Content, generationContent{Text: "Style: " + style})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, providers.Errorf(providers.Qwen, providers.KindInvalidRequest, "encode request: %v", err)
	}
	endpoint := c.baseURL + "/services/aigc/multimodal-generation/generation"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, providers.Errorf(providers.Qwen, providers.KindInvalidRequest, "build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.FromTransport(providers.Qwen, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.FromTransport(providers.Qwen, err)
	}

	if resp.StatusCode >= 300 {
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			return nil, classify(resp.StatusCode, detail.Code, detail.Message)
		}
		return nil, providers.FromStatus(providers.Qwen, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded generationResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, providers.Errorf(providers.Qwen, providers.KindServer, "decode response: %v", err)
	}
	if decoded.Code != "" {
		return nil, classify(http.StatusBadRequest, decoded.Code, decoded.Message)
	}
	imageURL := firstImageURL(decoded)
	if imageURL == "" {
		return nil, providers.NewError(providers.Qwen, providers.KindServer, "empty image url")
	}
	data, format, err := c.download(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	width, height := decoded.Usage.Width, decoded.Usage.Height
	if width == 0 || height == 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err == nil {
			width, height = cfg.Width, cfg.Height
		}
	}
	c.logger.Debug().
		Str("model", payload.Model).
		Str("request_id", decoded.RequestID).
		Str("url", imageURL).
		Msg("qwen: generated image")
	return &providers.Result{
		Image:        data,
		MIME:         format,
		Width:        width,
		Height:       height,
		Provider:     providers.Qwen,
		ModelVersion: payload.Model,
		Seed:         req.Seed,
	}, nil
}

func (c *Client) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || parsed.Scheme == "" {
		return nil, "", providers.Errorf(providers.Qwen, providers.KindServer, "invalid image url: %s", imageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", providers.Errorf(providers.Qwen, providers.KindServer, "build download request: %v", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", providers.FromTransport(providers.Qwen, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", providers.FromStatus(providers.Qwen, resp.StatusCode, fmt.Sprintf("download status %d", resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", providers.FromTransport(providers.Qwen, err)
	}
	format := resp.Header.Get("Content-Type")
	if format == "" {
		format = "image/png"
	}
	return data, format, nil
}

// classify refines the HTTP status with DashScope's documented error codes.
func classify(status int, code, message string) *providers.Error {
	var kind providers.Kind
	switch code {
	case "DataInspectionFailed", "IPInfringementSuspect":
		kind = providers.KindContentPolicy
	case "Arrearage", "AllocationQuota.FreeTierOnly":
		kind = providers.KindQuota
	case "Throttling", "Throttling.RateQuota", "Throttling.AllocationQuota":
		kind = providers.KindRateLimited
	case "InvalidApiKey":
		kind = providers.KindAuth
	default:
		kind = providers.KindForStatus(status)
	}
	e := providers.Errorf(providers.Qwen, kind, "%s (%s)", message, code)
	e.StatusCode = status
	return e
}

func dataURL(mime string, data []byte) string {
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func firstImageURL(resp generationResponse) string {
	for _, choice := range resp.Output.Choices {
		for _, content := range choice.Message.Content {
			if url := strings.TrimSpace(content.Image); url != "" {
				return url
			}
		}
	}
	return ""
}

var _ providers.Client = (*Client)(nil)
