package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"sketchgen/internal/providers"
)

func TestGenerateImageEditingPayload(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	client := NewClient(Options{
		Model:      "qwen-image-edit",
		HTTPClient: &http.Client{Transport: transport},
	})
	transport.setJSONResponse("/api/v1/services/aigc/multimodal-generation/generation", http.StatusOK, map[string]any{
		"output": map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{
						"content": []any{
							map[string]any{"image": "https://example.com/generated/out.png"},
						},
					},
				},
			},
		},
		"usage":      map[string]any{"width": 1024, "height": 1024},
		"request_id": "req-123",
	})
	transport.setBinaryResponse("https://example.com/generated/out.png", []byte{0x89, 'P', 'N', 'G'})

	seed := int64(42)
	res, err := client.Generate(context.Background(), "test", providers.Request{
		Prompt:      "a red circle",
		SourceImage: []byte{0x01, 0x02, 0x03},
		SourceMIME:  "image/png",
		Seed:        &seed,
	}.Normalized())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Image) == 0 {
		t.Fatalf("expected downloaded image data")
	}
	if res.Provider != providers.Qwen || res.ModelVersion != "qwen-image-edit" {
		t.Fatalf("unexpected result metadata %+v", res)
	}
	if res.Width != 1024 || res.Height != 1024 {
		t.Fatalf("dimensions = %dx%d, want 1024x1024", res.Width, res.Height)
	}
	if transport.lastAuth != "Bearer test" {
		t.Fatalf("authorization = %q", transport.lastAuth)
	}

	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if model := payload["model"]; model != "qwen-image-edit" {
		t.Fatalf("model = %v", model)
	}
	params := payload["parameters"].(map[string]any)
	if _, ok := params["size"]; ok {
		t.Fatalf("size should be omitted for editing")
	}
	if s := params["seed"]; s != float64(42) {
		t.Fatalf("seed = %v, want 42", s)
	}
	content := payload["input"].(map[string]any)["messages"].([]any)[0].(map[string]any)["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("content len = %d, want 2", len(content))
	}
	img := content[0].(map[string]any)["image"].(string)
	if !strings.HasPrefix(img, "data:image/png;base64,") {
		t.Fatalf("image content = %q, want data url", img)
	}
	if text := content[1].(map[string]any)["text"]; text != "a red circle" {
		t.Fatalf("text = %v", text)
	}
}

func TestGenerateWithoutKey(t *testing.T) {
	client := NewClient(Options{HTTPClient: &http.Client{Transport: &captureTransport{}}})
	_, err := client.Generate(context.Background(), " ", providers.Request{Prompt: "x"}.Normalized())
	var pe *providers.Error
	if !errors.As(err, &pe) || pe.Kind != providers.KindNoAPIKey || pe.Retryable {
		t.Fatalf("expected non-retryable no_api_key, got %v", err)
	}
}

func TestGenerateClassifiesErrors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		code      string
		kind      providers.Kind
		retryable bool
	}{
		{"server", http.StatusServiceUnavailable, "InternalError", providers.KindServer, true},
		{"throttled", http.StatusTooManyRequests, "Throttling", providers.KindRateLimited, true},
		{"bad key", http.StatusUnauthorized, "InvalidApiKey", providers.KindAuth, false},
		{"inspection", http.StatusBadRequest, "DataInspectionFailed", providers.KindContentPolicy, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport := &captureTransport{responses: map[string]responseStub{}}
			transport.setJSONResponse("/api/v1/services/aigc/multimodal-generation/generation", tc.status, map[string]any{
				"code":    tc.code,
				"message": "upstream said no",
			})
			client := NewClient(Options{HTTPClient: &http.Client{Transport: transport}})
			_, err := client.Generate(context.Background(), "k", providers.Request{Prompt: "x"}.Normalized())
			var pe *providers.Error
			if !errors.As(err, &pe) {
				t.Fatalf("expected provider error, got %v", err)
			}
			if pe.Kind != tc.kind || pe.Retryable != tc.retryable || pe.Provider != providers.Qwen {
				t.Fatalf("got kind=%s retryable=%v provider=%s", pe.Kind, pe.Retryable, pe.Provider)
			}
		})
	}
}

func TestGenerateTransportFailureIsRetryable(t *testing.T) {
	client := NewClient(Options{HTTPClient: &http.Client{Transport: failingTransport{}}})
	_, err := client.Generate(context.Background(), "k", providers.Request{Prompt: "x"}.Normalized())
	var pe *providers.Error
	if !errors.As(err, &pe) || pe.Kind != providers.KindNetwork || !pe.Retryable {
		t.Fatalf("expected retryable network error, got %v", err)
	}
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection reset by peer")
}

type captureTransport struct {
	responses map[string]responseStub
	lastBody  []byte
	lastAuth  string
}

type responseStub struct {
	status int
	header http.Header
	body   []byte
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodPost {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		c.lastBody = body
		c.lastAuth = req.Header.Get("Authorization")
		if stub, ok := c.responses[req.URL.Path]; ok {
			return stub.toResponse(), nil
		}
	}
	if req.Method == http.MethodGet {
		if stub, ok := c.responses[req.URL.String()]; ok {
			return stub.toResponse(), nil
		}
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("not found")),
	}, nil
}

func (c *captureTransport) setJSONResponse(path string, status int, payload any) {
	body, _ := json.Marshal(payload)
	c.responses[path] = responseStub{
		status: status,
		header: http.Header{"Content-Type": []string{"application/json"}},
		body:   body,
	}
}

func (c *captureTransport) setBinaryResponse(url string, data []byte) {
	c.responses[url] = responseStub{
		status: http.StatusOK,
		header: http.Header{"Content-Type": []string{"image/png"}},
		body:   data,
	}
}

func (s responseStub) toResponse() *http.Response {
	header := http.Header{}
	for k, values := range s.header {
		cloned := make([]string, len(values))
		copy(cloned, values)
		header[k] = cloned
	}
	return &http.Response{
		StatusCode: s.status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(s.body)),
	}
}
