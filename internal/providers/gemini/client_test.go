package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"sketchgen/internal/providers"
)

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestGenerateSendsInlineSketch(t *testing.T) {
	out := samplePNG(t, 64, 48)
	var got geminiGenerateContentRequest
	var gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{
					map[string]any{"text": "here you go"},
					map[string]any{"inlineData": map[string]any{"mimeType": "image/png", "data": base64.StdEncoding.EncodeToString(out)}},
				}},
				"finishReason": "STOP",
			}},
			"modelVersion": "gemini-2.5-flash-image-001",
		})
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	sketch := samplePNG(t, 8, 8)
	res, err := client.Generate(context.Background(), "g-key", providers.Request{
		Prompt:      "a red circle",
		SourceImage: sketch,
		SourceMIME:  "image/png",
	}.Normalized())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if gotPath != "/models/gemini-2.5-flash-image:generateContent" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "g-key" {
		t.Fatalf("api key header = %q", gotKey)
	}
	parts := got.Contents[0].Parts
	if len(parts) != 2 || parts[1].InlineData == nil || parts[1].InlineData.MimeType != "image/png" {
		t.Fatalf("unexpected parts %+v", parts)
	}
	if res.Width != 64 || res.Height != 48 {
		t.Fatalf("dimensions = %dx%d", res.Width, res.Height)
	}
	if res.ModelVersion != "gemini-2.5-flash-image-001" {
		t.Fatalf("model version = %q", res.ModelVersion)
	}
}

func TestGenerateSafetyStopIsContentPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{"finishReason": "SAFETY"}},
		})
	}))
	defer srv.Close()

	_, err := NewClient(Options{BaseURL: srv.URL, HTTPClient: srv.Client()}).
		Generate(context.Background(), "k", providers.Request{Prompt: "x"}.Normalized())
	var pe *providers.Error
	if !errors.As(err, &pe) || pe.Kind != providers.KindContentPolicy || pe.Retryable {
		t.Fatalf("expected content policy error, got %v", err)
	}
}

func TestGenerateServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 503, "message": "overloaded", "status": "UNAVAILABLE"},
		})
	}))
	defer srv.Close()

	_, err := NewClient(Options{BaseURL: srv.URL, HTTPClient: srv.Client()}).
		Generate(context.Background(), "k", providers.Request{Prompt: "x"}.Normalized())
	var pe *providers.Error
	if !errors.As(err, &pe) || pe.Kind != providers.KindServer || !pe.Retryable || pe.StatusCode != 503 {
		t.Fatalf("expected retryable server error, got %v", err)
	}
}
