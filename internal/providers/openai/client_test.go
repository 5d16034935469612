package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sketchgen/internal/providers"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func TestGenerateTextToImage(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data":    []any{map[string]any{"b64_json": base64.StdEncoding.EncodeToString(pngMagic)}},
		})
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, Model: "dall-e-3", HTTPClient: srv.Client()})
	res, err := client.Generate(context.Background(), "sk-test", providers.Request{
		Prompt:  "a red circle",
		Quality: "hd",
		Style:   "vivid",
	}.Normalized())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasSuffix(gotPath, "/images/generations") {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotBody["quality"] != "hd" || gotBody["style"] != "vivid" || gotBody["response_format"] != "b64_json" {
		t.Fatalf("unexpected body %v", gotBody)
	}
	if res.MIME != "image/png" || res.Provider != providers.OpenAI || res.ModelVersion != "dall-e-3" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGenerateImageEditUsesMultipart(t *testing.T) {
	var contentType, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		contentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []any{map[string]any{"b64_json": base64.StdEncoding.EncodeToString(pngMagic)}},
		})
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := client.Generate(context.Background(), "sk-test", providers.Request{
		Prompt:      "make it blue",
		SourceImage: pngMagic,
		SourceMIME:  "image/png",
	}.Normalized())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasSuffix(gotPath, "/images/edits") {
		t.Fatalf("path = %q", gotPath)
	}
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		t.Fatalf("content type = %q", contentType)
	}
}

func TestGenerateClassifiesAPIErrors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		code      string
		kind      providers.Kind
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, "rate_limit_exceeded", providers.KindRateLimited, true},
		{"unavailable", http.StatusServiceUnavailable, "server_error", providers.KindServer, true},
		{"policy", http.StatusBadRequest, "content_policy_violation", providers.KindContentPolicy, false},
		{"quota", http.StatusTooManyRequests, "insufficient_quota", providers.KindQuota, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"message": "nope", "type": "error", "code": tc.code},
				})
			}))
			defer srv.Close()

			client := NewClient(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
			_, err := client.Generate(context.Background(), "sk-test", providers.Request{Prompt: "x"}.Normalized())
			var pe *providers.Error
			if !errors.As(err, &pe) {
				t.Fatalf("expected provider error, got %v", err)
			}
			if pe.Kind != tc.kind || pe.Retryable != tc.retryable {
				t.Fatalf("kind=%s retryable=%v", pe.Kind, pe.Retryable)
			}
		})
	}
}

func TestGenerateWithoutKey(t *testing.T) {
	_, err := NewClient(Options{}).Generate(context.Background(), "", providers.Request{Prompt: "x"})
	var pe *providers.Error
	if !errors.As(err, &pe) || pe.Kind != providers.KindNoAPIKey {
		t.Fatalf("expected no_api_key, got %v", err)
	}
}
