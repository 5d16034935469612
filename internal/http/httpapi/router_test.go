package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sketchgen/internal/domain"
	"sketchgen/internal/generation"
	"sketchgen/internal/http/handlers"
	"sketchgen/internal/infra"
	"sketchgen/internal/queue"
)

type stubGenerations struct {
	submitErr error
	submitted generation.SubmitRequest
	asset     *domain.Asset
	cancel    queue.CancelResult
	deleteErr error
	budget    domain.BudgetInfo
}

func (s *stubGenerations) Submit(_ context.Context, req generation.SubmitRequest) (*generation.SubmitResult, error) {
	s.submitted = req
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &generation.SubmitResult{AssetID: "a-1", JobID: "j-1", EstimatedTimeMs: 30000}, nil
}

func (s *stubGenerations) GetStatus(_ context.Context, assetID string) (*domain.Asset, error) {
	if s.asset == nil || s.asset.ID != assetID {
		return nil, domain.NewError(domain.CodeAssetNotFound, "asset not found")
	}
	return s.asset, nil
}

func (s *stubGenerations) Cancel(_ context.Context, jobID string) (queue.CancelResult, error) {
	if s.cancel.Outcome == queue.CancelNotFound {
		return s.cancel, domain.NewError(domain.CodeJobNotFound, "job not found")
	}
	return s.cancel, nil
}

func (s *stubGenerations) DeleteAsset(context.Context, string) error { return s.deleteErr }

func (s *stubGenerations) Budget(context.Context) (domain.BudgetInfo, error) { return s.budget, nil }

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func serve(t *testing.T, gen *stubGenerations, db handlers.Pinger, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	app := handlers.NewApp(gen, db, 1<<16, infra.NopLogger())
	h := NewRouter(app, Options{SubmitPerMinute: 100, Logger: infra.NopLogger()})
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestSubmitAccepted(t *testing.T) {
	gen := &stubGenerations{}
	rec := serve(t, gen, nil, http.MethodPost, "/v1/generations", `{"project_id":"p1","image":"aGVsbG8=","prompt":"a red circle"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/v1/assets/a-1", rec.Header().Get("Location"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "a-1", body["asset_id"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "p1", gen.submitted.ProjectID)
	assert.Equal(t, "aGVsbG8=", gen.submitted.ImageBase64)
}

func TestSubmitErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		status     int
		retryAfter string
	}{
		{"validation", domain.NewError(domain.CodeUnsupportedImageType, "nope"), http.StatusBadRequest, ""},
		{"hard stop", &domain.Error{Code: domain.CodeServiceTemporarilyUnavailable, Message: "exhausted", RetryAfterSeconds: 3600}, http.StatusServiceUnavailable, "3600"},
		{"soft stop", &domain.Error{Code: domain.CodeQuotaNearlyExceeded, Message: "nearly", RetryAfterSeconds: 120}, http.StatusTooManyRequests, "120"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(t, &stubGenerations{submitErr: tc.err}, nil, http.MethodPost, "/v1/generations", `{"project_id":"p1","image":"x"}`)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.retryAfter, rec.Header().Get("Retry-After"))
			if de, ok := domain.AsError(tc.err); ok {
				assert.Equal(t, string(de.Code), decodeError(t, rec))
			}
		})
	}
}

func TestSubmitRejectsMalformedAndOversizedBodies(t *testing.T) {
	rec := serve(t, &stubGenerations{}, nil, http.MethodPost, "/v1/generations", `{"project_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, rec))

	big := `{"project_id":"p1","image":"` + strings.Repeat("A", 1<<17) + `"}`
	rec = serve(t, &stubGenerations{}, nil, http.MethodPost, "/v1/generations", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGetAsset(t *testing.T) {
	url := "https://cdn.example.com/assets/2025-01-01/a-1.png"
	gen := &stubGenerations{asset: &domain.Asset{ID: "a-1", Status: domain.AssetStatusCompleted, StorageURL: &url}}

	rec := serve(t, gen, nil, http.MethodGet, "/v1/assets/a-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var asset domain.Asset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &asset))
	assert.Equal(t, domain.AssetStatusCompleted, asset.Status)
	require.NotNil(t, asset.StorageURL)
	assert.Equal(t, url, *asset.StorageURL)

	rec = serve(t, gen, nil, http.MethodGet, "/v1/assets/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ASSET_NOT_FOUND", decodeError(t, rec))
}

func TestDeleteAssetInFlightConflicts(t *testing.T) {
	gen := &stubGenerations{deleteErr: domain.NewError(domain.CodeJobInFlight, "busy")}
	rec := serve(t, gen, nil, http.MethodDelete, "/v1/assets/a-1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	gen.deleteErr = nil
	rec = serve(t, gen, nil, http.MethodDelete, "/v1/assets/a-1", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestCancelJob(t *testing.T) {
	gen := &stubGenerations{cancel: queue.CancelResult{Outcome: queue.CancelRequested, AssetID: "a-1"}}
	rec := serve(t, gen, nil, http.MethodDelete, "/v1/jobs/j-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcome":"requested"`)

	gen.cancel = queue.CancelResult{Outcome: queue.CancelNotFound}
	rec = serve(t, gen, nil, http.MethodDelete, "/v1/jobs/j-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBudgetAndHealth(t *testing.T) {
	gen := &stubGenerations{budget: domain.NewBudgetInfo(10000, 1000, "2025-01")}
	rec := serve(t, gen, stubPinger{}, http.MethodGet, "/v1/budget", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"month_year":"2025-01"`)

	rec = serve(t, gen, stubPinger{}, http.MethodGet, "/v1/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = serve(t, gen, stubPinger{err: errors.New("down")}, http.MethodGet, "/v1/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOpenAPIServed(t *testing.T) {
	rec := serve(t, &stubGenerations{}, nil, http.MethodGet, "/v1/openapi.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Contains(t, doc["paths"], "/v1/generations")
	assert.Equal(t, []any{map[string]any{"url": "http://example.com"}}, doc["servers"])
	info := doc["info"].(map[string]any)
	assert.EqualValues(t, 1<<16, info["x-max-request-bytes"])
	cancel := doc["paths"].(map[string]any)["/v1/jobs/{job_id}"].(map[string]any)["delete"].(map[string]any)
	assert.Contains(t, cancel["description"], "JOB_CANCELLED")

	rec = serve(t, &stubGenerations{}, nil, http.MethodGet, "/v1/docs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
