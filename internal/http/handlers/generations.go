package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sketchgen/internal/domain"
	"sketchgen/internal/generation"
)

type submitResponse struct {
	AssetID         string `json:"asset_id"`
	JobID           string `json:"job_id"`
	Status          string `json:"status"`
	EstimatedTimeMs int64  `json:"estimated_time_ms"`
}

// SubmitGeneration accepts a sketch and returns 202 with the ids to poll.
func (a *App) SubmitGeneration(w http.ResponseWriter, r *http.Request) {
	if a.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxBodyBytes)
	}
	var req generation.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, domain.CodeInvalidImageData, "request body too large")
			return
		}
		a.error(w, http.StatusBadRequest, domain.CodeInvalidRequest, "invalid payload")
		return
	}
	res, err := a.Generations.Submit(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/assets/"+res.AssetID)
	a.json(w, http.StatusAccepted, submitResponse{
		AssetID:         res.AssetID,
		JobID:           res.JobID,
		Status:          string(domain.AssetStatusPending),
		EstimatedTimeMs: res.EstimatedTimeMs,
	})
}

func (a *App) GetAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := a.Generations.GetStatus(r.Context(), chi.URLParam(r, "asset_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, asset)
}

// DeleteAsset removes a finished asset; the stored artifact is deleted in the background.
func (a *App) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "asset_id")
	if err := a.Generations.DeleteAsset(r.Context(), assetID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"asset_id": assetID, "status": "deleted"})
}

func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	res, err := a.Generations.Cancel(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{
		"job_id":   jobID,
		"asset_id": res.AssetID,
		"outcome":  string(res.Outcome),
	})
}

func (a *App) Budget(w http.ResponseWriter, r *http.Request) {
	info, err := a.Generations.Budget(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, info)
}
