package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"llama-lora/core/models"
	"llama-lora/core/repository"
	"llama-lora/core/training"

	"github.com/gorilla/mux"
)

// RunLauncher starts training runs in the background
type RunLauncher interface {
	Launch() (string, error)
}

// RunStore reads run records
type RunStore interface {
	GetRun(id string) (*models.Run, error)
	ListRuns(status *models.RunStatus, limit int) ([]*models.Run, error)
}

// EventStore reads run events
type EventStore interface {
	GetRunEvents(runID string, limit int) ([]models.RunEvent, error)
}

// ArtifactLister reads run artifacts
type ArtifactLister interface {
	GetRunArtifacts(runID string, artifactType *models.ArtifactType, limit int) ([]models.RunArtifact, error)
}

// RunHandler handles training-run HTTP requests
type RunHandler struct {
	launcher  RunLauncher
	runs      RunStore
	events    EventStore
	artifacts ArtifactLister
}

// NewRunHandler creates a new run handler. The stores are nil when run
// tracking is disabled.
func NewRunHandler(launcher RunLauncher, runs RunStore, events EventStore, artifacts ArtifactLister) *RunHandler {
	return &RunHandler{
		launcher:  launcher,
		runs:      runs,
		events:    events,
		artifacts: artifacts,
	}
}

// StartRunResponse represents the response after starting a run
type StartRunResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// StartRun handles POST /v1/runs
func (h *RunHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	runID, err := h.launcher.Launch()
	if errors.Is(err, training.ErrRunInProgress) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, "Failed to start run: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, StartRunResponse{ID: runID, Status: "accepted"})
}

func (h *RunHandler) trackingEnabled(w http.ResponseWriter) bool {
	if h.runs == nil {
		http.Error(w, "Run tracking is disabled", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// ListRuns handles GET /v1/runs
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.trackingEnabled(w) {
		return
	}

	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		n, err := strconv.Atoi(limitParam)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	var status *models.RunStatus
	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		s := models.RunStatus(statusParam)
		status = &s
	}

	runs, err := h.runs.ListRuns(status, limit)
	if err != nil {
		http.Error(w, "Failed to list runs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": runs,
	})
}

// GetRun handles GET /v1/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if !h.trackingEnabled(w) {
		return
	}

	run, ok := h.lookupRun(w, mux.Vars(r)["id"])
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// GetRunEvents handles GET /v1/runs/{id}/events
func (h *RunHandler) GetRunEvents(w http.ResponseWriter, r *http.Request) {
	if !h.trackingEnabled(w) {
		return
	}

	run, ok := h.lookupRun(w, mux.Vars(r)["id"])
	if !ok {
		return
	}

	events, err := h.events.GetRunEvents(run.ID, 100)
	if err != nil {
		http.Error(w, "Failed to fetch events: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": events,
	})
}

// GetRunArtifacts handles GET /v1/runs/{id}/artifacts
func (h *RunHandler) GetRunArtifacts(w http.ResponseWriter, r *http.Request) {
	if !h.trackingEnabled(w) {
		return
	}

	run, ok := h.lookupRun(w, mux.Vars(r)["id"])
	if !ok {
		return
	}

	var artifactType *models.ArtifactType
	if typeParam := r.URL.Query().Get("type"); typeParam != "" {
		t := models.ArtifactType(typeParam)
		artifactType = &t
	}

	artifacts, err := h.artifacts.GetRunArtifacts(run.ID, artifactType, 100)
	if err != nil {
		http.Error(w, "Failed to fetch artifacts: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": artifacts,
	})
}

func (h *RunHandler) lookupRun(w http.ResponseWriter, id string) (*models.Run, bool) {
	run, err := h.runs.GetRun(id)
	if errors.Is(err, repository.ErrRunNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, "Failed to get run: "+err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return run, true
}
