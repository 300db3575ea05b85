package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"llama-lora/core/models"
)

// RuntimePlanner resolves a runtime declaration to a concrete instance
type RuntimePlanner interface {
	PlanRuntime(ctx context.Context, rt models.RuntimeSpec) (*models.InstancePlan, error)
}

// CheckpointLister lists checkpoints on the checkpoints volume
type CheckpointLister interface {
	List(ctx context.Context) ([]models.Checkpoint, error)
}

// RuntimeHandler serves the deployment declaration and checkpoint volume state
type RuntimeHandler struct {
	app         models.App
	planner     RuntimePlanner
	checkpoints CheckpointLister

	mu   sync.Mutex
	plan *models.InstancePlan
}

// NewRuntimeHandler creates a new runtime handler. planner is nil when AWS
// planning is disabled.
func NewRuntimeHandler(app models.App, planner RuntimePlanner, checkpoints CheckpointLister) *RuntimeHandler {
	return &RuntimeHandler{
		app:         app,
		planner:     planner,
		checkpoints: checkpoints,
	}
}

// RuntimeResponse is the body of GET /v1/runtime
type RuntimeResponse struct {
	App       models.App           `json:"app"`
	Plan      *models.InstancePlan `json:"plan,omitempty"`
	PlanError string               `json:"plan_error,omitempty"`
}

// GetRuntime handles GET /v1/runtime
func (h *RuntimeHandler) GetRuntime(w http.ResponseWriter, r *http.Request) {
	resp := RuntimeResponse{App: h.app}

	if h.planner != nil {
		plan, err := h.resolvePlan(r.Context())
		if err != nil {
			slog.Warn("failed to plan runtime", "error", err)
			resp.PlanError = err.Error()
		}
		resp.Plan = plan
	}

	writeJSON(w, http.StatusOK, resp)
}

// resolvePlan caches the first successful plan for the life of the process
func (h *RuntimeHandler) resolvePlan(ctx context.Context) (*models.InstancePlan, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.plan != nil {
		return h.plan, nil
	}
	plan, err := h.planner.PlanRuntime(ctx, h.app.Runtime)
	if err != nil {
		return nil, err
	}
	h.plan = plan
	return plan, nil
}

// ListCheckpoints handles GET /v1/checkpoints
func (h *RuntimeHandler) ListCheckpoints(w http.ResponseWriter, r *http.Request) {
	checkpoints, err := h.checkpoints.List(r.Context())
	if err != nil {
		http.Error(w, "Failed to list checkpoints: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if checkpoints == nil {
		checkpoints = []models.Checkpoint{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dir":   h.app.CheckpointsPath(),
		"items": checkpoints,
	})
}
