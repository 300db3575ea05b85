package routes

import (
	"llama-lora/api/rest/handlers"
	"llama-lora/core/models"
	"llama-lora/core/repository"

	"github.com/gorilla/mux"
)

// Services are the components the API exposes
type Services struct {
	App         models.App
	Predictor   handlers.Predictor
	Launcher    handlers.RunLauncher
	Checkpoints handlers.CheckpointLister
	Planner     handlers.RuntimePlanner // nil disables runtime planning
	DB          *repository.DB          // nil disables run tracking
}

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, s Services) {
	var runHandler *handlers.RunHandler
	if s.DB != nil {
		runHandler = handlers.NewRunHandler(
			s.Launcher,
			repository.NewRunRepository(s.DB),
			repository.NewEventRepository(s.DB),
			repository.NewArtifactRepository(s.DB),
		)
	} else {
		runHandler = handlers.NewRunHandler(s.Launcher, nil, nil, nil)
	}
	predictHandler := handlers.NewPredictHandler(s.Predictor)
	runtimeHandler := handlers.NewRuntimeHandler(s.App, s.Planner, s.Checkpoints)

	// Inference entrypoint
	r.HandleFunc("/predict", predictHandler.Predict).Methods("POST")

	api := r.PathPrefix("/v1").Subrouter()

	// Run endpoints
	api.HandleFunc("/runs", runHandler.StartRun).Methods("POST")
	api.HandleFunc("/runs", runHandler.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", runHandler.GetRun).Methods("GET")
	api.HandleFunc("/runs/{id}/events", runHandler.GetRunEvents).Methods("GET")
	api.HandleFunc("/runs/{id}/artifacts", runHandler.GetRunArtifacts).Methods("GET")

	// Deployment state
	api.HandleFunc("/checkpoints", runtimeHandler.ListCheckpoints).Methods("GET")
	api.HandleFunc("/runtime", runtimeHandler.GetRuntime).Methods("GET")
}
