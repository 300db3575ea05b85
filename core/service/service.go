package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"llama-lora/config"
	"llama-lora/core/dataset"
	"llama-lora/core/executor"
	"llama-lora/core/inference"
	"llama-lora/core/models"
	"llama-lora/core/repository"
	"llama-lora/core/spec"
	"llama-lora/core/training"
	"llama-lora/providers/aws"
	"llama-lora/storage"
	"llama-lora/training/frameworks"
)

// Backend runs the external train, load_models and call_model routines
type Backend interface {
	training.Trainer
	inference.ModelLoader
	inference.Generator
}

// Service holds the wired components shared by the server and the batch trainer
type Service struct {
	App         models.App
	Checkpoints *storage.CheckpointManager
	Training    *training.Entrypoint
	Predictor   *inference.Predictor
	Planner     *aws.Client    // nil unless AWS planning is enabled
	DB          *repository.DB // nil unless run tracking is enabled
}

// SetupLogging installs a JSON slog logger at the configured level
func SetupLogging(cfg *config.Config) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
}

// New wires the runtime declaration, ML backend, checkpoint storage and
// optional run tracking from cfg
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	app, err := spec.LoadApp(cfg.AppSpecPath)
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(cfg, app)
	if err != nil {
		return nil, err
	}

	s := &Service{App: app}

	var tracker training.RunTracker
	var artifacts storage.ArtifactStore
	if cfg.DatabaseURL != "" {
		db, err := repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		s.DB = db
		tracker = repository.NewRunRepository(db)
		artifacts = repository.NewArtifactRepository(db)
		slog.Info("run tracking enabled")
	}

	if cfg.AWSPlanEnabled {
		planner, err := aws.NewClient(ctx, cfg.AWSRegion)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Planner = planner
	}

	s.Checkpoints = storage.NewCheckpointManager(app.CheckpointsPath(), artifacts)
	s.Predictor = inference.NewPredictor(s.Checkpoints, backend, backend)
	s.Training = training.NewEntrypoint(
		app,
		training.Params{
			BaseModel:     cfg.BaseModel,
			Dataset:       cfg.Dataset,
			DatasetConfig: cfg.DatasetConfig,
			Split:         cfg.DatasetSplit,
		},
		dataset.NewHub(cfg.HubURL, cfg.HubToken),
		backend,
		tracker,
		s.Checkpoints,
		artifacts,
	)

	slog.Info("service initialized",
		"app", app.Name,
		"backend", cfg.Backend,
		"checkpoints", app.CheckpointsPath(),
		"pretrained", app.PretrainedPath(),
	)
	return s, nil
}

func newBackend(cfg *config.Config, app models.App) (Backend, error) {
	switch cfg.Backend {
	case config.BackendProcess:
		setup := &frameworks.LoRASetup{
			PythonExecutable: cfg.PythonExecutable,
			TrainScript:      cfg.TrainScript,
			InferenceScript:  cfg.InferenceScript,
			PretrainedDir:    app.PretrainedPath(),
			GPUs:             1,
		}
		if err := setup.Validate(); err != nil {
			return nil, err
		}
		return executor.NewProcessBackend(setup, cfg.WorkDir, cfg.BaseModel), nil
	case config.BackendNode:
		return executor.NewNodeBackend(cfg.NodeURL), nil
	default:
		return nil, fmt.Errorf("unsupported ML backend %q", cfg.Backend)
	}
}

// Close releases the database connection, if any
func (s *Service) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
