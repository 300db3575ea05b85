package training

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"llama-lora/core/dataset"
	"llama-lora/core/models"
	"llama-lora/core/monitoring"

	"github.com/google/uuid"
)

// ValSetSize returns the validation-set size for a training set of the given
// size: ceil(0.1 * samples). A single sample yields 1, the whole set.
func ValSetSize(samples int) int {
	return int(math.Ceil(0.1 * float64(samples)))
}

// TrainRequest carries the arguments of the external train routine
type TrainRequest struct {
	RunID      string
	BaseModel  string
	ValSetSize int
	Data       dataset.DatasetDict
	OutputDir  string
}

// DatasetLoader fetches a dataset split
type DatasetLoader interface {
	Load(ctx context.Context, dataset, config, split string) (*dataset.Split, error)
}

// Trainer runs the external fine-tuning routine
type Trainer interface {
	Train(ctx context.Context, req TrainRequest) error
}

// RunTracker persists run records and their status transitions
type RunTracker interface {
	CreateRun(run *models.Run) error
	UpdateRunStatus(runID string, fromStatus, toStatus models.RunStatus, reason string, meta map[string]interface{}) error
	FinishRun(run *models.Run) error
}

// CheckpointRecorder records the newest checkpoint as an artifact of a run
type CheckpointRecorder interface {
	RecordNewest(ctx context.Context, runID string) (models.Checkpoint, error)
}

// ArtifactRecorder persists artifacts other than checkpoints, such as the
// dataset slice a run trained on
type ArtifactRecorder interface {
	CreateArtifact(runID string, artifactType models.ArtifactType, uri string, meta map[string]interface{}) error
}

// Params are the fixed inputs of a training invocation
type Params struct {
	BaseModel     string
	Dataset       string
	DatasetConfig string
	Split         string
}

// Entrypoint is the train entrypoint: load dataset, size the validation set,
// hand everything to the external trainer
type Entrypoint struct {
	app      models.App
	params   Params
	loader   DatasetLoader
	trainer  Trainer
	tracker   RunTracker
	recorder  CheckpointRecorder
	artifacts ArtifactRecorder
}

// NewEntrypoint creates a training entrypoint. tracker, recorder and artifacts
// may be nil.
func NewEntrypoint(
	app models.App,
	params Params,
	loader DatasetLoader,
	trainer Trainer,
	tracker RunTracker,
	recorder CheckpointRecorder,
	artifacts ArtifactRecorder,
) *Entrypoint {
	return &Entrypoint{
		app:       app,
		params:    params,
		loader:    loader,
		trainer:   trainer,
		tracker:   tracker,
		recorder:  recorder,
		artifacts: artifacts,
	}
}

// Run performs one training invocation under a fresh run id. Dataset and
// trainer failures are returned wrapped; nothing is retried.
func (e *Entrypoint) Run(ctx context.Context) (*models.Run, error) {
	return e.RunWithID(ctx, uuid.NewString())
}

// RunWithID is Run with a caller-chosen run id
func (e *Entrypoint) RunWithID(ctx context.Context, runID string) (*models.Run, error) {
	now := time.Now()
	run := &models.Run{
		ID:        runID,
		App:       e.app.Name,
		BaseModel: e.params.BaseModel,
		Dataset:   e.params.Dataset,
		Split:     e.params.Split,
		OutputDir: e.app.CheckpointsPath(),
		Status:    models.RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	logger := slog.With("run_id", run.ID)

	if e.tracker != nil {
		if err := e.tracker.CreateRun(run); err != nil {
			logger.Error("failed to record run", "error", err)
		}
	}
	e.transition(run, models.RunStatusRunning, "training_started", nil)
	run.StartedAt = &now

	split, err := e.loader.Load(ctx, e.params.Dataset, e.params.DatasetConfig, e.params.Split)
	if err != nil {
		return run, e.fail(run, "dataset_load_failed", fmt.Errorf("failed to load dataset %s (%s): %w", e.params.Dataset, e.params.Split, err))
	}

	data := dataset.DatasetDict{"train": split}

	// Adjust the training loop based on the size of the dataset
	run.Samples = split.Len()
	run.ValSetSize = ValSetSize(run.Samples)
	monitoring.LastValSetSize.Set(float64(run.ValSetSize))
	e.recordDataset(run)
	logger.Info("starting training", "base_model", run.BaseModel, "samples", run.Samples, "val_set_size", run.ValSetSize, "output_dir", run.OutputDir)

	err = e.trainer.Train(ctx, TrainRequest{
		RunID:      run.ID,
		BaseModel:  run.BaseModel,
		ValSetSize: run.ValSetSize,
		Data:       data,
		OutputDir:  run.OutputDir,
	})
	if err != nil {
		return run, e.fail(run, "training_failed", fmt.Errorf("training failed: %w", err))
	}

	if e.recorder != nil {
		if ckpt, err := e.recorder.RecordNewest(ctx, run.ID); err != nil {
			logger.Warn("failed to record checkpoint", "error", err)
		} else {
			logger.Info("recorded checkpoint", "checkpoint", ckpt.Path)
		}
	}

	e.transition(run, models.RunStatusCompleted, "training_completed", nil)
	e.finish(run)
	monitoring.TrainingRuns.WithLabelValues(string(models.RunStatusCompleted)).Inc()
	logger.Info("training completed", "duration", time.Since(now).String())

	return run, nil
}

// DatasetURI names the dataset slice a run trains on, e.g.
// hf://sahil2801/CodeAlpaca-20k/default/train[:20%]
func (p Params) DatasetURI() string {
	return fmt.Sprintf("hf://%s/%s/%s", p.Dataset, p.DatasetConfig, p.Split)
}

func (e *Entrypoint) recordDataset(run *models.Run) {
	if e.artifacts == nil {
		return
	}
	meta := map[string]interface{}{
		"samples":      run.Samples,
		"val_set_size": run.ValSetSize,
	}
	if err := e.artifacts.CreateArtifact(run.ID, models.ArtifactTypeDataset, e.params.DatasetURI(), meta); err != nil {
		slog.Warn("failed to record dataset artifact", "run_id", run.ID, "error", err)
	}
}

func (e *Entrypoint) fail(run *models.Run, reason string, err error) error {
	run.Error = err.Error()
	e.transition(run, models.RunStatusFailed, reason, map[string]interface{}{"error": err.Error()})
	e.finish(run)
	monitoring.TrainingRuns.WithLabelValues(string(models.RunStatusFailed)).Inc()
	slog.Error("training run failed", "run_id", run.ID, "reason", reason, "error", err)
	return err
}

func (e *Entrypoint) transition(run *models.Run, to models.RunStatus, reason string, meta map[string]interface{}) {
	from := run.Status
	run.Status = to
	run.UpdatedAt = time.Now()
	if e.tracker == nil {
		return
	}
	if err := e.tracker.UpdateRunStatus(run.ID, from, to, reason, meta); err != nil {
		slog.Error("failed to update run status", "run_id", run.ID, "from", from, "to", to, "error", err)
	}
}

func (e *Entrypoint) finish(run *models.Run) {
	finished := time.Now()
	run.FinishedAt = &finished
	if e.tracker == nil {
		return
	}
	if err := e.tracker.FinishRun(run); err != nil {
		slog.Error("failed to finish run record", "run_id", run.ID, "error", err)
	}
}
