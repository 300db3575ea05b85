package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"llama-lora/core/inference"
	"llama-lora/core/models"
	"llama-lora/core/training"
	"llama-lora/training/frameworks"
)

var (
	_ training.Trainer      = (*ProcessBackend)(nil)
	_ inference.ModelLoader = (*ProcessBackend)(nil)
	_ inference.Generator   = (*ProcessBackend)(nil)
)

// ProcessBackend runs the external routines as local Python worker processes
type ProcessBackend struct {
	setup          *frameworks.LoRASetup
	workDir        string
	baseModel      string
	promptTemplate string
}

// NewProcessBackend creates a process backend. workDir holds per-run dataset
// files; it must not be the checkpoints volume.
func NewProcessBackend(setup *frameworks.LoRASetup, workDir, baseModel string) *ProcessBackend {
	return &ProcessBackend{
		setup:          setup,
		workDir:        workDir,
		baseModel:      baseModel,
		promptTemplate: frameworks.DefaultPromptTemplate,
	}
}

// Train writes the dataset to the work dir and runs the training worker to completion
func (b *ProcessBackend) Train(ctx context.Context, req training.TrainRequest) error {
	dataDir := filepath.Join(b.workDir, "llama-lora-runs", req.RunID)
	// Partial writes are removed too
	defer os.RemoveAll(dataDir)
	paths, err := req.Data.WriteJSONL(dataDir)
	if err != nil {
		return err
	}

	trainPath, ok := paths["train"]
	if !ok {
		return fmt.Errorf("dataset has no train split")
	}

	launch := b.setup.TrainingLaunch(req.BaseModel, req.ValSetSize, trainPath, req.OutputDir)
	logger := slog.With("run_id", req.RunID, "worker", "train")
	logger.Info("launching training worker", "command", launch.String())

	stdout := newLogWriter(logger, slog.LevelInfo)
	stderr := newLogWriter(logger, slog.LevelInfo)
	defer stdout.Flush()
	defer stderr.Flush()

	return b.run(ctx, launch, nil, stdout, stderr)
}

// LoadModels resolves the model, tokenizer and prompt template references
// for a checkpoint. The worker loads the weights when generating.
func (b *ProcessBackend) LoadModels(ctx context.Context, checkpoint string) (*models.ModelBundle, error) {
	info, err := os.Stat(checkpoint)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", checkpoint, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("checkpoint %s is not a directory", checkpoint)
	}

	// Prefer a tokenizer saved next to the adapter, fall back to the base model's
	tokenizer := b.baseModel
	if _, err := os.Stat(filepath.Join(checkpoint, "tokenizer_config.json")); err == nil {
		tokenizer = checkpoint
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("checkpoint %s: %w", checkpoint, err)
	}

	return &models.ModelBundle{
		Checkpoint: checkpoint,
		Model:      checkpoint,
		Tokenizer:  tokenizer,
		Prompter:   b.promptTemplate,
	}, nil
}

type workerResponse struct {
	Response *string `json:"response"`
}

// CallModel runs the inference worker with input on stdin and returns the
// "response" field it prints
func (b *ProcessBackend) CallModel(ctx context.Context, input string, bundle *models.ModelBundle) (string, error) {
	launch := b.setup.InferenceLaunch(bundle)

	var stdout bytes.Buffer
	stderr := newLogWriter(slog.With("worker", "inference"), slog.LevelDebug)
	defer stderr.Flush()

	if err := b.run(ctx, launch, strings.NewReader(input), &stdout, stderr); err != nil {
		return "", err
	}

	var out workerResponse
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &out); err != nil {
		return "", fmt.Errorf("failed to decode inference worker output: %w", err)
	}
	if out.Response == nil {
		return "", fmt.Errorf("inference worker output has no response field")
	}
	return *out.Response, nil
}

func (b *ProcessBackend) run(ctx context.Context, launch *frameworks.LaunchConfig, stdin io.Reader, stdout io.Writer, stderr *logWriter) error {
	cmd := exec.CommandContext(ctx, launch.Executable, launch.Args...)
	cmd.Env = launch.Env(os.Environ())
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if tail := stderr.Tail(); tail != "" {
			return fmt.Errorf("%s %s: %w: %s", launch.Executable, launch.Args[0], err, tail)
		}
		return fmt.Errorf("%s %s: %w", launch.Executable, launch.Args[0], err)
	}
	return nil
}
