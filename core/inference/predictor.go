package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"llama-lora/core/models"
)

// InputKey is the request key holding the prompt text
const InputKey = "input"

var (
	// ErrMissingInput is returned when the request mapping has no "input" key
	ErrMissingInput = errors.New(`missing required key "input"`)
	// ErrInvalidInput is returned when "input" is not a string
	ErrInvalidInput = errors.New(`"input" must be a string`)
)

// CheckpointResolver finds the checkpoint to serve
type CheckpointResolver interface {
	Newest(ctx context.Context) (models.Checkpoint, error)
}

// ModelLoader builds the model, tokenizer and prompt formatter from a checkpoint
type ModelLoader interface {
	LoadModels(ctx context.Context, checkpoint string) (*models.ModelBundle, error)
}

// Generator runs the external generation routine
type Generator interface {
	CallModel(ctx context.Context, input string, bundle *models.ModelBundle) (string, error)
}

// Predictor is the predict entrypoint
type Predictor struct {
	checkpoints CheckpointResolver
	loader      ModelLoader
	generator   Generator
}

// NewPredictor creates a predictor
func NewPredictor(checkpoints CheckpointResolver, loader ModelLoader, generator Generator) *Predictor {
	return &Predictor{
		checkpoints: checkpoints,
		loader:      loader,
		generator:   generator,
	}
}

// Input extracts the prompt from a request mapping
func Input(inputs map[string]any) (string, error) {
	raw, ok := inputs[InputKey]
	if !ok {
		return "", ErrMissingInput
	}
	input, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w, got %T", ErrInvalidInput, raw)
	}
	return input, nil
}

// Predict resolves the newest checkpoint, loads it and returns the generated
// text exactly as the generator produced it. The bundle is loaded fresh on
// every call.
func (p *Predictor) Predict(ctx context.Context, inputs map[string]any) (string, error) {
	input, err := Input(inputs)
	if err != nil {
		return "", err
	}

	// Grab the latest checkpoint
	checkpoint, err := p.checkpoints.Newest(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve checkpoint: %w", err)
	}

	bundle, err := p.loader.LoadModels(ctx, checkpoint.Path)
	if err != nil {
		return "", fmt.Errorf("failed to load models from %s: %w", checkpoint.Path, err)
	}
	slog.Debug("loaded model bundle", "checkpoint", checkpoint.Path)

	response, err := p.generator.CallModel(ctx, input, bundle)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	return response, nil
}
