package inference

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"llama-lora/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	ckpt models.Checkpoint
	err  error
}

func (f *fakeResolver) Newest(context.Context) (models.Checkpoint, error) {
	return f.ckpt, f.err
}

type fakeLoader struct {
	loads []string
	err   error
}

func (f *fakeLoader) LoadModels(_ context.Context, checkpoint string) (*models.ModelBundle, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.loads = append(f.loads, checkpoint)
	return &models.ModelBundle{
		Checkpoint: checkpoint,
		Model:      fmt.Sprintf("model-%d", len(f.loads)),
		Tokenizer:  "tokenizer",
		Prompter:   "alpaca",
	}, nil
}

type fakeGenerator struct {
	response string
	err      error

	input  string
	bundle *models.ModelBundle
}

func (f *fakeGenerator) CallModel(_ context.Context, input string, bundle *models.ModelBundle) (string, error) {
	f.input, f.bundle = input, bundle
	return f.response, f.err
}

var ckpt = models.Checkpoint{Name: "checkpoint-400", Path: "./checkpoints/checkpoint-400"}

func TestPredictPassesResponseThrough(t *testing.T) {
	response := "  def add(a, b):\n\treturn a + b\n\n"
	loader := &fakeLoader{}
	generator := &fakeGenerator{response: response}
	p := NewPredictor(&fakeResolver{ckpt: ckpt}, loader, generator)

	got, err := p.Predict(context.Background(), map[string]any{"input": "Write an add function", "temperature": 0.1})
	require.NoError(t, err)

	assert.Equal(t, response, got)
	assert.Equal(t, "Write an add function", generator.input)
	assert.Equal(t, ckpt.Path, generator.bundle.Checkpoint)
	assert.Equal(t, "alpaca", generator.bundle.Prompter)
}

func TestPredictReloadsEveryCall(t *testing.T) {
	loader := &fakeLoader{}
	p := NewPredictor(&fakeResolver{ckpt: ckpt}, loader, &fakeGenerator{response: "ok"})

	for i := 0; i < 3; i++ {
		_, err := p.Predict(context.Background(), map[string]any{"input": "hi"})
		require.NoError(t, err)
	}
	assert.Len(t, loader.loads, 3)
}

func TestPredictMissingInput(t *testing.T) {
	loader := &fakeLoader{}
	p := NewPredictor(&fakeResolver{ckpt: ckpt}, loader, &fakeGenerator{response: "ok"})

	_, err := p.Predict(context.Background(), map[string]any{"prompt": "hi"})
	assert.ErrorIs(t, err, ErrMissingInput)
	assert.Empty(t, loader.loads)

	_, err = p.Predict(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestPredictNonStringInput(t *testing.T) {
	p := NewPredictor(&fakeResolver{ckpt: ckpt}, &fakeLoader{}, &fakeGenerator{})

	_, err := p.Predict(context.Background(), map[string]any{"input": 42.0})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPredictEmptyStringInputIsAllowed(t *testing.T) {
	generator := &fakeGenerator{response: "?"}
	p := NewPredictor(&fakeResolver{ckpt: ckpt}, &fakeLoader{}, generator)

	got, err := p.Predict(context.Background(), map[string]any{"input": ""})
	require.NoError(t, err)
	assert.Equal(t, "?", got)
}

func TestPredictNoCheckpointFails(t *testing.T) {
	noCkpt := errors.New("no checkpoint found")
	loader := &fakeLoader{}
	p := NewPredictor(&fakeResolver{err: noCkpt}, loader, &fakeGenerator{response: "base model answer"})

	got, err := p.Predict(context.Background(), map[string]any{"input": "hi"})
	assert.ErrorIs(t, err, noCkpt)
	assert.Empty(t, got)
	assert.Empty(t, loader.loads)
}

func TestPredictPropagatesLoadAndGenerationErrors(t *testing.T) {
	loadErr := errors.New("adapter_config.json missing")
	p := NewPredictor(&fakeResolver{ckpt: ckpt}, &fakeLoader{err: loadErr}, &fakeGenerator{})
	_, err := p.Predict(context.Background(), map[string]any{"input": "hi"})
	assert.ErrorIs(t, err, loadErr)

	genErr := errors.New("worker exited with status 137")
	p = NewPredictor(&fakeResolver{ckpt: ckpt}, &fakeLoader{}, &fakeGenerator{err: genErr})
	_, err = p.Predict(context.Background(), map[string]any{"input": "hi"})
	assert.ErrorIs(t, err, genErr)
}
