package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"llama-lora/config"
	"llama-lora/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAppSpec(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	checkpoints := filepath.Join(dir, "checkpoints")
	specYAML := fmt.Sprintf(`
app:
  name: llama-lora
  runtime:
    cpu: 4
    memory: 32Gi
    gpu: A10G
  volumes:
    - name: checkpoints
      path: %s
    - name: pretrained-models
      path: %s
`, checkpoints, filepath.Join(dir, "pretrained-models"))

	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(specYAML), 0o644))
	return path, checkpoints
}

func TestNewProcessService(t *testing.T) {
	path, checkpoints := writeAppSpec(t)
	cfg := &config.Config{
		AppSpecPath:      path,
		Backend:          config.BackendProcess,
		PythonExecutable: "python3",
		TrainScript:      "train.py",
		InferenceScript:  "inference.py",
		WorkDir:          t.TempDir(),
		HubURL:           "http://127.0.0.1:0",
	}

	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	assert.Nil(t, s.DB)
	assert.Nil(t, s.Planner)
	assert.Equal(t, checkpoints, s.Checkpoints.Dir())

	// An empty checkpoints volume never falls back to the base model
	_, err = s.Predictor.Predict(context.Background(), map[string]any{"input": "hi"})
	assert.ErrorIs(t, err, storage.ErrNoCheckpoint)
}

func TestNewNodeService(t *testing.T) {
	path, _ := writeAppSpec(t)
	cfg := &config.Config{AppSpecPath: path, Backend: config.BackendNode, NodeURL: "http://127.0.0.1:0"}

	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, s.Training)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(context.Background(), &config.Config{AppSpecPath: filepath.Join(t.TempDir(), "missing.yaml"), Backend: config.BackendProcess})
	assert.Error(t, err)

	path, _ := writeAppSpec(t)
	_, err = New(context.Background(), &config.Config{AppSpecPath: path, Backend: "gpu"})
	assert.ErrorContains(t, err, "unsupported ML backend")
}
