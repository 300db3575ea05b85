package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"llama-lora/core/dataset"
	"llama-lora/core/models"
	"llama-lora/core/training"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeNode(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /train", func(w http.ResponseWriter, r *http.Request) {
		var req trainRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.ValSetSize != 1 || len(req.Data["train"]) != 2 || req.OutputDir != "./checkpoints" {
			http.Error(w, "unexpected train request", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /load", func(w http.ResponseWriter, r *http.Request) {
		var req loadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(loadResponse{Model: "m:" + req.Checkpoint, Tokenizer: "t", Prompter: "alpaca"})
	})
	mux.HandleFunc("POST /generate", func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		if req.Input == "fail" {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error": "cuda out of memory"}`))
			return
		}
		if req.Input == "empty" {
			w.Write([]byte(`{}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"response": req.Model + " says " + req.Input})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNodeBackendTrain(t *testing.T) {
	node := NewNodeBackend(newFakeNode(t).URL)

	err := node.Train(context.Background(), training.TrainRequest{
		RunID:      "run-1",
		BaseModel:  "decapoda-research/llama-7b-hf",
		ValSetSize: 1,
		Data: dataset.DatasetDict{"train": {Name: "train", Rows: []dataset.Record{
			{"instruction": "a"}, {"instruction": "b"},
		}}},
		OutputDir: "./checkpoints",
	})
	require.NoError(t, err)

	err = node.Train(context.Background(), training.TrainRequest{RunID: "run-2", OutputDir: "./checkpoints"})
	assert.ErrorContains(t, err, "status 400")
}

func TestNodeBackendLoadAndGenerate(t *testing.T) {
	node := NewNodeBackend(newFakeNode(t).URL)

	bundle, err := node.LoadModels(context.Background(), "./checkpoints/checkpoint-400")
	require.NoError(t, err)
	assert.Equal(t, &models.ModelBundle{
		Checkpoint: "./checkpoints/checkpoint-400",
		Model:      "m:./checkpoints/checkpoint-400",
		Tokenizer:  "t",
		Prompter:   "alpaca",
	}, bundle)

	out, err := node.CallModel(context.Background(), "hi", bundle)
	require.NoError(t, err)
	assert.Equal(t, "m:./checkpoints/checkpoint-400 says hi", out)

	_, err = node.CallModel(context.Background(), "fail", bundle)
	assert.ErrorContains(t, err, "status 500")

	_, err = node.CallModel(context.Background(), "empty", bundle)
	assert.ErrorContains(t, err, "no response field")
}

func TestNodeBackendDecodesUnlabelledJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(`{"model": "m-1", "tokenizer": "t-1", "prompter": "p-1"}`))
	}))
	defer srv.Close()

	bundle, err := NewNodeBackend(srv.URL).LoadModels(context.Background(), "./checkpoints/checkpoint-200")
	require.NoError(t, err)
	assert.Equal(t, "m-1", bundle.Model)
	assert.Equal(t, "p-1", bundle.Prompter)
}
