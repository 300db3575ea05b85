package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"llama-lora/core/dataset"
	"llama-lora/core/inference"
	"llama-lora/core/models"
	"llama-lora/core/training"

	"github.com/go-resty/resty/v2"
)

var (
	_ training.Trainer      = (*NodeBackend)(nil)
	_ inference.ModelLoader = (*NodeBackend)(nil)
	_ inference.Generator   = (*NodeBackend)(nil)
)

// NodeBackend runs the external routines on a remote ML node over HTTP
type NodeBackend struct {
	client *resty.Client
}

// NewNodeBackend creates a client for the ML node at baseURL. Requests are
// bounded by their context only; training calls can take hours.
func NewNodeBackend(baseURL string) *NodeBackend {
	return &NodeBackend{
		client: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
	}
}

type trainRequest struct {
	RunID      string                      `json:"run_id"`
	BaseModel  string                      `json:"base_model"`
	ValSetSize int                         `json:"val_set_size"`
	Data       map[string][]dataset.Record `json:"data"`
	OutputDir  string                      `json:"output_dir"`
}

type loadRequest struct {
	Checkpoint string `json:"checkpoint"`
}

type loadResponse struct {
	Model     string `json:"model"`
	Tokenizer string `json:"tokenizer"`
	Prompter  string `json:"prompter"`
}

type generateRequest struct {
	Input     string `json:"input"`
	Model     string `json:"model"`
	Tokenizer string `json:"tokenizer"`
	Prompter  string `json:"prompter"`
}

type generateResponse struct {
	Response *string `json:"response"`
}

// Train posts the dataset and training arguments and waits for the node to finish
func (n *NodeBackend) Train(ctx context.Context, req training.TrainRequest) error {
	body := trainRequest{
		RunID:      req.RunID,
		BaseModel:  req.BaseModel,
		ValSetSize: req.ValSetSize,
		Data:       make(map[string][]dataset.Record, len(req.Data)),
		OutputDir:  req.OutputDir,
	}
	for name, split := range req.Data {
		body.Data[name] = split.Rows
	}

	start := time.Now()
	res, err := n.client.R().
		ForceContentType("application/json").
		SetContext(ctx).
		SetBody(body).
		Post("/train")
	if err := checkResponse("train", res, err); err != nil {
		return err
	}

	slog.Info("ml node finished training", "run_id", req.RunID, "duration", time.Since(start).String())
	return nil
}

// LoadModels asks the node to load a checkpoint and returns its handles
func (n *NodeBackend) LoadModels(ctx context.Context, checkpoint string) (*models.ModelBundle, error) {
	var out loadResponse
	res, err := n.client.R().
		ForceContentType("application/json").
		SetContext(ctx).
		SetBody(loadRequest{Checkpoint: checkpoint}).
		SetResult(&out).
		Post("/load")
	if err := checkResponse("load", res, err); err != nil {
		return nil, err
	}

	return &models.ModelBundle{
		Checkpoint: checkpoint,
		Model:      out.Model,
		Tokenizer:  out.Tokenizer,
		Prompter:   out.Prompter,
	}, nil
}

// CallModel asks the node to generate a response for input
func (n *NodeBackend) CallModel(ctx context.Context, input string, bundle *models.ModelBundle) (string, error) {
	var out generateResponse
	res, err := n.client.R().
		ForceContentType("application/json").
		SetContext(ctx).
		SetBody(generateRequest{
			Input:     input,
			Model:     bundle.Model,
			Tokenizer: bundle.Tokenizer,
			Prompter:  bundle.Prompter,
		}).
		SetResult(&out).
		Post("/generate")
	if err := checkResponse("generate", res, err); err != nil {
		return "", err
	}
	if out.Response == nil {
		return "", fmt.Errorf("ml node generate: response has no response field")
	}

	return *out.Response, nil
}

func checkResponse(op string, res *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("ml node %s: %w", op, err)
	}
	if res.IsError() {
		return fmt.Errorf("ml node %s: status %d: %s", op, res.StatusCode(), res.String())
	}
	return nil
}
