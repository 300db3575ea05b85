package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"llama-lora/core/inference"
	"llama-lora/core/monitoring"
	"llama-lora/storage"
)

// maxPredictBody caps the request body of POST /predict
const maxPredictBody = 1 << 20

// Predictor runs the inference entrypoint
type Predictor interface {
	Predict(ctx context.Context, inputs map[string]any) (string, error)
}

// PredictHandler exposes the inference entrypoint over HTTP
type PredictHandler struct {
	predictor Predictor
}

// NewPredictHandler creates a new predict handler
func NewPredictHandler(predictor Predictor) *PredictHandler {
	return &PredictHandler{predictor: predictor}
}

// Predict handles POST /predict. The JSON body is the input mapping; query
// parameters fill keys the body leaves out. The generated text is returned
// verbatim as text/plain.
func (h *PredictHandler) Predict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		monitoring.PredictDuration.Observe(time.Since(start).Seconds())
	}()

	r.Body = http.MaxBytesReader(w, r.Body, maxPredictBody)
	inputs := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			monitoring.PredictRequests.WithLabelValues("too_large").Inc()
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		monitoring.PredictRequests.WithLabelValues("bad_request").Inc()
		http.Error(w, "Invalid request body: expected a JSON object", http.StatusBadRequest)
		return
	}
	if inputs == nil {
		inputs = map[string]any{}
	}
	for key, values := range r.URL.Query() {
		if _, ok := inputs[key]; !ok && len(values) > 0 {
			inputs[key] = values[0]
		}
	}

	response, err := h.predictor.Predict(r.Context(), inputs)
	if err != nil {
		status, outcome := predictStatus(err)
		monitoring.PredictRequests.WithLabelValues(outcome).Inc()
		if status == http.StatusInternalServerError {
			slog.Error("prediction failed", "error", err)
		}
		http.Error(w, err.Error(), status)
		return
	}

	monitoring.PredictRequests.WithLabelValues("ok").Inc()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, response)
}

func predictStatus(err error) (int, string) {
	switch {
	case errors.Is(err, inference.ErrMissingInput), errors.Is(err, inference.ErrInvalidInput):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, storage.ErrNoCheckpoint):
		return http.StatusServiceUnavailable, "no_checkpoint"
	default:
		return http.StatusInternalServerError, "error"
	}
}
