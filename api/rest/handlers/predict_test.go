package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"llama-lora/core/inference"
	"llama-lora/core/models"
	"llama-lora/core/monitoring"
	"llama-lora/storage"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type echoModel struct {
	err error
}

func (e *echoModel) LoadModels(_ context.Context, checkpoint string) (*models.ModelBundle, error) {
	return &models.ModelBundle{Checkpoint: checkpoint, Model: checkpoint}, nil
}

func (e *echoModel) CallModel(_ context.Context, input string, _ *models.ModelBundle) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return "  " + input + " => done\n", nil
}

func newPredictHandler(t *testing.T, withCheckpoint bool, genErr error) *PredictHandler {
	t.Helper()
	dir := t.TempDir()
	if withCheckpoint {
		assert.NoError(t, mkdir(dir, "checkpoint-200"))
	}
	model := &echoModel{err: genErr}
	return NewPredictHandler(inference.NewPredictor(storage.NewCheckpointManager(dir, nil), model, model))
}

func doPredict(h *PredictHandler, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.Predict(rr, req)
	return rr
}

func TestPredictReturnsGeneratedTextVerbatim(t *testing.T) {
	h := newPredictHandler(t, true, nil)

	rr := doPredict(h, "/predict", `{"input": "write fizzbuzz"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, "  write fizzbuzz => done\n", rr.Body.String())
}

func TestPredictMergesQueryParameters(t *testing.T) {
	h := newPredictHandler(t, true, nil)

	rr := doPredict(h, "/predict?input=from+query", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "  from query => done\n", rr.Body.String())

	// The body wins over the query string
	rr = doPredict(h, "/predict?input=from+query", `{"input": "from body"}`)
	assert.Equal(t, "  from body => done\n", rr.Body.String())
}

func TestPredictStatusMapping(t *testing.T) {
	tests := []struct {
		name           string
		withCheckpoint bool
		genErr         error
		body           string
		want           int
	}{
		{"missing input", true, nil, `{"prompt": "hi"}`, http.StatusBadRequest},
		{"non-string input", true, nil, `{"input": 42}`, http.StatusBadRequest},
		{"invalid body", true, nil, `[1, 2]`, http.StatusBadRequest},
		{"null body", true, nil, `null`, http.StatusBadRequest},
		{"no checkpoint", false, nil, `{"input": "hi"}`, http.StatusServiceUnavailable},
		{"generation failure", true, errors.New("cuda out of memory"), `{"input": "hi"}`, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newPredictHandler(t, tt.withCheckpoint, tt.genErr)
			rr := doPredict(h, "/predict", tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

func TestPredictRejectsOversizedBody(t *testing.T) {
	h := newPredictHandler(t, true, nil)
	before := testutil.ToFloat64(monitoring.PredictRequests.WithLabelValues("too_large"))

	body := `{"input": "` + strings.Repeat("a", maxPredictBody) + `"}`
	rr := doPredict(h, "/predict", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(monitoring.PredictRequests.WithLabelValues("too_large")))
}

func TestPredictCountsOutcomes(t *testing.T) {
	ok := monitoring.PredictRequests.WithLabelValues("ok")
	noCheckpoint := monitoring.PredictRequests.WithLabelValues("no_checkpoint")
	okBefore := testutil.ToFloat64(ok)
	noCheckpointBefore := testutil.ToFloat64(noCheckpoint)

	doPredict(newPredictHandler(t, true, nil), "/predict", `{"input": "hi"}`)
	doPredict(newPredictHandler(t, false, nil), "/predict", `{"input": "hi"}`)
	doPredict(newPredictHandler(t, false, nil), "/predict", `{"input": "hi"}`)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ok))
	assert.Equal(t, noCheckpointBefore+2, testutil.ToFloat64(noCheckpoint))
}
