package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the service exports
var Registry = prometheus.NewRegistry()

var (
	// TrainingRuns counts training invocations by final status
	TrainingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llama_lora_training_runs_total",
			Help: "Number of training runs by final status (completed, failed)",
		},
		[]string{"status"},
	)

	// LastValSetSize is the validation-set size of the most recent run
	LastValSetSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "llama_lora_val_set_size",
			Help: "Validation-set size computed by the most recent training run",
		},
	)

	// PredictRequests counts inference calls by outcome
	PredictRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llama_lora_predict_requests_total",
			Help: "Number of inference requests by outcome (ok, bad_request, too_large, no_checkpoint, error)",
		},
		[]string{"outcome"},
	)

	// PredictDuration tracks end-to-end inference latency, model load included
	PredictDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "llama_lora_predict_duration_seconds",
			Help:    "Inference latency including checkpoint resolution and model load",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
)

func init() {
	Registry.MustRegister(
		TrainingRuns,
		LastValSetSize,
		PredictRequests,
		PredictDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
