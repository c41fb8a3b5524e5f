// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GRPCServerHandlingSeconds is a histogram for gRPC server request latencies
	GRPCServerHandlingSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grpc_server_handling_seconds",
			Help:    "Histogram of response latency (seconds) of gRPC that had been application-level handled by the server.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "code"},
	)

	// ModelCalls counts forward passes issued by the predictor, by branch
	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictor_model_calls_total",
			Help: "Number of model forward passes issued by the predictor.",
		},
		[]string{"branch"},
	)

	// BatchLatencySeconds is a histogram of per-batch step latency by epoch mode
	BatchLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runner_batch_latency_seconds",
			Help:    "Histogram of per-batch latency (seconds) of the epoch runner.",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"mode"},
	)

	// OptimizerSteps counts parameter updates
	OptimizerSteps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "train_optimizer_steps_total",
			Help: "Number of optimizer steps taken.",
		},
	)

	// TrainLoss is the loss of the most recent training batch
	TrainLoss = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "train_loss",
			Help: "Loss of the most recent training batch.",
		},
	)

	// LearningRate is the learning rate after the most recent scheduler step
	LearningRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "train_learning_rate",
			Help: "Learning rate after the most recent scheduler step.",
		},
	)

	// ValidationLoss is the mean loss of the most recent validation epoch
	ValidationLoss = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "validation_loss",
			Help: "Mean loss of the most recent validation epoch.",
		},
	)

	// EpochsCompleted counts finished epochs by mode
	EpochsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runner_epochs_completed_total",
			Help: "Number of completed epochs by mode.",
		},
		[]string{"mode"},
	)

	// ForecastBatchSize is a histogram for tracking forecast request batch sizes
	ForecastBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forecast_batch_size",
			Help:    "Histogram of batch sizes for forecast requests.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		},
	)

	// ForecastLatencySeconds is a histogram for forecast-only latency
	ForecastLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forecast_latency_seconds",
			Help:    "Histogram of forecast latency (seconds) excluding gRPC overhead.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// HealthStatus is a gauge indicating the health status of the service
	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "health_status",
			Help: "Health status of the service (1 = healthy, 0 = unhealthy).",
		},
	)
)

// RecordGRPCLatency records the latency of a gRPC method call
func RecordGRPCLatency(method, code string, seconds float64) {
	GRPCServerHandlingSeconds.WithLabelValues(method, code).Observe(seconds)
}

// RecordModelCalls adds n forward passes for the given predictor branch
func RecordModelCalls(branch string, n int) {
	ModelCalls.WithLabelValues(branch).Add(float64(n))
}

// RecordBatch records the latency of one runner batch
func RecordBatch(mode string, seconds float64) {
	BatchLatencySeconds.WithLabelValues(mode).Observe(seconds)
}

// RecordTrainStep records one optimizer step and its batch loss
func RecordTrainStep(loss float64) {
	OptimizerSteps.Inc()
	TrainLoss.Set(loss)
}

// SetLearningRate publishes the current learning rate
func SetLearningRate(lr float64) {
	LearningRate.Set(lr)
}

// SetValidationLoss publishes the mean validation loss
func SetValidationLoss(loss float64) {
	ValidationLoss.Set(loss)
}

// RecordEpoch counts a completed epoch of the given mode
func RecordEpoch(mode string) {
	EpochsCompleted.WithLabelValues(mode).Inc()
}

// RecordForecastBatch records the batch size for a forecast request
func RecordForecastBatch(size int) {
	ForecastBatchSize.Observe(float64(size))
}

// RecordForecastLatency records the latency of a forecast call
func RecordForecastLatency(seconds float64) {
	ForecastLatencySeconds.Observe(seconds)
}

// SetHealthy sets the health status to healthy
func SetHealthy() {
	HealthStatus.Set(1)
}

// SetUnhealthy sets the health status to unhealthy
func SetUnhealthy() {
	HealthStatus.Set(0)
}
