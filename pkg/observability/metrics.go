// Package observability wires Prometheus metrics and OpenTelemetry
// tracing for the chat engine.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Conversation metrics
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robochat_turns_total",
			Help: "Total number of completed conversation turns",
		},
		[]string{"task", "status"},
	)

	turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robochat_turn_duration_seconds",
			Help:    "Conversation turn duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	// Backend metrics
	backendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robochat_backend_requests_total",
			Help: "Total number of inference backend requests",
		},
		[]string{"backend", "status"},
	)

	backendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robochat_backend_request_duration_seconds",
			Help:    "Inference backend request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// Pipeline metrics
	pipelineStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robochat_pipeline_steps_total",
			Help: "Total number of executed pipeline steps",
		},
		[]string{"task", "state"},
	)

	pipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robochat_pipeline_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"outcome"},
	)

	// Session store metrics
	sessionOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robochat_session_ops_total",
			Help: "Total number of session store operations",
		},
		[]string{"store", "op", "status"},
	)

	initOnce sync.Once
)

// InitMetrics registers all collectors exactly once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			turnsTotal,
			turnDuration,
			backendRequestsTotal,
			backendRequestDuration,
			pipelineStepsTotal,
			pipelineRunsTotal,
			sessionOpsTotal,
		)
	})
}

// MetricsHandler returns the HTTP handler serving /metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordTurn records one conversation turn.
func RecordTurn(task, status string, duration time.Duration) {
	turnsTotal.WithLabelValues(task, status).Inc()
	turnDuration.WithLabelValues(task).Observe(duration.Seconds())
}

// RecordBackendRequest records one inference call.
func RecordBackendRequest(backend, status string, duration time.Duration) {
	backendRequestsTotal.WithLabelValues(backend, status).Inc()
	backendRequestDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordPipelineStep records the terminal state of one pipeline step.
func RecordPipelineStep(task, state string) {
	pipelineStepsTotal.WithLabelValues(task, state).Inc()
}

// RecordPipelineRun records the outcome of one pipeline run.
func RecordPipelineRun(outcome string) {
	pipelineRunsTotal.WithLabelValues(outcome).Inc()
}

// RecordSessionOp records one session store operation.
func RecordSessionOp(store, op, status string) {
	sessionOpsTotal.WithLabelValues(store, op, status).Inc()
}
