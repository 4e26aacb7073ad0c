// Package telemetry exports session operation metrics to Prometheus.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OperationLabel = "operation"
	OutcomeLabel   = "outcome"
	Succeeded      = "succeeded"
	Failed         = "failed"
)

// Recorder implements session.MetricsRecorder on a private registry.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	sessions   prometheus.Gauge
}

// NewRecorder creates a recorder with its collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "leapmp",
				Name:      "operations_total",
				Help:      "Number of engine operations by outcome",
			},
			[]string{OperationLabel, OutcomeLabel},
		),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "leapmp",
				Name:      "operation_duration_seconds",
				Help:      "Duration of engine operations",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{OperationLabel},
		),
		sessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "leapmp",
				Name:      "sessions_open",
				Help:      "Number of open sessions",
			},
		),
	}
	r.registry.MustRegister(r.operations, r.durations, r.sessions)
	return r
}

// Observe records one operation outcome.
func (r *Recorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	outcome := Succeeded
	if !success {
		outcome = Failed
	}
	r.operations.WithLabelValues(operation, outcome).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())

	if success {
		switch operation {
		case "open":
			r.sessions.Inc()
		case "close":
			r.sessions.Dec()
		}
	}
}

// Registry exposes the underlying registry, e.g. for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
