// Package metrics records pipeline and OpenStack API metrics on a private
// Prometheus registry and writes them to a node-exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the collectors of one run. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	apiCallsTotal *prometheus.CounterVec
	apiLatency    *prometheus.HistogramVec
	pollAttempts  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stagesTotal   *prometheus.CounterVec
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		apiCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipeman",
				Subsystem: "openstack",
				Name:      "api_calls_total",
				Help:      "Total number of OpenStack API calls by operation and result",
			},
			[]string{"operation", "result"},
		),
		apiLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pipeman",
				Subsystem: "openstack",
				Name:      "api_latency_seconds",
				Help:      "Latency of OpenStack API calls in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"operation"},
		),
		pollAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipeman",
				Name:      "poll_attempts_total",
				Help:      "Total number of resource status polls by resource kind",
			},
			[]string{"kind"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pipeman",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
			},
			[]string{"stage"},
		),
		stagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipeman",
				Subsystem: "pipeline",
				Name:      "stages_total",
				Help:      "Total number of pipeline stages by stage and result",
			},
			[]string{"stage", "result"},
		),
	}
	r.registry.MustRegister(
		r.apiCallsTotal,
		r.apiLatency,
		r.pollAttempts,
		r.stageDuration,
		r.stagesTotal,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordAPICall records one OpenStack request.
func (r *Recorder) RecordAPICall(operation string, err error, latency time.Duration) {
	if r == nil {
		return
	}
	r.apiCallsTotal.WithLabelValues(operation, result(err)).Inc()
	r.apiLatency.WithLabelValues(operation).Observe(latency.Seconds())
}

// RecordPollAttempt records one status fetch of a polled resource.
func (r *Recorder) RecordPollAttempt(kind string) {
	if r == nil {
		return
	}
	r.pollAttempts.WithLabelValues(kind).Inc()
}

// RecordStage records a finished pipeline stage.
func (r *Recorder) RecordStage(stage string, err error, duration time.Duration) {
	if r == nil {
		return
	}
	r.stagesTotal.WithLabelValues(stage, result(err)).Inc()
	r.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// WriteTextfile writes every collected metric to path in the text
// exposition format. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
