// Package metric defines the Prometheus instrumentation for the assessment
// pipeline.
package metric

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics carries every collector the service exposes.
type Metrics struct {
	StageDuration *prometheus.HistogramVec
	StageDegraded *prometheus.CounterVec
	Assessments   *prometheus.CounterVec
	ActiveStreams prometheus.Gauge
	registry      *prometheus.Registry
}

// New creates and registers the full collector set on a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "aurea",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Wall-clock stage execution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		StageDegraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aurea",
				Subsystem: "pipeline",
				Name:      "stage_degraded_total",
				Help:      "Stage completions that fell back to neutral values",
			},
			[]string{"stage"},
		),
		Assessments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aurea",
				Subsystem: "assessments",
				Name:      "completed_total",
				Help:      "Completed assessments by underwriting decision",
			},
			[]string{"decision"},
		),
		ActiveStreams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "aurea",
				Subsystem: "assessments",
				Name:      "active_streams",
				Help:      "Streaming assessments currently in flight",
			},
		),
		registry: prometheus.NewRegistry(),
	}

	collectors := []prometheus.Collector{
		m.StageDuration,
		m.StageDegraded,
		m.Assessments,
		m.ActiveStreams,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}
	return m, nil
}

// Registry exposes the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveStage records one stage completion.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration, degraded bool) {
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if degraded {
		m.StageDegraded.WithLabelValues(stage).Inc()
	}
}

// ObserveAssessment records one completed assessment.
func (m *Metrics) ObserveAssessment(decision string) {
	m.Assessments.WithLabelValues(decision).Inc()
}
