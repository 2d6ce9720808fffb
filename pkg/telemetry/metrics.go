package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/furrowlabs/furrow/pkg/engine"
)

const metricsNamespace = "furrow"

// Metrics collects run and step metrics on a private registry. It implements
// engine.Observer.
type Metrics struct {
	registry *prometheus.Registry

	stepsTotal   *prometheus.CounterVec
	runsTotal    *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	runDuration  prometheus.Histogram
}

// NewMetrics creates a metrics collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "steps_total",
				Help:      "Step executions by step name and outcome",
			},
			[]string{"step", "outcome"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "runs_total",
				Help:      "Provisioning runs by terminal state",
			},
			[]string{"state"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "step_duration_seconds",
				Help:      "Step execution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"step"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "run_duration_seconds",
				Help:      "Run duration in seconds",
				Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800},
			},
		),
	}

	m.registry.MustRegister(m.stepsTotal, m.runsTotal, m.stepDuration, m.runDuration)
	return m
}

// StepFinished implements engine.Observer.
func (m *Metrics) StepFinished(result engine.StepResult) {
	m.stepsTotal.WithLabelValues(result.Step, string(result.Outcome)).Inc()
	m.stepDuration.WithLabelValues(result.Step).Observe(result.Duration.Seconds())
}

// RunFinished implements engine.Observer.
func (m *Metrics) RunFinished(report *engine.RunReport) {
	m.runsTotal.WithLabelValues(string(report.State)).Inc()
	m.runDuration.Observe(report.Duration.Seconds())
}

// WriteSnapshot writes the collected metrics to a textfile in the Prometheus
// exposition format, for the node_exporter textfile collector.
func (m *Metrics) WriteSnapshot(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics snapshot to %s: %w", path, err)
	}
	return nil
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
