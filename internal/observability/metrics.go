// File: internal/observability/metrics.go
package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records per-run counters. The registry is private to the run so
// repeated runs in one process (and tests) never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	outcomesTotal   *prometheus.CounterVec
	stepFailures    *prometheus.CounterVec
	vehicleDuration *prometheus.HistogramVec
	recoveries      *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		outcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetpm_vehicle_outcomes_total",
				Help: "Vehicles processed, by outcome status.",
			},
			[]string{"status"},
		),
		stepFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetpm_step_failures_total",
				Help: "Workflow step failures, by step name.",
			},
			[]string{"step"},
		),
		vehicleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleetpm_vehicle_duration_seconds",
				Help:    "Wall time spent on a single vehicle.",
				Buckets: []float64{5, 10, 20, 30, 45, 60, 90, 120, 180},
			},
			[]string{"status"},
		),
		recoveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetpm_baseline_recoveries_total",
				Help: "Baseline recovery attempts, by method and result.",
			},
			[]string{"method", "result"},
		),
	}
}

// ObserveOutcome records a finished vehicle. step is empty for non-failures.
func (m *Metrics) ObserveOutcome(status, step string, d time.Duration) {
	m.outcomesTotal.WithLabelValues(status).Inc()
	m.vehicleDuration.WithLabelValues(status).Observe(d.Seconds())
	if step != "" {
		m.stepFailures.WithLabelValues(step).Inc()
	}
}

// ObserveRecovery records one baseline recovery attempt.
func (m *Metrics) ObserveRecovery(method string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.recoveries.WithLabelValues(method, result).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile writes the current values in the node_exporter textfile
// format. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
