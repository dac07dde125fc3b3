// Package metrics provides operational metrics collection.
//
// Metrics are recorded by the engine service and the pipeline worker and
// exposed in Prometheus format on the /metrics endpoint so they can be
// scraped by standard monitoring infrastructure.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors used by engine operations.
type Metrics struct {
	// Operations counts synchronous engine operations by name and result.
	Operations *prometheus.CounterVec
	// OperationDuration observes synchronous operation latency by name.
	OperationDuration *prometheus.HistogramVec
	// ActionsResolved counts pipeline resolutions by terminal status.
	ActionsResolved *prometheus.CounterVec
	// GenerationDuration observes narrative generation latency.
	GenerationDuration prometheus.Histogram
	// Broadcasts counts published notifications by kind.
	Broadcasts *prometheus.CounterVec
}

// New creates the engine collectors and registers them on the registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "torchbearer_engine_operations_total",
				Help: "Total engine operations by name and result.",
			},
			[]string{"operation", "result"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "torchbearer_engine_operation_duration_seconds",
				Help: "Duration of synchronous engine operations.",
			},
			[]string{"operation"},
		),
		ActionsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "torchbearer_engine_actions_resolved_total",
				Help: "Total pipeline action resolutions by terminal status.",
			},
			[]string{"status"},
		),
		GenerationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name: "torchbearer_engine_generation_duration_seconds",
				Help: "Duration of narrative generation calls.",
			},
		),
		Broadcasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "torchbearer_engine_broadcasts_total",
				Help: "Total post-commit notifications published by kind.",
			},
			[]string{"kind"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.Operations,
			m.OperationDuration,
			m.ActionsResolved,
			m.GenerationDuration,
			m.Broadcasts,
		)
	}
	return m
}

// RecordOperation increments the operation counter and observes duration.
func (m *Metrics) RecordOperation(operation, result string, seconds float64) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, result).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordBroadcast increments the published-notification counter.
func (m *Metrics) RecordBroadcast(kind string) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(kind).Inc()
}

// RecordResolution increments the pipeline resolution counter.
func (m *Metrics) RecordResolution(status string) {
	if m == nil {
		return
	}
	m.ActionsResolved.WithLabelValues(status).Inc()
}

// ObserveGeneration records one narrative generation duration.
func (m *Metrics) ObserveGeneration(seconds float64) {
	if m == nil {
		return
	}
	m.GenerationDuration.Observe(seconds)
}
