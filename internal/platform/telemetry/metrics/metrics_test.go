package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordOperation("change_phase", "ok", 0.01)
	m.ActionsResolved.WithLabelValues("completed").Inc()
	m.Broadcasts.WithLabelValues("phase.changed").Inc()

	if got := testutil.ToFloat64(m.Operations.WithLabelValues("change_phase", "ok")); got != 1 {
		t.Fatalf("operations counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ActionsResolved.WithLabelValues("completed")); got != 1 {
		t.Fatalf("actions resolved counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Broadcasts.WithLabelValues("phase.changed")); got != 1 {
		t.Fatalf("broadcasts counter = %v, want 1", got)
	}
}

func TestRecordOperationNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordOperation("change_phase", "ok", 0.01)
}
