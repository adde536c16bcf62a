package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newTestMetrics() *SyncMetrics {
	return newSyncMetricsWithRegisterer(prometheus.NewRegistry())
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := g.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return metric.GetGauge().GetValue()
}

func TestNewSyncMetrics(t *testing.T) {
	m := newTestMetrics()

	if m.replaceApplied == nil || m.appendApplied == nil || m.staleDiscarded == nil {
		t.Fatal("fetch counters must be initialized")
	}
	if m.patchesApplied == nil || m.transitions == nil {
		t.Fatal("counter vecs must be initialized")
	}
	if m.fetchDuration == nil || m.viewEntities == nil {
		t.Fatal("histogram and gauge must be initialized")
	}
}

func TestRecordFetchCounters(t *testing.T) {
	m := newTestMetrics()

	m.RecordReplaceApplied()
	m.RecordAppendApplied()
	m.RecordAppendApplied()
	m.RecordStaleDiscarded()
	m.RecordAppendSkipped()

	if got := counterValue(t, m.replaceApplied); got != 1 {
		t.Fatalf("replace counter = %v, want 1", got)
	}
	if got := counterValue(t, m.appendApplied); got != 2 {
		t.Fatalf("append counter = %v, want 2", got)
	}
	if got := counterValue(t, m.staleDiscarded); got != 1 {
		t.Fatalf("stale counter = %v, want 1", got)
	}
	if got := counterValue(t, m.appendSkipped); got != 1 {
		t.Fatalf("skipped counter = %v, want 1", got)
	}
}

func TestRecordPatchAndTransition(t *testing.T) {
	m := newTestMetrics()

	m.RecordPatch("update")
	m.RecordPatch("update")
	m.RecordPatch("delete")
	m.RecordTransition("return")
	m.RecordStockWarning()
	m.RecordDispatch()

	if got := counterValue(t, m.patchesApplied.WithLabelValues("update")); got != 2 {
		t.Fatalf("update patches = %v, want 2", got)
	}
	if got := counterValue(t, m.patchesApplied.WithLabelValues("delete")); got != 1 {
		t.Fatalf("delete patches = %v, want 1", got)
	}
	if got := counterValue(t, m.transitions.WithLabelValues("return")); got != 1 {
		t.Fatalf("return transitions = %v, want 1", got)
	}
	if got := counterValue(t, m.stockWarnings); got != 1 {
		t.Fatalf("stock warnings = %v, want 1", got)
	}
	if got := counterValue(t, m.dispatches); got != 1 {
		t.Fatalf("dispatches = %v, want 1", got)
	}
}

func TestViewSizeGauge(t *testing.T) {
	m := newTestMetrics()

	m.SetViewSize("orders", 42)
	m.SetViewSize("orders", 7)

	if got := gaugeValue(t, m.viewEntities.WithLabelValues("orders")); got != 7 {
		t.Fatalf("view size = %v, want 7", got)
	}
}

func TestObserveFetchDuration(t *testing.T) {
	m := newTestMetrics()

	m.ObserveFetchDuration(25 * time.Millisecond)

	metric := &dto.Metric{}
	if err := m.fetchDuration.Write(metric); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	if metric.GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected 1 observation, got %d", metric.GetHistogram().GetSampleCount())
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := newSyncMetricsWithRegisterer(registry)
	second := newSyncMetricsWithRegisterer(registry)

	first.RecordReplaceApplied()
	second.RecordReplaceApplied()

	if got := counterValue(t, first.replaceApplied); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}
