package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics содержит метрики движка синхронизации и статусных переходов.
type SyncMetrics struct {
	// Счётчики выборок
	replaceApplied prometheus.Counter
	appendApplied  prometheus.Counter
	fetchFailed    *prometheus.CounterVec
	staleDiscarded prometheus.Counter
	appendSkipped  prometheus.Counter

	// Счётчики точечных мутаций представления
	patchesApplied *prometheus.CounterVec

	// Счётчики переходов статусов
	transitions   *prometheus.CounterVec
	stockWarnings prometheus.Counter
	dispatches    prometheus.Counter

	// Гистограмма времени выборки
	fetchDuration prometheus.Histogram

	// Gauge размера представления по коллекциям
	viewEntities *prometheus.GaugeVec
}

// NewSyncMetrics создаёт метрики на default-регистраторе.
func NewSyncMetrics() *SyncMetrics {
	return newSyncMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newSyncMetricsWithRegisterer(registerer prometheus.Registerer) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SyncMetrics{
		replaceApplied: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cadm_sync_replace_applied_total",
			Help: "Total number of replace fetch results applied to a view",
		}),
		appendApplied: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cadm_sync_append_applied_total",
			Help: "Total number of append fetch results applied to a view",
		}),
		fetchFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cadm_sync_fetch_failed_total",
			Help: "Total number of failed fetches by kind",
		}, []string{"kind"}),
		staleDiscarded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cadm_sync_stale_discarded_total",
			Help: "Total number of fetch responses discarded as stale",
		}),
		appendSkipped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cadm_sync_append_skipped_total",
			Help: "Total number of append requests skipped by the re-entrancy guard",
		}),
		patchesApplied: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cadm_sync_patches_applied_total",
			Help: "Total number of single-record patches applied to a view",
		}, []string{"op"}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cadm_transition_applied_total",
			Help: "Total number of committed order status transitions",
		}, []string{"status"}),
		stockWarnings: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cadm_transition_stock_warnings_total",
			Help: "Total number of stock adjustments that failed after a committed return",
		}),
		dispatches: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cadm_transition_dispatched_total",
			Help: "Total number of orders handed over to the courier",
		}),
		fetchDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "cadm_sync_fetch_duration_seconds",
			Help:    "Duration of list fetches in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		viewEntities: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "cadm_sync_view_entities",
			Help: "Number of entities currently materialized per collection",
		}, []string{"collection"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGaugeVec(registerer prometheus.Registerer, opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	collector := prometheus.NewGaugeVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.GaugeVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordReplaceApplied увеличивает счётчик применённых replace-выборок.
func (m *SyncMetrics) RecordReplaceApplied() {
	m.replaceApplied.Inc()
}

// RecordAppendApplied увеличивает счётчик применённых append-выборок.
func (m *SyncMetrics) RecordAppendApplied() {
	m.appendApplied.Inc()
}

// RecordFetchFailed увеличивает счётчик неудачных выборок указанного вида.
func (m *SyncMetrics) RecordFetchFailed(kind string) {
	m.fetchFailed.WithLabelValues(kind).Inc()
}

// RecordStaleDiscarded увеличивает счётчик отброшенных устаревших ответов.
func (m *SyncMetrics) RecordStaleDiscarded() {
	m.staleDiscarded.Inc()
}

// RecordAppendSkipped увеличивает счётчик append-запросов, отклонённых гвардом.
func (m *SyncMetrics) RecordAppendSkipped() {
	m.appendSkipped.Inc()
}

// RecordPatch увеличивает счётчик точечных мутаций (create/update/delete).
func (m *SyncMetrics) RecordPatch(op string) {
	m.patchesApplied.WithLabelValues(op).Inc()
}

// RecordTransition увеличивает счётчик зафиксированных переходов.
func (m *SyncMetrics) RecordTransition(status string) {
	m.transitions.WithLabelValues(status).Inc()
}

// RecordStockWarning увеличивает счётчик неудачных корректировок стока.
func (m *SyncMetrics) RecordStockWarning() {
	m.stockWarnings.Inc()
}

// RecordDispatch увеличивает счётчик переданных курьеру заказов.
func (m *SyncMetrics) RecordDispatch() {
	m.dispatches.Inc()
}

// ObserveFetchDuration записывает время выборки.
func (m *SyncMetrics) ObserveFetchDuration(duration time.Duration) {
	m.fetchDuration.Observe(duration.Seconds())
}

// SetViewSize выставляет текущий размер представления коллекции.
func (m *SyncMetrics) SetViewSize(collection string, size int) {
	m.viewEntities.WithLabelValues(collection).Set(float64(size))
}
