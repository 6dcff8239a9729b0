package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "alphakite"

// Outcome labels.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds all alpha-kite collectors on a private registry.
type Metrics struct {
	StoreOps          *prometheus.CounterVec
	StoreOpDuration   *prometheus.HistogramVec
	BatchChunks       *prometheus.CounterVec
	BatchRecords      *prometheus.CounterVec
	SubscriptionsLive *prometheus.GaugeVec
	EventsDelivered   *prometheus.CounterVec
	IngestRecords     *prometheus.CounterVec
	ProducerFailures  *prometheus.CounterVec
	IngestRuns        *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.StoreOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store façade operations by table, operation and result",
		},
		[]string{"table", "op", "result"},
	)
	m.StoreOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Store façade operation latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"table", "op"},
	)
	m.BatchChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "chunks_total",
			Help:      "Batch chunks dispatched by table, operation and result",
		},
		[]string{"table", "op", "result"},
	)
	m.BatchRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "records_committed_total",
			Help:      "Records committed through the batch executor",
		},
		[]string{"table", "op"},
	)
	m.SubscriptionsLive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "open",
			Help:      "Open subscription handles by table",
		},
		[]string{"table"},
	)
	m.EventsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "events_total",
			Help:      "Change events by table and outcome (delivered, discarded)",
		},
		[]string{"table", "outcome"},
	)
	m.IngestRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Normalized records written by the ingestion pipeline",
		},
		[]string{"table"},
	)
	m.ProducerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "producer_failures_total",
			Help:      "Market-data producer failures by producer and operation",
		},
		[]string{"producer", "op"},
	)
	m.IngestRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Ingestion runs by result",
		},
		[]string{"result"},
	)

	m.registry.MustRegister(
		m.StoreOps, m.StoreOpDuration,
		m.BatchChunks, m.BatchRecords,
		m.SubscriptionsLive, m.EventsDelivered,
		m.IngestRecords, m.ProducerFailures, m.IngestRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStoreOp records one façade operation.
func (m *Metrics) ObserveStoreOp(table, op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.StoreOps.WithLabelValues(table, op, result(err)).Inc()
	m.StoreOpDuration.WithLabelValues(table, op).Observe(d.Seconds())
}

// ObserveChunk records one batch chunk and the records it committed.
func (m *Metrics) ObserveChunk(table, op string, committed int, err error) {
	if m == nil {
		return
	}
	m.BatchChunks.WithLabelValues(table, op, result(err)).Inc()
	if committed > 0 {
		m.BatchRecords.WithLabelValues(table, op).Add(float64(committed))
	}
}

// SubscriptionOpened tracks a new handle on table.
func (m *Metrics) SubscriptionOpened(table string) {
	if m == nil {
		return
	}
	m.SubscriptionsLive.WithLabelValues(table).Inc()
}

// SubscriptionClosed tracks a closed handle on table.
func (m *Metrics) SubscriptionClosed(table string) {
	if m == nil {
		return
	}
	m.SubscriptionsLive.WithLabelValues(table).Dec()
}

// EventDelivered counts a change event handed to a listener.
func (m *Metrics) EventDelivered(table string) {
	if m == nil {
		return
	}
	m.EventsDelivered.WithLabelValues(table, "delivered").Inc()
}

// EventDiscarded counts a change event dropped because its handle closed.
func (m *Metrics) EventDiscarded(table string) {
	if m == nil {
		return
	}
	m.EventsDelivered.WithLabelValues(table, "discarded").Inc()
}

// RecordsIngested counts normalized records written to table.
func (m *Metrics) RecordsIngested(table string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.IngestRecords.WithLabelValues(table).Add(float64(n))
}

// ProducerFailed counts a producer failure.
func (m *Metrics) ProducerFailed(producer, op string) {
	if m == nil {
		return
	}
	m.ProducerFailures.WithLabelValues(producer, op).Inc()
}

// IngestRun counts a finished ingestion run.
func (m *Metrics) IngestRun(err error) {
	if m == nil {
		return
	}
	m.IngestRuns.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
