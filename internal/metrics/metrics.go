// Package metrics exposes Prometheus counters for the sync layer.
// A nil *Sync is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gymsync"

type Sync struct {
	registry       *prometheus.Registry
	snapshots      *prometheus.CounterVec
	decodeFailures *prometheus.CounterVec
	unknownFields  *prometheus.CounterVec
	writes         *prometheus.CounterVec
	records        *prometheus.GaugeVec
	dispatched     prometheus.Counter
}

// New registers the sync collectors, plus Go runtime and process collectors,
// on a private registry.
func New() *Sync {
	m := &Sync{
		registry: prometheus.NewRegistry(),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_applied_total",
			Help:      "Full collection snapshots applied to local state.",
		}, []string{"collection"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Remote documents skipped because they could not be decoded.",
		}, []string{"collection"}),
		unknownFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_fields_total",
			Help:      "Remote document fields dropped because the schema does not name them.",
		}, []string{"collection"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Remote writes by operation and result.",
		}, []string{"collection", "op", "result"}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Records in the latest snapshot.",
		}, []string{"collection"}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dispatched_total",
			Help:      "Notifications published to the broker.",
		}),
	}
	m.registry.MustRegister(
		m.snapshots,
		m.decodeFailures,
		m.unknownFields,
		m.writes,
		m.records,
		m.dispatched,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Sync) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Sync) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Sync) SnapshotApplied(collection string, records int) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(collection).Inc()
	m.records.WithLabelValues(collection).Set(float64(records))
}

func (m *Sync) DecodeFailed(collection string) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(collection).Inc()
}

func (m *Sync) UnknownFields(collection string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.unknownFields.WithLabelValues(collection).Add(float64(n))
}

// Write counts one remote write; result is "ok" or "error".
func (m *Sync) Write(collection, op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.writes.WithLabelValues(collection, op, result).Inc()
}

func (m *Sync) NotificationDispatched() {
	if m == nil {
		return
	}
	m.dispatched.Inc()
}
