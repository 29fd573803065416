// Package metrics exposes the daemon's Prometheus metrics: ingestion
// counters, queue pressure, burst and sync outcomes, and storage query
// latency. Everything registers on one private registry so tests can
// construct isolated instances.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "realtypecoach"

// Metrics holds every instrument the daemon records into.
type Metrics struct {
	registry *prometheus.Registry

	KeystrokesTotal prometheus.Counter
	DroppedEvents   prometheus.Gauge
	QueueDepth      prometheus.Gauge

	BurstsTotal            prometheus.Counter
	UnrealisticBurstsTotal prometheus.Counter
	WordsTotal             prometheus.Counter
	BurstWPM               prometheus.Histogram

	SyncsTotal   *prometheus.CounterVec
	SyncDuration prometheus.Histogram
	SyncRows     *prometheus.CounterVec

	RetentionDeletedTotal prometheus.Counter
	StorageQueryDuration  prometheus.Histogram
	ErrorsTotal           *prometheus.CounterVec
}

// New creates and registers all daemon metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,

		KeystrokesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keystrokes_total",
			Help:      "Key presses consumed from the event queue.",
		}),
		DroppedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dropped_events",
			Help:      "Total events dropped because the queue was full.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Events currently buffered between reader and consumer.",
		}),

		BurstsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bursts_total",
			Help:      "Bursts persisted after passing all gates.",
		}),
		UnrealisticBurstsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unrealistic_bursts_total",
			Help:      "Bursts dropped for exceeding the realistic WPM ceiling.",
		}),
		WordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "words_total",
			Help:      "Validated word observations recorded.",
		}),
		BurstWPM: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "burst_wpm",
			Help:      "WPM distribution of persisted bursts.",
			Buckets:   []float64{20, 40, 60, 80, 100, 120, 150, 200, 300},
		}),

		SyncsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_total",
			Help:      "Sync cycles by outcome.",
		}, []string{"outcome"}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Wall-clock duration of sync cycles.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		SyncRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_rows_total",
			Help:      "Rows moved by the synchronizer, by direction.",
		}, []string{"direction"}),

		RetentionDeletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_rows_total",
			Help:      "Rows removed by retention sweeps.",
		}),
		StorageQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_query_duration_seconds",
			Help:      "Duration of storage queries issued by background jobs.",
			Buckets:   prometheus.DefBuckets,
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by component.",
		}, []string{"component"}),
	}

	registry.MustRegister(
		m.KeystrokesTotal,
		m.DroppedEvents,
		m.QueueDepth,
		m.BurstsTotal,
		m.UnrealisticBurstsTotal,
		m.WordsTotal,
		m.BurstWPM,
		m.SyncsTotal,
		m.SyncDuration,
		m.SyncRows,
		m.RetentionDeletedTotal,
		m.StorageQueryDuration,
		m.ErrorsTotal,
	)
	return m
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSync records one sync cycle's outcome.
func (m *Metrics) RecordSync(duration time.Duration, pushed, pulled int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.SyncsTotal.WithLabelValues(outcome).Inc()
	m.SyncDuration.Observe(duration.Seconds())
	m.SyncRows.WithLabelValues("pushed").Add(float64(pushed))
	m.SyncRows.WithLabelValues("pulled").Add(float64(pulled))
}

// RecordError counts one error against a component.
func (m *Metrics) RecordError(component string) {
	m.ErrorsTotal.WithLabelValues(component).Inc()
}
