// Package metrics holds the Prometheus collectors for the matcher daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several daemons (or tests) in one
// process never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	DocumentsProcessed *prometheus.CounterVec
	DocumentDuration   prometheus.Histogram
	EventsEmitted      *prometheus.CounterVec
	SinkWrites         *prometheus.CounterVec
	ThreatActorErrors  prometheus.Counter
	IndexRebuilds      *prometheus.CounterVec
	IndexBuildDuration *prometheus.HistogramVec
	IndexKeywords      *prometheus.GaugeVec
	IndexAge           *prometheus.GaugeVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		DocumentsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventmatcher_documents_processed_total",
				Help: "Documents matched, by outcome (matched, unmatched, error)",
			},
			[]string{"outcome"},
		),
		DocumentDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eventmatcher_document_duration_seconds",
				Help:    "Time to match one document",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
		),
		EventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventmatcher_events_emitted_total",
				Help: "Match events emitted, by source network",
			},
			[]string{"source_network"},
		),
		SinkWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventmatcher_sink_writes_total",
				Help: "Event sink writes, by sink and status (inserted, duplicate, error)",
			},
			[]string{"sink", "status"},
		),
		ThreatActorErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eventmatcher_threat_actor_errors_total",
				Help: "Threat actor passes that failed and degraded to no threat actor matches",
			},
		),
		IndexRebuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventmatcher_index_rebuilds_total",
				Help: "Index rebuilds, by trigger (startup, stale, missing, error, schedule, manual)",
			},
			[]string{"trigger"},
		),
		IndexBuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventmatcher_index_build_duration_seconds",
				Help:    "Time to build a keyword index",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"index"},
		),
		IndexKeywords: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eventmatcher_index_keywords",
				Help: "Distinct keywords in the published index",
			},
			[]string{"index"},
		),
		IndexAge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eventmatcher_index_built_timestamp_seconds",
				Help: "Unix time the published index was built",
			},
			[]string{"index"},
		),
	}

	m.registry.MustRegister(
		m.DocumentsProcessed,
		m.DocumentDuration,
		m.EventsEmitted,
		m.SinkWrites,
		m.ThreatActorErrors,
		m.IndexRebuilds,
		m.IndexBuildDuration,
		m.IndexKeywords,
		m.IndexAge,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDocument records one processed document.
func (m *Metrics) ObserveDocument(outcome string, d time.Duration) {
	m.DocumentsProcessed.WithLabelValues(outcome).Inc()
	m.DocumentDuration.Observe(d.Seconds())
}

// RecordEvent counts an emitted event.
func (m *Metrics) RecordEvent(network string) {
	m.EventsEmitted.WithLabelValues(network).Inc()
}

// RecordSinkWrite counts a sink write.
func (m *Metrics) RecordSinkWrite(sink, status string) {
	m.SinkWrites.WithLabelValues(sink, status).Inc()
}

// RecordIndex records a freshly published index.
func (m *Metrics) RecordIndex(name string, keywords int, builtAt time.Time, took time.Duration) {
	m.IndexKeywords.WithLabelValues(name).Set(float64(keywords))
	m.IndexAge.WithLabelValues(name).Set(float64(builtAt.Unix()))
	if took > 0 {
		m.IndexBuildDuration.WithLabelValues(name).Observe(took.Seconds())
	}
}
