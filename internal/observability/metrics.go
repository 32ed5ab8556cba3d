package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "saga"

// Metrics holds the prometheus collectors of the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	retrievalDuration   prometheus.Histogram
	candidatesSkipped   *prometheus.CounterVec
	generationFallbacks *prometheus.CounterVec
	backfillProcessed   *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		retrievalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Duration of retrieval passes, query encoding included.",
			Buckets:   prometheus.DefBuckets,
		}),
		candidatesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_candidates_skipped_total",
			Help:      "Candidates dropped from a retrieval pass.",
		}, []string{"reason"}),
		generationFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompt_generation_fallbacks_total",
			Help:      "Prompts answered from the fallback set after a generation failure.",
		}, []string{"prompt_type"}),
		backfillProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_entries_total",
			Help:      "Entries visited by the summary and embedding backfill.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.retrievalDuration,
		m.candidatesSkipped,
		m.generationFallbacks,
		m.backfillProcessed,
		m.httpRequests,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRetrieval(d time.Duration) {
	if m == nil {
		return
	}
	m.retrievalDuration.Observe(d.Seconds())
}

// RecordSkippedCandidate counts a candidate dropped for reason ("decode", "timestamp").
func (m *Metrics) RecordSkippedCandidate(reason string) {
	if m == nil {
		return
	}
	m.candidatesSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordGenerationFallback(promptType string) {
	if m == nil {
		return
	}
	m.generationFallbacks.WithLabelValues(promptType).Inc()
}

// RecordBackfill counts a backfilled entry by result ("ok", "pending", "failed").
func (m *Metrics) RecordBackfill(result string) {
	if m == nil {
		return
	}
	m.backfillProcessed.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, route, status string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
}
