// Package metrics provides Prometheus metrics for attachvault. All Observe
// methods are safe on a nil *Metrics so instrumented components work without
// a registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	WorkflowRuns     *prometheus.CounterVec
	WorkflowDuration prometheus.Histogram
	Uploads          *prometheus.CounterVec
	Downloads        *prometheus.CounterVec
	Searches         *prometheus.CounterVec
	ExtractionJobs   *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.WorkflowRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachvault_workflow_runs_total",
			Help: "Attachment workflows by outcome and terminal phase",
		},
		[]string{"outcome", "phase"},
	)
	m.WorkflowDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attachvault_workflow_duration_seconds",
			Help:    "Wall time of attachment workflows",
			Buckets: prometheus.DefBuckets,
		},
	)
	m.Uploads = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachvault_uploads_total",
			Help: "Document uploads by result",
		},
		[]string{"status"},
	)
	m.Downloads = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachvault_downloads_total",
			Help: "Download strategy attempts by strategy and result",
		},
		[]string{"strategy", "status"},
	)
	m.Searches = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachvault_searches_total",
			Help: "Search client calls by query kind and result",
		},
		[]string{"kind", "status"},
	)
	m.ExtractionJobs = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachvault_extraction_jobs_total",
			Help: "Text extraction jobs by result",
		},
		[]string{"status"},
	)
	m.HTTPRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachvault_http_requests_total",
			Help: "Document service HTTP requests",
		},
		[]string{"route", "code"},
	)
	m.HTTPDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attachvault_http_request_duration_seconds",
			Help:    "Document service HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveWorkflow(outcome, phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.WorkflowRuns.WithLabelValues(outcome, phase).Inc()
	m.WorkflowDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveUpload(status string) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveDownload(strategy, status string) {
	if m == nil {
		return
	}
	m.Downloads.WithLabelValues(strategy, status).Inc()
}

func (m *Metrics) ObserveSearch(kind, status string) {
	if m == nil {
		return
	}
	m.Searches.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ObserveExtraction(status string) {
	if m == nil {
		return
	}
	m.ExtractionJobs.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveHTTP(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}
