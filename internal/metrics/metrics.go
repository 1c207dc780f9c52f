// Package metrics exposes Prometheus collectors for the research service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	researchJobsTotal            *prometheus.CounterVec
	researchStageDurationSeconds *prometheus.HistogramVec
	researchPagesTotal           *prometheus.CounterVec
	researchCorpusBytes          prometheus.Histogram
	researchActiveWorkers        prometheus.Gauge
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		researchJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_jobs_total",
				Help: "Total number of research jobs finished, labeled by terminal status.",
			},
			[]string{"status"},
		)

		researchStageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "research_stage_duration_seconds",
				Help:    "Histogram of research pipeline stage durations.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage"},
		)

		researchPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_pages_total",
				Help: "Total number of candidate pages processed, labeled by category and outcome.",
			},
			[]string{"category", "outcome"},
		)

		researchCorpusBytes = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "research_corpus_bytes",
				Help:    "Histogram of assembled corpus sizes in bytes.",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 7),
			},
		)

		researchActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "research_active_workers",
				Help: "Number of workers currently running a research job.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the terminal-status counter for a finished job.
func ObserveJob(status string) {
	researchJobsTotal.WithLabelValues(status).Inc()
}

// ObserveStage records the duration of one pipeline stage.
func ObserveStage(stage string, duration time.Duration) {
	researchStageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObservePage counts one candidate page by category and outcome.
func ObservePage(category string, outcome string) {
	researchPagesTotal.WithLabelValues(category, outcome).Inc()
}

// ObserveCorpus records the size of one assembled corpus.
func ObserveCorpus(bytes int) {
	researchCorpusBytes.Observe(float64(bytes))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	researchActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	researchActiveWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
