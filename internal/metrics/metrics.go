// Package metrics exposes Prometheus collectors for the rent crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeTransient = "transient"
	OutcomePermanent = "permanent"
	OutcomePanic     = "panic"
)

var (
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerEntitiesTotal       *prometheus.CounterVec
	crawlerFetchSeconds        *prometheus.HistogramVec
	crawlerActivePageWorkers   prometheus.Gauge
	crawlerWalksTotal          *prometheus.CounterVec
	crawlerLayoutSnapshots     prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rentcrawler_pages_total",
				Help: "Listing pages processed, labeled by hierarchy level and outcome.",
			},
			[]string{"level", "outcome"},
		)

		crawlerEntitiesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rentcrawler_entities_resolved_total",
				Help: "Entities resolved against the store, labeled by kind and whether a row was created.",
			},
			[]string{"kind", "created"},
		)

		crawlerFetchSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rentcrawler_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by host.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"host"},
		)

		crawlerActivePageWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rentcrawler_active_page_workers",
				Help: "Number of community page tasks currently running.",
			},
		)

		crawlerWalksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rentcrawler_walks_total",
				Help: "Hierarchy walks finished, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerLayoutSnapshots = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rentcrawler_layout_snapshots_total",
				Help: "Listing documents archived because their pagination marker was unusable.",
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

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts one processed page.
func ObservePage(level, outcome string) {
	Init()
	crawlerPagesTotal.WithLabelValues(level, outcome).Inc()
}

// ObserveResolve counts one resolved entity.
func ObserveResolve(kind string, created bool) {
	Init()
	crawlerEntitiesTotal.WithLabelValues(kind, strconv.FormatBool(created)).Inc()
}

// ObserveFetch records the latency of one fetch.
func ObserveFetch(rawURL string, duration time.Duration) {
	Init()
	crawlerFetchSeconds.WithLabelValues(SanitizeHost(rawURL)).Observe(duration.Seconds())
}

// IncActivePageWorkers increments the active page workers gauge.
func IncActivePageWorkers() {
	Init()
	crawlerActivePageWorkers.Inc()
}

// DecActivePageWorkers decrements the active page workers gauge.
func DecActivePageWorkers() {
	Init()
	crawlerActivePageWorkers.Dec()
}

// ObserveWalk counts a finished walk.
func ObserveWalk(status string) {
	Init()
	crawlerWalksTotal.WithLabelValues(status).Inc()
}

// ObserveLayoutSnapshot counts an archived listing document.
func ObserveLayoutSnapshot() {
	Init()
	crawlerLayoutSnapshots.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
