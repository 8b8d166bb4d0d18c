// Package metrics exposes Prometheus collectors for the harvester service.
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

var (
	crawlPagesTotal            *prometheus.CounterVec
	crawlFactsTotal            *prometheus.CounterVec
	crawlRecordsTotal          *prometheus.CounterVec
	crawlRunsTotal             *prometheus.CounterVec
	crawlRateLimitDelaySeconds *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_total",
				Help: "Total pages processed, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlFactsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_facts_total",
				Help: "Total extracted facts fed to the record store, labeled by kind.",
			},
			[]string{"kind"},
		)

		crawlRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_total",
				Help: "Total dataset records affected by upserts, labeled by kind and action.",
			},
			[]string{"kind", "action"},
		)

		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_runs_total",
				Help: "Total crawl runs completed, labeled by stop reason.",
			},
			[]string{"reason"},
		)

		crawlRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delay_seconds",
				Help:    "Histogram of per-domain rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP API latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
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

// ObservePage increments the page counter for a fetch outcome.
func ObservePage(site, outcome string) {
	if crawlPagesTotal == nil {
		return
	}
	crawlPagesTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveFacts adds extracted fact counts by kind ("organization", "project").
func ObserveFacts(kind string, count int) {
	if crawlFactsTotal == nil || count <= 0 {
		return
	}
	crawlFactsTotal.WithLabelValues(kind).Add(float64(count))
}

// ObserveRecord increments affected-record counters ("created", "updated").
func ObserveRecord(kind, action string) {
	if crawlRecordsTotal == nil {
		return
	}
	crawlRecordsTotal.WithLabelValues(kind, action).Inc()
}

// ObserveRun increments the run counter for the given stop reason.
func ObserveRun(reason string) {
	if crawlRunsTotal == nil {
		return
	}
	crawlRunsTotal.WithLabelValues(reason).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	if crawlRateLimitDelaySeconds == nil {
		return
	}
	crawlRateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP API request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
