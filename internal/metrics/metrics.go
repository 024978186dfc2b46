// Package metrics exposes Prometheus collectors for the discovery pipeline
// and its read API.
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
	searchRequestsTotal        *prometheus.CounterVec
	workItemsTotal             *prometheus.CounterVec
	recordsTotal               *prometheus.CounterVec
	eventsPublishedTotal       *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		searchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_search_requests_total",
				Help: "Places provider calls, labeled by endpoint and provider outcome.",
			},
			[]string{"endpoint", "outcome"},
		)

		workItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_work_items_total",
				Help: "Work items finished, labeled by final state.",
			},
			[]string{"state"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_records_total",
				Help: "Business records handled, labeled by upsert outcome.",
			},
			[]string{"outcome"},
		)

		eventsPublishedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_events_published_total",
				Help: "Discovery events published, labeled by result.",
			},
			[]string{"result"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "discovery_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations before provider calls.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"host"},
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

// ObserveSearch counts one provider call.
func ObserveSearch(endpoint, outcome string) {
	Init()
	searchRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveWorkItem counts a work item reaching a final state.
func ObserveWorkItem(state string) {
	Init()
	workItemsTotal.WithLabelValues(state).Inc()
}

// ObserveRecord counts a record upsert outcome.
func ObserveRecord(outcome string) {
	Init()
	recordsTotal.WithLabelValues(outcome).Inc()
}

// ObserveEvent counts a publish attempt.
func ObserveEvent(result string) {
	Init()
	eventsPublishedTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(rawURL string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(SanitizeHost(rawURL)).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
