// Package metrics exposes Prometheus collectors for the resolver service.
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

// Resolution outcomes.
const (
	OutcomeCacheHit          = "cache_hit"
	OutcomeScraped           = "scraped"
	OutcomeInvalidInput      = "invalid_input"
	OutcomeNotFound          = "not_found"
	OutcomeScrapeFailed      = "scrape_failed"
	OutcomeHandleUnavailable = "handle_unavailable"
	OutcomeError             = "error"
)

// Scrape results.
const (
	ScrapeSucceeded = "success"
	ScrapeFailed    = "failure"
)

var (
	resolutionsTotal           *prometheus.CounterVec
	scrapeDurationSeconds      *prometheus.HistogramVec
	poolHandles                *prometheus.GaugeVec
	poolEvictionsTotal         *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		resolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postal_resolutions_total",
				Help: "Total number of address resolutions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scrapeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "postal_scrape_duration_seconds",
				Help:    "Histogram of portal lookup latencies, labeled by result.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 15, 30},
			},
			[]string{"result"},
		)

		poolHandles = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "postal_pool_handles",
				Help: "Number of pooled browser handles, labeled by state.",
			},
			[]string{"state"},
		)

		poolEvictionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postal_pool_evictions_total",
				Help: "Total number of pooled handles closed, labeled by reason.",
			},
			[]string{"reason"},
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
	Init()
	return promhttp.Handler()
}

// ObserveResolution increments the resolution counter for an outcome.
func ObserveResolution(outcome string) {
	Init()
	resolutionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveScrape records the latency of a portal lookup.
func ObserveScrape(result string, duration time.Duration) {
	Init()
	scrapeDurationSeconds.WithLabelValues(result).Observe(duration.Seconds())
}

// SetPoolHandles publishes the current pool occupancy.
func SetPoolHandles(total, inUse int) {
	Init()
	poolHandles.WithLabelValues("in_use").Set(float64(inUse))
	poolHandles.WithLabelValues("idle").Set(float64(total - inUse))
}

// ObservePoolEviction increments the eviction counter for a reason.
func ObservePoolEviction(reason string) {
	Init()
	poolEvictionsTotal.WithLabelValues(reason).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
