// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "order_dashboard"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status code.",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	upstreamPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_pages_total",
			Help:      "Order API pages requested by the fetcher, by outcome.",
		},
		[]string{"outcome"},
	)

	fetchCoverage = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_coverage_percent",
			Help:      "Day coverage of completed fetches.",
			Buckets:   []float64{0, 25, 50, 75, 85, 95, 100},
		},
	)

	fetchRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_rows",
			Help:      "Orders accumulated per completed fetch.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 7),
		},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Orders cache lookups, by tier and result.",
		},
		[]string{"tier", "result"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"breaker"},
	)
)

// Page outcomes.
const (
	PageSuccess   = "success"
	PageFailure   = "failure"
	PageSkipped   = "skipped"
	PageEndOfData = "end_of_data"
)

// Cache results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
)

// PrometheusMiddleware records request counts and latency per route.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		duration := time.Since(start).Seconds()
		statusCode := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, statusCode).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration)
	}
}

// Handler serves the Prometheus exposition format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// RecordPage counts one fetcher page by outcome.
func RecordPage(outcome string) {
	upstreamPagesTotal.WithLabelValues(outcome).Inc()
}

// RecordFetch records the size and coverage of a completed fetch.
func RecordFetch(rows, coverage int) {
	fetchRows.Observe(float64(rows))
	fetchCoverage.Observe(float64(coverage))
}

// RecordCacheLookup counts a cache lookup for the given tier.
func RecordCacheLookup(tier, result string) {
	cacheLookupsTotal.WithLabelValues(tier, result).Inc()
}

// SetBreakerState publishes a breaker state transition.
func SetBreakerState(name, state string) {
	var v float64
	switch state {
	case "HALF_OPEN":
		v = 1
	case "OPEN":
		v = 2
	}
	breakerState.WithLabelValues(name).Set(v)
}
