// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for HTTP traffic and for the
// outcomes the API cares about:
//
//   - facecloud_http_requests_total(method, path, status)
//   - facecloud_http_request_duration_seconds(method, path)
//   - facecloud_http_requests_inflight
//   - facecloud_http_response_size_bytes(method, path)
//   - facecloud_wizard_submissions_total(wizard, outcome)
//   - facecloud_auth_link_outcomes_total(outcome)
//   - facecloud_rate_limited_total(scope)
//
// The path label is the registered Gin route (e.g. /api/v1/clinics/:id/staff).
// Unmatched requests are labelled "unmatched" so probes for random URLs
// cannot grow the series count.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// UnmatchedPath is the path label for requests no route matched.
const UnmatchedPath = "unmatched"

// sizeBuckets cover wizard payloads up to the 1 MiB body cap.
var sizeBuckets = prometheus.ExponentialBuckets(256, 4, 7)

var (
	httpReqs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facecloud",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "path", "status"})

	httpLat = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facecloud",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	httpInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facecloud",
		Subsystem: "http",
		Name:      "requests_inflight",
		Help:      "HTTP requests currently being served.",
	})

	httpRespSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facecloud",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response body size by route.",
		Buckets:   sizeBuckets,
	}, []string{"method", "path"})

	wizardSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facecloud",
		Name:      "wizard_submissions_total",
		Help:      "Wizard submissions by wizard and outcome (created, replayed, invalid, failed).",
	}, []string{"wizard", "outcome"})

	authLinkOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facecloud",
		Name:      "auth_link_outcomes_total",
		Help:      "Emailed link confirmations by outcome (established, failed, timeout, missing).",
	}, []string{"outcome"})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facecloud",
		Name:      "rate_limited_total",
		Help:      "Requests rejected with 429 by limiter scope (auth, user, ip).",
	}, []string{"scope"})
)

// ObserveWizard counts one wizard submission.
func ObserveWizard(wizard, outcome string) {
	wizardSubmissions.WithLabelValues(wizard, outcome).Inc()
}

// ObserveAuthLink counts one /auth/confirm outcome.
func ObserveAuthLink(outcome string) {
	authLinkOutcomes.WithLabelValues(outcome).Inc()
}

// Metrics records request count, latency, concurrency and response size
// for every request. /metrics is served separately by promhttp.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		httpInflight.Inc()
		defer httpInflight.Dec()
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = UnmatchedPath
		}
		m := c.Request.Method
		httpReqs.WithLabelValues(m, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(m, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(m, path).Observe(float64(size))
		}
	}
}
