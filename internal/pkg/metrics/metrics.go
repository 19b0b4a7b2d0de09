// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "devplan"

var (
	// HTTPRequestsTotal counts handled requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration observes request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// GatewayErrorsTotal counts failed record/storage gateway calls.
	GatewayErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_errors_total",
		Help:      "Total number of failed gateway calls.",
	}, []string{"op", "table"})

	// LoginRateLimitedTotal counts login attempts rejected by the limiter.
	LoginRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_rate_limited_total",
		Help:      "Login attempts rejected by rate limiting.",
	})

	// UploadDedupHitsTotal counts evidence uploads rejected as duplicates.
	UploadDedupHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_dedup_hits_total",
		Help:      "Evidence uploads skipped because the same content was uploaded recently.",
	})

	// UploadFallbackTotal counts uploads stored on local disk after the bucket failed.
	UploadFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_fallback_total",
		Help:      "Evidence uploads written to the local fallback store.",
	})

	// TokensRevokedTotal counts session tokens revoked by logout.
	TokensRevokedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_revoked_total",
		Help:      "Session tokens revoked on logout.",
	})

	buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build and environment information.",
	}, []string{"version", "env", "backend"})

	initOnce sync.Once
)

// InitMetrics records build information once per process.
func InitMetrics(version, env, backend string) {
	initOnce.Do(func() {
		buildInfo.WithLabelValues(version, env, backend).Set(1)
	})
}
