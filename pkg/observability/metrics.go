// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the dbgate authorization gate.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LatencyBuckets defines histogram buckets for request latencies, ranging
// from 1ms to 10s.
var LatencyBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbgate_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbgate_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LatencyBuckets,
		},
		[]string{"method"},
	)

	// AuthDecisionsTotal counts authorization decisions by dispatch path
	// (public, cors, single_use, bearer, integrated) and outcome.
	AuthDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbgate_auth_decisions_total",
			Help: "Authorization decisions",
		},
		[]string{"path", "outcome"},
	)

	// SingleUseTokensIssuedTotal counts issued single-use tokens.
	SingleUseTokensIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbgate_single_use_tokens_issued_total",
			Help: "Single-use tokens issued",
		},
	)

	// SingleUseRedemptionsTotal counts redemption attempts by result
	// (ok, unknown, wrong_tenant, expired).
	SingleUseRedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbgate_single_use_redemptions_total",
			Help: "Single-use token redemptions",
		},
		[]string{"result"},
	)

	// SingleUseTokensEvictedTotal counts tokens removed by the cleanup sweep.
	SingleUseTokensEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbgate_single_use_tokens_evicted_total",
			Help: "Single-use tokens evicted unredeemed",
		},
	)

	// SingleUseTokensStored tracks the number of outstanding single-use tokens.
	SingleUseTokensStored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbgate_single_use_tokens_stored",
			Help: "Outstanding single-use tokens",
		},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbgate_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthDecisionsTotal,
		SingleUseTokensIssuedTotal,
		SingleUseRedemptionsTotal,
		SingleUseTokensEvictedTotal,
		SingleUseTokensStored,
		RateLimitRejectedTotal,
	)
}
