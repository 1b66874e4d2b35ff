// Package metrics exposes the prometheus collectors for radigw. Callers use
// the helper functions and never touch label strings directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthHandshakeTotal tracks two-stage token handshake outcomes.
	AuthHandshakeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radigw_auth_handshake_total",
		Help: "Total number of auth handshakes by result",
	}, []string{"result"})

	// UpstreamRequestDuration tracks latency of upstream HTTP calls.
	UpstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "radigw_upstream_request_duration_seconds",
		Help:    "Latency of upstream radiko requests",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	// UpstreamRequestTotal tracks upstream HTTP call outcomes.
	UpstreamRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radigw_upstream_request_total",
		Help: "Total number of upstream radiko requests by endpoint and result",
	}, []string{"endpoint", "result"})
)

// IncAuthHandshake records a handshake outcome.
func IncAuthHandshake(success bool) {
	AuthHandshakeTotal.WithLabelValues(resultLabel(success)).Inc()
}

// ObserveUpstreamRequest records one upstream call.
func ObserveUpstreamRequest(endpoint string, duration time.Duration, success bool) {
	UpstreamRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	UpstreamRequestTotal.WithLabelValues(endpoint, resultLabel(success)).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
