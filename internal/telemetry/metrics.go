// Package telemetry provides the gateway's Prometheus metrics and
// OpenTelemetry tracing setup.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors exported at /metrics.
type Metrics struct {
	DecisionsTotal     *prometheus.CounterVec
	DecisionDuration   *prometheus.HistogramVec
	RateLimitedTotal   *prometheus.CounterVec
	TunnelsActive      prometheus.Gauge
	TunnelBytesTotal   *prometheus.CounterVec
	TokensActive       prometheus.Gauge
}

// NewMetrics creates and registers all metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		DecisionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "acp_gate",
				Name:      "decisions_total",
				Help:      "Total consent decisions, by kind and verdict",
			},
			[]string{"kind", "verdict"}, // kind=shell/http, verdict=allow/deny
		),
		DecisionDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "acp_gate",
				Name:      "decision_duration_seconds",
				Help:      "Time to reach a verdict, including any human-approval wait",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10), // 10ms..~2.7h covers ask-timeouts
			},
			[]string{"kind"},
		),
		RateLimitedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "acp_gate",
				Name:      "rate_limited_total",
				Help:      "Total actions denied by rate limit before reaching a human",
			},
			[]string{"kind"},
		),
		TunnelsActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "acp_gate",
				Name:      "tunnels_active",
				Help:      "Number of currently open CONNECT tunnels",
			},
		),
		TunnelBytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "acp_gate",
				Name:      "tunnel_bytes_total",
				Help:      "Bytes relayed through CONNECT tunnels, by direction",
			},
			[]string{"direction"}, // direction=client_to_target/target_to_client
		),
		TokensActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "acp_gate",
				Name:      "approval_tokens_active",
				Help:      "Number of currently valid approval tokens",
			},
		),
	}
}
