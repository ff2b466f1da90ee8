package ethrpc

import (
	"github.com/prometheus/client_golang/prometheus"

	"farmcall/internal/upstream"
)

// Metrics counts upstream round trips by upstream, method and outcome
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	breakers *prometheus.GaugeVec
}

// NewMetrics creates and registers executor metrics. A nil registerer skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farmcall_upstream_requests_total",
				Help: "JSON-RPC round trips to upstreams",
			},
			[]string{"upstream", "method", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "farmcall_upstream_request_duration_seconds",
				Help:    "JSON-RPC round trip latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		breakers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "farmcall_upstream_breaker_state",
				Help: "Circuit breaker state per upstream: 0 closed, 1 half-open, 2 open",
			},
			[]string{"upstream"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.breakers)
	}
	return m
}

func (m *Metrics) observe(upstreamName, method, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(upstreamName, method, outcome).Inc()
	m.duration.WithLabelValues(method).Observe(seconds)
}

func (m *Metrics) setBreaker(upstreamName string, state upstream.BreakerState) {
	if m == nil {
		return
	}
	var v float64
	switch state {
	case upstream.BreakerHalfOpen:
		v = 1
	case upstream.BreakerOpen:
		v = 2
	}
	m.breakers.WithLabelValues(upstreamName).Set(v)
}
