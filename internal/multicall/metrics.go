package multicall

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments the updater
type Metrics struct {
	fetches       *prometheus.CounterVec
	callsPerFetch prometheus.Histogram
	outdated      prometheus.Gauge
}

// NewMetrics creates and registers updater metrics. A nil registerer skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farmcall_multicall_fetch_total",
				Help: "tryBlockAndAggregate round trips by outcome",
			},
			[]string{"outcome"},
		),
		callsPerFetch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "farmcall_multicall_calls_per_fetch",
			Help:    "Calls packed into one aggregate round trip",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		outdated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "farmcall_multicall_outdated_calls",
			Help: "Calls found stale on the last update pass",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.fetches, m.callsPerFetch, m.outdated)
	}
	return m
}

func (m *Metrics) fetched(outcome string, calls int) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(outcome).Inc()
	m.callsPerFetch.Observe(float64(calls))
}

func (m *Metrics) setOutdated(n int) {
	if m == nil {
		return
	}
	m.outdated.Set(float64(n))
}
