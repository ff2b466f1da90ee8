package chunked

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CallCounter observes every dispatch triggered by a change of input.
// It never influences dispatching.
type CallCounter interface {
	Record(method, key string)
}

// DispatchKey identifies a request list: method:item1,item2,...
func DispatchKey(method string, items []string) string {
	return method + ":" + strings.Join(items, ",")
}

// Counts keeps dispatch counts per request key in memory
type Counts struct {
	mu     sync.Mutex
	counts map[string]uint64
}

// NewCounts creates an empty Counts
func NewCounts() *Counts {
	return &Counts{counts: make(map[string]uint64)}
}

// Record increments the count of key
func (c *Counts) Record(_ string, key string) {
	c.mu.Lock()
	c.counts[key]++
	c.mu.Unlock()
}

// Get returns the count of key
func (c *Counts) Get(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

// Snapshot returns a copy of all counts
func (c *Counts) Snapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// PrometheusCounter exports dispatch counts per method. Keys are not used
// as labels since they are unbounded.
type PrometheusCounter struct {
	dispatches *prometheus.CounterVec
}

// NewPrometheusCounter creates and registers the dispatch counter. A nil
// registerer skips registration.
func NewPrometheusCounter(reg prometheus.Registerer) *PrometheusCounter {
	c := &PrometheusCounter{
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farmcall_chunked_dispatch_total",
				Help: "Chunked batch dispatches caused by an input change",
			},
			[]string{"method"},
		),
	}
	if reg != nil {
		reg.MustRegister(c.dispatches)
	}
	return c
}

// Record increments the dispatch counter of method
func (c *PrometheusCounter) Record(method, _ string) {
	c.dispatches.WithLabelValues(method).Inc()
}

// MultiCounter fans a record out to every counter
type MultiCounter []CallCounter

// Record forwards the dispatch to every counter
func (m MultiCounter) Record(method, key string) {
	for _, c := range m {
		c.Record(method, key)
	}
}
