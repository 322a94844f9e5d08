// Package metrics wires sector-cache activity into Prometheus counters,
// registered against a caller-supplied Registerer so embedding processes
// control their own exposition endpoint.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics holds the counters exported for one sector cache instance.
type CacheMetrics struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Evictions prometheus.Counter
}

// NewCacheMetrics registers and returns the counters for a cache identified
// by name (e.g. the mounted volume's label), so multiple volumes in one
// process don't collide in the default registry.
func NewCacheMetrics(reg prometheus.Registerer, name string) *CacheMetrics {
	labels := prometheus.Labels{"volume": name}
	m := &CacheMetrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "filesys_cache_hits_total",
			Help:        "Sector cache hits.",
			ConstLabels: labels,
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "filesys_cache_misses_total",
			Help:        "Sector cache misses (slot allocations).",
			ConstLabels: labels,
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "filesys_cache_evictions_total",
			Help:        "Sector cache clock-sweep evictions.",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Hits, m.Misses, m.Evictions)
	}
	return m
}
