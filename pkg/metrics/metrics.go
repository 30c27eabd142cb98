// Package metrics exposes prometheus collectors for the pager. Grounded on
// NayanaChandrika99-DocReasoner's use of github.com/prometheus/client_golang
// for store-layer instrumentation.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every metric the pager reports. A Pager created
// without a Collectors does not register anything, so the package has no
// global side effects until a caller opts in.
type Collectors struct {
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	DirtyPages    prometheus.Gauge
	FreelistDepth prometheus.Gauge
	Checkpoints   prometheus.Counter
	WalFrames     prometheus.Gauge
}

// NewCollectors builds a fresh set of collectors and registers them with
// reg. Passing prometheus.NewRegistry() keeps them isolated from the
// global default registry, which matters for tests that open multiple
// pagers in one process.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pager_cache_hits_total",
			Help: "Page cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pager_cache_misses_total",
			Help: "Page cache misses.",
		}),
		DirtyPages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pager_dirty_pages",
			Help: "Currently dirty pages held in cache.",
		}),
		FreelistDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pager_freelist_depth",
			Help: "Number of pages currently on the free list.",
		}),
		Checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pager_checkpoints_total",
			Help: "Completed WAL checkpoints.",
		}),
		WalFrames: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pager_wal_frames",
			Help: "Durable frames currently in the WAL.",
		}),
	}
	reg.MustRegister(c.CacheHits, c.CacheMisses, c.DirtyPages, c.FreelistDepth, c.Checkpoints, c.WalFrames)
	return c
}
