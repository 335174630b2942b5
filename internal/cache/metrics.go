package cache

import "github.com/prometheus/client_golang/prometheus"

// Collectors are shared by every ScopedCache and labelled by cache name, so
// cardinality is bounded by the number of tiers.
var (
	cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threadcmd",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache reads by result (hit, miss, stale).",
		},
		[]string{"cache", "result"},
	)

	cacheLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threadcmd",
			Subsystem: "cache",
			Name:      "loads_total",
			Help:      "Loader calls by outcome (ok, error).",
		},
		[]string{"cache", "outcome"},
	)

	cacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threadcmd",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries evicted by the capacity bound.",
		},
		[]string{"cache"},
	)

	cacheEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "threadcmd",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Entries currently held, expired ones included.",
		},
		[]string{"cache"},
	)
)

func init() {
	prometheus.MustRegister(cacheRequests, cacheLoads, cacheEvictions, cacheEntries)
}
