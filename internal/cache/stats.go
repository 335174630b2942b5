package cache

import "sync/atomic"

// Stats holds the cache's lifetime counters.
type Stats struct {
	hits       atomic.Int64
	misses     atomic.Int64
	stale      atomic.Int64
	loads      atomic.Int64
	loadErrors atomic.Int64
	evictions  atomic.Int64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Stale      int64 `json:"stale"`
	Loads      int64 `json:"loads"`
	LoadErrors int64 `json:"load_errors"`
	Evictions  int64 `json:"evictions"`
	Size       int   `json:"size"`
}

// HitRatio returns hits / (hits + misses), or 0 before any request.
func (s Snapshot) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (s *Stats) snapshot(size int) Snapshot {
	return Snapshot{
		Hits:       s.hits.Load(),
		Misses:     s.misses.Load(),
		Stale:      s.stale.Load(),
		Loads:      s.loads.Load(),
		LoadErrors: s.loadErrors.Load(),
		Evictions:  s.evictions.Load(),
		Size:       size,
	}
}
