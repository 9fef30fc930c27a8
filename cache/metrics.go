package cache

import "go.uber.org/atomic"

// counters tracks cache activity. All fields are updated lock-free on the
// hot path.
type counters struct {
	hits            atomic.Int64
	misses          atomic.Int64
	sets            atomic.Int64
	removes         atomic.Int64
	evictions       atomic.Int64
	clears          atomic.Int64
	loads           atomic.Int64
	releaseFailures atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of the cache counters plus the
// current size, with the hit rate derived.
type MetricsSnapshot struct {
	Hits      int64
	Misses    int64
	HitRate   float64
	Sets      int64
	Removes   int64
	Evictions int64
	Clears    int64
	Loads     int64

	// ReleaseFailures counts panics recovered from OnRelease callbacks.
	ReleaseFailures int64

	Count int
	Cost  int64
}

// Metrics returns a snapshot of the cache counters.
func (c *Cache) Metrics() MetricsSnapshot {
	hits := c.stats.hits.Load()
	misses := c.stats.misses.Load()

	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return MetricsSnapshot{
		Hits:            hits,
		Misses:          misses,
		HitRate:         hitRate,
		Sets:            c.stats.sets.Load(),
		Removes:         c.stats.removes.Load(),
		Evictions:       c.stats.evictions.Load(),
		Clears:          c.stats.clears.Load(),
		Loads:           c.stats.loads.Load(),
		ReleaseFailures: c.stats.releaseFailures.Load(),
		Count:           c.Count(),
		Cost:            c.Cost(),
	}
}
