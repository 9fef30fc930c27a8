package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"objcache/pkg/signals"
)

// Cache is a thread-safe bounded object cache with LRU eviction.
//
// Values are shared, not owned: a value returned by Get stays valid for the
// caller even after the entry housing it is evicted. The cache merely drops
// its own reference on eviction and notifies OnRelease.
//
// Ownership model: Cache owns its background goroutines (trim loop, release
// workers, in-flight purges). Call Close to stop them; after Close every
// operation is a no-op.
type Cache struct {
	mu   sync.Mutex
	list *accessList
	// closed is guarded by mu so operations and Close serialize cleanly.
	closed bool
	// purgePending is guarded by mu: at most one overflow purge is scheduled
	// or running at a time. A purge delayed by the throttle stays pending, so
	// an overflow inside the window is deferred rather than dropped.
	purgePending bool

	cfg Config
	clk clock.Clock

	pool   *releasePool // nil under SynchronousRelease
	purges *rate.Limiter
	group  singleflight.Group

	stats counters

	// stop ends the trim loop; maint tracks the trim loop and any in-flight
	// overflow purge. maint.Add only ever happens under mu with closed
	// false, so Close's Wait cannot race a late Add.
	stop  chan struct{}
	maint sync.WaitGroup

	sigMu  sync.Mutex
	hub    *signals.Hub
	tokens []string
}

// New constructs a cache and starts its background maintenance. Start from
// DefaultConfig; remember that a zero limit permits no entries while NoLimit
// disables the limit.
func New(cfg Config) *Cache {
	cfg = cfg.withDefaults()

	c := &Cache{
		list: newAccessList(),
		cfg:  cfg,
		clk:  cfg.Clock,
		stop: make(chan struct{}),
	}
	if !cfg.SynchronousRelease {
		c.pool = newReleasePool(cfg.ReleaseWorkers, releaseQueueDepth, cfg.OnRelease, &c.stats.releaseFailures)
	}
	c.purges = rate.NewLimiter(rate.Every(purgeThrottle), 1)

	if cfg.AutoTrimInterval > 0 {
		c.maint.Add(1)
		go c.trimLoop()
	}
	return c
}

// Get returns the value stored for key. A hit counts as a use: the entry's
// last access time is refreshed and it becomes the most recently used.
// Complexity: O(1).
func (c *Cache) Get(key string) (any, bool) {
	now := c.clk.Now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false
	}
	i := c.list.lookup(key)
	if i == noSlot {
		c.mu.Unlock()
		c.stats.misses.Inc()
		return nil, false
	}
	value := c.list.touch(i, now)
	c.mu.Unlock()

	c.stats.hits.Inc()
	return value, true
}

// Set upserts key with the given value and cost. Replacing an entry adjusts
// the cost total by the delta and promotes it to most recently used. A nil
// value is equivalent to Remove.
//
// Overflow handling, per limit:
//   - count: exactly one tail eviction happens inline (O(1) unlink under the
//     lock, payload release deferred).
//   - cost: a purge down to PreferredCostAfterPurge is scheduled on a
//     background goroutine, so write latency does not depend on how much
//     there is to purge. An overflow landing inside the purge throttle
//     window defers the purge to the end of the window.
func (c *Cache) Set(key string, value any, cost int64) {
	if value == nil {
		c.Remove(key)
		return
	}
	if cost < 0 {
		cost = 0
	}
	now := c.clk.Now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if i := c.list.lookup(key); i != noSlot {
		c.list.update(i, value, cost, now)
	} else {
		c.list.insertAtHead(key, value, cost, now)
	}

	var victim released
	var evicted bool
	if c.cfg.Policy.OverCount(c.list.len(), c.cfg.CountLimit) {
		victim, evicted = c.list.removeTail()
	}

	overCost := c.cfg.Policy.OverCost(c.list.totalCost, c.list.len(), c.cfg.CostLimit)
	var purgeDelay time.Duration
	purge := overCost && !c.purgePending
	if purge {
		// The reservation is always granted (burst 1, one token asked); its
		// delay is how long the throttle pushes this purge out. The clock is
		// the injected one throughout, so tests drive the window.
		purgeDelay = c.purges.ReserveN(now, 1).DelayFrom(now)
		c.purgePending = true
		c.maint.Add(1)
	}
	c.mu.Unlock()

	c.stats.sets.Inc()
	if evicted {
		c.stats.evictions.Inc()
		c.dispatchRelease([]released{victim})
	}
	if purge {
		go c.schedulePurge(purgeDelay)
	}
}

// Remove deletes key and reports whether it was present. The payload's
// release is deferred like any eviction.
func (c *Cache) Remove(key string) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	i := c.list.lookup(key)
	if i == noSlot {
		c.mu.Unlock()
		return false
	}
	r := c.list.remove(i)
	c.mu.Unlock()

	c.stats.removes.Inc()
	c.dispatchRelease([]released{r})
	return true
}

// RemoveMatching removes every key matching pattern and reports how many
// were removed. A trailing '*' matches any suffix ("thumb:*"); any other
// pattern is an exact match.
func (c *Cache) RemoveMatching(pattern string) int {
	prefix, wild := strings.CutSuffix(pattern, "*")

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	// Collect first: removing while ranging the index would skip keys.
	var hits []int
	for key, i := range c.list.index {
		if wild && strings.HasPrefix(key, prefix) || !wild && key == pattern {
			hits = append(hits, i)
		}
	}
	victims := make([]released, 0, len(hits))
	for _, i := range hits {
		victims = append(victims, c.list.remove(i))
	}
	c.mu.Unlock()

	if len(victims) > 0 {
		c.stats.removes.Add(int64(len(victims)))
		c.dispatchRelease(victims)
	}
	return len(victims)
}

// Clear evicts everything. The visible reset is O(1); the old entries are
// walked and released on a background worker.
func (c *Cache) Clear() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	old := c.list.clear()
	c.mu.Unlock()

	c.stats.clears.Inc()
	if old.count == 0 {
		return
	}
	c.stats.evictions.Add(int64(old.count))
	if c.pool != nil {
		c.pool.submit(releaseJob{arena: old})
		return
	}
	releaseBatch(old.drain(), c.cfg.OnRelease, &c.stats.releaseFailures)
}

// Count returns the number of live entries.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.len()
}

// Cost returns the summed cost of live entries.
func (c *Cache) Cost() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.totalCost
}

// TrimToCost evicts least recently used entries until total cost is within
// limit. Runs as a lock-retry loop: concurrent readers and writers are not
// starved while a large trim proceeds.
func (c *Cache) TrimToCost(limit int64) {
	pol := c.cfg.Policy
	c.evictLoop(func(l *accessList, _ time.Time) ([]released, bool) {
		var victims []released
		for pol.OverCost(l.totalCost, l.len(), limit) {
			r, ok := l.removeTail()
			if !ok {
				break
			}
			victims = append(victims, r)
			if len(victims) >= trimBatchSize {
				return victims, false
			}
		}
		return victims, true
	})
}

// TrimToCount evicts least recently used entries until the entry count is
// within limit.
func (c *Cache) TrimToCount(limit int) {
	pol := c.cfg.Policy
	c.evictLoop(func(l *accessList, _ time.Time) ([]released, bool) {
		var victims []released
		for pol.OverCount(l.len(), limit) {
			r, ok := l.removeTail()
			if !ok {
				break
			}
			victims = append(victims, r)
			if len(victims) >= trimBatchSize {
				return victims, false
			}
		}
		return victims, true
	})
}

// TrimToAge evicts entries whose idle time since last access exceeds limit.
func (c *Cache) TrimToAge(limit time.Duration) {
	pol := c.cfg.Policy
	c.evictLoop(func(l *accessList, now time.Time) ([]released, bool) {
		var victims []released
		for {
			idle, ok := l.tailIdleTime(now)
			if !ok || !pol.Expired(idle, limit) {
				return victims, true
			}
			r, _ := l.removeTail()
			victims = append(victims, r)
			if len(victims) >= trimBatchSize {
				return victims, false
			}
		}
	})
}

// evictLoop runs one background multi-eviction pass. It acquires the lock
// opportunistically, lets step evict a bounded batch, releases the lock and
// dispatches the victims, then repeats until step reports done. Contention
// is met with backoff, and the pass gives up after trimMaxAttempts: eventual
// consistency is enough for maintenance.
func (c *Cache) evictLoop(step func(l *accessList, now time.Time) (victims []released, done bool)) {
	backoff := trimBackoff
	for attempt := 0; attempt < trimMaxAttempts; attempt++ {
		select {
		case <-c.stop:
			return
		default:
		}

		if !c.mu.TryLock() {
			c.clk.Sleep(backoff)
			if backoff < trimBackoffLimit {
				backoff *= 2
			}
			continue
		}
		if c.closed {
			c.mu.Unlock()
			return
		}
		victims, done := step(c.list, c.clk.Now())
		c.mu.Unlock()

		if len(victims) > 0 {
			c.stats.evictions.Add(int64(len(victims)))
			c.dispatchRelease(victims)
		}
		if done {
			return
		}
	}
}

// schedulePurge runs an overflow purge once the throttle window allows it.
// A throttled purge is deferred, never dropped: the goroutine waits out the
// limiter's delay, so the soft target is reached even when the periodic trim
// loop is disabled.
func (c *Cache) schedulePurge(delay time.Duration) {
	defer c.maint.Done()

	if delay > 0 {
		timer := c.clk.Timer(delay)
		defer timer.Stop()
		select {
		case <-c.stop:
			return
		case <-timer.C:
		}
	}

	// Pending clears before the purge runs: an overflow arriving mid-purge
	// schedules its own follow-up rather than being silently absorbed.
	c.mu.Lock()
	c.purgePending = false
	c.mu.Unlock()

	c.purgeOverflow()
}

// purgeOverflow sheds enough tail weight to bring usage down to the soft
// target after a write pushed total cost over the hard cap. The target byte
// count is computed once, on the first lock hold, then tail entries are
// evicted in ascending recency until the purged sum satisfies it.
func (c *Cache) purgeOverflow() {
	target := int64(-1)
	var purged int64
	c.evictLoop(func(l *accessList, _ time.Time) ([]released, bool) {
		if target < 0 {
			target = purgeTarget(l.totalCost, c.cfg.CostLimit, c.cfg.PreferredCostAfterPurge)
		}
		var victims []released
		for purged < target {
			r, ok := l.removeTail()
			if !ok {
				return victims, true
			}
			purged += r.cost
			victims = append(victims, r)
			if len(victims) >= trimBatchSize {
				return victims, false
			}
		}
		return victims, true
	})
}

// dispatchRelease hands detached entries to the release path: the worker
// pool by default, or the calling goroutine under SynchronousRelease. Never
// called with the lock held.
func (c *Cache) dispatchRelease(batch []released) {
	if len(batch) == 0 {
		return
	}
	if c.pool != nil {
		c.pool.submit(releaseJob{batch: batch})
		return
	}
	releaseBatch(batch, c.cfg.OnRelease, &c.stats.releaseFailures)
}

// Close stops the trim loop and release workers and detaches any signal
// subscriptions. Entries still cached are dropped without release callbacks;
// call Clear first if OnRelease must observe them. Safe to call repeatedly.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	// Drop the entry references; teardown skips release callbacks.
	c.list.clear()
	c.mu.Unlock()

	c.detachSignals()
	close(c.stop)
	c.maint.Wait()
	if c.pool != nil {
		c.pool.shutdown()
	}
}
