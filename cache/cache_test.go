package cache

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

// waitUntil polls cond until it holds or the deadline passes. Background
// purge and release are eventually consistent by design, so tests converge
// instead of sleeping fixed amounts.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// newTestCache builds a cache with no limits and the periodic trim loop
// disabled, so tests control every eviction explicitly.
func newTestCache(mutate func(*Config)) *Cache {
	cfg := DefaultConfig()
	cfg.AutoTrimInterval = -1
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

// checkInvariants verifies that the running totals match the live entries
// and that the list linkage is intact.
func checkInvariants(t *testing.T, c *Cache) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var sum int64
	for _, i := range c.list.index {
		sum += c.list.slots[i].cost
	}
	if sum != c.list.totalCost {
		t.Errorf("totalCost = %d, recomputed sum = %d", c.list.totalCost, sum)
	}

	forward := 0
	for i := c.list.head; i != noSlot; i = c.list.slots[i].next {
		forward++
		if forward > len(c.list.index) {
			t.Fatal("list walk exceeds index size; linkage corrupt")
		}
	}
	if forward != len(c.list.index) {
		t.Errorf("list holds %d entries, index holds %d", forward, len(c.list.index))
	}
}

func TestCacheSetGet(t *testing.T) {
	c := newTestCache(nil)
	defer c.Close()

	c.Set("k", "v", 3)

	v, ok := c.Get("k")
	if !ok || v != "v" {
		t.Fatalf("Get(k) = %v, %v; want v, true", v, ok)
	}
	if c.Count() != 1 || c.Cost() != 3 {
		t.Errorf("count=%d cost=%d, want 1, 3", c.Count(), c.Cost())
	}

	if _, ok := c.Get("absent"); ok {
		t.Error("Get(absent) reported a hit")
	}
}

func TestCacheReplaceAdjustsCost(t *testing.T) {
	c := newTestCache(nil)
	defer c.Close()

	c.Set("k", "v1", 10)
	c.Set("other", "x", 5)
	c.Set("k", "v2", 3)

	if c.Cost() != 8 {
		t.Errorf("cost = %d, want 8 after replacing a 10-cost entry with 3", c.Cost())
	}
	if c.Count() != 2 {
		t.Errorf("count = %d, want 2 (replace must not duplicate)", c.Count())
	}
	if v, _ := c.Get("k"); v != "v2" {
		t.Errorf("Get(k) = %v, want v2", v)
	}
	checkInvariants(t, c)
}

func TestCacheSetNilValueRemoves(t *testing.T) {
	c := newTestCache(nil)
	defer c.Close()

	c.Set("k", "v", 1)
	c.Set("k", nil, 0)

	if _, ok := c.Get("k"); ok {
		t.Error("key survived a nil-value Set")
	}
	if c.Count() != 0 || c.Cost() != 0 {
		t.Errorf("count=%d cost=%d, want 0, 0", c.Count(), c.Cost())
	}
}

func TestCacheRemove(t *testing.T) {
	c := newTestCache(nil)
	defer c.Close()

	c.Set("k", "v", 2)

	if !c.Remove("k") {
		t.Error("Remove(present) = false")
	}
	if _, ok := c.Get("k"); ok {
		t.Error("Get after Remove reported a hit")
	}
	if c.Remove("k") {
		t.Error("Remove(absent) = true")
	}
	if c.Count() != 0 || c.Cost() != 0 {
		t.Errorf("count=%d cost=%d, want 0, 0", c.Count(), c.Cost())
	}
}

func TestCacheClear(t *testing.T) {
	c := newTestCache(nil)
	defer c.Close()

	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, int64(i))
	}
	c.Clear()

	if c.Count() != 0 || c.Cost() != 0 {
		t.Errorf("count=%d cost=%d, want 0, 0", c.Count(), c.Cost())
	}
	for i := 0; i < 10; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%d", i)); ok {
			t.Fatalf("k%d survived Clear", i)
		}
	}
}

// Count-limit scenario: with a limit of 2, touching "a" makes "b" the LRU
// victim when "c" arrives.
func TestCacheCountLimitEvictsLRU(t *testing.T) {
	var mu sync.Mutex
	var evicted []string

	c := newTestCache(func(cfg *Config) {
		cfg.CountLimit = 2
		cfg.SynchronousRelease = true
		cfg.OnRelease = func(key string, _ any, _ int64) {
			mu.Lock()
			evicted = append(evicted, key)
			mu.Unlock()
		}
	})
	defer c.Close()

	c.Set("a", 1, 1)
	c.Set("b", 2, 1)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("warm-up Get(a) missed")
	}
	c.Set("c", 3, 1)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted as least recently used")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should have survived (recently used)")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should have survived (just inserted)")
	}
	if c.Count() != 2 {
		t.Errorf("count = %d, want 2", c.Count())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Errorf("evicted = %v, want [b]", evicted)
	}
}

func TestCacheZeroCountLimitHoldsNothing(t *testing.T) {
	c := newTestCache(func(cfg *Config) {
		cfg.CountLimit = 0
		cfg.SynchronousRelease = true
	})
	defer c.Close()

	c.Set("k", "v", 1)
	if c.Count() != 0 {
		t.Errorf("count = %d, want 0 when no entries are permitted", c.Count())
	}
}

// Cost-overflow scenario: limit 100, soft target 60, inserts of cost 50, 40,
// 40. The purge removes the two oldest entries (50+40 = 90 purged >= the
// 70 needed) and only the newest survives.
func TestCacheCostOverflowPurgesToPreferred(t *testing.T) {
	var mu sync.Mutex
	purged := map[string]bool{}

	c := newTestCache(func(cfg *Config) {
		cfg.CostLimit = 100
		cfg.PreferredCostAfterPurge = 60
		cfg.OnRelease = func(key string, _ any, _ int64) {
			mu.Lock()
			purged[key] = true
			mu.Unlock()
		}
	})
	defer c.Close()

	c.Set("oldest", "x", 50)
	c.Set("middle", "x", 40)
	c.Set("newest", "x", 40) // 130 > 100: purge scheduled

	waitUntil(t, 2*time.Second, func() bool { return c.Cost() <= 60 })

	if c.Count() != 1 || c.Cost() != 40 {
		t.Errorf("count=%d cost=%d, want 1, 40", c.Count(), c.Cost())
	}
	if _, ok := c.Get("newest"); !ok {
		t.Error("newest entry should have survived the purge")
	}

	waitUntil(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return purged["oldest"] && purged["middle"]
	})
	mu.Lock()
	defer mu.Unlock()
	if purged["newest"] {
		t.Error("newest entry was released")
	}
}

// A burst of overflowing writes converges: the purge re-reads the totals as
// it runs and the periodic machinery mops up anything a throttled purge
// skipped.
func TestCachePurgeCoalescesBurst(t *testing.T) {
	c := newTestCache(func(cfg *Config) {
		cfg.CostLimit = 100
		cfg.PreferredCostAfterPurge = 60
		cfg.AutoTrimInterval = 20 * time.Millisecond
	})
	defer c.Close()

	for i := 0; i < 20; i++ {
		c.Set(fmt.Sprintf("k%d", i), "x", 30)
	}

	waitUntil(t, 2*time.Second, func() bool { return c.Cost() <= 100 })
	checkInvariants(t, c)
}

// An overflow landing inside the purge throttle window must not be dropped:
// the purge is deferred to the end of the window and still reaches the soft
// target, with no periodic trim loop to fall back on.
func TestCacheThrottledOverflowPurgeIsDeferred(t *testing.T) {
	clk := clock.NewMock()
	var mu sync.Mutex
	freed := map[string]bool{}

	c := newTestCache(func(cfg *Config) {
		cfg.Clock = clk
		cfg.CostLimit = 100
		cfg.PreferredCostAfterPurge = 60
		cfg.OnRelease = func(key string, _ any, _ int64) {
			mu.Lock()
			freed[key] = true
			mu.Unlock()
		}
	})
	defer c.Close()

	c.Set("a", "x", 50)
	c.Set("b", "x", 60) // 110 > 100: first purge runs at once, evicting a
	waitUntil(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return freed["a"]
	})
	if c.Cost() != 60 {
		t.Fatalf("cost = %d after the first purge, want 60", c.Cost())
	}

	// Second overflow inside the throttle window. The mock clock has not
	// moved, so the purge sits on its timer until the window elapses.
	c.Set("c", "x", 50) // 110 > 100 again
	time.Sleep(20 * time.Millisecond)
	if got := c.Cost(); got != 110 {
		t.Fatalf("cost = %d while throttled, want 110 (purge must wait for the window)", got)
	}

	waitUntil(t, 2*time.Second, func() bool {
		clk.Add(10 * time.Millisecond)
		return c.Cost() <= 100
	})
	if c.Cost() != 50 {
		t.Errorf("cost = %d after the deferred purge, want 50", c.Cost())
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("newest entry should survive the deferred purge")
	}
	checkInvariants(t, c)
}

func TestCacheLRUOrderWithinPurge(t *testing.T) {
	var mu sync.Mutex
	var order []string

	c := newTestCache(func(cfg *Config) {
		cfg.SynchronousRelease = true
		cfg.OnRelease = func(key string, _ any, _ int64) {
			mu.Lock()
			order = append(order, key)
			mu.Unlock()
		}
	})
	defer c.Close()

	c.Set("a", 1, 10)
	c.Set("b", 2, 10)
	c.Set("c", 3, 10)
	c.Get("a") // a becomes MRU; eviction order is now b, c, a

	c.TrimToCount(0)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"b", "c", "a"}
	if len(order) != len(want) {
		t.Fatalf("released %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("release order %v, want %v (LRU first)", order, want)
			break
		}
	}
}

func TestTrimToCost(t *testing.T) {
	c := newTestCache(func(cfg *Config) {
		cfg.SynchronousRelease = true
	})
	defer c.Close()

	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, 10)
	}

	c.TrimToCost(30)

	if c.Cost() != 30 || c.Count() != 3 {
		t.Errorf("cost=%d count=%d, want 30, 3", c.Cost(), c.Count())
	}
	// Survivors are the three most recent inserts.
	for i := 7; i < 10; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%d", i)); !ok {
			t.Errorf("k%d should have survived", i)
		}
	}
	checkInvariants(t, c)
}

func TestTrimToCount(t *testing.T) {
	c := newTestCache(func(cfg *Config) {
		cfg.SynchronousRelease = true
	})
	defer c.Close()

	for i := 0; i < 50; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, 1)
	}

	c.TrimToCount(5)
	if c.Count() != 5 {
		t.Errorf("count = %d, want 5", c.Count())
	}

	c.TrimToCount(NoLimit)
	if c.Count() != 5 {
		t.Errorf("count = %d after NoLimit trim, want 5 (no-op)", c.Count())
	}
}

func TestRemoveMatching(t *testing.T) {
	c := newTestCache(func(cfg *Config) {
		cfg.SynchronousRelease = true
	})
	defer c.Close()

	c.Set("thumb:1", 1, 1)
	c.Set("thumb:2", 2, 1)
	c.Set("image:1", 3, 1)

	if n := c.RemoveMatching("thumb:*"); n != 2 {
		t.Errorf("RemoveMatching(thumb:*) = %d, want 2", n)
	}
	if _, ok := c.Get("image:1"); !ok {
		t.Error("image:1 should not match the thumb prefix")
	}

	if n := c.RemoveMatching("image:1"); n != 1 {
		t.Errorf("RemoveMatching(image:1) = %d, want 1 (exact match)", n)
	}
	if n := c.RemoveMatching("absent"); n != 0 {
		t.Errorf("RemoveMatching(absent) = %d, want 0", n)
	}
	checkInvariants(t, c)
}

func TestCacheMetrics(t *testing.T) {
	c := newTestCache(nil)
	defer c.Close()

	c.Set("k", "v", 1)
	c.Get("k")
	c.Get("k")
	c.Get("missing")
	c.Remove("k")

	m := c.Metrics()
	if m.Hits != 2 || m.Misses != 1 {
		t.Errorf("hits=%d misses=%d, want 2, 1", m.Hits, m.Misses)
	}
	if m.Sets != 1 || m.Removes != 1 {
		t.Errorf("sets=%d removes=%d, want 1, 1", m.Sets, m.Removes)
	}
	if want := 2.0 / 3.0; m.HitRate < want-1e-9 || m.HitRate > want+1e-9 {
		t.Errorf("hitRate = %f, want %f", m.HitRate, want)
	}
}

func TestCacheClosedOperationsAreNoOps(t *testing.T) {
	c := newTestCache(nil)
	c.Set("k", "v", 1)
	c.Close()
	c.Close() // idempotent

	c.Set("k2", "v", 1)
	if _, ok := c.Get("k"); ok {
		t.Error("Get succeeded on a closed cache")
	}
	if c.Remove("k") {
		t.Error("Remove succeeded on a closed cache")
	}
	c.Clear()
	c.TrimToCount(0)
}

// Randomized interleavings across goroutines must never corrupt the totals
// or the list linkage.
func TestCacheConcurrentOperations(t *testing.T) {
	c := newTestCache(func(cfg *Config) {
		cfg.CountLimit = 100
		cfg.CostLimit = 500
		cfg.PreferredCostAfterPurge = 300
		// Overflow purges are throttled; the periodic trim guarantees
		// convergence once the writers stop.
		cfg.AutoTrimInterval = 20 * time.Millisecond
	})
	defer c.Close()

	const (
		goroutines = 8
		opsPerG    = 500
		keySpace   = 32
	)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < opsPerG; i++ {
				key := fmt.Sprintf("k%d", rng.Intn(keySpace))
				switch rng.Intn(10) {
				case 0:
					c.Remove(key)
				case 1:
					c.TrimToCost(400)
				default:
					if rng.Intn(2) == 0 {
						c.Set(key, i, int64(1+rng.Intn(10)))
					} else {
						c.Get(key)
					}
				}
			}
		}(int64(g + 1))
	}
	wg.Wait()

	checkInvariants(t, c)

	// Purges may still be in flight; they must converge to the hard cap.
	waitUntil(t, 2*time.Second, func() bool { return c.Cost() <= 500 })
	checkInvariants(t, c)
}
