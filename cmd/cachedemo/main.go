package main

import (
	"log"
	"time"

	"objcache/cache"
	"objcache/pkg/signals"
)

func main() {
	cfg := cache.DefaultConfig()
	cfg.CostLimit = 100
	cfg.PreferredCostAfterPurge = 60
	cfg.CountLimit = 64
	cfg.AgeLimit = time.Minute
	cfg.OnRelease = func(key string, _ any, cost int64) {
		log.Printf("released %q (cost=%d)", key, cost)
	}

	c := cache.New(cfg)
	defer c.Close()

	hub := signals.NewHub()
	c.ObserveSignals(hub)

	log.Println("cachedemo starting")

	// -------------------------------------------------------------------
	// 1) LRU ordering: touching "a" makes "b" the eviction candidate.
	// -------------------------------------------------------------------
	c.Set("a", "A", 10)
	c.Set("b", "B", 10)
	if v, ok := c.Get("a"); ok {
		log.Printf("GET a = %v (now most recently used)", v)
	}
	c.Set("c", "C", 10)
	log.Printf("count=%d cost=%d", c.Count(), c.Cost())

	// -------------------------------------------------------------------
	// 2) Cost overflow: pushing past the 100-cost cap schedules a purge
	//    down to the 60-cost soft target.
	// -------------------------------------------------------------------
	c.Set("big1", "payload", 50)
	c.Set("big2", "payload", 40)
	time.Sleep(200 * time.Millisecond) // let the background purge run
	log.Printf("after overflow purge: count=%d cost=%d", c.Count(), c.Cost())

	// -------------------------------------------------------------------
	// 3) Memory pressure: a low-memory signal clears everything.
	// -------------------------------------------------------------------
	hub.Publish(signals.LowMemory)
	time.Sleep(100 * time.Millisecond)
	log.Printf("after low-memory signal: count=%d cost=%d", c.Count(), c.Cost())

	m := c.Metrics()
	log.Printf("hits=%d misses=%d hitRate=%.2f sets=%d evictions=%d",
		m.Hits, m.Misses, m.HitRate, m.Sets, m.Evictions)
}
