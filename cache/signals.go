package cache

import "objcache/pkg/signals"

// ObserveSignals subscribes the cache to the hub's low-memory and
// entering-background events. By default either signal clears the cache;
// KeepOnLowMemory / KeepOnBackground suppress that, and the OnLowMemory /
// OnEnterBackground callbacks run either way. Close detaches the
// subscriptions.
//
// The hub is the delivery mechanism only; bridging real platform
// notifications into it is the host application's job.
func (c *Cache) ObserveSignals(hub *signals.Hub) {
	c.sigMu.Lock()
	defer c.sigMu.Unlock()
	if c.hub != nil {
		return // already observing
	}
	c.hub = hub
	c.tokens = []string{
		hub.Subscribe(signals.LowMemory, func(signals.Signal) { c.onLowMemory() }),
		hub.Subscribe(signals.EnteredBackground, func(signals.Signal) { c.onEnterBackground() }),
	}
}

func (c *Cache) onLowMemory() {
	if !c.cfg.KeepOnLowMemory {
		c.Clear()
	}
	if fn := c.cfg.OnLowMemory; fn != nil {
		fn()
	}
}

func (c *Cache) onEnterBackground() {
	if !c.cfg.KeepOnBackground {
		c.Clear()
	}
	if fn := c.cfg.OnEnterBackground; fn != nil {
		fn()
	}
}

func (c *Cache) detachSignals() {
	c.sigMu.Lock()
	defer c.sigMu.Unlock()
	if c.hub == nil {
		return
	}
	for _, token := range c.tokens {
		c.hub.Unsubscribe(token)
	}
	c.hub = nil
	c.tokens = nil
}
