package cache

import (
	"context"
	"fmt"
)

// Loader produces the value and cost for a missing key.
type Loader func(ctx context.Context) (value any, cost int64, err error)

// GetOrLoad returns the cached value for key, running load to produce and
// cache it on a miss. Concurrent callers for the same key are coalesced so
// the loader executes once and every caller receives its result, avoiding
// the thundering herd of the plain cache-aside pattern.
//
// Loader errors are not cached; the next caller retries.
func (c *Cache) GetOrLoad(ctx context.Context, key string, load Loader) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check: another caller may have populated the key while this
		// one waited its turn.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		value, cost, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", key, err)
		}
		c.stats.loads.Inc()
		c.Set(key, value, cost)
		return value, nil
	})
	return v, err
}
