package cache

import "sync"

var (
	sharedOnce  sync.Once
	sharedCache *Cache
)

// Shared returns the process-wide default cache, created on first use with
// DefaultConfig. The lifecycle is explicit: create-once here, stop with
// ShutdownShared during application teardown.
func Shared() *Cache {
	sharedOnce.Do(func() {
		sharedCache = New(DefaultConfig())
	})
	return sharedCache
}

// ShutdownShared stops the shared cache's background work. The handle stays
// valid but rejects further operations; Shared does not recreate it.
func ShutdownShared() {
	Shared().Close()
}
