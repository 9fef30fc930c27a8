// Package cache implements a bounded in-memory object cache with LRU
// eviction, independent cost/count/age limits, deferred payload release and
// periodic background maintenance.
//
// Design Choices:
//   - Entries live in an arena of slots linked by integer indices, with a
//     key->slot map for O(1) lookup. Integer links keep relinking O(1) and
//     cannot dangle the way raw node pointers can.
//   - One sync.Mutex guards the list and the running totals as a unit.
//     Caller-facing operations hold it only for the O(1) list mutation;
//     payload release always happens after unlock.
//   - Multi-entry trims never hold the lock for the whole pass. They use a
//     TryLock retry loop with bounded backoff and evict in small batches, so
//     a large purge cannot starve concurrent readers.
//   - Evicted payloads are handed to a bounded worker pool. Release work
//     (teardown callbacks, large deallocations) runs off the hot path, and a
//     panicking callback is isolated per entry.
//
// Performance Characteristics:
//   - Get/Set/Remove: O(1) under the lock.
//   - Clear: O(1) visible reset; the O(n) walk of the old entries happens on
//     a release worker.
//   - Trim passes: O(k) for k victims, amortized over short lock holds.
package cache
