package cache

import (
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultAutoTrimInterval is the period of the background trim loop when
// Config.AutoTrimInterval is left zero.
const DefaultAutoTrimInterval = 5 * time.Second

const (
	defaultReleaseWorkers = 1
	releaseQueueDepth     = 64

	// Background trims evict at most this many entries per lock hold.
	trimBatchSize = 16
	// A trim pass gives up after this many lock attempts; the next periodic
	// sweep picks up whatever is left. Maintenance is best effort, never a
	// blocking guarantee.
	trimMaxAttempts  = 64
	trimBackoff      = 100 * time.Microsecond
	trimBackoffLimit = 5 * time.Millisecond

	// Minimum spacing between scheduled overflow purges. A burst of
	// overflowing writes collapses into a single purge cycle, which re-reads
	// the totals as it goes and so covers the whole burst. An overflow
	// arriving inside the window defers its purge to the end of the window.
	purgeThrottle = 50 * time.Millisecond
)

// Config controls cache capacity, maintenance and release behavior.
//
// Limits follow one rule: NoLimit disables the limit, zero permits no
// entries. Start from DefaultConfig and override; the zero Config value
// describes a cache that holds nothing.
type Config struct {
	// CostLimit is the hard cap on the summed cost of live entries.
	CostLimit int64
	// PreferredCostAfterPurge is the soft target an overflow purge shrinks
	// to once a write pushes total cost over CostLimit. Purging below the
	// cap trades a larger one-time purge for fewer purge cycles. Values
	// outside [0, CostLimit] are clamped; NoLimit means "purge to the cap".
	PreferredCostAfterPurge int64
	// CountLimit is the hard cap on the number of live entries.
	CountLimit int
	// AgeLimit is the maximum idle time since an entry's last access.
	AgeLimit time.Duration

	// AutoTrimInterval is the period of the background maintenance loop.
	// Zero selects DefaultAutoTrimInterval; a negative value disables the
	// loop entirely.
	AutoTrimInterval time.Duration
	// TrimToPreferredOnSchedule makes the periodic cost pass target
	// PreferredCostAfterPurge instead of CostLimit. Off by default: the soft
	// target is normally enforced only reactively, after a write overflow.
	TrimToPreferredOnSchedule bool

	// KeepOnLowMemory suppresses the default clear-everything reaction to a
	// low-memory signal. KeepOnBackground does the same for the
	// entering-background signal.
	KeepOnLowMemory  bool
	KeepOnBackground bool
	// OnLowMemory and OnEnterBackground run after the cache has reacted to
	// the corresponding signal. Never invoked with the cache lock held.
	OnLowMemory       func()
	OnEnterBackground func()

	// SynchronousRelease makes payload release run on the goroutine that
	// triggered the eviction, after the lock is dropped, instead of on the
	// background workers.
	SynchronousRelease bool
	// ReleaseWorkers is the number of background release goroutines.
	// Defaults to 1; ignored when SynchronousRelease is set.
	ReleaseWorkers int
	// OnRelease observes every entry leaving the cache, whether evicted,
	// removed or cleared. Runs on a release worker (or the evicting
	// goroutine under SynchronousRelease); a panic here is isolated per
	// entry.
	OnRelease func(key string, value any, cost int64)

	// Policy overrides individual eviction predicates. Zero value uses the
	// built-in LRU rules.
	Policy Policy

	// Clock supplies time for age eviction, the trim loop and retry
	// backoff. Defaults to the wall clock; tests inject a mock.
	Clock clock.Clock
}

// DefaultConfig returns an unbounded configuration: no cost, count or age
// limit, periodic trims every DefaultAutoTrimInterval, asynchronous release,
// and clear-on-low-memory / clear-on-background enabled.
func DefaultConfig() Config {
	return Config{
		CostLimit:               NoLimit,
		PreferredCostAfterPurge: NoLimit,
		CountLimit:              NoLimit,
		AgeLimit:                NoLimit,
	}
}

func (cfg Config) withDefaults() Config {
	if cfg.AutoTrimInterval == 0 {
		cfg.AutoTrimInterval = DefaultAutoTrimInterval
	}
	if cfg.ReleaseWorkers <= 0 {
		cfg.ReleaseWorkers = defaultReleaseWorkers
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	cfg.Policy = cfg.Policy.withDefaults()
	return cfg
}
