package cache

import "time"

// NoLimit disables a limit. Zero is not the same thing: a zero cost or
// count limit permits no entries at all, and a zero age limit treats every
// entry as stale.
const NoLimit = -1

// Policy decides when a trim pass must evict another tail entry. The trim
// loops re-consult the predicates after every removal, so a policy only ever
// answers "evict one more?". Swapping an individual predicate changes
// eviction behavior without touching the cache; the zero value falls back to
// the built-in rules.
type Policy struct {
	// OverCost reports whether the cost pass must evict given the current
	// total cost, live entry count and configured limit.
	OverCost func(totalCost int64, count int, limit int64) bool
	// OverCount reports whether the count pass must evict.
	OverCount func(count, limit int) bool
	// Expired reports whether an entry idle for the given duration is past
	// the age limit.
	Expired func(idle, limit time.Duration) bool
}

func (p Policy) withDefaults() Policy {
	if p.OverCost == nil {
		p.OverCost = overCost
	}
	if p.OverCount == nil {
		p.OverCount = overCount
	}
	if p.Expired == nil {
		p.Expired = expired
	}
	return p
}

func overCost(totalCost int64, count int, limit int64) bool {
	switch {
	case limit == NoLimit:
		return false
	case limit == 0:
		// No entries permitted, regardless of their cost.
		return count > 0
	default:
		return totalCost > limit
	}
}

func overCount(count, limit int) bool {
	switch {
	case limit == NoLimit:
		return false
	default:
		return count > limit
	}
}

func expired(idle, limit time.Duration) bool {
	switch {
	case limit == NoLimit:
		return false
	case limit <= 0:
		return true
	default:
		return idle > limit
	}
}

// purgeTarget returns how much cost an overflow purge must shed to land at
// the preferred usage below the hard cap. The preferred value is clamped
// into [0, costLimit]: a misconfigured soft target is corrected rather than
// rejected, since the purge path must never fail.
func purgeTarget(totalCost, costLimit, preferred int64) int64 {
	if costLimit == NoLimit {
		return 0
	}
	if preferred > costLimit || preferred == NoLimit {
		preferred = costLimit
	}
	if preferred < 0 {
		preferred = 0
	}
	if totalCost <= preferred {
		return 0
	}
	return totalCost - preferred
}
