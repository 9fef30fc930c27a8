package cache

import "time"

// noSlot marks an empty link or a missing lookup.
const noSlot = -1

// slot is one cache entry plus its position in the access-order list.
// prev/next are indices into the arena rather than pointers, so relinking
// stays O(1) and a stale index can never dangle.
type slot struct {
	key        string
	value      any
	cost       int64
	lastAccess time.Time
	prev, next int
}

// released is an entry detached from the list whose payload still has to be
// handed to the release path. Once detached, the payload is the release
// side's exclusive responsibility.
type released struct {
	key   string
	value any
	cost  int64
}

// accessList keeps entries ordered from most recently used (head) to least
// recently used (tail), with an O(1) key index and running cost total.
//
// Not safe for concurrent use: the owning Cache serializes all access under
// its mutex.
type accessList struct {
	slots []slot
	free  []int
	index map[string]int // key -> arena slot

	head, tail int
	totalCost  int64
}

func newAccessList() *accessList {
	return &accessList{
		index: make(map[string]int),
		head:  noSlot,
		tail:  noSlot,
	}
}

// len returns the number of live entries.
func (l *accessList) len() int { return len(l.index) }

// lookup returns the slot index for key, or noSlot.
func (l *accessList) lookup(key string) int {
	if i, ok := l.index[key]; ok {
		return i
	}
	return noSlot
}

// insertAtHead adds a brand-new entry as the most recently used.
// The key must not already be present.
func (l *accessList) insertAtHead(key string, value any, cost int64, now time.Time) int {
	var i int
	if n := len(l.free); n > 0 {
		i = l.free[n-1]
		l.free = l.free[:n-1]
	} else {
		l.slots = append(l.slots, slot{})
		i = len(l.slots) - 1
	}

	l.slots[i] = slot{
		key:        key,
		value:      value,
		cost:       cost,
		lastAccess: now,
		prev:       noSlot,
		next:       l.head,
	}
	if l.head != noSlot {
		l.slots[l.head].prev = i
	}
	l.head = i
	if l.tail == noSlot {
		l.tail = i
	}

	l.index[key] = i
	l.totalCost += cost
	return i
}

// update replaces the payload of slot i, adjusting the cost total by the
// delta, and marks the entry most recently used.
func (l *accessList) update(i int, value any, cost int64, now time.Time) {
	s := &l.slots[i]
	l.totalCost += cost - s.cost
	s.value = value
	s.cost = cost
	s.lastAccess = now
	l.moveToHead(i)
}

// touch records an access: bumps lastAccess and promotes the entry to head.
// Returns the stored value.
func (l *accessList) touch(i int, now time.Time) any {
	s := &l.slots[i]
	s.lastAccess = now
	l.moveToHead(i)
	return s.value
}

// moveToHead relinks slot i as the most recently used. No-op at head.
func (l *accessList) moveToHead(i int) {
	if i == l.head {
		return
	}
	l.unlink(i)
	s := &l.slots[i]
	s.next = l.head
	if l.head != noSlot {
		l.slots[l.head].prev = i
	}
	l.head = i
	if l.tail == noSlot {
		l.tail = i
	}
}

// remove unlinks slot i from the list and the key index and returns the
// orphaned entry.
func (l *accessList) remove(i int) released {
	l.unlink(i)
	s := &l.slots[i]
	out := released{key: s.key, value: s.value, cost: s.cost}

	delete(l.index, s.key)
	l.totalCost -= s.cost
	// Drop the value reference now; the slot may sit on the free list for a
	// long time.
	*s = slot{prev: noSlot, next: noSlot}
	l.free = append(l.free, i)
	return out
}

// removeTail evicts the least recently used entry, if any.
func (l *accessList) removeTail() (released, bool) {
	if l.tail == noSlot {
		return released{}, false
	}
	return l.remove(l.tail), true
}

// tailIdleTime reports how long the least recently used entry has been idle.
func (l *accessList) tailIdleTime(now time.Time) (time.Duration, bool) {
	if l.tail == noSlot {
		return 0, false
	}
	return now.Sub(l.slots[l.tail].lastAccess), true
}

// unlink detaches slot i from its neighbors. Index and totals are untouched.
func (l *accessList) unlink(i int) {
	s := &l.slots[i]
	if s.prev != noSlot {
		l.slots[s.prev].next = s.next
	} else {
		l.head = s.next
	}
	if s.next != noSlot {
		l.slots[s.next].prev = s.prev
	} else {
		l.tail = s.prev
	}
	s.prev, s.next = noSlot, noSlot
}

// detachedArena holds the previous backing store after a clear. Walking the
// live entries is O(n) and is the receiver's job, off the caller's hot path.
type detachedArena struct {
	slots []slot
	head  int
	count int
	cost  int64
}

// clear resets the list and index in O(1) by swapping the backing store
// wholesale. The returned arena is the caller's to release.
func (l *accessList) clear() *detachedArena {
	old := &detachedArena{
		slots: l.slots,
		head:  l.head,
		count: len(l.index),
		cost:  l.totalCost,
	}
	l.slots = nil
	l.free = nil
	l.index = make(map[string]int)
	l.head, l.tail = noSlot, noSlot
	l.totalCost = 0
	return old
}

// drain walks the detached entries in former MRU order.
func (a *detachedArena) drain() []released {
	out := make([]released, 0, a.count)
	for i := a.head; i != noSlot; i = a.slots[i].next {
		s := &a.slots[i]
		out = append(out, released{key: s.key, value: s.value, cost: s.cost})
	}
	return out
}
