package signals

import (
	"sync"

	"github.com/google/uuid"
)

// Hub fans signals out to subscribers.
//
// Thread safety: all methods may be called concurrently. Publish snapshots
// the subscriber set under a read lock and then delivers outside it, so
// handlers may freely Subscribe or Unsubscribe.
type Hub struct {
	mu   sync.RWMutex
	subs map[Signal]map[string]Handler
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[Signal]map[string]Handler)}
}

// Subscribe registers fn for sig and returns an opaque token for
// Unsubscribe.
func (h *Hub) Subscribe(sig Signal, fn Handler) string {
	token := uuid.New().String()

	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.subs[sig]
	if m == nil {
		m = make(map[string]Handler)
		h.subs[sig] = m
	}
	m[token] = fn
	return token
}

// Unsubscribe removes a subscription. Unknown tokens are ignored.
func (h *Hub) Unsubscribe(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.subs {
		delete(m, token)
	}
}

// Publish delivers sig to every current subscriber. Each handler runs on
// its own goroutine: a slow or panicking subscriber cannot hold up the
// publisher or its peers. Delivery order across subscribers is unspecified.
func (h *Hub) Publish(sig Signal) {
	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.subs[sig]))
	for _, fn := range h.subs[sig] {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn := fn
		go func() {
			defer func() { _ = recover() }()
			fn(sig)
		}()
	}
}
