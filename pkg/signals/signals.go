// Package signals delivers process-wide memory-pressure and lifecycle
// events to subscribers. It is the in-process stand-in for whatever the host
// platform provides (malloc pressure hooks, app lifecycle callbacks): the
// application bridges those sources into a Hub, and components such as the
// cache subscribe to react. Events carry no payload beyond the signal
// itself.
package signals

// Signal identifies one external condition subscribers can react to.
type Signal int

const (
	// LowMemory indicates the host is under memory pressure.
	LowMemory Signal = iota
	// EnteredBackground indicates the application moved to the background.
	EnteredBackground
)

func (s Signal) String() string {
	switch s {
	case LowMemory:
		return "low-memory"
	case EnteredBackground:
		return "entered-background"
	default:
		return "unknown"
	}
}

// Handler receives a published signal. Handlers run on their own goroutine;
// a panicking handler is isolated and does not affect other subscribers or
// the publisher.
type Handler func(Signal)
