package bus

import (
	"sync"
	"time"
)

// Kind identifies a webapp lifecycle event. The set is closed; handlers are
// registered per kind rather than through open-ended dynamic dispatch.
type Kind string

const (
	// KindServing fires once the main app listener is accepting connections.
	KindServing Kind = "SERVING"
	// KindZipServing fires once the zip-content listener is accepting
	// connections.
	KindZipServing Kind = "ZIP_SERVING"
	// KindStop fires once the webapp has gone idle.
	KindStop Kind = "STOP"
)

// Event is one lifecycle notification. Port is meaningful for the serving
// kinds only.
type Event struct {
	Kind Kind
	Port int
	At   time.Time
}

// Bus dispatches webapp lifecycle events to registered handlers. Handlers
// run synchronously on the publishing goroutine, which is never the
// supervisor's command loop. A small ring of recent events is kept for
// diagnostics.
type Bus struct {
	mu       sync.Mutex
	handlers map[Kind][]func(Event)

	ring  []Event
	start int
	size  int
}

func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 16
	}
	return &Bus{
		handlers: make(map[Kind][]func(Event)),
		ring:     make([]Event, capacity),
	}
}

// Subscribe registers a handler for one event kind. Handlers fire in
// registration order.
func (b *Bus) Subscribe(kind Kind, fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], fn)
}

// Publish records the event and invokes its handlers on the caller's
// goroutine. The handler list is snapshotted first so a handler may
// subscribe or publish without deadlocking.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.Lock()
	b.pushLocked(ev)
	fns := make([]func(Event), len(b.handlers[ev.Kind]))
	copy(fns, b.handlers[ev.Kind])
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Recent returns buffered events, oldest-first.
func (b *Bus) Recent() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Event, 0, b.size)
	for i := 0; i < b.size; i++ {
		out = append(out, b.ring[(b.start+i)%len(b.ring)])
	}
	return out
}

func (b *Bus) pushLocked(ev Event) {
	capacity := len(b.ring)
	if b.size < capacity {
		b.ring[(b.start+b.size)%capacity] = ev
		b.size++
		return
	}

	// Overwrite oldest.
	b.ring[b.start] = ev
	b.start = (b.start + 1) % capacity
}
