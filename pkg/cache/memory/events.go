package memory

import "sync"

// EventKind names a cache notification.
type EventKind string

const (
	EventHit     EventKind = "hit"
	EventMiss    EventKind = "miss"
	EventExpired EventKind = "expired"
	EventSet     EventKind = "set"
	EventEvicted EventKind = "evicted"
	EventCleanup EventKind = "cleanup"
	EventCleared EventKind = "cleared"
	EventError   EventKind = "error"
)

// Event is one cache notification. Count is set for cleanup and cleared
// events, Err for error events.
type Event struct {
	Kind  EventKind
	Key   string
	Count int
	Err   error
}

// Listener receives cache events synchronously on the goroutine that
// caused them. No cache lock is held while listeners run.
type Listener func(Event)

type emitter struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
}

// Subscribe registers l and returns a function that removes it.
func (c *Cache) Subscribe(l Listener) (unsubscribe func()) {
	return c.events.add(l)
}

func (e *emitter) add(l Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[int]Listener)
	}
	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

func (e *emitter) emit(ev Event) {
	e.mu.RLock()
	if len(e.listeners) == 0 {
		e.mu.RUnlock()
		return
	}
	ls := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		ls = append(ls, l)
	}
	e.mu.RUnlock()

	for _, l := range ls {
		l(ev)
	}
}

func (e *emitter) reset() {
	e.mu.Lock()
	e.listeners = nil
	e.mu.Unlock()
}
