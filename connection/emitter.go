package connection

import "sync"

// Handler is a function invoked with an event's payload
type Handler func(data any)

type handlerEntry struct {
	id int
	fn Handler
}

// Emitter is a minimal event emitter. Connection composes one instead of
// embedding it, so consumers only ever see Subscribe/Emit and listener
// lifetime stays under the connection's control.
type Emitter struct {
	mu      sync.Mutex
	nextID  int
	entries map[string][]handlerEntry
}

// NewEmitter creates a new emitter
func NewEmitter() *Emitter {
	return &Emitter{
		entries: make(map[string][]handlerEntry),
	}
}

// On registers a handler for an event and returns a function that removes it.
// The returned function is safe to call more than once.
func (e *Emitter) On(event string, fn Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.entries[event] = append(e.entries[event], handlerEntry{id: id, fn: fn})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		entries := e.entries[event]
		for i, entry := range entries {
			if entry.id == id {
				e.entries[event] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Emit invokes every handler registered for the event, synchronously and in
// registration order.
func (e *Emitter) Emit(event string, data any) {
	e.mu.Lock()
	entries := make([]handlerEntry, len(e.entries[event]))
	copy(entries, e.entries[event])
	e.mu.Unlock()

	for _, entry := range entries {
		entry.fn(data)
	}
}

// RemoveAllListeners drops every registered handler
func (e *Emitter) RemoveAllListeners() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.entries = make(map[string][]handlerEntry)
}

// ListenerCount returns the number of handlers registered for an event
func (e *Emitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.entries[event])
}
