// pkg/widget/session.go
package widget

import "sync"

// Event names the local notifications the host page can subscribe to.
type Event string

const (
	EventReady Event = "ready"
	EventEnd   Event = "end"
)

// Listener receives a local widget event with its payload, if any.
type Listener func(data map[string]any)

// Session is a point-in-time view of widget state. Invalid (no frame) before
// the first Open and after Close.
type Session struct {
	Open         bool
	EngineLoaded bool
	Metadata     map[string]any
}

// emitter is the On/Off listener table. Listeners are keyed by the token On
// returns, since Go functions have no usable identity for an off-by-callback
// surface.
type emitter struct {
	mu        sync.Mutex
	nextToken int
	listeners map[Event]map[int]Listener
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[Event]map[int]Listener)}
}

func (e *emitter) on(ev Event, fn Listener) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextToken++
	m, ok := e.listeners[ev]
	if !ok {
		m = make(map[int]Listener)
		e.listeners[ev] = m
	}
	m[e.nextToken] = fn
	return e.nextToken
}

func (e *emitter) off(ev Event, token int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.listeners[ev], token)
}

func (e *emitter) emit(ev Event, data map[string]any) {
	e.mu.Lock()
	fns := make([]Listener, 0, len(e.listeners[ev]))
	for _, fn := range e.listeners[ev] {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(data)
	}
}
