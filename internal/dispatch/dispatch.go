// Package dispatch routes native-originated events to registered callback
// slots. Each event kind has at most one active handler; registering again
// replaces the previous handler instead of queueing behind it.
package dispatch

import (
	"log"
	"sync"

	"google.golang.org/protobuf/types/known/structpb"
)

// Handler receives one event payload. Handlers run on the session's delivery
// goroutine, so they must not block for long.
type Handler func(payload *structpb.Struct)

type slot struct {
	id      uint64
	handler Handler
}

// Dispatcher holds the callback slots for one session.
type Dispatcher struct {
	mu     sync.Mutex
	slots  map[string]slot
	nextID uint64
	closed bool
	logger *log.Logger
}

// New creates an empty dispatcher.
func New(logger *log.Logger) *Dispatcher {
	return &Dispatcher{slots: make(map[string]slot), logger: logger}
}

// Subscription identifies one registration. Cancel removes the handler only
// if it is still the active one, so a stale handle cannot unregister its
// replacement.
type Subscription struct {
	d    *Dispatcher
	kind string
	id   uint64
}

// Cancel unregisters the handler if it is still current.
func (s *Subscription) Cancel() {
	if s == nil || s.d == nil {
		return
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if cur, ok := s.d.slots[s.kind]; ok && cur.id == s.id {
		delete(s.d.slots, s.kind)
	}
}

// Register installs h as the handler for the given event kind, replacing any
// previous handler. A dispatch racing the replacement observes either the
// old or the new handler, never both and never neither-while-registered.
func (d *Dispatcher) Register(kind string, h Handler) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return &Subscription{}
	}
	d.nextID++
	d.slots[kind] = slot{id: d.nextID, handler: h}
	return &Subscription{d: d, kind: kind, id: d.nextID}
}

// Dispatch delivers an event to the slot for its kind. Events with no
// registered slot, and all events after Close, are silently discarded.
func (d *Dispatcher) Dispatch(kind string, payload *structpb.Struct) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	cur, ok := d.slots[kind]
	d.mu.Unlock()
	if !ok {
		if d.logger != nil {
			d.logger.Printf("[Dispatcher] no slot for event %q, dropping", kind)
		}
		return
	}
	cur.handler(payload)
}

// Close makes every slot inert. Terminal and idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.slots = make(map[string]slot)
}
