// Package bus is an in-process, room-scoped publish/subscribe layer.
// Delivery is synchronous, at-most-once and best-effort: a publish call
// hands the event to every handler currently subscribed to the room, in
// publish order, with no queue and no replay. Clients that were offline
// when an event fired must refresh on reconnect.
package bus

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ihor-metko/courtflow/internal/observability"
)

// Event types pushed to realtime clients.
const (
	EventReservationCreated  = "reservation:created"
	EventReservationUpdated  = "reservation:updated"
	EventReservationDeleted  = "reservation:deleted"
	EventAvailabilityChanged = "availability:changed"
	EventConnectionReady     = "connection:ready"
)

// Event is a single broadcast message. Payload carries the full updated
// entity; ClubID identifies the tenant scope for room targeting.
type Event struct {
	Type    string      `json:"type"`
	Room    string      `json:"room"`
	ClubID  string      `json:"clubId,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
}

// Handler receives events for the rooms a subscription covers. Handlers
// run on the publisher's goroutine and should hand work off quickly.
type Handler func(Event)

// Bus fans events out to subscribed handlers. The zero value is not
// usable; construct with New. A Bus is owned by the composition root and
// passed explicitly to whatever needs to publish or subscribe.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	rooms  map[string]map[int]Handler
}

func New() *Bus {
	return &Bus{rooms: make(map[string]map[int]Handler)}
}

// Subscribe registers fn for every room in rooms and returns a function
// that removes the whole subscription. Duplicate room names collapse to a
// single registration.
func (b *Bus) Subscribe(rooms []string, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	joined := make([]string, 0, len(rooms))
	seen := make(map[string]struct{}, len(rooms))
	for _, room := range rooms {
		if room == "" {
			continue
		}
		if _, dup := seen[room]; dup {
			continue
		}
		seen[room] = struct{}{}
		joined = append(joined, room)

		handlers := b.rooms[room]
		if handlers == nil {
			handlers = make(map[int]Handler)
			b.rooms[room] = handlers
		}
		handlers[id] = fn
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, room := range joined {
			if handlers := b.rooms[room]; handlers != nil {
				delete(handlers, id)
				if len(handlers) == 0 {
					delete(b.rooms, room)
				}
			}
		}
	}
}

// Unsubscribe removes every handler from a single room. Connections
// normally tear themselves down via the function Subscribe returned; this
// exists for administratively closing a room.
func (b *Bus) Unsubscribe(room string) {
	b.mu.Lock()
	delete(b.rooms, room)
	b.mu.Unlock()
}

// Publish delivers ev to every handler subscribed to room. A panicking
// handler is logged and isolated: it never prevents delivery to the other
// subscribers and never crashes the publisher.
func (b *Bus) Publish(room string, ev Event) {
	ev.Room = room
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.rooms[room]))
	for _, fn := range b.rooms[room] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	observability.EventsPublished.WithLabelValues(ev.Type).Inc()

	for _, fn := range handlers {
		deliver(fn, ev)
	}
}

func deliver(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("room", ev.Room).
				Str("event_type", ev.Type).
				Interface("panic", r).
				Msg("Event handler panicked")
		}
	}()
	fn(ev)
}
