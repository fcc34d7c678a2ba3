// Package events is the in-process event bus between the domain layer and the
// WebSocket hub. Stores and services publish typed domain events; the hub
// subscribes and maps them to wire frames. Delivery is synchronous and
// in-order per publisher.
package events

import (
	"sync"
)

type Type string

const (
	TypeMessageStored         Type = "message.stored"
	TypeMessageRead           Type = "message.read"
	TypePresenceChanged       Type = "presence.changed"
	TypeTypingChanged         Type = "typing.changed"
	TypeFriendRequestCreated  Type = "friend_request.created"
	TypeFriendRequestResolved Type = "friend_request.resolved"
	TypeUserBlocked           Type = "user.blocked"
	TypeSessionRevoked        Type = "session.revoked"
	TypeCallSignal            Type = "call.signal"
)

type Event interface {
	EventType() Type
}

type Handler func(Event)

// Bus is a typed publish/subscribe registry. The zero value is not usable;
// construct with NewBus.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Type]map[int]Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Type]map[int]Handler)}
}

// Subscribe registers h for events of type t and returns an unsubscribe
// function. Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(t Type, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[t] == nil {
		b.subs[t] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[t][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[t], id)
	}
}

// Publish delivers e to every handler subscribed to its type. Handlers run on
// the publisher's goroutine; they must not block.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[e.EventType()]))
	for _, h := range b.subs[e.EventType()] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}
