package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityz/backend/pkg/models"
)

func TestBusDeliversToMatchingSubscribers(t *testing.T) {
	bus := NewBus()

	var stored []MessageStored
	bus.Subscribe(TypeMessageStored, func(e Event) {
		stored = append(stored, e.(MessageStored))
	})

	var reads int
	bus.Subscribe(TypeMessageRead, func(e Event) { reads++ })

	msg := &models.Message{ID: "m1", ConversationID: "a_b"}
	bus.Publish(MessageStored{Message: msg})
	bus.Publish(MessageStored{Message: msg})

	require.Len(t, stored, 2)
	assert.Equal(t, "m1", stored[0].Message.ID)
	assert.Zero(t, reads, "handlers only see their subscribed type")
}

func TestBusMultipleSubscribers(t *testing.T) {
	bus := NewBus()

	var a, b int
	bus.Subscribe(TypeUserBlocked, func(Event) { a++ })
	bus.Subscribe(TypeUserBlocked, func(Event) { b++ })

	bus.Publish(UserBlocked{BlockerID: "x", BlockedID: "y"})

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	var calls int
	unsub := bus.Subscribe(TypePresenceChanged, func(Event) { calls++ })

	bus.Publish(PresenceChanged{Presence: models.UserPresence{UserID: "u"}})
	unsub()
	bus.Publish(PresenceChanged{Presence: models.UserPresence{UserID: "u"}})
	unsub() // second unsubscribe is a no-op

	assert.Equal(t, 1, calls)
}

func TestBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Publish(TypingChanged{Indicator: models.TypingIndicator{UserID: "u"}})
	})
}

func TestBusConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	var count int
	bus.Subscribe(TypeCallSignal, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(CallSignal{TargetUserID: "u", Kind: "call.status"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, count)
}
