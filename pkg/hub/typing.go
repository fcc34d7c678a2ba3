package hub

import (
	"sync"
	"time"
)

// typingTracker holds one expiry timer per conversation+user pair. A pulse
// while a timer is pending resets it instead of stacking a second timer, so
// rapid keystrokes produce exactly one expiry callback.
type typingTracker struct {
	mu     sync.Mutex
	ttl    time.Duration
	timers map[string]*time.Timer
	expire func(conversationID, userID string)
}

func newTypingTracker(ttl time.Duration, expire func(conversationID, userID string)) *typingTracker {
	return &typingTracker{
		ttl:    ttl,
		timers: make(map[string]*time.Timer),
		expire: expire,
	}
}

func typingKey(conversationID, userID string) string {
	return conversationID + "|" + userID
}

// Pulse records typing activity. It returns true when this pulse started a new
// typing episode (no timer was pending), which is when a typing=true frame
// should be fanned out.
func (t *typingTracker) Pulse(conversationID, userID string) bool {
	key := typingKey(conversationID, userID)
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[key]; ok {
		timer.Reset(t.ttl)
		return false
	}
	t.timers[key] = time.AfterFunc(t.ttl, func() {
		t.mu.Lock()
		delete(t.timers, key)
		t.mu.Unlock()
		t.expire(conversationID, userID)
	})
	return true
}

// Stop cancels a pending episode without firing the expiry callback. Returns
// true if an episode was active.
func (t *typingTracker) Stop(conversationID, userID string) bool {
	key := typingKey(conversationID, userID)
	t.mu.Lock()
	defer t.mu.Unlock()

	timer, ok := t.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(t.timers, key)
	return true
}

// StopUser cancels every pending episode for a user and returns the
// conversation IDs that were active. Used when the user's last connection
// drops so peers are not left with a stuck indicator.
func (t *typingTracker) StopUser(userID string) []string {
	suffix := "|" + userID
	t.mu.Lock()
	defer t.mu.Unlock()

	var conversations []string
	for key, timer := range t.timers {
		if len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix {
			timer.Stop()
			delete(t.timers, key)
			conversations = append(conversations, key[:len(key)-len(suffix)])
		}
	}
	return conversations
}
