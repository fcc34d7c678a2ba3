package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expiryRecorder struct {
	mu      sync.Mutex
	expired []string
}

func (r *expiryRecorder) record(conversationID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired = append(r.expired, conversationID+"|"+userID)
}

func (r *expiryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.expired)
}

func TestTypingTrackerPulse(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := newTypingTracker(20*time.Millisecond, rec.record)

	assert.True(t, tracker.Pulse("a_b", "alice"), "first pulse starts an episode")
	assert.False(t, tracker.Pulse("a_b", "alice"), "repeat pulse only resets the timer")

	require.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 5*time.Millisecond)

	// A new pulse after expiry starts a fresh episode.
	assert.True(t, tracker.Pulse("a_b", "alice"))
}

func TestTypingTrackerPulseResetsExpiry(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := newTypingTracker(40*time.Millisecond, rec.record)

	tracker.Pulse("a_b", "alice")
	// Keep typing; the indicator must not clear between pulses.
	for i := 0; i < 3; i++ {
		time.Sleep(20 * time.Millisecond)
		tracker.Pulse("a_b", "alice")
		assert.Zero(t, rec.count())
	}

	require.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestTypingTrackerStop(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := newTypingTracker(20*time.Millisecond, rec.record)

	tracker.Pulse("a_b", "alice")
	assert.True(t, tracker.Stop("a_b", "alice"))
	assert.False(t, tracker.Stop("a_b", "alice"), "no episode left to stop")

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, rec.count(), "stopped episodes never fire the callback")
}

func TestTypingTrackerStopUser(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := newTypingTracker(time.Minute, rec.record)

	tracker.Pulse("a_b", "alice")
	tracker.Pulse("a_c", "alice")
	tracker.Pulse("a_b", "bob")

	conversations := tracker.StopUser("alice")
	assert.ElementsMatch(t, []string{"a_b", "a_c"}, conversations)

	// Bob's episode is untouched.
	assert.True(t, tracker.Stop("a_b", "bob"))
}

func TestTypingTrackerIndependentKeys(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := newTypingTracker(20*time.Millisecond, rec.record)

	assert.True(t, tracker.Pulse("a_b", "alice"))
	assert.True(t, tracker.Pulse("a_b", "bob"), "per-user episodes are independent")

	require.Eventually(t, func() bool { return rec.count() == 2 },
		time.Second, 5*time.Millisecond)
}
