package calls

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityz/backend/pkg/apperrors"
	"github.com/communityz/backend/pkg/models"
)

func testCall() *models.Call {
	return &models.Call{
		ID:         "call-1",
		CallerID:   "alice",
		ReceiverID: "bob",
		MediaType:  models.MediaAudio,
		Status:     models.CallStatusCalling,
	}
}

func TestSessionBuffersCandidatesWhileRinging(t *testing.T) {
	sess := newSession(testCall())
	candidate := json.RawMessage(`{"candidate":"a=candidate:1"}`)

	forward, err := sess.bufferOrForward("alice", candidate)
	require.NoError(t, err)
	assert.False(t, forward, "candidates must be queued before accept")

	forward, err = sess.bufferOrForward("alice", candidate)
	require.NoError(t, err)
	assert.False(t, forward)
	forward, err = sess.bufferOrForward("bob", candidate)
	require.NoError(t, err)
	assert.False(t, forward)

	drained := sess.drainPending()
	assert.Len(t, drained["alice"], 2)
	assert.Len(t, drained["bob"], 1)

	// Second drain is empty; candidates are delivered exactly once.
	assert.Empty(t, sess.drainPending())
}

func TestSessionForwardsCandidatesOnceAccepted(t *testing.T) {
	sess := newSession(testCall())
	require.NoError(t, sess.transition(models.CallStatusAccepted))

	forward, err := sess.bufferOrForward("bob", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, forward, "candidates relay immediately after accept")
	assert.Empty(t, sess.drainPending())
}

func TestSessionRejectsCandidateAfterTeardown(t *testing.T) {
	sess := newSession(testCall())
	require.True(t, sess.teardown())

	forward, err := sess.bufferOrForward("alice", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.False(t, forward)
	assert.True(t, apperrors.Is(err, apperrors.CodeFailedPrecondition))
}

func TestSessionTransitionMirrorsCallRecord(t *testing.T) {
	sess := newSession(testCall())

	require.NoError(t, sess.transition(models.CallStatusAccepted))
	assert.Equal(t, models.CallStatusAccepted, sess.Status())
	assert.Equal(t, models.CallStatusAccepted, sess.Call().Status)

	err := sess.transition(models.CallStatusDeclined)
	require.Error(t, err)
	assert.Equal(t, models.CallStatusAccepted, sess.Call().Status)
}

func TestSessionTeardownIdempotent(t *testing.T) {
	sess := newSession(testCall())

	assert.True(t, sess.teardown())
	assert.False(t, sess.teardown())
}

func TestSessionDuration(t *testing.T) {
	sess := newSession(testCall())
	assert.Equal(t, time.Duration(0), sess.Duration(), "no duration before media connects")

	sess.markConnected()
	first := sess.connectedAt
	sess.markConnected()
	assert.Equal(t, first, sess.connectedAt, "only the first connected report counts")

	sess.teardown()
	assert.GreaterOrEqual(t, sess.Duration(), time.Duration(0))
}

func TestSessionRingTimerStoppedAfterTeardown(t *testing.T) {
	sess := newSession(testCall())
	sess.teardown()

	fired := make(chan struct{}, 1)
	sess.setRingTimer(time.AfterFunc(10*time.Millisecond, func() {
		fired <- struct{}{}
	}))

	select {
	case <-fired:
		t.Fatal("ring timer fired on a torn-down session")
	case <-time.After(50 * time.Millisecond):
	}
}
