package calls

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityz/backend/pkg/apperrors"
	"github.com/communityz/backend/pkg/events"
	"github.com/communityz/backend/pkg/models"
)

type fakeSignalStore struct {
	mu         sync.Mutex
	blocked    bool
	users      map[string]*models.User
	answers    map[string]json.RawMessage
	declined   []string
	ended      []string
	candidates []models.CallCandidate

	// onAddCandidate, when set, runs before the candidate is stored. Used to
	// interleave a concurrent call end with an in-flight candidate.
	onAddCandidate func(callID string)
}

func newFakeSignalStore() *fakeSignalStore {
	return &fakeSignalStore{
		users: map[string]*models.User{
			"alice": {ID: "alice", Username: "alice", DisplayName: "Alice"},
			"bob":   {ID: "bob", Username: "bob", DisplayName: "Bob"},
		},
		answers: make(map[string]json.RawMessage),
	}
}

func (f *fakeSignalStore) CreateCall(call *models.Call) error {
	call.ID = uuid.New().String()
	call.Status = models.CallStatusCalling
	call.CreatedAt = time.Now()
	return nil
}

func (f *fakeSignalStore) SetCallAnswer(callID string, answer json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[callID] = answer
	return nil
}

func (f *fakeSignalStore) MarkCallDeclined(callID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declined = append(f.declined, callID)
	return nil
}

func (f *fakeSignalStore) MarkCallEnded(callID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, callID)
	return true, nil
}

func (f *fakeSignalStore) AddCallCandidate(callID, ownerID string, candidate json.RawMessage) (*models.CallCandidate, error) {
	if f.onAddCandidate != nil {
		f.onAddCandidate(callID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	record := models.CallCandidate{
		ID: uuid.New().String(), CallID: callID, OwnerID: ownerID, Candidate: candidate,
	}
	f.candidates = append(f.candidates, record)
	return &record, nil
}

func (f *fakeSignalStore) IsBlockedEither(a, b string) (bool, error) {
	return f.blocked, nil
}

func (f *fakeSignalStore) GetUserByID(userID string) (*models.User, error) {
	return f.users[userID], nil
}

func (f *fakeSignalStore) endedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ended)
}

// signalRecorder collects every CallSignal published on the bus.
type signalRecorder struct {
	mu      sync.Mutex
	signals []events.CallSignal
}

func (r *signalRecorder) record(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, e.(events.CallSignal))
}

func (r *signalRecorder) all() []events.CallSignal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.CallSignal, len(r.signals))
	copy(out, r.signals)
	return out
}

func (r *signalRecorder) ofKind(kind string) []events.CallSignal {
	var out []events.CallSignal
	for _, s := range r.all() {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func newTestManager(t *testing.T, store *fakeSignalStore, ringTimeout time.Duration) (*Manager, *signalRecorder) {
	t.Helper()
	bus := events.NewBus()
	rec := &signalRecorder{}
	bus.Subscribe(events.TypeCallSignal, rec.record)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(store, bus, ringTimeout, logger), rec
}

func validInitiate() InitiateRequest {
	return InitiateRequest{
		ReceiverID: "bob",
		MediaType:  models.MediaVideo,
		Offer:      json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
	}
}

func TestManagerInitiate(t *testing.T) {
	t.Run("rings the receiver", func(t *testing.T) {
		m, rec := newTestManager(t, newFakeSignalStore(), time.Minute)

		call, err := m.Initiate("alice", validInitiate())
		require.NoError(t, err)
		require.NotEmpty(t, call.ID)
		assert.Equal(t, models.CallStatusCalling, call.Status)
		assert.Equal(t, call.ID, m.ActiveCallID("alice"))
		assert.Equal(t, call.ID, m.ActiveCallID("bob"))

		incoming := rec.ofKind(FrameIncoming)
		require.Len(t, incoming, 1)
		assert.Equal(t, "bob", incoming[0].TargetUserID)

		var payload IncomingCallPayload
		require.NoError(t, json.Unmarshal(incoming[0].Payload, &payload))
		assert.Equal(t, call.ID, payload.CallID)
		assert.Equal(t, "Alice", payload.CallerName)
		assert.NotEmpty(t, payload.Offer)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		m, _ := newTestManager(t, newFakeSignalStore(), time.Minute)

		_, err := m.Initiate("alice", InitiateRequest{ReceiverID: "alice", MediaType: models.MediaAudio, Offer: json.RawMessage(`{}`)})
		assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))

		_, err = m.Initiate("alice", InitiateRequest{ReceiverID: "bob", MediaType: "screen", Offer: json.RawMessage(`{}`)})
		assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))

		_, err = m.Initiate("alice", InitiateRequest{ReceiverID: "bob", MediaType: models.MediaAudio})
		assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
	})

	t.Run("rejects blocked pair", func(t *testing.T) {
		store := newFakeSignalStore()
		store.blocked = true
		m, _ := newTestManager(t, store, time.Minute)

		_, err := m.Initiate("alice", validInitiate())
		assert.Equal(t, apperrors.CodeBlocked, apperrors.CodeOf(err))
	})

	t.Run("rejects while either side is busy", func(t *testing.T) {
		store := newFakeSignalStore()
		store.users["carol"] = &models.User{ID: "carol", Username: "carol", DisplayName: "Carol"}
		m, _ := newTestManager(t, store, time.Minute)

		_, err := m.Initiate("alice", validInitiate())
		require.NoError(t, err)

		_, err = m.Initiate("alice", InitiateRequest{
			ReceiverID: "carol", MediaType: models.MediaAudio, Offer: json.RawMessage(`{}`),
		})
		assert.Equal(t, apperrors.CodeCallInProgress, apperrors.CodeOf(err))

		_, err = m.Initiate("carol", InitiateRequest{
			ReceiverID: "bob", MediaType: models.MediaAudio, Offer: json.RawMessage(`{}`),
		})
		assert.Equal(t, apperrors.CodeCallInProgress, apperrors.CodeOf(err))
	})
}

func TestManagerAccept(t *testing.T) {
	t.Run("relays answer and flushes buffered candidates", func(t *testing.T) {
		store := newFakeSignalStore()
		m, rec := newTestManager(t, store, time.Minute)

		call, err := m.Initiate("alice", validInitiate())
		require.NoError(t, err)

		// Early candidates from both sides arrive while still ringing.
		require.NoError(t, m.Candidate("alice", call.ID, json.RawMessage(`{"c":1}`)))
		require.NoError(t, m.Candidate("bob", call.ID, json.RawMessage(`{"c":2}`)))
		assert.Empty(t, rec.ofKind(FrameCandidate), "candidates must not relay before accept")

		answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
		require.NoError(t, m.Accept("bob", call.ID, answer))

		answers := rec.ofKind(FrameAnswer)
		require.Len(t, answers, 1)
		assert.Equal(t, "alice", answers[0].TargetUserID)

		flushed := rec.ofKind(FrameCandidate)
		require.Len(t, flushed, 2)
		targets := map[string]int{}
		for _, s := range flushed {
			targets[s.TargetUserID]++
		}
		// Alice's early candidate goes to Bob and vice versa.
		assert.Equal(t, map[string]int{"alice": 1, "bob": 1}, targets)

		// Candidates after accept relay immediately.
		require.NoError(t, m.Candidate("alice", call.ID, json.RawMessage(`{"c":3}`)))
		assert.Len(t, rec.ofKind(FrameCandidate), 3)
	})

	t.Run("only the receiver can accept", func(t *testing.T) {
		m, _ := newTestManager(t, newFakeSignalStore(), time.Minute)
		call, err := m.Initiate("alice", validInitiate())
		require.NoError(t, err)

		err = m.Accept("alice", call.ID, json.RawMessage(`{}`))
		assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))
	})

	t.Run("unknown call", func(t *testing.T) {
		m, _ := newTestManager(t, newFakeSignalStore(), time.Minute)
		err := m.Accept("bob", "missing", json.RawMessage(`{}`))
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	})
}

func TestManagerDecline(t *testing.T) {
	store := newFakeSignalStore()
	m, rec := newTestManager(t, store, time.Minute)

	call, err := m.Initiate("alice", validInitiate())
	require.NoError(t, err)

	require.NoError(t, m.Decline("bob", call.ID, models.EndReasonMediaAccessDenied))

	statuses := rec.ofKind(FrameStatus)
	require.Len(t, statuses, 1)
	assert.Equal(t, "alice", statuses[0].TargetUserID)

	var payload StatusPayload
	require.NoError(t, json.Unmarshal(statuses[0].Payload, &payload))
	assert.Equal(t, models.CallStatusDeclined, payload.Status)
	assert.Equal(t, models.EndReasonMediaAccessDenied, payload.Reason)

	assert.Empty(t, m.ActiveCallID("alice"))
	assert.Empty(t, m.ActiveCallID("bob"))
	assert.Equal(t, []string{call.ID}, store.declined)
}

func TestManagerEnd(t *testing.T) {
	t.Run("notifies both sides once", func(t *testing.T) {
		store := newFakeSignalStore()
		m, rec := newTestManager(t, store, time.Minute)

		call, err := m.Initiate("alice", validInitiate())
		require.NoError(t, err)
		require.NoError(t, m.Accept("bob", call.ID, json.RawMessage(`{"sdp":"a"}`)))
		require.NoError(t, m.ReportState("alice", call.ID, "connected"))

		require.NoError(t, m.End("alice", call.ID, models.EndReasonHangup))
		assert.Len(t, rec.ofKind(FrameStatus), 2)
		assert.Equal(t, 1, store.endedCount())

		// Second end is the idempotent no-op.
		require.NoError(t, m.End("bob", call.ID, models.EndReasonHangup))
		assert.Len(t, rec.ofKind(FrameStatus), 2)
		assert.Equal(t, 1, store.endedCount())
	})

	t.Run("failed connection state ends the call", func(t *testing.T) {
		store := newFakeSignalStore()
		m, rec := newTestManager(t, store, time.Minute)

		call, err := m.Initiate("alice", validInitiate())
		require.NoError(t, err)
		require.NoError(t, m.Accept("bob", call.ID, json.RawMessage(`{"sdp":"a"}`)))

		require.NoError(t, m.ReportState("bob", call.ID, "failed"))

		statuses := rec.ofKind(FrameStatus)
		require.Len(t, statuses, 2)
		var payload StatusPayload
		require.NoError(t, json.Unmarshal(statuses[0].Payload, &payload))
		assert.Equal(t, models.EndReasonConnectionFailed, payload.Reason)
	})

	t.Run("non-participant cannot end", func(t *testing.T) {
		m, _ := newTestManager(t, newFakeSignalStore(), time.Minute)
		call, err := m.Initiate("alice", validInitiate())
		require.NoError(t, err)

		err = m.End("mallory", call.ID, models.EndReasonHangup)
		assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))
	})
}

func TestManagerCandidateRacingCallEnd(t *testing.T) {
	store := newFakeSignalStore()
	m, rec := newTestManager(t, store, time.Minute)

	call, err := m.Initiate("alice", validInitiate())
	require.NoError(t, err)

	// The ring timer (or the peer hanging up) can end the call between the
	// session lookup and the candidate buffering. The candidate must be
	// rejected, not appended into a torn-down session.
	store.onAddCandidate = func(callID string) {
		require.NoError(t, m.End("", callID, models.EndReasonTimeout))
	}

	err = m.Candidate("alice", call.ID, json.RawMessage(`{"c":1}`))
	assert.Equal(t, apperrors.CodeFailedPrecondition, apperrors.CodeOf(err))
	assert.Empty(t, rec.ofKind(FrameCandidate))
}

func TestManagerRingTimeout(t *testing.T) {
	store := newFakeSignalStore()
	m, rec := newTestManager(t, store, 20*time.Millisecond)

	call, err := m.Initiate("alice", validInitiate())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(rec.ofKind(FrameStatus)) == 2
	}, time.Second, 10*time.Millisecond, "both sides hear about the missed call")

	var payload StatusPayload
	statuses := rec.ofKind(FrameStatus)
	require.NoError(t, json.Unmarshal(statuses[0].Payload, &payload))
	assert.Equal(t, call.ID, payload.CallID)
	assert.Equal(t, models.CallStatusEnded, payload.Status)
	assert.Equal(t, models.EndReasonTimeout, payload.Reason)

	assert.Empty(t, m.ActiveCallID("alice"))
	assert.Empty(t, m.ActiveCallID("bob"))
}

func TestManagerEndActiveCallFor(t *testing.T) {
	store := newFakeSignalStore()
	m, rec := newTestManager(t, store, time.Minute)

	call, err := m.Initiate("alice", validInitiate())
	require.NoError(t, err)
	require.NoError(t, m.Accept("bob", call.ID, json.RawMessage(`{"sdp":"a"}`)))

	m.EndActiveCallFor("alice", models.EndReasonConnectionFailed)

	assert.Len(t, rec.ofKind(FrameStatus), 2)
	assert.Empty(t, m.ActiveCallID("bob"))

	// No active call is a quiet no-op.
	m.EndActiveCallFor("alice", models.EndReasonHangup)
	assert.Len(t, rec.ofKind(FrameStatus), 2)
}
