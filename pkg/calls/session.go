package calls

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/communityz/backend/pkg/apperrors"
	"github.com/communityz/backend/pkg/models"
)

// Session is the server-side counterpart of the clients' peer connections for
// one call: it owns the offer/answer record, the candidate buffer, the ring
// and duration clocks, and the state machine.
type Session struct {
	mu      sync.Mutex
	call    *models.Call
	machine Machine

	ringTimer   *time.Timer
	connectedAt time.Time
	endedAt     time.Time
	torn        bool

	// pending buffers ICE candidates per discovering participant until the
	// peer has a remote description to apply them against (i.e. until the
	// call is accepted). Candidates arriving early are queued, not dropped.
	pending map[string][]json.RawMessage
}

func newSession(call *models.Call) *Session {
	return &Session{
		call:    call,
		machine: NewMachine(),
		pending: make(map[string][]json.RawMessage),
	}
}

func (s *Session) Call() *models.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.call
}

func (s *Session) Status() models.CallStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Status()
}

// transition applies a status change under the session lock and mirrors it
// onto the call record.
func (s *Session) transition(to models.CallStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.machine.Transition(to); err != nil {
		return err
	}
	s.call.Status = to
	return nil
}

// bufferOrForward decides what to do with a candidate discovered by ownerID.
// Before the call is accepted neither peer has the other's session description
// applied, so the candidate is queued. Returns true when the candidate may be
// relayed immediately. The session may be torn down concurrently by the ring
// timer or the peer hanging up; a candidate racing that teardown is rejected.
func (s *Session) bufferOrForward(ownerID string, candidate json.RawMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.torn {
		return false, apperrors.FailedPrecondition("call already ended")
	}
	if s.machine.Status() == models.CallStatusAccepted {
		return true, nil
	}
	s.pending[ownerID] = append(s.pending[ownerID], candidate)
	return false, nil
}

// drainPending removes and returns all buffered candidates, keyed by the
// participant that discovered them. Called once on accept.
func (s *Session) drainPending() map[string][]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	drained := s.pending
	s.pending = make(map[string][]json.RawMessage)
	return drained
}

// markConnected starts the duration clock. Only the first report counts.
func (s *Session) markConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connectedAt.IsZero() {
		s.connectedAt = time.Now()
	}
}

// Duration reports connected time, zero if the media path never came up.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connectedAt.IsZero() {
		return 0
	}
	end := s.endedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.connectedAt)
}

// teardown cancels timers and marks the session finished. Idempotent: the
// second call reports false and does nothing.
func (s *Session) teardown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.torn {
		return false
	}
	s.torn = true
	s.endedAt = time.Now()
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
	s.pending = nil
	return true
}

func (s *Session) setRingTimer(t *time.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torn {
		t.Stop()
		return
	}
	s.ringTimer = t
}

func (s *Session) stopRingTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
}
