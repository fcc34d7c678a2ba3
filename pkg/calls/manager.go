package calls

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/communityz/backend/pkg/apperrors"
	"github.com/communityz/backend/pkg/events"
	"github.com/communityz/backend/pkg/models"
)

// SignalStore is the slice of the store the call manager needs. *store.Store
// satisfies it; tests substitute a fake.
type SignalStore interface {
	CreateCall(call *models.Call) error
	SetCallAnswer(callID string, answer json.RawMessage) error
	MarkCallDeclined(callID string) error
	MarkCallEnded(callID string) (bool, error)
	AddCallCandidate(callID, ownerID string, candidate json.RawMessage) (*models.CallCandidate, error)
	IsBlockedEither(a, b string) (bool, error)
	GetUserByID(userID string) (*models.User, error)
}

// Wire frame kinds emitted through the event bus.
const (
	FrameIncoming  = "call.incoming"
	FrameAnswer    = "call.answer"
	FrameCandidate = "call.candidate"
	FrameStatus    = "call.status"
)

type InitiateRequest struct {
	ReceiverID string           `json:"receiver_id"`
	MediaType  models.MediaType `json:"media_type"`
	Offer      json.RawMessage  `json:"offer"`
}

type IncomingCallPayload struct {
	CallID       string           `json:"call_id"`
	CallerID     string           `json:"caller_id"`
	CallerName   string           `json:"caller_name"`
	CallerAvatar string           `json:"caller_avatar"`
	MediaType    models.MediaType `json:"media_type"`
	Offer        json.RawMessage  `json:"offer"`
}

type AnswerPayload struct {
	CallID string          `json:"call_id"`
	Answer json.RawMessage `json:"answer"`
}

type CandidatePayload struct {
	CallID    string          `json:"call_id"`
	OwnerID   string          `json:"owner_id"`
	Candidate json.RawMessage `json:"candidate"`
}

type StatusPayload struct {
	CallID   string               `json:"call_id"`
	Status   models.CallStatus    `json:"status"`
	Reason   models.CallEndReason `json:"reason,omitempty"`
	Duration int64                `json:"duration_seconds,omitempty"`
}

// Manager owns the call-id -> session registry and the per-user active-call
// index. One live call per user; no call waiting.
type Manager struct {
	store       SignalStore
	bus         *events.Bus
	ringTimeout time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	active   map[string]string // user id -> call id
}

func NewManager(store SignalStore, bus *events.Bus, ringTimeout time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		store:       store,
		bus:         bus,
		ringTimeout: ringTimeout,
		logger:      logger,
		sessions:    make(map[string]*Session),
		active:      make(map[string]string),
	}
}

// Initiate validates the attempt, persists the call record with the caller's
// offer, starts the ring timer and notifies the receiver's connections.
func (m *Manager) Initiate(callerID string, req InitiateRequest) (*models.Call, error) {
	if req.ReceiverID == "" || req.ReceiverID == callerID {
		return nil, apperrors.InvalidArg("invalid call receiver")
	}
	if req.MediaType != models.MediaAudio && req.MediaType != models.MediaVideo {
		return nil, apperrors.InvalidArg("media type must be audio or video")
	}
	if len(req.Offer) == 0 {
		return nil, apperrors.InvalidArg("call offer is required")
	}

	blocked, err := m.store.IsBlockedEither(callerID, req.ReceiverID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, apperrors.New(apperrors.CodeBlocked, "cannot call a blocked user")
	}

	caller, err := m.store.GetUserByID(callerID)
	if err != nil || caller == nil {
		return nil, apperrors.NotFound("caller not found")
	}

	m.mu.Lock()
	if _, busy := m.active[callerID]; busy {
		m.mu.Unlock()
		return nil, apperrors.New(apperrors.CodeCallInProgress, "caller already has an active call")
	}
	if _, busy := m.active[req.ReceiverID]; busy {
		m.mu.Unlock()
		return nil, apperrors.New(apperrors.CodeCallInProgress, "receiver is in another call")
	}

	call := &models.Call{
		CallerID:   callerID,
		ReceiverID: req.ReceiverID,
		MediaType:  req.MediaType,
		Offer:      req.Offer,
	}
	if err := m.store.CreateCall(call); err != nil {
		m.mu.Unlock()
		return nil, err
	}

	sess := newSession(call)
	m.sessions[call.ID] = sess
	m.active[callerID] = call.ID
	m.active[req.ReceiverID] = call.ID
	m.mu.Unlock()

	sess.setRingTimer(time.AfterFunc(m.ringTimeout, func() {
		m.handleRingTimeout(call.ID)
	}))

	m.logger.Info("Call initiated",
		"call_id", call.ID, "caller_id", callerID,
		"receiver_id", req.ReceiverID, "media_type", req.MediaType)

	m.signal(req.ReceiverID, FrameIncoming, IncomingCallPayload{
		CallID:       call.ID,
		CallerID:     callerID,
		CallerName:   caller.DisplayName,
		CallerAvatar: caller.AvatarURL,
		MediaType:    call.MediaType,
		Offer:        call.Offer,
	})

	return call, nil
}

// Accept stores the receiver's answer, relays it to the caller and flushes
// every candidate buffered while the call was still ringing.
func (m *Manager) Accept(userID, callID string, answer json.RawMessage) error {
	sess, err := m.session(callID)
	if err != nil {
		return err
	}
	call := sess.Call()
	if call.ReceiverID != userID {
		return apperrors.Forbidden("only the call receiver can accept")
	}
	if len(answer) == 0 {
		return apperrors.InvalidArg("call answer is required")
	}

	if err := m.store.SetCallAnswer(callID, answer); err != nil {
		return err
	}
	if err := sess.transition(models.CallStatusAccepted); err != nil {
		return err
	}
	sess.stopRingTimer()
	call.Answer = answer

	m.logger.Info("Call accepted", "call_id", callID, "receiver_id", userID)

	m.signal(call.CallerID, FrameAnswer, AnswerPayload{CallID: callID, Answer: answer})

	// Both sides now have a remote description; deliver what was queued.
	for ownerID, candidates := range sess.drainPending() {
		target := call.Peer(ownerID)
		for _, candidate := range candidates {
			m.signal(target, FrameCandidate, CandidatePayload{
				CallID: callID, OwnerID: ownerID, Candidate: candidate,
			})
		}
	}
	return nil
}

// Decline is terminal. A receiver whose media capture failed declines with
// reason media_access_denied; the caller sees it as an ordinary decline.
func (m *Manager) Decline(userID, callID string, reason models.CallEndReason) error {
	sess, err := m.session(callID)
	if err != nil {
		return err
	}
	call := sess.Call()
	if call.ReceiverID != userID {
		return apperrors.Forbidden("only the call receiver can decline")
	}

	if err := sess.transition(models.CallStatusDeclined); err != nil {
		return err
	}
	if err := m.store.MarkCallDeclined(callID); err != nil {
		m.logger.Warn("Decline persisted partially", "call_id", callID, "error", err)
	}

	m.remove(callID, sess)
	if reason == "" {
		reason = models.EndReasonHangup
	}

	m.logger.Info("Call declined", "call_id", callID, "reason", reason)
	m.signal(call.CallerID, FrameStatus, StatusPayload{
		CallID: callID, Status: models.CallStatusDeclined, Reason: reason,
	})
	return nil
}

// Candidate persists a locally-discovered ICE candidate under its owner's id
// and relays it to the other participant, buffering while the call is still
// ringing so early candidates are never dropped.
func (m *Manager) Candidate(userID, callID string, candidate json.RawMessage) error {
	sess, err := m.session(callID)
	if err != nil {
		return err
	}
	call := sess.Call()
	if call.Peer(userID) == "" {
		return apperrors.Forbidden("not a participant in this call")
	}
	if len(candidate) == 0 {
		return apperrors.InvalidArg("candidate payload is empty")
	}

	if _, err := m.store.AddCallCandidate(callID, userID, candidate); err != nil {
		return err
	}

	forward, err := sess.bufferOrForward(userID, candidate)
	if err != nil {
		return err
	}
	if forward {
		m.signal(call.Peer(userID), FrameCandidate, CandidatePayload{
			CallID: callID, OwnerID: userID, Candidate: candidate,
		})
	}
	return nil
}

// ReportState consumes a client's peer-connection state transition. The first
// connected report starts the duration clock; disconnected or failed ends the
// call for both sides.
func (m *Manager) ReportState(userID, callID, state string) error {
	sess, err := m.session(callID)
	if err != nil {
		return err
	}
	if sess.Call().Peer(userID) == "" {
		return apperrors.Forbidden("not a participant in this call")
	}

	switch state {
	case "connected":
		sess.markConnected()
		m.logger.Debug("Call media connected", "call_id", callID)
		return nil
	case "disconnected", "failed":
		return m.End(userID, callID, models.EndReasonConnectionFailed)
	default:
		return apperrors.InvalidArg("unknown connection state")
	}
}

// End moves the call to ended and tears the session down. Idempotent: ending
// an already-ended call is a no-op with no further writes or notifications.
func (m *Manager) End(userID, callID string, reason models.CallEndReason) error {
	m.mu.Lock()
	sess, ok := m.sessions[callID]
	m.mu.Unlock()
	if !ok {
		// Session already gone; nothing left to do.
		return nil
	}

	call := sess.Call()
	if userID != "" && call.Peer(userID) == "" {
		return apperrors.Forbidden("not a participant in this call")
	}

	if err := sess.transition(models.CallStatusEnded); err != nil {
		// Already terminal: treat as the idempotent no-op.
		return nil
	}
	if !sess.teardown() {
		return nil
	}

	applied, err := m.store.MarkCallEnded(callID)
	if err != nil {
		m.logger.Warn("Call end persisted partially", "call_id", callID, "error", err)
	} else if !applied {
		m.logger.Debug("Call record already terminal", "call_id", callID)
	}

	m.remove(callID, sess)
	if reason == "" {
		reason = models.EndReasonHangup
	}

	duration := int64(sess.Duration() / time.Second)
	m.logger.Info("Call ended",
		"call_id", callID, "reason", reason, "duration_seconds", duration)

	payload := StatusPayload{
		CallID: callID, Status: models.CallStatusEnded,
		Reason: reason, Duration: duration,
	}
	m.signal(call.CallerID, FrameStatus, payload)
	m.signal(call.ReceiverID, FrameStatus, payload)
	return nil
}

// EndActiveCallFor hangs up whatever call the user is in. Called by the hub
// when a user's last connection drops.
func (m *Manager) EndActiveCallFor(userID string, reason models.CallEndReason) {
	m.mu.Lock()
	callID, ok := m.active[userID]
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := m.End(userID, callID, reason); err != nil {
		m.logger.Warn("Failed to end call on disconnect", "call_id", callID, "error", err)
	}
}

// ActiveCallID returns the user's live call id, or "".
func (m *Manager) ActiveCallID(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[userID]
}

func (m *Manager) session(callID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[callID]
	if !ok {
		return nil, apperrors.NotFound("no active call with this id")
	}
	return sess, nil
}

func (m *Manager) remove(callID string, sess *Session) {
	sess.teardown()

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, callID)
	call := sess.Call()
	if m.active[call.CallerID] == callID {
		delete(m.active, call.CallerID)
	}
	if m.active[call.ReceiverID] == callID {
		delete(m.active, call.ReceiverID)
	}
}

// handleRingTimeout fires when no answer arrived in time: the call ends and
// both sides are told it was missed.
func (m *Manager) handleRingTimeout(callID string) {
	m.mu.Lock()
	sess, ok := m.sessions[callID]
	m.mu.Unlock()
	if !ok || sess.Status() != models.CallStatusCalling {
		return
	}

	m.logger.Info("Call ring timeout", "call_id", callID)
	if err := m.End("", callID, models.EndReasonTimeout); err != nil {
		m.logger.Warn("Failed to end timed-out call", "call_id", callID, "error", err)
	}
}

func (m *Manager) signal(targetUserID, kind string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("Failed to marshal call signal", "kind", kind, "error", err)
		return
	}
	m.bus.Publish(events.CallSignal{
		TargetUserID: targetUserID,
		Kind:         kind,
		Payload:      data,
	})
}
