package hub

import (
	"encoding/json"
	"log"

	"github.com/communityz/backend/pkg/models"
)

// WsMessage is the wire envelope for every frame in both directions. Sender is
// always set server-side from the authenticated connection; a client cannot
// spoof it.
type WsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	RoomID  string          `json:"room_id,omitempty"`
	Sender  string          `json:"sender,omitempty"`
	// Target addresses a frame to a single user's connections. Set on
	// user-directed frames so peer instances can route without a DB lookup.
	Target string `json:"target,omitempty"`
	// Origin is the hub instance that first processed the frame; used to
	// de-duplicate cross-instance pub/sub echo.
	Origin string `json:"origin,omitempty"`
}

// Inbound frame types
const (
	FrameMessage           = "message"
	FrameTyping            = "typing"
	FrameConversationJoin  = "conversation.join"
	FrameConversationLeave = "conversation.leave"
	FrameCallInitiate      = "call.initiate"
	FrameCallAccept        = "call.accept"
	FrameCallDecline       = "call.decline"
	FrameCallCandidate     = "call.candidate"
	FrameCallState         = "call.state"
	FrameCallEnd           = "call.end"
)

// Outbound frame types
const (
	FramePresence             = "presence"
	FrameRead                 = "read"
	FrameFriendRequest        = "friend_request"
	FrameFriendRequestUpdate  = "friend_request.resolved"
	FrameConversationHistory  = "conversation.history"
	FrameConversationDetached = "conversation.detached"
	FrameCallRinging          = "call.ringing"
	FrameSessionRevoked       = "session.revoked"
	FrameError                = "error"
)

type typingFrame struct {
	ReceiverID string `json:"receiver_id"`
}

type conversationJoinFrame struct {
	FriendID string `json:"friend_id"`
	SinceSeq int64  `json:"since_seq"`
}

type conversationLeaveFrame struct {
	FriendID string `json:"friend_id"`
}

type callAcceptFrame struct {
	CallID string          `json:"call_id"`
	Answer json.RawMessage `json:"answer"`
}

type callDeclineFrame struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason,omitempty"`
}

type callCandidateFrame struct {
	CallID    string          `json:"call_id"`
	Candidate json.RawMessage `json:"candidate"`
}

type callStateFrame struct {
	CallID string `json:"call_id"`
	State  string `json:"state"`
}

type callEndFrame struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason,omitempty"`
}

type readFrame struct {
	ConversationID string   `json:"conversation_id"`
	ReaderID       string   `json:"reader_id"`
	MessageIDs     []string `json:"message_ids,omitempty"`
}

type sessionRevokedFrame struct {
	SessionID string `json:"session_id"`
}

type errorFrame struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type detachedFrame struct {
	ConversationID string `json:"conversation_id"`
	Reason         string `json:"reason"`
}

type historyFrame struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []models.Message `json:"messages"`
}

// Helper functions
func marshalMessage(msg WsMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshaling frame: %v", err)
	}
	return data
}

func marshalPayload(payload interface{}) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshaling payload: %v", err)
	}
	return data
}
