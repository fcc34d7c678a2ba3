package events

import (
	"encoding/json"

	"github.com/communityz/backend/pkg/models"
)

// MessageStored fires after a message and its conversation metadata commit.
type MessageStored struct {
	Message *models.Message
}

func (MessageStored) EventType() Type { return TypeMessageStored }

// MessageRead fires when the receiver marks one or more messages read. Empty
// MessageIDs means "everything unread in the conversation".
type MessageRead struct {
	ConversationID string
	ReaderID       string
	SenderID       string
	MessageIDs     []string
}

func (MessageRead) EventType() Type { return TypeMessageRead }

type PresenceChanged struct {
	Presence models.UserPresence
}

func (PresenceChanged) EventType() Type { return TypePresenceChanged }

type TypingChanged struct {
	Indicator models.TypingIndicator
}

func (TypingChanged) EventType() Type { return TypeTypingChanged }

type FriendRequestCreated struct {
	Request *models.FriendRequest
}

func (FriendRequestCreated) EventType() Type { return TypeFriendRequestCreated }

type FriendRequestResolved struct {
	Request *models.FriendRequest
}

func (FriendRequestResolved) EventType() Type { return TypeFriendRequestResolved }

// UserBlocked detaches any open conversation room between the pair.
type UserBlocked struct {
	BlockerID string
	BlockedID string
}

func (UserBlocked) EventType() Type { return TypeUserBlocked }

// SessionRevoked fires on logout; the hub closes every connection
// authenticated with the session.
type SessionRevoked struct {
	SessionID string
}

func (SessionRevoked) EventType() Type { return TypeSessionRevoked }

// CallSignal is one signaling frame addressed to a single user's connections.
// Kind is the wire frame name (call.incoming, call.answer, call.candidate,
// call.status); Payload is the frame body.
type CallSignal struct {
	TargetUserID string
	Kind         string
	Payload      json.RawMessage
}

func (CallSignal) EventType() Type { return TypeCallSignal }
