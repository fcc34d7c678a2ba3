package models

import (
	"encoding/json"
	"time"
)

type MediaType string

const (
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
)

type CallStatus string

const (
	CallStatusCalling  CallStatus = "calling"
	CallStatusAccepted CallStatus = "accepted"
	CallStatusDeclined CallStatus = "declined"
	CallStatusEnded    CallStatus = "ended"
)

// Terminal reports whether the status absorbs all further transitions.
func (s CallStatus) Terminal() bool {
	return s == CallStatusDeclined || s == CallStatusEnded
}

// Call is the signaling record for one call attempt. Offer and answer are
// opaque SDP payloads produced by the clients; the server relays and persists
// them without inspection.
type Call struct {
	ID         string          `json:"id" db:"id"`
	CallerID   string          `json:"caller_id" db:"caller_id"`
	ReceiverID string          `json:"receiver_id" db:"receiver_id"`
	MediaType  MediaType       `json:"media_type" db:"media_type"`
	Status     CallStatus      `json:"status" db:"status"`
	Offer      json.RawMessage `json:"offer,omitempty" db:"offer"`
	Answer     json.RawMessage `json:"answer,omitempty" db:"answer"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	EndedAt    *time.Time      `json:"ended_at,omitempty" db:"ended_at"`
}

// Peer returns the other participant's id, or "" if userID is not a participant.
func (c *Call) Peer(userID string) string {
	switch userID {
	case c.CallerID:
		return c.ReceiverID
	case c.ReceiverID:
		return c.CallerID
	}
	return ""
}

// CallCandidate is one ICE candidate, stored under the id of the participant
// that discovered it and relayed to the other side.
type CallCandidate struct {
	ID        string          `json:"id" db:"id"`
	CallID    string          `json:"call_id" db:"call_id"`
	OwnerID   string          `json:"owner_id" db:"owner_id"`
	Candidate json.RawMessage `json:"candidate" db:"candidate"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// CallEndReason distinguishes why a call left the live states.
type CallEndReason string

const (
	EndReasonHangup            CallEndReason = "hangup"
	EndReasonTimeout           CallEndReason = "timeout"
	EndReasonConnectionFailed  CallEndReason = "connection_failed"
	EndReasonMediaAccessDenied CallEndReason = "media_access_denied"
)
