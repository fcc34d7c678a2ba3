package models

import (
	"sort"
	"strings"
	"time"

	"github.com/communityz/backend/pkg/apperrors"
)

type ContentType string

const (
	ContentTypeText ContentType = "text"
)

type Message struct {
	ID             string      `json:"id" db:"id"`
	ConversationID string      `json:"conversation_id" db:"conversation_id"`
	Seq            int64       `json:"seq" db:"seq"`
	SenderID       string      `json:"sender_id" db:"sender_id"`
	ReceiverID     string      `json:"receiver_id" db:"receiver_id"`
	Content        string      `json:"content" db:"content"`
	ContentType    ContentType `json:"content_type" db:"content_type"`
	Read           bool        `json:"read" db:"read"`
	SentAt         time.Time   `json:"sent_at" db:"sent_at"`
}

// Conversation is the metadata record for a user pair, a derived summary of the
// message stream. Last-write-wins on concurrent sends is acceptable here.
type Conversation struct {
	ID            string    `json:"id" db:"id"`
	LastMessage   string    `json:"last_message" db:"last_message"`
	LastMessageAt time.Time `json:"last_message_at" db:"last_message_at"`
	LastSenderID  string    `json:"last_sender_id" db:"last_sender_id"`
}

// ConversationID derives the canonical conversation key for a user pair.
// It is symmetric: ConversationID(a, b) == ConversationID(b, a).
func ConversationID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// ConversationParticipants splits a conversation id back into its two user
// ids. User ids are UUIDs, so the underscore separator is unambiguous.
func ConversationParticipants(id string) (string, string, error) {
	parts := strings.SplitN(id, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", apperrors.InvalidArg("malformed conversation id")
	}
	return parts[0], parts[1], nil
}

// IsConversationParticipant reports whether userID is one of the pair.
func IsConversationParticipant(id, userID string) bool {
	a, b, err := ConversationParticipants(id)
	if err != nil {
		return false
	}
	return userID == a || userID == b
}

// ValidateMessageContent rejects empty and whitespace-only content.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return apperrors.InvalidArg("message content is empty")
	}
	return nil
}

type SendMessageRequest struct {
	ReceiverID  string `json:"receiver_id"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
}

type TypingIndicator struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Typing         bool   `json:"typing"`
}
