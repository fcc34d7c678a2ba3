package store

import (
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/communityz/backend/pkg/apperrors"
	"github.com/communityz/backend/pkg/models"
)

// SaveMessage appends a message and refreshes the conversation metadata in one
// transaction. This is a must-succeed write: failures surface as
// STORE_UNAVAILABLE and the caller may resubmit; there is no local retry.
func (s *Store) SaveMessage(senderID, receiverID, content string, contentType models.ContentType) (*models.Message, error) {
	conversationID := models.ConversationID(senderID, receiverID)

	s.logger.Info("Saving message",
		"conversation_id", conversationID, "sender_id", senderID)

	if contentType == "" {
		contentType = models.ContentTypeText
	}

	message := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		ContentType:    contentType,
		Read:           false,
		SentAt:         time.Now(),
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	defer tx.Rollback()

	// The conversation row is created lazily on first message.
	userA, userB := senderID, receiverID
	if userB < userA {
		userA, userB = userB, userA
	}
	_, err = tx.Exec(`
		INSERT INTO conversations (id, user_a, user_b, last_message, last_message_at, last_sender_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET last_message = EXCLUDED.last_message,
			last_message_at = EXCLUDED.last_message_at,
			last_sender_id = EXCLUDED.last_sender_id`,
		conversationID, userA, userB, content, message.SentAt, senderID)
	if err != nil {
		s.logger.Error("Failed to upsert conversation metadata",
			"error", err, "conversation_id", conversationID)
		return nil, apperrors.StoreUnavailable(err)
	}

	err = tx.QueryRow(`
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content, content_type, read, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		RETURNING seq`,
		message.ID, conversationID, senderID, receiverID,
		content, contentType, message.SentAt,
	).Scan(&message.Seq)
	if err != nil {
		s.logger.Error("Failed to insert message",
			"error", err, "conversation_id", conversationID)
		return nil, apperrors.StoreUnavailable(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}

	s.logger.Debug("Message saved", "message_id", message.ID, "seq", message.Seq)
	return message, nil
}

const messageColumns = `id, conversation_id, seq, sender_id, receiver_id, content, content_type, read, sent_at`

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		err := rows.Scan(
			&m.ID, &m.ConversationID, &m.Seq, &m.SenderID, &m.ReceiverID,
			&m.Content, &m.ContentType, &m.Read, &m.SentAt,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// GetRecentMessages returns up to limit messages ordered oldest-first. A
// beforeSeq > 0 restricts the page to messages older than that sequence;
// repeated calls with the same arguments are idempotent.
func (s *Store) GetRecentMessages(conversationID string, limit int, beforeSeq int64) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND ($2 <= 0 OR seq < $2)
		ORDER BY seq DESC
		LIMIT $3`

	rows, err := s.DB.Query(query, conversationID, beforeSeq, limit)
	if err != nil {
		s.logger.Error("Failed to get messages", "error", err, "conversation_id", conversationID)
		return nil, apperrors.StoreUnavailable(err)
	}

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Query walks newest-first for the LIMIT; callers want insertion order.
	sort.Slice(messages, func(i, j int) bool { return messages[i].Seq < messages[j].Seq })
	return messages, nil
}

// GetMessagesSince returns messages with seq > sinceSeq in insertion order.
// Used to backfill a room join so no message between "last seen" and "now" is
// dropped.
func (s *Store) GetMessagesSince(conversationID string, sinceSeq int64, limit int) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3`

	rows, err := s.DB.Query(query, conversationID, sinceSeq, limit)
	if err != nil {
		s.logger.Error("Failed to get messages since seq",
			"error", err, "conversation_id", conversationID, "since_seq", sinceSeq)
		return nil, apperrors.StoreUnavailable(err)
	}
	return scanMessages(rows)
}

// MarkMessageRead flips the read flag for a single message. Only the receiver
// may do this; sender and conversation are returned for read-receipt fan-out.
// Advisory class at the call sites: a miss is not an error worth surfacing.
func (s *Store) MarkMessageRead(messageID, viewerID string) (*models.Message, error) {
	m := &models.Message{}
	err := s.DB.QueryRow(`
		UPDATE messages
		SET read = TRUE
		WHERE id = $1 AND receiver_id = $2 AND read = FALSE
		RETURNING `+messageColumns,
		messageID, viewerID,
	).Scan(
		&m.ID, &m.ConversationID, &m.Seq, &m.SenderID, &m.ReceiverID,
		&m.Content, &m.ContentType, &m.Read, &m.SentAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("no unread message for this viewer")
	}
	if err != nil {
		s.logger.Error("Failed to mark message read", "error", err, "message_id", messageID)
		return nil, apperrors.StoreUnavailable(err)
	}
	return m, nil
}

// MarkConversationRead marks every unread message addressed to viewerID in one
// statement and returns the affected message ids.
func (s *Store) MarkConversationRead(conversationID, viewerID string) ([]string, error) {
	rows, err := s.DB.Query(`
		UPDATE messages
		SET read = TRUE
		WHERE conversation_id = $1 AND receiver_id = $2 AND read = FALSE
		RETURNING id`,
		conversationID, viewerID)
	if err != nil {
		s.logger.Error("Failed to mark conversation read",
			"error", err, "conversation_id", conversationID)
		return nil, apperrors.StoreUnavailable(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClearConversation truncates the message stream. The metadata row survives
// with an emptied summary.
func (s *Store) ClearConversation(conversationID string) error {
	s.logger.Info("Clearing conversation history", "conversation_id", conversationID)

	tx, err := s.DB.Begin()
	if err != nil {
		return apperrors.StoreUnavailable(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = $1`, conversationID); err != nil {
		s.logger.Error("Failed to clear conversation", "error", err, "conversation_id", conversationID)
		return apperrors.StoreUnavailable(err)
	}

	if _, err := tx.Exec(`
		UPDATE conversations
		SET last_message = '', last_sender_id = NULL
		WHERE id = $1`, conversationID); err != nil {
		return apperrors.StoreUnavailable(err)
	}

	return tx.Commit()
}

// ListConversations returns the metadata rows for every conversation the user
// participates in, most recent activity first.
func (s *Store) ListConversations(userID string) ([]models.Conversation, error) {
	query := `
		SELECT id, last_message, last_message_at, COALESCE(last_sender_id::text, '')
		FROM conversations
		WHERE user_a = $1 OR user_b = $1
		ORDER BY last_message_at DESC`

	rows, err := s.DB.Query(query, userID)
	if err != nil {
		s.logger.Error("Failed to list conversations", "error", err, "user_id", userID)
		return nil, apperrors.StoreUnavailable(err)
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.LastMessage, &c.LastMessageAt, &c.LastSenderID); err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// UnreadCount returns how many messages addressed to viewerID are unread in
// the conversation.
func (s *Store) UnreadCount(conversationID, viewerID string) (int, error) {
	var count int
	err := s.DB.QueryRow(`
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = $1 AND receiver_id = $2 AND read = FALSE`,
		conversationID, viewerID).Scan(&count)
	if err != nil {
		return 0, apperrors.StoreUnavailable(err)
	}
	return count, nil
}
