package handlers

import (
	"log/slog"
	"net/http"

	"github.com/communityz/backend/config"
	"github.com/communityz/backend/pkg/apperrors"
	"github.com/communityz/backend/pkg/auth"
	"github.com/communityz/backend/pkg/events"
	"github.com/communityz/backend/pkg/models"
)

// MessageStore is the slice of the store the message endpoints need.
// *store.Store satisfies it.
type MessageStore interface {
	SaveMessage(senderID, receiverID, content string, contentType models.ContentType) (*models.Message, error)
	GetRecentMessages(conversationID string, limit int, beforeSeq int64) ([]models.Message, error)
	MarkMessageRead(messageID, viewerID string) (*models.Message, error)
	MarkConversationRead(conversationID, viewerID string) ([]string, error)
	ClearConversation(conversationID string) error
	ListConversations(userID string) ([]models.Conversation, error)
	UnreadCount(conversationID, viewerID string) (int, error)
	IsBlockedEither(a, b string) (bool, error)
	GetUserByID(userID string) (*models.User, error)
}

type MessageHandler struct {
	store  MessageStore
	bus    *events.Bus
	chat   config.ChatConfig
	logger *slog.Logger
}

func NewMessageHandler(store MessageStore, bus *events.Bus, chat config.ChatConfig, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{store: store, bus: bus, chat: chat, logger: logger}
}

// GetMessages godoc
// @Summary      Page through a conversation's history
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        friend_id  query string true  "other participant"
// @Param        before_seq query int    false "return messages with seq below this cursor"
// @Param        limit      query int    false "page size"
// @Success      200 {array} models.Message
// @Router       /api/messages [get]
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	friendID := r.URL.Query().Get("friend_id")
	if friendID == "" {
		writeError(w, apperrors.InvalidArg("friend_id is required"))
		return
	}

	limit := queryInt(r, "limit", h.chat.PageSize)
	if limit <= 0 || limit > h.chat.MaxPageSize {
		limit = h.chat.PageSize
	}
	beforeSeq := queryInt64(r, "before_seq", 0)

	conversationID := models.ConversationID(userID, friendID)
	messages, err := h.store.GetRecentMessages(conversationID, limit, beforeSeq)
	if err != nil {
		h.logger.Error("GetMessages: failed to load history", "error", err,
			"conversation_id", conversationID)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// SendMessage godoc
// @Summary      Send a message to another user
// @Tags         messages
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body models.SendMessageRequest true "message"
// @Success      201 {object} models.Message
// @Router       /api/messages [post]
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	var req models.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ReceiverID == "" || req.ReceiverID == userID {
		writeError(w, apperrors.InvalidArg("invalid receiver"))
		return
	}
	if err := models.ValidateMessageContent(req.Content); err != nil {
		writeError(w, err)
		return
	}

	blocked, err := h.store.IsBlockedEither(userID, req.ReceiverID)
	if err != nil {
		writeError(w, err)
		return
	}
	if blocked {
		writeError(w, apperrors.New(apperrors.CodeBlocked, "cannot message this user"))
		return
	}

	contentType := models.ContentType(req.ContentType)
	if contentType == "" {
		contentType = models.ContentTypeText
	}

	message, err := h.store.SaveMessage(userID, req.ReceiverID, req.Content, contentType)
	if err != nil {
		h.logger.Error("SendMessage: failed to save", "error", err,
			"sender_id", userID, "receiver_id", req.ReceiverID)
		writeError(w, err)
		return
	}

	h.logger.Info("SendMessage: stored", "message_id", message.ID,
		"conversation_id", message.ConversationID, "seq", message.Seq)
	h.bus.Publish(events.MessageStored{Message: message})
	writeJSON(w, http.StatusCreated, message)
}

// MarkMessageRead godoc
// @Summary      Mark one message as read
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "message id"
// @Success      200 {object} models.Message
// @Router       /api/messages/{id}/read [post]
func (h *MessageHandler) MarkMessageRead(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	messageID := r.PathValue("id")

	message, err := h.store.MarkMessageRead(messageID, userID)
	if err != nil {
		h.logger.Warn("MarkMessageRead: failed", "error", err,
			"message_id", messageID, "user_id", userID)
		writeError(w, err)
		return
	}

	h.publishReadReceipt(userID, message.ConversationID, message.SenderID, []string{message.ID})
	writeJSON(w, http.StatusOK, message)
}

// MarkConversationRead godoc
// @Summary      Mark everything unread in a conversation as read
// @Tags         messages
// @Security     BearerAuth
// @Param        friendId path string true "other participant"
// @Success      204
// @Router       /api/conversations/{friendId}/read [post]
func (h *MessageHandler) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	friendID := r.PathValue("friendId")

	conversationID := models.ConversationID(userID, friendID)
	messageIDs, err := h.store.MarkConversationRead(conversationID, userID)
	if err != nil {
		h.logger.Error("MarkConversationRead: failed", "error", err,
			"conversation_id", conversationID)
		writeError(w, err)
		return
	}

	if len(messageIDs) > 0 {
		h.publishReadReceipt(userID, conversationID, friendID, messageIDs)
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearConversation godoc
// @Summary      Delete all messages in a conversation
// @Tags         messages
// @Security     BearerAuth
// @Param        friendId path string true "other participant"
// @Success      204
// @Router       /api/conversations/{friendId}/messages [delete]
func (h *MessageHandler) ClearConversation(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	friendID := r.PathValue("friendId")
	if friendID == "" || friendID == userID {
		writeError(w, apperrors.InvalidArg("invalid conversation"))
		return
	}

	conversationID := models.ConversationID(userID, friendID)
	if err := h.store.ClearConversation(conversationID); err != nil {
		h.logger.Error("ClearConversation: failed", "error", err,
			"conversation_id", conversationID)
		writeError(w, err)
		return
	}

	h.logger.Info("ClearConversation: history cleared", "conversation_id", conversationID)
	w.WriteHeader(http.StatusNoContent)
}

type conversationSummary struct {
	models.Conversation
	FriendID    string `json:"friend_id"`
	UnreadCount int    `json:"unread_count"`
}

// ListConversations godoc
// @Summary      List the caller's conversations with unread counts
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Success      200 {array} handlers.conversationSummary
// @Router       /api/conversations [get]
func (h *MessageHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	conversations, err := h.store.ListConversations(userID)
	if err != nil {
		h.logger.Error("ListConversations: failed", "error", err, "user_id", userID)
		writeError(w, err)
		return
	}

	summaries := make([]conversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		a, b, err := models.ConversationParticipants(conv.ID)
		if err != nil {
			continue
		}
		friendID := a
		if friendID == userID {
			friendID = b
		}

		unread, err := h.store.UnreadCount(conv.ID, userID)
		if err != nil {
			unread = 0
		}
		summaries = append(summaries, conversationSummary{
			Conversation: conv,
			FriendID:     friendID,
			UnreadCount:  unread,
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

// publishReadReceipt fans a read event out to the original sender unless the
// reader turned read receipts off. The read flag is stored either way.
func (h *MessageHandler) publishReadReceipt(readerID, conversationID, senderID string, messageIDs []string) {
	reader, err := h.store.GetUserByID(readerID)
	if err != nil || reader == nil || !reader.Settings.ReadReceipts {
		return
	}
	h.bus.Publish(events.MessageRead{
		ConversationID: conversationID,
		ReaderID:       readerID,
		SenderID:       senderID,
		MessageIDs:     messageIDs,
	})
}
