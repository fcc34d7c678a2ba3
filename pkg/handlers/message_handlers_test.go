package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityz/backend/config"
	"github.com/communityz/backend/pkg/auth"
	"github.com/communityz/backend/pkg/events"
	"github.com/communityz/backend/pkg/models"
)

// fakeMessageStore keeps the message stream in memory with the same semantics
// as the SQL store: monotonic seq, read=false until the receiver flips it,
// receiver-only read updates.
type fakeMessageStore struct {
	nextSeq  int64
	messages []models.Message
	blocked  bool
	users    map[string]*models.User
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{
		users: map[string]*models.User{
			"alice": {ID: "alice", Settings: models.DefaultSettings()},
			"bob":   {ID: "bob", Settings: models.DefaultSettings()},
		},
	}
}

func (f *fakeMessageStore) SaveMessage(senderID, receiverID, content string, contentType models.ContentType) (*models.Message, error) {
	f.nextSeq++
	m := models.Message{
		ID:             fmt.Sprintf("msg-%d", f.nextSeq),
		ConversationID: models.ConversationID(senderID, receiverID),
		Seq:            f.nextSeq,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		ContentType:    contentType,
		SentAt:         time.Now(),
	}
	f.messages = append(f.messages, m)
	return &m, nil
}

func (f *fakeMessageStore) GetRecentMessages(conversationID string, limit int, beforeSeq int64) ([]models.Message, error) {
	var page []models.Message
	for _, m := range f.messages {
		if m.ConversationID == conversationID && (beforeSeq <= 0 || m.Seq < beforeSeq) {
			page = append(page, m)
		}
	}
	sort.Slice(page, func(i, j int) bool { return page[i].Seq < page[j].Seq })
	if len(page) > limit {
		page = page[len(page)-limit:]
	}
	return page, nil
}

func (f *fakeMessageStore) MarkMessageRead(messageID, viewerID string) (*models.Message, error) {
	for i := range f.messages {
		m := &f.messages[i]
		if m.ID == messageID && m.ReceiverID == viewerID && !m.Read {
			m.Read = true
			copied := *m
			return &copied, nil
		}
	}
	return nil, errNoUnread
}

func (f *fakeMessageStore) MarkConversationRead(conversationID, viewerID string) ([]string, error) {
	var ids []string
	for i := range f.messages {
		m := &f.messages[i]
		if m.ConversationID == conversationID && m.ReceiverID == viewerID && !m.Read {
			m.Read = true
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

func (f *fakeMessageStore) ClearConversation(conversationID string) error {
	kept := f.messages[:0]
	for _, m := range f.messages {
		if m.ConversationID != conversationID {
			kept = append(kept, m)
		}
	}
	f.messages = kept
	return nil
}

func (f *fakeMessageStore) ListConversations(userID string) ([]models.Conversation, error) {
	byID := map[string]models.Conversation{}
	for _, m := range f.messages {
		if !models.IsConversationParticipant(m.ConversationID, userID) {
			continue
		}
		byID[m.ConversationID] = models.Conversation{
			ID:            m.ConversationID,
			LastMessage:   m.Content,
			LastMessageAt: m.SentAt,
			LastSenderID:  m.SenderID,
		}
	}
	var out []models.Conversation
	for _, c := range byID {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeMessageStore) UnreadCount(conversationID, viewerID string) (int, error) {
	n := 0
	for _, m := range f.messages {
		if m.ConversationID == conversationID && m.ReceiverID == viewerID && !m.Read {
			n++
		}
	}
	return n, nil
}

func (f *fakeMessageStore) IsBlockedEither(a, b string) (bool, error) {
	return f.blocked, nil
}

func (f *fakeMessageStore) GetUserByID(userID string) (*models.User, error) {
	return f.users[userID], nil
}

var errNoUnread = fmt.Errorf("no unread message for this viewer")

func newMessageTestHandler(store *fakeMessageStore) (*MessageHandler, *events.Bus) {
	bus := events.NewBus()
	chat := config.ChatConfig{PageSize: 50, MaxPageSize: 100}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMessageHandler(store, bus, chat, logger), bus
}

func authedRequest(t *testing.T, userID, method, target, body string) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	return req.WithContext(auth.WithIdentity(req.Context(), userID, "session-"+userID))
}

func TestMessageRoundTrip(t *testing.T) {
	store := newFakeMessageStore()
	h, bus := newMessageTestHandler(store)

	var reads []events.MessageRead
	bus.Subscribe(events.TypeMessageRead, func(e events.Event) {
		reads = append(reads, e.(events.MessageRead))
	})

	// Alice sends "hello" to Bob.
	w := httptest.NewRecorder()
	h.SendMessage(w, authedRequest(t, "alice", http.MethodPost, "/api/messages",
		`{"receiver_id":"bob","content":"hello"}`))
	require.Equal(t, http.StatusCreated, w.Code)

	var sent models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sent))
	assert.Equal(t, "hello", sent.Content)
	assert.Equal(t, models.ConversationID("alice", "bob"), sent.ConversationID)
	assert.False(t, sent.Read, "unread until the receiver marks it")
	assert.Equal(t, int64(1), sent.Seq)

	// Bob loads the history and sees it unchanged, still unread.
	w = httptest.NewRecorder()
	h.GetMessages(w, authedRequest(t, "bob", http.MethodGet, "/api/messages?friend_id=alice", ""))
	require.Equal(t, http.StatusOK, w.Code)

	var history []models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Content)
	assert.False(t, history[0].Read)

	// Bob marks it read; the flag flips and Alice is told.
	req := authedRequest(t, "bob", http.MethodPost, "/api/messages/"+sent.ID+"/read", "")
	req.SetPathValue("id", sent.ID)
	w = httptest.NewRecorder()
	h.MarkMessageRead(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var read models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &read))
	assert.True(t, read.Read)

	require.Len(t, reads, 1)
	assert.Equal(t, "alice", reads[0].SenderID)
	assert.Equal(t, []string{sent.ID}, reads[0].MessageIDs)

	// The flag persists on the next load.
	w = httptest.NewRecorder()
	h.GetMessages(w, authedRequest(t, "bob", http.MethodGet, "/api/messages?friend_id=alice", ""))
	history = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.True(t, history[0].Read)
}

func TestSendMessageValidation(t *testing.T) {
	t.Run("whitespace content", func(t *testing.T) {
		h, _ := newMessageTestHandler(newFakeMessageStore())
		w := httptest.NewRecorder()
		h.SendMessage(w, authedRequest(t, "alice", http.MethodPost, "/api/messages",
			`{"receiver_id":"bob","content":"   "}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("blocked pair", func(t *testing.T) {
		store := newFakeMessageStore()
		store.blocked = true
		h, _ := newMessageTestHandler(store)
		w := httptest.NewRecorder()
		h.SendMessage(w, authedRequest(t, "alice", http.MethodPost, "/api/messages",
			`{"receiver_id":"bob","content":"hi"}`))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestMarkConversationReadSuppressedReceipts(t *testing.T) {
	store := newFakeMessageStore()
	store.users["bob"].Settings.ReadReceipts = false
	h, bus := newMessageTestHandler(store)

	var reads []events.MessageRead
	bus.Subscribe(events.TypeMessageRead, func(e events.Event) {
		reads = append(reads, e.(events.MessageRead))
	})

	_, err := store.SaveMessage("alice", "bob", "one", models.ContentTypeText)
	require.NoError(t, err)
	_, err = store.SaveMessage("alice", "bob", "two", models.ContentTypeText)
	require.NoError(t, err)

	req := authedRequest(t, "bob", http.MethodPost, "/api/conversations/alice/read", "")
	req.SetPathValue("friendId", "alice")
	w := httptest.NewRecorder()
	h.MarkConversationRead(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	// The flags are stored either way; only the receipt event is suppressed.
	unread, err := store.UnreadCount(models.ConversationID("alice", "bob"), "bob")
	require.NoError(t, err)
	assert.Zero(t, unread)
	assert.Empty(t, reads)
}

func TestListConversationsUnreadCount(t *testing.T) {
	store := newFakeMessageStore()
	h, _ := newMessageTestHandler(store)

	_, err := store.SaveMessage("alice", "bob", "one", models.ContentTypeText)
	require.NoError(t, err)
	_, err = store.SaveMessage("alice", "bob", "two", models.ContentTypeText)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.ListConversations(w, authedRequest(t, "bob", http.MethodGet, "/api/conversations", ""))
	require.Equal(t, http.StatusOK, w.Code)

	var summaries []conversationSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "alice", summaries[0].FriendID)
	assert.Equal(t, 2, summaries[0].UnreadCount)
	assert.Equal(t, "two", summaries[0].LastMessage)
}
