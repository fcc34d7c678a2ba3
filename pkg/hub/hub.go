package hub

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/communityz/backend/pkg/apperrors"
	"github.com/communityz/backend/pkg/calls"
	"github.com/communityz/backend/pkg/events"
	"github.com/communityz/backend/pkg/models"
	"github.com/communityz/backend/pkg/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64KB, enough for SDP offers
)

type Hub struct {
	Storage *store.Store
	Bus     *events.Bus
	Calls   *calls.Manager

	// Registered clients by userID (multiple devices per user)
	Clients map[string]map[*Client]bool

	// Conversation rooms for broadcasting
	Rooms map[string]map[*Client]bool

	// Broadcast channel for all inbound frames
	Broadcast chan WsMessage

	// Channels for client management
	Register   chan *Client
	Unregister chan *Client

	typing        *typingTracker
	typingTTL     time.Duration
	backfillLimit int
	instanceID    string

	mu sync.Mutex
}

func NewHub(s *store.Store, bus *events.Bus, callManager *calls.Manager, typingTTL time.Duration, backfillLimit int) *Hub {
	h := &Hub{
		Storage:       s,
		Bus:           bus,
		Calls:         callManager,
		Clients:       make(map[string]map[*Client]bool),
		Rooms:         make(map[string]map[*Client]bool),
		Broadcast:     make(chan WsMessage),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		typingTTL:     typingTTL,
		backfillLimit: backfillLimit,
		instanceID:    uuid.New().String(),
	}
	h.typing = newTypingTracker(typingTTL, h.typingExpired)
	h.bindBus()
	return h
}

func (h *Hub) Run() {
	log.Println("WebSocket hub started")
	for {
		select {
		case client := <-h.Register:
			h.handleRegister(client)

		case client := <-h.Unregister:
			h.handleUnregister(client)

		case message := <-h.Broadcast:
			h.handleBroadcast(message)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	first := len(h.Clients[client.UserID]) == 0
	if h.Clients[client.UserID] == nil {
		h.Clients[client.UserID] = make(map[*Client]bool)
	}
	h.Clients[client.UserID][client] = true
	h.mu.Unlock()

	if first {
		now := time.Now()
		h.Storage.SetUserPresence(client.UserID, true, now)
		go h.broadcastPresence(client.UserID, true, now)
	}
	log.Printf("Client registered: user=%s, session=%s", client.UserID, client.SessionID)
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	userClients, ok := h.Clients[client.UserID]
	if !ok || !userClients[client] {
		// Already evicted for a full send buffer.
		h.mu.Unlock()
		return
	}
	delete(userClients, client)
	last := len(userClients) == 0
	if last {
		delete(h.Clients, client.UserID)
	}

	// Remove from all conversation rooms
	for roomID := range client.Rooms {
		if room, ok := h.Rooms[roomID]; ok {
			delete(room, client)
			if len(room) == 0 {
				delete(h.Rooms, roomID)
			}
		}
	}
	h.mu.Unlock()

	close(client.Send)

	if last {
		h.userWentOffline(client.UserID)
	}
	log.Printf("Client unregistered: user=%s, session=%s", client.UserID, client.SessionID)
}

// userWentOffline runs the compensating writes for a user whose last
// connection on this instance is gone: a crashed or disconnected client never
// gets to report offline, stop typing, or hang up by itself.
func (h *Hub) userWentOffline(userID string) {
	now := time.Now()
	h.Storage.SetUserPresence(userID, false, now)
	go h.broadcastPresence(userID, false, now)

	for _, conversationID := range h.typing.StopUser(userID) {
		h.Storage.ClearTypingKey(conversationID, userID)
		h.fanOutTyping(conversationID, userID, false)
	}

	go h.Calls.EndActiveCallFor(userID, models.EndReasonConnectionFailed)
}

func (h *Hub) handleBroadcast(message WsMessage) {
	switch message.Type {
	case FrameMessage:
		h.handleChatMessage(message)
	case FrameTyping:
		h.handleTypingFrame(message)
	case FrameCallInitiate, FrameCallAccept, FrameCallDecline,
		FrameCallCandidate, FrameCallState, FrameCallEnd:
		h.handleCallFrame(message)
	default:
		log.Printf("Unknown message type: %s", message.Type)
	}
}

func (h *Hub) handleChatMessage(msg WsMessage) {
	var req models.SendMessageRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return
	}
	if req.ReceiverID == "" || req.ReceiverID == msg.Sender {
		h.sendErrorTo(msg.Sender, apperrors.InvalidArg("invalid receiver"))
		return
	}
	if err := models.ValidateMessageContent(req.Content); err != nil {
		h.sendErrorTo(msg.Sender, err)
		return
	}

	blocked, err := h.Storage.IsBlockedEither(msg.Sender, req.ReceiverID)
	if err != nil {
		h.sendErrorTo(msg.Sender, err)
		return
	}
	if blocked {
		h.sendErrorTo(msg.Sender, apperrors.New(apperrors.CodeBlocked, "cannot message this user"))
		return
	}

	contentType := models.ContentType(req.ContentType)
	if contentType == "" {
		contentType = models.ContentTypeText
	}
	saved, err := h.Storage.SaveMessage(msg.Sender, req.ReceiverID, req.Content, contentType)
	if err != nil {
		h.sendErrorTo(msg.Sender, err)
		return
	}

	// Fan-out happens through the bus so WS and REST sends share one path.
	h.Bus.Publish(events.MessageStored{Message: saved})
}

func (h *Hub) handleTypingFrame(msg WsMessage) {
	var frame typingFrame
	if err := json.Unmarshal(msg.Payload, &frame); err != nil {
		log.Printf("Error unmarshaling typing indicator: %v", err)
		return
	}
	if frame.ReceiverID == "" {
		return
	}
	conversationID := models.ConversationID(msg.Sender, frame.ReceiverID)

	h.Storage.SetTypingKey(conversationID, msg.Sender, h.typingTTL)
	if h.typing.Pulse(conversationID, msg.Sender) {
		h.fanOutTyping(conversationID, msg.Sender, true)
	}
}

func (h *Hub) typingExpired(conversationID, userID string) {
	h.Storage.ClearTypingKey(conversationID, userID)
	h.fanOutTyping(conversationID, userID, false)
}

func (h *Hub) fanOutTyping(conversationID, userID string, typing bool) {
	h.Bus.Publish(events.TypingChanged{Indicator: models.TypingIndicator{
		ConversationID: conversationID,
		UserID:         userID,
		Typing:         typing,
	}})
}

func (h *Hub) handleCallFrame(msg WsMessage) {
	var err error
	switch msg.Type {
	case FrameCallInitiate:
		var req calls.InitiateRequest
		if err = json.Unmarshal(msg.Payload, &req); err == nil {
			var call *models.Call
			if call, err = h.Calls.Initiate(msg.Sender, req); err == nil {
				h.sendToUser(msg.Sender, marshalMessage(WsMessage{
					Type:    FrameCallRinging,
					Target:  msg.Sender,
					Payload: marshalPayload(call),
				}))
			}
		}
	case FrameCallAccept:
		var frame callAcceptFrame
		if err = json.Unmarshal(msg.Payload, &frame); err == nil {
			err = h.Calls.Accept(msg.Sender, frame.CallID, frame.Answer)
		}
	case FrameCallDecline:
		var frame callDeclineFrame
		if err = json.Unmarshal(msg.Payload, &frame); err == nil {
			reason := models.CallEndReason(frame.Reason)
			if reason == "" {
				reason = models.EndReasonHangup
			}
			err = h.Calls.Decline(msg.Sender, frame.CallID, reason)
		}
	case FrameCallCandidate:
		var frame callCandidateFrame
		if err = json.Unmarshal(msg.Payload, &frame); err == nil {
			err = h.Calls.Candidate(msg.Sender, frame.CallID, frame.Candidate)
		}
	case FrameCallState:
		var frame callStateFrame
		if err = json.Unmarshal(msg.Payload, &frame); err == nil {
			err = h.Calls.ReportState(msg.Sender, frame.CallID, frame.State)
		}
	case FrameCallEnd:
		var frame callEndFrame
		if err = json.Unmarshal(msg.Payload, &frame); err == nil {
			reason := models.CallEndReason(frame.Reason)
			if reason == "" {
				reason = models.EndReasonHangup
			}
			err = h.Calls.End(msg.Sender, frame.CallID, reason)
		}
	}
	if err != nil {
		h.sendErrorTo(msg.Sender, err)
	}
}

// bindBus wires domain events to frame delivery. Handlers run on the
// publisher's goroutine; delivery itself is a nonblocking channel send.
func (h *Hub) bindBus() {
	h.Bus.Subscribe(events.TypeMessageStored, func(e events.Event) {
		ev := e.(events.MessageStored)
		frame := WsMessage{
			Type:    FrameMessage,
			RoomID:  ev.Message.ConversationID,
			Sender:  ev.Message.SenderID,
			Target:  ev.Message.ReceiverID,
			Payload: marshalPayload(ev.Message),
		}
		h.deliverToConversation(frame.RoomID, frame.Sender, frame.Target, marshalMessage(frame))
		h.publishSync(frame)
	})

	h.Bus.Subscribe(events.TypeMessageRead, func(e events.Event) {
		ev := e.(events.MessageRead)
		frame := WsMessage{
			Type:   FrameRead,
			RoomID: ev.ConversationID,
			Sender: ev.ReaderID,
			Target: ev.SenderID,
			Payload: marshalPayload(readFrame{
				ConversationID: ev.ConversationID,
				ReaderID:       ev.ReaderID,
				MessageIDs:     ev.MessageIDs,
			}),
		}
		h.sendToUser(ev.SenderID, marshalMessage(frame))
		h.publishSync(frame)
	})

	h.Bus.Subscribe(events.TypePresenceChanged, func(e events.Event) {
		ev := e.(events.PresenceChanged)
		frame := WsMessage{
			Type:    FramePresence,
			Sender:  ev.Presence.UserID,
			Payload: marshalPayload(ev.Presence),
		}
		h.fanOutPresenceLocal(frame)
		h.publishSync(frame)
	})

	h.Bus.Subscribe(events.TypeTypingChanged, func(e events.Event) {
		ev := e.(events.TypingChanged)
		frame := WsMessage{
			Type:    FrameTyping,
			RoomID:  ev.Indicator.ConversationID,
			Sender:  ev.Indicator.UserID,
			Payload: marshalPayload(ev.Indicator),
		}
		h.sendToRoomExcept(frame.RoomID, frame.Sender, marshalMessage(frame))
		h.publishSync(frame)
	})

	h.Bus.Subscribe(events.TypeFriendRequestCreated, func(e events.Event) {
		ev := e.(events.FriendRequestCreated)
		frame := WsMessage{
			Type:    FrameFriendRequest,
			Sender:  ev.Request.SenderID,
			Target:  ev.Request.ReceiverID,
			Payload: marshalPayload(ev.Request),
		}
		h.sendToUser(ev.Request.ReceiverID, marshalMessage(frame))
		h.publishSync(frame)
	})

	h.Bus.Subscribe(events.TypeFriendRequestResolved, func(e events.Event) {
		ev := e.(events.FriendRequestResolved)
		frame := WsMessage{
			Type:    FrameFriendRequestUpdate,
			Sender:  ev.Request.ReceiverID,
			Target:  ev.Request.SenderID,
			Payload: marshalPayload(ev.Request),
		}
		h.sendToUser(ev.Request.SenderID, marshalMessage(frame))
		h.publishSync(frame)
	})

	h.Bus.Subscribe(events.TypeUserBlocked, func(e events.Event) {
		ev := e.(events.UserBlocked)
		conversationID := models.ConversationID(ev.BlockerID, ev.BlockedID)
		h.detachConversation(conversationID)
		h.publishSync(WsMessage{
			Type:   FrameConversationDetached,
			RoomID: conversationID,
		})
	})

	h.Bus.Subscribe(events.TypeSessionRevoked, func(e events.Event) {
		ev := e.(events.SessionRevoked)
		h.dropSession(ev.SessionID)
		h.publishSync(WsMessage{
			Type:    FrameSessionRevoked,
			Payload: marshalPayload(sessionRevokedFrame{SessionID: ev.SessionID}),
		})
	})

	h.Bus.Subscribe(events.TypeCallSignal, func(e events.Event) {
		ev := e.(events.CallSignal)
		frame := WsMessage{
			Type:    ev.Kind,
			Target:  ev.TargetUserID,
			Payload: ev.Payload,
		}
		h.sendToUser(ev.TargetUserID, marshalMessage(frame))
		h.publishSync(frame)
	})
}

// broadcastPresence tells a user's friends that they went online or offline.
// Users who disabled online visibility are never broadcast as online.
func (h *Hub) broadcastPresence(userID string, online bool, lastSeen time.Time) {
	if online {
		user, err := h.Storage.GetUserByID(userID)
		if err != nil || user == nil {
			log.Printf("Error loading user for presence: %v", err)
			return
		}
		if !user.Settings.ShowOnline {
			return
		}
	}

	h.Bus.Publish(events.PresenceChanged{Presence: models.UserPresence{
		UserID:   userID,
		Online:   online,
		LastSeen: lastSeen,
	}})
}

func (h *Hub) fanOutPresenceLocal(frame WsMessage) {
	friends, err := h.Storage.GetFriendIDs(frame.Sender)
	if err != nil {
		log.Printf("Error getting friends for presence: %v", err)
		return
	}
	data := marshalMessage(frame)
	for _, friendID := range friends {
		h.sendToUser(friendID, data)
	}
}

// detachConversation evicts everyone from a room and tells them why.
func (h *Hub) detachConversation(conversationID string) {
	data := marshalMessage(WsMessage{
		Type:   FrameConversationDetached,
		RoomID: conversationID,
		Payload: marshalPayload(detachedFrame{
			ConversationID: conversationID,
			Reason:         "blocked",
		}),
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.Rooms[conversationID]
	if !ok {
		return
	}
	for client := range room {
		delete(client.Rooms, conversationID)
		select {
		case client.Send <- data:
		default:
			close(client.Send)
			delete(room, client)
		}
	}
	delete(h.Rooms, conversationID)
}

// deliverToConversation sends a message frame to the receiver's connections
// plus any other participants watching the room, never back to the sender.
// The set is deduplicated so a receiver inside the room gets one copy.
func (h *Hub) deliverToConversation(roomID, senderID, receiverID string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	targets := make(map[*Client]bool)
	for client := range h.Clients[receiverID] {
		targets[client] = true
	}
	if room, ok := h.Rooms[roomID]; ok {
		for client := range room {
			if client.UserID != senderID {
				targets[client] = true
			}
		}
	}

	for client := range targets {
		select {
		case client.Send <- data:
		default:
			h.evictLocked(client)
		}
	}
}

func (h *Hub) sendToUser(userID string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.Clients[userID] {
		select {
		case client.Send <- data:
		default:
			h.evictLocked(client)
		}
	}
}

func (h *Hub) sendToRoomExcept(roomID, exceptUserID string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.Rooms[roomID]
	if !ok {
		return
	}
	for client := range room {
		if client.UserID == exceptUserID {
			continue
		}
		select {
		case client.Send <- data:
		default:
			h.evictLocked(client)
		}
	}
}

func (h *Hub) sendErrorTo(userID string, err error) {
	var appErr *apperrors.AppError
	message := err.Error()
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	frame := WsMessage{
		Type:   FrameError,
		Target: userID,
		Payload: marshalPayload(errorFrame{
			Code:    string(apperrors.CodeOf(err)),
			Message: message,
		}),
	}
	h.sendToUser(userID, marshalMessage(frame))
}

// evictLocked drops a client whose send buffer is full. Caller holds h.mu.
// The read pump notices the closed channel indirectly when the connection
// dies; removing the client here keeps the maps consistent in the meantime.
func (h *Hub) evictLocked(client *Client) {
	userClients, ok := h.Clients[client.UserID]
	if !ok || !userClients[client] {
		return
	}
	close(client.Send)
	delete(userClients, client)
	if len(userClients) == 0 {
		delete(h.Clients, client.UserID)
		go h.userWentOffline(client.UserID)
	}
	for roomID := range client.Rooms {
		if room, ok := h.Rooms[roomID]; ok {
			delete(room, client)
			if len(room) == 0 {
				delete(h.Rooms, roomID)
			}
		}
	}
}

// dropSession closes every connection authenticated with a revoked session.
// A token from a logged-out session must not keep a live socket.
func (h *Hub) dropSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, userClients := range h.Clients {
		for client := range userClients {
			if client.SessionID == sessionID {
				h.evictLocked(client)
			}
		}
	}
}

// ConnectionCount reports how many live connections a user has on this
// instance.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Clients[userID])
}
