package hub

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/communityz/backend/pkg/apperrors"
	"github.com/communityz/backend/pkg/models"
)

type Client struct {
	Hub       *Hub
	UserID    string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte

	// Conversation rooms this connection has joined
	Rooms map[string]bool
}

func NewClient(h *Hub, userID, sessionID string, conn *websocket.Conn) *Client {
	return &Client{
		Hub:       h,
		UserID:    userID,
		SessionID: sessionID,
		Conn:      conn,
		Send:      make(chan []byte, 256),
		Rooms:     make(map[string]bool),
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		var wsMsg WsMessage
		if err := json.Unmarshal(message, &wsMsg); err != nil {
			log.Printf("Error unmarshaling WebSocket message: %v", err)
			continue
		}

		// Set sender from client context
		wsMsg.Sender = c.UserID

		// Room membership is per-connection state, so it is handled here
		// instead of on the hub loop.
		switch wsMsg.Type {
		case FrameConversationJoin:
			c.joinConversation(wsMsg.Payload)
		case FrameConversationLeave:
			c.leaveConversation(wsMsg.Payload)
		default:
			c.Hub.Broadcast <- wsMsg
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// joinConversation attaches the connection to the pair's room and backfills
// everything the client missed since its cursor, so reconnects never rely on
// wall-clock guessing.
func (c *Client) joinConversation(payload json.RawMessage) {
	var frame conversationJoinFrame
	if err := json.Unmarshal(payload, &frame); err != nil || frame.FriendID == "" {
		c.Hub.sendErrorTo(c.UserID, apperrors.InvalidArg("friend_id is required"))
		return
	}
	conversationID := models.ConversationID(c.UserID, frame.FriendID)

	blocked, err := c.Hub.Storage.IsBlockedEither(c.UserID, frame.FriendID)
	if err != nil {
		c.Hub.sendErrorTo(c.UserID, err)
		return
	}
	if blocked {
		c.Hub.sendErrorTo(c.UserID, apperrors.New(apperrors.CodeBlocked, "cannot open this conversation"))
		return
	}

	c.Hub.mu.Lock()
	if c.Hub.Rooms[conversationID] == nil {
		c.Hub.Rooms[conversationID] = make(map[*Client]bool)
	}
	c.Hub.Rooms[conversationID][c] = true
	c.Rooms[conversationID] = true
	c.Hub.mu.Unlock()

	messages, err := c.Hub.Storage.GetMessagesSince(conversationID, frame.SinceSeq, c.Hub.backfillLimit)
	if err != nil {
		c.Hub.sendErrorTo(c.UserID, err)
		return
	}
	data := marshalMessage(WsMessage{
		Type:   FrameConversationHistory,
		RoomID: conversationID,
		Payload: marshalPayload(historyFrame{
			ConversationID: conversationID,
			Messages:       messages,
		}),
	})
	select {
	case c.Send <- data:
	default:
	}
}

func (c *Client) leaveConversation(payload json.RawMessage) {
	var frame conversationLeaveFrame
	if err := json.Unmarshal(payload, &frame); err != nil || frame.FriendID == "" {
		return
	}
	conversationID := models.ConversationID(c.UserID, frame.FriendID)

	c.Hub.mu.Lock()
	if room, ok := c.Hub.Rooms[conversationID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(c.Hub.Rooms, conversationID)
		}
	}
	delete(c.Rooms, conversationID)
	c.Hub.mu.Unlock()

	if c.Hub.typing.Stop(conversationID, c.UserID) {
		c.Hub.Storage.ClearTypingKey(conversationID, c.UserID)
		c.Hub.fanOutTyping(conversationID, c.UserID, false)
	}
}
