package hub

import (
	"encoding/json"
	"log"

	"github.com/communityz/backend/pkg/store"
)

// publishSync mirrors a frame to the other hub instances through Redis
// pub/sub. Origin is stamped so the publishing instance ignores its own echo.
func (h *Hub) publishSync(msg WsMessage) {
	msg.Origin = h.instanceID
	go func() {
		payload, err := json.Marshal(msg)
		if err != nil {
			log.Printf("Error marshaling sync frame: %v", err)
			return
		}
		if err := h.Storage.RDB.Publish(h.Storage.Ctx, store.SyncChannel, payload).Err(); err != nil {
			log.Printf("Error publishing sync frame: %v", err)
		}
	}()
}

func (h *Hub) ListenToRedis() {
	pubsub := h.Storage.RDB.Subscribe(h.Storage.Ctx, store.SyncChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	log.Println("Listening for Redis Pub/Sub messages...")

	for msg := range ch {
		var incoming WsMessage
		if err := json.Unmarshal([]byte(msg.Payload), &incoming); err != nil {
			log.Printf("Error unmarshaling Redis message: %v", err)
			continue
		}
		if incoming.Origin == h.instanceID {
			continue
		}

		switch incoming.Type {
		case FrameMessage:
			h.deliverToConversation(incoming.RoomID, incoming.Sender, incoming.Target, marshalMessage(incoming))
		case FrameTyping:
			h.sendToRoomExcept(incoming.RoomID, incoming.Sender, marshalMessage(incoming))
		case FramePresence:
			h.fanOutPresenceLocal(incoming)
		case FrameConversationDetached:
			h.detachConversation(incoming.RoomID)
		case FrameSessionRevoked:
			var frame sessionRevokedFrame
			if err := json.Unmarshal(incoming.Payload, &frame); err == nil {
				h.dropSession(frame.SessionID)
			}
		default:
			if incoming.Target != "" {
				h.sendToUser(incoming.Target, marshalMessage(incoming))
			} else {
				log.Printf("Unknown Redis message type: %s", incoming.Type)
			}
		}
	}
}
