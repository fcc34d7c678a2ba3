package handlers

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/communityz/backend/pkg/auth"
	"github.com/communityz/backend/pkg/hub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		// In production, specify allowed origins
		return true
	},
}

func HandleWS(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Browsers cannot set headers on WebSocket requests, so the token
		// rides in the query string.
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "Token required", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}

		client := hub.NewClient(h, claims.UserID, claims.SessionID, conn)
		h.Register <- client

		go client.WritePump()
		go client.ReadPump()

		log.Printf("WebSocket connection established: user=%s, session=%s",
			claims.UserID, claims.SessionID)
	}
}
