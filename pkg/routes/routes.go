package routes

import (
	"log/slog"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/communityz/backend/config"
	"github.com/communityz/backend/pkg/auth"
	"github.com/communityz/backend/pkg/events"
	"github.com/communityz/backend/pkg/handlers"
	"github.com/communityz/backend/pkg/hub"
	"github.com/communityz/backend/pkg/store"
)

func NewRouter(h *hub.Hub, s *store.Store, bus *events.Bus, cfg *config.Config, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	// Create handlers
	authHandler := handlers.NewAuthHandler(s, bus, cfg.RateLimit, logger)
	userHandler := handlers.NewUserHandler(s, bus, logger)
	friendHandler := handlers.NewFriendHandler(s, bus, logger)
	messageHandler := handlers.NewMessageHandler(s, bus, cfg.Chat, logger)
	callHandler := handlers.NewCallHandler(s, logger)

	// Authentication endpoints (no auth required)
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// WebSocket endpoint
	mux.HandleFunc("/ws", handlers.HandleWS(h))

	// Swagger UI
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	// API endpoints with authentication middleware
	apiRouter := http.NewServeMux()

	// Auth endpoints (require auth)
	apiRouter.HandleFunc("POST /api/auth/logout", authHandler.Logout)
	apiRouter.HandleFunc("GET /api/auth/verify", authHandler.Verify)

	// User endpoints
	apiRouter.HandleFunc("GET /api/users/me", userHandler.GetCurrentUser)
	apiRouter.HandleFunc("PUT /api/users/me", userHandler.UpdateSettings)
	apiRouter.HandleFunc("PATCH /api/users/me", userHandler.UpdateSettings)
	apiRouter.HandleFunc("GET /api/users/search", userHandler.SearchUsers)
	apiRouter.HandleFunc("GET /api/users/online", userHandler.GetOnlineFriends)
	apiRouter.HandleFunc("GET /api/users/blocked", userHandler.GetBlockedUsers)
	apiRouter.HandleFunc("GET /api/users/{id}", userHandler.GetUser)
	apiRouter.HandleFunc("POST /api/users/{id}/block", userHandler.BlockUser)
	apiRouter.HandleFunc("DELETE /api/users/{id}/block", userHandler.UnblockUser)

	// Friend endpoints
	apiRouter.HandleFunc("GET /api/friends", friendHandler.ListFriends)
	apiRouter.HandleFunc("GET /api/friends/requests", friendHandler.ListRequests)
	apiRouter.HandleFunc("POST /api/friends/requests", friendHandler.SendRequest)
	apiRouter.HandleFunc("POST /api/friends/requests/{id}/accept", friendHandler.AcceptRequest)
	apiRouter.HandleFunc("POST /api/friends/requests/{id}/decline", friendHandler.DeclineRequest)

	// Message and conversation endpoints
	apiRouter.HandleFunc("GET /api/messages", messageHandler.GetMessages)
	apiRouter.HandleFunc("POST /api/messages", messageHandler.SendMessage)
	apiRouter.HandleFunc("POST /api/messages/{id}/read", messageHandler.MarkMessageRead)
	apiRouter.HandleFunc("GET /api/conversations", messageHandler.ListConversations)
	apiRouter.HandleFunc("POST /api/conversations/{friendId}/read", messageHandler.MarkConversationRead)
	apiRouter.HandleFunc("DELETE /api/conversations/{friendId}/messages", messageHandler.ClearConversation)

	// Call history endpoints
	apiRouter.HandleFunc("GET /api/calls", callHandler.ListCalls)
	apiRouter.HandleFunc("GET /api/calls/{id}", callHandler.GetCall)

	// Apply authentication middleware to API routes
	mux.Handle("/api/", auth.AuthMiddleware(apiRouter))

	return mux
}
