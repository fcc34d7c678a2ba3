package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/communityz/backend/config"
	"github.com/communityz/backend/pkg/auth"
	"github.com/communityz/backend/pkg/calls"
	"github.com/communityz/backend/pkg/events"
	"github.com/communityz/backend/pkg/hub"
	"github.com/communityz/backend/pkg/routes"
	"github.com/communityz/backend/pkg/store"

	_ "github.com/communityz/backend/docs"
)

// @title           CommunityZ API
// @version         1.0
// @description     Realtime 1:1 chat and call signaling backend.
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Set log output to stdout/stderr for Docker
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile | log.Lmicroseconds)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg := config.Load()

	log.Printf("Starting CommunityZ server on port %s\n", cfg.Server.Port)
	log.Printf("Environment: %s\n", cfg.Server.Env)

	// 1. Initialize Storage
	log.Println("Initializing storage...")
	storage, err := store.NewStore(ctx, cfg.Database.URL, cfg.Redis.URL, logger)
	if err != nil {
		log.Fatalf("Failed to connect to storage: %v", err)
	}
	defer storage.Close()

	// Initialize database schema
	log.Println("Initializing database schema...")
	if err := storage.InitSchema(); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	// Start cleanup worker
	go storage.StartCleanupWorker(1*time.Hour, 24*time.Hour*30)

	// 2. Initialize JWT authentication
	log.Println("Initializing authentication...")
	auth.InitJWT(cfg.JWT.Secret, cfg.JWT.Expiration)

	// 3. Wire the event bus and call manager
	bus := events.NewBus()
	callManager := calls.NewManager(storage, bus, cfg.Calls.RingTimeout, logger)

	// 4. Initialize WebSocket Hub
	log.Println("Initializing WebSocket hub...")
	wsHub := hub.NewHub(storage, bus, callManager, cfg.Chat.TypingTTL, cfg.Chat.PageSize)
	go wsHub.Run()
	go wsHub.ListenToRedis()

	// 5. Initialize HTTP router
	log.Println("Setting up routes...")
	router := routes.NewRouter(wsHub, storage, bus, cfg, logger)

	// 6. Start HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Printf("CommunityZ server starting on http://localhost:%s", cfg.Server.Port)
	log.Println("Server is ready to accept connections")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
}
