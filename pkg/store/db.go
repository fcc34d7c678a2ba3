package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
)

type Store struct {
	DB     *sql.DB
	RDB    *redis.Client
	Ctx    context.Context
	logger *slog.Logger
}

func NewStore(ctx context.Context, pgConnStr, redisURL string, logger *slog.Logger) (*Store, error) {
	var db *sql.DB
	var err error

	logger.Info("Initializing store", "redis_url", redisURL)

	// Retry Postgres connection 5 times
	for i := 0; i < 5; i++ {
		db, err = sql.Open("postgres", pgConnStr)
		if err == nil {
			err = db.Ping()
			if err == nil {
				logger.Info("PostgreSQL connection successful", "attempt", i+1)
				break
			}
		}
		logger.Warn("Waiting for PostgreSQL...", "attempt", i+1, "max_attempts", 5, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	rdb, err := InitRedis(redisURL)
	if err != nil {
		logger.Error("Failed to initialize Redis", "error", err)
		return nil, err
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to ping Redis", "error", err)
		return nil, err
	}

	logger.Info("Successfully connected to PostgreSQL and Redis")

	return &Store{
		DB:     db,
		RDB:    rdb,
		Ctx:    ctx,
		logger: logger,
	}, nil
}

func (s *Store) InitSchema() error {
	s.logger.Info("Initializing database schema")

	schema := `
		-- Users table
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			email VARCHAR(255) UNIQUE NOT NULL,
			username VARCHAR(50) NOT NULL,
			username_lower VARCHAR(50) UNIQUE NOT NULL,
			display_name VARCHAR(100) NOT NULL,
			avatar_url TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			online BOOLEAN NOT NULL DEFAULT FALSE,
			last_seen TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			notifications BOOLEAN NOT NULL DEFAULT TRUE,
			show_online BOOLEAN NOT NULL DEFAULT TRUE,
			read_receipts BOOLEAN NOT NULL DEFAULT TRUE
		);

		CREATE INDEX IF NOT EXISTS idx_users_username_lower ON users(username_lower);
		CREATE INDEX IF NOT EXISTS idx_users_last_seen ON users(last_seen);

		-- User sessions
		CREATE TABLE IF NOT EXISTS user_sessions (
			user_id UUID REFERENCES users(id) ON DELETE CASCADE,
			session_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			device_info TEXT,
			ip_address INET,
			last_active TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		);

		-- Friend edges: one row per direction, written in the same transaction
		-- so both sides share a timestamp.
		CREATE TABLE IF NOT EXISTS friends (
			user_id UUID REFERENCES users(id) ON DELETE CASCADE,
			friend_id UUID REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, friend_id)
		);

		CREATE INDEX IF NOT EXISTS idx_friends_user_id ON friends(user_id);

		-- Block edges
		CREATE TABLE IF NOT EXISTS blocks (
			blocker_id UUID REFERENCES users(id) ON DELETE CASCADE,
			blocked_id UUID REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (blocker_id, blocked_id)
		);

		-- Friend requests. The partial unique index enforces at most one
		-- pending request per ordered (sender, receiver) pair.
		CREATE TABLE IF NOT EXISTS friend_requests (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			sender_id UUID REFERENCES users(id) ON DELETE CASCADE,
			receiver_id UUID REFERENCES users(id) ON DELETE CASCADE,
			status VARCHAR(10) NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'accepted', 'declined')),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			resolved_at TIMESTAMP
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_friend_requests_pending
			ON friend_requests(sender_id, receiver_id) WHERE status = 'pending';
		CREATE INDEX IF NOT EXISTS idx_friend_requests_receiver
			ON friend_requests(receiver_id) WHERE status = 'pending';

		-- Conversation metadata, one row per user pair. id is the canonical
		-- sorted join of the two participant ids.
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_a UUID NOT NULL REFERENCES users(id),
			user_b UUID NOT NULL REFERENCES users(id),
			last_message TEXT NOT NULL DEFAULT '',
			last_message_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_sender_id UUID REFERENCES users(id)
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_user_a ON conversations(user_a);
		CREATE INDEX IF NOT EXISTS idx_conversations_user_b ON conversations(user_b);

		-- Messages. seq is the delivery cursor: monotonic with insertion, used
		-- for pagination and for backfilling room joins.
		CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			seq BIGSERIAL,
			sender_id UUID REFERENCES users(id),
			receiver_id UUID REFERENCES users(id),
			content TEXT NOT NULL,
			content_type VARCHAR(10) NOT NULL DEFAULT 'text',
			read BOOLEAN NOT NULL DEFAULT FALSE,
			sent_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq ON messages(conversation_id, seq);
		CREATE INDEX IF NOT EXISTS idx_messages_unread
			ON messages(conversation_id, receiver_id) WHERE read = FALSE;

		-- Call records
		CREATE TABLE IF NOT EXISTS calls (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			caller_id UUID REFERENCES users(id),
			receiver_id UUID REFERENCES users(id),
			media_type VARCHAR(10) NOT NULL CHECK (media_type IN ('audio', 'video')),
			status VARCHAR(10) NOT NULL DEFAULT 'calling'
				CHECK (status IN ('calling', 'accepted', 'declined', 'ended')),
			offer JSONB,
			answer JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_calls_caller ON calls(caller_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_calls_receiver ON calls(receiver_id, created_at);

		-- ICE candidates, keyed by the participant that discovered them
		CREATE TABLE IF NOT EXISTS call_candidates (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			call_id UUID NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
			owner_id UUID REFERENCES users(id),
			candidate JSONB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_call_candidates_call ON call_candidates(call_id, owner_id);
	`

	_, err := s.DB.Exec(schema)
	if err != nil {
		s.logger.Error("Failed to initialize schema", "error", err)
		return err
	}

	s.logger.Info("Database schema initialized successfully")
	return nil
}

func (s *Store) Close() error {
	s.logger.Info("Closing store connections")

	var errs []error

	if err := s.DB.Close(); err != nil {
		s.logger.Error("Failed to close PostgreSQL connection", "error", err)
		errs = append(errs, fmt.Errorf("postgres close error: %w", err))
	}

	if err := s.RDB.Close(); err != nil {
		s.logger.Error("Failed to close Redis connection", "error", err)
		errs = append(errs, fmt.Errorf("redis close error: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing store: %v", errs)
	}
	return nil
}

// StartCleanupWorker periodically expires stale sessions and finished call
// candidate rows. Runs until the process exits.
func (s *Store) StartCleanupWorker(interval, maxAge time.Duration) {
	s.logger.Info("Starting cleanup worker", "interval", interval, "max_age", maxAge)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		result, err := s.DB.Exec(`
			DELETE FROM user_sessions
			WHERE last_active < NOW() - $1::interval
		`, maxAge.String())
		if err != nil {
			s.logger.Error("Error cleaning up sessions", "error", err)
		} else {
			if rows, _ := result.RowsAffected(); rows > 0 {
				s.logger.Debug("Cleaned up expired sessions", "deleted_rows", rows)
			}
		}

		// Candidates have no use once the call record is terminal.
		result, err = s.DB.Exec(`
			DELETE FROM call_candidates
			WHERE call_id IN (
				SELECT id FROM calls
				WHERE status IN ('declined', 'ended')
				AND created_at < NOW() - $1::interval
			)
		`, maxAge.String())
		if err != nil {
			s.logger.Error("Error cleaning up call candidates", "error", err)
		} else {
			if rows, _ := result.RowsAffected(); rows > 0 {
				s.logger.Debug("Cleaned up stale call candidates", "deleted_rows", rows)
			}
		}
	}
}

// advisory logs a failed best-effort write. Presence, typing and read-receipt
// updates use it: they are never surfaced to the caller.
func (s *Store) advisory(op string, err error) {
	if err != nil {
		s.logger.Warn("Advisory write failed", "op", op, "error", err)
	}
}
