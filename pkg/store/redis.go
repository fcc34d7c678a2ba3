package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/communityz/backend/pkg/models"
)

// SyncChannel is the pub/sub channel mirroring hub frames across instances.
const SyncChannel = "cz_sync"

const presenceTTL = 5 * time.Minute

func InitRedis(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 100
	opt.MinIdleConns = 10
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.PoolTimeout = 4 * time.Second

	return redis.NewClient(opt), nil
}

// Redis keys
func presenceKey(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

func typingKey(conversationID, userID string) string {
	return fmt.Sprintf("typing:%s:%s", conversationID, userID)
}

func loginFailKey(email string) string {
	return fmt.Sprintf("login_fail:%s", email)
}

// CachePresence mirrors the presence flag into Redis. Advisory: errors are
// logged and swallowed.
func (s *Store) CachePresence(presence models.UserPresence) {
	if !presence.Online {
		s.advisory("presence.clear", s.RDB.Del(s.Ctx, presenceKey(presence.UserID)).Err())
		return
	}

	data, err := json.Marshal(presence)
	if err != nil {
		s.advisory("presence.marshal", err)
		return
	}
	s.advisory("presence.set", s.RDB.Set(s.Ctx, presenceKey(presence.UserID), data, presenceTTL).Err())
}

func (s *Store) GetCachedPresence(userID string) (*models.UserPresence, error) {
	data, err := s.RDB.Get(s.Ctx, presenceKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var presence models.UserPresence
	if err := json.Unmarshal(data, &presence); err != nil {
		return nil, err
	}
	return &presence, nil
}

// OnlineAmong filters userIDs down to those with a live presence key.
func (s *Store) OnlineAmong(userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = presenceKey(id)
	}

	values, err := s.RDB.MGet(s.Ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var online []string
	for i, v := range values {
		if v != nil {
			online = append(online, userIDs[i])
		}
	}
	return online, nil
}

// SetTypingKey records a typing pulse with the given TTL. Fire-and-forget.
func (s *Store) SetTypingKey(conversationID, userID string, ttl time.Duration) {
	s.advisory("typing.set", s.RDB.Set(s.Ctx, typingKey(conversationID, userID), "1", ttl).Err())
}

func (s *Store) ClearTypingKey(conversationID, userID string) {
	s.advisory("typing.clear", s.RDB.Del(s.Ctx, typingKey(conversationID, userID)).Err())
}

// RegisterLoginFailure bumps the per-email failure counter and returns the new
// count. The counter expires after window.
func (s *Store) RegisterLoginFailure(email string, window time.Duration) (int64, error) {
	key := loginFailKey(email)
	count, err := s.RDB.Incr(s.Ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		s.RDB.Expire(s.Ctx, key, window)
	}
	return count, nil
}

func (s *Store) LoginFailures(email string) (int64, error) {
	count, err := s.RDB.Get(s.Ctx, loginFailKey(email)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

func (s *Store) ResetLoginFailures(email string) {
	s.advisory("login_fail.reset", s.RDB.Del(s.Ctx, loginFailKey(email)).Err())
}
