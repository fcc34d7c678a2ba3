package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Chat.TypingTTL)
	assert.Equal(t, 50, cfg.Chat.PageSize)
	assert.Equal(t, 100, cfg.Chat.MaxPageSize)
	assert.Equal(t, 30*time.Second, cfg.Calls.RingTimeout)
	assert.Equal(t, 5, cfg.RateLimit.LoginMaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.LoginWindow)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.Expiration)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("CHAT_TYPING_TTL", "5s")
	t.Setenv("CALL_RING_TIMEOUT", "45s")
	t.Setenv("LOGIN_MAX_ATTEMPTS", "3")
	t.Setenv("CHAT_PAGE_SIZE", "25")

	cfg := Load()

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Chat.TypingTTL)
	assert.Equal(t, 45*time.Second, cfg.Calls.RingTimeout)
	assert.Equal(t, 3, cfg.RateLimit.LoginMaxAttempts)
	assert.Equal(t, 25, cfg.Chat.PageSize)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("CHAT_PAGE_SIZE", "not-a-number")
	t.Setenv("CALL_RING_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 50, cfg.Chat.PageSize)
	assert.Equal(t, 30*time.Second, cfg.Calls.RingTimeout)
}
