package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/communityz/backend/pkg/events"
)

func TestSearchUsersRequiresUsernameParam(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewUserHandler(nil, events.NewBus(), logger)

	// Lookup is keyed by the username query parameter; anything else is a
	// bad request before the store is touched.
	w := httptest.NewRecorder()
	h.SearchUsers(w, authedRequest(t, "alice", http.MethodGet, "/api/users/search?q=bob", ""))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "username")
}
