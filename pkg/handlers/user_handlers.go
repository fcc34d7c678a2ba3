package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/communityz/backend/pkg/apperrors"
	"github.com/communityz/backend/pkg/auth"
	"github.com/communityz/backend/pkg/events"
	"github.com/communityz/backend/pkg/models"
	"github.com/communityz/backend/pkg/store"
)

type UserHandler struct {
	store  *store.Store
	bus    *events.Bus
	logger *slog.Logger
}

func NewUserHandler(store *store.Store, bus *events.Bus, logger *slog.Logger) *UserHandler {
	return &UserHandler{store: store, bus: bus, logger: logger}
}

// GetCurrentUser godoc
// @Summary      Get the authenticated user's profile
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} models.User
// @Router       /api/users/me [get]
func (h *UserHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	user, err := h.store.GetUserByID(userID)
	if err != nil {
		h.logger.Error("GetCurrentUser: failed to get user", "error", err, "user_id", userID)
		writeError(w, err)
		return
	}
	if user == nil {
		writeError(w, apperrors.NotFound("user not found"))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateSettings godoc
// @Summary      Update profile and notification settings
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body models.SettingsUpdateRequest true "fields to change"
// @Success      200 {object} models.User
// @Router       /api/users/me [patch]
func (h *UserHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	var req models.SettingsUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("UpdateSettings: invalid request body", "user_id", userID)
		writeError(w, err)
		return
	}
	if req.DisplayName != nil && strings.TrimSpace(*req.DisplayName) == "" {
		writeError(w, apperrors.InvalidArg("display name cannot be empty"))
		return
	}

	if err := h.store.UpdateUserSettings(userID, &req); err != nil {
		h.logger.Error("UpdateSettings: failed to update", "error", err, "user_id", userID)
		writeError(w, err)
		return
	}

	user, err := h.store.GetUserByID(userID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("UpdateSettings: settings updated", "user_id", userID)
	writeJSON(w, http.StatusOK, user)
}

// SearchUsers godoc
// @Summary      Look up a user by exact username
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        username query string true "username"
// @Success      200 {object} models.User
// @Router       /api/users/search [get]
func (h *UserHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	query := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("username")))
	if query == "" {
		writeError(w, apperrors.InvalidArg("query parameter username is required"))
		return
	}

	user, err := h.store.GetUserByUsername(query)
	if err != nil {
		h.logger.Error("SearchUsers: lookup failed", "error", err, "query", query)
		writeError(w, err)
		return
	}
	if user == nil || user.ID == userID {
		writeError(w, apperrors.NotFound("no user with that username"))
		return
	}

	// Blocked pairs must not discover each other.
	blocked, err := h.store.IsBlockedEither(userID, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if blocked {
		writeError(w, apperrors.NotFound("no user with that username"))
		return
	}

	user.PasswordHash = ""
	user.Email = ""
	writeJSON(w, http.StatusOK, user)
}

// GetUser godoc
// @Summary      Get a user's public profile
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "user id"
// @Success      200 {object} models.User
// @Router       /api/users/{id} [get]
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	targetID := r.PathValue("id")

	user, err := h.store.GetUserByID(targetID)
	if err != nil {
		h.logger.Error("GetUser: failed to get user", "error", err, "target_id", targetID)
		writeError(w, err)
		return
	}
	if user == nil {
		writeError(w, apperrors.NotFound("user not found"))
		return
	}

	user.PasswordHash = ""
	user.Email = ""
	writeJSON(w, http.StatusOK, user)
}

// GetOnlineFriends godoc
// @Summary      List which friends are currently online
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Success      200 {array} models.UserPresence
// @Router       /api/users/online [get]
func (h *UserHandler) GetOnlineFriends(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	friendIDs, err := h.store.GetFriendIDs(userID)
	if err != nil {
		h.logger.Error("GetOnlineFriends: failed to get friends", "error", err, "user_id", userID)
		writeError(w, err)
		return
	}

	onlineIDs, err := h.store.OnlineAmong(friendIDs)
	if err != nil {
		h.logger.Error("GetOnlineFriends: presence lookup failed", "error", err, "user_id", userID)
		writeError(w, err)
		return
	}

	users, err := h.store.GetUsersByIDs(onlineIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	// Friends who turned off online visibility stay hidden.
	presence := make([]models.UserPresence, 0, len(users))
	for _, u := range users {
		if !u.Settings.ShowOnline {
			continue
		}
		presence = append(presence, models.UserPresence{
			UserID:   u.ID,
			Online:   true,
			LastSeen: u.LastSeen,
		})
	}
	writeJSON(w, http.StatusOK, presence)
}

// BlockUser godoc
// @Summary      Block a user and sever the friendship
// @Tags         users
// @Security     BearerAuth
// @Param        id path string true "user id to block"
// @Success      204
// @Router       /api/users/{id}/block [post]
func (h *UserHandler) BlockUser(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	targetID := r.PathValue("id")

	if targetID == userID {
		writeError(w, apperrors.InvalidArg("cannot block yourself"))
		return
	}

	target, err := h.store.GetUserByID(targetID)
	if err != nil {
		writeError(w, err)
		return
	}
	if target == nil {
		writeError(w, apperrors.NotFound("user not found"))
		return
	}

	if err := h.store.BlockUser(userID, targetID); err != nil {
		h.logger.Error("BlockUser: failed to block", "error", err, "user_id", userID, "target_id", targetID)
		writeError(w, err)
		return
	}

	h.logger.Info("BlockUser: user blocked", "user_id", userID, "target_id", targetID)
	h.bus.Publish(events.UserBlocked{BlockerID: userID, BlockedID: targetID})
	w.WriteHeader(http.StatusNoContent)
}

// UnblockUser godoc
// @Summary      Remove a block
// @Tags         users
// @Security     BearerAuth
// @Param        id path string true "user id to unblock"
// @Success      204
// @Router       /api/users/{id}/block [delete]
func (h *UserHandler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	targetID := r.PathValue("id")

	if err := h.store.UnblockUser(userID, targetID); err != nil {
		h.logger.Warn("UnblockUser: failed to unblock", "error", err, "user_id", userID, "target_id", targetID)
		writeError(w, err)
		return
	}

	h.logger.Info("UnblockUser: block removed", "user_id", userID, "target_id", targetID)
	w.WriteHeader(http.StatusNoContent)
}

// GetBlockedUsers godoc
// @Summary      List users the caller has blocked
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Success      200 {array} models.User
// @Router       /api/users/blocked [get]
func (h *UserHandler) GetBlockedUsers(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	users, err := h.store.ListBlockedUsers(userID)
	if err != nil {
		h.logger.Error("GetBlockedUsers: failed to list", "error", err, "user_id", userID)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
