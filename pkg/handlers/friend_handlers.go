package handlers

import (
	"log/slog"
	"net/http"

	"github.com/communityz/backend/pkg/apperrors"
	"github.com/communityz/backend/pkg/auth"
	"github.com/communityz/backend/pkg/events"
	"github.com/communityz/backend/pkg/models"
	"github.com/communityz/backend/pkg/store"
)

type FriendHandler struct {
	store  *store.Store
	bus    *events.Bus
	logger *slog.Logger
}

func NewFriendHandler(store *store.Store, bus *events.Bus, logger *slog.Logger) *FriendHandler {
	return &FriendHandler{store: store, bus: bus, logger: logger}
}

// SendRequest godoc
// @Summary      Send a friend request
// @Tags         friends
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body models.FriendRequestInput true "receiver"
// @Success      201 {object} models.FriendRequest
// @Router       /api/friends/requests [post]
func (h *FriendHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	var req models.FriendRequestInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ReceiverID == "" || req.ReceiverID == userID {
		writeError(w, apperrors.InvalidArg("invalid receiver"))
		return
	}

	receiver, err := h.store.GetUserByID(req.ReceiverID)
	if err != nil {
		writeError(w, err)
		return
	}
	if receiver == nil {
		writeError(w, apperrors.NotFound("user not found"))
		return
	}

	rel, err := h.store.GetRelationState(userID, req.ReceiverID)
	if err != nil {
		h.logger.Error("SendRequest: failed to load relation", "error", err, "user_id", userID)
		writeError(w, err)
		return
	}
	if err := models.CanSendFriendRequest(rel); err != nil {
		h.logger.Warn("SendRequest: rejected", "user_id", userID, "receiver_id", req.ReceiverID,
			"code", apperrors.CodeOf(err))
		writeError(w, err)
		return
	}

	request, err := h.store.CreateFriendRequest(userID, req.ReceiverID)
	if err != nil {
		h.logger.Error("SendRequest: failed to create", "error", err, "user_id", userID)
		writeError(w, err)
		return
	}

	if sender, err := h.store.GetUserByID(userID); err == nil && sender != nil {
		sender.PasswordHash = ""
		sender.Email = ""
		request.Sender = sender
	}

	h.logger.Info("SendRequest: created", "request_id", request.ID,
		"sender_id", userID, "receiver_id", req.ReceiverID)
	h.bus.Publish(events.FriendRequestCreated{Request: request})
	writeJSON(w, http.StatusCreated, request)
}

// ListRequests godoc
// @Summary      List pending friend requests addressed to the caller
// @Tags         friends
// @Security     BearerAuth
// @Produce      json
// @Success      200 {array} models.FriendRequest
// @Router       /api/friends/requests [get]
func (h *FriendHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	requests, err := h.store.ListPendingRequests(userID)
	if err != nil {
		h.logger.Error("ListRequests: failed to list", "error", err, "user_id", userID)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

// AcceptRequest godoc
// @Summary      Accept a pending friend request
// @Tags         friends
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "request id"
// @Success      200 {object} models.FriendRequest
// @Router       /api/friends/requests/{id}/accept [post]
func (h *FriendHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	requestID := r.PathValue("id")

	request, err := h.store.GetFriendRequest(requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	if request == nil {
		writeError(w, apperrors.NotFound("friend request not found"))
		return
	}

	rel, err := h.store.GetRelationState(request.SenderID, request.ReceiverID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := models.CanAcceptFriendRequest(request, userID, rel); err != nil {
		h.logger.Warn("AcceptRequest: rejected", "request_id", requestID,
			"user_id", userID, "code", apperrors.CodeOf(err))
		writeError(w, err)
		return
	}

	resolved, err := h.store.AcceptFriendRequest(requestID)
	if err != nil {
		h.logger.Error("AcceptRequest: failed to accept", "error", err, "request_id", requestID)
		writeError(w, err)
		return
	}

	h.logger.Info("AcceptRequest: accepted", "request_id", requestID,
		"sender_id", resolved.SenderID, "receiver_id", resolved.ReceiverID)
	h.bus.Publish(events.FriendRequestResolved{Request: resolved})
	writeJSON(w, http.StatusOK, resolved)
}

// DeclineRequest godoc
// @Summary      Decline a pending friend request
// @Tags         friends
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "request id"
// @Success      200 {object} models.FriendRequest
// @Router       /api/friends/requests/{id}/decline [post]
func (h *FriendHandler) DeclineRequest(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	requestID := r.PathValue("id")

	request, err := h.store.GetFriendRequest(requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	if request == nil {
		writeError(w, apperrors.NotFound("friend request not found"))
		return
	}

	if err := models.CanDeclineFriendRequest(request, userID); err != nil {
		h.logger.Warn("DeclineRequest: rejected", "request_id", requestID,
			"user_id", userID, "code", apperrors.CodeOf(err))
		writeError(w, err)
		return
	}

	resolved, err := h.store.DeclineFriendRequest(requestID)
	if err != nil {
		h.logger.Error("DeclineRequest: failed to decline", "error", err, "request_id", requestID)
		writeError(w, err)
		return
	}

	h.logger.Info("DeclineRequest: declined", "request_id", requestID)
	h.bus.Publish(events.FriendRequestResolved{Request: resolved})
	writeJSON(w, http.StatusOK, resolved)
}

// ListFriends godoc
// @Summary      List the caller's friends
// @Tags         friends
// @Security     BearerAuth
// @Produce      json
// @Success      200 {array} models.User
// @Router       /api/friends [get]
func (h *FriendHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	friends, err := h.store.ListFriends(userID)
	if err != nil {
		h.logger.Error("ListFriends: failed to list", "error", err, "user_id", userID)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, friends)
}
