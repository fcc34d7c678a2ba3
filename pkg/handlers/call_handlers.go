package handlers

import (
	"log/slog"
	"net/http"

	"github.com/communityz/backend/pkg/apperrors"
	"github.com/communityz/backend/pkg/auth"
	"github.com/communityz/backend/pkg/store"
)

const defaultCallHistoryLimit = 50

type CallHandler struct {
	store  *store.Store
	logger *slog.Logger
}

func NewCallHandler(store *store.Store, logger *slog.Logger) *CallHandler {
	return &CallHandler{store: store, logger: logger}
}

// ListCalls godoc
// @Summary      List the caller's call history
// @Tags         calls
// @Security     BearerAuth
// @Produce      json
// @Param        limit query int false "page size"
// @Success      200 {array} models.Call
// @Router       /api/calls [get]
func (h *CallHandler) ListCalls(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	limit := queryInt(r, "limit", defaultCallHistoryLimit)
	if limit <= 0 || limit > 200 {
		limit = defaultCallHistoryLimit
	}

	calls, err := h.store.ListCallsForUser(userID, limit)
	if err != nil {
		h.logger.Error("ListCalls: failed to list", "error", err, "user_id", userID)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

// GetCall godoc
// @Summary      Get one call record
// @Tags         calls
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "call id"
// @Success      200 {object} models.Call
// @Router       /api/calls/{id} [get]
func (h *CallHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	callID := r.PathValue("id")

	call, err := h.store.GetCall(callID)
	if err != nil {
		writeError(w, err)
		return
	}
	if call == nil || call.Peer(userID) == "" {
		writeError(w, apperrors.NotFound("call not found"))
		return
	}
	writeJSON(w, http.StatusOK, call)
}
