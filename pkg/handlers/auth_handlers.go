package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/communityz/backend/config"
	"github.com/communityz/backend/pkg/apperrors"
	"github.com/communityz/backend/pkg/auth"
	"github.com/communityz/backend/pkg/events"
	"github.com/communityz/backend/pkg/models"
	"github.com/communityz/backend/pkg/store"
)

var (
	usernameRe = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

type AuthHandler struct {
	store     *store.Store
	bus       *events.Bus
	rateLimit config.RateLimitConfig
	logger    *slog.Logger
}

func NewAuthHandler(store *store.Store, bus *events.Bus, rateLimit config.RateLimitConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{store: store, bus: bus, rateLimit: rateLimit, logger: logger}
}

// Register godoc
// @Summary      Register a new account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body models.RegisterRequest true "registration details"
// @Success      201 {object} models.AuthResponse
// @Router       /api/auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("Register: invalid request body")
		writeError(w, err)
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))

	h.logger.Info("Register: processing registration", "email", req.Email, "username", req.Username)

	if !emailRe.MatchString(req.Email) {
		writeError(w, apperrors.InvalidArg("invalid email address"))
		return
	}
	if !usernameRe.MatchString(req.Username) {
		writeError(w, apperrors.InvalidArg("username must be 3-20 characters: lowercase letters, digits, underscore"))
		return
	}
	if req.Password != req.ConfirmPassword {
		writeError(w, apperrors.InvalidArg("passwords do not match"))
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		h.logger.Warn("Register: weak password", "email", req.Email)
		writeError(w, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("Register: failed to hash password", "error", err)
		writeError(w, apperrors.Internal("failed to process password"))
		return
	}

	user := &models.User{
		Email:        req.Email,
		Username:     req.Username,
		DisplayName:  req.Username,
		AvatarURL:    defaultAvatarURL(req.Username),
		PasswordHash: hash,
		Settings:     models.DefaultSettings(),
	}
	if err := h.store.CreateUser(user); err != nil {
		h.logger.Warn("Register: failed to create user", "error", err, "email", req.Email)
		writeError(w, err)
		return
	}

	h.logger.Info("Register: new user created", "user_id", user.ID, "username", user.Username)

	response, err := h.openSession(r, user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, response)
}

// Login godoc
// @Summary      Authenticate with email and password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body models.LoginRequest true "credentials"
// @Success      200 {object} models.AuthResponse
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("Login: invalid request body")
		writeError(w, err)
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	h.logger.Info("Login: processing login", "email", req.Email)

	if failures, err := h.store.LoginFailures(req.Email); err == nil &&
		failures >= int64(h.rateLimit.LoginMaxAttempts) {
		h.logger.Warn("Login: rate limited", "email", req.Email, "failures", failures)
		writeError(w, apperrors.New(apperrors.CodeRateLimited, "too many failed attempts, try again later"))
		return
	}

	user, err := h.store.GetUserByEmail(req.Email)
	if err != nil {
		h.logger.Error("Login: failed to look up user", "error", err, "email", req.Email)
		writeError(w, err)
		return
	}
	if user == nil {
		// Same failure as a wrong password so the endpoint does not leak
		// which emails exist.
		h.registerFailure(req.Email)
		writeError(w, apperrors.New(apperrors.CodeWrongPassword, "invalid email or password"))
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		h.logger.Warn("Login: wrong password", "user_id", user.ID)
		h.registerFailure(req.Email)
		writeError(w, apperrors.New(apperrors.CodeWrongPassword, "invalid email or password"))
		return
	}

	h.store.ResetLoginFailures(req.Email)

	response, err := h.openSession(r, user)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("Login: successful", "user_id", user.ID)
	writeJSON(w, http.StatusOK, response)
}

// Logout godoc
// @Summary      Invalidate the current session
// @Tags         auth
// @Security     BearerAuth
// @Success      204
// @Router       /api/auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	sessionID := auth.GetSessionID(r.Context())

	if err := h.store.DeleteSession(sessionID); err != nil {
		h.logger.Error("Logout: failed to delete session", "error", err, "user_id", userID)
		writeError(w, err)
		return
	}

	// Drop any websocket connections still authenticated with this session.
	h.bus.Publish(events.SessionRevoked{SessionID: sessionID})

	h.logger.Info("Logout: session closed", "user_id", userID, "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// Verify godoc
// @Summary      Verify the current token and session
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} models.User
// @Router       /api/auth/verify [get]
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	sessionID := auth.GetSessionID(r.Context())

	session, err := h.store.GetUserSession(sessionID)
	if err != nil {
		h.logger.Error("Verify: failed to look up session", "error", err, "user_id", userID)
		writeError(w, err)
		return
	}
	if session == nil || !session.IsActive {
		writeError(w, apperrors.Unauthorized("session is no longer active"))
		return
	}

	user, err := h.store.GetUserByID(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if user == nil {
		writeError(w, apperrors.NotFound("user not found"))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) openSession(r *http.Request, user *models.User) (*models.AuthResponse, error) {
	sessionID := uuid.New().String()
	if err := h.store.CreateUserSession(user.ID, sessionID, r.UserAgent(), getIPAddress(r)); err != nil {
		h.logger.Error("openSession: failed to create session", "error", err, "user_id", user.ID)
		return nil, err
	}

	token, expiresAt, err := auth.GenerateJWT(user.ID, sessionID)
	if err != nil {
		h.logger.Error("openSession: failed to generate JWT", "error", err, "user_id", user.ID)
		return nil, apperrors.Internal("failed to generate token")
	}

	return &models.AuthResponse{Token: token, User: *user, ExpiresAt: expiresAt}, nil
}

func (h *AuthHandler) registerFailure(email string) {
	if _, err := h.store.RegisterLoginFailure(email, h.rateLimit.LoginWindow); err != nil {
		h.logger.Warn("Login: failed to record failure", "error", err)
	}
}

func defaultAvatarURL(username string) string {
	return fmt.Sprintf("https://api.dicebear.com/7.x/initials/svg?seed=%s", url.QueryEscape(username))
}
