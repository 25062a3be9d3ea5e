package handler

import (
	"net/http"
	"time"

	"github.com/resumly/resumly/internal/server/middleware"
	"github.com/resumly/resumly/internal/service"
	"github.com/resumly/resumly/internal/store"
)

// sessionTTL is how long an issued session token stays valid.
const sessionTTL = 24 * time.Hour

// SystemHandler serves session management and account info.
type SystemHandler struct {
	store *store.Store
	auth  *service.Auth
}

// NewSystemHandler creates a SystemHandler.
func NewSystemHandler(st *store.Store, auth *service.Auth) *SystemHandler {
	return &SystemHandler{store: st, auth: auth}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"session_token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
}

// Login authenticates a user and returns a JWT session token.
// POST /api/v1/system/session
func (h *SystemHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	token, err := h.auth.IssueJWT(user.ID, user.Email, sessionTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token: "+err.Error())
		return
	}
	_ = h.store.UpdateUserLastLogin(r.Context(), user.ID)

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "bearer",
		ExpiresIn: int(sessionTTL.Seconds()),
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
	})
}

// Logout ends the session. JWTs are stateless; clients discard the token.
// DELETE /api/v1/system/session
func (h *SystemHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Me returns the authenticated user's account.
// GET /api/v1/system/me
func (h *SystemHandler) Me(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	if session == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	user, err := h.store.GetUser(r.Context(), session.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
