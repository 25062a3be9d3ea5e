package handler

import (
	"net/http"
	"time"

	"github.com/resumly/resumly/internal/model"
	"github.com/resumly/resumly/internal/server/middleware"
	"github.com/resumly/resumly/internal/service"
)

// KeysHandler serves the API key lifecycle for the management UI.
type KeysHandler struct {
	keys    *service.Keys
	rotator *service.Rotator
}

// NewKeysHandler creates a KeysHandler.
func NewKeysHandler(keys *service.Keys, rotator *service.Rotator) *KeysHandler {
	return &KeysHandler{keys: keys, rotator: rotator}
}

type createKeyRequest struct {
	Name             string     `json:"name"`
	ResumeID         *int64     `json:"resume_id"`
	IsAdmin          bool       `json:"is_admin"`
	Permissions      []string   `json:"permissions"`
	ExpiresAt        *time.Time `json:"expires_at"`
	MaxUses          *int64     `json:"max_uses"`
	RateLimit        int        `json:"rate_limit"`
	IPWhitelist      []string   `json:"ip_whitelist"`
	UserAgentPattern string     `json:"user_agent_pattern"`
	RotationPolicy   string     `json:"rotation_policy"`
}

// createKeyResponse carries the plaintext secret. This is the only
// response that ever contains it.
type createKeyResponse struct {
	*model.APIKey
	Key string `json:"key"`
}

// Create issues a new API key and returns the plaintext exactly once.
// POST /api/v1/system/key
func (h *KeysHandler) Create(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	key, secret, err := h.keys.Create(r.Context(), session.UserID, service.KeySpec{
		Name:             req.Name,
		ResumeID:         req.ResumeID,
		IsAdmin:          req.IsAdmin,
		Permissions:      req.Permissions,
		ExpiresAt:        req.ExpiresAt,
		MaxUses:          req.MaxUses,
		RateLimit:        req.RateLimit,
		IPWhitelist:      req.IPWhitelist,
		UserAgentPattern: req.UserAgentPattern,
		RotationPolicy:   model.RotationPolicy(req.RotationPolicy),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	key.KeyHash = ""
	writeJSON(w, http.StatusCreated, createKeyResponse{APIKey: key, Key: secret})
}

// List returns the caller's keys with masked secret material.
// GET /api/v1/system/key
func (h *KeysHandler) List(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	keys, err := h.keys.List(r.Context(), session.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: keys,
		Meta:     &model.ResponseMeta{Count: len(keys)},
	})
}

// Get returns one key.
// GET /api/v1/system/key/{keyId}
func (h *KeysHandler) Get(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	id, err := pathID(r, "keyId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid key ID")
		return
	}
	key, err := h.keys.Get(r.Context(), session.UserID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

type updateKeyRequest struct {
	Name             *string    `json:"name"`
	Permissions      []string   `json:"permissions"`
	ExpiresAt        *time.Time `json:"expires_at"`
	ClearExpiresAt   bool       `json:"clear_expires_at"`
	MaxUses          *int64     `json:"max_uses"`
	ClearMaxUses     bool       `json:"clear_max_uses"`
	RateLimit        *int       `json:"rate_limit"`
	IPWhitelist      []string   `json:"ip_whitelist"`
	UserAgentPattern *string    `json:"user_agent_pattern"`
	RotationPolicy   *string    `json:"rotation_policy"`
}

// Update patches a key's mutable fields. Scope is fixed at creation.
// PATCH /api/v1/system/key/{keyId}
func (h *KeysHandler) Update(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	id, err := pathID(r, "keyId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid key ID")
		return
	}
	var req updateKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	patch := service.KeyPatch{
		Name:             req.Name,
		Permissions:      req.Permissions,
		ExpiresAt:        req.ExpiresAt,
		ClearExpiresAt:   req.ClearExpiresAt,
		MaxUses:          req.MaxUses,
		ClearMaxUses:     req.ClearMaxUses,
		RateLimit:        req.RateLimit,
		IPWhitelist:      req.IPWhitelist,
		UserAgentPattern: req.UserAgentPattern,
	}
	if req.RotationPolicy != nil {
		policy := model.RotationPolicy(*req.RotationPolicy)
		patch.RotationPolicy = &policy
	}
	key, err := h.keys.Update(r.Context(), session.UserID, id, patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

type rotateKeyRequest struct {
	Confirm string `json:"confirm"`
}

// rotateKeyResponse carries the replacement plaintext, shown once.
type rotateKeyResponse struct {
	*model.APIKey
	Key string `json:"key"`
}

// Rotate replaces the key's secret in place, preserving its identity and
// settings. The caller must type the confirmation phrase on every attempt.
// POST /api/v1/system/key/{keyId}/rotate
func (h *KeysHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	id, err := pathID(r, "keyId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid key ID")
		return
	}
	var req rotateKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	key, secret, err := h.rotator.Rotate(r.Context(), session.UserID, id, req.Confirm)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rotateKeyResponse{APIKey: key, Key: secret})
}

// Revoke deactivates a key without deleting its record.
// POST /api/v1/system/key/{keyId}/revoke
func (h *KeysHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	id, err := pathID(r, "keyId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid key ID")
		return
	}
	if err := h.keys.Revoke(r.Context(), session.UserID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Delete removes a key record entirely, including its audit row.
// DELETE /api/v1/system/key/{keyId}
func (h *KeysHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	id, err := pathID(r, "keyId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid key ID")
		return
	}
	if err := h.keys.Delete(r.Context(), session.UserID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Usage returns recent usage rows for a key.
// GET /api/v1/system/key/{keyId}/usage
func (h *KeysHandler) Usage(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	id, err := pathID(r, "keyId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid key ID")
		return
	}
	limit := clampInt(queryInt(r, "limit", 50), 1, 500)
	usage, err := h.keys.Usage(r.Context(), session.UserID, id, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: usage,
		Meta:     &model.ResponseMeta{Count: len(usage), Limit: limit},
	})
}
