package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/resumly/resumly/internal/autosave"
	"github.com/resumly/resumly/internal/model"
	"github.com/resumly/resumly/internal/permission"
	"github.com/resumly/resumly/internal/server/middleware"
	"github.com/resumly/resumly/internal/store"
)

// ResumesHandler serves resume management for the editor and the
// key-authenticated read API consumed by LLM clients.
type ResumesHandler struct {
	store    *store.Store
	sessions *EditSessions
}

// NewResumesHandler creates a ResumesHandler.
func NewResumesHandler(st *store.Store, sessions *EditSessions) *ResumesHandler {
	return &ResumesHandler{store: st, sessions: sessions}
}

// ---------------------------------------------------------------------------
// Management API (session-authenticated)
// ---------------------------------------------------------------------------

// List returns the caller's resumes.
// GET /api/v1/system/resume
func (h *ResumesHandler) List(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	resumes, err := h.store.ListResumes(r.Context(), session.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resumes,
		Meta:     &model.ResponseMeta{Count: len(resumes)},
	})
}

// Create adds a resume page.
// POST /api/v1/system/resume
func (h *ResumesHandler) Create(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	var resume model.Resume
	if err := readJSON(r, &resume); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if resume.Slug == "" {
		writeError(w, http.StatusBadRequest, "Slug is required")
		return
	}
	resume.ID = 0
	resume.OwnerID = session.UserID
	if err := h.store.CreateResume(r.Context(), &resume); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resume)
}

// Get returns one owned resume.
// GET /api/v1/system/resume/{resumeId}
func (h *ResumesHandler) Get(w http.ResponseWriter, r *http.Request) {
	resume, ok := h.owned(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, resume)
}

// Update replaces a resume's content.
// PUT /api/v1/system/resume/{resumeId}
func (h *ResumesHandler) Update(w http.ResponseWriter, r *http.Request) {
	resume, ok := h.owned(w, r)
	if !ok {
		return
	}
	var in model.Resume
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	in.ID = resume.ID
	in.OwnerID = resume.OwnerID
	if in.Slug == "" {
		in.Slug = resume.Slug
	}
	if err := h.store.UpdateResume(r.Context(), &in); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

// Delete removes a resume. Keys bound to it cascade away and its editing
// session, if open, ends.
// DELETE /api/v1/system/resume/{resumeId}
func (h *ResumesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	resume, ok := h.owned(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteResume(r.Context(), resume.ID); err != nil {
		writeServiceError(w, err)
		return
	}
	h.sessions.Close(resume.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// saveStatusResponse reports the editing session's save-state.
type saveStatusResponse struct {
	Status autosave.Status `json:"status"`
}

// PatchFields feeds an edited field snapshot into the resume's auto-save
// session. Persistence is debounced and coalesced; the response reports
// the session state, not a completed write.
// PATCH /api/v1/system/resume/{resumeId}/fields
func (h *ResumesHandler) PatchFields(w http.ResponseWriter, r *http.Request) {
	resume, ok := h.owned(w, r)
	if !ok {
		return
	}
	var fields model.ResumeFields
	if err := readJSON(r, &fields); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	status, err := h.sessions.Change(r.Context(), resume.ID, fields)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, saveStatusResponse{Status: status})
}

// SaveNow forces an immediate save of the resume's pending edits, the
// manual retry path after a failed auto-save.
// POST /api/v1/system/resume/{resumeId}/save
func (h *ResumesHandler) SaveNow(w http.ResponseWriter, r *http.Request) {
	resume, ok := h.owned(w, r)
	if !ok {
		return
	}
	status, err := h.sessions.Save(r.Context(), resume.ID)
	if err != nil {
		if errors.Is(err, autosave.ErrSaveInFlight) {
			writeError(w, http.StatusConflict, "A save is already in progress")
			return
		}
		writeError(w, http.StatusBadGateway, "Save failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, saveStatusResponse{Status: status})
}

// SaveStatus reports the editing session's save-state.
// GET /api/v1/system/resume/{resumeId}/save
func (h *ResumesHandler) SaveStatus(w http.ResponseWriter, r *http.Request) {
	resume, ok := h.owned(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, saveStatusResponse{Status: h.sessions.Status(resume.ID)})
}

// CloseSession ends the resume's editing session, cancelling any pending
// (not yet fired) auto-save.
// DELETE /api/v1/system/resume/{resumeId}/session
func (h *ResumesHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	resume, ok := h.owned(w, r)
	if !ok {
		return
	}
	h.sessions.Close(resume.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// owned loads the path's resume and enforces ownership, writing the error
// response itself on failure.
func (h *ResumesHandler) owned(w http.ResponseWriter, r *http.Request) (*model.Resume, bool) {
	session := middleware.GetSession(r.Context())
	id, err := pathID(r, "resumeId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid resume ID")
		return nil, false
	}
	resume, err := h.store.GetResume(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	if resume.OwnerID != session.UserID {
		writeError(w, http.StatusForbidden, "Not authorized for this resume")
		return nil, false
	}
	return resume, true
}

// ---------------------------------------------------------------------------
// Key-authenticated read API
// ---------------------------------------------------------------------------

// PublicList returns the resumes the API key may see: all of the owner's
// published pages for admin keys, the single bound page otherwise.
// GET /api/v1/resumes
func (h *ResumesHandler) PublicList(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetKeyPrincipal(r.Context())
	if !principal.Allows(permission.CategoryResume, permission.Read) {
		writeError(w, http.StatusForbidden, "Key does not grant resume:read")
		return
	}

	var resumes []model.Resume
	if principal.ResumeID != nil {
		resume, err := h.store.GetResume(r.Context(), *principal.ResumeID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resumes = []model.Resume{*resume}
	} else {
		all, err := h.store.ListResumes(r.Context(), principal.OwnerID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resumes = all
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resumes,
		Meta:     &model.ResponseMeta{Count: len(resumes)},
	})
}

// PublicGet returns one resume by slug, subject to the key's scope.
// GET /api/v1/resumes/{slug}
func (h *ResumesHandler) PublicGet(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetKeyPrincipal(r.Context())
	if !principal.Allows(permission.CategoryResume, permission.Read) {
		writeError(w, http.StatusForbidden, "Key does not grant resume:read")
		return
	}

	resume, err := h.store.GetResumeBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if resume.OwnerID != principal.OwnerID {
		writeError(w, http.StatusNotFound, "Resource not found")
		return
	}
	if principal.ResumeID != nil && *principal.ResumeID != resume.ID {
		writeError(w, http.StatusForbidden, "Key is not scoped to this resume")
		return
	}
	writeJSON(w, http.StatusOK, resume)
}
