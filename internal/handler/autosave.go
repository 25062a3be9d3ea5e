package handler

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/resumly/resumly/internal/autosave"
	"github.com/resumly/resumly/internal/model"
	"github.com/resumly/resumly/internal/store"
)

// EditSessions tracks one auto-save coordinator per resume being edited.
// A session opens on the first field patch and closes when the editor
// leaves or the resume is deleted.
type EditSessions struct {
	store *store.Store
	opts  autosave.Options

	mu       sync.Mutex
	sessions map[int64]*autosave.Coordinator
}

// NewEditSessions creates the session registry. Zero opts take the
// coordinator defaults.
func NewEditSessions(st *store.Store, opts autosave.Options) *EditSessions {
	return &EditSessions{
		store:    st,
		opts:     opts,
		sessions: make(map[int64]*autosave.Coordinator),
	}
}

// snapshot serializes the fields canonically so byte comparison detects
// edits that round-trip to the same value. Tags marshal as [] whether the
// caller sent nil or an empty list; without that, a store-loaded seed and
// a content-identical client edit would compare unequal.
func snapshot(fields model.ResumeFields) ([]byte, error) {
	if fields.Tags == nil {
		fields.Tags = []string{}
	}
	return json.Marshal(fields)
}

// get returns the resume's coordinator, opening a session seeded from the
// persisted row when none exists yet.
func (e *EditSessions) get(ctx context.Context, resumeID int64) (*autosave.Coordinator, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.sessions[resumeID]; ok {
		return c, nil
	}

	resume, err := e.store.GetResume(ctx, resumeID)
	if err != nil {
		return nil, err
	}
	initial, err := snapshot(model.ResumeFields{
		Title:       resume.Title,
		Role:        resume.Role,
		DisplayName: resume.DisplayName,
		Tags:        resume.Tags,
	})
	if err != nil {
		return nil, err
	}

	save := func(ctx context.Context, snap []byte) error {
		var fields model.ResumeFields
		if err := json.Unmarshal(snap, &fields); err != nil {
			return err
		}
		return e.store.UpdateResumeFields(ctx, resumeID, fields)
	}
	c := autosave.New(save, initial, e.opts)
	e.sessions[resumeID] = c
	return c, nil
}

// Change records a new field snapshot for the resume's session.
func (e *EditSessions) Change(ctx context.Context, resumeID int64, fields model.ResumeFields) (autosave.Status, error) {
	c, err := e.get(ctx, resumeID)
	if err != nil {
		return "", err
	}
	snap, err := snapshot(fields)
	if err != nil {
		return "", err
	}
	c.Change(snap)
	return c.Status(), nil
}

// Save forces an immediate persistence attempt, the retry path out of a
// failed auto-save.
func (e *EditSessions) Save(ctx context.Context, resumeID int64) (autosave.Status, error) {
	c, err := e.get(ctx, resumeID)
	if err != nil {
		return "", err
	}
	if err := c.Save(ctx); err != nil {
		return c.Status(), err
	}
	return c.Status(), nil
}

// Status reports the session's save-state, Idle when no session is open.
func (e *EditSessions) Status(resumeID int64) autosave.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.sessions[resumeID]; ok {
		return c.Status()
	}
	return autosave.StatusIdle
}

// Close ends the resume's editing session if one is open.
func (e *EditSessions) Close(resumeID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.sessions[resumeID]; ok {
		c.Close()
		delete(e.sessions, resumeID)
	}
}

// CloseAll ends every open session, used at server shutdown.
func (e *EditSessions) CloseAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, c := range e.sessions {
		c.Close()
		delete(e.sessions, id)
	}
}
