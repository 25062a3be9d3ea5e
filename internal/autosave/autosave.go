// Package autosave turns a stream of local edits into debounced,
// status-tracked persistence calls. An editing session owns one
// Coordinator; its lifecycle runs from editor open to editor close.
package autosave

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"
)

// Status is the coordinator's save-state as surfaced to the editor UI.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

const (
	// DefaultDebounce is the trailing-debounce window: a burst of edits
	// produces one save this long after the last edit.
	DefaultDebounce = 1500 * time.Millisecond

	// DefaultSavedHold is how long the Saved status is displayed before
	// falling back to Idle. A UI affordance, not a data event.
	DefaultSavedHold = 2 * time.Second
)

// ErrSaveInFlight is returned by a manual save attempted while a
// persistence call is already running.
var ErrSaveInFlight = errors.New("save already in flight")

// ErrClosed is returned when the coordinator's editing session has ended.
var ErrClosed = errors.New("autosave coordinator closed")

// SaveFunc persists one serialized snapshot.
type SaveFunc func(ctx context.Context, snapshot []byte) error

// Options tunes a Coordinator. Zero values take the defaults.
type Options struct {
	Debounce  time.Duration
	SavedHold time.Duration

	// OnStatus, when set, is called after every status transition. It runs
	// with the coordinator's lock released and must not block.
	OnStatus func(Status)
}

// Coordinator debounces edits and drives the Idle, Saving, Saved, Error
// state machine. At most one persistence call is in flight at a time; an
// edit arriving mid-save does not cancel the call, it schedules the next
// debounce cycle once the call resolves. Only the most recent snapshot is
// ever sent, so intermediate states are never persisted once a newer one
// exists.
type Coordinator struct {
	save      SaveFunc
	debounce  time.Duration
	savedHold time.Duration
	onStatus  func(Status)

	mu         sync.Mutex
	status     Status
	pending    []byte // latest snapshot from the editor
	lastSaved  []byte // last successfully persisted snapshot
	saving     bool
	closed     bool
	timer      *time.Timer // pending debounce, nil when none
	savedTimer *time.Timer
}

// New creates a coordinator over the given persistence call. The initial
// snapshot seeds the identity comparison so reopening an editor does not
// immediately re-save unchanged data.
func New(save SaveFunc, initial []byte, opts Options) *Coordinator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.SavedHold <= 0 {
		opts.SavedHold = DefaultSavedHold
	}
	return &Coordinator{
		save:      save,
		debounce:  opts.Debounce,
		savedHold: opts.SavedHold,
		onStatus:  opts.OnStatus,
		status:    StatusIdle,
		pending:   clone(initial),
		lastSaved: clone(initial),
	}
}

// Status returns the current save-state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Change records a new snapshot and restarts the debounce window. Edits
// are coalesced: only the snapshot current when the window fires is saved,
// and a save identical to the last persisted snapshot is skipped.
func (c *Coordinator) Change(snapshot []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pending = clone(snapshot)
	// After a failed save only a manual retry may attempt persistence
	// again; edits are still recorded so the retry carries them.
	if c.status != StatusError {
		c.restartTimerLocked()
	}
}

// Save persists the current snapshot immediately, bypassing the debounce
// window. It is the manual retry path out of the Error state. The identity
// rule still applies: a snapshot equal to the last persisted one is
// skipped without a call.
func (c *Coordinator) Save(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.saving {
		c.mu.Unlock()
		return ErrSaveInFlight
	}
	if bytes.Equal(c.pending, c.lastSaved) {
		c.mu.Unlock()
		return nil
	}
	c.stopTimerLocked()
	snapshot := c.pending
	c.saving = true
	c.setStatusLocked(StatusSaving)
	c.mu.Unlock()

	err := c.save(ctx, snapshot)
	c.finish(snapshot, err)
	return err
}

// Close ends the editing session: the pending debounce timer is cancelled,
// further edits are ignored, and the result of an already-in-flight call
// is discarded. The in-flight call itself is not aborted.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTimerLocked()
	if c.savedTimer != nil {
		c.savedTimer.Stop()
		c.savedTimer = nil
	}
}

// restartTimerLocked implements the trailing debounce: every edit cancels
// and re-arms the window.
func (c *Coordinator) restartTimerLocked() {
	c.stopTimerLocked()
	c.timer = time.AfterFunc(c.debounce, c.flush)
}

func (c *Coordinator) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// flush runs when the debounce window fires. If a save is already in
// flight the cycle is deferred; finish re-arms the window in that case.
func (c *Coordinator) flush() {
	c.mu.Lock()
	c.timer = nil
	if c.closed || c.saving || c.status == StatusError {
		c.mu.Unlock()
		return
	}
	if bytes.Equal(c.pending, c.lastSaved) {
		c.mu.Unlock()
		return
	}
	snapshot := c.pending
	c.saving = true
	c.setStatusLocked(StatusSaving)
	c.mu.Unlock()

	c.finish(snapshot, c.save(context.Background(), snapshot))
}

// finish applies a completed persistence call's result. When the session
// closed mid-call the result is dropped. A snapshot newer than the one
// just saved re-arms the debounce window so last-write-wins.
func (c *Coordinator) finish(snapshot []byte, err error) {
	c.mu.Lock()
	c.saving = false
	if c.closed {
		c.mu.Unlock()
		return
	}
	if err != nil {
		// Stay in Error until a manual save retries.
		c.setStatusLocked(StatusError)
		c.mu.Unlock()
		return
	}
	c.lastSaved = snapshot
	c.setStatusLocked(StatusSaved)
	c.scheduleSavedFallbackLocked()
	if !bytes.Equal(c.pending, c.lastSaved) {
		c.restartTimerLocked()
	}
	c.mu.Unlock()
}

// scheduleSavedFallbackLocked drops Saved back to Idle after the display
// hold, unless the status has moved on in the meantime.
func (c *Coordinator) scheduleSavedFallbackLocked() {
	if c.savedTimer != nil {
		c.savedTimer.Stop()
	}
	c.savedTimer = time.AfterFunc(c.savedHold, func() {
		c.mu.Lock()
		if !c.closed && c.status == StatusSaved {
			c.setStatusLocked(StatusIdle)
		}
		c.mu.Unlock()
	})
}

// setStatusLocked updates status and fires the callback outside the lock.
func (c *Coordinator) setStatusLocked(s Status) {
	if c.status == s {
		return
	}
	c.status = s
	if c.onStatus != nil {
		go c.onStatus(s)
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
