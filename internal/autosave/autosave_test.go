package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recorder is a SaveFunc that logs every snapshot it receives. Saves can
// optionally block until released to hold a call in flight.
type recorder struct {
	mu        sync.Mutex
	snapshots [][]byte
	err       error
	gate      chan struct{} // when non-nil, save blocks until closed
}

func (r *recorder) save(_ context.Context, snapshot []byte) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snapshot)
	return r.err
}

func (r *recorder) calls() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.snapshots))
	copy(out, r.snapshots)
	return out
}

func testOpts() Options {
	return Options{Debounce: 20 * time.Millisecond, SavedHold: 30 * time.Millisecond}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestDebounceCoalescesBurst(t *testing.T) {
	rec := &recorder{}
	c := New(rec.save, nil, testOpts())
	defer c.Close()

	// Three rapid edits inside one debounce window collapse into a single
	// save carrying the last snapshot.
	c.Change([]byte(`{"title":"a"}`))
	c.Change([]byte(`{"title":"ab"}`))
	c.Change([]byte(`{"title":"abc"}`))

	waitFor(t, func() bool { return len(rec.calls()) == 1 })
	time.Sleep(60 * time.Millisecond)

	calls := rec.calls()
	if len(calls) != 1 {
		t.Fatalf("got %d saves, want 1", len(calls))
	}
	if string(calls[0]) != `{"title":"abc"}` {
		t.Errorf("saved %q, want the last snapshot", calls[0])
	}
}

func TestIdenticalSnapshotSkipped(t *testing.T) {
	initial := []byte(`{"title":"a"}`)
	rec := &recorder{}
	c := New(rec.save, initial, testOpts())
	defer c.Close()

	// Edits that round-trip to the persisted value never hit the network.
	c.Change([]byte(`{"title":"a"}`))
	c.Change([]byte(`{"title":"a"}`))
	time.Sleep(60 * time.Millisecond)
	if n := len(rec.calls()); n != 0 {
		t.Fatalf("got %d saves of an unchanged snapshot, want 0", n)
	}

	c.Change([]byte(`{"title":"b"}`))
	waitFor(t, func() bool { return len(rec.calls()) == 1 })

	// The same value again after a successful save is also skipped.
	c.Change([]byte(`{"title":"b"}`))
	time.Sleep(60 * time.Millisecond)
	if n := len(rec.calls()); n != 1 {
		t.Fatalf("got %d saves, want 1", n)
	}
}

func TestSingleFlightLastWriteWins(t *testing.T) {
	rec := &recorder{gate: make(chan struct{})}
	c := New(rec.save, nil, testOpts())
	defer c.Close()

	c.Change([]byte(`v1`))
	waitFor(t, func() bool { return c.Status() == StatusSaving })

	// Two edits land while the first save is in flight. They must not
	// start a second call now, and only the newest may be saved later.
	c.Change([]byte(`v2`))
	c.Change([]byte(`v3`))
	if n := len(rec.calls()); n != 0 {
		t.Fatalf("save completed early: %d calls", n)
	}

	close(rec.gate)
	waitFor(t, func() bool { return len(rec.calls()) == 2 })
	time.Sleep(60 * time.Millisecond)

	calls := rec.calls()
	if len(calls) != 2 {
		t.Fatalf("got %d saves, want 2", len(calls))
	}
	if string(calls[0]) != "v1" || string(calls[1]) != "v3" {
		t.Errorf("saved %q then %q, want v1 then v3", calls[0], calls[1])
	}
}

func TestStatusLifecycle(t *testing.T) {
	rec := &recorder{}
	c := New(rec.save, nil, testOpts())
	defer c.Close()

	if c.Status() != StatusIdle {
		t.Fatalf("initial status %q, want idle", c.Status())
	}

	c.Change([]byte(`v1`))
	waitFor(t, func() bool { return c.Status() == StatusSaved })
	// Saved is a display state; it decays back to Idle.
	waitFor(t, func() bool { return c.Status() == StatusIdle })
}

func TestErrorRequiresManualRetry(t *testing.T) {
	rec := &recorder{err: errors.New("backend down")}
	c := New(rec.save, nil, testOpts())
	defer c.Close()

	c.Change([]byte(`v1`))
	waitFor(t, func() bool { return c.Status() == StatusError })

	// Further edits are recorded but never auto-retried from Error.
	c.Change([]byte(`v2`))
	time.Sleep(60 * time.Millisecond)
	if n := len(rec.calls()); n != 1 {
		t.Fatalf("got %d saves, want 1 (no silent retry)", n)
	}
	if c.Status() != StatusError {
		t.Fatalf("status %q, want error", c.Status())
	}

	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()
	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("manual retry: %v", err)
	}
	calls := rec.calls()
	if len(calls) != 2 || string(calls[1]) != "v2" {
		t.Fatalf("manual retry saved %v, want v2 as second call", calls)
	}
	if c.Status() != StatusSaved {
		t.Errorf("status %q after successful retry, want saved", c.Status())
	}
}

func TestManualSave(t *testing.T) {
	rec := &recorder{}
	// A debounce far longer than the test proves Save does not wait on it.
	c := New(rec.save, nil, Options{Debounce: time.Minute, SavedHold: time.Minute})
	defer c.Close()

	c.Change([]byte(`v1`))
	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n := len(rec.calls()); n != 1 {
		t.Fatalf("got %d saves, want 1", n)
	}

	// The identity rule applies to manual saves too.
	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("Save unchanged: %v", err)
	}
	if n := len(rec.calls()); n != 1 {
		t.Fatalf("manual save of unchanged snapshot made a call")
	}
}

func TestManualSaveWhileInFlight(t *testing.T) {
	rec := &recorder{gate: make(chan struct{})}
	c := New(rec.save, nil, testOpts())
	defer c.Close()

	c.Change([]byte(`v1`))
	waitFor(t, func() bool { return c.Status() == StatusSaving })

	c.Change([]byte(`v2`))
	if err := c.Save(context.Background()); !errors.Is(err, ErrSaveInFlight) {
		t.Errorf("got %v, want ErrSaveInFlight", err)
	}
	close(rec.gate)
}

func TestCloseCancelsPendingTimer(t *testing.T) {
	rec := &recorder{}
	c := New(rec.save, nil, testOpts())

	c.Change([]byte(`v1`))
	c.Close()
	time.Sleep(60 * time.Millisecond)
	if n := len(rec.calls()); n != 0 {
		t.Fatalf("closed coordinator still saved %d times", n)
	}
	if err := c.Save(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}

func TestCloseKeepsInFlightCall(t *testing.T) {
	rec := &recorder{gate: make(chan struct{})}
	c := New(rec.save, nil, testOpts())

	c.Change([]byte(`v1`))
	waitFor(t, func() bool { return c.Status() == StatusSaving })

	// Closing must not abort the running call; its result is simply
	// discarded.
	c.Close()
	close(rec.gate)
	waitFor(t, func() bool { return len(rec.calls()) == 1 })
}

func TestStatusCallback(t *testing.T) {
	rec := &recorder{}
	var mu sync.Mutex
	var seen []Status
	opts := testOpts()
	opts.OnStatus = func(s Status) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}
	c := New(rec.save, nil, opts)
	defer c.Close()

	c.Change([]byte(`v1`))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 2
	})
	mu.Lock()
	defer mu.Unlock()
	got := map[Status]bool{}
	for _, s := range seen {
		got[s] = true
	}
	if !got[StatusSaving] || !got[StatusSaved] {
		t.Errorf("transitions %v missing saving/saved", seen)
	}
}
