package persist

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeCommitter struct {
	mu      sync.Mutex
	dirty   bool
	commits int
	err     error
}

func (f *fakeCommitter) HasChanges() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

func (f *fakeCommitter) Commit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.commits++
	f.dirty = false
	return nil
}

func (f *fakeCommitter) touch() {
	f.mu.Lock()
	f.dirty = true
	f.mu.Unlock()
}

func (f *fakeCommitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}

// manualClock hands out timers that only fire when the test says so.
type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (c *manualClock) schedule(d time.Duration, f func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// fireAll runs every timer ever scheduled, including stopped ones, the way
// a timer that already started running would.
func (c *manualClock) fireAll() {
	c.mu.Lock()
	timers := append([]*manualTimer(nil), c.timers...)
	c.mu.Unlock()
	for _, t := range timers {
		t.f()
	}
}

func newTestController(fc *fakeCommitter, clock *manualClock) *Controller {
	return New(fc, Options{Delay: time.Second, Schedule: clock.schedule})
}

func TestQueueSaveCoalesces(t *testing.T) {
	fc := &fakeCommitter{}
	clock := &manualClock{}
	c := newTestController(fc, clock)

	for range 10 {
		fc.touch()
		c.QueueSave()
	}
	if !c.Pending() {
		t.Fatal("expected a pending save")
	}
	clock.fireAll()
	if got := fc.count(); got != 1 {
		t.Fatalf("commits = %d, want 1", got)
	}
	if c.Pending() {
		t.Fatal("pending after fire")
	}
	for _, tm := range clock.timers[:9] {
		if !tm.stopped {
			t.Fatal("superseded timer was not stopped")
		}
	}
}

func TestQueueSaveUsesDelay(t *testing.T) {
	clock := &manualClock{}
	c := newTestController(&fakeCommitter{}, clock)
	c.QueueSave()
	if clock.timers[0].d != time.Second {
		t.Fatalf("delay = %v", clock.timers[0].d)
	}
}

func TestDefaultDelay(t *testing.T) {
	c := New(&fakeCommitter{}, Options{})
	if c.delay != DefaultDelay {
		t.Fatalf("delay = %v, want %v", c.delay, DefaultDelay)
	}
}

func TestSaveCancelsPending(t *testing.T) {
	fc := &fakeCommitter{}
	clock := &manualClock{}
	c := newTestController(fc, clock)

	fc.touch()
	c.QueueSave()
	if err := c.Save(); err != nil {
		t.Fatal(err)
	}
	if fc.count() != 1 {
		t.Fatalf("commits = %d, want 1", fc.count())
	}
	fc.touch()
	clock.fireAll()
	if fc.count() != 1 {
		t.Fatal("cancelled timer committed")
	}
}

func TestSaveWithoutChangesIsNoop(t *testing.T) {
	fc := &fakeCommitter{}
	saves := 0
	c := New(fc, Options{OnSave: func() { saves++ }})
	if err := c.Save(); err != nil {
		t.Fatal(err)
	}
	if fc.count() != 0 || saves != 0 {
		t.Fatalf("commits = %d, hooks = %d", fc.count(), saves)
	}
}

func TestOnSaveHook(t *testing.T) {
	fc := &fakeCommitter{}
	saves := 0
	c := New(fc, Options{OnSave: func() { saves++ }})
	fc.touch()
	if err := c.Save(); err != nil {
		t.Fatal(err)
	}
	if saves != 1 {
		t.Fatalf("hook ran %d times", saves)
	}
}

func TestSaveError(t *testing.T) {
	boom := errors.New("boom")
	fc := &fakeCommitter{dirty: true, err: boom}
	c := New(fc, Options{})
	if err := c.Save(); !errors.Is(err, boom) {
		t.Fatalf("Save error = %v", err)
	}
	if !fc.HasChanges() {
		t.Fatal("failed save should leave changes pending")
	}
}

func TestCloseDropsQueuedSave(t *testing.T) {
	fc := &fakeCommitter{}
	clock := &manualClock{}
	c := newTestController(fc, clock)

	fc.touch()
	c.QueueSave()
	c.Close()
	clock.fireAll()
	if fc.count() != 0 {
		t.Fatal("queued save ran after close")
	}
	c.QueueSave()
	if len(clock.timers) != 1 {
		t.Fatal("QueueSave scheduled after close")
	}
	if err := c.Save(); err != nil || fc.count() != 1 {
		t.Fatalf("explicit save after close: commits = %d, err = %v", fc.count(), err)
	}
}

func TestRealTimerFires(t *testing.T) {
	fc := &fakeCommitter{}
	done := make(chan struct{})
	c := New(fc, Options{Delay: 10 * time.Millisecond, OnSave: func() { close(done) }})
	fc.touch()
	c.QueueSave()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queued save never fired")
	}
	if fc.count() != 1 {
		t.Fatalf("commits = %d", fc.count())
	}
}
