// Package persist coalesces bursts of edits into a single commit after a
// quiet period.
package persist

import (
	"log/slog"
	"sync"
	"time"
)

const DefaultDelay = 3 * time.Second

// Committer is the unit of work the controller flushes.
type Committer interface {
	HasChanges() bool
	Commit() error
}

type Stopper interface {
	Stop() bool
}

// ScheduleFunc runs f once after d. The returned Stopper cancels it.
type ScheduleFunc func(d time.Duration, f func()) Stopper

func afterFunc(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }

type Options struct {
	Delay    time.Duration
	Schedule ScheduleFunc
	// OnSave runs after every commit that wrote changes.
	OnSave func()
	Logger *slog.Logger
}

// Controller owns the single pending save timer of a session.
type Controller struct {
	committer Committer
	delay     time.Duration
	schedule  ScheduleFunc
	onSave    func()
	logger    *slog.Logger

	mu         sync.Mutex
	pending    Stopper
	generation uint64
	closed     bool

	saveMu sync.Mutex
}

func New(c Committer, opts Options) *Controller {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Schedule == nil {
		opts.Schedule = afterFunc
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		committer: c,
		delay:     opts.Delay,
		schedule:  opts.Schedule,
		onSave:    opts.OnSave,
		logger:    opts.Logger,
	}
}

// QueueSave cancels any pending save and schedules a new one after the
// delay. It never blocks on the commit itself.
func (c *Controller) QueueSave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.cancelLocked()
	gen := c.generation
	c.pending = c.schedule(c.delay, func() { c.fire(gen) })
}

// MarkDirty records that a mutation happened.
func (c *Controller) MarkDirty() { c.QueueSave() }

// Save cancels any pending save and commits now if there is anything to
// write.
func (c *Controller) Save() error {
	c.mu.Lock()
	c.cancelLocked()
	c.mu.Unlock()
	return c.commit()
}

// Pending reports whether a queued save has not fired yet.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Close cancels the pending save. Later QueueSave calls are ignored; Save
// still works so the owner can flush.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
	c.closed = true
}

func (c *Controller) cancelLocked() {
	c.generation++
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	c.mu.Unlock()

	if err := c.commit(); err != nil {
		c.logger.Warn("queued save failed", "error", err)
	}
}

func (c *Controller) commit() error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if !c.committer.HasChanges() {
		return nil
	}
	if err := c.committer.Commit(); err != nil {
		return err
	}
	c.logger.Debug("saved")
	if c.onSave != nil {
		c.onSave()
	}
	return nil
}
