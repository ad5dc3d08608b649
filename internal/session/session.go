// Package session owns the live working set of issues and tags, the single
// writer path to the store, and the reconciliation of external changes.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/sadopc/issuedesk/internal/model"
	"github.com/sadopc/issuedesk/internal/persist"
	"github.com/sadopc/issuedesk/internal/store"
)

var (
	ErrLocked   = errors.New("store is in use by another session")
	ErrClosed   = errors.New("session closed")
	ErrNotFound = errors.New("not found")
)

const (
	DefaultFreeTagLimit = 3
	reviewTagThreshold  = 5
)

type Options struct {
	// InMemory ignores DBPath and opens a private in-memory store.
	InMemory bool
	DBPath   string

	SaveDelay    time.Duration
	FreeTagLimit int
	Logger       *slog.Logger

	// Now and Schedule replace the wall clock and the debounce timer.
	Now      func() time.Time
	Schedule persist.ScheduleFunc

	// OnSave runs after every successful commit, e.g. to invalidate an
	// external cache.
	OnSave func()
}

type Session struct {
	store        *store.Store
	lock         *flock.Flock
	saver        *persist.Controller
	logger       *slog.Logger
	now          func() time.Time
	freeTagLimit int

	mu       sync.Mutex
	ws       *workingSet
	snap     *model.Snapshot
	unlocked bool
	closed   bool

	obsMu     sync.Mutex
	observers []observer
	nextObs   int
}

// Open opens the store at opts.DBPath (or the default path) and takes an
// exclusive lock on it for the life of the session.
func Open(opts Options) (*Session, error) {
	if opts.InMemory {
		st, err := store.NewMemory()
		if err != nil {
			return nil, err
		}
		s, err := New(st, opts)
		if err != nil {
			st.Close()
			return nil, err
		}
		return s, nil
	}

	path := opts.DBPath
	if path == "" {
		var err error
		if path, err = store.DefaultDBPath(); err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock store: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}

	st, err := store.New(path)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	s, err := New(st, opts)
	if err != nil {
		st.Close()
		lock.Unlock()
		return nil, err
	}
	s.lock = lock
	return s, nil
}

// New builds a session over an open store and loads the working set. The
// session owns st from then on.
func New(st *store.Store, opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.FreeTagLimit <= 0 {
		opts.FreeTagLimit = DefaultFreeTagLimit
	}

	s := &Session{
		store:        st,
		logger:       opts.Logger,
		now:          opts.Now,
		freeTagLimit: opts.FreeTagLimit,
		ws:           newWorkingSet(),
	}

	issues, tags, err := st.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}
	s.ws.load(issues, tags)
	if s.unlocked, err = st.FullVersionUnlocked(); err != nil {
		return nil, err
	}

	hook := opts.OnSave
	s.saver = persist.New(committer{s}, persist.Options{
		Delay:    opts.SaveDelay,
		Schedule: opts.Schedule,
		Logger:   opts.Logger,
		OnSave: func() {
			s.notify(Event{Kind: EventSaved})
			if hook != nil {
				hook()
			}
		},
	})
	return s, nil
}

// Close flushes pending changes, closes the store and releases the lock.
// Mutations are refused from the moment Close starts, so every accepted
// edit is in the final flush.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.saver.Close()
	saveErr := s.saver.Save()

	errs := []error{saveErr, s.store.Close()}
	if s.lock != nil {
		errs = append(errs, s.lock.Unlock())
	}
	return errors.Join(errs...)
}

// Save commits pending changes now. On failure the changes stay pending.
func (s *Session) Save() error { return s.saver.Save() }

// QueueSave schedules a save after the debounce delay, replacing any
// pending one.
func (s *Session) QueueSave() { s.saver.QueueSave() }

// MarkDirty tells the session that something changed outside its
// mutation methods.
func (s *Session) MarkDirty() { s.saver.MarkDirty() }

// SavePending reports whether a debounced save is waiting to fire.
func (s *Session) SavePending() bool { return s.saver.Pending() }

func (s *Session) HasChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.hasChanges()
}

type committer struct{ s *Session }

func (c committer) HasChanges() bool { return c.s.HasChanges() }
func (c committer) Commit() error    { return c.s.commit() }

func (s *Session) commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.ws.changeset()
	if cs.Empty() {
		return nil
	}
	if err := s.store.Commit(cs); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	s.ws.markCommitted()
	return nil
}

// Snapshot returns an immutable view of the working set. Snapshots are
// shared until the next change.
func (s *Session) Snapshot() *model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		s.snap = s.ws.snapshot()
	}
	return s.snap
}

// changedLocked drops the cached snapshot. Callers hold s.mu.
func (s *Session) changedLocked() { s.snap = nil }

func (s *Session) FullVersionUnlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked
}

func (s *Session) SetFullVersionUnlocked(unlocked bool) error {
	if err := s.store.SetFullVersionUnlocked(unlocked); err != nil {
		return fmt.Errorf("set full version: %w", err)
	}
	s.mu.Lock()
	s.unlocked = unlocked
	s.mu.Unlock()
	s.notify(Event{Kind: EventChanged})
	return nil
}

// RemoteCursor and SetRemoteCursor persist the position of a remote feed.
func (s *Session) RemoteCursor() (string, error) { return s.store.RemoteCursor() }

func (s *Session) SetRemoteCursor(cursor string) error { return s.store.SetRemoteCursor(cursor) }
