package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DirFeed applies change-set files dropped into an inbox directory.
// Writers must create the file under another name and rename it to
// *.json once complete. Applied files move to processed/, invalid ones to
// rejected/. A file the sink fails to apply stays in the inbox and is
// retried.
type DirFeed struct {
	dir        string
	sink       Sink
	logger     *slog.Logger
	retryDelay time.Duration
}

const DefaultRetryDelay = 5 * time.Second

func NewDirFeed(dir string, sink Sink, logger *slog.Logger) *DirFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirFeed{
		dir:        dir,
		sink:       sink,
		logger:     logger.With("feed", "dir", "dir", dir),
		retryDelay: DefaultRetryDelay,
	}
}

func (f *DirFeed) processedDir() string { return filepath.Join(f.dir, "processed") }
func (f *DirFeed) rejectedDir() string  { return filepath.Join(f.dir, "rejected") }

func (f *DirFeed) prepare() error {
	for _, d := range []string{f.dir, f.processedDir(), f.rejectedDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create inbox directory: %w", err)
		}
	}
	return nil
}

// Drain applies every pending file in name order.
func (f *DirFeed) Drain() error {
	_, err := f.drain()
	return err
}

// drain reports whether a file is still waiting after a failed apply.
func (f *DirFeed) drain() (bool, error) {
	if err := f.prepare(); err != nil {
		return false, err
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return false, fmt.Errorf("read inbox: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isChangeSetFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	waiting := false
	for _, name := range names {
		if !f.process(filepath.Join(f.dir, name)) {
			waiting = true
		}
	}
	return waiting, nil
}

// Run drains the inbox and then watches it until ctx is done.
func (f *DirFeed) Run(ctx context.Context) error {
	if err := f.prepare(); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(f.dir); err != nil {
		return fmt.Errorf("watch inbox: %w", err)
	}
	waiting, err := f.drain()
	if err != nil {
		return err
	}

	var retry <-chan time.Time
	if waiting {
		retry = time.After(f.retryDelay)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-retry:
			retry = nil
			waiting, err := f.drain()
			if err != nil {
				f.logger.Warn("retry inbox", "error", err)
			}
			if waiting || err != nil {
				retry = time.After(f.retryDelay)
			}
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) && isChangeSetFile(ev.Name) && !f.process(ev.Name) && retry == nil {
				retry = time.After(f.retryDelay)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("inbox watcher error", "error", err)
		}
	}
}

func isChangeSetFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".json") && !strings.HasPrefix(base, ".")
}

// process applies one file and archives it. It returns false when the file
// stays in the inbox for a retry.
func (f *DirFeed) process(path string) bool {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	if err != nil {
		f.logger.Warn("read change set", "file", path, "error", err)
		return false
	}

	set, err := Parse(data)
	if err != nil {
		f.logger.Warn("rejected change set", "file", path, "error", err)
		f.move(path, f.rejectedDir())
		return true
	}
	if err := f.sink.ApplyRemote(set); err != nil {
		f.logger.Warn("apply change set", "file", path, "error", err)
		return false
	}
	f.logger.Debug("applied change set", "file", path, "changes", len(set.Changes))
	f.move(path, f.processedDir())
	return true
}

func (f *DirFeed) move(path, dir string) {
	if err := os.Rename(path, filepath.Join(dir, filepath.Base(path))); err != nil {
		f.logger.Warn("move change set", "file", path, "error", err)
	}
}
