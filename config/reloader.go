package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

var (
	ErrAlreadyWatching = errors.New("reloader is already watching")
	ErrNoWatchPaths    = errors.New("reloader has no paths to watch")
)

// DefaultDebounce coalesces bursts of file events into one change.
const DefaultDebounce = 250 * time.Millisecond

// Logger is the logging contract used by the reloader.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Change describes a modification of a watched file.
type Change struct {
	Path      string    `json:"path"`
	Op        string    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// ReloadCallback is called when configuration changes are detected
type ReloadCallback func(ctx context.Context, change Change) error

// Reloader watches configuration files and reports changes. Directories of
// the watched files are observed so that editors replacing a file by rename
// are still seen.
type Reloader struct {
	paths    []string
	debounce time.Duration
	logger   Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	doneCh   chan struct{}
	watching bool
}

// NewReloader creates a new configuration reloader. A zero debounce uses
// DefaultDebounce.
func NewReloader(paths []string, debounce time.Duration, logger Logger) *Reloader {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		if a, err := filepath.Abs(p); err == nil {
			p = a
		}
		abs = append(abs, filepath.Clean(p))
	}
	return &Reloader{paths: abs, debounce: debounce, logger: logger}
}

// Paths returns the watched files.
func (r *Reloader) Paths() []string {
	out := make([]string, len(r.paths))
	copy(out, r.paths)
	return out
}

// StartWatch starts watching configuration sources for changes. callback runs
// on the watcher goroutine; ctx is passed to it and cancelling ctx stops the
// watch.
func (r *Reloader) StartWatch(ctx context.Context, callback ReloadCallback) error {
	if len(r.paths) == 0 {
		return ErrNoWatchPaths
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.watching {
		return ErrAlreadyWatching
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dirs := make(map[string]struct{})
	for _, p := range r.paths {
		dir := filepath.Dir(p)
		if _, seen := dirs[dir]; seen {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs[dir] = struct{}{}
	}

	r.watcher = watcher
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.watching = true

	go r.loop(ctx, watcher, r.stopCh, r.doneCh, callback)
	r.log().Debug("Watching configuration files", "paths", r.paths)
	return nil
}

// StopWatch stops watching configuration sources and waits for the watcher
// goroutine to exit or ctx to be done.
func (r *Reloader) StopWatch(ctx context.Context) error {
	r.mu.Lock()
	if !r.watching {
		r.mu.Unlock()
		return nil
	}
	close(r.stopCh)
	done := r.doneCh
	r.watching = false
	r.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsWatching returns true if currently watching for configuration changes
func (r *Reloader) IsWatching() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.watching
}

func (r *Reloader) watched(name string) bool {
	name = filepath.Clean(name)
	for _, p := range r.paths {
		if p == name {
			return true
		}
	}
	return false
}

func (r *Reloader) loop(ctx context.Context, watcher *fsnotify.Watcher, stopCh, doneCh chan struct{}, callback ReloadCallback) {
	defer close(doneCh)
	defer watcher.Close()

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending Change
	)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !r.watched(event.Name) {
				continue
			}
			pending = Change{Path: filepath.Clean(event.Name), Op: event.Op.String(), Timestamp: time.Now()}
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			r.log().Info("Configuration file changed", "file", pending.Path, "operation", pending.Op)
			if callback != nil {
				if err := callback(ctx, pending); err != nil {
					r.log().Error("Configuration reload callback failed", "file", pending.Path, "error", err)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.log().Error("File watcher error", "error", err)

		case <-stopCh:
			r.stopTimer(timer)
			return

		case <-ctx.Done():
			r.stopTimer(timer)
			r.mu.Lock()
			if r.stopCh == stopCh {
				r.watching = false
			}
			r.mu.Unlock()
			return
		}
	}
}

func (r *Reloader) stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (r *Reloader) log() Logger {
	if r.logger == nil {
		return nopLogger{}
	}
	return r.logger
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
