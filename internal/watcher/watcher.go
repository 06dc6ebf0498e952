// Package watcher turns filesystem notifications below a workspace root into
// debounced batches of create/modify/delete/rename events.
package watcher

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"slnsync/internal/config"
	"slnsync/internal/errors"
)

// EventType represents the type of file system event
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
	EventRename
)

// Event represents a file system event
type Event struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}

// String returns a string representation of the event type
func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// ChangeHandler receives each debounced batch, in arrival order
type ChangeHandler func(events []Event)

// Watcher watches a directory tree for changes
type Watcher struct {
	config     config.WatcherConfig
	root       string
	ignoreDirs []string
	logger     *slog.Logger
	handler    ChangeHandler

	batch *BatchDebouncer
	fsw   *fsnotify.Watcher
	dirs  map[string]struct{}
	mu    sync.RWMutex
	wg    sync.WaitGroup
	done  chan struct{}

	received atomic.Int64
	ignored  atomic.Int64
	emitted  atomic.Int64
}

// New creates a watcher for the tree at root. Directories whose base name is
// in ignoreDirs are never watched.
func New(root string, cfg config.WatcherConfig, ignoreDirs []string, logger *slog.Logger, handler ChangeHandler) *Watcher {
	w := &Watcher{
		config:     cfg,
		root:       filepath.Clean(root),
		ignoreDirs: ignoreDirs,
		logger:     logger,
		handler:    handler,
		dirs:       make(map[string]struct{}),
	}
	w.batch = NewBatchDebouncer(time.Duration(cfg.DebounceMs)*time.Millisecond, w.emit)
	return w
}

// Start begins watching
func (w *Watcher) Start() error {
	if !w.config.Enabled {
		w.logger.Info("File watcher is disabled")
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.New(errors.InvalidArgument, "cannot create filesystem watcher", err)
	}
	w.fsw = fsw
	w.done = make(chan struct{})
	if err := w.addTreeLocked(w.root); err != nil {
		_ = fsw.Close()
		w.fsw = nil
		return err
	}

	w.wg.Add(1)
	go w.loop(fsw, w.done)

	w.logger.Info("Watching",
		"root", w.root,
		"dirs", len(w.dirs),
		"debounceMs", w.config.DebounceMs,
	)
	return nil
}

// Stop stops watching. Events still waiting in the debouncer are dropped.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	fsw := w.fsw
	w.fsw = nil
	if fsw != nil {
		close(w.done)
	}
	w.dirs = make(map[string]struct{})
	w.mu.Unlock()

	if fsw == nil {
		return nil
	}
	err := fsw.Close()
	w.wg.Wait()
	w.batch.Cancel()
	w.logger.Info("File watcher stopped")
	return err
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, done <-chan struct{}) {
	defer w.wg.Done()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(raw fsnotify.Event) {
	w.received.Add(1)
	ev, ok := translate(raw, time.Now())
	if !ok || w.IsIgnored(w.rel(ev.Path)) || w.inIgnoredDir(ev.Path) {
		w.ignored.Add(1)
		return
	}

	switch ev.Type {
	case EventCreate:
		// new directories are watched before anything inside them can change
		w.mu.Lock()
		if w.fsw != nil {
			if err := w.addTreeLocked(ev.Path); err != nil {
				w.logger.Debug("Not watching new path", "path", ev.Path, "error", err)
			}
		}
		w.mu.Unlock()
	case EventDelete, EventRename:
		w.mu.Lock()
		for dir := range w.dirs {
			if dir == ev.Path || strings.HasPrefix(dir, ev.Path+string(filepath.Separator)) {
				delete(w.dirs, dir)
			}
		}
		w.mu.Unlock()
	}

	w.logger.Debug("Change detected", "type", ev.Type.String(), "path", ev.Path)
	w.batch.Add(ev)
}

func (w *Watcher) emit(events []Event) {
	w.emitted.Add(int64(len(events)))
	if w.handler != nil {
		w.handler(events)
	}
}

// addTreeLocked watches dir and every directory below it. Paths that are not
// directories are ignored.
func (w *Watcher) addTreeLocked(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && (slices.Contains(w.ignoreDirs, d.Name()) || w.IsIgnored(w.rel(path))) {
			return filepath.SkipDir
		}
		if _, ok := w.dirs[path]; ok {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		w.dirs[path] = struct{}{}
		return nil
	})
}

// translate maps an fsnotify event onto an Event. Chmod-only events are
// dropped.
func translate(ev fsnotify.Event, now time.Time) (Event, bool) {
	out := Event{Path: filepath.Clean(ev.Name), Timestamp: now}
	switch {
	case ev.Has(fsnotify.Create):
		out.Type = EventCreate
	case ev.Has(fsnotify.Remove):
		out.Type = EventDelete
	case ev.Has(fsnotify.Rename):
		out.Type = EventRename
	case ev.Has(fsnotify.Write):
		out.Type = EventModify
	default:
		return Event{}, false
	}
	return out, true
}

func (w *Watcher) rel(path string) string {
	r, err := filepath.Rel(w.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(r)
}

// inIgnoredDir reports whether any directory between root and path is in
// the ignore list.
func (w *Watcher) inIgnoredDir(path string) bool {
	parts := strings.Split(w.rel(path), "/")
	for _, p := range parts[:len(parts)-1] {
		if slices.Contains(w.ignoreDirs, p) {
			return true
		}
	}
	return false
}

// IsIgnored checks if a root-relative, slash-separated path matches the
// ignore patterns
func (w *Watcher) IsIgnored(path string) bool {
	for _, pattern := range w.config.IgnorePatterns {
		matched, _ := filepath.Match(pattern, filepath.Base(path))
		if matched {
			return true
		}

		// prefix/** matches everything below prefix
		if prefix, ok := strings.CutSuffix(pattern, "/**"); ok && !strings.Contains(prefix, "**") {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
		}
	}
	return false
}

// WatchedDirs returns the watched directories, sorted
func (w *Watcher) WatchedDirs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	dirs := make([]string, 0, len(w.dirs))
	for path := range w.dirs {
		dirs = append(dirs, path)
	}
	sort.Strings(dirs)
	return dirs
}

// Stats returns watcher statistics
func (w *Watcher) Stats() map[string]interface{} {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return map[string]interface{}{
		"enabled":        w.config.Enabled,
		"watchedDirs":    len(w.dirs),
		"debounceMs":     w.config.DebounceMs,
		"ignorePatterns": len(w.config.IgnorePatterns),
		"received":       w.received.Load(),
		"ignored":        w.ignored.Load(),
		"emitted":        w.emitted.Load(),
		"pending":        w.batch.EventCount(),
	}
}
