// Package editor keeps the text of files open in the IDE.
package editor

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/spf13/afero"

	"slnsync/internal/errors"
	"slnsync/internal/notify"
	"slnsync/internal/paths"
	"slnsync/internal/solution"
)

// SaveHandler is told about every save so the write is not mistaken for an
// external edit.
type SaveHandler interface {
	RecordIdeWrite(path string) error
	HandleIdeSave(ctx context.Context, path string) error
}

type buffer struct {
	text    []byte
	dirty   bool
	version int
}

// Editor holds open buffers keyed by path.
type Editor struct {
	fs     afero.Fs
	sol    *solution.Solution
	logger *slog.Logger

	mu      sync.RWMutex
	buffers map[string]*buffer
	saver   SaveHandler
}

// New creates an editor for files of sol.
func New(fs afero.Fs, sol *solution.Solution, logger *slog.Logger) *Editor {
	return &Editor{
		fs:      fs,
		sol:     sol,
		logger:  logger,
		buffers: make(map[string]*buffer),
	}
}

// SetSaveHandler attaches the handler Save reports to.
func (e *Editor) SetSaveHandler(h SaveHandler) {
	e.mu.Lock()
	e.saver = h
	e.mu.Unlock()
}

// Open loads path into a buffer. Opening an open file is a no-op.
func (e *Editor) Open(path string) error {
	path = paths.Clean(path)
	if _, ok := e.sol.FileByPath(path); !ok {
		return errors.New(errors.NodeNotFound, "file is not in the solution", nil).WithPath(path)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.buffers[path]; ok {
		return nil
	}
	text, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return errors.New(errors.NodeNotFound, "cannot read file", err).WithPath(path)
	}
	e.buffers[path] = &buffer{text: text, version: 1}
	e.logger.Debug("Buffer opened", "path", path)
	return nil
}

// Close drops the buffer, discarding unsaved changes.
func (e *Editor) Close(path string) {
	path = paths.Clean(path)
	e.mu.Lock()
	b, ok := e.buffers[path]
	delete(e.buffers, path)
	e.mu.Unlock()
	if ok && b.dirty {
		e.logger.Info("Unsaved changes discarded", "path", path)
	}
}

// IsOpen reports whether path has a buffer
func (e *Editor) IsOpen(path string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.buffers[paths.Clean(path)]
	return ok
}

// GetText returns a copy of the buffer text
func (e *Editor) GetText(path string) ([]byte, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.buffers[paths.Clean(path)]
	if !ok {
		return nil, false
	}
	return slices.Clone(b.text), true
}

// IsDirty reports whether the buffer has unsaved changes
func (e *Editor) IsDirty(path string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.buffers[paths.Clean(path)]
	return ok && b.dirty
}

// Version counts the changes to a buffer since it was opened
func (e *Editor) Version(path string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if b, ok := e.buffers[paths.Clean(path)]; ok {
		return b.version
	}
	return 0
}

// OpenPaths returns the open buffers, sorted
func (e *Editor) OpenPaths() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.buffers))
	for p := range e.buffers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Edit replaces the buffer text and marks the file dirty.
func (e *Editor) Edit(path string, text []byte) error {
	path = paths.Clean(path)
	e.mu.Lock()
	b, ok := e.buffers[path]
	if ok {
		b.text = slices.Clone(text)
		b.dirty = true
		b.version++
	}
	e.mu.Unlock()
	if !ok {
		return errors.New(errors.NodeNotFound, "file is not open", nil).WithPath(path)
	}
	if f, ok := e.sol.FileByPath(path); ok {
		f.SetDirty(true)
	}
	return nil
}

// Save writes the buffer to disk. The write is recorded before it happens so
// the watcher's echo of it is recognised.
func (e *Editor) Save(ctx context.Context, path string) error {
	path = paths.Clean(path)
	e.mu.RLock()
	b, ok := e.buffers[path]
	var text []byte
	if ok {
		text = slices.Clone(b.text)
	}
	saver := e.saver
	e.mu.RUnlock()
	if !ok {
		return errors.New(errors.NodeNotFound, "file is not open", nil).WithPath(path)
	}

	if saver != nil {
		if err := saver.RecordIdeWrite(path); err != nil {
			return err
		}
	}
	if err := afero.WriteFile(e.fs, path, text, 0644); err != nil {
		return errors.New(errors.ReloadFailure, "cannot save file", err).WithPath(path)
	}

	e.mu.Lock()
	if cur, ok := e.buffers[path]; ok && slices.Equal(cur.text, text) {
		cur.dirty = false
	}
	e.mu.Unlock()
	e.logger.Debug("Buffer saved", "path", path, "bytes", len(text))

	if saver != nil {
		return saver.HandleIdeSave(ctx, path)
	}
	if f, ok := e.sol.FileByPath(path); ok {
		f.SetDirty(false)
	}
	return nil
}

// ReloadFromDiskIfOpen replaces an open buffer with the file's contents on
// disk. A buffer with unsaved changes is kept and the conflict logged.
func (e *Editor) ReloadFromDiskIfOpen(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return errors.New(errors.Cancelled, "reload cancelled", err).WithPath(path)
	}
	path = paths.Clean(path)

	e.mu.RLock()
	b, ok := e.buffers[path]
	dirty := ok && b.dirty
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	if dirty {
		e.logger.Warn("File changed on disk while it has unsaved changes, keeping the buffer", "path", path)
		return nil
	}

	text, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return errors.New(errors.ReloadFailure, "cannot reload file", err).WithPath(path)
	}
	e.mu.Lock()
	if cur, ok := e.buffers[path]; ok && !cur.dirty {
		cur.text = text
		cur.version++
	}
	e.mu.Unlock()
	e.logger.Debug("Buffer reloaded from disk", "path", path)
	return nil
}

// Handle implements notify.Handler, keeping buffers attached to their files
// as they move and closing them when files are removed.
func (e *Editor) Handle(ctx context.Context, ev notify.Event) error {
	switch ev.Kind {
	case notify.FileMoved, notify.FileRenamed:
		e.mu.Lock()
		if b, ok := e.buffers[ev.OldPath]; ok {
			delete(e.buffers, ev.OldPath)
			e.buffers[ev.Path] = b
		}
		e.mu.Unlock()
	case notify.FileRemoved:
		e.Close(ev.Path)
	case notify.FileContentChanged:
		return e.ReloadFromDiskIfOpen(ctx, ev.Path)
	}
	return nil
}
