// Package reconcile turns filesystem watch events and IDE saves into tree
// mutations and analysis updates. It tells echoes of the IDE's own writes
// apart from genuine external edits.
package reconcile

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"slnsync/internal/config"
	"slnsync/internal/errors"
	"slnsync/internal/paths"
	"slnsync/internal/solution"
	"slnsync/internal/watcher"
)

// Analyzer is the semantic analysis workspace.
type Analyzer interface {
	ReloadProject(ctx context.Context, projectPath string) error
	UpdateDocument(ctx context.Context, path string, text []byte) error
	RefreshDiagnostics(ctx context.Context, projectPath string) error
}

// Evaluator re-evaluates a project descriptor after it changed on disk.
type Evaluator interface {
	ReloadProject(ctx context.Context, projectPath string) error
}

// Editor exposes the IDE's open buffers.
type Editor interface {
	IsOpen(path string) bool
	GetText(path string) ([]byte, bool)
	ReloadFromDiskIfOpen(ctx context.Context, path string) error
}

// Collaborators are the optional downstream services. A nil field skips the
// steps that use it.
type Collaborators struct {
	Analyzer  Analyzer
	Evaluator Evaluator
	Editor    Editor
}

// Outcome says what HandleWatchEvent did with an event.
type Outcome int

const (
	Ignored Outcome = iota
	Forwarded
	Echo
	Suppressed
	Structural
)

func (o Outcome) String() string {
	switch o {
	case Forwarded:
		return "forwarded"
	case Echo:
		return "echo"
	case Suppressed:
		return "suppressed"
	case Structural:
		return "structural"
	default:
		return "ignored"
	}
}

// Options configures the service.
type Options struct {
	// EchoWindow is how long after an IDE write a change to the same file is
	// taken to be that write coming back from the watcher.
	EchoWindow       time.Duration
	SourceExtensions []string
	ProjectSuffix    string
	IgnoreDirs       []string
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

// OptionsFromConfig derives service options from the workspace config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		EchoWindow:       cfg.EchoWindow(),
		SourceExtensions: cfg.Analysis.SourceExtensions,
		ProjectSuffix:    cfg.Analysis.ProjectDescriptorSuffix,
		IgnoreDirs:       cfg.Discovery.IgnoreDirs,
	}
}

// Service reconciles external changes with the solution tree. It never
// mutates the tree itself; structural changes go through the engine.
type Service struct {
	engine *solution.Engine
	sol    *solution.Solution
	fs     afero.Fs
	deps   Collaborators
	logger *slog.Logger
	opts   Options

	// serializes batches from the watcher
	mu sync.Mutex

	forwarded  atomic.Int64
	echoes     atomic.Int64
	suppressed atomic.Int64
	structural atomic.Int64
	ignored    atomic.Int64
	failures   atomic.Int64
}

// NewService creates a reconciler driving engine.
func NewService(engine *solution.Engine, deps Collaborators, logger *slog.Logger, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		engine: engine,
		sol:    engine.Solution(),
		fs:     engine.Fs(),
		deps:   deps,
		logger: logger,
		opts:   opts,
	}
}

// RecordIdeWrite notes that the IDE has just written path.
func (s *Service) RecordIdeWrite(path string) error {
	file, ok := s.sol.FileByPath(paths.Clean(path))
	if !ok {
		return errors.New(errors.NodeNotFound, "file is not in the solution", nil).WithPath(path)
	}
	file.MarkIdeWrite(s.opts.Now())
	return nil
}

// Suppress ignores watch events for path until release is called. It guards
// multi-step IDE operations whose writes span longer than the echo window.
func (s *Service) Suppress(path string) (release func(), err error) {
	file, ok := s.sol.FileByPath(paths.Clean(path))
	if !ok {
		return nil, errors.New(errors.NodeNotFound, "file is not in the solution", nil).WithPath(path)
	}
	return file.Suppress(), nil
}

// HandleBatch handles a debounced batch from the watcher in order. Errors are
// logged; the remaining events are still handled.
func (s *Service) HandleBatch(ctx context.Context, events []watcher.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range events {
		if ctx.Err() != nil {
			return
		}
		outcome, err := s.HandleWatchEvent(ctx, ev)
		if err != nil {
			level := slog.LevelError
			if errors.IsRecoverable(err) {
				level = slog.LevelWarn
			}
			s.logger.Log(ctx, level, "Watch event not applied",
				"type", ev.Type.String(),
				"path", ev.Path,
				"error", err,
			)
			continue
		}
		s.logger.Debug("Watch event handled",
			"type", ev.Type.String(),
			"path", ev.Path,
			"outcome", outcome.String(),
		)
	}
}

// HandleWatchEvent applies one watch event. Duplicate and out-of-order
// deliveries resolve to Ignored.
func (s *Service) HandleWatchEvent(ctx context.Context, ev watcher.Event) (Outcome, error) {
	path := paths.Clean(ev.Path)
	var (
		outcome Outcome
		err     error
	)
	switch ev.Type {
	case watcher.EventModify:
		outcome, err = s.handleModify(ctx, path)
	case watcher.EventCreate:
		outcome, err = s.handleCreate(ctx, path)
	case watcher.EventDelete, watcher.EventRename:
		outcome, err = s.handleRemove(ctx, path)
	}
	if outcome == Ignored && err == nil {
		s.ignored.Add(1)
	}
	return outcome, err
}

func (s *Service) handleModify(ctx context.Context, path string) (Outcome, error) {
	file, ok := s.sol.FileByPath(path)
	if !ok {
		if _, isFolder := s.sol.FolderByPath(path); isFolder {
			return Ignored, nil
		}
		// the create was missed or dropped
		return s.handleCreate(ctx, path)
	}

	if file.IsSuppressed() {
		s.suppressed.Add(1)
		return Suppressed, nil
	}
	if at, ok := file.LastIdeWrite(); ok && s.opts.Now().Sub(at) < s.opts.EchoWindow {
		s.echoes.Add(1)
		return Echo, nil
	}

	s.forwarded.Add(1)
	s.logger.Debug("External change", "path", path)
	s.externalChange(ctx, file)
	return Forwarded, nil
}

// handleCreate registers a new path. A create of a registered file is a
// replace on disk (save via rename, or delete then recreate) and is handled
// as a content change.
func (s *Service) handleCreate(ctx context.Context, path string) (Outcome, error) {
	if _, ok := s.sol.FileByPath(path); ok {
		return s.handleModify(ctx, path)
	}
	if _, ok := s.sol.FolderByPath(path); ok {
		return Ignored, nil
	}
	parent, ok := s.sol.ContainerForDir(filepath.Dir(path))
	if !ok {
		return Ignored, nil
	}
	fi, err := s.fs.Stat(path)
	if err != nil {
		// already gone again
		return Ignored, nil
	}

	name := filepath.Base(path)
	if fi.IsDir() {
		if slices.Contains(s.opts.IgnoreDirs, name) {
			return Ignored, nil
		}
		_, err = s.engine.AddDirectory(ctx, parent, name)
	} else {
		var data []byte
		data, err = afero.ReadFile(s.fs, path)
		if err != nil {
			return Ignored, nil
		}
		_, err = s.engine.CreateFile(ctx, parent, name, data)
	}
	return s.structuralResult(err)
}

func (s *Service) handleRemove(ctx context.Context, path string) (Outcome, error) {
	if _, err := s.fs.Stat(path); err == nil {
		// recreated since the event was raised; the create that follows
		// carries the new contents
		return Ignored, nil
	}
	if file, ok := s.sol.FileByPath(path); ok {
		return s.structuralResult(s.engine.RemoveFile(ctx, file))
	}
	if folder, ok := s.sol.FolderByPath(path); ok {
		return s.structuralResult(s.engine.RemoveDirectory(ctx, folder))
	}
	return Ignored, nil
}

// structuralResult counts an engine call. Duplicate and not-found errors mean
// another event already applied the change.
func (s *Service) structuralResult(err error) (Outcome, error) {
	switch errors.CodeOf(err) {
	case "":
		s.structural.Add(1)
		return Structural, nil
	case errors.DuplicateNode, errors.NodeNotFound:
		return Ignored, nil
	default:
		return Ignored, err
	}
}

// HandleIdeSave handles the IDE saving path: the write is stamped so its
// watch echo is dropped, and the analysis is updated from the saved text.
func (s *Service) HandleIdeSave(ctx context.Context, path string) error {
	file, ok := s.sol.FileByPath(paths.Clean(path))
	if !ok {
		return errors.New(errors.NodeNotFound, "file is not in the solution", nil).WithPath(path)
	}
	file.MarkIdeWrite(s.opts.Now())
	file.SetDirty(false)

	switch {
	case s.isLoadedProjectDescriptor(file.Path()):
		s.reloadProject(ctx, file.Path())
	case s.isSource(file.Path()):
		s.reloadDocument(ctx, file, false)
	}
	return nil
}

// externalChange runs the pipeline for a file edited outside the IDE.
func (s *Service) externalChange(ctx context.Context, file *solution.File) {
	path := file.Path()
	switch {
	case s.isLoadedProjectDescriptor(path):
		s.reloadProject(ctx, path)
	case s.isSource(path):
		s.reloadDocument(ctx, file, true)
	default:
		file.SetDirty(false)
		if err := s.engine.ContentChanged(ctx, file); err != nil {
			s.logger.Warn("Content change not delivered", "path", path, "error", err)
		}
	}
}

func (s *Service) reloadProject(ctx context.Context, projectPath string) {
	if ev := s.deps.Evaluator; ev != nil {
		if err := ev.ReloadProject(ctx, projectPath); err != nil {
			s.fail("evaluate project", projectPath, err)
			return
		}
	}
	a := s.deps.Analyzer
	if a == nil {
		return
	}
	if err := a.ReloadProject(ctx, projectPath); err != nil {
		s.fail("reload project", projectPath, err)
		return
	}
	if err := a.RefreshDiagnostics(ctx, projectPath); err != nil {
		s.fail("refresh diagnostics", projectPath, err)
	}
}

func (s *Service) reloadDocument(ctx context.Context, file *solution.File, fromDisk bool) {
	path := file.Path()
	if ed := s.deps.Editor; fromDisk && ed != nil {
		if err := ed.ReloadFromDiskIfOpen(ctx, path); err != nil {
			s.fail("reload editor buffer", path, err)
			return
		}
	}
	a := s.deps.Analyzer
	if a == nil {
		return
	}
	text, err := s.text(path)
	if err != nil {
		s.fail("read document", path, err)
		return
	}
	if err := a.UpdateDocument(ctx, path, text); err != nil {
		s.fail("update document", path, err)
		return
	}
	var projectPath string
	if p, ok := s.sol.ProjectOf(file); ok {
		projectPath = p.Path()
	}
	if err := a.RefreshDiagnostics(ctx, projectPath); err != nil {
		s.fail("refresh diagnostics", path, err)
	}
}

// text prefers the open buffer over the disk.
func (s *Service) text(path string) ([]byte, error) {
	if ed := s.deps.Editor; ed != nil && ed.IsOpen(path) {
		if text, ok := ed.GetText(path); ok {
			return text, nil
		}
	}
	return afero.ReadFile(s.fs, path)
}

func (s *Service) fail(step, path string, err error) {
	s.failures.Add(1)
	if errors.CodeOf(err) == "" {
		err = errors.New(errors.ReloadFailure, step+" failed", err).WithPath(path)
	}
	s.logger.Warn("Reload failed, keeping previous state", "step", step, "path", path, "error", err)
}

func (s *Service) isLoadedProjectDescriptor(path string) bool {
	if !paths.HasSuffixFold(path, s.opts.ProjectSuffix) {
		return false
	}
	_, ok := s.sol.ProjectByPath(path)
	return ok
}

func (s *Service) isSource(path string) bool {
	ext := filepath.Ext(path)
	return slices.ContainsFunc(s.opts.SourceExtensions, func(e string) bool {
		return strings.EqualFold(e, ext)
	})
}

// Stats returns reconciliation counters
func (s *Service) Stats() map[string]interface{} {
	return map[string]interface{}{
		"forwarded":      s.forwarded.Load(),
		"echoes":         s.echoes.Load(),
		"suppressed":     s.suppressed.Load(),
		"structural":     s.structural.Load(),
		"ignored":        s.ignored.Load(),
		"reloadFailures": s.failures.Load(),
		"echoWindowMs":   s.opts.EchoWindow.Milliseconds(),
	}
}
