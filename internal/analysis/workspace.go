package analysis

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"slnsync/internal/errors"
	"slnsync/internal/notify"
	"slnsync/internal/paths"
	"slnsync/internal/solution"
)

// Checker computes diagnostics for one document.
type Checker interface {
	Check(ctx context.Context, path string, lang Language, source []byte) ([]Diagnostic, error)
}

// seenLimit bounds the event IDs remembered for discarding repeats.
const seenLimit = 4096

// Workspace tracks the source documents of a solution. It learns about files
// from the notification bus and from explicit reloads.
type Workspace struct {
	fs      afero.Fs
	sol     *solution.Solution
	checker Checker
	logger  *slog.Logger
	workers int

	mu    sync.RWMutex
	docs  map[string]*Document
	diags map[string][]Diagnostic
	stale map[string]bool

	seenMu    sync.Mutex
	seen      map[string]struct{}
	seenOrder []string
	repeats   int
}

// NewWorkspace creates an empty workspace. workers bounds concurrent checks.
func NewWorkspace(fs afero.Fs, sol *solution.Solution, checker Checker, workers int, logger *slog.Logger) *Workspace {
	if workers < 1 {
		workers = 1
	}
	return &Workspace{
		fs:      fs,
		sol:     sol,
		checker: checker,
		logger:  logger,
		workers: workers,
		docs:    make(map[string]*Document),
		diags:   make(map[string][]Diagnostic),
		stale:   make(map[string]bool),
		seen:    make(map[string]struct{}),
	}
}

func languageOf(path string) (Language, bool) {
	return LanguageFromExtension(filepath.Ext(path))
}

// ReloadProject re-reads every source file the solution holds for the
// project and drops documents that no longer belong to it.
func (w *Workspace) ReloadProject(ctx context.Context, projectPath string) error {
	projectPath = paths.Clean(projectPath)
	project, ok := w.sol.ProjectByPath(projectPath)
	if !ok {
		w.dropProject(projectPath)
		return errors.New(errors.NodeNotFound, "project is not in the solution", nil).WithPath(projectPath)
	}

	type loaded struct {
		path string
		lang Language
		text []byte
	}
	var files []*solution.File
	for _, f := range w.sol.AllFiles() {
		if _, ok := languageOf(f.Path()); !ok {
			continue
		}
		if p, ok := w.sol.ProjectOf(f); ok && p == project {
			files = append(files, f)
		}
	}

	results := make([]loaded, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	for i, f := range files {
		i, path := i, f.Path()
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return errors.New(errors.Cancelled, "project reload cancelled", err).WithPath(projectPath)
			}
			text, err := afero.ReadFile(w.fs, path)
			if err != nil {
				return errors.New(errors.ReloadFailure, "cannot read source file", err).WithPath(path)
			}
			lang, _ := languageOf(path)
			results[i] = loaded{path: path, lang: lang, text: text}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w.mu.Lock()
	keep := make(map[string]bool, len(results))
	for _, r := range results {
		keep[r.path] = true
		w.putLocked(r.path, projectPath, r.lang, r.text)
	}
	for path, d := range w.docs {
		if d.Project == projectPath && !keep[path] {
			w.dropLocked(path)
		}
	}
	w.mu.Unlock()

	w.logger.Debug("Project reloaded", "project", projectPath, "documents", len(results))
	return nil
}

// UpdateDocument replaces a document's text. Unknown source files are added.
func (w *Workspace) UpdateDocument(ctx context.Context, path string, text []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.New(errors.Cancelled, "document update cancelled", err).WithPath(path)
	}
	path = paths.Clean(path)
	lang, ok := languageOf(path)
	if !ok {
		return errors.New(errors.InvalidArgument, "not a source file", nil).WithPath(path)
	}
	project := ""
	if f, ok := w.sol.FileByPath(path); ok {
		if p, ok := w.sol.ProjectOf(f); ok {
			project = p.Path()
		}
	}

	w.mu.Lock()
	if d, ok := w.docs[path]; ok && project == "" {
		project = d.Project
	}
	w.putLocked(path, project, lang, slices.Clone(text))
	w.mu.Unlock()
	return nil
}

func (w *Workspace) putLocked(path, project string, lang Language, text []byte) {
	d, ok := w.docs[path]
	if !ok {
		d = &Document{Path: path}
		w.docs[path] = d
	}
	d.Project = project
	d.Language = lang
	d.Text = text
	d.Version++
	w.stale[path] = true
}

func (w *Workspace) dropLocked(path string) {
	delete(w.docs, path)
	delete(w.diags, path)
	delete(w.stale, path)
}

func (w *Workspace) dropProject(projectPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, d := range w.docs {
		if d.Project == projectPath {
			w.dropLocked(path)
		}
	}
}

// RefreshDiagnostics re-checks the stale documents of a project, or of the
// whole workspace when projectPath is empty.
func (w *Workspace) RefreshDiagnostics(ctx context.Context, projectPath string) error {
	if projectPath != "" {
		projectPath = paths.Clean(projectPath)
	}
	type job struct {
		path    string
		lang    Language
		text    []byte
		version int
	}
	var jobs []job
	w.mu.RLock()
	for path := range w.stale {
		d := w.docs[path]
		if projectPath == "" || d.Project == projectPath {
			jobs = append(jobs, job{path: path, lang: d.Language, text: d.Text, version: d.Version})
		}
	}
	w.mu.RUnlock()
	if len(jobs) == 0 {
		return nil
	}

	results := make([][]Diagnostic, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			diags, err := w.checker.Check(gctx, j.path, j.lang, j.text)
			if err != nil {
				if gctx.Err() != nil {
					return errors.New(errors.Cancelled, "diagnostics cancelled", err).WithPath(j.path)
				}
				return errors.New(errors.ReloadFailure, "cannot check document", err).WithPath(j.path)
			}
			results[i] = diags
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w.mu.Lock()
	for i, j := range jobs {
		d, ok := w.docs[j.path]
		// a newer version arrived meanwhile and stays stale
		if !ok || d.Version != j.version {
			continue
		}
		if len(results[i]) == 0 {
			delete(w.diags, j.path)
		} else {
			w.diags[j.path] = results[i]
		}
		delete(w.stale, j.path)
	}
	w.mu.Unlock()
	w.logger.Debug("Diagnostics refreshed", "project", projectPath, "documents", len(jobs))
	return nil
}

// Document returns a copy of the document at path
func (w *Workspace) Document(path string) (Document, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	d, ok := w.docs[paths.Clean(path)]
	if !ok {
		return Document{}, false
	}
	cp := *d
	cp.Text = slices.Clone(d.Text)
	return cp, true
}

// Documents returns the tracked paths, sorted
func (w *Workspace) Documents() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.docs))
	for p := range w.docs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Diagnostics returns the diagnostics of one document
func (w *Workspace) Diagnostics(path string) []Diagnostic {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.diags[paths.Clean(path)])
}

// AllDiagnostics returns every diagnostic ordered by path and position.
func (w *Workspace) AllDiagnostics() []Diagnostic {
	w.mu.RLock()
	var out []Diagnostic
	for _, ds := range w.diags {
		out = append(out, ds...)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return out
}

// firstDelivery records id and reports whether it is new.
func (w *Workspace) firstDelivery(id string) bool {
	if id == "" {
		return true
	}
	w.seenMu.Lock()
	defer w.seenMu.Unlock()
	if _, ok := w.seen[id]; ok {
		w.repeats++
		return false
	}
	w.seen[id] = struct{}{}
	w.seenOrder = append(w.seenOrder, id)
	if len(w.seenOrder) > seenLimit {
		delete(w.seen, w.seenOrder[0])
		w.seenOrder = w.seenOrder[1:]
	}
	return true
}

// Handle implements notify.Handler. Repeated deliveries of an event are
// discarded.
func (w *Workspace) Handle(ctx context.Context, ev notify.Event) error {
	if !ev.Kind.IsFileEvent() || !w.firstDelivery(ev.ID) {
		return nil
	}
	switch ev.Kind {
	case notify.FileAdded:
		lang, ok := languageOf(ev.Path)
		if !ok {
			return nil
		}
		w.mu.Lock()
		w.putLocked(ev.Path, ev.Project, lang, slices.Clone(ev.Contents))
		w.mu.Unlock()
	case notify.FileRemoved:
		w.mu.Lock()
		w.dropLocked(ev.Path)
		w.mu.Unlock()
	case notify.FileMoved, notify.FileRenamed:
		w.move(ev)
	case notify.FileContentChanged:
		if _, ok := languageOf(ev.Path); !ok {
			return nil
		}
		text, err := afero.ReadFile(w.fs, ev.Path)
		if err != nil {
			return errors.New(errors.ReloadFailure, "cannot read changed file", err).WithPath(ev.Path)
		}
		return w.UpdateDocument(ctx, ev.Path, text)
	}
	return nil
}

func (w *Workspace) move(ev notify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, ok := w.docs[ev.OldPath]
	if !ok {
		return
	}
	w.dropLocked(ev.OldPath)
	lang, ok := languageOf(ev.Path)
	if !ok {
		return
	}
	project := ev.Project
	if project == "" {
		project = d.Project
	}
	w.putLocked(ev.Path, project, lang, d.Text)
}

// Stats returns workspace statistics
func (w *Workspace) Stats() map[string]interface{} {
	w.mu.RLock()
	docs, stale := len(w.docs), len(w.stale)
	diagCount := 0
	for _, ds := range w.diags {
		diagCount += len(ds)
	}
	w.mu.RUnlock()

	w.seenMu.Lock()
	repeats := w.repeats
	w.seenMu.Unlock()

	return map[string]interface{}{
		"documents":       docs,
		"stale":           stale,
		"diagnostics":     diagCount,
		"repeatsDropped":  repeats,
		"syntaxAvailable": IsAvailable(),
	}
}
