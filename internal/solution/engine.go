package solution

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/spf13/afero"

	"slnsync/internal/config"
	"slnsync/internal/errors"
	"slnsync/internal/notify"
	"slnsync/internal/ordering"
)

// Descriptor is the persisted solution descriptor. The engine records
// structural changes at the solution level in it.
type Descriptor interface {
	AddSolutionFolder(ctx context.Context, chain string) error
	AddProjectReference(ctx context.Context, ref ProjectRef) error
	RemoveProjectReference(ctx context.Context, projectPath string) error
}

// Options controls directory discovery.
type Options struct {
	// IgnoreDirs are directory names skipped during discovery.
	IgnoreDirs []string
	// MaxConcurrentReads bounds parallel file reads during discovery.
	MaxConcurrentReads int
	// ProjectSuffix is stripped from descriptor file names to name projects.
	ProjectSuffix string
}

// OptionsFromConfig derives engine options from the workspace config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		IgnoreDirs:         cfg.Discovery.IgnoreDirs,
		MaxConcurrentReads: cfg.Discovery.MaxConcurrentReads,
		ProjectSuffix:      cfg.Analysis.ProjectDescriptorSuffix,
	}
}

// Engine is the only writer of a Solution. Mutations are serialized by one
// engine-wide lock; each completes, including delivery of its notifications,
// before the next starts.
type Engine struct {
	sol    *Solution
	fs     afero.Fs
	bus    *notify.Bus
	logger *slog.Logger
	opts   Options

	mu   sync.Mutex
	desc Descriptor
}

// NewEngine creates an engine for sol reading the disk through fs.
func NewEngine(sol *Solution, fs afero.Fs, bus *notify.Bus, logger *slog.Logger, opts Options) *Engine {
	if opts.MaxConcurrentReads < 1 {
		opts.MaxConcurrentReads = 1
	}
	return &Engine{
		sol:    sol,
		fs:     fs,
		bus:    bus,
		logger: logger,
		opts:   opts,
	}
}

// SetDescriptor attaches the persisted descriptor updated by AddProject and
// RemoveProject.
func (e *Engine) SetDescriptor(d Descriptor) {
	e.mu.Lock()
	e.desc = d
	e.mu.Unlock()
}

// Solution returns the tree the engine mutates.
func (e *Engine) Solution() *Solution {
	return e.sol
}

// Fs returns the filesystem the engine discovers through.
func (e *Engine) Fs() afero.Fs {
	return e.fs
}

// begin takes the mutation lock after checking for cancellation.
func (e *Engine) begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.New(errors.Cancelled, "operation cancelled", err)
	}
	e.mu.Lock()
	return nil
}

// registered reports whether n is the live node with its ID.
func (e *Engine) registered(n Node) bool {
	cur, ok := e.sol.reg.nodes[n.ID()]
	return ok && cur == n
}

func (e *Engine) holderOf(id string) (holder, bool) {
	n, ok := e.sol.reg.nodes[id]
	if !ok {
		return nil, false
	}
	h, ok := n.(holder)
	return h, ok
}

// insertEntry places en into h's ordered list. The caller holds the write
// lock and has checked for duplicates.
func insertEntry(h holder, idx int, en Entry) {
	l := h.list()
	*l = slices.Insert(*l, idx, en)
}

// detachEntry removes en from h's list by identity. It reports false when
// en was not at its ordered position, which is a consistency violation; a
// mis-placed en is still removed.
func detachEntry(h holder, en Entry) bool {
	l := h.list()
	idx, found := ordering.Search(*l, entryKey, entryKey(en))
	if found && (*l)[idx] == en {
		*l = slices.Delete(*l, idx, idx+1)
		return true
	}
	// Fall back to a scan in case the list was mis-ordered.
	i := slices.Index(*l, en)
	if i < 0 {
		return false
	}
	*l = slices.Delete(*l, i, i+1)
	return false
}

func containsEntry(h holder, en Entry) bool {
	l := *h.list()
	idx, found := ordering.Search(l, entryKey, entryKey(en))
	return found && l[idx] == en
}

func searchSolutionFolders(folders []*SolutionFolder, name string) (int, bool) {
	return ordering.Search(folders, solutionFolderKey, ordering.FolderKey(name))
}

func searchProjects(projects []*Project, name string) (int, bool) {
	return ordering.Search(projects, projectKey, ordering.FileKey(name))
}

// warnInconsistent logs a consistency violation; the operation carries on.
func (e *Engine) warnInconsistent(op, path, msg string) {
	err := errors.New(errors.ConsistencyViolation, msg, nil).WithPath(path)
	e.logger.Warn("Tree inconsistency", "op", op, "path", path, "error", err)
}

// projectPathOf returns the descriptor path of the project owning n.
func (e *Engine) projectPathOf(n Node) string {
	if p, ok := e.sol.projectOf(n); ok {
		return p.path
	}
	return ""
}

// publishSequential delivers events one at a time, each awaited before the
// next is published. The mutation is already committed, so cancelling ctx
// does not stop delivery.
func (e *Engine) publishSequential(ctx context.Context, events []notify.Event) {
	ctx = context.WithoutCancel(ctx)
	for _, ev := range events {
		_ = e.bus.Publish(ctx, ev).Wait()
	}
}

// publishConcurrent publishes all events at once and waits for them all.
func (e *Engine) publishConcurrent(ctx context.Context, events []notify.Event) {
	ctx = context.WithoutCancel(ctx)
	deliveries := make([]*notify.Delivery, 0, len(events))
	for _, ev := range events {
		deliveries = append(deliveries, e.bus.Publish(ctx, ev))
	}
	_ = notify.WaitAll(deliveries)
}

func (e *Engine) withProject(ev notify.Event, n Node) notify.Event {
	ev.Project = e.projectPathOf(n)
	return ev
}
