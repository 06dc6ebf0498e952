// Package session assembles a live solution: the tree, the services that
// consume its notifications and the watcher that keeps it in sync with disk.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"slnsync/internal/analysis"
	"slnsync/internal/config"
	"slnsync/internal/descriptor"
	"slnsync/internal/editor"
	"slnsync/internal/evaluation"
	"slnsync/internal/fileops"
	"slnsync/internal/notify"
	"slnsync/internal/reconcile"
	"slnsync/internal/slogutil"
	"slnsync/internal/solution"
	"slnsync/internal/storage"
	"slnsync/internal/watcher"
)

// Options selects what Open loads.
type Options struct {
	// Descriptor is the *.sln.toml or *.sln.yaml file.
	Descriptor string
	// Root is the watched workspace root; the descriptor's directory when
	// empty.
	Root string
	// Fs defaults to the OS filesystem.
	Fs     afero.Fs
	Config *config.Config
	// Loggers defaults to a factory built from Config.
	Loggers *slogutil.LoggerFactory
	// CreateDescriptor writes an empty descriptor when none exists.
	CreateDescriptor bool
}

// Session owns every component of an open solution.
type Session struct {
	Root   string
	Config *config.Config

	Fs         afero.Fs
	Bus        *notify.Bus
	Descriptor *descriptor.Store
	Solution   *solution.Solution
	Engine     *solution.Engine
	Evaluator  *evaluation.Evaluator
	Analysis   *analysis.Workspace // nil when analysis is disabled
	Editor     *editor.Editor
	Reconciler *reconcile.Service
	FileOps    *fileops.Service
	Journal    *storage.Journal // nil when the journal is disabled

	loggers *slogutil.LoggerFactory
	logger  *slog.Logger
	db      *storage.DB
	unsub   []func()

	mu         sync.Mutex
	watcher    *watcher.Watcher
	stopWatch  context.CancelFunc
	closed     bool
	ownLoggers bool
}

// Open loads the solution and wires its consumers. The watcher is not
// started; call StartWatching.
func Open(ctx context.Context, opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	descPath, err := filepath.Abs(opts.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("invalid descriptor path: %w", err)
	}
	root := opts.Root
	if root == "" {
		root = filepath.Dir(descPath)
	}

	s := &Session{Root: root, Config: cfg, Fs: fs, loggers: opts.Loggers}
	if s.loggers == nil {
		s.loggers = slogutil.NewLoggerFactory(root, cfg, nil)
		s.ownLoggers = true
	}
	s.logger = s.loggers.For("session")

	if err := s.openTree(ctx, descPath, opts.CreateDescriptor); err != nil {
		s.Close()
		return nil, err
	}
	s.openConsumers(ctx)
	if err := s.openJournal(); err != nil {
		s.Close()
		return nil, err
	}

	deps := reconcile.Collaborators{Evaluator: s.Evaluator, Editor: s.Editor}
	if s.Analysis != nil {
		deps.Analyzer = s.Analysis
	}
	s.Reconciler = reconcile.NewService(s.Engine, deps, s.loggers.For("reconcile"), reconcile.OptionsFromConfig(cfg))
	s.Editor.SetSaveHandler(s.Reconciler)
	s.FileOps = fileops.NewService(s.Engine, s.Evaluator, s.Reconciler, cfg.Analysis.ProjectDescriptorSuffix, s.loggers.For("fileops"))

	s.logger.Info("Session opened",
		"solution", s.Solution.Name(),
		"projects", len(s.Solution.Projects()),
		"files", s.Solution.FileCount(),
	)
	return s, nil
}

func (s *Session) openTree(ctx context.Context, descPath string, create bool) error {
	dlog := s.loggers.For("descriptor")
	store, err := descriptor.Open(s.Fs, descPath, dlog)
	if err != nil && create {
		if exists, _ := afero.Exists(s.Fs, descPath); !exists {
			store, err = descriptor.Create(s.Fs, descPath, "", dlog)
		}
	}
	if err != nil {
		return err
	}
	s.Descriptor = store

	s.Bus = notify.NewBus(s.loggers.For("notify"))
	s.Solution = solution.NewSolution(store.Name(), store.Path())
	s.Engine = solution.NewEngine(s.Solution, s.Fs, s.Bus, s.loggers.For("engine"), solution.OptionsFromConfig(s.Config))
	s.Engine.SetDescriptor(store)
	return s.Engine.Load(ctx, store.Layout())
}

// openConsumers evaluates every project and seeds the analysis workspace.
// Failures are logged; a broken project must not keep the solution closed.
func (s *Session) openConsumers(ctx context.Context) {
	cfg := s.Config
	s.Evaluator = evaluation.NewEvaluator(s.Fs, cfg.Analysis.ProjectDescriptorSuffix, s.loggers.For("evaluation"))
	for _, p := range s.Solution.Projects() {
		if err := s.Evaluator.ReloadProject(ctx, p.Path()); err != nil {
			s.logger.Warn("Project evaluation failed", "project", p.Path(), "error", err)
		}
	}

	if cfg.Analysis.Enabled {
		s.Analysis = analysis.NewWorkspace(s.Fs, s.Solution, analysis.NewSyntaxChecker(), cfg.Discovery.MaxConcurrentReads, s.loggers.For("analysis"))
		s.unsub = append(s.unsub, s.Bus.Subscribe("analysis", s.Analysis.Handle))
		for _, p := range s.Solution.Projects() {
			if err := s.Analysis.ReloadProject(ctx, p.Path()); err != nil {
				s.logger.Warn("Project analysis load failed", "project", p.Path(), "error", err)
			}
		}
		if err := s.Analysis.RefreshDiagnostics(ctx, ""); err != nil {
			s.logger.Warn("Initial diagnostics failed", "error", err)
		}
		if !analysis.IsAvailable() {
			s.logger.Info("Syntax diagnostics unavailable in this build (requires cgo)")
		}
	}

	s.Editor = editor.New(s.Fs, s.Solution, s.loggers.For("editor"))
	s.unsub = append(s.unsub, s.Bus.Subscribe("editor", s.Editor.Handle))
}

func (s *Session) openJournal() error {
	if !s.Config.Journal.Enabled {
		return nil
	}
	db, err := storage.Open(s.Config.JournalPath(s.Root), s.loggers.For("storage"))
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	s.db = db
	s.Journal = storage.NewJournal(db, s.loggers.For("journal"))
	s.unsub = append(s.unsub, s.Bus.Subscribe("journal", s.Journal.Handle))
	return nil
}

// StartWatching starts the filesystem watcher. Watch batches are reconciled
// until Close.
func (s *Session) StartWatching() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session is closed")
	}
	if s.watcher != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := watcher.New(s.Root, s.Config.Watcher, s.Config.Discovery.IgnoreDirs, s.loggers.For("watcher"), func(events []watcher.Event) {
		s.Reconciler.HandleBatch(ctx, events)
	})
	if err := w.Start(); err != nil {
		cancel()
		return err
	}
	s.watcher, s.stopWatch = w, cancel
	return nil
}

// Watcher returns the running watcher, or nil.
func (s *Session) Watcher() *watcher.Watcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watcher
}

// Close stops the watcher, detaches subscribers and closes the journal.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	w, stop := s.watcher, s.stopWatch
	s.mu.Unlock()

	var lastErr error
	if w != nil {
		if err := w.Stop(); err != nil {
			lastErr = err
		}
		stop()
	}
	for _, u := range s.unsub {
		u()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			lastErr = err
		}
	}
	if s.ownLoggers {
		if err := s.loggers.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Stats gathers the statistics of every component.
func (s *Session) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"solution": map[string]interface{}{
			"name":     s.Solution.Name(),
			"projects": len(s.Solution.Projects()),
			"files":    s.Solution.FileCount(),
		},
		"bus":        s.Bus.Stats(),
		"evaluation": s.Evaluator.Stats(),
		"reconcile":  s.Reconciler.Stats(),
	}
	if s.Analysis != nil {
		stats["analysis"] = s.Analysis.Stats()
	}
	if w := s.Watcher(); w != nil {
		stats["watcher"] = w.Stats()
	}
	return stats
}
