package slogutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"slnsync/internal/config"
)

// LoggerFactory hands out per-component loggers that share one sink: stderr,
// plus the configured log file when there is one. Levels follow the
// precedence CLI flag > logging.components[name] > logging.level.
type LoggerFactory struct {
	root     string
	cfg      config.LoggingConfig
	cliLevel *slog.Level
	stderr   io.Writer

	once    sync.Once
	file    io.WriteCloser
	fileErr error
}

// NewLoggerFactory creates a factory for the workspace at root. cliLevel is
// nil when no level flag was given.
func NewLoggerFactory(root string, cfg *config.Config, cliLevel *slog.Level) *LoggerFactory {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &LoggerFactory{
		root:     root,
		cfg:      cfg.Logging,
		cliLevel: cliLevel,
		stderr:   os.Stderr,
	}
}

// SetOutput replaces the console sink (stderr by default).
func (f *LoggerFactory) SetOutput(w io.Writer) {
	f.stderr = w
}

// For returns the logger for a component such as "engine" or "reconcile".
// A log file that cannot be opened degrades to console-only output.
func (f *LoggerFactory) For(component string) *slog.Logger {
	level := f.EffectiveLevel(component)
	console := NewFormattedHandler(f.stderr, f.cfg.Format, level)

	var h slog.Handler = console
	if file := f.openFile(); file != nil {
		h = NewTeeHandler(console, NewLineHandler(file, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(h).With(ComponentKey, component)
}

// FileError reports why the configured log file could not be opened, if it
// was attempted and failed.
func (f *LoggerFactory) FileError() error {
	f.openFile()
	return f.fileErr
}

func (f *LoggerFactory) openFile() io.Writer {
	if f.cfg.File == "" {
		return nil
	}
	f.once.Do(func() {
		path := f.cfg.File
		if !filepath.IsAbs(path) && f.root != "" {
			path = filepath.Join(f.root, path)
		}
		if size := ParseSize(f.cfg.MaxSize); size > 0 {
			f.file, f.fileErr = OpenRotatingFile(path, size, f.cfg.MaxBackups)
			return
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			f.fileErr = err
			return
		}
		f.file, f.fileErr = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	})
	if f.fileErr != nil {
		return nil
	}
	return f.file
}

// EffectiveLevel resolves the level for a component.
func (f *LoggerFactory) EffectiveLevel(component string) slog.Level {
	if f.cliLevel != nil {
		return *f.cliLevel
	}
	if lvl, ok := f.cfg.Components[component]; ok && lvl != "" {
		return LevelFromString(lvl)
	}
	if f.cfg.Level != "" {
		return LevelFromString(f.cfg.Level)
	}
	return slog.LevelInfo
}

// Close closes the log file if one was opened.
func (f *LoggerFactory) Close() error {
	if f.file != nil {
		err := f.file.Close()
		f.file = nil
		return err
	}
	return nil
}
