package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"slnsync/internal/config"
	"slnsync/internal/descriptor"
	"slnsync/internal/session"
	"slnsync/internal/slogutil"
)

// findDescriptor resolves --solution, or looks for exactly one descriptor in
// dir.
func findDescriptor(dir string) (string, error) {
	if solutionFlag != "" {
		return filepath.Abs(solutionFlag)
	}
	var found []string
	for _, pattern := range []string{"*" + descriptor.SuffixTOML, "*" + descriptor.SuffixYAML, "*.sln.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return "", err
		}
		found = append(found, matches...)
	}
	sort.Strings(found)
	switch len(found) {
	case 0:
		return "", fmt.Errorf("no solution descriptor in %s (use --solution)", dir)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("several solution descriptors in %s, pick one with --solution: %v", dir, found)
	}
}

// loadConfig reads the workspace config, falling back to defaults.
func loadConfig(root string) *config.Config {
	cfg, err := config.LoadConfig(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config, using defaults: %v\n", err)
		return config.DefaultConfig()
	}
	return cfg
}

// newLoggers builds the logger factory. --log-level wins over -v and -q;
// with neither the configured levels apply.
func newLoggers(root string, cfg *config.Config) *slogutil.LoggerFactory {
	var level *slog.Level
	switch {
	case logLevelFlag != "":
		l := slogutil.LevelFromString(logLevelFlag)
		level = &l
	case verboseFlag > 0 || quietFlag:
		l := slogutil.LevelFromVerbosity(verboseFlag, quietFlag)
		level = &l
	}
	loggers := slogutil.NewLoggerFactory(root, cfg, level)
	if err := loggers.FileError(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging to stderr only: %v\n", err)
	}
	return loggers
}

// openSession opens the solution named by the flags. The caller closes it.
func openSession(ctx context.Context, create bool) (*session.Session, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	desc, err := findDescriptor(cwd)
	if err != nil {
		return nil, err
	}
	root := filepath.Dir(desc)
	cfg := loadConfig(root)
	return session.Open(ctx, session.Options{
		Descriptor:       desc,
		Root:             root,
		Config:           cfg,
		Loggers:          newLoggers(root, cfg),
		CreateDescriptor: create,
	})
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

