// Package evaluation reads project descriptors (*.project.toml) and keeps
// the last successfully evaluated state of each.
package evaluation

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"slnsync/internal/errors"
	"slnsync/internal/paths"
)

// Project is an evaluated project descriptor
type Project struct {
	// Name defaults to the descriptor's file name without its suffix
	Name string `toml:"name"`

	// Language of the project's sources, e.g. "csharp"
	Language string `toml:"language,omitempty"`

	// Target framework or toolchain
	Target string `toml:"target,omitempty"`

	// RootNamespace prefixes namespaces of new source files
	RootNamespace string `toml:"root_namespace,omitempty"`

	// References are descriptor paths of referenced projects, relative to
	// this descriptor's directory
	References []string `toml:"references,omitempty"`

	Properties map[string]string `toml:"properties,omitempty"`

	// Path is the absolute descriptor path
	Path string `toml:"-"`
}

// Namespace returns the root namespace, falling back to the project name.
func (p *Project) Namespace() string {
	if p.RootNamespace != "" {
		return p.RootNamespace
	}
	return Identifier(p.Name)
}

// ReferencePaths resolves References to absolute paths.
func (p *Project) ReferencePaths() []string {
	dir := filepath.Dir(p.Path)
	out := make([]string, 0, len(p.References))
	for _, ref := range p.References {
		if filepath.IsAbs(ref) {
			out = append(out, filepath.Clean(ref))
			continue
		}
		out = append(out, filepath.Join(dir, filepath.FromSlash(ref)))
	}
	return out
}

// Parse decodes descriptor bytes. Unknown keys are rejected.
func Parse(path string, data []byte, suffix string) (*Project, error) {
	var p Project
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		e := errors.New(errors.ReloadFailure, "invalid project descriptor", err).WithPath(path)
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			e = e.WithDetails(map[string]int{"line": row, "column": col})
		}
		return nil, e
	}
	if p.Name == "" {
		name, _ := paths.StripSuffixFold(filepath.Base(path), suffix)
		p.Name = name
	}
	for _, ref := range p.References {
		if !paths.HasSuffixFold(ref, suffix) {
			return nil, errors.Newf(errors.ReloadFailure, "reference %q is not a project descriptor", ref).WithPath(path)
		}
	}
	p.Path = path
	return &p, nil
}

// Evaluator evaluates project descriptors on demand. A failed reload keeps
// the previous state of the project.
type Evaluator struct {
	fs     afero.Fs
	suffix string
	logger *slog.Logger

	mu       sync.RWMutex
	projects map[string]*Project
	failures map[string]error
}

// NewEvaluator creates an evaluator reading descriptors through fs.
func NewEvaluator(fs afero.Fs, suffix string, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		fs:       fs,
		suffix:   suffix,
		logger:   logger,
		projects: make(map[string]*Project),
		failures: make(map[string]error),
	}
}

// ReloadProject re-reads and evaluates the descriptor at path.
func (e *Evaluator) ReloadProject(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return errors.New(errors.Cancelled, "evaluation cancelled", err).WithPath(path)
	}
	path = paths.Clean(path)

	data, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return e.failed(path, errors.New(errors.ReloadFailure, "cannot read project descriptor", err).WithPath(path))
	}
	p, err := Parse(path, data, e.suffix)
	if err != nil {
		return e.failed(path, err)
	}

	e.mu.Lock()
	e.projects[path] = p
	delete(e.failures, path)
	e.mu.Unlock()

	e.logger.Debug("Project evaluated", "path", path, "name", p.Name, "references", len(p.References))
	return nil
}

func (e *Evaluator) failed(path string, err error) error {
	e.mu.Lock()
	e.failures[path] = err
	_, kept := e.projects[path]
	e.mu.Unlock()

	e.logger.Warn("Project evaluation failed", "path", path, "keptPrevious", kept, "error", err)
	return err
}

// Project returns the last good evaluation of the descriptor at path.
func (e *Evaluator) Project(path string) (*Project, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.projects[paths.Clean(path)]
	return p, ok
}

// LastError returns the error of the most recent failed reload of path, nil
// after a successful one.
func (e *Evaluator) LastError(path string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.failures[paths.Clean(path)]
}

// Forget drops the state of a removed project.
func (e *Evaluator) Forget(path string) {
	path = paths.Clean(path)
	e.mu.Lock()
	delete(e.projects, path)
	delete(e.failures, path)
	e.mu.Unlock()
}

// RootNamespace returns the namespace new sources in the project start with.
func (e *Evaluator) RootNamespace(path string) (string, bool) {
	p, ok := e.Project(path)
	if !ok {
		return "", false
	}
	return p.Namespace(), true
}

// Stats returns evaluator statistics
func (e *Evaluator) Stats() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return map[string]interface{}{
		"projects": len(e.projects),
		"failing":  len(e.failures),
	}
}

// Identifier turns a file or folder name into a namespace segment: invalid
// characters become '_' and a leading digit is prefixed with '_'.
func Identifier(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case unicode.IsLetter(r) || r == '_':
			b.WriteRune(r)
		case unicode.IsDigit(r):
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

func (p *Project) String() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.Path)
}
