// Package descriptor reads and writes the persisted solution descriptor, a
// *.sln.toml or *.sln.yaml file listing solution folders, projects and
// solution items.
package descriptor

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"slnsync/internal/errors"
	"slnsync/internal/paths"
	"slnsync/internal/solution"
)

// Document is the on-disk form of a solution. Paths are relative to the
// descriptor's directory and slash-separated.
type Document struct {
	Name     string         `toml:"name" yaml:"name"`
	Folders  []string       `toml:"folders,omitempty" yaml:"folders,omitempty"`
	Projects []ProjectEntry `toml:"projects,omitempty" yaml:"projects,omitempty"`
	Items    []ItemEntry    `toml:"items,omitempty" yaml:"items,omitempty"`
}

// ProjectEntry references a project descriptor
type ProjectEntry struct {
	Path   string `toml:"path" yaml:"path"`
	Folder string `toml:"folder,omitempty" yaml:"folder,omitempty"`
}

// ItemEntry is a loose file under a solution folder
type ItemEntry struct {
	Path   string `toml:"path" yaml:"path"`
	Folder string `toml:"folder" yaml:"folder"`
}

// Format is the serialization of a descriptor file
type Format int

const (
	FormatTOML Format = iota
	FormatYAML
)

// Suffixes recognised by FormatOf
const (
	SuffixTOML = ".sln.toml"
	SuffixYAML = ".sln.yaml"
	suffixYML  = ".sln.yml"
)

// FormatOf picks the format from the descriptor's file name.
func FormatOf(path string) (Format, error) {
	base := filepath.Base(path)
	switch {
	case paths.HasSuffixFold(base, SuffixTOML):
		return FormatTOML, nil
	case paths.HasSuffixFold(base, SuffixYAML), paths.HasSuffixFold(base, suffixYML):
		return FormatYAML, nil
	default:
		return 0, errors.New(errors.InvalidArgument, "solution descriptor must end in "+SuffixTOML+" or "+SuffixYAML, nil).WithPath(path)
	}
}

// NameOf returns the solution name implied by the descriptor's file name.
func NameOf(path string) string {
	base := filepath.Base(path)
	for _, s := range []string{SuffixTOML, SuffixYAML, suffixYML} {
		if name, ok := paths.StripSuffixFold(base, s); ok {
			return name
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func decode(format Format, data []byte, doc *Document) error {
	if format == FormatYAML {
		return yaml.Unmarshal(data, doc)
	}
	_, err := toml.Decode(string(data), doc)
	return err
}

func encode(format Format, doc *Document) ([]byte, error) {
	if format == FormatYAML {
		return yaml.Marshal(doc)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Store is an open descriptor. Every change is written back immediately.
// It implements solution.Descriptor.
type Store struct {
	fs     afero.Fs
	path   string
	format Format
	logger *slog.Logger

	mu  sync.Mutex
	doc Document
}

// Open reads the descriptor at path.
func Open(fs afero.Fs, path string, logger *slog.Logger) (*Store, error) {
	path = paths.Clean(path)
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.New(errors.NodeNotFound, "cannot read solution descriptor", err).WithPath(path)
	}

	s := &Store{fs: fs, path: path, format: format, logger: logger}
	if err := decode(format, data, &s.doc); err != nil {
		return nil, errors.New(errors.ReloadFailure, "invalid solution descriptor", err).WithPath(path)
	}
	if s.doc.Name == "" {
		s.doc.Name = NameOf(path)
	}
	return s, nil
}

// Create writes a new, empty descriptor at path.
func Create(fs afero.Fs, path, name string, logger *slog.Logger) (*Store, error) {
	path = paths.Clean(path)
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	if exists, _ := afero.Exists(fs, path); exists {
		return nil, errors.New(errors.DuplicateNode, "solution descriptor already exists", nil).WithPath(path)
	}
	if name == "" {
		name = NameOf(path)
	}

	s := &Store{fs: fs, path: path, format: format, logger: logger, doc: Document{Name: name}}
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	logger.Info("Solution descriptor created", "path", path)
	return s, nil
}

// Path returns the descriptor path
func (s *Store) Path() string { return s.path }

// Name returns the solution name
func (s *Store) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Name
}

// Document returns a copy of the current document
func (s *Store) Document() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Document{
		Name:     s.doc.Name,
		Folders:  slices.Clone(s.doc.Folders),
		Projects: slices.Clone(s.doc.Projects),
		Items:    slices.Clone(s.doc.Items),
	}
}

// Layout resolves the document into the structure the engine loads.
func (s *Store) Layout() solution.Layout {
	s.mu.Lock()
	defer s.mu.Unlock()

	layout := solution.Layout{Folders: make([]string, 0, len(s.doc.Folders))}
	for _, f := range s.doc.Folders {
		layout.Folders = append(layout.Folders, normalizeChain(f))
	}
	for _, p := range s.doc.Projects {
		layout.Projects = append(layout.Projects, solution.ProjectRef{
			Path:   s.abs(p.Path),
			Folder: normalizeChain(p.Folder),
		})
	}
	for _, it := range s.doc.Items {
		layout.Items = append(layout.Items, solution.ItemRef{
			Path:   s.abs(it.Path),
			Folder: normalizeChain(it.Folder),
		})
	}
	return layout
}

func (s *Store) abs(rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(filepath.Dir(s.path), filepath.FromSlash(rel))
}

func (s *Store) rel(abs string) string {
	r, err := filepath.Rel(filepath.Dir(s.path), abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(r)
}

func normalizeChain(chain string) string {
	return strings.Trim(filepath.ToSlash(chain), "/")
}

// AddSolutionFolder records the solution folder chain. Recording an existing
// chain is a no-op.
func (s *Store) AddSolutionFolder(ctx context.Context, chain string) error {
	if err := ctx.Err(); err != nil {
		return errors.New(errors.Cancelled, "descriptor update cancelled", err)
	}
	chain = normalizeChain(chain)

	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.ContainsFunc(s.doc.Folders, func(f string) bool { return normalizeChain(f) == chain }) {
		return nil
	}
	prev := s.doc.Folders
	s.doc.Folders = append(slices.Clone(prev), chain)
	if err := s.saveLocked(); err != nil {
		s.doc.Folders = prev
		return err
	}
	return nil
}

// AddProjectReference records a project. A project already listed is a
// DuplicateNode error.
func (s *Store) AddProjectReference(ctx context.Context, ref solution.ProjectRef) error {
	if err := ctx.Err(); err != nil {
		return errors.New(errors.Cancelled, "descriptor update cancelled", err)
	}
	rel := s.rel(paths.Clean(ref.Path))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projectIndex(rel) >= 0 {
		return errors.New(errors.DuplicateNode, "project is already referenced", nil).WithPath(ref.Path)
	}
	prev := s.doc.Projects
	s.doc.Projects = append(slices.Clone(prev), ProjectEntry{Path: rel, Folder: normalizeChain(ref.Folder)})
	if err := s.saveLocked(); err != nil {
		s.doc.Projects = prev
		return err
	}
	s.logger.Info("Project reference added", "project", rel)
	return nil
}

// RemoveProjectReference drops the project whose descriptor is at
// projectPath.
func (s *Store) RemoveProjectReference(ctx context.Context, projectPath string) error {
	if err := ctx.Err(); err != nil {
		return errors.New(errors.Cancelled, "descriptor update cancelled", err)
	}
	rel := s.rel(paths.Clean(projectPath))

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.projectIndex(rel)
	if idx < 0 {
		return errors.New(errors.NodeNotFound, "project is not referenced", nil).WithPath(projectPath)
	}
	prev := s.doc.Projects
	s.doc.Projects = slices.Delete(slices.Clone(prev), idx, idx+1)
	if err := s.saveLocked(); err != nil {
		s.doc.Projects = prev
		return err
	}
	s.logger.Info("Project reference removed", "project", rel)
	return nil
}

func (s *Store) projectIndex(rel string) int {
	return slices.IndexFunc(s.doc.Projects, func(p ProjectEntry) bool {
		return filepath.ToSlash(filepath.Clean(filepath.FromSlash(p.Path))) == rel
	})
}

// saveLocked writes the document through a temporary file so a failed write
// leaves the previous descriptor intact.
func (s *Store) saveLocked() error {
	data, err := encode(s.format, &s.doc)
	if err != nil {
		return errors.New(errors.InvalidArgument, "cannot encode solution descriptor", err).WithPath(s.path)
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0644); err != nil {
		return errors.New(errors.ReloadFailure, "cannot write solution descriptor", err).WithPath(s.path)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return errors.New(errors.ReloadFailure, "cannot replace solution descriptor", err).WithPath(s.path)
	}
	return nil
}
