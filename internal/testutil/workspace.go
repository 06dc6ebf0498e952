// Package testutil builds on-disk workspaces for tests on an in-memory
// afero filesystem.
package testutil

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/spf13/afero"
)

// DefaultRoot is where NewWorkspace places the workspace.
const DefaultRoot = "/ws"

// Workspace is an in-memory disk rooted at Root.
type Workspace struct {
	Fs   afero.Fs
	Root string
}

// NewWorkspace creates an empty in-memory workspace.
func NewWorkspace(t *testing.T) *Workspace {
	t.Helper()
	fs := afero.NewMemMapFs()
	root := filepath.FromSlash(DefaultRoot)
	if err := fs.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("Failed to create workspace root: %v", err)
	}
	return &Workspace{Fs: fs, Root: root}
}

// Path joins rel (slash-separated) onto the workspace root.
func (w *Workspace) Path(rel string) string {
	return filepath.Join(w.Root, filepath.FromSlash(rel))
}

// Mkdir creates the directory rel and its parents.
func (w *Workspace) Mkdir(t *testing.T, rel string) string {
	t.Helper()
	p := w.Path(rel)
	if err := w.Fs.MkdirAll(p, 0o755); err != nil {
		t.Fatalf("Failed to create %s: %v", p, err)
	}
	return p
}

// WriteFile writes content to rel, creating parent directories.
func (w *Workspace) WriteFile(t *testing.T, rel, content string) string {
	t.Helper()
	p := w.Path(rel)
	if err := w.Fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("Failed to create parent of %s: %v", p, err)
	}
	if err := afero.WriteFile(w.Fs, p, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", p, err)
	}
	return p
}

// Remove deletes rel and everything below it.
func (w *Workspace) Remove(t *testing.T, rel string) {
	t.Helper()
	if err := w.Fs.RemoveAll(w.Path(rel)); err != nil {
		t.Fatalf("Failed to remove %s: %v", rel, err)
	}
}

// ProjectSuffix is the descriptor suffix Project writes.
const ProjectSuffix = ".project.toml"

// Project writes a project called name in the directory of the same name,
// with the given files (slash-separated paths relative to the project
// directory). It returns the descriptor path.
func (w *Workspace) Project(t *testing.T, name string, files map[string]string) string {
	t.Helper()
	descriptor := w.WriteFile(t, name+"/"+name+ProjectSuffix, "name = \""+name+"\"\n")

	rels := make([]string, 0, len(files))
	for rel := range files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	for _, rel := range rels {
		w.WriteFile(t, name+"/"+rel, files[rel])
	}
	return descriptor
}
