// Package solution holds the live solution tree and the engine that mutates
// it. Every mutation goes through Engine; the node types only expose reads.
//
// A solution contains solution folders and projects. Projects and folders
// contain an ordered list of entries, each either a *Folder or a *File,
// ordered by internal/ordering. Parents are referenced by ID and resolved
// through the owning Solution.
package solution

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"slnsync/internal/ordering"
)

// Node is anything in the tree.
type Node interface {
	ID() string
	Name() string
	node()
}

// Entry is a child of a project or folder: exactly one of *Folder or *File.
type Entry interface {
	Node
	Path() string
	entry()
}

// Container is a node whose entries live in a directory on disk: a
// *Project or a *Folder.
type Container interface {
	Node
	DirPath() string
	container()
}

// SolutionContainer can hold projects and solution folders: the *Solution
// itself or a *SolutionFolder.
type SolutionContainer interface {
	Node
	solutionContainer()
}

// holder is any node with an ordered entry list.
type holder interface {
	Node
	list() *[]Entry
}

func newID() string {
	return uuid.New().String()
}

// Solution is the root of the tree and owns the registries.
type Solution struct {
	reg registry

	id       string
	name     string
	path     string
	folders  []*SolutionFolder
	projects []*Project
}

// NewSolution creates an empty solution for the descriptor at path.
func NewSolution(name, path string) *Solution {
	s := &Solution{
		id:   newID(),
		name: name,
		path: filepath.Clean(path),
	}
	s.reg.init()
	s.reg.nodes[s.id] = s
	return s
}

func (s *Solution) ID() string { return s.id }
func (s *Solution) Name() string { return s.name }

// Path returns the solution descriptor path.
func (s *Solution) Path() string { return s.path }

// Dir returns the directory holding the solution descriptor.
func (s *Solution) Dir() string { return filepath.Dir(s.path) }

func (s *Solution) node() {}
func (s *Solution) solutionContainer() {}

// SolutionFolder is a virtual grouping of projects, nested solution folders
// and loose solution items. It has no directory on disk.
type SolutionFolder struct {
	sol      *Solution
	id       string
	name     string
	parentID string
	folders  []*SolutionFolder
	projects []*Project
	items    []Entry
}

func (f *SolutionFolder) ID() string { return f.id }

func (f *SolutionFolder) Name() string {
	f.sol.reg.mu.RLock()
	defer f.sol.reg.mu.RUnlock()
	return f.name
}

func (f *SolutionFolder) node() {}
func (f *SolutionFolder) solutionContainer() {}
func (f *SolutionFolder) list() *[]Entry { return &f.items }

// Project is a buildable unit rooted at the directory of its descriptor.
type Project struct {
	sol      *Solution
	id       string
	name     string
	path     string
	parentID string
	entries  []Entry
}

func (p *Project) ID() string { return p.id }

func (p *Project) Name() string {
	p.sol.reg.mu.RLock()
	defer p.sol.reg.mu.RUnlock()
	return p.name
}

// Path returns the project descriptor path.
func (p *Project) Path() string {
	p.sol.reg.mu.RLock()
	defer p.sol.reg.mu.RUnlock()
	return p.path
}

// DirPath returns the project directory.
func (p *Project) DirPath() string {
	p.sol.reg.mu.RLock()
	defer p.sol.reg.mu.RUnlock()
	return filepath.Dir(p.path)
}

func (p *Project) dir() string { return filepath.Dir(p.path) }
func (p *Project) node() {}
func (p *Project) container() {}
func (p *Project) list() *[]Entry { return &p.entries }

// Folder is a directory inside a project.
type Folder struct {
	sol      *Solution
	id       string
	name     string
	path     string
	parentID string
	entries  []Entry
}

func (f *Folder) ID() string { return f.id }

func (f *Folder) Name() string {
	f.sol.reg.mu.RLock()
	defer f.sol.reg.mu.RUnlock()
	return f.name
}

func (f *Folder) Path() string {
	f.sol.reg.mu.RLock()
	defer f.sol.reg.mu.RUnlock()
	return f.path
}

// DirPath is the same as Path for folders.
func (f *Folder) DirPath() string { return f.Path() }

func (f *Folder) node() {}
func (f *Folder) entry() {}
func (f *Folder) container() {}
func (f *Folder) list() *[]Entry { return &f.entries }

// File is a file on disk known to the solution. Its dirty, IDE-write and
// suppression state can be changed without the tree lock.
type File struct {
	sol      *Solution
	id       string
	name     string
	path     string
	parentID string

	dirty        atomic.Bool
	lastIdeWrite atomic.Int64 // unix nanos, 0 when never written by the IDE
	suppressed   atomic.Int32
}

func (f *File) ID() string { return f.id }

func (f *File) Name() string {
	f.sol.reg.mu.RLock()
	defer f.sol.reg.mu.RUnlock()
	return f.name
}

func (f *File) Path() string {
	f.sol.reg.mu.RLock()
	defer f.sol.reg.mu.RUnlock()
	return f.path
}

func (f *File) node() {}
func (f *File) entry() {}

// IsDirty reports whether the editor holds unsaved changes for the file.
func (f *File) IsDirty() bool { return f.dirty.Load() }

// SetDirty records whether the editor holds unsaved changes.
func (f *File) SetDirty(dirty bool) { f.dirty.Store(dirty) }

// LastIdeWrite returns when the IDE last wrote the file to disk.
func (f *File) LastIdeWrite() (time.Time, bool) {
	n := f.lastIdeWrite.Load()
	if n == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}

// MarkIdeWrite stamps the last IDE write time.
func (f *File) MarkIdeWrite(at time.Time) { f.lastIdeWrite.Store(at.UnixNano()) }

// Suppress marks the file as being changed by a multi-step IDE operation.
// Suppressions nest; each call must be paired with one call of the returned
// release function.
func (f *File) Suppress() (release func()) {
	f.suppressed.Add(1)
	var done atomic.Bool
	return func() {
		if done.CompareAndSwap(false, true) {
			f.suppressed.Add(-1)
		}
	}
}

// IsSuppressed reports whether watch events for the file should be dropped.
func (f *File) IsSuppressed() bool { return f.suppressed.Load() > 0 }

func entryKey(e Entry) ordering.Key {
	switch e := e.(type) {
	case *Folder:
		return ordering.FolderKey(e.name)
	case *File:
		return ordering.FileKey(e.name)
	default:
		panic(fmt.Sprintf("solution: unexpected entry type %T", e))
	}
}

func entryPath(e Entry) string {
	switch e := e.(type) {
	case *Folder:
		return e.path
	case *File:
		return e.path
	default:
		panic(fmt.Sprintf("solution: unexpected entry type %T", e))
	}
}

func projectKey(p *Project) ordering.Key { return ordering.FileKey(p.name) }
func solutionFolderKey(f *SolutionFolder) ordering.Key { return ordering.FolderKey(f.name) }
