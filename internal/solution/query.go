package solution

import (
	"path/filepath"
	"slices"
	"strings"
)

// FileByPath looks a file up by its absolute path.
func (s *Solution) FileByPath(path string) (*File, bool) {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	f, ok := s.reg.files[filepath.Clean(path)]
	return f, ok
}

// FolderByPath looks a folder up by its absolute path.
func (s *Solution) FolderByPath(path string) (*Folder, bool) {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	f, ok := s.reg.folders[filepath.Clean(path)]
	return f, ok
}

// ProjectByPath looks a project up by its descriptor path.
func (s *Solution) ProjectByPath(path string) (*Project, bool) {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	p, ok := s.reg.projects[filepath.Clean(path)]
	return p, ok
}

// Projects returns every project in the order they were added.
func (s *Solution) Projects() []*Project {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	return slices.Clone(s.reg.projOrder)
}

// AllFiles returns every registered file sorted by path.
func (s *Solution) AllFiles() []*File {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	out := make([]*File, 0, len(s.reg.files))
	for _, f := range s.reg.files {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b *File) int { return strings.Compare(a.path, b.path) })
	return out
}

// AllFolders returns every registered folder in registration order.
func (s *Solution) AllFolders() []*Folder {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	return slices.Clone(s.reg.folderOrder)
}

// FileCount returns the number of registered files.
func (s *Solution) FileCount() int {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	return len(s.reg.files)
}

// Container resolves a node ID.
func (s *Solution) Container(id string) (Node, bool) {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	n, ok := s.reg.nodes[id]
	return n, ok
}

// ContainerForDir returns the folder or project whose directory is dir.
func (s *Solution) ContainerForDir(dir string) (Container, bool) {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	return s.containerForDir(filepath.Clean(dir))
}

func (s *Solution) containerForDir(dir string) (Container, bool) {
	if f, ok := s.reg.folders[dir]; ok {
		return f, true
	}
	for _, p := range s.reg.projOrder {
		if p.dir() == dir {
			return p, true
		}
	}
	return nil, false
}

// Parent returns the node's current container. The solution has no parent.
func (s *Solution) Parent(n Node) (Node, bool) {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	return s.parentOf(n)
}

func (s *Solution) parentOf(n Node) (Node, bool) {
	id := parentID(n)
	if id == "" {
		return nil, false
	}
	p, ok := s.reg.nodes[id]
	return p, ok
}

func parentID(n Node) string {
	switch n := n.(type) {
	case *File:
		return n.parentID
	case *Folder:
		return n.parentID
	case *Project:
		return n.parentID
	case *SolutionFolder:
		return n.parentID
	default:
		return ""
	}
}

// Ancestors returns the chain of containers above n, nearest first, ending
// with the solution.
func (s *Solution) Ancestors(n Node) []Node {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	return s.ancestors(n)
}

func (s *Solution) ancestors(n Node) []Node {
	var out []Node
	for {
		p, ok := s.parentOf(n)
		if !ok {
			return out
		}
		out = append(out, p)
		n = p
	}
}

// ProjectOf returns the project that owns n, if any.
func (s *Solution) ProjectOf(n Node) (*Project, bool) {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	return s.projectOf(n)
}

func (s *Solution) projectOf(n Node) (*Project, bool) {
	if p, ok := n.(*Project); ok {
		return p, true
	}
	for _, a := range s.ancestors(n) {
		if p, ok := a.(*Project); ok {
			return p, true
		}
	}
	return nil, false
}

// Descendants returns every folder and file below f in pre-order.
func (s *Solution) Descendants(f *Folder) ([]*Folder, []*File) {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	var folders []*Folder
	var files []*File
	walk(f, func(e Entry) {
		switch e := e.(type) {
		case *Folder:
			if e != f {
				folders = append(folders, e)
			}
		case *File:
			files = append(files, e)
		}
	})
	return folders, files
}

// Children returns a copy of the container's ordered entries.
func (s *Solution) Children(c Container) []Entry {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	h, ok := c.(holder)
	if !ok {
		return nil
	}
	return slices.Clone(*h.list())
}

// Items returns the loose files of a solution folder.
func (s *Solution) Items(f *SolutionFolder) []*File {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	out := make([]*File, 0, len(f.items))
	for _, e := range f.items {
		if file, ok := e.(*File); ok {
			out = append(out, file)
		}
	}
	return out
}

// SolutionFolders returns the solution folders directly under c.
func (s *Solution) SolutionFolders(c SolutionContainer) []*SolutionFolder {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	switch c := c.(type) {
	case *Solution:
		return slices.Clone(c.folders)
	case *SolutionFolder:
		return slices.Clone(c.folders)
	default:
		return nil
	}
}

// ProjectsIn returns the projects directly under c.
func (s *Solution) ProjectsIn(c SolutionContainer) []*Project {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	switch c := c.(type) {
	case *Solution:
		return slices.Clone(c.projects)
	case *SolutionFolder:
		return slices.Clone(c.projects)
	default:
		return nil
	}
}

// SolutionFolderByPath resolves a "/"-separated chain of solution folder
// names starting at the solution root.
func (s *Solution) SolutionFolderByPath(chain string) (*SolutionFolder, bool) {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	return s.solutionFolderByPath(chain)
}

func (s *Solution) solutionFolderByPath(chain string) (*SolutionFolder, bool) {
	var cur *SolutionFolder
	folders := s.folders
	for _, name := range splitChain(chain) {
		idx, found := searchSolutionFolders(folders, name)
		if !found {
			return nil, false
		}
		cur = folders[idx]
		folders = cur.folders
	}
	return cur, cur != nil
}

func splitChain(chain string) []string {
	var out []string
	for _, part := range strings.Split(filepath.ToSlash(chain), "/") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SolutionFolderPath returns the "/"-separated chain of names leading to f.
func (s *Solution) SolutionFolderPath(f *SolutionFolder) string {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()
	names := []string{f.name}
	for _, a := range s.ancestors(f) {
		if sf, ok := a.(*SolutionFolder); ok {
			names = append(names, sf.name)
		}
	}
	slices.Reverse(names)
	return strings.Join(names, "/")
}
