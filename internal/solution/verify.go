package solution

import (
	"fmt"

	"slnsync/internal/ordering"
	"slnsync/internal/paths"
)

// Violation describes one broken tree invariant.
type Violation struct {
	NodeID  string `json:"nodeId"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + ": " + v.Message
}

// Verify checks ordering, parent links, path derivation and registry
// completeness across the whole tree. An empty result means the tree is
// consistent.
func (s *Solution) Verify() []Violation {
	s.reg.mu.RLock()
	defer s.reg.mu.RUnlock()

	var out []Violation
	add := func(n Node, path, format string, args ...any) {
		out = append(out, Violation{NodeID: n.ID(), Path: path, Message: fmt.Sprintf(format, args...)})
	}

	seenFiles := make(map[*File]bool)
	seenFolders := make(map[*Folder]bool)
	seenProjects := make(map[*Project]bool)

	checkEntries := func(h holder, dir string) {
		entries := *h.list()
		if !ordering.IsSorted(entries, entryKey) {
			add(h, dir, "children are not strictly ordered")
		}
		for _, e := range entries {
			if parentID(e) != h.ID() {
				add(e, entryPath(e), "parent link does not match container")
			}
			if dir != "" {
				want := paths.Child(dir, entryName(e))
				if entryPath(e) != want {
					add(e, entryPath(e), "path does not match parent path %s", want)
				}
			}
		}
	}

	var visitSolution func(c SolutionContainer, folders []*SolutionFolder, projects []*Project)
	visitSolution = func(c SolutionContainer, folders []*SolutionFolder, projects []*Project) {
		if !ordering.IsSorted(folders, solutionFolderKey) {
			add(c, "", "solution folders are not strictly ordered")
		}
		if !ordering.IsSorted(projects, projectKey) {
			add(c, "", "projects are not strictly ordered")
		}
		for _, p := range projects {
			seenProjects[p] = true
			if p.parentID != c.ID() {
				add(p, p.path, "parent link does not match container")
			}
			if s.reg.projects[p.path] != p {
				add(p, p.path, "project missing from registry")
			}
			checkEntries(p, p.dir())
			walk(p, func(e Entry) {
				switch e := e.(type) {
				case *Folder:
					seenFolders[e] = true
					if s.reg.folders[e.path] != e {
						add(e, e.path, "folder missing from registry")
					}
					checkEntries(e, e.path)
				case *File:
					seenFiles[e] = true
					if s.reg.files[e.path] != e {
						add(e, e.path, "file missing from registry")
					}
				}
			})
		}
		for _, f := range folders {
			if f.parentID != c.ID() {
				add(f, "", "solution folder %s: parent link does not match container", f.name)
			}
			checkEntries(f, "")
			for _, e := range f.items {
				if file, ok := e.(*File); ok {
					seenFiles[file] = true
					if s.reg.files[file.path] != file {
						add(file, file.path, "file missing from registry")
					}
				}
			}
			visitSolution(f, f.folders, f.projects)
		}
	}
	visitSolution(s, s.folders, s.projects)

	for path, f := range s.reg.files {
		if !seenFiles[f] {
			add(f, path, "registered file is not in the tree")
		} else if f.path != path {
			add(f, path, "registry key differs from file path %s", f.path)
		}
	}
	for path, f := range s.reg.folders {
		if !seenFolders[f] {
			add(f, path, "registered folder is not in the tree")
		} else if f.path != path {
			add(f, path, "registry key differs from folder path %s", f.path)
		}
	}
	if len(s.reg.folderOrder) != len(s.reg.folders) {
		add(s, "", "folder registry order has %d entries, map has %d", len(s.reg.folderOrder), len(s.reg.folders))
	}
	for _, p := range s.reg.projOrder {
		if !seenProjects[p] {
			add(p, p.path, "registered project is not in the tree")
		}
	}
	return out
}

func entryName(e Entry) string {
	switch e := e.(type) {
	case *Folder:
		return e.name
	case *File:
		return e.name
	default:
		panic(fmt.Sprintf("solution: unexpected entry type %T", e))
	}
}
