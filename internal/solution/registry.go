package solution

import (
	"slices"
	"sync"
)

// registry holds the flat lookups kept alongside the tree. Writers hold mu
// exclusively, and only the engine writes.
type registry struct {
	mu sync.RWMutex

	nodes       map[string]Node
	files       map[string]*File
	folders     map[string]*Folder
	folderOrder []*Folder
	projects    map[string]*Project
	projOrder   []*Project
}

func (r *registry) init() {
	r.nodes = make(map[string]Node)
	r.files = make(map[string]*File)
	r.folders = make(map[string]*Folder)
	r.projects = make(map[string]*Project)
}

func (r *registry) addFile(f *File) {
	r.nodes[f.id] = f
	r.files[f.path] = f
}

func (r *registry) removeFile(f *File) {
	delete(r.nodes, f.id)
	if r.files[f.path] == f {
		delete(r.files, f.path)
	}
}

// rekeyFile moves f from oldPath to its current path.
func (r *registry) rekeyFile(f *File, oldPath string) {
	if r.files[oldPath] == f {
		delete(r.files, oldPath)
	}
	r.files[f.path] = f
}

func (r *registry) addFolder(f *Folder) {
	r.nodes[f.id] = f
	r.folders[f.path] = f
	r.folderOrder = append(r.folderOrder, f)
}

func (r *registry) removeFolder(f *Folder) {
	delete(r.nodes, f.id)
	if r.folders[f.path] == f {
		delete(r.folders, f.path)
	}
	r.folderOrder = slices.DeleteFunc(r.folderOrder, func(x *Folder) bool { return x == f })
}

func (r *registry) rekeyFolder(f *Folder, oldPath string) {
	if r.folders[oldPath] == f {
		delete(r.folders, oldPath)
	}
	r.folders[f.path] = f
}

func (r *registry) addProject(p *Project) {
	r.nodes[p.id] = p
	r.projects[p.path] = p
	r.projOrder = append(r.projOrder, p)
}

func (r *registry) removeProject(p *Project) {
	delete(r.nodes, p.id)
	if r.projects[p.path] == p {
		delete(r.projects, p.path)
	}
	r.projOrder = slices.DeleteFunc(r.projOrder, func(x *Project) bool { return x == p })
}

// registerSubtree adds every folder and file below root, root included when
// it is a *Folder.
func (r *registry) registerSubtree(root holder) {
	walk(root, func(e Entry) {
		switch e := e.(type) {
		case *Folder:
			r.addFolder(e)
		case *File:
			r.addFile(e)
		}
	})
}

// unregisterSubtree is the inverse of registerSubtree.
func (r *registry) unregisterSubtree(root holder) {
	walk(root, func(e Entry) {
		switch e := e.(type) {
		case *Folder:
			r.removeFolder(e)
		case *File:
			r.removeFile(e)
		}
	})
}

// walk visits root (when it is a folder) and then every entry below it in
// pre-order, using an explicit stack.
func walk(root holder, visit func(Entry)) {
	if f, ok := root.(*Folder); ok {
		visit(f)
	}
	stack := [][]Entry{*root.list()}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if len(top) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}
		e := top[0]
		stack[len(stack)-1] = top[1:]
		visit(e)
		if f, ok := e.(*Folder); ok && len(f.entries) > 0 {
			stack = append(stack, f.entries)
		}
	}
}
