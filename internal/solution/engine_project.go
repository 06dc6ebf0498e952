package solution

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"slnsync/internal/errors"
	"slnsync/internal/notify"
	"slnsync/internal/ordering"
	"slnsync/internal/paths"
)

// ProjectRef is how the persisted descriptor refers to a project.
type ProjectRef struct {
	// Path is the absolute project descriptor path.
	Path string
	// Folder is the "/"-separated solution folder chain holding the
	// project, empty for the solution root.
	Folder string
}

// ItemRef is a loose file listed under a solution folder.
type ItemRef struct {
	Path   string
	Folder string
}

// Layout is the solution structure read from the persisted descriptor.
type Layout struct {
	Folders  []string
	Projects []ProjectRef
	Items    []ItemRef
}

// Load builds the tree described by layout without sending notifications or
// writing to the descriptor. Projects that fail to load are logged and
// skipped; only cancellation aborts the load.
func (e *Engine) Load(ctx context.Context, layout Layout) error {
	if err := e.begin(ctx); err != nil {
		return err
	}
	defer e.mu.Unlock()

	for _, chain := range layout.Folders {
		if _, err := e.ensureSolutionFolder(chain); err != nil {
			e.logger.Warn("Skipping solution folder", "folder", chain, "error", err)
		}
	}
	loaded := 0
	for _, ref := range layout.Projects {
		parent, err := e.ensureSolutionFolder(ref.Folder)
		if err != nil {
			e.logger.Warn("Skipping project", "path", ref.Path, "error", err)
			continue
		}
		if _, _, err := e.addProjectLocked(ctx, parent, ref.Path, false); err != nil {
			if errors.CodeOf(err) == errors.Cancelled {
				return err
			}
			e.logger.Warn("Skipping project", "path", ref.Path, "error", err)
			continue
		}
		loaded++
	}
	for _, item := range layout.Items {
		if err := e.addItemLocked(item); err != nil {
			e.logger.Warn("Skipping solution item", "path", item.Path, "error", err)
		}
	}

	e.logger.Info("Solution loaded",
		"solution", e.sol.path,
		"projects", loaded,
		"files", len(e.sol.reg.files),
	)
	return nil
}

func solutionLists(c SolutionContainer) (*[]*SolutionFolder, *[]*Project) {
	switch c := c.(type) {
	case *Solution:
		return &c.folders, &c.projects
	case *SolutionFolder:
		return &c.folders, &c.projects
	default:
		return nil, nil
	}
}

// AddSolutionFolder creates an empty solution folder called name under
// parent.
func (e *Engine) AddSolutionFolder(ctx context.Context, parent SolutionContainer, name string) (*SolutionFolder, error) {
	if err := paths.ValidateName(name); err != nil {
		return nil, err
	}
	if err := e.begin(ctx); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if !e.registered(parent) {
		return nil, errors.New(errors.NodeNotFound, "parent is not registered", nil).WithPath(name)
	}
	folders, _ := solutionLists(parent)
	if _, found := searchSolutionFolders(*folders, name); found {
		return nil, errors.New(errors.DuplicateNode, "solution folder already exists", nil).WithPath(name)
	}
	if e.desc != nil {
		chain := strings.TrimPrefix(e.chainOf(parent)+"/"+name, "/")
		if err := e.desc.AddSolutionFolder(ctx, chain); err != nil {
			return nil, err
		}
	}
	f := e.insertSolutionFolder(parent, name)
	e.logger.Info("Solution folder added", "name", name)
	return f, nil
}

func (e *Engine) insertSolutionFolder(parent SolutionContainer, name string) *SolutionFolder {
	folders, _ := solutionLists(parent)
	f := &SolutionFolder{sol: e.sol, id: newID(), name: name, parentID: parent.ID()}

	e.sol.reg.mu.Lock()
	idx, _ := searchSolutionFolders(*folders, name)
	*folders = slices.Insert(*folders, idx, f)
	e.sol.reg.nodes[f.id] = f
	e.sol.reg.mu.Unlock()
	return f
}

// ensureSolutionFolder finds or creates every folder along chain.
func (e *Engine) ensureSolutionFolder(chain string) (SolutionContainer, error) {
	var cur SolutionContainer = e.sol
	for _, name := range splitChain(chain) {
		if err := paths.ValidateName(name); err != nil {
			return nil, err
		}
		folders, _ := solutionLists(cur)
		if idx, found := searchSolutionFolders(*folders, name); found {
			cur = (*folders)[idx]
			continue
		}
		cur = e.insertSolutionFolder(cur, name)
	}
	return cur, nil
}

// projectName strips the descriptor suffix from the file name.
func (e *Engine) projectName(descriptorPath string) string {
	base := filepath.Base(descriptorPath)
	if e.opts.ProjectSuffix != "" {
		if name, ok := paths.StripSuffixFold(base, e.opts.ProjectSuffix); ok && name != "" {
			return name
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// AddProject adds the project whose descriptor is at descriptorPath under
// parent, discovering its directory, and records it in the persisted
// descriptor.
func (e *Engine) AddProject(ctx context.Context, parent SolutionContainer, descriptorPath string) (*Project, error) {
	if err := e.begin(ctx); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if !e.registered(parent) {
		return nil, errors.New(errors.NodeNotFound, "parent is not registered", nil).WithPath(descriptorPath)
	}
	p, sc, err := e.addProjectLocked(ctx, parent, descriptorPath, true)
	if err != nil {
		return nil, err
	}

	e.publishConcurrent(ctx, e.addedEvents(sc, p.path))
	e.logger.Info("Project added", "path", p.path, "files", len(sc.files))
	return p, nil
}

// addProjectLocked discovers and registers a project. record is false while
// loading, when the descriptor already lists the project.
func (e *Engine) addProjectLocked(ctx context.Context, parent SolutionContainer, descriptorPath string, record bool) (*Project, *scan, error) {
	path := paths.Clean(descriptorPath)
	dir := filepath.Dir(path)
	name := e.projectName(path)

	if _, ok := e.sol.reg.projects[path]; ok {
		return nil, nil, errors.New(errors.DuplicateNode, "project already loaded", nil).WithPath(path)
	}
	if _, ok := e.sol.containerForDir(dir); ok {
		return nil, nil, errors.New(errors.DuplicateNode, "project directory is already part of the solution", nil).WithPath(dir)
	}
	_, projects := solutionLists(parent)
	if _, found := searchProjects(*projects, name); found {
		return nil, nil, errors.New(errors.DuplicateNode, "a sibling project already has this name", nil).WithPath(path)
	}
	if fi, err := e.fs.Stat(path); err != nil || fi.IsDir() {
		return nil, nil, errors.New(errors.NodeNotFound, "project descriptor does not exist on disk", err).WithPath(path)
	}

	p := &Project{sol: e.sol, id: newID(), name: name, path: path, parentID: parent.ID()}
	sc, err := e.discover(ctx, p, dir)
	if err != nil {
		e.logger.Warn("Project scan aborted, tree unchanged", "path", path, "error", err)
		return nil, nil, err
	}

	if record && e.desc != nil {
		ref := ProjectRef{Path: path, Folder: e.chainOf(parent)}
		if err := e.desc.AddProjectReference(ctx, ref); err != nil {
			return nil, nil, err
		}
	}

	e.sol.reg.mu.Lock()
	idx, _ := searchProjects(*projects, name)
	*projects = slices.Insert(*projects, idx, p)
	e.sol.reg.addProject(p)
	e.sol.reg.registerSubtree(p)
	e.sol.reg.mu.Unlock()
	return p, sc, nil
}

// RemoveProject removes project and everything in it, after dropping it from
// the persisted descriptor.
func (e *Engine) RemoveProject(ctx context.Context, project *Project) error {
	if err := e.begin(ctx); err != nil {
		return err
	}
	defer e.mu.Unlock()

	if !e.registered(project) {
		return errors.New(errors.NodeNotFound, "project is not registered", nil).WithPath(project.path)
	}
	parentNode, ok := e.sol.reg.nodes[project.parentID]
	parent, isContainer := parentNode.(SolutionContainer)
	if !ok || !isContainer {
		return errors.New(errors.NodeNotFound, "project parent is not registered", nil).WithPath(project.path)
	}
	_, projects := solutionLists(parent)
	idx, found := searchProjects(*projects, project.name)
	if !found || (*projects)[idx] != project {
		return errors.New(errors.NodeNotFound, "project is not a child of its recorded parent", nil).WithPath(project.path)
	}

	if e.desc != nil {
		if err := e.desc.RemoveProjectReference(ctx, project.path); err != nil {
			return err
		}
	}

	var events []notify.Event
	walk(project, func(en Entry) {
		var ev notify.Event
		switch en := en.(type) {
		case *Folder:
			ev = notify.NewEvent(notify.DirectoryRemoved, en.id, en.path)
		case *File:
			ev = notify.NewEvent(notify.FileRemoved, en.id, en.path)
		}
		ev.Project = project.path
		events = append(events, ev)
	})

	e.sol.reg.mu.Lock()
	*projects = slices.Delete(*projects, idx, idx+1)
	e.sol.reg.unregisterSubtree(project)
	e.sol.reg.removeProject(project)
	e.sol.reg.mu.Unlock()

	e.publishSequential(ctx, events)
	e.logger.Info("Project removed", "path", project.path, "nodes", len(events))
	return nil
}

// addItemLocked registers a loose solution item under its solution folder.
func (e *Engine) addItemLocked(item ItemRef) error {
	if splitChain(item.Folder) == nil {
		return errors.New(errors.InvalidArgument, "solution items must live in a solution folder", nil).WithPath(item.Path)
	}
	parent, err := e.ensureSolutionFolder(item.Folder)
	if err != nil {
		return err
	}
	sf := parent.(*SolutionFolder)
	path := paths.Clean(item.Path)
	name := filepath.Base(path)
	idx, found := ordering.Search(sf.items, entryKey, ordering.FileKey(name))
	if found || e.pathTaken(path, nil) {
		return errors.New(errors.DuplicateNode, "solution item already exists", nil).WithPath(path)
	}

	file := &File{sol: e.sol, id: newID(), name: name, path: path, parentID: sf.id}
	e.sol.reg.mu.Lock()
	insertEntry(sf, idx, file)
	e.sol.reg.addFile(file)
	e.sol.reg.mu.Unlock()
	return nil
}

// chainOf returns the solution folder chain of c, empty for the solution.
func (e *Engine) chainOf(c SolutionContainer) string {
	var names []string
	n := Node(c)
	for {
		sf, ok := n.(*SolutionFolder)
		if !ok {
			break
		}
		names = append(names, sf.name)
		parent, ok := e.sol.reg.nodes[sf.parentID]
		if !ok {
			break
		}
		n = parent
	}
	slices.Reverse(names)
	return strings.Join(names, "/")
}
