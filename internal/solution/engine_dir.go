package solution

import (
	"context"
	"path/filepath"

	"slnsync/internal/errors"
	"slnsync/internal/notify"
	"slnsync/internal/ordering"
	"slnsync/internal/paths"
)

// containerDir is Container.DirPath without the read lock.
func containerDir(c Container) string {
	switch c := c.(type) {
	case *Project:
		return c.dir()
	case *Folder:
		return c.path
	default:
		return ""
	}
}

// pathTaken reports whether another node is registered at path.
func (e *Engine) pathTaken(path string, self Node) bool {
	if f, ok := e.sol.reg.files[path]; ok && Node(f) != self {
		return true
	}
	if f, ok := e.sol.reg.folders[path]; ok && Node(f) != self {
		return true
	}
	return false
}

// parentHolding returns the registered parent of en, failing with
// NodeNotFound when en is not in that parent's list.
func (e *Engine) parentHolding(en Entry) (holder, error) {
	if !e.registered(en) {
		return nil, errors.New(errors.NodeNotFound, "node is not registered", nil).WithPath(entryPath(en))
	}
	parent, ok := e.holderOf(parentID(en))
	if !ok || !containsEntry(parent, en) {
		return nil, errors.New(errors.NodeNotFound, "node is not a child of its recorded parent", nil).WithPath(entryPath(en))
	}
	return parent, nil
}

type movedFile struct {
	file    *File
	oldPath string
}

// relocate gives f the path newPath and rewrites every path below it,
// re-keying the registries. Callers hold the registry write lock.
func (e *Engine) relocate(f *Folder, newPath string) []movedFile {
	oldRoot := f.path
	var moved []movedFile
	walk(f, func(en Entry) {
		switch en := en.(type) {
		case *Folder:
			old := en.path
			en.path, _ = paths.Rebase(old, oldRoot, newPath)
			e.sol.reg.rekeyFolder(en, old)
		case *File:
			old := en.path
			en.path, _ = paths.Rebase(old, oldRoot, newPath)
			e.sol.reg.rekeyFile(en, old)
			moved = append(moved, movedFile{file: en, oldPath: old})
		}
	})
	return moved
}

func (e *Engine) movedEvents(moved []movedFile) []notify.Event {
	events := make([]notify.Event, 0, len(moved))
	for _, m := range moved {
		ev := notify.Moved(m.file.id, m.oldPath, m.file.path)
		ev.Project = e.projectPathOf(m.file)
		events = append(events, ev)
	}
	return events
}

// AddDirectory adds the existing directory name below parent, along with
// everything inside it. The directory is scanned and its files read before
// anything is registered, so a failed or cancelled scan leaves the tree as it
// was.
func (e *Engine) AddDirectory(ctx context.Context, parent Container, name string) (*Folder, error) {
	if err := paths.ValidateName(name); err != nil {
		return nil, err
	}
	if err := e.begin(ctx); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	h, ok := parent.(holder)
	if !ok || !e.registered(parent) {
		return nil, errors.New(errors.NodeNotFound, "parent is not registered", nil).WithPath(name)
	}
	path := paths.Child(containerDir(parent), name)
	if _, found := ordering.Search(*h.list(), entryKey, ordering.FolderKey(name)); found || e.pathTaken(path, nil) {
		return nil, errors.New(errors.DuplicateNode, "folder already exists", nil).WithPath(path)
	}
	if fi, err := e.fs.Stat(path); err != nil || !fi.IsDir() {
		return nil, errors.New(errors.NodeNotFound, "directory does not exist on disk", err).WithPath(path)
	}

	folder := &Folder{sol: e.sol, id: newID(), name: name, path: path, parentID: parent.ID()}
	sc, err := e.discover(ctx, folder, path)
	if err != nil {
		e.logger.Warn("Directory scan aborted, tree unchanged", "path", path, "error", err)
		return nil, err
	}

	e.sol.reg.mu.Lock()
	idx, _ := ordering.Search(*h.list(), entryKey, ordering.FolderKey(name))
	insertEntry(h, idx, folder)
	e.sol.reg.registerSubtree(folder)
	project := e.projectPathOf(folder)
	e.sol.reg.mu.Unlock()

	e.publishConcurrent(ctx, e.addedEvents(sc, project))
	e.logger.Info("Directory added",
		"path", path,
		"folders", len(sc.folders),
		"files", len(sc.files),
	)
	return folder, nil
}

// RemoveDirectory removes folder and everything below it from the tree. The
// directory must already be gone from disk.
func (e *Engine) RemoveDirectory(ctx context.Context, folder *Folder) error {
	if err := e.begin(ctx); err != nil {
		return err
	}
	defer e.mu.Unlock()

	parent, err := e.parentHolding(folder)
	if err != nil {
		return err
	}

	project := e.projectPathOf(folder)
	var events []notify.Event
	walk(folder, func(en Entry) {
		var ev notify.Event
		switch en := en.(type) {
		case *Folder:
			ev = notify.NewEvent(notify.DirectoryRemoved, en.id, en.path)
		case *File:
			ev = notify.NewEvent(notify.FileRemoved, en.id, en.path)
		}
		ev.Project = project
		events = append(events, ev)
	})

	e.sol.reg.mu.Lock()
	detachEntry(parent, folder)
	e.sol.reg.unregisterSubtree(folder)
	e.sol.reg.mu.Unlock()

	e.publishSequential(ctx, events)
	e.logger.Info("Directory removed", "path", folder.path, "nodes", len(events))
	return nil
}

// MoveDirectory moves folder below destination. Paths below it are
// recomputed before any FileMoved notification is sent, one per file.
func (e *Engine) MoveDirectory(ctx context.Context, destination Container, folder *Folder) error {
	if err := e.begin(ctx); err != nil {
		return err
	}
	defer e.mu.Unlock()

	src, err := e.parentHolding(folder)
	if err != nil {
		return err
	}
	dest, ok := destination.(holder)
	if !ok || !e.registered(destination) {
		return errors.New(errors.NodeNotFound, "destination is not registered", nil).WithPath(folder.path)
	}
	if destination.ID() == folder.parentID {
		return nil
	}
	if Node(folder) == destination || e.isAncestor(folder, destination) {
		return errors.New(errors.InvalidArgument, "cannot move a folder into itself", nil).WithPath(folder.path)
	}

	newPath := paths.Child(containerDir(destination), folder.name)
	idx, found := ordering.Search(*dest.list(), entryKey, ordering.FolderKey(folder.name))
	if found || e.pathTaken(newPath, folder) {
		return errors.New(errors.DuplicateNode, "destination already has a folder with this name", nil).WithPath(newPath)
	}

	oldPath := folder.path
	e.sol.reg.mu.Lock()
	if !detachEntry(src, folder) {
		e.warnInconsistent("move_directory", oldPath, "folder was out of order in its parent")
	}
	insertEntry(dest, idx, folder)
	folder.parentID = destination.ID()
	moved := e.relocate(folder, newPath)
	events := e.movedEvents(moved)
	e.sol.reg.mu.Unlock()

	e.publishSequential(ctx, events)
	e.logger.Info("Directory moved", "from", oldPath, "to", newPath, "files", len(moved))
	return nil
}

// RenameDirectory renames folder in place. Like MoveDirectory it sends one
// FileMoved per file below it.
func (e *Engine) RenameDirectory(ctx context.Context, folder *Folder, newName string) error {
	if err := paths.ValidateName(newName); err != nil {
		return err
	}
	if err := e.begin(ctx); err != nil {
		return err
	}
	defer e.mu.Unlock()

	parent, err := e.parentHolding(folder)
	if err != nil {
		return err
	}
	if newName == folder.name {
		return nil
	}

	oldPath := folder.path
	newPath := paths.Child(filepath.Dir(oldPath), newName)
	idx, found := ordering.SearchExcluding(*parent.list(), Entry(folder), entryKey, ordering.FolderKey(newName))
	if found || e.pathTaken(newPath, folder) {
		return errors.New(errors.DuplicateNode, "a sibling folder already has this name", nil).WithPath(newPath)
	}

	e.sol.reg.mu.Lock()
	detachEntry(parent, folder)
	folder.name = newName
	insertEntry(parent, idx, folder)
	moved := e.relocate(folder, newPath)
	events := e.movedEvents(moved)
	e.sol.reg.mu.Unlock()

	e.publishSequential(ctx, events)
	e.logger.Info("Directory renamed", "from", oldPath, "to", newPath, "files", len(moved))
	return nil
}

// isAncestor reports whether a is above n in the tree.
func (e *Engine) isAncestor(a Node, n Node) bool {
	for _, anc := range e.sol.ancestors(n) {
		if anc == a {
			return true
		}
	}
	return false
}
