package solution

import (
	"context"
	"path/filepath"

	"slnsync/internal/errors"
	"slnsync/internal/notify"
	"slnsync/internal/ordering"
	"slnsync/internal/paths"
)

// CreateFile registers a file called name below parent. The file is expected
// to exist on disk with the given contents, which FileAdded carries.
func (e *Engine) CreateFile(ctx context.Context, parent Container, name string, contents []byte) (*File, error) {
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
	idx, found := ordering.Search(*h.list(), entryKey, ordering.FileKey(name))
	if found || e.pathTaken(path, nil) {
		return nil, errors.New(errors.DuplicateNode, "file already exists", nil).WithPath(path)
	}

	file := &File{sol: e.sol, id: newID(), name: name, path: path, parentID: parent.ID()}
	e.sol.reg.mu.Lock()
	insertEntry(h, idx, file)
	e.sol.reg.addFile(file)
	ev := e.withProject(notify.Added(file.id, path, contents), file)
	e.sol.reg.mu.Unlock()

	e.publishConcurrent(ctx, []notify.Event{ev})
	e.logger.Debug("File created", "path", path)
	return file, nil
}

// RemoveFile unregisters file. A file missing from its parent's list is
// logged and still removed from the registry.
func (e *Engine) RemoveFile(ctx context.Context, file *File) error {
	if err := e.begin(ctx); err != nil {
		return err
	}
	defer e.mu.Unlock()

	if !e.registered(file) || e.sol.reg.files[file.path] != file {
		return errors.New(errors.NodeNotFound, "file is not registered", nil).WithPath(file.path)
	}
	ev := e.withProject(notify.NewEvent(notify.FileRemoved, file.id, file.path), file)

	e.sol.reg.mu.Lock()
	if parent, ok := e.holderOf(file.parentID); !ok || !detachEntry(parent, file) {
		e.warnInconsistent("remove_file", file.path, "file was not at its place in its parent")
	}
	e.sol.reg.removeFile(file)
	e.sol.reg.mu.Unlock()

	e.publishSequential(ctx, []notify.Event{ev})
	e.logger.Debug("File removed", "path", file.path)
	return nil
}

// MoveFile moves file below destination and returns it. The *File keeps its
// identity; only its path and parent change.
func (e *Engine) MoveFile(ctx context.Context, destination Container, file *File) (*File, error) {
	if err := e.begin(ctx); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	src, err := e.parentHolding(file)
	if err != nil {
		return nil, err
	}
	dest, ok := destination.(holder)
	if !ok || !e.registered(destination) {
		return nil, errors.New(errors.NodeNotFound, "destination is not registered", nil).WithPath(file.path)
	}
	if destination.ID() == file.parentID {
		return file, nil
	}

	newPath := paths.Child(containerDir(destination), file.name)
	idx, found := ordering.Search(*dest.list(), entryKey, ordering.FileKey(file.name))
	if found || e.pathTaken(newPath, file) {
		return nil, errors.New(errors.DuplicateNode, "destination already has a file with this name", nil).WithPath(newPath)
	}

	oldPath := file.path
	e.sol.reg.mu.Lock()
	detachEntry(src, file)
	insertEntry(dest, idx, file)
	file.parentID = destination.ID()
	file.path = newPath
	e.sol.reg.rekeyFile(file, oldPath)
	ev := e.withProject(notify.Moved(file.id, oldPath, newPath), file)
	e.sol.reg.mu.Unlock()

	e.publishSequential(ctx, []notify.Event{ev})
	e.logger.Debug("File moved", "from", oldPath, "to", newPath)
	return file, nil
}

// RenameFile renames file in place and returns it.
func (e *Engine) RenameFile(ctx context.Context, file *File, newName string) (*File, error) {
	if err := paths.ValidateName(newName); err != nil {
		return nil, err
	}
	if err := e.begin(ctx); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	parent, err := e.parentHolding(file)
	if err != nil {
		return nil, err
	}
	if newName == file.name {
		return file, nil
	}

	oldPath := file.path
	newPath := paths.Child(filepath.Dir(oldPath), newName)
	idx, found := ordering.SearchExcluding(*parent.list(), Entry(file), entryKey, ordering.FileKey(newName))
	if found || e.pathTaken(newPath, file) {
		return nil, errors.New(errors.DuplicateNode, "a sibling file already has this name", nil).WithPath(newPath)
	}

	e.sol.reg.mu.Lock()
	detachEntry(parent, file)
	file.name = newName
	file.path = newPath
	insertEntry(parent, idx, file)
	e.sol.reg.rekeyFile(file, oldPath)
	ev := e.withProject(notify.Renamed(file.id, oldPath, newPath), file)
	e.sol.reg.mu.Unlock()

	e.publishSequential(ctx, []notify.Event{ev})
	e.logger.Debug("File renamed", "from", oldPath, "to", newPath)
	return file, nil
}

// ContentChanged tells consumers that file's contents changed on disk
// without a structural change.
func (e *Engine) ContentChanged(ctx context.Context, file *File) error {
	e.sol.reg.mu.RLock()
	ok := e.sol.reg.files[file.path] == file
	ev := e.withProject(notify.NewEvent(notify.FileContentChanged, file.id, file.path), file)
	e.sol.reg.mu.RUnlock()
	if !ok {
		return errors.New(errors.NodeNotFound, "file is not registered", nil).WithPath(ev.Path)
	}
	return e.bus.Publish(ctx, ev).Wait()
}
