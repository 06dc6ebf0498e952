// Package fileops performs file and directory operations requested from the
// IDE. Each operation changes the disk first and then the tree; when the
// tree rejects the change the disk change is undone.
//
// The watcher reports the same changes a moment later. Those events find the
// tree already updated and are ignored by the reconciler. When the watcher
// wins the race the tree operation fails with DUPLICATE_NODE or
// NODE_NOT_FOUND and the node the reconciler produced is returned instead.
package fileops

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"slnsync/internal/errors"
	"slnsync/internal/paths"
	"slnsync/internal/solution"
)

// Namespacer resolves a project's root namespace.
type Namespacer interface {
	RootNamespace(projectPath string) (string, bool)
}

// Forgetter drops what it cached about a project. The project evaluator
// implements it alongside Namespacer.
type Forgetter interface {
	Forget(projectPath string)
}

// WriteRecorder stamps a file as written by the IDE.
type WriteRecorder interface {
	RecordIdeWrite(path string) error
}

// Suppressor holds back watch events for a file while an operation moves
// it through several disk and tree steps. The reconciler implements it
// alongside WriteRecorder.
type Suppressor interface {
	Suppress(path string) (release func(), err error)
}

// Service runs IDE file operations against the disk and the engine.
type Service struct {
	engine   *solution.Engine
	sol      *solution.Solution
	fs       afero.Fs
	ns       Namespacer
	recorder WriteRecorder
	logger   *slog.Logger
	suffix   string
}

// NewService creates the service. ns and recorder may be nil.
func NewService(engine *solution.Engine, ns Namespacer, recorder WriteRecorder, projectSuffix string, logger *slog.Logger) *Service {
	return &Service{
		engine:   engine,
		sol:      engine.Solution(),
		fs:       engine.Fs(),
		ns:       ns,
		recorder: recorder,
		logger:   logger,
		suffix:   projectSuffix,
	}
}

func diskError(op, path string, err error) error {
	return errors.New(errors.InvalidArgument, op+" failed on disk", err).WithPath(path)
}

// CreateDirectory creates name below parent.
func (s *Service) CreateDirectory(ctx context.Context, parent solution.Container, name string) (*solution.Folder, error) {
	if err := paths.ValidateName(name); err != nil {
		return nil, err
	}
	path := paths.Child(parent.DirPath(), name)
	if exists, _ := afero.Exists(s.fs, path); exists {
		return nil, errors.New(errors.DuplicateNode, "path already exists on disk", nil).WithPath(path)
	}
	if err := s.fs.Mkdir(path, 0755); err != nil {
		return nil, diskError("create directory", path, err)
	}

	folder, err := s.engine.AddDirectory(ctx, parent, name)
	if err != nil {
		if existing, ok := s.sol.FolderByPath(path); ok && errors.CodeOf(err) == errors.DuplicateNode {
			return existing, nil
		}
		s.undo("create directory", s.fs.RemoveAll(path))
		return nil, err
	}
	s.logger.Info("Directory created", "path", path)
	return folder, nil
}

// DeleteDirectory removes folder and its contents from disk and the tree.
func (s *Service) DeleteDirectory(ctx context.Context, folder *solution.Folder) error {
	path := folder.Path()
	if err := s.fs.RemoveAll(path); err != nil {
		return diskError("delete directory", path, err)
	}
	if err := s.engine.RemoveDirectory(ctx, folder); err != nil && errors.CodeOf(err) != errors.NodeNotFound {
		return err
	}
	s.logger.Info("Directory deleted", "path", path)
	return nil
}

// CreateFile writes contents to name below parent.
func (s *Service) CreateFile(ctx context.Context, parent solution.Container, name string, contents []byte) (*solution.File, error) {
	if err := paths.ValidateName(name); err != nil {
		return nil, err
	}
	path := paths.Child(parent.DirPath(), name)
	if exists, _ := afero.Exists(s.fs, path); exists {
		return nil, errors.New(errors.DuplicateNode, "path already exists on disk", nil).WithPath(path)
	}
	if err := afero.WriteFile(s.fs, path, contents, 0644); err != nil {
		return nil, diskError("create file", path, err)
	}

	file, err := s.engine.CreateFile(ctx, parent, name, contents)
	if err != nil {
		existing, ok := s.sol.FileByPath(path)
		if !ok || errors.CodeOf(err) != errors.DuplicateNode {
			s.undo("create file", s.fs.Remove(path))
			return nil, err
		}
		file = existing
	}
	s.stamp(path)
	s.logger.Info("File created", "path", path)
	return file, nil
}

// CreateSourceFile creates a class file named after fileName, in the
// namespace implied by its place in the project.
func (s *Service) CreateSourceFile(ctx context.Context, parent solution.Container, fileName string) (*solution.File, error) {
	if err := paths.ValidateName(fileName); err != nil {
		return nil, err
	}
	var rootNS func(string) (string, bool)
	if s.ns != nil {
		rootNS = s.ns.RootNamespace
	}
	text, err := ClassSource(Namespace(s.sol, parent, rootNS), fileName)
	if err != nil {
		return nil, errors.New(errors.InvalidArgument, "cannot render source template", err).WithPath(fileName)
	}
	return s.CreateFile(ctx, parent, fileName, text)
}

// DeleteFile removes file from disk and the tree.
func (s *Service) DeleteFile(ctx context.Context, file *solution.File) error {
	path := file.Path()
	if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return diskError("delete file", path, err)
	}
	if err := s.engine.RemoveFile(ctx, file); err != nil && errors.CodeOf(err) != errors.NodeNotFound {
		return err
	}
	s.logger.Info("File deleted", "path", path)
	return nil
}

// RenameFile renames file on disk and in the tree.
func (s *Service) RenameFile(ctx context.Context, file *solution.File, newName string) (*solution.File, error) {
	if err := paths.ValidateName(newName); err != nil {
		return nil, err
	}
	oldPath := file.Path()
	newPath := paths.Child(filepath.Dir(oldPath), newName)
	release := s.hold(oldPath)
	defer release()
	if err := s.rename(oldPath, newPath); err != nil {
		return nil, err
	}
	renamed, err := s.engine.RenameFile(ctx, file, newName)
	if err != nil {
		return s.settleFile(ctx, file, oldPath, newPath, err)
	}
	s.stamp(newPath)
	return renamed, nil
}

// MoveFile moves file below destination on disk and in the tree.
func (s *Service) MoveFile(ctx context.Context, destination solution.Container, file *solution.File) (*solution.File, error) {
	oldPath := file.Path()
	newPath := paths.Child(destination.DirPath(), file.Name())
	if oldPath == newPath {
		return file, nil
	}
	release := s.hold(oldPath)
	defer release()
	if err := s.rename(oldPath, newPath); err != nil {
		return nil, err
	}
	moved, err := s.engine.MoveFile(ctx, destination, file)
	if err != nil {
		return s.settleFile(ctx, file, oldPath, newPath, err)
	}
	s.stamp(newPath)
	return moved, nil
}

// settleFile handles a tree rejection after a file was moved on disk. If the
// reconciler already registered the new path, the stale node is dropped and
// the new one returned; otherwise the disk move is undone.
func (s *Service) settleFile(ctx context.Context, file *solution.File, oldPath, newPath string, cause error) (*solution.File, error) {
	if errors.CodeOf(cause) == errors.DuplicateNode {
		if current, ok := s.sol.FileByPath(newPath); ok && current != file {
			if stale, ok := s.sol.FileByPath(oldPath); ok && stale == file {
				if err := s.engine.RemoveFile(ctx, file); err != nil && errors.CodeOf(err) != errors.NodeNotFound {
					return nil, err
				}
			}
			return current, nil
		}
	}
	s.undo("move file", s.fs.Rename(newPath, oldPath))
	return nil, cause
}

// RenameDirectory renames folder on disk and in the tree.
func (s *Service) RenameDirectory(ctx context.Context, folder *solution.Folder, newName string) error {
	if err := paths.ValidateName(newName); err != nil {
		return err
	}
	oldPath := folder.Path()
	newPath := paths.Child(filepath.Dir(oldPath), newName)
	if err := s.rename(oldPath, newPath); err != nil {
		return err
	}
	if err := s.engine.RenameDirectory(ctx, folder, newName); err != nil {
		return s.settleDir(ctx, folder, oldPath, newPath, err)
	}
	return nil
}

// MoveDirectory moves folder below destination on disk and in the tree.
func (s *Service) MoveDirectory(ctx context.Context, destination solution.Container, folder *solution.Folder) error {
	oldPath := folder.Path()
	newPath := paths.Child(destination.DirPath(), folder.Name())
	if oldPath == newPath {
		return nil
	}
	if paths.IsUnder(newPath, oldPath) {
		return errors.New(errors.InvalidArgument, "cannot move a folder into itself", nil).WithPath(oldPath)
	}
	if err := s.rename(oldPath, newPath); err != nil {
		return err
	}
	if err := s.engine.MoveDirectory(ctx, destination, folder); err != nil {
		return s.settleDir(ctx, folder, oldPath, newPath, err)
	}
	return nil
}

func (s *Service) settleDir(ctx context.Context, folder *solution.Folder, oldPath, newPath string, cause error) error {
	if errors.CodeOf(cause) == errors.DuplicateNode {
		if current, ok := s.sol.FolderByPath(newPath); ok && current != folder {
			if stale, ok := s.sol.FolderByPath(oldPath); ok && stale == folder {
				if err := s.engine.RemoveDirectory(ctx, folder); err != nil && errors.CodeOf(err) != errors.NodeNotFound {
					return err
				}
			}
			return nil
		}
	}
	s.undo("move directory", s.fs.Rename(newPath, oldPath))
	return cause
}

// CreateProject writes a project descriptor for name in a new directory next
// to the solution descriptor and adds it under parent.
func (s *Service) CreateProject(ctx context.Context, parent solution.SolutionContainer, name, language, target string) (*solution.Project, error) {
	if err := paths.ValidateName(name); err != nil {
		return nil, err
	}
	dir := paths.Child(s.sol.Dir(), name)
	if exists, _ := afero.Exists(s.fs, dir); exists {
		return nil, errors.New(errors.DuplicateNode, "project directory already exists", nil).WithPath(dir)
	}
	data, err := render(projectTemplate, projectData{Name: name, Language: language, Target: target})
	if err != nil {
		return nil, errors.New(errors.InvalidArgument, "cannot render project template", err).WithPath(name)
	}

	descriptor := paths.Child(dir, name+s.suffix)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return nil, diskError("create project", dir, err)
	}
	if err := afero.WriteFile(s.fs, descriptor, data, 0644); err != nil {
		s.undo("create project", s.fs.RemoveAll(dir))
		return nil, diskError("create project", descriptor, err)
	}

	project, err := s.engine.AddProject(ctx, parent, descriptor)
	if err != nil {
		s.undo("create project", s.fs.RemoveAll(dir))
		return nil, err
	}
	s.logger.Info("Project created", "path", descriptor)
	return project, nil
}

// RemoveProject takes project out of the solution. Its directory stays on
// disk.
func (s *Service) RemoveProject(ctx context.Context, project *solution.Project) error {
	path := project.Path()
	if err := s.engine.RemoveProject(ctx, project); err != nil {
		return err
	}
	if f, ok := s.ns.(Forgetter); ok {
		f.Forget(path)
	}
	s.logger.Info("Project removed from solution", "path", path)
	return nil
}

func (s *Service) rename(oldPath, newPath string) error {
	if exists, _ := afero.Exists(s.fs, newPath); exists {
		return errors.New(errors.DuplicateNode, "path already exists on disk", nil).WithPath(newPath)
	}
	if err := s.fs.Rename(oldPath, newPath); err != nil {
		return diskError("rename", oldPath, err)
	}
	return nil
}

// hold suppresses watch events for the file at path when the recorder
// supports it. The returned function is never nil.
func (s *Service) hold(path string) (release func()) {
	sp, ok := s.recorder.(Suppressor)
	if !ok {
		return func() {}
	}
	release, err := sp.Suppress(path)
	if err != nil {
		s.logger.Debug("Watch events not suppressed", "path", path, "error", err)
		return func() {}
	}
	return release
}

// stamp marks path as written by the IDE, so the watcher's report of the
// write is taken as an echo.
func (s *Service) stamp(path string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordIdeWrite(path); err != nil {
		s.logger.Debug("Write stamp not recorded", "path", path, "error", err)
	}
}

func (s *Service) undo(op string, err error) {
	if err != nil {
		s.logger.Error("Could not undo disk change", "op", op, "error", err)
	}
}
