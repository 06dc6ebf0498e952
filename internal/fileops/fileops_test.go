package fileops

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"slnsync/internal/errors"
	"slnsync/internal/evaluation"
	"slnsync/internal/notify"
	"slnsync/internal/slogutil"
	"slnsync/internal/solution"
	"slnsync/internal/testutil"
)

type stamps struct {
	paths []string
	held  []string
	open  int
}

func (s *stamps) RecordIdeWrite(path string) error {
	s.paths = append(s.paths, path)
	return nil
}

func (s *stamps) Suppress(path string) (func(), error) {
	s.held = append(s.held, path)
	s.open++
	return func() { s.open-- }, nil
}

type fixture struct {
	ws   *testutil.Workspace
	eng  *solution.Engine
	sol  *solution.Solution
	svc  *Service
	eval *evaluation.Evaluator
	rec  *notify.Recorder
	ids  *stamps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ws := testutil.NewWorkspace(t)
	app := ws.Project(t, "App", map[string]string{
		"Program.cs":        "class Program {}",
		"Models/Account.cs": "class Account {}",
	})
	logger := slogutil.NewDiscardLogger()
	bus := notify.NewBus(logger)
	rec := notify.NewRecorder()
	bus.Subscribe("recorder", rec.Handle)

	sol := solution.NewSolution("Demo", ws.Path("Demo.sln.toml"))
	eng := solution.NewEngine(sol, ws.Fs, bus, logger, solution.Options{MaxConcurrentReads: 2, ProjectSuffix: testutil.ProjectSuffix})
	if err := eng.Load(context.Background(), solution.Layout{Projects: []solution.ProjectRef{{Path: app}}}); err != nil {
		t.Fatal(err)
	}
	eval := evaluation.NewEvaluator(ws.Fs, testutil.ProjectSuffix, logger)
	ids := &stamps{}
	return &fixture{
		ws:   ws,
		eng:  eng,
		sol:  sol,
		svc:  NewService(eng, eval, ids, testutil.ProjectSuffix, logger),
		eval: eval,
		rec:  rec,
		ids:  ids,
	}
}

func (f *fixture) project(t *testing.T) *solution.Project {
	t.Helper()
	p, ok := f.sol.ProjectByPath(f.ws.Path("App/App" + testutil.ProjectSuffix))
	if !ok {
		t.Fatal("project App not loaded")
	}
	return p
}

func assertVerified(t *testing.T, sol *solution.Solution) {
	t.Helper()
	if v := sol.Verify(); len(v) > 0 {
		t.Fatalf("Verify() = %v", v)
	}
}

func TestNamespace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	project := f.project(t)
	models, _ := f.sol.FolderByPath(f.ws.Path("App/Models"))

	if got := Namespace(f.sol, project, nil); got != "App" {
		t.Errorf("Namespace(project) = %q, want App", got)
	}
	if got := Namespace(f.sol, models, nil); got != "App.Models" {
		t.Errorf("Namespace(Models) = %q, want App.Models", got)
	}

	inner, err := f.svc.CreateDirectory(ctx, models, "data-access")
	if err != nil {
		t.Fatal(err)
	}
	if got := Namespace(f.sol, inner, nil); got != "App.Models.data_access" {
		t.Errorf("Namespace(inner) = %q", got)
	}

	f.ws.WriteFile(t, "App/App"+testutil.ProjectSuffix, "name = \"App\"\nroot_namespace = \"Acme.App\"\n")
	if err := f.eval.ReloadProject(ctx, project.Path()); err != nil {
		t.Fatal(err)
	}
	if got := Namespace(f.sol, models, f.eval.RootNamespace); got != "Acme.App.Models" {
		t.Errorf("Namespace() with root namespace = %q", got)
	}
}

func TestCreateSourceFile(t *testing.T) {
	f := newFixture(t)
	models, _ := f.sol.FolderByPath(f.ws.Path("App/Models"))

	file, err := f.svc.CreateSourceFile(context.Background(), models, "Invoice.cs")
	if err != nil {
		t.Fatalf("CreateSourceFile() error = %v", err)
	}
	data, err := afero.ReadFile(f.ws.Fs, file.Path())
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "namespace App.Models;") || !strings.Contains(text, "public class Invoice") {
		t.Errorf("generated source:\n%s", text)
	}

	added := f.rec.OfKind(notify.FileAdded)
	if len(added) != 1 || string(added[0].Contents) != text {
		t.Errorf("FileAdded events = %v, want one carrying the contents", added)
	}
	if len(f.ids.paths) != 1 || f.ids.paths[0] != file.Path() {
		t.Errorf("write stamps = %v", f.ids.paths)
	}

	if _, err := f.svc.CreateSourceFile(context.Background(), models, "Invoice.cs"); !errors.Is(err, errors.ErrDuplicateNode) {
		t.Errorf("second CreateSourceFile() error = %v, want DUPLICATE_NODE", err)
	}
	assertVerified(t, f.sol)
}

func TestCreateFileAfterWatcherWon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	project := f.project(t)

	// the watcher registered the file between the disk write and the tree update
	f.ws.WriteFile(t, "App/Early.cs", "x")
	early, err := f.eng.CreateFile(ctx, project, "Early.cs", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	f.ws.Remove(t, "App/Early.cs")

	got, err := f.svc.CreateFile(ctx, project, "Early.cs", []byte("x"))
	if err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}
	if got != early {
		t.Error("CreateFile() should return the node already registered")
	}
}

func TestDirectoryLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	project := f.project(t)

	dir, err := f.svc.CreateDirectory(ctx, project, "Services")
	if err != nil {
		t.Fatalf("CreateDirectory() error = %v", err)
	}
	if fi, err := f.ws.Fs.Stat(dir.Path()); err != nil || !fi.IsDir() {
		t.Fatalf("directory not on disk: %v", err)
	}
	if _, err := f.svc.CreateSourceFile(ctx, dir, "Mailer.cs"); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.RenameDirectory(ctx, dir, "Infrastructure"); err != nil {
		t.Fatalf("RenameDirectory() error = %v", err)
	}
	if _, ok := f.sol.FileByPath(f.ws.Path("App/Infrastructure/Mailer.cs")); !ok {
		t.Error("file should follow the renamed directory")
	}
	if exists, _ := afero.DirExists(f.ws.Fs, f.ws.Path("App/Infrastructure")); !exists {
		t.Error("directory should be renamed on disk")
	}

	models, _ := f.sol.FolderByPath(f.ws.Path("App/Models"))
	if err := f.svc.MoveDirectory(ctx, models, dir); err != nil {
		t.Fatalf("MoveDirectory() error = %v", err)
	}
	if dir.Path() != f.ws.Path("App/Models/Infrastructure") {
		t.Errorf("Path() = %q", dir.Path())
	}
	if err := f.svc.MoveDirectory(ctx, dir, models); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("MoveDirectory() into its own child error = %v, want INVALID_ARGUMENT", err)
	}
	assertVerified(t, f.sol)

	if err := f.svc.DeleteDirectory(ctx, dir); err != nil {
		t.Fatalf("DeleteDirectory() error = %v", err)
	}
	if exists, _ := afero.Exists(f.ws.Fs, dir.Path()); exists {
		t.Error("directory still on disk")
	}
	if _, ok := f.sol.FolderByPath(dir.Path()); ok {
		t.Error("directory still in the tree")
	}
	assertVerified(t, f.sol)
}

func TestFileRenameMoveDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	project := f.project(t)
	file, _ := f.sol.FileByPath(f.ws.Path("App/Program.cs"))

	renamed, err := f.svc.RenameFile(ctx, file, "Main.cs")
	if err != nil {
		t.Fatalf("RenameFile() error = %v", err)
	}
	if renamed.Path() != f.ws.Path("App/Main.cs") {
		t.Errorf("Path() = %q", renamed.Path())
	}
	if _, err := f.svc.RenameFile(ctx, renamed, "bad/name.cs"); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("RenameFile() with a separator error = %v", err)
	}

	models, _ := f.sol.FolderByPath(f.ws.Path("App/Models"))
	moved, err := f.svc.MoveFile(ctx, models, renamed)
	if err != nil {
		t.Fatalf("MoveFile() error = %v", err)
	}
	data, _ := afero.ReadFile(f.ws.Fs, f.ws.Path("App/Models/Main.cs"))
	if string(data) != "class Program {}" {
		t.Errorf("moved contents = %q", data)
	}

	// a clash on disk leaves everything in place
	f.ws.WriteFile(t, "App/Main.cs", "other")
	if _, err := f.svc.MoveFile(ctx, project, moved); !errors.Is(err, errors.ErrDuplicateNode) {
		t.Errorf("MoveFile() onto an existing file error = %v", err)
	}
	if moved.Path() != f.ws.Path("App/Models/Main.cs") {
		t.Errorf("file moved despite the clash: %q", moved.Path())
	}

	if err := f.svc.DeleteFile(ctx, moved); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	if len(f.rec.OfKind(notify.FileRemoved)) != 1 {
		t.Errorf("FileRemoved events = %v", f.rec.OfKind(notify.FileRemoved))
	}
	assertVerified(t, f.sol)
}

func TestFileMovesHoldWatchEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	project := f.project(t)
	file, _ := f.sol.FileByPath(f.ws.Path("App/Program.cs"))
	models, _ := f.sol.FolderByPath(f.ws.Path("App/Models"))

	renamed, err := f.svc.RenameFile(ctx, file, "Main.cs")
	if err != nil {
		t.Fatalf("RenameFile() error = %v", err)
	}
	moved, err := f.svc.MoveFile(ctx, models, renamed)
	if err != nil {
		t.Fatalf("MoveFile() error = %v", err)
	}
	f.ws.WriteFile(t, "App/Main.cs", "other")
	if _, err := f.svc.MoveFile(ctx, project, moved); !errors.Is(err, errors.ErrDuplicateNode) {
		t.Fatalf("MoveFile() onto an existing file error = %v", err)
	}

	wantHeld := []string{f.ws.Path("App/Program.cs"), f.ws.Path("App/Main.cs"), f.ws.Path("App/Models/Main.cs")}
	if !slices.Equal(f.ids.held, wantHeld) {
		t.Errorf("held = %v, want %v", f.ids.held, wantHeld)
	}
	if f.ids.open != 0 {
		t.Errorf("%d suppressions never released", f.ids.open)
	}
	wantStamps := []string{f.ws.Path("App/Main.cs"), f.ws.Path("App/Models/Main.cs")}
	if !slices.Equal(f.ids.paths, wantStamps) {
		t.Errorf("write stamps = %v, want %v", f.ids.paths, wantStamps)
	}
}

func TestRenameUndoneWhenTreeRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	project := f.project(t)
	file, _ := f.sol.FileByPath(f.ws.Path("App/Program.cs"))

	// Main.cs is in the tree but not on disk, so main.cs is free on disk but
	// collides with it under case folding
	f.ws.WriteFile(t, "App/Main.cs", "")
	if _, err := f.eng.CreateFile(ctx, project, "Main.cs", nil); err != nil {
		t.Fatal(err)
	}
	f.ws.Remove(t, "App/Main.cs")

	if _, err := f.svc.RenameFile(ctx, file, "main.cs"); !errors.Is(err, errors.ErrDuplicateNode) {
		t.Fatalf("RenameFile() error = %v, want DUPLICATE_NODE", err)
	}
	if exists, _ := afero.Exists(f.ws.Fs, f.ws.Path("App/Program.cs")); !exists {
		t.Error("disk rename was not undone")
	}
	if exists, _ := afero.Exists(f.ws.Fs, f.ws.Path("App/main.cs")); exists {
		t.Error("renamed file left on disk")
	}
	if file.Path() != f.ws.Path("App/Program.cs") {
		t.Errorf("Path() = %q", file.Path())
	}
}

func TestCreateProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreateProject(ctx, f.sol, "Tools", "csharp", "net8.0")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if p.Path() != f.ws.Path("Tools/Tools"+testutil.ProjectSuffix) {
		t.Errorf("Path() = %q", p.Path())
	}
	if err := f.eval.ReloadProject(ctx, p.Path()); err != nil {
		t.Fatalf("generated descriptor does not evaluate: %v", err)
	}
	if ev, _ := f.eval.Project(p.Path()); ev.Target != "net8.0" || ev.Language != "csharp" {
		t.Errorf("evaluated project = %+v", ev)
	}

	if _, err := f.svc.CreateProject(ctx, f.sol, "Tools", "csharp", ""); !errors.Is(err, errors.ErrDuplicateNode) {
		t.Errorf("second CreateProject() error = %v, want DUPLICATE_NODE", err)
	}
	assertVerified(t, f.sol)
}

func TestRemoveProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	project := f.project(t)
	if err := f.eval.ReloadProject(ctx, project.Path()); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.RemoveProject(ctx, project); err != nil {
		t.Fatalf("RemoveProject() error = %v", err)
	}
	if _, ok := f.sol.ProjectByPath(project.Path()); ok {
		t.Error("project still in the solution")
	}
	if _, ok := f.eval.Project(project.Path()); ok {
		t.Error("evaluation of the removed project was kept")
	}
	if exists, _ := afero.Exists(f.ws.Fs, f.ws.Path("App/Program.cs")); !exists {
		t.Error("project files must stay on disk")
	}
	if got := len(f.rec.OfKind(notify.FileRemoved)); got != 2 {
		t.Errorf("FileRemoved events = %d, want 2", got)
	}

	if err := f.svc.RemoveProject(ctx, project); !errors.Is(err, errors.ErrNodeNotFound) {
		t.Errorf("second RemoveProject() error = %v, want NODE_NOT_FOUND", err)
	}
	assertVerified(t, f.sol)
}
