package reconcile

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"slnsync/internal/notify"
	"slnsync/internal/slogutil"
	"slnsync/internal/solution"
	"slnsync/internal/testutil"
	"slnsync/internal/watcher"
)

// calls records collaborator calls as "method path" strings.
type calls struct {
	mu   sync.Mutex
	list []string
	fail map[string]error
}

func (c *calls) record(method, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = append(c.list, method+" "+path)
	return c.fail[method]
}

func (c *calls) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.list)
}

type fakeAnalyzer struct{ *calls }

func (a fakeAnalyzer) ReloadProject(_ context.Context, p string) error {
	return a.record("analysis.ReloadProject", p)
}
func (a fakeAnalyzer) UpdateDocument(_ context.Context, p string, text []byte) error {
	return a.record("analysis.UpdateDocument", p+"="+string(text))
}
func (a fakeAnalyzer) RefreshDiagnostics(_ context.Context, p string) error {
	return a.record("analysis.RefreshDiagnostics", p)
}

type fakeEvaluator struct{ *calls }

func (e fakeEvaluator) ReloadProject(_ context.Context, p string) error {
	return e.record("evaluation.ReloadProject", p)
}

type fakeEditor struct {
	*calls
	open map[string][]byte
}

func (e fakeEditor) IsOpen(p string) bool {
	_, ok := e.open[p]
	return ok
}
func (e fakeEditor) GetText(p string) ([]byte, bool) {
	text, ok := e.open[p]
	return text, ok
}
func (e fakeEditor) ReloadFromDiskIfOpen(_ context.Context, p string) error {
	return e.record("editor.ReloadFromDiskIfOpen", p)
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	ws      *testutil.Workspace
	sol     *solution.Solution
	eng     *solution.Engine
	svc     *Service
	rec     *notify.Recorder
	calls   *calls
	editor  fakeEditor
	clock   *fakeClock
	project string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ws := testutil.NewWorkspace(t)
	project := ws.Project(t, "App", map[string]string{
		"Program.cs":        "class Program {}",
		"README.md":         "hello",
		"Models/Account.cs": "class Account {}",
	})

	sol := solution.NewSolution("Demo", ws.Path("Demo.sln.toml"))
	bus := notify.NewBus(slogutil.NewDiscardLogger())
	rec := notify.NewRecorder()
	bus.Subscribe("recorder", rec.Handle)
	eng := solution.NewEngine(sol, ws.Fs, bus, slogutil.NewDiscardLogger(), solution.Options{
		IgnoreDirs:         []string{"bin", "obj"},
		MaxConcurrentReads: 2,
		ProjectSuffix:      testutil.ProjectSuffix,
	})
	layout := solution.Layout{Projects: []solution.ProjectRef{{Path: project}}}
	if err := eng.Load(context.Background(), layout); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	c := &calls{fail: map[string]error{}}
	editor := fakeEditor{calls: c, open: map[string][]byte{}}
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(eng, Collaborators{
		Analyzer:  fakeAnalyzer{c},
		Evaluator: fakeEvaluator{c},
		Editor:    editor,
	}, slogutil.NewDiscardLogger(), Options{
		EchoWindow:       300 * time.Millisecond,
		SourceExtensions: []string{".cs"},
		ProjectSuffix:    testutil.ProjectSuffix,
		IgnoreDirs:       []string{"bin", "obj"},
		Now:              clock.Now,
	})

	return &fixture{ws: ws, sol: sol, eng: eng, svc: svc, rec: rec, calls: c, editor: editor, clock: clock, project: project}
}

func (f *fixture) handle(t *testing.T, typ watcher.EventType, rel string) Outcome {
	t.Helper()
	outcome, err := f.svc.HandleWatchEvent(context.Background(), watcher.Event{Type: typ, Path: f.ws.Path(rel)})
	if err != nil {
		t.Fatalf("HandleWatchEvent(%s %s) error = %v", typ, rel, err)
	}
	return outcome
}

func TestEchoWindow(t *testing.T) {
	tests := []struct {
		name      string
		after     time.Duration
		want      Outcome
		forwarded int64
	}{
		{"inside window", 100 * time.Millisecond, Echo, 0},
		{"at window edge", 300 * time.Millisecond, Forwarded, 1},
		{"after window", 500 * time.Millisecond, Forwarded, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if err := f.svc.RecordIdeWrite(f.ws.Path("App/README.md")); err != nil {
				t.Fatalf("RecordIdeWrite() error = %v", err)
			}
			f.clock.Advance(tt.after)

			if got := f.handle(t, watcher.EventModify, "App/README.md"); got != tt.want {
				t.Errorf("outcome = %v, want %v", got, tt.want)
			}
			if got := f.svc.Stats()["forwarded"]; got != tt.forwarded {
				t.Errorf("stats[forwarded] = %v, want %d", got, tt.forwarded)
			}
		})
	}
}

func TestExternalChangeWithoutIdeWrite(t *testing.T) {
	f := newFixture(t)
	readme, _ := f.sol.FileByPath(f.ws.Path("App/README.md"))
	readme.SetDirty(true)

	if got := f.handle(t, watcher.EventModify, "App/README.md"); got != Forwarded {
		t.Fatalf("outcome = %v, want forwarded", got)
	}
	if readme.IsDirty() {
		t.Error("file should be marked clean after an external change")
	}
	changed := f.rec.OfKind(notify.FileContentChanged)
	if len(changed) != 1 || changed[0].Path != readme.Path() {
		t.Errorf("FileContentChanged = %v, want one for %s", changed, readme.Path())
	}
	if c := f.calls.get(); len(c) != 0 {
		t.Errorf("collaborator calls = %v, want none for a plain file", c)
	}
}

func TestSuppression(t *testing.T) {
	f := newFixture(t)
	path := f.ws.Path("App/README.md")

	release, err := f.svc.Suppress(path)
	if err != nil {
		t.Fatalf("Suppress() error = %v", err)
	}
	f.clock.Advance(time.Hour)
	if got := f.handle(t, watcher.EventModify, "App/README.md"); got != Suppressed {
		t.Errorf("outcome while suppressed = %v, want suppressed", got)
	}

	release()
	release()
	if got := f.handle(t, watcher.EventModify, "App/README.md"); got != Forwarded {
		t.Errorf("outcome after release = %v, want forwarded", got)
	}

	if _, err := f.svc.Suppress(f.ws.Path("App/missing.txt")); err == nil {
		t.Error("Suppress() of an unknown file should fail")
	}
}

func TestSourcePipeline(t *testing.T) {
	f := newFixture(t)
	path := f.ws.Path("App/Program.cs")
	f.ws.WriteFile(t, "App/Program.cs", "class Program { int x; }")

	if got := f.handle(t, watcher.EventModify, "App/Program.cs"); got != Forwarded {
		t.Fatalf("outcome = %v, want forwarded", got)
	}
	want := []string{
		"editor.ReloadFromDiskIfOpen " + path,
		"analysis.UpdateDocument " + path + "=class Program { int x; }",
		"analysis.RefreshDiagnostics " + f.project,
	}
	if got := f.calls.get(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if n := len(f.rec.OfKind(notify.FileContentChanged)); n != 0 {
		t.Errorf("FileContentChanged count = %d, want 0 for a source file", n)
	}
}

func TestSourcePipelinePrefersOpenBuffer(t *testing.T) {
	f := newFixture(t)
	path := f.ws.Path("App/Program.cs")
	f.editor.open[path] = []byte("buffer text")

	f.handle(t, watcher.EventModify, "App/Program.cs")

	if !slices.Contains(f.calls.get(), "analysis.UpdateDocument "+path+"=buffer text") {
		t.Errorf("calls = %v, want UpdateDocument with the buffer text", f.calls.get())
	}
}

func TestProjectDescriptorPipeline(t *testing.T) {
	f := newFixture(t)

	f.handle(t, watcher.EventModify, "App/App"+testutil.ProjectSuffix)

	want := []string{
		"evaluation.ReloadProject " + f.project,
		"analysis.ReloadProject " + f.project,
		"analysis.RefreshDiagnostics " + f.project,
	}
	if got := f.calls.get(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestReloadFailureKeepsGoing(t *testing.T) {
	f := newFixture(t)
	f.calls.fail["evaluation.ReloadProject"] = fmt.Errorf("bad toml")

	if got := f.handle(t, watcher.EventModify, "App/App"+testutil.ProjectSuffix); got != Forwarded {
		t.Fatalf("outcome = %v, want forwarded", got)
	}
	if got := f.calls.get(); len(got) != 1 {
		t.Errorf("calls = %v, want the pipeline to stop after the failed step", got)
	}
	if got := f.svc.Stats()["reloadFailures"]; got != int64(1) {
		t.Errorf("stats[reloadFailures] = %v, want 1", got)
	}

	// other files still reconcile
	f.handle(t, watcher.EventModify, "App/Program.cs")
	if got := f.calls.get(); len(got) != 4 {
		t.Errorf("calls = %v, want the source pipeline to run", got)
	}
}

func TestHandleIdeSave(t *testing.T) {
	f := newFixture(t)
	path := f.ws.Path("App/Program.cs")
	file, _ := f.sol.FileByPath(path)
	file.SetDirty(true)

	if err := f.svc.HandleIdeSave(context.Background(), path); err != nil {
		t.Fatalf("HandleIdeSave() error = %v", err)
	}
	if file.IsDirty() {
		t.Error("saved file should be clean")
	}
	if at, ok := file.LastIdeWrite(); !ok || !at.Equal(f.clock.Now()) {
		t.Errorf("LastIdeWrite() = %v, %v, want %v", at, ok, f.clock.Now())
	}
	for _, c := range f.calls.get() {
		if c == "editor.ReloadFromDiskIfOpen "+path {
			t.Error("an IDE save must not reload the editor buffer")
		}
	}

	// the watcher echo of the save is dropped
	f.clock.Advance(50 * time.Millisecond)
	if got := f.handle(t, watcher.EventModify, "App/Program.cs"); got != Echo {
		t.Errorf("outcome = %v, want echo", got)
	}

	if err := f.svc.HandleIdeSave(context.Background(), f.ws.Path("nope.cs")); err == nil {
		t.Error("HandleIdeSave() of an unknown file should fail")
	}
}

func TestStructuralEvents(t *testing.T) {
	f := newFixture(t)

	f.ws.WriteFile(t, "App/New.cs", "class New {}")
	if got := f.handle(t, watcher.EventCreate, "App/New.cs"); got != Structural {
		t.Fatalf("create outcome = %v, want structural", got)
	}
	if got := f.handle(t, watcher.EventCreate, "App/New.cs"); got != Forwarded {
		t.Errorf("repeated create outcome = %v, want forwarded as a content change", got)
	}
	added := f.rec.OfKind(notify.FileAdded)
	if len(added) != 1 || string(added[0].Contents) != "class New {}" {
		t.Errorf("FileAdded = %v, want one carrying the contents", added)
	}

	f.ws.WriteFile(t, "App/Views/Home.cs", "")
	if got := f.handle(t, watcher.EventCreate, "App/Views"); got != Structural {
		t.Fatalf("directory create outcome = %v, want structural", got)
	}
	if _, ok := f.sol.FileByPath(f.ws.Path("App/Views/Home.cs")); !ok {
		t.Error("files inside a created directory should be discovered")
	}
	// the file's own create arrives after the directory was scanned
	if got := f.handle(t, watcher.EventCreate, "App/Views/Home.cs"); got == Structural {
		t.Errorf("late create outcome = %v, want no second registration", got)
	}
	if got := f.handle(t, watcher.EventCreate, "App/Views"); got != Ignored {
		t.Errorf("repeated directory create outcome = %v, want ignored", got)
	}

	f.ws.Mkdir(t, "App/bin")
	if got := f.handle(t, watcher.EventCreate, "App/bin"); got != Ignored {
		t.Errorf("ignored dir outcome = %v, want ignored", got)
	}

	f.ws.Remove(t, "App/Views")
	if got := f.handle(t, watcher.EventDelete, "App/Views"); got != Structural {
		t.Fatalf("directory delete outcome = %v, want structural", got)
	}
	if got := f.handle(t, watcher.EventDelete, "App/Views"); got != Ignored {
		t.Errorf("repeated delete outcome = %v, want ignored", got)
	}

	f.ws.Remove(t, "App/README.md")
	if got := f.handle(t, watcher.EventRename, "App/README.md"); got != Structural {
		t.Errorf("rename-away outcome = %v, want structural", got)
	}

	if v := f.sol.Verify(); len(v) > 0 {
		t.Fatalf("Verify() = %v", v)
	}
	if got := f.svc.Stats()["structural"]; got != int64(4) {
		t.Errorf("stats[structural] = %v, want 4", got)
	}
}

func TestReplacedFileIsExternalChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// save via temp file + rename reports a create on the target
	f.ws.WriteFile(t, "App/Program.cs", "class Program { int x; }")
	if got := f.handle(t, watcher.EventCreate, "App/Program.cs"); got != Forwarded {
		t.Fatalf("create over a registered source = %v, want forwarded", got)
	}
	want := []string{
		"editor.ReloadFromDiskIfOpen " + f.ws.Path("App/Program.cs"),
		"analysis.UpdateDocument " + f.ws.Path("App/Program.cs") + "=class Program { int x; }",
		"analysis.RefreshDiagnostics " + f.project,
	}
	if got := f.calls.get(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}

	// delete then recreate within one batch
	f.ws.WriteFile(t, "App/README.md", "rewritten")
	f.svc.HandleBatch(ctx, []watcher.Event{
		{Type: watcher.EventDelete, Path: f.ws.Path("App/README.md")},
		{Type: watcher.EventCreate, Path: f.ws.Path("App/README.md")},
	})
	if _, ok := f.sol.FileByPath(f.ws.Path("App/README.md")); !ok {
		t.Fatal("recreated file was removed from the tree")
	}
	changed := f.rec.OfKind(notify.FileContentChanged)
	if len(changed) != 1 || changed[0].Path != f.ws.Path("App/README.md") {
		t.Errorf("FileContentChanged = %v, want one for README.md", changed)
	}
	stats := f.svc.Stats()
	if stats["forwarded"] != int64(2) || stats["structural"] != int64(0) {
		t.Errorf("stats = %v", stats)
	}

	// the IDE's own replace is still an echo
	if err := f.svc.RecordIdeWrite(f.ws.Path("App/README.md")); err != nil {
		t.Fatal(err)
	}
	if got := f.handle(t, watcher.EventCreate, "App/README.md"); got != Echo {
		t.Errorf("create after an IDE write = %v, want echo", got)
	}
}

func TestStaleAndUnknownEvents(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		typ  watcher.EventType
		rel  string
	}{
		{"delete of a file still on disk", watcher.EventDelete, "App/README.md"},
		{"create outside any project", watcher.EventCreate, "stray.txt"},
		{"create of a vanished file", watcher.EventCreate, "App/gone.txt"},
		{"delete of an unknown path", watcher.EventDelete, "App/never.txt"},
		{"modify of a folder", watcher.EventModify, "App/Models"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.handle(t, tt.typ, tt.rel); got != Ignored {
				t.Errorf("outcome = %v, want ignored", got)
			}
		})
	}
	if _, ok := f.sol.FileByPath(f.ws.Path("App/README.md")); !ok {
		t.Error("stale delete removed a file that still exists")
	}
}

func TestModifyOfUnknownFileAddsIt(t *testing.T) {
	f := newFixture(t)
	f.ws.WriteFile(t, "App/Late.cs", "")

	if got := f.handle(t, watcher.EventModify, "App/Late.cs"); got != Structural {
		t.Fatalf("outcome = %v, want structural", got)
	}
	if _, ok := f.sol.FileByPath(f.ws.Path("App/Late.cs")); !ok {
		t.Error("file should be registered")
	}
}

func TestHandleBatch(t *testing.T) {
	f := newFixture(t)
	f.ws.WriteFile(t, "App/A.txt", "a")
	f.ws.WriteFile(t, "App/B.txt", "b")
	f.ws.Remove(t, "App/B.txt")

	f.svc.HandleBatch(context.Background(), []watcher.Event{
		{Type: watcher.EventCreate, Path: f.ws.Path("App/A.txt")},
		{Type: watcher.EventCreate, Path: f.ws.Path("App/B.txt")},
		{Type: watcher.EventModify, Path: f.ws.Path("App/A.txt")},
	})

	if _, ok := f.sol.FileByPath(f.ws.Path("App/A.txt")); !ok {
		t.Error("A.txt should be registered")
	}
	if _, ok := f.sol.FileByPath(f.ws.Path("App/B.txt")); ok {
		t.Error("B.txt was gone before the batch and should not be registered")
	}
	stats := f.svc.Stats()
	if stats["structural"] != int64(1) || stats["forwarded"] != int64(1) || stats["ignored"] != int64(1) {
		t.Errorf("stats = %v", stats)
	}
}
