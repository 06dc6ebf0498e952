package main

import (
	"context"
	"testing"

	"slnsync/internal/evaluation"
	"slnsync/internal/notify"
	"slnsync/internal/slogutil"
	"slnsync/internal/solution"
	"slnsync/internal/testutil"
)

func TestUnresolvedReferences(t *testing.T) {
	ws := testutil.NewWorkspace(t)
	app := ws.Project(t, "App", map[string]string{"Program.cs": "class Program {}"})
	lib := ws.Project(t, "Lib", nil)
	ws.WriteFile(t, "App/App"+testutil.ProjectSuffix,
		"name = \"App\"\nreferences = [\"../Lib/Lib.project.toml\", \"../Gone/Gone.project.toml\"]\n")

	ctx := context.Background()
	logger := slogutil.NewDiscardLogger()
	sol := solution.NewSolution("Demo", ws.Path("Demo.sln.toml"))
	eng := solution.NewEngine(sol, ws.Fs, notify.NewBus(logger), logger, solution.Options{MaxConcurrentReads: 1, ProjectSuffix: testutil.ProjectSuffix})
	if err := eng.Load(ctx, solution.Layout{Projects: []solution.ProjectRef{{Path: app}, {Path: lib}}}); err != nil {
		t.Fatal(err)
	}
	eval := evaluation.NewEvaluator(ws.Fs, testutil.ProjectSuffix, logger)

	if got := unresolvedReferences(sol, eval, app); got != nil {
		t.Errorf("unresolvedReferences() before evaluation = %v, want nil", got)
	}
	if err := eval.ReloadProject(ctx, app); err != nil {
		t.Fatal(err)
	}
	got := unresolvedReferences(sol, eval, app)
	if len(got) != 1 || got[0] != ws.Path("Gone/Gone.project.toml") {
		t.Errorf("unresolvedReferences() = %v, want only Gone", got)
	}
}

func TestProjectNamed(t *testing.T) {
	sol := loadedSolution(t)

	tests := []struct {
		name    string
		wantErr bool
	}{
		{"App", false},
		{"app", false},
		{"Missing", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := projectNamed(sol, tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("projectNamed(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if err == nil && p.Name() != "App" {
				t.Errorf("projectNamed(%q) = %s", tt.name, p.Name())
			}
		})
	}
}
