package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"slnsync/internal/notify"
	"slnsync/internal/slogutil"
	"slnsync/internal/solution"
	"slnsync/internal/testutil"
)

func loadedSolution(t *testing.T) *solution.Solution {
	t.Helper()
	ws := testutil.NewWorkspace(t)
	app := ws.Project(t, "App", map[string]string{
		"Program.cs":        "class Program {}",
		"Models/Account.cs": "class Account {}",
	})
	logger := slogutil.NewDiscardLogger()
	sol := solution.NewSolution("Demo", ws.Path("Demo.sln.toml"))
	eng := solution.NewEngine(sol, ws.Fs, notify.NewBus(logger), logger, solution.Options{MaxConcurrentReads: 1, ProjectSuffix: testutil.ProjectSuffix})
	layout := solution.Layout{Folders: []string{"src"}, Projects: []solution.ProjectRef{{Path: app, Folder: "src"}}}
	if err := eng.Load(context.Background(), layout); err != nil {
		t.Fatal(err)
	}
	return sol
}

func TestWriteTree(t *testing.T) {
	sol := loadedSolution(t)

	tests := []struct {
		name    string
		files   bool
		want    []string
		notWant []string
	}{
		{"with files", true, []string{"Demo", "src/", "App (project)", "Models/", "Account.cs", "Program.cs"}, nil},
		{"containers only", false, []string{"src/", "App (project)", "Models/"}, []string{"Program.cs", "Account.cs"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeTree(&buf, sol, tt.files); err != nil {
				t.Fatalf("writeTree() error = %v", err)
			}
			out := buf.String()
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("output missing %q:\n%s", s, out)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(out, s) {
					t.Errorf("output contains %q:\n%s", s, out)
				}
			}
		})
	}

	// folders come before files
	var buf bytes.Buffer
	if err := writeTree(&buf, sol, true); err != nil {
		t.Fatal(err)
	}
	if out := buf.String(); strings.Index(out, "Models/") > strings.Index(out, "Program.cs") {
		t.Errorf("folder listed after file:\n%s", out)
	}
}

func TestTreeJSON(t *testing.T) {
	sol := loadedSolution(t)
	root := treeJSON(sol, sol, true)
	if root.Kind != "solution" || len(root.Children) != 1 {
		t.Fatalf("root = %+v", root)
	}
	src := root.Children[0]
	if src.Kind != "solutionFolder" || src.Name != "src" || len(src.Children) != 1 {
		t.Fatalf("solution folder = %+v", src)
	}
	project := src.Children[0]
	if project.Kind != "project" || project.Name != "App" {
		t.Fatalf("project = %+v", project)
	}
	if len(project.Children) == 0 || project.Children[0].Kind != "folder" {
		t.Errorf("project children = %+v, want the folder first", project.Children)
	}
}

func TestFindDescriptor(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		want    string
		wantErr bool
	}{
		{"none", nil, "", true},
		{"single toml", []string{"Demo.sln.toml"}, "Demo.sln.toml", false},
		{"single yaml", []string{"Demo.sln.yaml", "notes.txt"}, "Demo.sln.yaml", false},
		{"ambiguous", []string{"A.sln.toml", "B.sln.yaml"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				if err := os.WriteFile(filepath.Join(dir, f), nil, 0644); err != nil {
					t.Fatal(err)
				}
			}
			got, err := findDescriptor(dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("findDescriptor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != filepath.Join(dir, tt.want) {
				t.Errorf("findDescriptor() = %q, want %q", got, tt.want)
			}
		})
	}

	solutionFlag = "explicit.sln.toml"
	defer func() { solutionFlag = "" }()
	got, err := findDescriptor(t.TempDir())
	if err != nil || filepath.Base(got) != "explicit.sln.toml" || !filepath.IsAbs(got) {
		t.Errorf("findDescriptor() with --solution = %q, %v", got, err)
	}
}
