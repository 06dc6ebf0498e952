package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ddddddO/gtree"
	"github.com/spf13/cobra"

	"slnsync/internal/solution"
)

var treeFilesFlag bool

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the solution tree",
	Long: `Print solution folders, projects, folders and files in tree order.

Examples:
  slnsync tree                  # Full tree
  slnsync tree --files=false    # Containers only`,
	Args: cobra.NoArgs,
	RunE: runTree,
}

func init() {
	treeCmd.Flags().BoolVar(&treeFilesFlag, "files", true, "Include files")
	rootCmd.AddCommand(treeCmd)
}

func runTree(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if formatFlag == "json" {
		return printJSON(treeJSON(s.Solution, s.Solution, treeFilesFlag))
	}
	return writeTree(os.Stdout, s.Solution, treeFilesFlag)
}

// writeTree renders sol with gtree. Folders carry a trailing slash so a
// folder never merges with a file of the same name.
func writeTree(w io.Writer, sol *solution.Solution, files bool) error {
	root := gtree.NewRoot(sol.Name())
	addSolutionContainer(root, sol, sol, files)
	if err := gtree.OutputFromRoot(w, root); err != nil {
		return fmt.Errorf("failed to render tree: %w", err)
	}
	return nil
}

func addSolutionContainer(node *gtree.Node, sol *solution.Solution, c solution.SolutionContainer, files bool) {
	for _, f := range sol.SolutionFolders(c) {
		child := node.Add(f.Name() + "/")
		addSolutionContainer(child, sol, f, files)
		if files {
			for _, item := range sol.Items(f) {
				child.Add(item.Name())
			}
		}
	}
	for _, p := range sol.ProjectsIn(c) {
		addContainer(node.Add(p.Name()+" (project)"), sol, p, files)
	}
}

func addContainer(node *gtree.Node, sol *solution.Solution, c solution.Container, files bool) {
	for _, en := range sol.Children(c) {
		switch en := en.(type) {
		case *solution.Folder:
			addContainer(node.Add(en.Name()+"/"), sol, en, files)
		case *solution.File:
			if files {
				node.Add(en.Name())
			}
		}
	}
}

type treeNode struct {
	Kind     string      `json:"kind"`
	Name     string      `json:"name"`
	Path     string      `json:"path,omitempty"`
	Children []*treeNode `json:"children,omitempty"`
}

func treeJSON(sol *solution.Solution, c solution.SolutionContainer, files bool) *treeNode {
	n := &treeNode{Kind: "solution", Name: sol.Name(), Path: sol.Path()}
	if f, ok := c.(*solution.SolutionFolder); ok {
		n = &treeNode{Kind: "solutionFolder", Name: f.Name()}
		if files {
			for _, item := range sol.Items(f) {
				n.Children = append(n.Children, &treeNode{Kind: "file", Name: item.Name(), Path: item.Path()})
			}
		}
	}
	for _, f := range sol.SolutionFolders(c) {
		n.Children = append(n.Children, treeJSON(sol, f, files))
	}
	for _, p := range sol.ProjectsIn(c) {
		pn := &treeNode{Kind: "project", Name: p.Name(), Path: p.Path()}
		pn.Children = containerJSON(sol, p, files)
		n.Children = append(n.Children, pn)
	}
	return n
}

func containerJSON(sol *solution.Solution, c solution.Container, files bool) []*treeNode {
	var out []*treeNode
	for _, en := range sol.Children(c) {
		switch en := en.(type) {
		case *solution.Folder:
			out = append(out, &treeNode{Kind: "folder", Name: en.Name(), Path: en.Path(), Children: containerJSON(sol, en, files)})
		case *solution.File:
			if files {
				out = append(out, &treeNode{Kind: "file", Name: en.Name(), Path: en.Path()})
			}
		}
	}
	return out
}
