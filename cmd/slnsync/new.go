package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"slnsync/internal/paths"
	"slnsync/internal/session"
	"slnsync/internal/solution"
)

var (
	newLanguageFlag string
	newTargetFlag   string
	newFolderFlag   string
)

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create files, directories and projects on disk and in the tree",
	Long: `Create items the way the IDE does: the disk is written first, then the
tree is updated and downstream consumers are notified.

Examples:
  slnsync new class App/Models Invoice.cs
  slnsync new dir App Services
  slnsync new project Tools --language csharp --target net8.0 --folder src`,
}

var newClassCmd = &cobra.Command{
	Use:   "class <directory> <file-name>",
	Short: "Create a source file from the class template",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session.Session) error {
			parent, err := containerAt(s, args[0])
			if err != nil {
				return err
			}
			file, err := s.FileOps.CreateSourceFile(ctx, parent, args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Created %s\n", paths.Display(file.Path(), s.Root))
			return nil
		})
	},
}

var newDirCmd = &cobra.Command{
	Use:   "dir <parent-directory> <name>",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session.Session) error {
			parent, err := containerAt(s, args[0])
			if err != nil {
				return err
			}
			folder, err := s.FileOps.CreateDirectory(ctx, parent, args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Created %s\n", paths.Display(folder.Path(), s.Root))
			return nil
		})
	},
}

var newProjectCmd = &cobra.Command{
	Use:   "project <name>",
	Short: "Create a project next to the solution descriptor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session.Session) error {
			var parent solution.SolutionContainer = s.Solution
			if newFolderFlag != "" {
				sf, ok := s.Solution.SolutionFolderByPath(newFolderFlag)
				if !ok {
					created, err := s.Engine.AddSolutionFolder(ctx, s.Solution, newFolderFlag)
					if err != nil {
						return err
					}
					sf = created
				}
				parent = sf
			}
			p, err := s.FileOps.CreateProject(ctx, parent, args[0], newLanguageFlag, newTargetFlag)
			if err != nil {
				return err
			}
			fmt.Printf("Created project %s\n", paths.Display(p.Path(), s.Root))
			return nil
		})
	},
}

func init() {
	newProjectCmd.Flags().StringVar(&newLanguageFlag, "language", "csharp", "Project language")
	newProjectCmd.Flags().StringVar(&newTargetFlag, "target", "", "Target framework or toolchain")
	newProjectCmd.Flags().StringVar(&newFolderFlag, "folder", "", "Top-level solution folder to place the project in (created if missing)")
	newCmd.AddCommand(newClassCmd, newDirCmd, newProjectCmd)
	rootCmd.AddCommand(newCmd)
}

func withSession(fn func(context.Context, *session.Session) error) error {
	ctx := context.Background()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

// containerAt resolves a directory argument to the project or folder that
// owns it.
func containerAt(s *session.Session, dir string) (solution.Container, error) {
	dir, err := absArg(dir)
	if err != nil {
		return nil, err
	}
	if c, ok := s.Solution.ContainerForDir(dir); ok {
		return c, nil
	}
	return nil, fmt.Errorf("%s is neither a project directory nor a folder of the solution", paths.Display(dir, s.Root))
}

// absArg resolves a path argument against the working directory.
func absArg(p string) (string, error) {
	if !filepath.IsAbs(p) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		p = filepath.Join(cwd, p)
	}
	return paths.Clean(p), nil
}
