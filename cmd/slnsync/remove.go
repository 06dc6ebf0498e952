package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"slnsync/internal/ordering"
	"slnsync/internal/paths"
	"slnsync/internal/session"
	"slnsync/internal/solution"
)

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Delete files and directories, or take a project out of the solution",
	Long: `Remove items the way the IDE does. Files and directories are deleted from
disk and then from the tree. Removing a project only drops it from the
solution descriptor; its directory stays on disk.

Examples:
  slnsync remove file App/Models/Invoice.cs
  slnsync remove dir App/Legacy
  slnsync remove project Tools`,
}

var removeFileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Delete a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session.Session) error {
			path, err := absArg(args[0])
			if err != nil {
				return err
			}
			file, ok := s.Solution.FileByPath(path)
			if !ok {
				return fmt.Errorf("%s is not a file of the solution", paths.Display(path, s.Root))
			}
			if err := s.FileOps.DeleteFile(ctx, file); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", paths.Display(path, s.Root))
			return nil
		})
	},
}

var removeDirCmd = &cobra.Command{
	Use:   "dir <path>",
	Short: "Delete a directory and everything below it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session.Session) error {
			path, err := absArg(args[0])
			if err != nil {
				return err
			}
			folder, ok := s.Solution.FolderByPath(path)
			if !ok {
				return fmt.Errorf("%s is not a folder of the solution", paths.Display(path, s.Root))
			}
			folders, files := s.Solution.Descendants(folder)
			if err := s.FileOps.DeleteDirectory(ctx, folder); err != nil {
				return err
			}
			fmt.Printf("Deleted %s (%d folders, %d files)\n", paths.Display(path, s.Root), len(folders), len(files))
			return nil
		})
	},
}

var removeProjectCmd = &cobra.Command{
	Use:   "project <name>",
	Short: "Take a project out of the solution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session.Session) error {
			project, err := projectNamed(s.Solution, args[0])
			if err != nil {
				return err
			}
			from := "the solution root"
			if parent, ok := s.Solution.Parent(project); ok {
				if sf, ok := parent.(*solution.SolutionFolder); ok {
					from = "solution folder " + s.Solution.SolutionFolderPath(sf)
				}
			}
			if err := s.FileOps.RemoveProject(ctx, project); err != nil {
				return err
			}
			fmt.Printf("Removed project %s from %s\n", project.Name(), from)
			return nil
		})
	},
}

func init() {
	removeCmd.AddCommand(removeFileCmd, removeDirCmd, removeProjectCmd)
	rootCmd.AddCommand(removeCmd)
}

// projectNamed finds a project by name, case-insensitively.
func projectNamed(sol *solution.Solution, name string) (*solution.Project, error) {
	var found []*solution.Project
	for _, p := range sol.Projects() {
		if ordering.CompareNames(p.Name(), name) == 0 {
			found = append(found, p)
		}
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("no project named %q", name)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("several projects named %q", name)
	}
}
