package main

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"slnsync/internal/analysis"
	"slnsync/internal/evaluation"
	"slnsync/internal/paths"
	"slnsync/internal/solution"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify tree invariants and report diagnostics",
	Long: `Load the solution, verify every tree invariant (ordering, parent links,
paths, registries) and print the diagnostics of the analysis workspace.
Exits non-zero when the tree is inconsistent or a diagnostic is an error.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

// CheckResponse is the output of check
type CheckResponse struct {
	Solution    string                `json:"solution"`
	Projects    int                   `json:"projects"`
	Files       int                   `json:"files"`
	Violations  []solution.Violation  `json:"violations"`
	Diagnostics []analysis.Diagnostic `json:"diagnostics"`
	Evaluation  map[string]string     `json:"evaluationErrors,omitempty"`
	// References lists, per project, referenced projects that are not part
	// of the solution.
	References map[string][]string `json:"unresolvedReferences,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	resp := CheckResponse{
		Solution:   s.Solution.Name(),
		Projects:   len(s.Solution.Projects()),
		Files:      s.Solution.FileCount(),
		Violations: s.Solution.Verify(),
	}
	if s.Analysis != nil {
		resp.Diagnostics = s.Analysis.AllDiagnostics()
	}
	for _, p := range s.Solution.Projects() {
		if err := s.Evaluator.LastError(p.Path()); err != nil {
			if resp.Evaluation == nil {
				resp.Evaluation = make(map[string]string)
			}
			resp.Evaluation[p.Path()] = err.Error()
		}
		if missing := unresolvedReferences(s.Solution, s.Evaluator, p.Path()); len(missing) > 0 {
			if resp.References == nil {
				resp.References = make(map[string][]string)
			}
			resp.References[p.Path()] = missing
		}
	}

	if formatFlag == "json" {
		if err := printJSON(resp); err != nil {
			return err
		}
	} else {
		printCheckHuman(&resp, s.Root)
	}

	if len(resp.Violations) > 0 {
		return fmt.Errorf("%d tree invariant violation(s)", len(resp.Violations))
	}
	for _, d := range resp.Diagnostics {
		if d.Severity == analysis.SeverityError {
			return fmt.Errorf("%d diagnostic(s)", len(resp.Diagnostics))
		}
	}
	return nil
}

func printCheckHuman(resp *CheckResponse, root string) {
	fmt.Printf("Solution %s: %d projects, %d files\n", resp.Solution, resp.Projects, resp.Files)
	if len(resp.Violations) == 0 {
		fmt.Println("Tree: consistent")
	} else {
		fmt.Printf("Tree: %d violation(s)\n", len(resp.Violations))
		for _, v := range resp.Violations {
			fmt.Printf("  %s: %s\n", paths.Display(v.Path, root), v.Message)
		}
	}
	for _, path := range slices.Sorted(maps.Keys(resp.Evaluation)) {
		fmt.Printf("Project %s: %s\n", paths.Display(path, root), resp.Evaluation[path])
	}
	for _, path := range slices.Sorted(maps.Keys(resp.References)) {
		for _, ref := range resp.References[path] {
			fmt.Printf("Project %s: reference %s is not in the solution\n", paths.Display(path, root), paths.Display(ref, root))
		}
	}
	if !analysis.IsAvailable() {
		fmt.Println("Diagnostics: unavailable (built without cgo)")
		return
	}
	fmt.Printf("Diagnostics: %d\n", len(resp.Diagnostics))
	for _, d := range resp.Diagnostics {
		fmt.Printf("  %s:%d:%d: %s: %s\n", paths.Display(d.Path, root), d.Line, d.Column, d.Severity, d.Message)
	}
}

// unresolvedReferences returns the references of the project at path that
// name no project of the solution.
func unresolvedReferences(sol *solution.Solution, eval *evaluation.Evaluator, path string) []string {
	p, ok := eval.Project(path)
	if !ok {
		return nil
	}
	var missing []string
	for _, ref := range p.ReferencePaths() {
		if _, ok := sol.ProjectByPath(ref); !ok {
			missing = append(missing, ref)
		}
	}
	return missing
}
