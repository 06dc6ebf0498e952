package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"slnsync/internal/paths"
)

var watchStatsFlag time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the solution in sync with the disk until interrupted",
	Long: `Load the solution and reconcile filesystem changes as they happen.
Structural changes update the tree and the descriptor; content changes reach
the analysis workspace and the event journal.

Examples:
  slnsync watch                     # Run until Ctrl-C
  slnsync watch --stats 30s         # Log statistics every 30 seconds`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchStatsFlag, "stats", 0, "Log statistics at this interval (0 disables)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if !s.Config.Watcher.Enabled {
		return fmt.Errorf("the watcher is disabled in the configuration (watcher.enabled)")
	}
	if err := s.StartWatching(); err != nil {
		return err
	}
	dirs := s.Watcher().WatchedDirs()
	fmt.Fprintf(os.Stderr, "Watching %s (%d projects, %d directories). Press Ctrl-C to stop.\n",
		s.Root, len(s.Solution.Projects()), len(dirs))
	if verboseFlag > 1 {
		for _, d := range dirs {
			fmt.Fprintf(os.Stderr, "  %s\n", paths.Display(d, s.Root))
		}
	}

	var tick <-chan time.Time
	if watchStatsFlag > 0 {
		ticker := time.NewTicker(watchStatsFlag)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			if violations := s.Solution.Verify(); len(violations) > 0 {
				fmt.Fprintf(os.Stderr, "Tree has %d invariant violation(s) at shutdown\n", len(violations))
			}
			if formatFlag == "json" {
				return printJSON(s.Stats())
			}
			return nil
		case <-tick:
			if err := printJSON(s.Stats()); err != nil {
				return err
			}
		}
	}
}
