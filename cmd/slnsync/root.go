package main

import (
	"github.com/spf13/cobra"

	"slnsync/internal/version"
)

var (
	solutionFlag string
	logLevelFlag string
	formatFlag   string
	verboseFlag  int
	quietFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "slnsync",
	Short: "slnsync - keeps a solution tree in sync with the disk",
	Long: `slnsync loads a solution descriptor (*.sln.toml or *.sln.yaml), builds the
tree of solution folders, projects, folders and files, and keeps it consistent
with the filesystem, the IDE's own edits and downstream consumers.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("slnsync version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&solutionFlag, "solution", "s", "",
		"Solution descriptor (default: the single *.sln.toml or *.sln.yaml in the current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level override: debug, info, warn, error, silent")
	rootCmd.PersistentFlags().CountVarP(&verboseFlag, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress all logs")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "human", "Output format (human, json)")
}
