package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"slnsync/internal/analysis"
	"slnsync/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Full())
		fmt.Printf("Syntax diagnostics: %v\n", analysis.IsAvailable())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
