package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"slnsync/internal/notify"
	"slnsync/internal/paths"
	"slnsync/internal/storage"
)

var (
	journalKindsFlag  []string
	journalPathFlag   string
	journalSinceFlag  time.Duration
	journalLimitFlag  int
	journalOlderFlag  time.Duration
	journalDryRunFlag bool
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the journal of tree notifications",
	Long: `The journal records every notification published by the tree: files
added, removed, moved, renamed and changed, and directories added and removed.
Contents of added files are stored compressed.`,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journaled notifications",
	Long: `List journaled notifications, most recent last.

Examples:
  slnsync journal list --kind file_added --kind file_removed
  slnsync journal list --path App/Models --since 1h
  slnsync journal list --limit 20 --format json`,
	Args: cobra.NoArgs,
	RunE: runJournalList,
}

var journalShowCmd = &cobra.Command{
	Use:   "show <event-id>",
	Short: "Print the contents carried by a file-added notification",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalShow,
}

var journalPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete journaled notifications older than a duration",
	Args:  cobra.NoArgs,
	RunE:  runJournalPrune,
}

func init() {
	journalListCmd.Flags().StringSliceVar(&journalKindsFlag, "kind", nil, "Only these kinds (file_added, file_removed, file_moved, file_renamed, file_content_changed, directory_added, directory_removed)")
	journalListCmd.Flags().StringVar(&journalPathFlag, "path", "", "Only this path and everything below it")
	journalListCmd.Flags().DurationVar(&journalSinceFlag, "since", 0, "Only notifications newer than this duration")
	journalListCmd.Flags().IntVar(&journalLimitFlag, "limit", 100, "Maximum number of entries (0 for all)")

	journalPruneCmd.Flags().DurationVar(&journalOlderFlag, "older-than", 7*24*time.Hour, "Delete notifications older than this duration")
	journalPruneCmd.Flags().BoolVar(&journalDryRunFlag, "dry-run", false, "Only count the journal")

	journalCmd.AddCommand(journalListCmd, journalShowCmd, journalPruneCmd)
	rootCmd.AddCommand(journalCmd)
}

// openJournal opens the journal database without loading the solution.
func openJournal() (*storage.Journal, *storage.DB, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, "", err
	}
	desc, err := findDescriptor(cwd)
	if err != nil {
		return nil, nil, "", err
	}
	root := filepath.Dir(desc)
	cfg := loadConfig(root)
	if !cfg.Journal.Enabled {
		return nil, nil, "", fmt.Errorf("the journal is disabled in the configuration (journal.enabled)")
	}
	loggers := newLoggers(root, cfg)
	db, err := storage.Open(cfg.JournalPath(root), loggers.For("storage"))
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to open journal: %w", err)
	}
	return storage.NewJournal(db, loggers.For("journal")), db, root, nil
}

// JournalEntry is one line of journal list output
type JournalEntry struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	Path    string    `json:"path"`
	OldPath string    `json:"oldPath,omitempty"`
	Project string    `json:"project,omitempty"`
	Time    time.Time `json:"time"`
	Size    int       `json:"size,omitempty"`
}

func runJournalList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	j, db, root, err := openJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	q := storage.Query{Limit: journalLimitFlag}
	for _, k := range journalKindsFlag {
		kind, ok := notify.ParseKind(k)
		if !ok {
			return fmt.Errorf("unknown notification kind %q", k)
		}
		q.Kinds = append(q.Kinds, kind)
	}
	if journalPathFlag != "" {
		p := journalPathFlag
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		q.PathPrefix = paths.Clean(p)
	}
	if journalSinceFlag > 0 {
		q.Since = time.Now().Add(-journalSinceFlag)
	}

	entries, err := j.List(ctx, q)
	if err != nil {
		return err
	}

	if formatFlag == "json" {
		out := make([]JournalEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, JournalEntry{
				ID: e.ID, Kind: e.Kind.String(), Path: e.Path, OldPath: e.OldPath,
				Project: e.Project, Time: e.Time, Size: e.Size,
			})
		}
		return printJSON(out)
	}

	if len(entries) == 0 {
		fmt.Println("No journaled notifications.")
		return nil
	}
	for _, e := range entries {
		var b strings.Builder
		fmt.Fprintf(&b, "%-14s %-22s ", humanize.Time(e.Time), e.Kind)
		if e.OldPath != "" {
			fmt.Fprintf(&b, "%s -> ", paths.Display(e.OldPath, root))
		}
		b.WriteString(paths.Display(e.Path, root))
		if e.Kind == notify.FileAdded && e.Size > 0 {
			fmt.Fprintf(&b, " (%s)", humanize.Bytes(uint64(e.Size)))
		}
		fmt.Fprintf(&b, "  [%s]", e.ID)
		fmt.Println(b.String())
	}
	return nil
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	j, db, _, err := openJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	contents, err := j.Contents(context.Background(), args[0])
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(contents)
	return err
}

func runJournalPrune(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	j, db, _, err := openJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	if journalDryRunFlag {
		n, err := j.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s notifications journaled\n", humanize.Comma(n))
		return nil
	}
	n, err := j.Prune(ctx, time.Now().Add(-journalOlderFlag))
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %s notifications older than %s\n", humanize.Comma(n), journalOlderFlag)
	return nil
}
