package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/mus/pkg/mus/history"
	"github.com/jamesainslie/mus/pkg/mus/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View run history",
	Long: `View the history of generation and verification runs.

Every run is recorded with its inputs, manifest, totals and the files that
failed. Entries older than history.retention_days are removed automatically.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show details of a specific run",
	Long:  `Display detailed information about a run by its ID or a unique ID prefix.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean up old history entries",
	Long:  `Remove history entries older than the retention period, or all of them with --all.`,
	Args:  cobra.NoArgs,
	RunE:  runHistoryClean,
}

var (
	historyLimit    int
	historyCleanAll bool
)

// maxShownFailures limits the failures printed by history show.
const maxShownFailures = 50

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")
	historyCleanCmd.Flags().BoolVar(&historyCleanAll, "all", false, "remove every entry")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// openHistory opens the configured history store.
func openHistory() (*history.Store, int, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, 0, err
	}

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open history: %w", err)
	}
	return store, cfg.History.RetentionDays, nil
}

// runHistory lists recent runs.
func runHistory(cmd *cobra.Command, args []string) error {
	store, _, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entries, err := store.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(entries) == 0 {
		printInfo("No history entries found.")
		printInfo("Run 'mus -a [path]' to generate a manifest.")
		return nil
	}

	fmt.Printf("\n%-12s  %-19s  %-8s  %-8s  %-10s  %-8s  %s\n", "ID", "TIME", "TYPE", "FILES", "SIZE", "FAILED", "MANIFEST")
	fmt.Println(strings.Repeat("-", 100))

	for _, entry := range entries {
		fmt.Printf("%-12s  %-19s  %-8s  %-8d  %-10s  %-8s  %s\n",
			shortID(entry.ID),
			entry.Timestamp.Local().Format("2006-01-02 15:04:05"),
			entry.Operation,
			entry.Status.TotalFiles,
			types.FormatSize(entry.Status.TotalBytes),
			failedLabel(&entry),
			truncateString(entry.Manifest, 40),
		)
	}

	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("\nShowing %d entries. Use --limit to see more.\n", len(entries))
	fmt.Println("Use 'mus history show <id>' for details on a specific entry.")

	return nil
}

func failedLabel(e *history.Entry) string {
	if e.Error != "" {
		return "error"
	}
	return fmt.Sprint(e.Status.DoneKO)
}

// runHistoryShow displays details of a specific run.
func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, _, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entry, err := store.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}

	fmt.Println("\nRun Details")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("ID:         %s\n", entry.ID)
	fmt.Printf("Timestamp:  %s\n", entry.Timestamp.Local().Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Operation:  %s\n", entry.Operation)
	fmt.Printf("Inputs:     %s\n", strings.Join(entry.Inputs, ", "))
	if entry.Manifest != "" {
		fmt.Printf("Manifest:   %s\n", entry.Manifest)
	}
	fmt.Printf("Algorithm:  %s\n", entry.Algorithm)
	fmt.Printf("Workers:    %d\n", entry.Workers)
	fmt.Printf("Files:      %d (%d ok, %d failed, %d missing)\n",
		entry.Status.TotalFiles, entry.Status.DoneOK, entry.Status.DoneKO, entry.Status.DoneMissing)
	fmt.Printf("Total Size: %s\n", types.FormatSize(entry.Status.TotalBytes))
	fmt.Printf("Time:       %s\n", types.FormatSeconds(entry.Status.ElapsedSeconds))
	fmt.Printf("Speed:      %s\n", types.FormatSpeed(entry.Status.BytesPerSecond))
	if entry.Error != "" {
		fmt.Printf("Error:      %s\n", entry.Error)
	}

	if len(entry.Failures) > 0 {
		fmt.Println("\nFailures:")
		fmt.Println(strings.Repeat("-", 60))

		limit := min(len(entry.Failures), maxShownFailures)
		for _, f := range entry.Failures[:limit] {
			fmt.Printf("%s\n    %s\n", f.Path, f.Cause)
		}
		if len(entry.Failures) > limit {
			fmt.Printf("\n... and %d more files\n", len(entry.Failures)-limit)
		}
	}

	return nil
}

// runHistoryClean removes old history entries.
func runHistoryClean(cmd *cobra.Command, args []string) error {
	store, retentionDays, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if historyCleanAll {
		if err := store.Purge(); err != nil {
			return fmt.Errorf("failed to purge history: %w", err)
		}
		printInfo("History purged.")
		return nil
	}

	if retentionDays <= 0 {
		printInfo("History retention is disabled; use --all to remove every entry.")
		return nil
	}

	printInfo("Cleaning history entries older than %d days...", retentionDays)

	removed, err := store.CleanRetention(retentionDays)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}

	printInfo("Removed %d entries.", removed)
	return nil
}

// shortID returns the leading part of an ID, enough for history show.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
