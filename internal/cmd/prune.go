package cmd

import (
	"fmt"
	"time"

	"github.com/faize-ai/hostguard/internal/session"
	"github.com/spf13/cobra"
)

var (
	pruneAll       bool
	pruneOlderThan time.Duration
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old run records",
	Long: `Remove journaled run records.

By default only records older than --older-than are removed.
Use --all to clear the whole journal.`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().BoolVarP(&pruneAll, "all", "a", false, "remove all run records")
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 7*24*time.Hour, "remove records that started before this long ago")
}

func runPrune(cmd *cobra.Command, args []string) error {
	store, err := session.NewStore()
	if err != nil {
		return fmt.Errorf("failed to access run journal: %w", err)
	}

	records, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	cutoff := time.Now().Add(-pruneOlderThan)
	removedCount := 0
	for _, record := range prunable(records, cutoff, pruneAll) {
		if err := store.Delete(record.ID); err != nil {
			fmt.Printf("Warning: failed to delete run %s: %v\n", record.ID, err)
			continue
		}
		Debug("Removed run: %s", record.ID)
		removedCount++
	}

	if removedCount == 0 {
		fmt.Println("No runs to remove.")
	} else {
		fmt.Printf("Removed %d run(s).\n", removedCount)
	}

	return nil
}

// prunable selects the records to delete: all of them, or those that
// started before cutoff.
func prunable(records []*session.Record, cutoff time.Time, all bool) []*session.Record {
	var out []*session.Record
	for _, record := range records {
		if all || record.StartedAt.Before(cutoff) {
			out = append(out, record)
		}
	}
	return out
}
