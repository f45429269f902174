package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/faize-ai/hostguard/internal/session"
	"github.com/spf13/cobra"
)

var (
	runsLimit int
	runsJSON  bool
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List journaled runs",
	Long: `List runs recorded by 'hostguard exec', newest first, or show one run in full.

The journal is informational only; live runs are not tracked across
hostguard invocations.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs to list (0 for all)")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "print records as JSON")
}

func runRuns(cmd *cobra.Command, args []string) error {
	store, err := session.NewStore()
	if err != nil {
		return fmt.Errorf("failed to access run journal: %w", err)
	}

	if len(args) == 1 {
		record, err := store.Load(args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	}

	records, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if runsLimit > 0 && len(records) > runsLimit {
		records = records[:runsLimit]
	}

	if runsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	// Create tabwriter for aligned output
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSCOPE\tMODE\tREASON\tEXIT\tSTARTED\tDURATION\tCOMMAND")
	_, _ = fmt.Fprintln(w, "--\t-----\t----\t------\t----\t-------\t--------\t-------")

	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID),
			orDash(r.ScopeKey),
			r.Mode,
			r.Reason,
			exitColumn(r),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Duration().Round(time.Millisecond),
			truncate(strings.Join(r.Argv, " "), 48),
		)
	}

	_ = w.Flush()
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func exitColumn(r *session.Record) string {
	switch {
	case r.ExitCode != nil:
		return fmt.Sprintf("%d", *r.ExitCode)
	case r.ExitSignal != "":
		return r.ExitSignal
	default:
		return "-"
	}
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
