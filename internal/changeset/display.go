package changeset

import (
	"fmt"
	"io"
	"strings"
)

const maxDisplayChanges = 20

// PrintSummary writes a human-readable summary of changes under root.
// Long lists are cut to the first maxDisplayChanges entries plus totals.
func PrintSummary(w io.Writer, root string, changes []Change) {
	if len(changes) == 0 {
		_, _ = fmt.Fprintf(w, "\nNo changes in %s.\n", root)
		return
	}

	_, _ = fmt.Fprintf(w, "\nWorkspace changes (%s)\n", root)
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 40))

	shown := changes
	if len(shown) > maxDisplayChanges {
		shown = shown[:maxDisplayChanges]
	}
	for _, c := range shown {
		printChange(w, c)
	}

	if len(changes) > maxDisplayChanges {
		created, modified, deleted := Count(changes)
		_, _ = fmt.Fprintf(w, "  (%d changes total: %d created, %d modified, %d deleted)\n",
			len(changes), created, modified, deleted)
	}
}

func printChange(w io.Writer, c Change) {
	path := c.Path
	if c.IsDir {
		path += "/"
	}
	switch c.Kind {
	case Created:
		if c.IsDir {
			_, _ = fmt.Fprintf(w, "  + %s\n", path)
			return
		}
		_, _ = fmt.Fprintf(w, "  + %-50s (%s)\n", path, formatSize(c.NewSize))
	case Modified:
		if c.IsDir {
			_, _ = fmt.Fprintf(w, "  ~ %s\n", path)
			return
		}
		_, _ = fmt.Fprintf(w, "  ~ %-50s (%s → %s)\n", path, formatSize(c.OldSize), formatSize(c.NewSize))
	case Deleted:
		_, _ = fmt.Fprintf(w, "  - %s\n", path)
	}
}

// formatSize returns a human-readable file size
func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
