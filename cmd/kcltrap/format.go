package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jward/kcltrap"
)

// formatRunsText formats CLIRun results as aligned columns.
func formatRunsText(w io.Writer, runs []CLIRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSTARTED\tFILES\tFAILED\tSOURCE")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.Status, r.StartedAt.Format(time.RFC3339), r.Files, r.Failed, r.SourceRoot)
	}
	tw.Flush()
}

// formatRunDetailText formats one run followed by its files.
func formatRunDetailText(w io.Writer, d CLIRunDetail) {
	fmt.Fprintf(w, "Run: %s\n", d.Run.ID)
	fmt.Fprintf(w, "Source: %s\n", d.Run.SourceRoot)
	fmt.Fprintf(w, "Status: %s\n", d.Run.Status)
	fmt.Fprintf(w, "Started: %s\n", d.Run.StartedAt.Format(time.RFC3339))
	if d.Run.FinishedAt != nil {
		fmt.Fprintf(w, "Finished: %s\n", d.Run.FinishedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tTYPE\tSTATUS\tCACHE\tLINES\tERRORS\tMS")
	for _, f := range d.Files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			f.Path, f.FileType, f.Status, f.CacheStatus, f.Lines, f.ParseErrors, f.DurationMS)
	}
	tw.Flush()
}

// formatSummaryText reports a finished extraction.
func formatSummaryText(w io.Writer, sum *kcltrap.Summary, elapsed time.Duration) {
	parts := []string{fmt.Sprintf("%d extracted", sum.Extracted)}
	if sum.CacheHits > 0 {
		parts = append(parts, fmt.Sprintf("%d from cache", sum.CacheHits))
	}
	if sum.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", sum.Failed))
	}
	if sum.Missing > 0 {
		parts = append(parts, fmt.Sprintf("%d missing", sum.Missing))
	}
	if sum.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", sum.Skipped))
	}
	fmt.Fprintf(w, "Extracted %d file(s) in %s (%s)\n",
		sum.Files, elapsed.Round(time.Millisecond), strings.Join(parts, ", "))
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIRun:
		formatRunsText(w, v)
	case CLIRunDetail:
		formatRunDetailText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
