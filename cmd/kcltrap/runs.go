package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/kcltrap/internal/config"
	"github.com/jward/kcltrap/internal/layout"
	"github.com/jward/kcltrap/internal/store"
)

var flagLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent extraction runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return outputError("runs", err)
		}
		defer s.Close()

		runs, err := s.Runs(flagLimit)
		if err != nil {
			return outputError("runs", err)
		}
		out := make([]CLIRun, 0, len(runs))
		for _, r := range runs {
			out = append(out, runToCLI(r))
		}
		return outputResult(CLIResult{Command: "runs", Results: out})
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the files of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return outputError("runs show", err)
		}
		defer s.Close()

		run, err := s.RunByID(args[0])
		if err != nil {
			return outputError("runs show", err)
		}
		if run == nil {
			return outputError("runs show", fmt.Errorf("run not found: %s", args[0]))
		}
		rows, err := s.ExtractionsByRun(run.ID)
		if err != nil {
			return outputError("runs show", err)
		}
		detail := CLIRunDetail{Run: runToCLI(run), Files: make([]CLIExtraction, 0, len(rows))}
		for _, e := range rows {
			detail.Files = append(detail.Files, extractionToCLI(e))
		}
		return outputResult(CLIResult{Command: "runs show", Results: detail})
	},
}

func init() {
	runsCmd.PersistentFlags().IntVar(&flagLimit, "limit", 20, "maximum number of runs to list")
	runsCmd.AddCommand(runsShowCmd)
}

// openStore opens the run ledger of the --db directory (or the default
// output directory).
func openStore() (*store.Store, error) {
	dir := flagDB
	if dir == "" {
		dir = config.Default().OutputDir
	}
	l := &layout.Layout{Root: dir}
	path := l.LedgerPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'kcltrap extract' first)", path)
	}
	return store.Open(path)
}

func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(os.Stdout, result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

func runToCLI(r *store.Run) CLIRun {
	return CLIRun{
		ID:         r.ID,
		SourceRoot: r.SourceRoot,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Files:      r.Files,
		Failed:     r.Failed,
	}
}

func extractionToCLI(e *store.Extraction) CLIExtraction {
	return CLIExtraction{
		Path:        e.Path,
		FileType:    e.FileType,
		Status:      e.Status,
		CacheStatus: e.CacheStatus,
		Lines:       e.Lines,
		Code:        e.Code,
		Comments:    e.Comments,
		ParseErrors: e.ParseErrors,
		DurationMS:  e.DurationMS,
		Error:       e.Error,
	}
}
