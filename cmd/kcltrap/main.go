package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/kcltrap"
	"github.com/jward/kcltrap/internal/config"
)

var (
	flagDB     string
	flagFormat string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return 2
	}
	var fatal *kcltrap.FatalError
	if errors.As(err, &fatal) {
		return fatal.Status
	}
	return 1
}

var rootCmd = &cobra.Command{
	Use:           "kcltrap",
	Short:         "Extract KCL sources into TRAP facts",
	Long:          "kcltrap parses KCL and YAML sources and writes TRAP fact files, a source archive and diagnostics into a database directory.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database directory (default: output_dir from the configuration)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(runsCmd)
}

var (
	flagConfig  string
	flagThreads int
	flagQuiet   bool
	flagVerbose bool
)

var extractCmd = &cobra.Command{
	Use:   "extract [source-root]",
	Short: "Extract a source tree into a database",
	Long: "Resolves the source set below source-root, extracts every file and writes the database. " +
		"Exits 1 when some files failed, 2 on a configuration error and 137 when the parser ran out of memory.",
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&flagConfig, "config", "", "configuration file (default: kcltrap.yml in the source root)")
	extractCmd.Flags().IntVar(&flagThreads, "threads", 1, "worker count (0 = number of CPUs)")
	extractCmd.Flags().BoolVar(&flagQuiet, "quiet", false, "disable the progress bar and the summary")
	extractCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "log every file as it is extracted")
}

func runExtract(cmd *cobra.Command, args []string) error {
	start := time.Now()

	root, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, root)
	if err != nil {
		return err
	}

	progress := newProgressReporter(flagQuiet || flagVerbose)
	engine, err := kcltrap.New(cfg,
		kcltrap.WithProgress(progress.Update),
		kcltrap.WithVerbose(flagVerbose),
	)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sum, err := engine.Run(ctx)
	progress.Finish()
	if sum != nil && !flagQuiet {
		formatSummaryText(os.Stderr, sum, time.Since(start))
		fmt.Fprintf(os.Stderr, "Database: %s\n", engine.Layout().Root)
	}
	return err
}

// loadConfig reads the configuration for root and applies command-line
// overrides on top of it.
func loadConfig(cmd *cobra.Command, root string) (*config.Config, error) {
	loader := config.NewLoader(root)
	if flagConfig != "" {
		loader = config.NewFileLoader(root, flagConfig)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.OutputDir = flagDB
	}
	if cmd.Flags().Changed("threads") {
		cfg.Threads = flagThreads
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveTargetDir returns the absolute path of the directory to extract.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}
