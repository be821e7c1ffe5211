package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/prometheus/configs"
	"github.com/Aman-CERP/prometheus/internal/config"
	perrors "github.com/Aman-CERP/prometheus/internal/errors"
	"github.com/Aman-CERP/prometheus/internal/logging"
	"github.com/Aman-CERP/prometheus/internal/matcher"
	"github.com/Aman-CERP/prometheus/internal/output"
	"github.com/Aman-CERP/prometheus/internal/pipeline"
	"github.com/Aman-CERP/prometheus/internal/report"
	"github.com/Aman-CERP/prometheus/internal/ui"
)

// builtinPatterns names the embedded pattern set in user-facing output.
const builtinPatterns = "built-in patterns"

type scanOptions struct {
	configPath     string
	patterns       string
	output         string
	csv            string
	summary        string
	workers        int
	contextWindow  int
	extensions     []string
	formats        []string
	archiveTimeout string
	entryTimeout   string
	followSymlinks bool
	noTUI          bool
	verbose        bool
}

func newScanCmd() *cobra.Command {
	var opts scanOptions

	cmd := &cobra.Command{
		Use:   "scan [root]",
		Short: "Scan a directory of extraction archives",
		Long: `Scan every archive under root (default: current directory) and write
the matches to a consolidated report.

Archives that cannot be read are reported and skipped; the other archives
are still scanned. Press Ctrl+C (or q in the terminal view) to stop early:
the archives finished so far are still written to the report.

Exit codes:
  0  scan finished (with or without matches)
  1  some archives failed, the scan was stopped, or a report could not be written
  2  invalid configuration, patterns or scan root`,
		Example: `  # Scan the current directory with the built-in patterns
  prometheus scan

  # Scan a case folder with custom patterns, CSV included
  prometheus scan /cases/2024-117 --patterns patterns.yaml --csv out/results.csv

  # Only search e-mail and PDFs, eight archives at a time
  prometheus scan /cases --formats email,pdf --workers 8`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			return runScan(ctx, cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "Use only this config file (skips user and case config)")
	f.StringVarP(&opts.patterns, "patterns", "p", "", "Pattern definitions file (YAML or JSON)")
	f.StringVarP(&opts.output, "output", "o", "", "JSON report path")
	f.StringVar(&opts.csv, "csv", "", "CSV report path")
	f.StringVar(&opts.summary, "summary", "", "Run statistics JSON path")
	f.IntVarP(&opts.workers, "workers", "w", 0, "Archives scanned concurrently (0 = number of CPUs)")
	f.IntVar(&opts.contextWindow, "context", 0, "Characters of context kept on each side of a match")
	f.StringSliceVar(&opts.extensions, "ext", nil, "Archive extensions to scan (default .ufdr)")
	f.StringSliceVar(&opts.formats, "formats", nil, "Only search these document formats (e.g. email,text,pdf); databases are always searched")
	f.StringVar(&opts.archiveTimeout, "archive-timeout", "", "Wall-clock limit per archive (e.g. 30m)")
	f.StringVar(&opts.entryTimeout, "entry-timeout", "", "Wall-clock limit per entry (e.g. 2m)")
	f.BoolVar(&opts.followSymlinks, "follow-symlinks", false, "Follow symbolic links while walking root")
	f.BoolVar(&opts.noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Print every entry in plain output")

	return cmd
}

func runScan(ctx context.Context, cmd *cobra.Command, root string, opts scanOptions) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return perrors.New(perrors.ErrCodeInvalidRoot, "failed to resolve scan root", err).
			WithDetail("root", root)
	}

	cfg, err := loadScanConfig(cmd, absRoot, opts)
	if err != nil {
		return err
	}

	logCfg := cfg.LogConfig(debugMode)
	if logFile != "" {
		logCfg.FilePath = logFile
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	defs, source, err := loadPatterns(cfg.Patterns.Path)
	if err != nil {
		return err
	}

	pipeOpts, err := cfg.ToPipelineOptions()
	if err != nil {
		return err
	}
	pipeOpts.RunID = uuid.NewString()
	pipeOpts.Logger = logger
	logger.Info("scan_configured",
		slog.String("run_id", pipeOpts.RunID),
		slog.String("patterns", source),
		slog.String("log_file", logCfg.FilePath))

	// Cancel from the TUI as well as from signals: the TUI owns the
	// terminal while it runs, so Ctrl+C arrives as a key press there.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := cmd.OutOrStdout()
	renderer := ui.NewRenderer(ui.NewConfig(out,
		ui.WithForcePlain(opts.noTUI),
		ui.WithRoot(absRoot),
		ui.WithVerbose(opts.verbose),
		ui.WithInterrupt(cancel),
	))
	if err := renderer.Start(ctx); err != nil {
		logger.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	pipeOpts.Progress = renderer.UpdateProgress

	started := time.Now()
	result, err := pipeline.Scan(ctx, absRoot, defs, pipeOpts)
	if err != nil {
		_ = renderer.Stop()
		logger.Error("scan_failed", perrors.FormatForLog(err)...)
		return err
	}

	paths := report.Paths{JSON: cfg.Output.JSON, CSV: cfg.Output.CSV, Summary: cfg.Output.Summary}
	writeErr := report.WriteFiles(result, paths)
	if writeErr != nil {
		logger.Error("report_write_failed", slog.String("error", writeErr.Error()))
	}

	var written []string
	if writeErr == nil {
		for _, p := range []string{paths.JSON, paths.CSV, paths.Summary} {
			if p != "" {
				written = append(written, p)
			}
		}
	}
	renderer.Complete(ui.CompletionStats{
		Stats:    result.Stats,
		Duration: time.Since(started),
		Outputs:  written,
	})
	_ = renderer.Stop()

	w := output.New(out)
	w.Summary(result)

	if writeErr != nil {
		w.Errorf("Failed to write report: %v", writeErr)
		return &exitError{code: ExitFailure, msg: writeErr.Error()}
	}

	s := result.Stats
	switch {
	case s.Canceled:
		return &exitError{code: ExitFailure, msg: "scan canceled"}
	case s.ArchivesFailed > 0:
		return &exitError{code: ExitFailure, msg: fmt.Sprintf("%d archives failed", s.ArchivesFailed)}
	}
	return nil
}

// loadScanConfig resolves the layered configuration and applies the flags
// the user set explicitly.
func loadScanConfig(cmd *cobra.Command, absRoot string, opts scanOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cwd, _ := os.Getwd()
		cfg, err = config.Load(absRoot, cwd)
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("patterns") {
		cfg.Patterns.Path = opts.patterns
	}
	if flags.Changed("output") {
		cfg.Output.JSON = opts.output
	}
	if flags.Changed("csv") {
		cfg.Output.CSV = opts.csv
	}
	if flags.Changed("summary") {
		cfg.Output.Summary = opts.summary
	}
	if flags.Changed("workers") {
		cfg.Scan.Workers = opts.workers
	}
	if flags.Changed("context") {
		cfg.Scan.ContextWindow = opts.contextWindow
	}
	if flags.Changed("ext") {
		cfg.Scan.Extensions = opts.extensions
	}
	if flags.Changed("formats") {
		cfg.Scan.Formats = opts.formats
	}
	if flags.Changed("archive-timeout") {
		cfg.Scan.ArchiveTimeout = opts.archiveTimeout
	}
	if flags.Changed("entry-timeout") {
		cfg.Scan.EntryTimeout = opts.entryTimeout
	}
	if flags.Changed("follow-symlinks") {
		cfg.Scan.FollowSymlinks = opts.followSymlinks
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadPatterns reads the pattern file at path, or the built-in set when
// path is empty. It returns the definitions and a label for their source.
func loadPatterns(path string) ([]matcher.Definition, string, error) {
	if path == "" {
		defs, err := matcher.ParseYAML(configs.DefaultPatterns)
		return defs, builtinPatterns, err
	}
	defs, err := matcher.LoadFile(path)
	return defs, path, err
}
