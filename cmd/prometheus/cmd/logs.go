package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/prometheus/internal/logging"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	grep    string
	runID   string
	noColor bool
	file    string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View scan logs",
		Long: `View and tail the scan log written with --debug or --log-file.

By default, shows the last 50 lines of ~/.prometheus/logs/scan.log.
Every line of a scan carries its run_id; use --run-id to isolate one run.`,
		Example: `  prometheus logs                     # Show last 50 lines
  prometheus logs -f                  # Follow logs in real-time
  prometheus logs --level warn        # Warnings and errors only
  prometheus logs --grep unit_timeout # Filter by pattern`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLogs(ctx, cmd, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	f.IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	f.StringVar(&opts.level, "level", "", "Minimum log level (debug|info|warn|error)")
	f.StringVar(&opts.grep, "grep", "", "Only lines matching this regex")
	f.StringVar(&opts.runID, "run-id", "", "Only lines of this scan run")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	f.StringVar(&opts.file, "file", "", "Path to log file")

	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, opts logsOptions) error {
	path, err := logging.FindLogFile(opts.file)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.grep != "" {
		pattern, err = regexp.Compile(opts.grep)
		if err != nil {
			return fmt.Errorf("invalid grep pattern: %w", err)
		}
	}

	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		RunID:   opts.runID,
		NoColor: opts.noColor,
	}, cmd.OutOrStdout())

	stderr := cmd.ErrOrStderr()
	_, _ = fmt.Fprintf(stderr, "Log file: %s\n", path)
	if opts.follow {
		_, _ = fmt.Fprintln(stderr, "Following... (Ctrl+C to stop)")
	}
	_, _ = fmt.Fprintln(stderr, "---")

	entries, err := viewer.Tail(path, opts.lines)
	if err != nil {
		return err
	}
	viewer.Print(entries)

	if !opts.follow {
		return nil
	}

	ch := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)
	go func() {
		errCh <- viewer.Follow(ctx, path, ch)
	}()

	for {
		select {
		case entry := <-ch:
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), viewer.FormatEntry(entry))
		case err := <-errCh:
			return err
		}
	}
}
