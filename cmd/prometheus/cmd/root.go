// Package cmd provides the CLI commands for Prometheus.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	perrors "github.com/Aman-CERP/prometheus/internal/errors"
	"github.com/Aman-CERP/prometheus/internal/profiling"
	"github.com/Aman-CERP/prometheus/pkg/version"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitFatal   = 2
)

// Debug logging flags
var (
	debugMode bool
	logFile   string
)

// Profiling flags
var (
	profiles profiling.Config
	profiler *profiling.Session
)

// NewRootCmd creates the root command for the prometheus CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prometheus",
		Short: "Forensic pattern scanner for mobile extraction archives",
		Long: `Prometheus searches forensic extraction archives (.ufdr) for patterns
such as tax IDs, e-mail addresses and phone numbers.

It opens every archive under a directory, reads the embedded SQLite
databases and documents (text, HTML, XML, PDF, Office, e-mail, calendar,
contacts), and writes one consolidated report in JSON and CSV.

Archives are never modified.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("prometheus version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.prometheus/logs/")
	cmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write the scan log to this file")
	cmd.PersistentFlags().StringVar(&profiles.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profiles.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profiles.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfiling

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newPatternsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfiling starts the profiles requested on the command line.
func startProfiling(_ *cobra.Command, _ []string) error {
	if !profiles.Enabled() {
		return nil
	}
	s, err := profiling.Start(profiles)
	if err != nil {
		return err
	}
	profiler = s
	return nil
}

// stopProfiling flushes the profiles. It runs after failed commands too,
// which cobra's post-run hooks do not.
func stopProfiling() error {
	err := profiler.Stop()
	profiler = nil
	return err
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := NewRootCmd().Execute()
	if perr := stopProfiling(); perr != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: %v\n", perr)
	}
	if err != nil {
		printError(os.Stderr, err)
	}
	return ExitCode(err)
}

// exitError carries an exit code for runs that finished but are not clean.
// Its message has already been shown to the user.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// ExitCode maps a command error to the process exit code: 2 for fatal
// configuration errors, 1 for any other failure.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if perrors.IsFatal(err) {
		return ExitFatal
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitFailure
}

func printError(w io.Writer, err error) {
	var ee *exitError
	if errors.As(err, &ee) {
		return
	}
	var pe *perrors.PrometheusError
	if errors.As(err, &pe) {
		_, _ = fmt.Fprint(w, perrors.FormatForCLI(err))
		return
	}
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
}
