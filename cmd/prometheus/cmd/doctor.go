package cmd

import (
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/prometheus/internal/config"
	perrors "github.com/Aman-CERP/prometheus/internal/errors"
	"github.com/Aman-CERP/prometheus/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor [root]",
		Short: "Check that a scan of root can run",
		Long: `Run the checks a scan depends on, without opening any archive.

Checks:
  - Scan root exists and can be listed
  - Every pattern compiles
  - Temp directory is writable and can hold the largest database entry
  - Report directory is writable
  - Open file limit covers the configured workers (warning only)`,
		Example: `  # Check the current directory
  prometheus doctor

  # JSON output for scripting
  prometheus doctor /cases/2024-117 --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			return runDoctor(cmd, root, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(cmd *cobra.Command, root string, verbose, jsonOutput bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	cwd, _ := os.Getwd()
	cfg, err := config.Load(absRoot, cwd)
	if err != nil {
		return doctorSetupError(cmd, err, jsonOutput)
	}
	defs, _, err := loadPatterns(cfg.Patterns.Path)
	if err != nil {
		return doctorSetupError(cmd, err, jsonOutput)
	}

	target := preflight.Target{
		Root:         absRoot,
		Patterns:     defs,
		TempDir:      cfg.Scan.TempDir,
		MinTempBytes: uint64(max(cfg.Limits.MaxEntryBytes, 0)),
		Workers:      cfg.Scan.Workers,
	}
	if cfg.Output.JSON != "" {
		target.OutputDir = filepath.Dir(cfg.Output.JSON)
	}

	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(ctx, target)

	if jsonOutput {
		if err := writeDoctorJSON(cmd, checker, results); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		return &exitError{code: ExitFailure, msg: "system check failed"}
	}
	return nil
}

// doctorReport is the JSON form of the check results.
type doctorReport struct {
	Status   string              `json:"status"`
	Checks   []doctorCheckReport `json:"checks"`
	Warnings []string            `json:"warnings,omitempty"`
	Errors   []string            `json:"errors,omitempty"`

	// Error is set when the checks could not run at all.
	Error json.RawMessage `json:"error,omitempty"`
}

type doctorCheckReport struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

func writeDoctorJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	report := doctorReport{
		Status: checker.SummaryStatus(results),
		Checks: make([]doctorCheckReport, len(results)),
	}

	for i, r := range results {
		report.Checks[i] = doctorCheckReport{
			Name:     r.Name,
			Status:   r.Status.String(),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		}
		switch {
		case r.IsCritical():
			report.Errors = append(report.Errors, r.Name+": "+r.Message)
		case r.Status != preflight.StatusPass:
			report.Warnings = append(report.Warnings, r.Name+": "+r.Message)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// doctorSetupError reports a configuration or pattern error that stops the
// checks before they start. In JSON mode the error is part of the report.
func doctorSetupError(cmd *cobra.Command, err error, jsonOutput bool) error {
	if !jsonOutput {
		return err
	}
	raw, jerr := perrors.FormatJSON(err)
	if jerr != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if werr := enc.Encode(doctorReport{Status: "failed", Checks: []doctorCheckReport{}, Error: raw}); werr != nil {
		return werr
	}
	return &exitError{code: ExitCode(err), msg: err.Error()}
}
