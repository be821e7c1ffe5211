package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/prometheus/internal/matcher"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Target describes the scan being checked. Empty fields fall back to
// defaults: the system temp dir, no report directory, the built-in
// patterns already parsed by the caller.
type Target struct {
	Root      string
	Patterns  []matcher.Definition
	TempDir   string
	OutputDir string
	// MinTempBytes is the free space the temp dir needs, normally the
	// largest database entry that may be materialized.
	MinTempBytes uint64
	Workers      int
}

// Checker performs preflight validation checks.
type Checker struct {
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check for target and returns the results in order.
func (c *Checker) RunAll(ctx context.Context, target Target) []CheckResult {
	tempDir := target.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	checks := []func() CheckResult{
		func() CheckResult { return c.CheckScanRoot(target.Root) },
		func() CheckResult { return c.CheckPatterns(target.Patterns) },
		func() CheckResult { return c.CheckWritable("temp_dir", tempDir) },
		func() CheckResult { return c.CheckDiskSpace("temp_space", tempDir, target.MinTempBytes) },
	}
	if target.OutputDir != "" {
		checks = append(checks, func() CheckResult { return c.CheckWritable("output_dir", target.OutputDir) })
	}
	checks = append(checks, func() CheckResult { return c.CheckFileDescriptors(target.Workers) })

	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		if ctx.Err() != nil {
			break
		}
		results = append(results, check())
	}
	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns "failed", "ready_with_warnings" or "ready".
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status == StatusWarn || r.Status == StatusFail {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "Prometheus Scan Check")
	_, _ = fmt.Fprintln(c.output, "=====================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var warnings, errors []string
	for _, r := range results {
		if r.IsCritical() {
			errors = append(errors, r.Name+": "+r.Message)
		} else if r.Status != StatusPass {
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}

	if len(errors) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d error(s):\n", len(errors))
		for _, e := range errors {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", e)
		}
	}

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d warning(s):\n", len(warnings))
		for _, w := range warnings {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", w)
		}
	}
}

// CheckScanRoot checks that root is a directory that can be listed.
func (c *Checker) CheckScanRoot(root string) CheckResult {
	result := CheckResult{
		Name:     "scan_root",
		Required: true,
	}

	info, err := os.Stat(root)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot access %s: %v", root, err)
		return result
	}
	if !info.IsDir() {
		result.Status = StatusFail
		result.Message = root + " is not a directory"
		return result
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot list %s: %v", root, err)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d entries at top level)", root, len(entries))
	return result
}

// CheckPatterns compiles every definition.
func (c *Checker) CheckPatterns(defs []matcher.Definition) CheckResult {
	result := CheckResult{
		Name:     "patterns",
		Required: true,
	}

	m, err := matcher.Compile(defs, matcher.Options{})
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d patterns compile", len(m.Names()))
	result.Details = strings.Join(m.Names(), ", ")
	return result
}

// CheckWritable checks that a file can be created in dir, or in its
// nearest existing parent when dir does not exist yet.
func (c *Checker) CheckWritable(name, dir string) CheckResult {
	result := CheckResult{
		Name:     name,
		Required: true,
	}

	existing := nearestExisting(dir)
	f, err := os.CreateTemp(existing, ".prometheus-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = "OK"
	if existing != dir {
		result.Details = fmt.Sprintf("%s will be created under %s", dir, existing)
	}
	return result
}

// nearestExisting returns dir or its closest ancestor that exists.
func nearestExisting(dir string) string {
	dir = filepath.Clean(dir)
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
