// Package ui provides terminal progress display for scans.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/prometheus/internal/evidence"
	"github.com/Aman-CERP/prometheus/internal/pipeline"
)

// CompletionStats summarizes a finished scan for display.
type CompletionStats struct {
	Stats    evidence.RunStats
	Duration time.Duration
	Outputs  []string // Report files written
}

// Renderer displays scan progress.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress consumes one pipeline event. It is called from
	// worker goroutines and must be safe for concurrent use.
	UpdateProgress(event pipeline.ProgressEvent)

	// Complete shows the final summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and restores the terminal.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Root       string // Evidence root shown in the header
	Verbose    bool   // Plain mode prints every entry

	// OnInterrupt is called when the user presses q or Ctrl+C in the TUI,
	// which holds the terminal in raw mode so no SIGINT is delivered.
	OnInterrupt func()
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithRoot sets the evidence root displayed in the header.
func WithRoot(root string) ConfigOption {
	return func(c *Config) {
		c.Root = root
	}
}

// WithVerbose makes the plain renderer print entry-level progress.
func WithVerbose(v bool) ConfigOption {
	return func(c *Config) {
		c.Verbose = v
	}
}

// WithInterrupt sets the callback for a user interrupt in the TUI.
func WithInterrupt(fn func()) ConfigOption {
	return func(c *Config) {
		c.OnInterrupt = fn
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns a TUI renderer for interactive terminals and a plain
// renderer for CI, pipes, or when --no-tui is given.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
