package ui

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Aman-CERP/prometheus/internal/pipeline"
)

// PlainRenderer writes one line per archive event (for CI and pipes).
type PlainRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	tracker *ProgressTracker
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out:     cfg.Output,
		verbose: cfg.Verbose,
		tracker: NewProgressTracker(),
	}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(ev pipeline.ProgressEvent) {
	r.tracker.Record(ev)

	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case pipeline.EventArchiveStart:
		_, _ = fmt.Fprintf(r.out, "[SCAN] %s (%d entries)\n", ev.Archive, ev.Entries)
	case pipeline.EventEntryDone:
		if r.verbose {
			_, _ = fmt.Fprintf(r.out, "[ENTRY] %s!%s %d matches\n", ev.Archive, ev.Entry, ev.Matches)
		}
	case pipeline.EventArchiveDone:
		s := r.tracker.Stats()
		_, _ = fmt.Fprintf(r.out, "[DONE] %d/%d %s - %d matches\n",
			s.ArchivesDone+s.ArchivesFailed, s.ArchivesStarted, ev.Archive, ev.Matches)
	case pipeline.EventArchiveFailed:
		_, _ = fmt.Fprintf(r.out, "[FAIL] %s: %v\n", ev.Archive, ev.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(c CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := c.Stats
	_, _ = fmt.Fprintf(r.out, "Complete: %d archives (%d failed), %d matches in %s",
		s.ArchivesAttempted, s.ArchivesFailed, s.TotalMatches, c.Duration.Round(100*time.Millisecond))
	if s.Timeouts > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d timeouts)", s.Timeouts)
	}
	if s.Canceled {
		_, _ = fmt.Fprint(r.out, " [canceled]")
	}
	_, _ = fmt.Fprintln(r.out)

	for _, name := range slices.Sorted(maps.Keys(s.MatchesByPattern)) {
		_, _ = fmt.Fprintf(r.out, "  %-20s %d\n", name, s.MatchesByPattern[name])
	}
	for _, path := range c.Outputs {
		_, _ = fmt.Fprintf(r.out, "Wrote %s\n", path)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
