// Package output provides consistent CLI output formatting.
package output

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/Aman-CERP/prometheus/internal/evidence"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Code prints a block with each line indented.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Summary prints the end-of-run report: archive counts, matches per
// pattern, skipped entries and every failure.
func (w *Writer) Summary(res *evidence.ScanResult) {
	if res == nil {
		res = &evidence.ScanResult{}
	}
	s := res.Stats

	w.Newline()
	switch {
	case s.Canceled:
		w.Warningf("Scan canceled: %d of %d archives completed", s.ArchivesSucceeded, s.ArchivesAttempted)
	case s.ArchivesFailed > 0:
		w.Warningf("Scanned %d archives: %d succeeded, %d failed", s.ArchivesAttempted, s.ArchivesSucceeded, s.ArchivesFailed)
	default:
		w.Successf("Scanned %d archives", s.ArchivesAttempted)
	}

	if s.TotalMatches == 0 {
		w.Status("", "No matches")
	} else {
		w.Statusf("🔎", "%d matches", s.TotalMatches)
		for _, name := range slices.Sorted(maps.Keys(s.MatchesByPattern)) {
			w.Statusf("", "%-20s %d", name, s.MatchesByPattern[name])
		}
	}

	if len(s.EntriesSkipped) > 0 {
		var parts []string
		for _, reason := range slices.Sorted(maps.Keys(s.EntriesSkipped)) {
			parts = append(parts, fmt.Sprintf("%s=%d", reason, s.EntriesSkipped[reason]))
		}
		w.Statusf("", "Skipped entries: %s", strings.Join(parts, " "))
	}
	if s.BlobCellsSkipped > 0 {
		w.Statusf("", "Binary cells skipped: %d", s.BlobCellsSkipped)
	}
	if s.LossyUnits > 0 {
		w.Statusf("", "Units decoded with replacement characters: %d", s.LossyUnits)
	}
	if s.Timeouts > 0 {
		w.Warningf("%d units timed out", s.Timeouts)
	}

	for _, f := range s.Failures {
		w.Errorf("%s: %s (%s)", f.Archive, f.Reason, f.Code)
	}
	for _, f := range s.EntryFailures {
		w.Errorf("%s!%s: %s (%s)", f.Archive, f.Entry, f.Reason, f.Code)
	}
}
