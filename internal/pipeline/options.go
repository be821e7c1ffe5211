package pipeline

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/Aman-CERP/prometheus/internal/archive"
	"github.com/Aman-CERP/prometheus/internal/evidence"
	"github.com/Aman-CERP/prometheus/internal/matcher"
)

// Default ceilings.
const (
	DefaultArchiveTimeout = 30 * time.Minute
	DefaultEntryTimeout   = 2 * time.Minute
)

// Options configures a scan. Zero values select defaults.
type Options struct {
	// Extensions is the archive extension allowlist. Empty means ".ufdr".
	Extensions []string

	// Formats is the document format allowlist. Empty allows every format.
	Formats []evidence.Format

	// ContextWindow is the number of characters kept on each side of a
	// match. Zero means matcher.DefaultContextWindow.
	ContextWindow int

	// Workers bounds the number of archives processed at once.
	// Zero means runtime.NumCPU().
	Workers int

	ArchiveTimeout time.Duration
	EntryTimeout   time.Duration

	// Limits guard the archive reader against hostile containers.
	Limits archive.Limits

	FollowSymlinks bool

	// TempDir receives private copies of embedded databases.
	TempDir string

	// Logger receives diagnostics. Nil discards them.
	Logger *slog.Logger

	// Progress, when set, is called from worker goroutines as archives and
	// entries finish. It must be safe for concurrent use.
	Progress func(ProgressEvent)

	// RunID tags every log line of the run. Empty generates one.
	RunID string
}

func (o Options) withDefaults() Options {
	if o.ContextWindow == 0 {
		o.ContextWindow = matcher.DefaultContextWindow
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.ArchiveTimeout <= 0 {
		o.ArchiveTimeout = DefaultArchiveTimeout
	}
	if o.EntryTimeout <= 0 {
		o.EntryTimeout = DefaultEntryTimeout
	}
	o.Limits = o.Limits.WithDefaults()
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// EventKind identifies a progress event.
type EventKind string

const (
	EventArchiveStart  EventKind = "archive-start"
	EventArchiveDone   EventKind = "archive-done"
	EventArchiveFailed EventKind = "archive-failed"
	EventEntryDone     EventKind = "entry-done"
)

// ProgressEvent reports scan progress.
type ProgressEvent struct {
	Kind    EventKind
	Archive string
	Entry   string // Set for entry-done

	// Entries is the number of routed entries (archive-start) or of entries
	// processed so far in the archive (entry-done).
	Entries int
	Matches int
	Err     error
}
