// Package extract turns document entries into located text units.
//
// Each supported format has one Extractor. The Registry holds the closed set
// of extractors and dispatches by the entry's inferred format.
package extract

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/Aman-CERP/prometheus/internal/archive"
	perrors "github.com/Aman-CERP/prometheus/internal/errors"
	"github.com/Aman-CERP/prometheus/internal/evidence"
	"github.com/Aman-CERP/prometheus/internal/textenc"
)

// Emit receives each unit as it is produced. Returning an error stops the
// extraction.
type Emit func(evidence.TextUnit) error

// Extractor decodes one document format.
type Extractor interface {
	Format() evidence.Format
	Extract(ctx context.Context, entry evidence.Entry, archivePath string, emit Emit) error
}

// Options configures the registry.
type Options struct {
	// Logger receives diagnostics. Nil uses slog.Default().
	Logger *slog.Logger

	// Limits bound the members of zip-based documents (OOXML and
	// OpenDocument). Zero fields select the archive defaults.
	Limits archive.Limits
}

// Registry maps formats to extractors.
type Registry struct {
	extractors map[evidence.Format]Extractor
	logger     *slog.Logger
}

// NewRegistry creates a registry holding every supported extractor.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{extractors: make(map[evidence.Format]Extractor), logger: logger}
	r.register(newEmailExtractor())
	r.register(newPDFExtractor(logger))
	limits := opts.Limits.WithDefaults()
	r.register(&spreadsheetExtractor{limits: limits})
	r.register(&officeExtractor{limits: limits})
	r.register(&delimitedExtractor{})
	r.register(&calendarExtractor{})
	r.register(&contactExtractor{})
	r.register(&textExtractor{})
	return r
}

func (r *Registry) register(e Extractor) {
	r.extractors[e.Format()] = e
}

// Get returns the extractor for a format.
func (r *Registry) Get(f evidence.Format) (Extractor, bool) {
	e, ok := r.extractors[f]
	return e, ok
}

// Formats returns the supported formats in a stable order.
func (r *Registry) Formats() []evidence.Format {
	out := make([]evidence.Format, 0, len(r.extractors))
	for f := range r.extractors {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// Extract dispatches the entry to the extractor of its format.
func (r *Registry) Extract(ctx context.Context, entry evidence.Entry, archivePath string, emit Emit) error {
	e, ok := r.Get(entry.Format)
	if !ok {
		return perrors.EntryReadError(entry.Path, "no extractor for format "+string(entry.Format), nil)
	}
	return e.Extract(ctx, entry, archivePath, emit)
}

// readEntry loads the whole (bounded) payload of an entry.
func readEntry(entry evidence.Entry) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, perrors.EntryReadError(entry.Path, "failed to open entry", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, perrors.EntryReadError(entry.Path, "failed to read entry", err)
	}
	return data, nil
}

// units builds text units that share the provenance of one entry.
type units struct {
	base evidence.TextUnit
	emit Emit
}

func newUnits(entry evidence.Entry, archivePath string, format evidence.Format, emit Emit) *units {
	return &units{
		base: evidence.TextUnit{
			ArchivePath:   archivePath,
			EntryPath:     entry.Path,
			ExtractorKind: format,
			Timestamp:     entry.Modified,
		},
		emit: emit,
	}
}

// add emits text unless it is blank.
func (u *units) add(loc evidence.Locator, text, encoding string, lossy bool) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	unit := u.base
	unit.Locator = loc
	unit.Text = text
	unit.Encoding = encoding
	unit.Lossy = lossy
	return u.emit(unit)
}

// addNormalized emits text that still needs encoding detection.
func (u *units) addNormalized(loc evidence.Locator, raw []byte) error {
	n := textenc.Normalize(raw)
	return u.add(loc, n.Text, n.Encoding, n.Lossy)
}

// lines emits one unit per non-blank line. first is the number of the first
// line; loc supplies the locator for a line number.
func (u *units) lines(ctx context.Context, text string, first int, enc textenc.Result, loc func(line int) evidence.Locator) error {
	n := first
	for line := range strings.Lines(text) {
		if err := ctx.Err(); err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		if err := u.add(loc(n), line, enc.Encoding, enc.Lossy); err != nil {
			return err
		}
		n++
	}
	return nil
}

func lineLocator(line int) evidence.Locator {
	return evidence.Locator{Line: line}
}
