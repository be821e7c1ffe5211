// Package evidence defines the data model shared by every stage of the scan
// pipeline: manifests of archive entries, extracted text units, match records
// and the consolidated scan result.
package evidence

import (
	"cmp"
	"io"
	"strconv"
	"strings"
	"time"
)

// Kind is the inferred class of a manifest entry. It selects exactly one
// extraction path.
type Kind string

const (
	KindDatabase Kind = "database"
	KindDocument Kind = "document"
	KindUnknown  Kind = "unknown"
)

// Format identifies the concrete decoder for an entry.
type Format string

const (
	FormatSQLite      Format = "sqlite"
	FormatEmail       Format = "email"
	FormatPDF         Format = "pdf"
	FormatSpreadsheet Format = "spreadsheet"
	FormatOffice      Format = "office"
	FormatDelimited   Format = "delimited"
	FormatCalendar    Format = "calendar"
	FormatContact     Format = "contact"
	FormatText        Format = "text"
	FormatNone        Format = ""
)

// DocumentFormats returns the recognized document formats in a fixed order.
func DocumentFormats() []Format {
	return []Format{
		FormatEmail,
		FormatPDF,
		FormatSpreadsheet,
		FormatOffice,
		FormatDelimited,
		FormatCalendar,
		FormatContact,
		FormatText,
	}
}

// ParseFormat converts a format name to a document Format.
func ParseFormat(s string) (Format, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, f := range DocumentFormats() {
		if string(f) == s {
			return f, true
		}
	}
	return FormatNone, false
}

// Entry is one file-like object inside an archive (a manifest entry).
// Content is never loaded eagerly: readers call Open when they need it.
type Entry struct {
	Path           string    // Internal path, unique within the manifest
	Size           int64     // Declared uncompressed size
	CompressedSize int64     // Declared compressed size
	Kind           Kind      // database, document or unknown
	Format         Format    // Decoder selected for the entry
	Modified       time.Time // Modification time stored in the container (UTC)

	open func() (io.ReadCloser, error)
}

// NewEntry creates an entry whose content is read through open.
func NewEntry(path string, size int64, kind Kind, format Format, modified time.Time, open func() (io.ReadCloser, error)) Entry {
	return Entry{
		Path:     path,
		Size:     size,
		Kind:     kind,
		Format:   format,
		Modified: modified,
		open:     open,
	}
}

// Open returns a reader over the entry payload.
func (e Entry) Open() (io.ReadCloser, error) {
	if e.open == nil {
		return nil, io.ErrUnexpectedEOF
	}
	return e.open()
}

// Manifest lists the entries of one archive in container order.
type Manifest struct {
	ArchivePath string
	Entries     []Entry
}

// Locator pinpoints a text unit inside its entry. Only the fields meaningful
// for the extractor are set; Row, Page, Paragraph and Line are 1-based when set except
// database rows, which use the 0-based storage ordinal.
type Locator struct {
	Table     string `json:"table,omitempty"`
	Sheet     string `json:"sheet,omitempty"`
	Component string `json:"component,omitempty"`
	Part      int    `json:"part,omitempty"`
	Row       int    `json:"row,omitempty"`
	Column    string `json:"column,omitempty"`
	Page      int    `json:"page,omitempty"`
	Paragraph int    `json:"paragraph,omitempty"`
	Line      int    `json:"line,omitempty"`
	Field     string `json:"field,omitempty"`

	// HasRow distinguishes database row 0 from "no row".
	HasRow bool `json:"-"`
}

// String renders the locator as stable key=value pairs.
func (l Locator) String() string {
	var parts []string
	add := func(k, v string) { parts = append(parts, k+"="+v) }

	if l.Table != "" {
		add("table", l.Table)
	}
	if l.Sheet != "" {
		add("sheet", l.Sheet)
	}
	if l.Component != "" {
		add("component", l.Component)
	}
	if l.Part > 0 {
		add("part", strconv.Itoa(l.Part))
	}
	if l.HasRow || l.Row > 0 {
		add("row", strconv.Itoa(l.Row))
	}
	if l.Column != "" {
		add("column", l.Column)
	}
	if l.Page > 0 {
		add("page", strconv.Itoa(l.Page))
	}
	if l.Paragraph > 0 {
		add("paragraph", strconv.Itoa(l.Paragraph))
	}
	if l.Line > 0 {
		add("line", strconv.Itoa(l.Line))
	}
	if l.Field != "" {
		add("field", l.Field)
	}
	return strings.Join(parts, ";")
}

// Compare orders locators field by field, numerically for numeric fields.
func (l Locator) Compare(o Locator) int {
	return cmp.Or(
		cmp.Compare(l.Table, o.Table),
		cmp.Compare(l.Sheet, o.Sheet),
		cmp.Compare(l.Component, o.Component),
		cmp.Compare(l.Part, o.Part),
		cmp.Compare(l.Row, o.Row),
		cmp.Compare(l.Column, o.Column),
		cmp.Compare(l.Page, o.Page),
		cmp.Compare(l.Paragraph, o.Paragraph),
		cmp.Compare(l.Line, o.Line),
		cmp.Compare(l.Field, o.Field),
	)
}

// TextUnit is one unit of extracted plain text with full provenance. It is
// the atomic input to pattern matching and is never mutated after creation.
type TextUnit struct {
	ArchivePath   string
	EntryPath     string
	ExtractorKind Format
	Locator       Locator
	Text          string
	Timestamp     time.Time // Entry modification time, not wall-clock
	Encoding      string    // Source encoding the text was decoded from
	Lossy         bool      // True when a best-effort lossy decode was used
}

// MatchRecord is one pattern hit, traceable to its archive, entry, text unit
// and pattern definition.
type MatchRecord struct {
	ArchivePath   string
	EntryPath     string
	ExtractorKind Format
	Pattern       string
	Value         string
	Context       string
	Locator       Locator
	Offset        int // Rune offset of the match inside the unit text
	Timestamp     time.Time
	Lossy         bool
}

// Compare orders records by (archive, entry, pattern, locator, offset, value).
func (r MatchRecord) Compare(o MatchRecord) int {
	return cmp.Or(
		cmp.Compare(r.ArchivePath, o.ArchivePath),
		cmp.Compare(r.EntryPath, o.EntryPath),
		cmp.Compare(r.Pattern, o.Pattern),
		r.Locator.Compare(o.Locator),
		cmp.Compare(r.Offset, o.Offset),
		cmp.Compare(r.Value, o.Value),
		cmp.Compare(r.ExtractorKind, o.ExtractorKind),
	)
}

// Key identifies a record for deduplication. Two records with the same key
// are the same finding.
type Key struct {
	ArchivePath   string
	EntryPath     string
	ExtractorKind Format
	Pattern       string
	Value         string
	Locator       Locator
	Offset        int
}

// Key returns the deduplication key of the record.
func (r MatchRecord) Key() Key {
	return Key{
		ArchivePath:   r.ArchivePath,
		EntryPath:     r.EntryPath,
		ExtractorKind: r.ExtractorKind,
		Pattern:       r.Pattern,
		Value:         r.Value,
		Locator:       r.Locator,
		Offset:        r.Offset,
	}
}
