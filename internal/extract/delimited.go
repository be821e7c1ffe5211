package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/Aman-CERP/prometheus/internal/evidence"
	"github.com/Aman-CERP/prometheus/internal/textenc"
)

// cellSeparator joins the cells of one record into a single unit.
const cellSeparator = " | "

// delimitedExtractor handles CSV and TSV. Each record is one unit located at
// the line it starts on.
type delimitedExtractor struct{}

func (e *delimitedExtractor) Format() evidence.Format { return evidence.FormatDelimited }

func (e *delimitedExtractor) Extract(ctx context.Context, entry evidence.Entry, archivePath string, emit Emit) error {
	data, err := readEntry(entry)
	if err != nil {
		return err
	}
	u := newUnits(entry, archivePath, evidence.FormatDelimited, emit)
	norm := textenc.Normalize(data)

	comma := ','
	if strings.EqualFold(path.Ext(entry.Path), ".tsv") {
		comma = '\t'
	}

	records, err := parseDelimited(norm.Text, comma)
	if err != nil {
		// Unparseable quoting: fall back to raw lines.
		return u.lines(ctx, norm.Text, 1, norm, lineLocator)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := u.add(lineLocator(rec.line), strings.Join(rec.cells, cellSeparator), norm.Encoding, norm.Lossy); err != nil {
			return err
		}
	}
	return nil
}

type record struct {
	line  int
	cells []string
}

// parseDelimited reads every record before any unit is emitted so a parse
// failure never leaves half an entry behind.
func parseDelimited(text string, comma rune) ([]record, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = comma
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	var out []record
	for {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := r.FieldPos(0)
		out = append(out, record{line: line, cells: cells})
	}
}
