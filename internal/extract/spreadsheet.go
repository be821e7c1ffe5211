package extract

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/Aman-CERP/prometheus/internal/archive"
	"github.com/Aman-CERP/prometheus/internal/evidence"
	"github.com/Aman-CERP/prometheus/internal/textenc"
)

// spreadsheetExtractor handles OOXML workbooks (.xlsx) and OpenDocument
// spreadsheets (.ods). Each non-empty cell is one unit.
type spreadsheetExtractor struct {
	limits archive.Limits
}

func (e *spreadsheetExtractor) Format() evidence.Format { return evidence.FormatSpreadsheet }

func (e *spreadsheetExtractor) Extract(ctx context.Context, entry evidence.Entry, archivePath string, emit Emit) error {
	book, err := openPackage(entry, e.limits)
	if err != nil {
		return err
	}

	u := newUnits(entry, archivePath, evidence.FormatSpreadsheet, emit)
	cell := func(sheet string, row, col int, text string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := textenc.Normalize([]byte(text))
		loc := evidence.Locator{Sheet: sheet, Row: row, Column: columnName(col)}
		return u.add(loc, n.Text, n.Encoding, n.Lossy)
	}

	if strings.EqualFold(path.Ext(entry.Path), ".ods") {
		err = readODS(book, cell)
	} else {
		err = readXLSX(book, cell)
	}
	return packageError(entry, "malformed spreadsheet", err)
}

// cellFunc receives one cell; row and col are 1-based.
type cellFunc func(sheet string, row, col int, text string) error

type xlsxSheet struct {
	name   string
	target string
}

func readXLSX(book *zipPackage, cell cellFunc) error {
	shared, err := xlsxSharedStrings(book)
	if err != nil {
		return err
	}
	sheets, err := xlsxSheets(book)
	if err != nil {
		return err
	}
	for _, s := range sheets {
		if err := xlsxReadSheet(book, s, shared, cell); err != nil {
			return err
		}
	}
	return nil
}

// xlsxSheets lists sheets in workbook order with their resolved part names.
func xlsxSheets(book *zipPackage) ([]xlsxSheet, error) {
	targets := make(map[string]string)
	if rels := "xl/_rels/workbook.xml.rels"; book.has(rels) {
		d, c, err := book.decoder(rels)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		for {
			tok, err := d.Token()
			if err != nil {
				break
			}
			if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "Relationship" {
				targets[attr(se, "Id")] = attr(se, "Target")
			}
		}
	}

	d, c, err := book.decoder("xl/workbook.xml")
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var sheets []xlsxSheet
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "sheet" {
			continue
		}
		target := targets[attr(se, "id")]
		if target == "" {
			target = fmt.Sprintf("worksheets/sheet%d.xml", len(sheets)+1)
		}
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = path.Join("xl", target)
		}
		sheets = append(sheets, xlsxSheet{name: attr(se, "name"), target: target})
	}
	return sheets, nil
}

func xlsxSharedStrings(book *zipPackage) ([]string, error) {
	const name = "xl/sharedStrings.xml"
	if !book.has(name) {
		// Workbooks without text cells have no shared string table.
		return nil, nil
	}
	d, c, err := book.decoder(name)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var (
		out      []string
		current  strings.Builder
		inText   bool
		phonetic int
	)
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "si":
				current.Reset()
			case "t":
				inText = true
			case "rPh":
				phonetic++
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "si":
				out = append(out, current.String())
			case "t":
				inText = false
			case "rPh":
				phonetic--
			}
		case xml.CharData:
			if inText && phonetic == 0 {
				current.Write(t)
			}
		}
	}
}

func xlsxReadSheet(book *zipPackage, s xlsxSheet, shared []string, cell cellFunc) error {
	d, c, err := book.decoder(s.target)
	if err != nil {
		return err
	}
	defer c.Close()

	var (
		row, col  int
		cellType  string
		value     strings.Builder
		inValue   bool
		inInline  bool
		inText    bool
		haveValue bool
	)
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "row":
				if r, err := strconv.Atoi(attr(t, "r")); err == nil {
					row = r
				} else {
					row++
				}
				col = 0
			case "c":
				cellType = attr(t, "t")
				if r, cc, ok := parseCellRef(attr(t, "r")); ok {
					row, col = r, cc
				} else {
					col++
				}
				value.Reset()
				haveValue = false
			case "v":
				inValue = true
			case "is":
				inInline = true
			case "t":
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "v":
				inValue = false
			case "is":
				inInline = false
			case "t":
				inText = false
			case "c":
				if !haveValue {
					continue
				}
				text := value.String()
				if cellType == "s" {
					i, err := strconv.Atoi(strings.TrimSpace(text))
					if err != nil || i < 0 || i >= len(shared) {
						continue
					}
					text = shared[i]
				}
				if err := cell(s.name, row, col, text); err != nil {
					return err
				}
			}
		case xml.CharData:
			if inValue || (inInline && inText) {
				value.Write(t)
				haveValue = true
			}
		}
	}
}

func readODS(book *zipPackage, cell cellFunc) error {
	d, c, err := book.decoder("content.xml")
	if err != nil {
		return err
	}
	defer c.Close()

	var (
		sheet     string
		row, col  int
		rowRepeat int
		repeat    int
		text      strings.Builder
		inCell    bool
		paragraph int
	)
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "table":
				sheet = attr(t, "name")
				row = 0
			case "table-row":
				row++
				col = 0
				rowRepeat = 1
				if n, err := strconv.Atoi(attr(t, "number-rows-repeated")); err == nil && n > 1 {
					rowRepeat = n
				}
			case "table-cell", "covered-table-cell":
				inCell = true
				paragraph = 0
				text.Reset()
				repeat = 1
				if n, err := strconv.Atoi(attr(t, "number-columns-repeated")); err == nil && n > 1 {
					repeat = n
				}
				col++
			case "p":
				if inCell && paragraph > 0 {
					text.WriteByte('\n')
				}
				paragraph++
			case "s":
				if inCell {
					text.WriteByte(' ')
				}
			case "tab":
				if inCell {
					text.WriteByte('\t')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "table-row":
				row += rowRepeat - 1
			case "table-cell", "covered-table-cell":
				inCell = false
				if s := text.String(); strings.TrimSpace(s) != "" {
					if err := cell(sheet, row, col, s); err != nil {
						return err
					}
				}
				// Repeated cells share one unit at their first column.
				col += repeat - 1
			}
		case xml.CharData:
			if inCell {
				text.Write(t)
			}
		}
	}
}

// attr returns the value of the attribute with the given local name.
func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// parseCellRef splits an A1-style reference into 1-based row and column.
func parseCellRef(ref string) (row, col int, ok bool) {
	i := 0
	for i < len(ref) && ((ref[i] >= 'A' && ref[i] <= 'Z') || (ref[i] >= 'a' && ref[i] <= 'z')) {
		c := ref[i]
		if c >= 'a' {
			c -= 'a' - 'A'
		}
		col = col*26 + int(c-'A'+1)
		i++
	}
	if i == 0 || i == len(ref) {
		return 0, 0, false
	}
	row, err := strconv.Atoi(ref[i:])
	if err != nil {
		return 0, 0, false
	}
	return row, col, true
}

// columnName renders a 1-based column index as spreadsheet letters.
func columnName(col int) string {
	if col <= 0 {
		return ""
	}
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}
