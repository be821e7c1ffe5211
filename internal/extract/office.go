package extract

import (
	"cmp"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/Aman-CERP/prometheus/internal/archive"
	"github.com/Aman-CERP/prometheus/internal/evidence"
	"github.com/Aman-CERP/prometheus/internal/textenc"
)

// officeExtractor handles word-processing and presentation packages:
// .docx and .pptx (OOXML), .odt and .odp (OpenDocument). Each paragraph is
// one unit located by its part and 1-based paragraph number.
type officeExtractor struct {
	limits archive.Limits
}

func (e *officeExtractor) Format() evidence.Format { return evidence.FormatOffice }

// officePart is one XML member to read and the component it is reported as.
type officePart struct {
	name      string
	component string
}

func (e *officeExtractor) Extract(ctx context.Context, entry evidence.Entry, archivePath string, emit Emit) error {
	pkg, err := openPackage(entry, e.limits)
	if err != nil {
		return err
	}
	u := newUnits(entry, archivePath, evidence.FormatOffice, emit)

	var (
		parts    []officePart
		required string
		odf      bool
	)
	switch strings.ToLower(path.Ext(entry.Path)) {
	case ".docx":
		required = "word/document.xml"
		parts = docxParts(pkg)
	case ".pptx":
		required = "ppt/presentation.xml"
		parts = pptxParts(pkg)
	default:
		required = "content.xml"
		odf = true
		parts = []officePart{{name: required}}
	}
	if !pkg.has(required) {
		return packageError(entry, "document has no content part", fmt.Errorf("missing part %s", required))
	}

	for _, p := range parts {
		if err := readOfficePart(ctx, pkg, p, odf, u); err != nil {
			return packageError(entry, "malformed document", err)
		}
	}
	return nil
}

// docxParts lists the body first, then headers, footers, notes and
// comments in name order.
func docxParts(pkg *zipPackage) []officePart {
	parts := []officePart{{name: "word/document.xml"}}
	var extra []string
	for _, name := range pkg.names("word/") {
		if strings.Contains(strings.TrimPrefix(name, "word/"), "/") || path.Ext(name) != ".xml" {
			continue
		}
		base := strings.TrimSuffix(path.Base(name), ".xml")
		switch {
		case strings.HasPrefix(base, "header"), strings.HasPrefix(base, "footer"),
			base == "footnotes", base == "endnotes", base == "comments":
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	for _, name := range extra {
		parts = append(parts, officePart{name: name, component: strings.TrimSuffix(path.Base(name), ".xml")})
	}
	return parts
}

// pptxParts lists slides in slide-number order.
func pptxParts(pkg *zipPackage) []officePart {
	type slide struct {
		n    int
		name string
	}
	var slides []slide
	for _, name := range pkg.names("ppt/slides/slide") {
		num := strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml")
		n, err := strconv.Atoi(num)
		if err != nil || path.Ext(name) != ".xml" {
			continue
		}
		slides = append(slides, slide{n: n, name: name})
	}
	slices.SortFunc(slides, func(a, b slide) int { return cmp.Compare(a.n, b.n) })

	parts := make([]officePart, 0, len(slides))
	for _, s := range slides {
		parts = append(parts, officePart{name: s.name, component: slideComponent(s.n)})
	}
	return parts
}

func slideComponent(n int) string {
	return "SLIDE#" + strconv.Itoa(n)
}

// readOfficePart emits the paragraphs of one part. OOXML keeps only the text
// of run elements (w:t, a:t) and tracked deletions (w:delText); OpenDocument keeps all character data inside
// text:p and text:h, and counts draw:page elements as slides.
func readOfficePart(ctx context.Context, pkg *zipPackage, p officePart, odf bool, u *units) error {
	d, c, err := pkg.decoder(p.name)
	if err != nil {
		return err
	}
	defer c.Close()

	var (
		text      strings.Builder
		depth     int // open paragraphs; text boxes and notes nest them
		inRun     bool
		inProps   int
		paragraph int
		page      int
	)
	component := p.component

	flush := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := textenc.Normalize([]byte(text.String()))
		text.Reset()
		return u.add(evidence.Locator{Component: component, Paragraph: paragraph}, n.Text, n.Encoding, n.Lossy)
	}

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
			switch name := t.Name.Local; {
			case odf && name == "page":
				page++
				paragraph = 0
				component = slideComponent(page)
			case name == "p" || (odf && name == "h"):
				if depth == 0 {
					paragraph++
					text.Reset()
				} else {
					text.WriteByte('\n')
				}
				depth++
			case depth == 0:
			case !odf && name == "pPr":
				inProps++
			case !odf && (name == "t" || name == "delText"):
				inRun = true
			case name == "tab" && inProps == 0:
				text.WriteByte('\t')
			case !odf && (name == "br" || name == "cr"):
				text.WriteByte('\n')
			case odf && name == "line-break":
				text.WriteByte('\n')
			case odf && name == "s":
				n, err := strconv.Atoi(attr(t, "c"))
				if err != nil || n < 1 {
					n = 1
				}
				text.WriteString(strings.Repeat(" ", n))
			}
		case xml.EndElement:
			switch name := t.Name.Local; {
			case name == "p" || (odf && name == "h"):
				if depth == 0 {
					continue
				}
				depth--
				if depth == 0 {
					if err := flush(); err != nil {
						return err
					}
				}
			case !odf && name == "pPr":
				inProps--
			case !odf && (name == "t" || name == "delText"):
				inRun = false
			}
		case xml.CharData:
			if depth > 0 && (odf || inRun) {
				text.Write(t)
			}
		}
	}
}
