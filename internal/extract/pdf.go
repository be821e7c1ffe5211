package extract

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	perrors "github.com/Aman-CERP/prometheus/internal/errors"
	"github.com/Aman-CERP/prometheus/internal/evidence"
	"github.com/Aman-CERP/prometheus/internal/textenc"
)

// pdfConfigOnce keeps pdfcpu from creating a configuration directory under
// the user's home.
var pdfConfigOnce sync.Once

// pdfExtractor emits one unit per page, located by page number.
type pdfExtractor struct {
	logger *slog.Logger
}

func newPDFExtractor(logger *slog.Logger) *pdfExtractor {
	pdfConfigOnce.Do(api.DisableConfigDir)
	return &pdfExtractor{logger: logger}
}

func (e *pdfExtractor) Format() evidence.Format { return evidence.FormatPDF }

func (e *pdfExtractor) Extract(ctx context.Context, entry evidence.Entry, archivePath string, emit Emit) error {
	data, err := readEntry(entry)
	if err != nil {
		return err
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return perrors.EntryReadError(entry.Path, "unreadable PDF", err)
	}

	u := newUnits(entry, archivePath, evidence.FormatPDF, emit)
	for page := 1; page <= pdfCtx.PageCount; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, err := pdfcpu.ExtractPageContent(pdfCtx, page)
		if err != nil || r == nil {
			e.logger.Debug("pdf page without content",
				slog.String("entry", entry.Path),
				slog.Int("page", page))
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return perrors.EntryReadError(entry.Path, "failed to read page content", err)
		}

		n := textenc.Normalize([]byte(streamText(content)))
		if err := u.add(evidence.Locator{Page: page}, n.Text, n.Encoding, n.Lossy); err != nil {
			return err
		}
	}
	return nil
}

// streamText collects the strings shown by the text operators of a content
// stream (Tj, TJ, ' and "). Positioning operators become line breaks.
func streamText(data []byte) string {
	var sb strings.Builder
	var operands []string
	s := &pdfScanner{data: data}

	// broken is true right after a line break was written.
	broken := true
	show := func() {
		if text := strings.Join(operands, ""); text != "" {
			sb.WriteString(text)
			broken = false
		}
	}
	newline := func() {
		if !broken {
			sb.WriteByte('\n')
			broken = true
		}
	}

	for {
		tok, kind := s.next()
		switch kind {
		case tokEOF:
			return strings.TrimSpace(sb.String())
		case tokString:
			operands = append(operands, tok)
		case tokSpace:
			operands = append(operands, " ")
		case tokOperator:
			switch tok {
			case "Tj", "TJ":
				show()
			case "'", `"`:
				newline()
				show()
			case "T*", "Td", "TD", "Tm", "ET":
				newline()
			}
			operands = operands[:0]
		}
	}
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokSpace    // Large negative kerning inside a TJ array
	tokOperator // Any bare keyword
	tokOther
)

// pdfScanner is a minimal content stream lexer. It understands literal and
// hex strings, arrays and numbers well enough to pull out shown text.
type pdfScanner struct {
	data []byte
	pos  int
}

func (s *pdfScanner) next() (string, tokenKind) {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		switch {
		case isPDFSpace(c):
			s.pos++
		case c == '%':
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
		case c == '(':
			return s.literal(), tokString
		case c == '<' && s.pos+1 < len(s.data) && s.data[s.pos+1] == '<':
			s.pos += 2
			return "<<", tokOther
		case c == '<':
			return s.hex(), tokString
		case c == '[' || c == ']' || c == '{' || c == '}' || c == '>':
			s.pos++
			return string(c), tokOther
		case c == '/':
			s.pos++
			s.word()
			return "", tokOther
		case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
			num := s.word()
			// TJ kerning past a word gap reads as a space.
			if strings.HasPrefix(num, "-") && len(num) > 1 && pdfKernIsGap(num) {
				return " ", tokSpace
			}
			return num, tokOther
		default:
			return s.word(), tokOperator
		}
	}
	return "", tokEOF
}

func (s *pdfScanner) word() string {
	start := s.pos
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if isPDFSpace(c) || strings.IndexByte("()<>[]{}/%", c) >= 0 {
			break
		}
		s.pos++
	}
	if s.pos == start {
		// Lone delimiter; consume it so the lexer always advances.
		s.pos++
	}
	return string(s.data[start:s.pos])
}

// literal reads a balanced parenthesized string and decodes its escapes.
func (s *pdfScanner) literal() string {
	s.pos++ // (
	depth := 1
	var out []byte
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= len(s.data) {
				return string(out)
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r', '\n':
				// Line continuation.
				if e == '\r' && s.pos < len(s.data) && s.data[s.pos] == '\n' {
					s.pos++
				}
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '7'; i++ {
						v = v*8 + int(s.data[s.pos]-'0')
						s.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return string(out)
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// hex reads a <...> string and returns its raw bytes.
func (s *pdfScanner) hex() string {
	s.pos++ // <
	var out []byte
	var hi byte
	half := false
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			break
		}
		v, ok := hexValue(c)
		if !ok {
			continue
		}
		if half {
			out = append(out, hi<<4|v)
		} else {
			hi = v
		}
		half = !half
	}
	if half {
		out = append(out, hi<<4)
	}
	return string(out)
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == 0
}

// pdfKernIsGap reports whether a negative TJ adjustment is wide enough to be
// a word gap (in thousandths of an em).
func pdfKernIsGap(num string) bool {
	digits := strings.TrimLeft(num[1:], "0")
	if i := strings.IndexByte(digits, '.'); i >= 0 {
		digits = digits[:i]
	}
	return len(digits) >= 3
}
