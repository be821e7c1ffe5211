package extract

import (
	"bytes"
	"context"
	"path"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/Aman-CERP/prometheus/internal/evidence"
	"github.com/Aman-CERP/prometheus/internal/textenc"
)

// textExtractor handles plain text, markup and RTF. Units are source lines.
type textExtractor struct{}

func (e *textExtractor) Format() evidence.Format { return evidence.FormatText }

func (e *textExtractor) Extract(ctx context.Context, entry evidence.Entry, archivePath string, emit Emit) error {
	data, err := readEntry(entry)
	if err != nil {
		return err
	}
	u := newUnits(entry, archivePath, evidence.FormatText, emit)
	norm := textenc.Normalize(data)

	switch strings.ToLower(path.Ext(entry.Path)) {
	case ".html", ".htm", ".xml":
		return markupLines(ctx, u, norm)
	case ".rtf":
		return u.lines(ctx, stripRTF(norm.Text), 1, norm, lineLocator)
	default:
		return u.lines(ctx, norm.Text, 1, norm, lineLocator)
	}
}

// markupLines emits the text nodes of an HTML or XML document, keeping
// source line numbers. CDATA sections count as text; script and style
// content is dropped.
func markupLines(ctx context.Context, u *units, norm textenc.Result) error {
	z := html.NewTokenizer(strings.NewReader(norm.Text))
	// CDATA sections carry message bodies in XML exports; read them as text.
	z.AllowCDATA(true)
	line := 1
	skip := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF or a malformed tail; either way the text so far stands.
			return nil
		}
		raw := z.Raw()
		start := line
		line += bytes.Count(raw, []byte{'\n'})

		switch tt {
		case html.StartTagToken:
			if isHiddenElement(z) {
				skip++
			}
		case html.EndTagToken:
			if skip > 0 && isHiddenElement(z) {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if err := u.lines(ctx, string(z.Text()), start, norm, lineLocator); err != nil {
				return err
			}
		}
	}
}

func isHiddenElement(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	a := atom.Lookup(name)
	return a == atom.Script || a == atom.Style
}

var (
	rtfHex     = regexp.MustCompile(`\\'([0-9a-fA-F]{2})`)
	rtfUnicode = regexp.MustCompile(`\\u(-?\d+) ?\??`)
	rtfControl = regexp.MustCompile(`\\([a-zA-Z]+)-?\d* ?`)
	rtfGroup   = regexp.MustCompile(`\{\\\*[^{}]*\}`)
)

// stripRTF removes control words and groups from RTF, keeping line breaks.
// Hex escapes are decoded as Windows-1252.
func stripRTF(s string) string {
	// Source line breaks carry no meaning in RTF; \par and \line do.
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	s = rtfGroup.ReplaceAllString(s, "")
	s = rtfUnicode.ReplaceAllStringFunc(s, func(m string) string {
		sub := rtfUnicode.FindStringSubmatch(m)
		n, err := strconv.Atoi(sub[1])
		if err != nil {
			return ""
		}
		if n < 0 {
			n += 65536
		}
		return string(rune(n))
	})
	s = rtfHex.ReplaceAllStringFunc(s, func(m string) string {
		b, err := strconv.ParseUint(m[2:], 16, 8)
		if err != nil {
			return ""
		}
		return textenc.Normalize([]byte{byte(b)}).Text
	})
	s = rtfControl.ReplaceAllStringFunc(s, func(m string) string {
		switch rtfControl.FindStringSubmatch(m)[1] {
		case "par", "line":
			return "\n"
		case "tab":
			return "\t"
		}
		return ""
	})
	s = strings.NewReplacer(`\{`, "{", `\}`, "}", `\\`, `\`, "{", "", "}", "").Replace(s)
	return s
}
