// Package textenc normalizes raw bytes to valid UTF-8 text.
package textenc

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// Encoding names reported on text units.
const (
	UTF8        = "utf-8"
	UTF16LE     = "utf-16le"
	UTF16BE     = "utf-16be"
	Windows1252 = "windows-1252"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Result is normalized text plus how it was obtained.
type Result struct {
	Text     string
	Encoding string
	Lossy    bool
}

// Normalize decodes raw bytes. Valid UTF-8 (with or without BOM) passes
// through and UTF-16 with a BOM is decoded. UTF-8 with stray invalid bytes
// keeps its text with the invalid bytes replaced; anything else is decoded
// as Windows-1252. Both are flagged lossy. It never fails.
func Normalize(raw []byte) Result {
	switch {
	case bytes.HasPrefix(raw, bomUTF8):
		raw = raw[len(bomUTF8):]
	case bytes.HasPrefix(raw, bomUTF16LE):
		return decodeUTF16(raw, unicode.LittleEndian, UTF16LE)
	case bytes.HasPrefix(raw, bomUTF16BE):
		return decodeUTF16(raw, unicode.BigEndian, UTF16BE)
	}

	if utf8.Valid(raw) {
		return Result{Text: string(raw), Encoding: UTF8}
	}
	if mostlyUTF8(raw) {
		// Keep the valid text; each invalid run becomes U+FFFD.
		return Result{Text: strings.ToValidUTF8(string(raw), "\uFFFD"), Encoding: UTF8, Lossy: true}
	}
	return fallback(raw)
}

// mostlyUTF8 reports whether raw holds valid multi-byte UTF-8 sequences and
// no more invalid bytes than those. Single-byte legacy text has no valid
// multi-byte sequences at all.
func mostlyUTF8(raw []byte) bool {
	var multi, invalid int
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			invalid++
		case size > 1:
			multi++
		}
		i += size
	}
	return multi > 0 && invalid <= multi
}

// Decode converts raw bytes from a declared charset (as found in MIME headers
// or XML declarations). Unknown charsets and decode failures go through
// Normalize.
func Decode(raw []byte, charset string) Result {
	cs := strings.ToLower(strings.TrimSpace(charset))
	if cs == "" || cs == "utf-8" || cs == "utf8" || cs == "us-ascii" {
		return Normalize(raw)
	}

	enc, err := htmlindex.Get(cs)
	if err != nil || enc == nil {
		return Normalize(raw)
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil || !utf8.Valid(out) {
		return Normalize(raw)
	}
	name, _ := htmlindex.Name(enc)
	if name == "" {
		name = cs
	}
	return Result{Text: string(out), Encoding: name}
}

func decodeUTF16(raw []byte, order unicode.Endianness, name string) Result {
	dec := unicode.UTF16(order, unicode.ExpectBOM).NewDecoder()
	out, err := dec.Bytes(raw)
	if err != nil {
		return fallback(raw)
	}
	// The decoder substitutes U+FFFD for unpaired surrogates.
	return Result{Text: string(out), Encoding: name, Lossy: bytes.ContainsRune(out, utf8.RuneError)}
}

func fallback(raw []byte) Result {
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return Result{Text: strings.ToValidUTF8(string(raw), "�"), Encoding: UTF8, Lossy: true}
	}
	return Result{Text: string(out), Encoding: Windows1252, Lossy: true}
}
