package archive

import (
	"bytes"
	"path"
	"strings"

	"github.com/Aman-CERP/prometheus/internal/evidence"
)

// sniffLen is the number of leading bytes inspected for entries with an
// unrecognized extension.
const sniffLen = 16

var sqliteMagic = []byte("SQLite format 3\x00")

// extensionFormats maps lowercase extensions to formats.
var extensionFormats = map[string]evidence.Format{
	// Embedded relational stores
	".db":      evidence.FormatSQLite,
	".sqlite":  evidence.FormatSQLite,
	".sqlite3": evidence.FormatSQLite,
	".s3db":    evidence.FormatSQLite,

	".eml":  evidence.FormatEmail,
	".pdf":  evidence.FormatPDF,
	".xlsx": evidence.FormatSpreadsheet,
	".ods":  evidence.FormatSpreadsheet,
	".docx": evidence.FormatOffice,
	".odt":  evidence.FormatOffice,
	".pptx": evidence.FormatOffice,
	".odp":  evidence.FormatOffice,
	".csv":  evidence.FormatDelimited,
	".tsv":  evidence.FormatDelimited,
	".ics":  evidence.FormatCalendar,
	".vcf":  evidence.FormatContact,

	".txt":  evidence.FormatText,
	".md":   evidence.FormatText,
	".log":  evidence.FormatText,
	".json": evidence.FormatText,
	".xml":  evidence.FormatText,
	".html": evidence.FormatText,
	".htm":  evidence.FormatText,
	".rtf":  evidence.FormatText,
}

// headerPrefixes are RFC 822 header names that commonly open a message.
var headerPrefixes = []string{
	"return-path:",
	"received:",
	"from:",
	"to:",
	"subject:",
	"date:",
	"message-id:",
	"mime-version:",
	"delivered-to:",
}

// FormatForPath infers the format of an internal path from its extension.
func FormatForPath(name string) (evidence.Format, bool) {
	f, ok := extensionFormats[strings.ToLower(path.Ext(name))]
	return f, ok
}

// KindOf returns the kind a format belongs to.
func KindOf(f evidence.Format) evidence.Kind {
	switch f {
	case evidence.FormatSQLite:
		return evidence.KindDatabase
	case evidence.FormatNone:
		return evidence.KindUnknown
	default:
		return evidence.KindDocument
	}
}

// Sniff infers the format from leading content bytes.
func Sniff(head []byte) evidence.Format {
	switch {
	case bytes.HasPrefix(head, sqliteMagic):
		return evidence.FormatSQLite
	case bytes.HasPrefix(head, []byte("%PDF-")):
		return evidence.FormatPDF
	case looksLikeMessage(head):
		return evidence.FormatEmail
	}
	return evidence.FormatNone
}

func looksLikeMessage(head []byte) bool {
	lower := strings.ToLower(string(head))
	for _, p := range headerPrefixes {
		if !strings.HasPrefix(lower, p) {
			continue
		}
		// A header name is followed by a value, not a bare line.
		return len(lower) > len(p)
	}
	return false
}
