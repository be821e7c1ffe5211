// Package navigator decides which entries of an archive are searched.
//
// The policy is binary per archive: when the manifest holds at least one
// embedded database only database entries are read, otherwise the document
// entries whose format is allowed are read.
package navigator

import (
	"github.com/Aman-CERP/prometheus/internal/evidence"
)

// Mode is the extraction path chosen for an archive.
type Mode string

const (
	ModeDatabase  Mode = "database"
	ModeDocuments Mode = "documents"
	ModeEmpty     Mode = "empty"
)

// Skip reasons used as keys of Route.Skipped.
const (
	SkipNotSearched = "not-searched"
	SkipUnknown     = "unknown"
	skipDisallowed  = "disallowed:"
)

// SkipDisallowed returns the skip key for a document format outside the
// allowlist.
func SkipDisallowed(f evidence.Format) string {
	return skipDisallowed + string(f)
}

// Route is the navigator's decision for one manifest.
type Route struct {
	Mode    Mode
	Entries []evidence.Entry
	Skipped map[string]int
}

// Plan routes the manifest entries. A nil or empty allowed list permits every
// document format.
func Plan(m *evidence.Manifest, allowed []evidence.Format) Route {
	r := Route{Mode: ModeEmpty, Skipped: make(map[string]int)}
	if m == nil {
		return r
	}

	for _, e := range m.Entries {
		if e.Kind == evidence.KindDatabase {
			r.Entries = append(r.Entries, e)
		}
	}
	if len(r.Entries) > 0 {
		r.Mode = ModeDatabase
		if n := len(m.Entries) - len(r.Entries); n > 0 {
			r.Skipped[SkipNotSearched] = n
		}
		return r
	}

	permitted := allowSet(allowed)
	for _, e := range m.Entries {
		switch {
		case e.Kind != evidence.KindDocument:
			r.Skipped[SkipUnknown]++
		case permitted != nil && !permitted[e.Format]:
			r.Skipped[SkipDisallowed(e.Format)]++
		default:
			r.Entries = append(r.Entries, e)
		}
	}
	if len(r.Entries) > 0 {
		r.Mode = ModeDocuments
	}
	return r
}

func allowSet(allowed []evidence.Format) map[evidence.Format]bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[evidence.Format]bool, len(allowed))
	for _, f := range allowed {
		set[f] = true
	}
	return set
}
