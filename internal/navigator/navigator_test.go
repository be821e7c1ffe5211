package navigator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/prometheus/internal/evidence"
)

func entry(path string, kind evidence.Kind, format evidence.Format) evidence.Entry {
	return evidence.NewEntry(path, 1, kind, format, time.Time{}, nil)
}

func paths(entries []evidence.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out
}

func TestPlan_DatabaseExcludesDocuments(t *testing.T) {
	// Given an archive with a database next to documents
	m := &evidence.Manifest{Entries: []evidence.Entry{
		entry("report.pdf", evidence.KindDocument, evidence.FormatPDF),
		entry("msgstore.db", evidence.KindDatabase, evidence.FormatSQLite),
		entry("blob.bin", evidence.KindUnknown, evidence.FormatNone),
		entry("contacts.sqlite", evidence.KindDatabase, evidence.FormatSQLite),
	}}

	// When planning
	r := Plan(m, nil)

	// Then only database entries are routed
	assert.Equal(t, ModeDatabase, r.Mode)
	assert.Equal(t, []string{"msgstore.db", "contacts.sqlite"}, paths(r.Entries))
	assert.Equal(t, map[string]int{SkipNotSearched: 2}, r.Skipped)
}

func TestPlan_DocumentsWhenNoDatabase(t *testing.T) {
	m := &evidence.Manifest{Entries: []evidence.Entry{
		entry("a.pdf", evidence.KindDocument, evidence.FormatPDF),
		entry("b.eml", evidence.KindDocument, evidence.FormatEmail),
		entry("c.bin", evidence.KindUnknown, evidence.FormatNone),
		entry("d.csv", evidence.KindDocument, evidence.FormatDelimited),
	}}

	r := Plan(m, nil)

	assert.Equal(t, ModeDocuments, r.Mode)
	assert.Equal(t, []string{"a.pdf", "b.eml", "d.csv"}, paths(r.Entries))
	assert.Equal(t, map[string]int{SkipUnknown: 1}, r.Skipped)
}

func TestPlan_AllowlistFiltersDocuments(t *testing.T) {
	m := &evidence.Manifest{Entries: []evidence.Entry{
		entry("a.pdf", evidence.KindDocument, evidence.FormatPDF),
		entry("b.eml", evidence.KindDocument, evidence.FormatEmail),
		entry("c.pdf", evidence.KindDocument, evidence.FormatPDF),
	}}

	r := Plan(m, []evidence.Format{evidence.FormatEmail})

	assert.Equal(t, ModeDocuments, r.Mode)
	assert.Equal(t, []string{"b.eml"}, paths(r.Entries))
	assert.Equal(t, 2, r.Skipped[SkipDisallowed(evidence.FormatPDF)])
}

func TestPlan_Empty(t *testing.T) {
	tests := []struct {
		name string
		m    *evidence.Manifest
	}{
		{"nil manifest", nil},
		{"only unknown", &evidence.Manifest{Entries: []evidence.Entry{
			entry("x", evidence.KindUnknown, evidence.FormatNone),
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Plan(tt.m, nil)
			assert.Equal(t, ModeEmpty, r.Mode)
			assert.Empty(t, r.Entries)
			require.NotNil(t, r.Skipped)
		})
	}
}

func TestPlan_EveryEntryAccountedFor(t *testing.T) {
	m := &evidence.Manifest{Entries: []evidence.Entry{
		entry("a.pdf", evidence.KindDocument, evidence.FormatPDF),
		entry("b.txt", evidence.KindDocument, evidence.FormatText),
		entry("c", evidence.KindUnknown, evidence.FormatNone),
	}}

	r := Plan(m, []evidence.Format{evidence.FormatText})

	skipped := 0
	for _, n := range r.Skipped {
		skipped += n
	}
	assert.Equal(t, len(m.Entries), len(r.Entries)+skipped)
}
