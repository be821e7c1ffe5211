package evidence

import (
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocator_String(t *testing.T) {
	tests := []struct {
		name string
		loc  Locator
		want string
	}{
		{"empty", Locator{}, ""},
		{"database row zero", Locator{Table: "messages", Row: 0, HasRow: true, Column: "body"}, "table=messages;row=0;column=body"},
		{"page", Locator{Page: 3}, "page=3"},
		{"sheet row column", Locator{Sheet: "Plan1", Row: 2, Column: "B"}, "sheet=Plan1;row=2;column=B"},
		{"line", Locator{Line: 12}, "line=12"},
		{"slide paragraph", Locator{Component: "SLIDE#2", Paragraph: 3}, "component=SLIDE#2;paragraph=3"},
		{"email part", Locator{Part: 2, Field: "body"}, "part=2;field=body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.loc.String())
		})
	}
}

func TestLocator_Compare_NumericOrder(t *testing.T) {
	// Given locators whose textual form would sort page 10 before page 9
	a := Locator{Page: 9}
	b := Locator{Page: 10}

	// Then the comparison is numeric
	assert.Negative(t, a.Compare(b))
	assert.Positive(t, b.Compare(a))
	assert.Zero(t, a.Compare(a))
}

func TestMatchRecord_Compare_SortsDeterministically(t *testing.T) {
	records := []MatchRecord{
		{ArchivePath: "b.ufdr", EntryPath: "x", Pattern: "CPF", Offset: 1},
		{ArchivePath: "a.ufdr", EntryPath: "y", Pattern: "Email", Offset: 0},
		{ArchivePath: "a.ufdr", EntryPath: "y", Pattern: "CPF", Locator: Locator{Line: 2}},
		{ArchivePath: "a.ufdr", EntryPath: "y", Pattern: "CPF", Locator: Locator{Line: 1}, Offset: 5},
		{ArchivePath: "a.ufdr", EntryPath: "y", Pattern: "CPF", Locator: Locator{Line: 1}, Offset: 3},
	}

	slices.SortFunc(records, MatchRecord.Compare)

	got := make([]string, 0, len(records))
	for _, r := range records {
		got = append(got, strings.Join([]string{r.ArchivePath, r.Pattern, r.Locator.String()}, "|"))
	}
	assert.Equal(t, []string{
		"a.ufdr|CPF|line=1",
		"a.ufdr|CPF|line=1",
		"a.ufdr|CPF|line=2",
		"a.ufdr|Email|",
		"b.ufdr|CPF|",
	}, got)
	assert.Equal(t, 3, records[0].Offset)
	assert.Equal(t, 5, records[1].Offset)
}

func TestMatchRecord_Key_IgnoresContextAndTimestamp(t *testing.T) {
	base := MatchRecord{ArchivePath: "a", EntryPath: "e", Pattern: "p", Value: "v", Offset: 4}
	other := base
	other.Context = "different"
	other.Timestamp = time.Unix(100, 0)

	assert.Equal(t, base.Key(), other.Key())

	other.Offset = 5
	assert.NotEqual(t, base.Key(), other.Key())
}

func TestMatchRecord_Key_SeparatorsInNamesStayDistinct(t *testing.T) {
	// Both locators render as "table=t;column=c".
	a := MatchRecord{ArchivePath: "a", Pattern: "p", Value: "v",
		Locator: Locator{Table: "t;column=c"}}
	b := MatchRecord{ArchivePath: "a", Pattern: "p", Value: "v",
		Locator: Locator{Table: "t", Column: "c"}}

	assert.Equal(t, a.Locator.String(), b.Locator.String())
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestParseFormat(t *testing.T) {
	f, ok := ParseFormat(" PDF ")
	require.True(t, ok)
	assert.Equal(t, FormatPDF, f)

	_, ok = ParseFormat("sqlite")
	assert.False(t, ok, "sqlite is not a document format")

	_, ok = ParseFormat("docx")
	assert.False(t, ok)
}

func TestEntry_Open(t *testing.T) {
	e := NewEntry("a.txt", 5, KindDocument, FormatText, time.Time{}, func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("hello")), nil
	})
	rc, err := e.Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = Entry{}.Open()
	assert.Error(t, err)
}

func TestScanResult_Empty(t *testing.T) {
	var r *ScanResult
	assert.True(t, r.Empty())
	assert.True(t, (&ScanResult{}).Empty())
	assert.False(t, (&ScanResult{Records: []MatchRecord{{}}}).Empty())
}
