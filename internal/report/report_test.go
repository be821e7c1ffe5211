package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/prometheus/internal/evidence"
)

func sampleResult() *evidence.ScanResult {
	ts := time.Date(2023, 3, 14, 15, 9, 26, 0, time.UTC)
	return &evidence.ScanResult{
		Records: []evidence.MatchRecord{
			{
				ArchivePath:   "/cases/a.ufdr",
				EntryPath:     "apps/mail.db",
				ExtractorKind: evidence.FormatSQLite,
				Pattern:       "Email",
				Value:         "a@b.com",
				Context:       "write to a@b.com",
				Locator:       evidence.Locator{Table: "msgs", Row: 0, HasRow: true, Column: "body"},
				Offset:        9,
				Timestamp:     ts,
			},
			{
				ArchivePath:   "/cases/b.ufdr",
				EntryPath:     "docs/letter.txt",
				ExtractorKind: evidence.FormatText,
				Pattern:       "CPF",
				Value:         "123.456.789-00",
				Context:       `doc "x", <b>123.456.789-00</b>`,
				Locator:       evidence.Locator{Line: 2},
				Offset:        14,
				Timestamp:     ts,
				Lossy:         true,
			},
		},
		Stats: evidence.RunStats{
			ArchivesAttempted: 2,
			ArchivesSucceeded: 2,
			EntriesSkipped:    map[string]int{"unknown": 1},
			MatchesByPattern:  map[string]int{"CPF": 1, "Email": 1},
			TotalMatches:      2,
		},
	}
}

func TestFlatten(t *testing.T) {
	recs := Flatten(sampleResult())

	require.Len(t, recs, 2)
	assert.Equal(t, Record{
		SourceFile:   "/cases/a.ufdr",
		InternalPath: "apps/mail.db",
		FileType:     "sqlite",
		PatternType:  "Email",
		MatchValue:   "a@b.com",
		Context:      "write to a@b.com",
		Locator:      "table=msgs;row=0;column=body",
		Offset:       9,
		Timestamp:    "2023-03-14T15:09:26Z",
	}, recs[0])
	assert.Equal(t, "line=2", recs[1].Locator)
	assert.True(t, recs[1].Lossy)

	assert.Empty(t, Flatten(nil))
	assert.NotNil(t, Flatten(nil))
}

func TestWriteJSON_ArrayWithStableFieldNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleResult()))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	for _, col := range Columns {
		assert.Contains(t, got[0], col)
	}
	// HTML in context is kept verbatim.
	assert.Contains(t, buf.String(), "<b>123.456.789-00</b>")
}

func TestWriteJSON_EmptyResultIsEmptyArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, &evidence.ScanResult{}))
	assert.Equal(t, "[]\n", buf.String())
}

func TestWriteCSV_MatchesJSONContentAndOrder(t *testing.T) {
	res := sampleResult()
	var csvBuf, jsonBuf bytes.Buffer
	require.NoError(t, WriteCSV(&csvBuf, res))
	require.NoError(t, WriteJSON(&jsonBuf, res))

	rows, err := csv.NewReader(&csvBuf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])

	var recs []Record
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &recs))
	for i, r := range recs {
		assert.Equal(t, r.row(), rows[i+1])
	}
	assert.Equal(t, `doc "x", <b>123.456.789-00</b>`, rows[2][5])
	assert.Equal(t, "true", rows[2][9])
}

func TestWriteFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	paths := Paths{
		JSON:    filepath.Join(dir, "results.json"),
		CSV:     filepath.Join(dir, "results.csv"),
		Summary: filepath.Join(dir, "summary.json"),
	}

	require.NoError(t, WriteFiles(sampleResult(), paths))

	data, err := os.ReadFile(paths.JSON)
	require.NoError(t, err)
	var expected bytes.Buffer
	require.NoError(t, WriteJSON(&expected, sampleResult()))
	assert.Equal(t, expected.String(), string(data))

	data, err = os.ReadFile(paths.CSV)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), strings.Join(Columns, ",")+"\n"))

	var stats evidence.RunStats
	data, err = os.ReadFile(paths.Summary)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, 2, stats.TotalMatches)

	// No temp files are left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), e.Name())
	}
}

func TestWriteFiles_ReplacesAndIsRepeatable(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "r.json")
	require.NoError(t, os.WriteFile(p, []byte("stale"), 0o644))

	require.NoError(t, WriteFiles(sampleResult(), Paths{JSON: p}))
	first, err := os.ReadFile(p)
	require.NoError(t, err)
	require.NoError(t, WriteFiles(sampleResult(), Paths{JSON: p}))
	second, err := os.ReadFile(p)
	require.NoError(t, err)

	assert.NotEqual(t, "stale", string(first))
	assert.Equal(t, first, second)
}

func TestWriteFiles_WaitsForHeldLock(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "r.json")
	held := newFileLock(dir)
	require.NoError(t, held.Lock())

	done := make(chan error, 1)
	go func() { done <- WriteFiles(sampleResult(), Paths{JSON: p}) }()

	select {
	case err := <-done:
		t.Fatalf("write finished while the lock was held: %v", err)
	case <-time.After(150 * time.Millisecond):
	}
	assert.NoFileExists(t, p)

	require.NoError(t, held.Unlock())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("write did not resume after unlock")
	}
	assert.FileExists(t, p)
	require.NoError(t, held.Unlock(), "unlocking twice is harmless")
}
