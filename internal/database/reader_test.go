package database

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/Aman-CERP/prometheus/internal/errors"
	"github.com/Aman-CERP/prometheus/internal/evidence"
)

var modified = time.Date(2022, 11, 3, 8, 0, 0, 0, time.UTC)

// buildStore creates a SQLite file from statements and returns its bytes.
func buildStore(t *testing.T, stmts ...string) []byte {
	t.Helper()
	p := filepath.Join(t.TempDir(), "fixture.db")
	db, err := sql.Open("sqlite", p)
	require.NoError(t, err)
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
	require.NoError(t, db.Close())

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return data
}

func memEntry(name string, data []byte) evidence.Entry {
	return evidence.NewEntry(name, int64(len(data)), evidence.KindDatabase, evidence.FormatSQLite, modified,
		func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil })
}

func readAll(t *testing.T, r *Reader, e evidence.Entry) ([]evidence.TextUnit, Stats, error) {
	t.Helper()
	var units []evidence.TextUnit
	stats, err := r.Read(context.Background(), e, "case.ufdr", func(u evidence.TextUnit) error {
		units = append(units, u)
		return nil
	})
	return units, stats, err
}

func TestRead_EmitsTextualCellsInSchemaOrder(t *testing.T) {
	// Given a store with two tables, a BLOB and a NULL cell
	data := buildStore(t,
		`CREATE TABLE contacts (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, photo BLOB, note TEXT)`,
		`CREATE TABLE messages (body TEXT, score REAL)`,
		`INSERT INTO contacts (name, photo, note) VALUES ('Ana', X'00FF', NULL)`,
		`INSERT INTO contacts (name, photo, note) VALUES ('Bruno', NULL, 'CPF 123.456.789-00')`,
		`INSERT INTO messages VALUES ('hello', 1.5)`,
	)

	// When reading
	r := NewReader(Options{TempDir: t.TempDir()})
	units, stats, err := readAll(t, r, memEntry("apps/msgstore.db", data))
	require.NoError(t, err)

	// Then every textual cell becomes a unit, sqlite_sequence is excluded
	got := make([]string, 0, len(units))
	for _, u := range units {
		got = append(got, u.Locator.String()+"="+u.Text)
	}
	assert.Equal(t, []string{
		"table=contacts;row=0;column=id=1",
		"table=contacts;row=0;column=name=Ana",
		"table=contacts;row=1;column=id=2",
		"table=contacts;row=1;column=name=Bruno",
		"table=contacts;row=1;column=note=CPF 123.456.789-00",
		"table=messages;row=0;column=body=hello",
		"table=messages;row=0;column=score=1.5",
	}, got)

	assert.Equal(t, Stats{Tables: 2, Rows: 3, Units: 7, BlobCells: 1}, stats)

	u := units[0]
	assert.Equal(t, "case.ufdr", u.ArchivePath)
	assert.Equal(t, "apps/msgstore.db", u.EntryPath)
	assert.Equal(t, evidence.FormatSQLite, u.ExtractorKind)
	assert.True(t, u.Timestamp.Equal(modified))
	assert.False(t, u.Lossy)
}

func TestRead_RejectsMissingHeader(t *testing.T) {
	r := NewReader(Options{TempDir: t.TempDir()})

	_, _, err := readAll(t, r, memEntry("fake.db", []byte("definitely not sqlite")))

	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeDatabaseInvalid, perrors.GetCode(err))
	assert.Equal(t, perrors.CategoryDatabase, perrors.GetCategory(err))
}

func TestRead_CorruptBodyIsDatabaseError(t *testing.T) {
	// Given a valid header followed by garbage
	data := append([]byte("SQLite format 3\x00"), bytes.Repeat([]byte{0xAB}, 4096)...)
	r := NewReader(Options{TempDir: t.TempDir()})

	_, _, err := readAll(t, r, memEntry("broken.sqlite", data))

	require.Error(t, err)
	assert.Equal(t, perrors.CategoryDatabase, perrors.GetCategory(err))
}

func TestRead_RemovesTempCopy(t *testing.T) {
	data := buildStore(t, `CREATE TABLE t (v TEXT)`, `INSERT INTO t VALUES ('x')`)
	tmp := t.TempDir()
	r := NewReader(Options{TempDir: tmp})

	_, _, err := readAll(t, r, memEntry("a.db", data))
	require.NoError(t, err)

	left, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRead_EmitErrorStops(t *testing.T) {
	data := buildStore(t,
		`CREATE TABLE t (v TEXT)`,
		`INSERT INTO t VALUES ('a')`,
		`INSERT INTO t VALUES ('b')`,
	)
	stop := errors.New("stop")
	r := NewReader(Options{TempDir: t.TempDir()})

	calls := 0
	_, err := r.Read(context.Background(), memEntry("a.db", data), "case.ufdr", func(evidence.TextUnit) error {
		calls++
		return stop
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestRead_CancelledContext(t *testing.T) {
	data := buildStore(t, `CREATE TABLE t (v TEXT)`, `INSERT INTO t VALUES ('a')`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewReader(Options{TempDir: t.TempDir()})

	_, err := r.Read(ctx, memEntry("a.db", data), "case.ufdr", func(evidence.TextUnit) error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRead_QuotedTableNames(t *testing.T) {
	data := buildStore(t,
		`CREATE TABLE "odd ""name""" ("col one" TEXT)`,
		`INSERT INTO "odd ""name""" VALUES ('v')`,
	)
	r := NewReader(Options{TempDir: t.TempDir()})

	units, _, err := readAll(t, r, memEntry("a.db", data))
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, `odd "name"`, units[0].Locator.Table)
	assert.Equal(t, "col one", units[0].Locator.Column)
}

func TestCellText(t *testing.T) {
	tests := []struct {
		in       any
		wantText string
		wantOK   bool
		wantBlob bool
	}{
		{nil, "", false, false},
		{"abc", "abc", true, false},
		{[]byte{1, 2}, "", false, true},
		{int64(42), "42", true, false},
		{float64(100), "100", true, false},
		{0.25, "0.25", true, false},
	}
	for _, tt := range tests {
		text, ok, blob := cellText(tt.in)
		assert.Equal(t, tt.wantText, text)
		assert.Equal(t, tt.wantOK, ok)
		assert.Equal(t, tt.wantBlob, blob)
	}
}

func TestClassify_SeparatesLockContention(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"locked message", errors.New("database is locked (5) (SQLITE_BUSY)"), perrors.ErrCodeDatabaseLocked},
		{"wrapped locked", fmt.Errorf("query: %w", errors.New("database is locked")), perrors.ErrCodeDatabaseLocked},
		{"malformed", errors.New("database disk image is malformed"), perrors.ErrCodeDatabaseInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("apps/mail.db", "query failed", tt.err)

			assert.Equal(t, tt.want, perrors.GetCode(err))
			assert.Equal(t, perrors.CategoryDatabase, perrors.GetCategory(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassify_PassesCancellationThrough(t *testing.T) {
	err := classify("apps/mail.db", "query failed", context.Canceled)

	assert.Equal(t, context.Canceled, err)
}
