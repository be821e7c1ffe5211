// Package database reads embedded SQLite stores found inside evidence
// archives and turns every textual cell into a text unit.
package database

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	perrors "github.com/Aman-CERP/prometheus/internal/errors"
	"github.com/Aman-CERP/prometheus/internal/evidence"
	"github.com/Aman-CERP/prometheus/internal/textenc"
)

// Primary SQLite result codes for lock contention.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

var headerMagic = []byte("SQLite format 3\x00")

// Options configures the reader.
type Options struct {
	// TempDir receives the private copy of each store. Empty uses os.TempDir().
	TempDir string

	// Logger receives diagnostics. Nil uses slog.Default().
	Logger *slog.Logger
}

// Stats describes one completed read.
type Stats struct {
	Tables     int
	Rows       int
	Units      int
	BlobCells  int
	LossyUnits int
}

// Reader enumerates tables, rows and columns of SQLite entries.
type Reader struct {
	opts   Options
	logger *slog.Logger
}

// NewReader creates a Reader.
func NewReader(opts Options) *Reader {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{opts: opts, logger: logger}
}

// Read materializes the entry, opens it read-only and emits one unit per
// textual cell. Tables are visited in declaration order, columns in schema
// order and rows in storage order. Returning an error from emit stops the read.
func (r *Reader) Read(ctx context.Context, entry evidence.Entry, archivePath string, emit func(evidence.TextUnit) error) (Stats, error) {
	var stats Stats

	tmp, err := r.materialize(entry)
	if err != nil {
		return stats, err
	}
	defer removeStore(tmp)

	db, err := sql.Open("sqlite", dsn(tmp))
	if err != nil {
		return stats, classify(entry.Path, "failed to open database", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	tables, err := listTables(ctx, db)
	if err != nil {
		return stats, classify(entry.Path, "failed to enumerate schema", err)
	}

	base := evidence.TextUnit{
		ArchivePath:   archivePath,
		EntryPath:     entry.Path,
		ExtractorKind: evidence.FormatSQLite,
		Timestamp:     entry.Modified,
	}

	for _, table := range tables {
		if err := r.readTable(ctx, db, table, base, &stats, emit); err != nil {
			return stats, err
		}
		stats.Tables++
	}

	r.logger.Debug("database read",
		slog.String("archive", archivePath),
		slog.String("entry", entry.Path),
		slog.Int("tables", stats.Tables),
		slog.Int("rows", stats.Rows),
		slog.Int("units", stats.Units),
		slog.Int("blob_cells", stats.BlobCells))

	return stats, nil
}

func (r *Reader) readTable(ctx context.Context, db *sql.DB, table string, base evidence.TextUnit, stats *Stats, emit func(evidence.TextUnit) error) error {
	entryPath := base.EntryPath

	columns, err := listColumns(ctx, db, table)
	if err != nil {
		return classify(entryPath, fmt.Sprintf("failed to list columns of %q", table), err)
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table))
	if err != nil {
		return classify(entryPath, fmt.Sprintf("failed to query %q", table), err)
	}
	defer rows.Close()

	// SELECT * yields table_info order; fall back to the driver's names if a
	// generated or hidden column makes them disagree.
	if names, err := rows.Columns(); err == nil && len(names) != len(columns) {
		columns = names
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for ordinal := 0; rows.Next(); ordinal++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := rows.Scan(ptrs...); err != nil {
			return classify(entryPath, fmt.Sprintf("failed to read row %d of %q", ordinal, table), err)
		}
		stats.Rows++

		for i, v := range values {
			text, ok, blob := cellText(v)
			if blob {
				stats.BlobCells++
				continue
			}
			if !ok {
				continue
			}

			norm := textenc.Normalize([]byte(text))
			unit := base
			unit.Locator = evidence.Locator{Table: table, Row: ordinal, HasRow: true, Column: columns[i]}
			unit.Text = norm.Text
			unit.Encoding = norm.Encoding
			unit.Lossy = norm.Lossy
			if norm.Lossy {
				stats.LossyUnits++
			}
			stats.Units++
			if err := emit(unit); err != nil {
				return err
			}
		}
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return classify(entryPath, fmt.Sprintf("failed to iterate %q", table), err)
	}
	return nil
}

// materialize copies the entry into a private temp file after checking the
// SQLite header. The caller removes the file.
func (r *Reader) materialize(entry evidence.Entry) (string, error) {
	rc, err := entry.Open()
	if err != nil {
		return "", perrors.DatabaseError(entry.Path, "failed to open entry", err)
	}
	defer rc.Close()

	head := make([]byte, len(headerMagic))
	if _, err := io.ReadFull(rc, head); err != nil || !bytes.Equal(head, headerMagic) {
		return "", perrors.DatabaseError(entry.Path, "missing SQLite header", err)
	}

	ext := path.Ext(entry.Path)
	if ext == "" {
		ext = ".db"
	}
	f, err := os.CreateTemp(r.opts.TempDir, "prometheus-*"+ext)
	if err != nil {
		return "", perrors.InternalError("failed to create temp file", err)
	}
	name := f.Name()

	_, err = io.Copy(f, io.MultiReader(bytes.NewReader(head), rc))
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		removeStore(name)
		return "", perrors.DatabaseError(entry.Path, "failed to copy entry", err)
	}
	return name, nil
}

func listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func listColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     sql.NullString
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

// cellText stringifies a cell. ok is false for NULL; blob is true for binary
// cells, which are never searched.
func cellText(v any) (text string, ok, blob bool) {
	switch x := v.(type) {
	case nil:
		return "", false, false
	case string:
		return x, true, false
	case []byte:
		return "", false, true
	case int64:
		return strconv.FormatInt(x, 10), true, false
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true, false
	case bool:
		return strconv.FormatBool(x), true, false
	case time.Time:
		// The driver parses DATE/DATETIME columns.
		return x.UTC().Format(time.RFC3339Nano), true, false
	default:
		return fmt.Sprint(x), true, false
	}
}

// classify maps driver errors to DatabaseError, separating lock contention.
func classify(entryPath, message string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isLocked(err) {
		return perrors.New(perrors.ErrCodeDatabaseLocked, message, err).
			WithDetail("entry", entryPath)
	}
	return perrors.DatabaseError(entryPath, message, err)
}

func isLocked(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqliteBusy || code == sqliteLocked
	}
	return strings.Contains(err.Error(), "database is locked")
}

func dsn(p string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p), RawQuery: "mode=ro&immutable=1"}
	return u.String()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func removeStore(p string) {
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		_ = os.Remove(p + suffix)
	}
}
