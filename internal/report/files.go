package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/prometheus/internal/evidence"
)

// lockName is created next to the outputs while they are written.
const lockName = ".prometheus-report.lock"

// Paths names the output files. Empty paths are not written.
type Paths struct {
	JSON    string
	CSV     string
	Summary string
}

// WriteFiles renders every requested output and replaces the files
// atomically. Each output directory is locked for the duration so two
// concurrent runs never interleave their writes.
func WriteFiles(result *evidence.ScanResult, paths Paths) error {
	outputs := []struct {
		path  string
		write func(io.Writer) error
	}{
		{paths.JSON, func(w io.Writer) error { return WriteJSON(w, result) }},
		{paths.CSV, func(w io.Writer) error { return WriteCSV(w, result) }},
		{paths.Summary, func(w io.Writer) error {
			var stats evidence.RunStats
			if result != nil {
				stats = result.Stats
			}
			return WriteSummary(w, stats)
		}},
	}

	for _, o := range outputs {
		if o.path == "" {
			continue
		}
		var buf bytes.Buffer
		if err := o.write(&buf); err != nil {
			return fmt.Errorf("failed to render %s: %w", o.path, err)
		}
		if err := writeLocked(o.path, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// writeLocked replaces path with data under the directory's report lock.
func writeLocked(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	lock := newFileLock(dir)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	return writeAtomic(path, data)
}

// writeAtomic writes to a temp file in the same directory, then renames it.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		// Clean up temp file on failure
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// fileLock is an exclusive cross-process lock on <dir>/.prometheus-report.lock.
type fileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

func newFileLock(dir string) *fileLock {
	p := filepath.Join(dir, lockName)
	return &fileLock{path: p, flock: flock.New(p)}
}

// Lock blocks until the lock is held.
func (l *fileLock) Lock() error {
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire output lock %s: %w", l.path, err)
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. It is safe to call on an unlocked fileLock.
func (l *fileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release output lock %s: %w", l.path, err)
	}
	return nil
}
