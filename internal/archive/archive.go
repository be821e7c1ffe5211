// Package archive opens evidence containers and lists their entries.
//
// An Archive is a read-only handle over one zip container. Opening validates
// the central directory against Limits and builds an immutable manifest; entry
// content is only read on demand through evidence.Entry.Open.
package archive

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"

	perrors "github.com/Aman-CERP/prometheus/internal/errors"
	"github.com/Aman-CERP/prometheus/internal/evidence"
)

// flagEncrypted is bit 0 of the general purpose flags.
const flagEncrypted = 0x1

// Archive is an open evidence container.
type Archive struct {
	path     string
	limits   Limits
	rc       *zip.ReadCloser
	manifest *evidence.Manifest
}

// Open opens the container at path and builds its manifest. The underlying
// file is closed on every failure path.
func Open(archivePath string, limits Limits) (*Archive, error) {
	limits = limits.WithDefaults()

	rc, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, perrors.ArchiveError(archivePath, "not a readable zip container", err)
	}

	a := &Archive{path: archivePath, limits: limits, rc: rc}
	manifest, err := a.buildManifest()
	if err != nil {
		_ = rc.Close()
		return nil, err
	}
	a.manifest = manifest
	return a, nil
}

// With opens the archive, runs fn and always closes the handle.
func With(archivePath string, limits Limits, fn func(*Archive) error) (err error) {
	a, err := Open(archivePath, limits)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = perrors.ArchiveError(archivePath, "failed to close container", cerr)
		}
	}()
	return fn(a)
}

// Manifest returns the entry listing. It must not be modified.
func (a *Archive) Manifest() *evidence.Manifest {
	return a.manifest
}

// Close releases the container. Entries must not be opened afterwards.
func (a *Archive) Close() error {
	if a.rc == nil {
		return nil
	}
	err := a.rc.Close()
	a.rc = nil
	return err
}

func (a *Archive) buildManifest() (*evidence.Manifest, error) {
	files := a.rc.File
	if len(files) > a.limits.MaxEntries {
		return nil, perrors.ArchiveLimitError(a.path,
			fmt.Sprintf("container holds %d entries, limit is %d", len(files), a.limits.MaxEntries))
	}

	m := &evidence.Manifest{ArchivePath: a.path}
	seen := make(map[string]bool, len(files))
	var total uint64

	for _, f := range files {
		if f.Mode().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}

		name := cleanName(f.Name)
		if name == "" {
			return nil, perrors.ArchiveError(a.path, fmt.Sprintf("entry with empty path %q", f.Name), nil)
		}
		if seen[name] {
			return nil, perrors.ArchiveError(a.path, fmt.Sprintf("duplicate entry path %q", name), nil)
		}
		seen[name] = true

		if f.Flags&flagEncrypted != 0 {
			return nil, perrors.ArchiveError(a.path, fmt.Sprintf("entry %q is encrypted", name), nil).
				WithSuggestion("Encrypted containers are not supported; provide a decrypted copy")
		}
		if depth := strings.Count(name, "/") + 1; depth > a.limits.MaxDepth {
			return nil, perrors.ArchiveLimitError(a.path,
				fmt.Sprintf("entry %q is nested %d levels deep, limit is %d", name, depth, a.limits.MaxDepth))
		}
		if err := a.checkSize(name, f); err != nil {
			return nil, err
		}
		total += f.UncompressedSize64
		if total > uint64(a.limits.MaxTotalBytes) {
			return nil, perrors.ArchiveLimitError(a.path,
				fmt.Sprintf("declared uncompressed size exceeds %d bytes", a.limits.MaxTotalBytes))
		}

		m.Entries = append(m.Entries, a.entry(name, f))
	}

	if len(m.Entries) == 0 {
		return nil, perrors.ArchiveError(a.path, "container has no file entries", nil)
	}
	return m, nil
}

func (a *Archive) checkSize(name string, f *zip.File) error {
	size := f.UncompressedSize64
	if size > uint64(a.limits.MaxTotalBytes) {
		return perrors.ArchiveLimitError(a.path,
			fmt.Sprintf("entry %q declares %d bytes", name, size))
	}
	r, over := a.limits.ratio(f)
	switch {
	case !over:
		return nil
	case f.CompressedSize64 == 0:
		return perrors.ArchiveLimitError(a.path,
			fmt.Sprintf("entry %q declares %d bytes from an empty payload", name, size))
	default:
		return perrors.ArchiveLimitError(a.path,
			fmt.Sprintf("entry %q compression ratio %.0f exceeds %.0f", name, r, a.limits.MaxRatio))
	}
}

func (a *Archive) entry(name string, f *zip.File) evidence.Entry {
	format, ok := FormatForPath(name)
	if !ok {
		format = a.sniff(f)
	}

	open := func() (io.ReadCloser, error) {
		if a.rc == nil {
			return nil, errors.New("archive is closed")
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		return newBoundedReader(rc, a.limits.MaxEntryBytes), nil
	}

	e := evidence.NewEntry(name, int64(f.UncompressedSize64), KindOf(format), format, f.Modified.UTC(), open)
	e.CompressedSize = int64(f.CompressedSize64)
	return e
}

// sniff reads the first bytes of an entry. Read failures leave the format
// unknown; the entry will fail later if it is ever routed.
func (a *Archive) sniff(f *zip.File) evidence.Format {
	rc, err := f.Open()
	if err != nil {
		return evidence.FormatNone
	}
	defer rc.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(rc, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return evidence.FormatNone
	}
	return Sniff(head[:n])
}

// cleanName normalizes an internal path to slash form without leading
// separators or dot segments.
func cleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Clean("/" + name)
	return strings.TrimPrefix(name, "/")
}
