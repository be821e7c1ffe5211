package archive

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

// ErrRatioExceeded is returned for a nested package member whose declared
// compression ratio is past MaxRatio.
var ErrRatioExceeded = errors.New("compression ratio exceeds the ceiling")

// Default ceilings applied to every container.
const (
	DefaultMaxEntries    = 200_000
	DefaultMaxDepth      = 64
	DefaultMaxEntryBytes = 512 << 20 // 512 MiB
	DefaultMaxTotalBytes = 64 << 30  // 64 GiB
	DefaultMaxRatio      = 1000
)

// ratioCheckMinBytes is the declared size below which the compression ratio
// is not checked. Small, highly repetitive files compress past any sane ratio.
const ratioCheckMinBytes = 1 << 20

// Limits bounds the resources one archive may consume.
type Limits struct {
	MaxEntries    int     // Entries in the central directory
	MaxDepth      int     // Path segments of an internal path
	MaxEntryBytes int64   // Bytes read from a single entry
	MaxTotalBytes int64   // Sum of declared uncompressed sizes
	MaxRatio      float64 // Declared uncompressed/compressed ratio per entry
}

// DefaultLimits returns the default ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxEntries:    DefaultMaxEntries,
		MaxDepth:      DefaultMaxDepth,
		MaxEntryBytes: DefaultMaxEntryBytes,
		MaxTotalBytes: DefaultMaxTotalBytes,
		MaxRatio:      DefaultMaxRatio,
	}
}

// WithDefaults fills zero fields from DefaultLimits.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	if l.MaxEntries <= 0 {
		l.MaxEntries = d.MaxEntries
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = d.MaxDepth
	}
	if l.MaxEntryBytes <= 0 {
		l.MaxEntryBytes = d.MaxEntryBytes
	}
	if l.MaxTotalBytes <= 0 {
		l.MaxTotalBytes = d.MaxTotalBytes
	}
	if l.MaxRatio <= 0 {
		l.MaxRatio = d.MaxRatio
	}
	return l
}

// ratio returns the declared uncompressed/compressed ratio of f and whether
// it is past MaxRatio. Members below ratioCheckMinBytes always pass.
func (l Limits) ratio(f *zip.File) (float64, bool) {
	size := f.UncompressedSize64
	if size < ratioCheckMinBytes {
		return 0, false
	}
	if f.CompressedSize64 == 0 {
		return 0, true
	}
	r := float64(size) / float64(f.CompressedSize64)
	return r, r > l.MaxRatio
}

// CheckMember validates the declared sizes of a member of a zip package
// nested inside an entry (an OOXML or OpenDocument file).
func (l Limits) CheckMember(f *zip.File) error {
	l = l.WithDefaults()
	if f.UncompressedSize64 > uint64(l.MaxEntryBytes) {
		return fmt.Errorf("%w: member %s declares %d bytes", ErrEntryTooLarge, f.Name, f.UncompressedSize64)
	}
	if r, over := l.ratio(f); over {
		return fmt.Errorf("%w: member %s ratio %.0f, limit %.0f", ErrRatioExceeded, f.Name, r, l.MaxRatio)
	}
	return nil
}

// OpenMember opens a nested package member under the same ceilings as a
// top-level entry: declared sizes are checked first and the reader fails
// with ErrEntryTooLarge past MaxEntryBytes.
func (l Limits) OpenMember(f *zip.File) (io.ReadCloser, error) {
	if err := l.CheckMember(f); err != nil {
		return nil, err
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	return newBoundedReader(rc, l.WithDefaults().MaxEntryBytes), nil
}
