package archive

import (
	"errors"
	"io"
)

// ErrEntryTooLarge is returned by an entry reader once more than the
// configured ceiling has been read.
var ErrEntryTooLarge = errors.New("entry exceeds the per-entry byte ceiling")

// boundedReader fails instead of truncating, so a decoder never silently
// works on a partial payload.
type boundedReader struct {
	rc        io.ReadCloser
	remaining int64
}

func newBoundedReader(rc io.ReadCloser, limit int64) *boundedReader {
	return &boundedReader{rc: rc, remaining: limit}
}

func (b *boundedReader) Read(p []byte) (int, error) {
	if b.remaining < 0 {
		return 0, ErrEntryTooLarge
	}
	// Allow one byte past the ceiling to detect overflow.
	if int64(len(p)) > b.remaining+1 {
		p = p[:b.remaining+1]
	}
	n, err := b.rc.Read(p)
	b.remaining -= int64(n)
	if b.remaining < 0 {
		return n + int(b.remaining), ErrEntryTooLarge
	}
	return n, err
}

func (b *boundedReader) Close() error {
	return b.rc.Close()
}
