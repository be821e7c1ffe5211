package extract

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/Aman-CERP/prometheus/internal/archive"
	perrors "github.com/Aman-CERP/prometheus/internal/errors"
	"github.com/Aman-CERP/prometheus/internal/evidence"
)

// zipPackage is an OOXML or OpenDocument file opened from an entry payload.
// Its members are read under the same ceilings as archive entries.
type zipPackage struct {
	files  map[string]*zip.File
	limits archive.Limits
}

func openPackage(entry evidence.Entry, limits archive.Limits) (*zipPackage, error) {
	data, err := readEntry(entry)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, perrors.EntryReadError(entry.Path, "document is not a zip package", err)
	}
	p := &zipPackage{files: make(map[string]*zip.File, len(zr.File)), limits: limits}
	for _, f := range zr.File {
		p.files[strings.TrimPrefix(f.Name, "/")] = f
	}
	return p, nil
}

// has reports whether the package holds the member.
func (p *zipPackage) has(name string) bool {
	_, ok := p.files[name]
	return ok
}

// names returns the members whose name starts with prefix.
func (p *zipPackage) names(prefix string) []string {
	var out []string
	for name := range p.files {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out
}

func (p *zipPackage) decoder(name string) (*xml.Decoder, io.Closer, error) {
	f, ok := p.files[name]
	if !ok {
		return nil, nil, fmt.Errorf("missing part %s", name)
	}
	rc, err := p.limits.OpenMember(f)
	if err != nil {
		return nil, nil, err
	}
	d := xml.NewDecoder(rc)
	d.Strict = false
	return d, rc, nil
}

// packageError maps a member read failure to an entry failure. Ceiling
// violations keep their sentinel in the chain.
func packageError(entry evidence.Entry, message string, err error) error {
	if err == nil {
		return nil
	}
	var pe *perrors.PrometheusError
	if errors.As(err, &pe) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, archive.ErrEntryTooLarge) || errors.Is(err, archive.ErrRatioExceeded) {
		message = "document member exceeds the entry ceiling"
	}
	return perrors.EntryReadError(entry.Path, message, err)
}
