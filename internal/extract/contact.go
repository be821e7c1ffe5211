package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/emersion/go-vcard"

	perrors "github.com/Aman-CERP/prometheus/internal/errors"
	"github.com/Aman-CERP/prometheus/internal/evidence"
)

// contactExtractor handles vCard files. Each field of each card is one unit,
// located as component=VCARD#n;field=<FIELD>.
type contactExtractor struct{}

func (e *contactExtractor) Format() evidence.Format { return evidence.FormatContact }

func (e *contactExtractor) Extract(ctx context.Context, entry evidence.Entry, archivePath string, emit Emit) error {
	data, err := readEntry(entry)
	if err != nil {
		return err
	}
	u := newUnits(entry, archivePath, evidence.FormatContact, emit)

	dec := vcard.NewDecoder(bytes.NewReader(data))
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		card, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if n == 1 {
				return perrors.EntryReadError(entry.Path, "malformed vCard", err)
			}
			return nil
		}

		component := fmt.Sprintf("VCARD#%d", n)
		for _, field := range sortedKeys(card) {
			if binaryProps[field] || field == vcard.FieldVersion {
				continue
			}
			for _, f := range card[field] {
				loc := evidence.Locator{Component: component, Field: field}
				if err := u.addNormalized(loc, []byte(f.Value)); err != nil {
					return err
				}
			}
		}
	}
}
