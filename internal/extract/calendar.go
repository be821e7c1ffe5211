package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/emersion/go-ical"

	perrors "github.com/Aman-CERP/prometheus/internal/errors"
	"github.com/Aman-CERP/prometheus/internal/evidence"
)

// binaryProps carry encoded payloads rather than searchable text.
var binaryProps = map[string]bool{
	"ATTACH": true,
	"PHOTO":  true,
	"LOGO":   true,
	"SOUND":  true,
	"KEY":    true,
}

// calendarExtractor handles iCalendar files. Each property of each
// component is one unit, located as component=<NAME#n>;field=<PROP>.
type calendarExtractor struct{}

func (e *calendarExtractor) Format() evidence.Format { return evidence.FormatCalendar }

func (e *calendarExtractor) Extract(ctx context.Context, entry evidence.Entry, archivePath string, emit Emit) error {
	data, err := readEntry(entry)
	if err != nil {
		return err
	}
	u := newUnits(entry, archivePath, evidence.FormatCalendar, emit)

	dec := ical.NewDecoder(bytes.NewReader(data))
	calendars := 0
	// Components are numbered across the whole file, not per calendar.
	w := &calendarWalk{ctx: ctx, u: u, counts: make(map[string]int)}
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if calendars == 0 {
				return perrors.EntryReadError(entry.Path, "malformed calendar", err)
			}
			// Keep what the earlier calendars yielded.
			break
		}
		calendars++
		w.calendar = calendars
		if err := w.component(cal.Component, ""); err != nil {
			return err
		}
	}
	return nil
}

type calendarWalk struct {
	ctx      context.Context
	u        *units
	counts   map[string]int
	calendar int
}

// component emits the properties of c and its children. Properties of the
// first calendar object have no component; later calendars in the same file
// are VCALENDAR#n.
func (w *calendarWalk) component(c *ical.Component, parent string) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	name := parent
	childParent := parent
	if c.Name == ical.CompCalendar {
		if w.calendar > 1 {
			name = fmt.Sprintf("%s#%d", c.Name, w.calendar)
		}
	} else {
		key := parent + "/" + c.Name
		w.counts[key]++
		name = fmt.Sprintf("%s#%d", c.Name, w.counts[key])
		if parent != "" {
			name = parent + "/" + name
		}
		childParent = name
	}

	for _, prop := range sortedKeys(c.Props) {
		if binaryProps[prop] {
			continue
		}
		for _, p := range c.Props[prop] {
			text, err := p.Text()
			if err != nil {
				text = p.Value
			}
			if err := w.u.addNormalized(evidence.Locator{Component: name, Field: prop}, []byte(text)); err != nil {
				return err
			}
		}
	}
	for _, child := range c.Children {
		if err := w.component(child, childParent); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
