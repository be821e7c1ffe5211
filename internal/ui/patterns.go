package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/prometheus/internal/matcher"
)

// PatternsRenderer lists pattern definitions.
type PatternsRenderer struct {
	out    io.Writer
	styles Styles
}

// NewPatternsRenderer creates a pattern list renderer.
func NewPatternsRenderer(out io.Writer, noColor bool) *PatternsRenderer {
	return &PatternsRenderer{out: out, styles: GetStyles(noColor || DetectNoColor() || !IsTTY(out))}
}

// Render prints one block per definition in load order.
func (r *PatternsRenderer) Render(source string, defs []matcher.Definition) {
	_, _ = fmt.Fprintln(r.out, r.styles.Header.Render(fmt.Sprintf("%d patterns from %s", len(defs), source)))

	width := 0
	for _, d := range defs {
		width = max(width, len(d.Name))
	}
	for _, d := range defs {
		name := r.styles.Active.Render(d.Name + strings.Repeat(" ", width-len(d.Name)))
		opts := r.styles.Label.Render("[" + d.Options.String() + "]")
		_, _ = fmt.Fprintf(r.out, "  %s  %s  %s\n", name, opts, r.styles.Code.Render(d.Expression))
	}
}
