package matcher

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	perrors "github.com/Aman-CERP/prometheus/internal/errors"
	"github.com/Aman-CERP/prometheus/internal/evidence"
)

// DefaultContextWindow is the number of characters kept on each side of a
// match.
const DefaultContextWindow = 40

// Options configures a Matcher.
type Options struct {
	// ContextWindow is the number of runes captured on each side of a match.
	ContextWindow int
}

type compiled struct {
	def Definition
	re  *regexp.Regexp
}

// Matcher holds compiled patterns. It is safe for concurrent use.
type Matcher struct {
	patterns []compiled
	window   int
}

// Compile compiles every definition once. Any failure is fatal for the run.
func Compile(defs []Definition, opts Options) (*Matcher, error) {
	if len(defs) == 0 {
		return nil, perrors.ConfigError("no patterns defined", nil).
			WithSuggestion("Provide a pattern file with --patterns")
	}
	if opts.ContextWindow < 0 {
		return nil, perrors.ConfigError(fmt.Sprintf("context window must not be negative, got %d", opts.ContextWindow), nil)
	}

	m := &Matcher{patterns: make([]compiled, 0, len(defs)), window: opts.ContextWindow}
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			return nil, perrors.ConfigError("pattern without a name", nil)
		}
		if seen[d.Name] {
			return nil, perrors.ConfigError(fmt.Sprintf("duplicate pattern name %q", d.Name), nil)
		}
		seen[d.Name] = true

		if d.Expression == "" {
			return nil, perrors.PatternCompileError(d.Name, fmt.Errorf("empty expression"))
		}
		re, err := regexp.Compile(Source(d))
		if err != nil {
			return nil, perrors.PatternCompileError(d.Name, err).WithDetail("expression", d.Expression)
		}
		m.patterns = append(m.patterns, compiled{def: d, re: re})
	}
	return m, nil
}

// Source returns the RE2 source a definition compiles to, options included.
func Source(d Definition) string {
	expr := d.Expression
	if d.Options.Has(Unicode) {
		expr = unicodeClasses(expr)
	}
	var flags strings.Builder
	if d.Options.Has(CaseInsensitive) {
		flags.WriteByte('i')
	}
	if d.Options.Has(Multiline) {
		flags.WriteByte('m')
	}
	if d.Options.Has(DotAll) {
		flags.WriteByte('s')
	}
	if flags.Len() == 0 {
		return expr
	}
	return "(?" + flags.String() + ")" + expr
}

// Names returns the pattern names in definition order.
func (m *Matcher) Names() []string {
	names := make([]string, len(m.patterns))
	for i, p := range m.patterns {
		names[i] = p.def.Name
	}
	return names
}

// Scan finds every non-overlapping match of every pattern in the unit.
// Patterns run in definition order; empty matches are ignored.
func (m *Matcher) Scan(ctx context.Context, unit evidence.TextUnit) ([]evidence.MatchRecord, error) {
	text := unit.Text
	var out []evidence.MatchRecord
	for _, p := range m.patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		locs := p.re.FindAllStringIndex(text, -1)
		var runes, last int
		for _, loc := range locs {
			start, end := loc[0], loc[1]
			if start == end {
				continue
			}
			runes += utf8.RuneCountInString(text[last:start])
			last = start
			out = append(out, evidence.MatchRecord{
				ArchivePath:   unit.ArchivePath,
				EntryPath:     unit.EntryPath,
				ExtractorKind: unit.ExtractorKind,
				Pattern:       p.def.Name,
				Value:         text[start:end],
				Context:       contextWindow(text, start, end, m.window),
				Locator:       unit.Locator,
				Offset:        runes,
				Timestamp:     unit.Timestamp,
				Lossy:         unit.Lossy,
			})
		}
	}
	return out, nil
}

// contextWindow returns the match with up to n runes on each side, clamped to
// the text.
func contextWindow(text string, start, end, n int) string {
	lo := start
	for i := 0; i < n && lo > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:lo])
		lo -= size
	}
	hi := end
	for i := 0; i < n && hi < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[hi:])
		hi += size
	}
	return text[lo:hi]
}

// Unicode-aware replacements for the ASCII Perl classes.
const (
	uniDigit = `\p{Nd}`
	uniWord  = `\p{L}\p{N}\p{M}\p{Pc}`
	uniSpace = `\s\p{Z}\x{85}`
)

// unicodeClasses rewrites \d, \w and \s (and their negations) into Unicode
// property classes. Inside a bracket class the negated forms \W and \S have
// no single-class equivalent and stay ASCII.
func unicodeClasses(expr string) string {
	var b strings.Builder
	inClass := false
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if c == '\\' && i+1 < len(expr) {
			next := expr[i+1]
			i++
			switch next {
			case 'd':
				b.WriteString(uniDigit)
			case 'D':
				b.WriteString(`\P{Nd}`)
			case 'w':
				if inClass {
					b.WriteString(uniWord)
				} else {
					b.WriteString("[" + uniWord + "]")
				}
			case 'W':
				if inClass {
					b.WriteString(`\W`)
				} else {
					b.WriteString("[^" + uniWord + "]")
				}
			case 's':
				if inClass {
					b.WriteString(uniSpace)
				} else {
					b.WriteString("[" + uniSpace + "]")
				}
			case 'S':
				if inClass {
					b.WriteString(`\S`)
				} else {
					b.WriteString("[^" + uniSpace + "]")
				}
			case 'Q':
				// Quoted literal text runs to \E.
				end := strings.Index(expr[i+1:], `\E`)
				if end < 0 {
					b.WriteString(expr[i-1:])
					return b.String()
				}
				b.WriteString(expr[i-1 : i+1+end+2])
				i += end + 2
			default:
				b.WriteByte('\\')
				b.WriteByte(next)
			}
			continue
		}

		switch {
		case !inClass && c == '[':
			inClass = true
			b.WriteByte(c)
			// A leading ^ and a leading ] belong to the class.
			if i+1 < len(expr) && expr[i+1] == '^' {
				b.WriteByte('^')
				i++
			}
			if i+1 < len(expr) && expr[i+1] == ']' {
				b.WriteByte(']')
				i++
			}
		case inClass && c == '[' && i+1 < len(expr) && expr[i+1] == ':':
			// POSIX class such as [:alpha:].
			end := strings.Index(expr[i:], ":]")
			if end < 0 {
				b.WriteByte(c)
				continue
			}
			b.WriteString(expr[i : i+end+2])
			i += end + 1
		case inClass && c == ']':
			inClass = false
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
