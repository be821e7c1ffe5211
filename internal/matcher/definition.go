// Package matcher compiles named pattern definitions and finds their matches
// in text units.
package matcher

import (
	"strconv"
	"strings"

	perrors "github.com/Aman-CERP/prometheus/internal/errors"
)

// Option is a bit set of matching options.
type Option uint8

const (
	// CaseInsensitive matches regardless of letter case.
	CaseInsensitive Option = 1 << iota
	// Multiline makes ^ and $ match at line boundaries.
	Multiline
	// DotAll lets . match newlines.
	DotAll
	// Unicode makes \d, \w and \s match Unicode digits, letters and spaces.
	Unicode
)

// DefaultOptions apply to definitions that do not name any option.
const DefaultOptions = CaseInsensitive

var optionNames = map[string]Option{
	"ignorecase":          CaseInsensitive,
	"case-insensitive":    CaseInsensitive,
	"i":                   CaseInsensitive,
	"multiline":           Multiline,
	"m":                   Multiline,
	"dotall":              DotAll,
	"dot-matches-newline": DotAll,
	"s":                   DotAll,
	"unicode":             Unicode,
	"u":                   Unicode,
}

// canonical names, in bit order, used by String.
var optionOrder = []struct {
	opt  Option
	name string
}{
	{CaseInsensitive, "ignorecase"},
	{Multiline, "multiline"},
	{DotAll, "dotall"},
	{Unicode, "unicode"},
}

// ParseOption resolves one option name. Names are case-insensitive.
func ParseOption(name string) (Option, error) {
	opt, ok := optionNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, perrors.ConfigError("unknown pattern option "+strconv.Quote(name), nil).
			WithSuggestion("Use one of: ignorecase, multiline, dotall, unicode")
	}
	return opt, nil
}

// ParseOptions combines option names into one set.
func ParseOptions(names []string) (Option, error) {
	var set Option
	for _, n := range names {
		opt, err := ParseOption(n)
		if err != nil {
			return 0, err
		}
		set |= opt
	}
	return set, nil
}

// Has reports whether every bit of o is set.
func (s Option) Has(o Option) bool { return s&o == o }

// Names returns the canonical names of the set options.
func (s Option) Names() []string {
	var out []string
	for _, o := range optionOrder {
		if s.Has(o.opt) {
			out = append(out, o.name)
		}
	}
	return out
}

func (s Option) String() string {
	if s == 0 {
		return "none"
	}
	return strings.Join(s.Names(), ",")
}

// Definition is one named pattern.
type Definition struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"`
	Options    Option `json:"-" yaml:"-"`
}
