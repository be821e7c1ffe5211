// Package locator discovers evidence archives under a root directory.
// It walks the tree depth-first in lexical order, yields every matching
// regular file exactly once and survives symlink cycles and unreadable
// directories.
package locator

import (
	"log/slog"
	"strings"
)

// DefaultExtension is the archive extension searched for when none is given.
const DefaultExtension = ".ufdr"

// Options configures the locator behavior.
type Options struct {
	// Root is the directory to walk.
	Root string

	// Extensions lists the archive extensions to yield (case-insensitive,
	// leading dot optional). Empty means DefaultExtension.
	Extensions []string

	// FollowSymlinks enables following symbolic links (default: false).
	FollowSymlinks bool

	// Logger receives walk diagnostics. Nil uses slog.Default().
	Logger *slog.Logger
}

// Result is returned from the locator channel. Exactly one of Path or Err
// is set; an Err never stops the walk.
type Result struct {
	Path string // Absolute path of the archive as discovered
	Err  error
}

// NormalizeExtensions lowercases extensions and adds the leading dot.
// Duplicates and blanks are removed.
func NormalizeExtensions(exts []string) []string {
	seen := make(map[string]bool, len(exts))
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	if len(out) == 0 {
		return []string{DefaultExtension}
	}
	return out
}
