package locator

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	perrors "github.com/Aman-CERP/prometheus/internal/errors"
)

// Locator discovers archive files in a directory tree.
type Locator struct {
	opts       Options
	extensions map[string]bool
	logger     *slog.Logger
}

// New creates a new Locator instance.
func New(opts Options) *Locator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exts := NormalizeExtensions(opts.Extensions)
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		set[e] = true
	}
	return &Locator{opts: opts, extensions: set, logger: logger}
}

// Locate walks the root directory and streams matching archive paths.
// The channel is closed when the walk is complete or ctx is cancelled.
// Each call restarts the walk from scratch.
func (l *Locator) Locate(ctx context.Context) (<-chan Result, error) {
	root := l.opts.Root
	if root == "" {
		root = "."
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, perrors.New(perrors.ErrCodeInvalidRoot, "failed to get absolute path", err).
			WithDetail("root", root)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, perrors.New(perrors.ErrCodeInvalidRoot, "scan root does not exist or is unreadable", err).
			WithDetail("root", absRoot).
			WithSuggestion("Pass an existing directory as the scan root")
	}
	if !info.IsDir() {
		return nil, perrors.New(perrors.ErrCodeInvalidRoot, "scan root is not a directory", nil).
			WithDetail("root", absRoot)
	}

	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, perrors.New(perrors.ErrCodeInvalidRoot, "failed to resolve scan root", err).
			WithDetail("root", absRoot)
	}

	results := make(chan Result, 64)

	go func() {
		defer close(results)
		w := &walk{
			Locator: l,
			ctx:     ctx,
			results: results,
			dirs:    map[string]bool{realRoot: true},
			files:   make(map[string]bool),
		}
		if err := w.dir(absRoot, realRoot); err != nil && ctx.Err() == nil {
			w.send(Result{Err: err})
		}
		l.logger.Debug("archive walk complete",
			slog.String("root", absRoot),
			slog.Int("archives", w.found))
	}()

	return results, nil
}

// walk holds the state of one traversal.
type walk struct {
	*Locator
	ctx     context.Context
	results chan<- Result
	dirs    map[string]bool // real paths of visited directories
	files   map[string]bool // real paths of yielded files
	found   int
}

// dir lists one directory. path is the discovered path, real its resolved
// location on disk.
func (w *walk) dir(path, real string) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		w.logger.Warn("skipping unreadable directory",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if !w.send(Result{Err: fmt.Errorf("read directory %s: %w", path, err)}) {
			return w.ctx.Err()
		}
		// ReadDir may return the entries read before the failure.
		if len(entries) == 0 {
			return nil
		}
	}

	for _, d := range entries {
		child := filepath.Join(path, d.Name())
		childReal := filepath.Join(real, d.Name())

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			if !w.opts.FollowSymlinks {
				continue
			}
			if err := w.symlink(child); err != nil {
				return err
			}

		case d.IsDir():
			if err := w.descend(child, childReal); err != nil {
				return err
			}

		case d.Type().IsRegular():
			if !w.yield(child, childReal) {
				return w.ctx.Err()
			}
		}
	}
	return nil
}

func (w *walk) symlink(path string) error {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		w.logger.Debug("skipping dangling symlink",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil
	}
	info, err := os.Stat(target)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		return w.descend(path, target)
	}
	if info.Mode().IsRegular() && !w.yield(path, target) {
		return w.ctx.Err()
	}
	return nil
}

func (w *walk) descend(path, real string) error {
	if w.dirs[real] {
		w.logger.Warn("skipping already visited directory",
			slog.String("path", path),
			slog.String("real_path", real))
		return nil
	}
	w.dirs[real] = true
	return w.dir(path, real)
}

// yield sends a matching file once per real path. Returns false when the
// context was cancelled.
func (w *walk) yield(path, real string) bool {
	if !w.extensions[strings.ToLower(filepath.Ext(path))] {
		return true
	}
	if w.files[real] {
		return true
	}
	w.files[real] = true
	w.found++
	return w.send(Result{Path: path})
}

func (w *walk) send(r Result) bool {
	select {
	case w.results <- r:
		return true
	case <-w.ctx.Done():
		return false
	}
}
