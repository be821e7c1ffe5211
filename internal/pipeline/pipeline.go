// Package pipeline is the core entry point: it walks a directory tree for
// evidence archives, routes their entries, extracts text, matches patterns
// and aggregates one result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/prometheus/internal/aggregate"
	"github.com/Aman-CERP/prometheus/internal/archive"
	"github.com/Aman-CERP/prometheus/internal/database"
	perrors "github.com/Aman-CERP/prometheus/internal/errors"
	"github.com/Aman-CERP/prometheus/internal/evidence"
	"github.com/Aman-CERP/prometheus/internal/extract"
	"github.com/Aman-CERP/prometheus/internal/locator"
	"github.com/Aman-CERP/prometheus/internal/matcher"
	"github.com/Aman-CERP/prometheus/internal/navigator"
)

// Scan searches every archive under root for the given patterns.
//
// Configuration problems (patterns that do not compile, an invalid root) are
// returned as fatal errors before any archive is opened. Everything else is
// recovered at archive or entry granularity and reported in the result
// statistics. When ctx is cancelled Scan stops taking new archives and
// returns the partial result with Stats.Canceled set and a nil error.
func Scan(ctx context.Context, root string, patterns []matcher.Definition, opts Options) (*evidence.ScanResult, error) {
	opts = opts.withDefaults()
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	logger := opts.Logger.With(slog.String("run_id", opts.RunID))

	m, err := matcher.Compile(patterns, matcher.Options{ContextWindow: opts.ContextWindow})
	if err != nil {
		return nil, err
	}
	registry := extract.NewRegistry(extract.Options{Logger: logger, Limits: opts.Limits})
	if err := checkFormats(registry, opts.Formats); err != nil {
		return nil, err
	}

	loc := locator.New(locator.Options{
		Root:           root,
		Extensions:     opts.Extensions,
		FollowSymlinks: opts.FollowSymlinks,
		Logger:         logger,
	})
	paths, err := loc.Locate(ctx)
	if err != nil {
		return nil, err
	}

	s := &scanner{
		opts:     opts,
		logger:   logger,
		matcher:  m,
		registry: registry,
		db:       database.NewReader(database.Options{TempDir: opts.TempDir, Logger: logger}),
	}

	started := time.Now()
	logger.Info("scan_started",
		slog.String("root", root),
		slog.Int("patterns", len(patterns)),
		slog.Int("workers", opts.Workers))

	agg := aggregate.New(m.Names())
	batches := agg.Start()

	// A plain group: one archive failing never cancels its siblings.
	var g errgroup.Group
	g.SetLimit(opts.Workers)
	for res := range paths {
		if res.Err != nil {
			// Already logged by the locator; the walk goes on.
			continue
		}
		if ctx.Err() != nil {
			break
		}
		path := res.Path
		g.Go(func() error {
			batches <- s.archive(ctx, path)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		agg.MarkCanceled()
	}
	result := agg.Finish()

	logger.Info("scan_finished",
		slog.Int("archives", result.Stats.ArchivesAttempted),
		slog.Int("archives_failed", result.Stats.ArchivesFailed),
		slog.Int("matches", result.Stats.TotalMatches),
		slog.Bool("canceled", result.Stats.Canceled),
		slog.Duration("elapsed", time.Since(started)))
	return result, nil
}

// checkFormats rejects allowlisted formats no extractor can decode.
func checkFormats(r *extract.Registry, allowed []evidence.Format) error {
	supported := r.Formats()
	for _, f := range allowed {
		if !slices.Contains(supported, f) {
			return perrors.ConfigError(fmt.Sprintf("no extractor for format %q", f), nil).
				WithSuggestion(fmt.Sprintf("Supported formats: %v", supported))
		}
	}
	return nil
}

// scanner holds what every worker shares. All of it is read-only.
type scanner struct {
	opts     Options
	logger   *slog.Logger
	matcher  *matcher.Matcher
	registry *extract.Registry
	db       *database.Reader
}

func (s *scanner) progress(ev ProgressEvent) {
	if s.opts.Progress != nil {
		s.opts.Progress(ev)
	}
}

// archive processes one container under the archive ceiling. Archives that
// fail contribute no records; archives interrupted by cancellation keep the
// records of the entries they finished.
func (s *scanner) archive(parent context.Context, path string) aggregate.Batch {
	ctx, cancel := context.WithTimeout(parent, s.opts.ArchiveTimeout)
	defer cancel()

	logger := s.logger.With(slog.String("archive", path))
	b := aggregate.Batch{Archive: path, Skipped: make(map[string]int)}

	err := archive.With(path, s.opts.Limits, func(a *archive.Archive) error {
		route := navigator.Plan(a.Manifest(), s.opts.Formats)
		for k, n := range route.Skipped {
			b.Skipped[k] += n
		}
		logger.Debug("archive_routed",
			slog.String("mode", string(route.Mode)),
			slog.Int("entries", len(route.Entries)),
			slog.Int("manifest", len(a.Manifest().Entries)))
		s.progress(ProgressEvent{Kind: EventArchiveStart, Archive: path, Entries: len(route.Entries)})

		for i, e := range route.Entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			matches := s.entry(ctx, logger, path, e, &b)
			s.progress(ProgressEvent{Kind: EventEntryDone, Archive: path, Entry: e.Path, Entries: i + 1, Matches: matches})
		}
		return ctx.Err()
	})

	switch {
	case err == nil:
		logger.Info("archive_done", slog.Int("matches", len(b.Records)))
		s.progress(ProgressEvent{Kind: EventArchiveDone, Archive: path, Matches: len(b.Records)})
		return b
	case parent.Err() != nil:
		err = perrors.Canceled("archive " + path)
	case errors.Is(err, context.DeadlineExceeded):
		err = perrors.Timeout("archive "+path, err)
		b.Records = nil
	default:
		b.Records = nil
	}

	f := failure(path, "", err)
	b.Failure = &f
	if f.Timeout {
		logger.Warn("unit_timeout", perrors.FormatForLog(err)...)
	} else {
		logger.Warn("archive_failed", perrors.FormatForLog(err)...)
	}
	s.progress(ProgressEvent{Kind: EventArchiveFailed, Archive: path, Err: err})
	return b
}

// entryResult is what one entry yields once it finished within its ceiling.
type entryResult struct {
	records   []evidence.MatchRecord
	blobCells int
	lossy     int
}

// entry extracts and matches one routed entry, adding its outcome to b. It
// returns the number of records the entry contributed.
func (s *scanner) entry(ctx context.Context, logger *slog.Logger, archivePath string, e evidence.Entry, b *aggregate.Batch) int {
	res, err := runBounded(ctx, s.opts.EntryTimeout, "entry "+e.Path, func(ctx context.Context) (entryResult, error) {
		var out entryResult
		emit := func(u evidence.TextUnit) error {
			if u.Lossy {
				out.lossy++
			}
			recs, err := s.matcher.Scan(ctx, u)
			if err != nil {
				return err
			}
			out.records = append(out.records, recs...)
			return nil
		}

		if e.Kind == evidence.KindDatabase {
			st, err := s.db.Read(ctx, e, archivePath, emit)
			out.blobCells = st.BlobCells
			return out, err
		}
		return out, s.registry.Extract(ctx, e, archivePath, emit)
	})

	if err != nil {
		if ctx.Err() != nil && !perrors.IsTimeout(err) {
			// The archive itself is going away; it reports the failure.
			return 0
		}
		f := failure(archivePath, e.Path, err)
		b.EntryFailures = append(b.EntryFailures, f)
		attrs := append([]any{slog.String("entry", e.Path)}, perrors.FormatForLog(err)...)
		if f.Timeout {
			logger.Warn("unit_timeout", attrs...)
		} else {
			logger.Warn("entry_failed", attrs...)
		}
		return 0
	}

	b.Records = append(b.Records, res.records...)
	b.BlobCells += res.blobCells
	b.LossyUnits += res.lossy
	return len(res.records)
}

func failure(archivePath, entry string, err error) evidence.Failure {
	code := perrors.GetCode(err)
	if code == "" {
		code = perrors.ErrCodeInternal
	}
	reason := err.Error()
	var pe *perrors.PrometheusError
	if errors.As(err, &pe) {
		reason = pe.Message
		if pe.Cause != nil && pe.Cause.Error() != pe.Message {
			reason += ": " + pe.Cause.Error()
		}
	}
	return evidence.Failure{
		Archive: archivePath,
		Entry:   entry,
		Code:    code,
		Reason:  reason,
		Timeout: code == perrors.ErrCodeTimeout,
	}
}
