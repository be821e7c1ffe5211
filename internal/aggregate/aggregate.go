// Package aggregate merges per-archive batches into one ordered,
// deduplicated scan result.
//
// The Aggregator is the only shared-write point of a scan: workers send
// finished batches on its channel and a single goroutine folds them in.
package aggregate

import (
	"cmp"
	"slices"
	"sync"

	"github.com/Aman-CERP/prometheus/internal/evidence"
)

// Batch is everything one archive produced.
type Batch struct {
	Archive string
	Records []evidence.MatchRecord

	// Failure is set when the archive as a whole could not be processed.
	// Records may still hold matches from entries finished before it failed.
	Failure *evidence.Failure

	EntryFailures []evidence.Failure
	Skipped       map[string]int
	BlobCells     int
	LossyUnits    int
}

// Aggregator collects batches until Finish is called.
type Aggregator struct {
	patterns []string

	in   chan Batch
	done chan struct{}

	mu       sync.Mutex
	started  bool
	finished bool
	canceled bool

	seen    map[evidence.Key]struct{}
	records []evidence.MatchRecord
	stats   evidence.RunStats
}

// New creates an aggregator. patterns seeds the per-pattern counters so
// patterns without matches still report zero.
func New(patterns []string) *Aggregator {
	a := &Aggregator{
		patterns: slices.Clone(patterns),
		in:       make(chan Batch, 16),
		done:     make(chan struct{}),
		seen:     make(map[evidence.Key]struct{}),
		stats: evidence.RunStats{
			EntriesSkipped:   make(map[string]int),
			MatchesByPattern: make(map[string]int, len(patterns)),
		},
	}
	for _, p := range patterns {
		a.stats.MatchesByPattern[p] = 0
	}
	return a
}

// Start launches the consumer goroutine and returns the channel batches are
// sent on. Calling Start again returns the same channel.
func (a *Aggregator) Start() chan<- Batch {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		a.started = true
		go a.run()
	}
	return a.in
}

func (a *Aggregator) run() {
	defer close(a.done)
	for b := range a.in {
		a.add(b)
	}
}

// MarkCanceled flags the result as partial.
func (a *Aggregator) MarkCanceled() {
	a.mu.Lock()
	a.canceled = true
	a.mu.Unlock()
}

// Finish closes the batch channel, waits for queued batches and returns the
// sorted result. No batch may be sent after Finish is called.
func (a *Aggregator) Finish() *evidence.ScanResult {
	a.mu.Lock()
	if a.finished {
		a.mu.Unlock()
		return a.result()
	}
	a.finished = true
	started := a.started
	a.mu.Unlock()

	close(a.in)
	if started {
		<-a.done
	} else {
		a.run()
	}
	return a.result()
}

func (a *Aggregator) add(b Batch) {
	st := &a.stats
	st.ArchivesAttempted++
	if b.Failure != nil {
		st.ArchivesFailed++
		st.Failures = append(st.Failures, *b.Failure)
		if b.Failure.Timeout {
			st.Timeouts++
		}
	} else {
		st.ArchivesSucceeded++
	}

	for _, f := range b.EntryFailures {
		st.EntryFailures = append(st.EntryFailures, f)
		if f.Timeout {
			st.Timeouts++
		}
	}
	for k, n := range b.Skipped {
		st.EntriesSkipped[k] += n
	}
	st.BlobCellsSkipped += b.BlobCells
	st.LossyUnits += b.LossyUnits

	for _, r := range b.Records {
		key := r.Key()
		if _, dup := a.seen[key]; dup {
			continue
		}
		a.seen[key] = struct{}{}
		a.records = append(a.records, r)
		st.MatchesByPattern[r.Pattern]++
	}
}

func (a *Aggregator) result() *evidence.ScanResult {
	slices.SortFunc(a.records, evidence.MatchRecord.Compare)
	sortFailures(a.stats.Failures)
	sortFailures(a.stats.EntryFailures)

	a.mu.Lock()
	a.stats.Canceled = a.canceled
	a.mu.Unlock()

	a.stats.TotalMatches = len(a.records)
	return &evidence.ScanResult{
		Records: slices.Clone(a.records),
		Stats:   a.stats,
	}
}

// Batches arrive in completion order; failures are sorted so the stats are
// reproducible.
func sortFailures(fs []evidence.Failure) {
	slices.SortFunc(fs, func(x, y evidence.Failure) int {
		return cmp.Or(
			cmp.Compare(x.Archive, y.Archive),
			cmp.Compare(x.Entry, y.Entry),
			cmp.Compare(x.Code, y.Code),
			cmp.Compare(x.Reason, y.Reason),
		)
	})
}
