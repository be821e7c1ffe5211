package ui

import (
	"sync"
	"time"

	"github.com/Aman-CERP/prometheus/internal/pipeline"
)

// FailureEvent is an archive that could not be scanned.
type FailureEvent struct {
	Archive string
	Err     error
}

// ProgressTracker folds pipeline events into display state.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu        sync.RWMutex
	startTime time.Time

	archivesStarted int
	archivesDone    int
	archivesFailed  int
	entriesTotal    int
	entriesDone     int
	matches         int
	currentArchive  string
	currentEntry    string
	failures        []FailureEvent

	// Speed tracking, in entries per second.
	lastDone      int
	lastSpeedCalc time.Time
	currentSpeed  float64
	avgSpeed      float64
	peakSpeed     float64
	speedSamples  int
	sparkline     *Sparkline

	lastETA time.Duration
	now     func() time.Time
}

// SpeedStats contains speed metrics for display.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a snapshot of the tracker.
type ProgressStats struct {
	ArchivesStarted int
	ArchivesDone    int
	ArchivesFailed  int
	EntriesTotal    int
	EntriesDone     int
	Matches         int
	Progress        float64 // entries done / entries routed so far, 0..1
	ETA             time.Duration
	CurrentArchive  string
	CurrentEntry    string
	Speed           SpeedStats
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	t := now()
	return &ProgressTracker{
		startTime:     t,
		lastSpeedCalc: t,
		sparkline:     NewSparkline(60),
		now:           now,
	}
}

// Record applies one pipeline event.
func (p *ProgressTracker) Record(ev pipeline.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case pipeline.EventArchiveStart:
		p.archivesStarted++
		p.entriesTotal += ev.Entries
		p.currentArchive = ev.Archive
		p.currentEntry = ""
	case pipeline.EventEntryDone:
		p.entriesDone++
		p.matches += ev.Matches
		p.currentArchive = ev.Archive
		p.currentEntry = ev.Entry
		p.sampleSpeed()
	case pipeline.EventArchiveDone:
		p.archivesDone++
	case pipeline.EventArchiveFailed:
		p.archivesFailed++
		p.failures = append(p.failures, FailureEvent{Archive: ev.Archive, Err: ev.Err})
	}
}

// sampleSpeed updates the speed metrics at most every 500ms. Must be called
// with the lock held.
func (p *ProgressTracker) sampleSpeed() {
	now := p.now()
	elapsed := now.Sub(p.lastSpeedCalc)
	if elapsed < 500*time.Millisecond {
		return
	}

	if delta := p.entriesDone - p.lastDone; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.currentSpeed = speed

		// Exponential smoothing, 0.2 keeps the average responsive but stable.
		p.speedSamples++
		if p.speedSamples == 1 {
			p.avgSpeed = speed
		} else {
			p.avgSpeed = 0.2*speed + 0.8*p.avgSpeed
		}
		p.peakSpeed = max(p.peakSpeed, speed)
		p.sparkline.Add(speed)
	}

	p.lastDone = p.entriesDone
	p.lastSpeedCalc = now
}

// Elapsed returns time since tracker creation.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.now().Sub(p.startTime)
}

// Stats returns a snapshot. It takes the write lock because the ETA
// smoothing state advances on every call.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		ArchivesStarted: p.archivesStarted,
		ArchivesDone:    p.archivesDone,
		ArchivesFailed:  p.archivesFailed,
		EntriesTotal:    p.entriesTotal,
		EntriesDone:     p.entriesDone,
		Matches:         p.matches,
		Progress:        p.progress(),
		ETA:             p.calculateETA(),
		CurrentArchive:  p.currentArchive,
		CurrentEntry:    p.currentEntry,
		Speed: SpeedStats{
			Current: p.currentSpeed,
			Avg:     p.avgSpeed,
			Peak:    p.peakSpeed,
		},
	}
}

func (p *ProgressTracker) progress() float64 {
	if p.entriesTotal == 0 {
		return 0
	}
	return min(float64(p.entriesDone)/float64(p.entriesTotal), 1)
}

// etaSmoothingFactor weights the newest ETA estimate.
const etaSmoothingFactor = 0.3

// calculateETA estimates the time left for the entries routed so far. Must
// be called with the lock held.
func (p *ProgressTracker) calculateETA() time.Duration {
	progress := p.progress()
	if progress <= 0 || progress >= 1 {
		return 0
	}

	elapsed := p.now().Sub(p.startTime)
	remaining := time.Duration(float64(elapsed)/progress) - elapsed
	if remaining < 0 {
		return 0
	}

	if p.lastETA == 0 {
		p.lastETA = remaining
		return remaining
	}
	p.lastETA = time.Duration(etaSmoothingFactor*float64(remaining) + (1-etaSmoothingFactor)*float64(p.lastETA))
	return p.lastETA
}

// Failures returns the archives that failed so far.
func (p *ProgressTracker) Failures() []FailureEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]FailureEvent, len(p.failures))
	copy(out, p.failures)
	return out
}

// RenderSparkline returns the throughput sparkline.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sparkline.Render(width)
}
