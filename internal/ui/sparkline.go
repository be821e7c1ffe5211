package ui

import "strings"

// SparklineChars are the eight bar heights, lowest first.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline is a fixed-size ring of samples rendered as block characters.
type Sparkline struct {
	samples []float64
	head    int
	count   int
}

// NewSparkline creates a sparkline holding up to size samples.
func NewSparkline(size int) *Sparkline {
	if size <= 0 {
		size = 60
	}
	return &Sparkline{samples: make([]float64, size)}
}

// Add appends a sample, evicting the oldest when full.
func (s *Sparkline) Add(v float64) {
	s.samples[s.head] = v
	s.head = (s.head + 1) % len(s.samples)
	s.count++
}

// Count returns the number of samples added.
func (s *Sparkline) Count() int { return s.count }

// recent returns up to n of the newest samples, oldest first.
func (s *Sparkline) recent(n int) []float64 {
	held := min(s.count, len(s.samples))
	n = min(n, held)
	// The oldest held sample sits at head once the ring has wrapped.
	start := 0
	if s.count >= len(s.samples) {
		start = s.head
	}
	out := make([]float64, 0, n)
	for i := held - n; i < held; i++ {
		out = append(out, s.samples[(start+i)%len(s.samples)])
	}
	return out
}

// Render draws the newest width samples scaled to their maximum. Missing
// samples are padded with spaces on the right. width <= 0 renders the
// whole ring.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = len(s.samples)
	}
	vals := s.recent(width)

	peak := 0.0
	for _, v := range vals {
		peak = max(peak, v)
	}

	var sb strings.Builder
	sb.Grow(width * 3)
	for _, v := range vals {
		idx := 0
		if peak > 0 {
			idx = int(v / peak * float64(len(SparklineChars)-1))
		}
		idx = min(max(idx, 0), len(SparklineChars)-1)
		sb.WriteRune(SparklineChars[idx])
	}
	sb.WriteString(strings.Repeat(" ", width-len(vals)))
	return sb.String()
}

// Clear removes all samples.
func (s *Sparkline) Clear() {
	clear(s.samples)
	s.head = 0
	s.count = 0
}
