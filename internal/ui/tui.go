package ui

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/prometheus/internal/pipeline"
)

// TUIRenderer provides a live terminal view using bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *scanModel
	tracker *ProgressTracker
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails for non-TTY output.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newScanModel(tracker, cfg.Root, cfg.OnInterrupt)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	// The program outlives a canceled scan so the partial summary is shown.
	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer. The model reads the tracker on each
// tick, so events only need to reach the tracker.
func (r *TUIRenderer) UpdateProgress(ev pipeline.ProgressEvent) {
	r.tracker.Record(ev)
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer. It waits briefly for the final frame.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()

	if program == nil {
		return nil
	}

	select {
	case <-r.done:
	case <-time.After(500 * time.Millisecond):
		program.Quit()
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			// Do not hang on an unresponsive terminal.
		}
	}
	return nil
}

type completeMsg CompletionStats
type tickMsg time.Time

// scanModel is the bubbletea model for scan progress.
type scanModel struct {
	tracker     *ProgressTracker
	root        string
	onInterrupt func()

	width       int
	interrupted bool
	complete    bool
	final       CompletionStats
	spinner     spinner.Model
	progressBar progress.Model
	styles      Styles
}

func newScanModel(tracker *ProgressTracker, root string, onInterrupt func()) *scanModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAmber))

	p := progress.New(
		progress.WithSolidFill(ColorAmber),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &scanModel{
		tracker:     tracker,
		root:        root,
		onInterrupt: onInterrupt,
		spinner:     s,
		progressBar: p,
		styles:      DefaultStyles(),
		width:       80,
	}
}

// Init implements tea.Model.
func (m *scanModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *scanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// The scan keeps running until the pipeline drains; the final
			// summary still arrives through completeMsg.
			if !m.interrupted {
				m.interrupted = true
				if m.onInterrupt != nil {
					m.onInterrupt()
				}
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = max(msg.Width-20, 20)

	case completeMsg:
		m.complete = true
		m.final = CompletionStats(msg)
		return m, tea.Quit

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *scanModel) View() string {
	if m.complete {
		return m.renderComplete()
	}

	width := max(m.width-4, 40)
	stats := m.tracker.Stats()

	sections := []string{
		m.renderProgress(stats),
		m.renderCounters(stats),
		m.renderSpeed(stats),
		m.renderDivider(width),
		m.renderSparkline(width),
	}
	if stats.CurrentArchive != "" {
		sections = append(sections, m.renderDivider(width), m.renderCurrent(stats, width))
	}

	title := "Prometheus Scan"
	if m.root != "" {
		title = "Prometheus Scan • " + m.root
	}
	return m.wrapInPanel(title, strings.Join(sections, "\n"), width) + "\n" + m.renderStatusBar(stats)
}

func (m *scanModel) renderProgress(stats ProgressStats) string {
	if stats.EntriesTotal == 0 {
		return fmt.Sprintf("%s Locating archives...", m.spinner.View())
	}
	bar := m.progressBar.ViewAs(stats.Progress)
	pct := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100))
	return bar + "  " + pct
}

func (m *scanModel) renderCounters(stats ProgressStats) string {
	finished := stats.ArchivesDone + stats.ArchivesFailed
	parts := []string{
		m.styles.Label.Render(fmt.Sprintf("Archives %d/%d", finished, stats.ArchivesStarted)),
		m.styles.Label.Render(fmt.Sprintf("Entries %d/%d", stats.EntriesDone, stats.EntriesTotal)),
		m.styles.Active.Render(fmt.Sprintf("Matches %d", stats.Matches)),
	}
	return strings.Join(parts, m.styles.Dim.Render("  •  "))
}

func (m *scanModel) renderSpeed(stats ProgressStats) string {
	speed := fmt.Sprintf("Speed: %.0f entries/s", stats.Speed.Current)
	if stats.Speed.Avg > 0 {
		speed += fmt.Sprintf(" (avg: %.0f, peak: %.0f)", stats.Speed.Avg, stats.Speed.Peak)
	}
	out := m.styles.Speed.Render(speed)
	if stats.ETA > 0 {
		out += m.styles.Dim.Render("  •  ") + m.styles.Label.Render("ETA: "+formatDuration(stats.ETA))
	}
	return out
}

func (m *scanModel) renderSparkline(width int) string {
	spark := m.tracker.RenderSparkline(max(width-14, 10))
	return m.styles.Sparkline.Render(spark) + " " + m.styles.Dim.Render("throughput")
}

func (m *scanModel) renderCurrent(stats ProgressStats, width int) string {
	current := stats.CurrentArchive
	if stats.CurrentEntry != "" {
		current += "!" + stats.CurrentEntry
	}
	return m.styles.Dim.Render(truncatePath(current, width-2))
}

func (m *scanModel) renderDivider(width int) string {
	return m.styles.Border.Render(strings.Repeat("─", width))
}

func (m *scanModel) wrapInPanel(title, content string, width int) string {
	panel := m.styles.Panel.Width(width)
	return lipgloss.JoinVertical(lipgloss.Left, m.styles.Header.Render(title), panel.Render(content))
}

func (m *scanModel) renderStatusBar(stats ProgressStats) string {
	hint := "q to stop"
	if m.interrupted {
		hint = "stopping, finishing current entries..."
	}
	if stats.ArchivesFailed == 0 {
		return m.styles.Dim.Render(hint)
	}
	failed := m.styles.Error.Render(fmt.Sprintf("✗ %d archives failed", stats.ArchivesFailed))
	return failed + m.styles.Dim.Render("  │  "+hint)
}

func (m *scanModel) renderComplete() string {
	s := m.final.Stats
	width := max(m.width-4, 40)

	var lines []string
	switch {
	case s.Canceled:
		lines = append(lines, m.styles.Warning.Render("⚠ Scan Canceled (partial results)"))
	case s.ArchivesFailed > 0:
		lines = append(lines, m.styles.Warning.Render("✓ Scan Complete with failures"))
	default:
		lines = append(lines, m.styles.Success.Render("✓ Scan Complete"))
	}
	lines = append(lines, "")

	row := func(label string, value any) {
		lines = append(lines, fmt.Sprintf("%s %s",
			m.styles.Label.Render(fmt.Sprintf("%-10s", label)),
			m.styles.Active.Render(fmt.Sprint(value))))
	}
	row("Archives:", fmt.Sprintf("%d (%d failed)", s.ArchivesAttempted, s.ArchivesFailed))
	row("Matches:", s.TotalMatches)
	row("Duration:", formatDuration(m.final.Duration))

	for _, name := range slices.Sorted(maps.Keys(s.MatchesByPattern)) {
		lines = append(lines, m.styles.Dim.Render(fmt.Sprintf("  %-20s %d", name, s.MatchesByPattern[name])))
	}
	if s.Timeouts > 0 {
		lines = append(lines, "", m.styles.Warning.Render(fmt.Sprintf("⚠ %d timeouts", s.Timeouts)))
	}
	for _, f := range s.Failures {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %s: %s", truncatePath(f.Archive, width/2), f.Code)))
	}
	if len(m.final.Outputs) > 0 {
		lines = append(lines, "")
		for _, p := range m.final.Outputs {
			lines = append(lines, m.styles.Label.Render("→ "+p))
		}
	}

	panel := m.styles.Panel.
		BorderForeground(lipgloss.Color(ColorAmber)).
		Padding(1, 2).
		Width(width)
	return panel.Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration formats a duration as 42s, 3m 5s or 1h 20m.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// truncatePath keeps the tail of path, which names the entry, within maxLen.
func truncatePath(path string, maxLen int) string {
	if maxLen < 4 {
		maxLen = 4
	}
	r := []rune(path)
	if len(r) <= maxLen {
		return path
	}
	return "..." + string(r[len(r)-maxLen+3:])
}

var _ Renderer = (*TUIRenderer)(nil)
