package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/mus/pkg/mus/manifest"
	"github.com/jamesainslie/mus/pkg/mus/types"
)

// DefaultInterval is how often the view polls the run status.
const DefaultInterval = 250 * time.Millisecond

// Options configures the progress view.
type Options struct {
	// Title is shown in the header, e.g. "mus: verifying photos.mu5".
	Title string

	Workers int

	// Interval overrides DefaultInterval.
	Interval time.Duration
}

// StatusSource returns a fresh status snapshot on every call.
type StatusSource func() types.Status

type phase int

const (
	phaseStarting phase = iota
	phaseBuilding
	phaseCalculating
	phaseFinished
	phaseFailed
)

// Messages forwarded from the engine listener.
type (
	buildingMsg    struct{}
	calculatingMsg struct{ status types.Status }
	finishedMsg    struct{ status types.Status }
	errorMsg       struct{ err error }
)

// doneMsg is sent once the engine's Run has returned.
type doneMsg struct{ err error }

type tickMsg time.Time

// Model is the Bubble Tea model of a running engine.
type Model struct {
	opts    Options
	source  StatusSource
	cancel  context.CancelFunc
	spinner spinner.Model
	bar     progress.Model

	phase     phase
	status    types.Status
	warnings  []string
	err       error
	done      bool
	cancelled bool
	width     int
	height    int
}

// NewModel creates a model polling source. cancel is called when the user
// stops the run.
func NewModel(opts Options, source StatusSource, cancel context.CancelFunc) Model {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return Model{
		opts:    opts,
		source:  source,
		cancel:  cancel,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		status: types.Status{
			BytesPerSecond:   types.Unmeasurable,
			SecondsRemaining: types.Unmeasurable,
		},
		width:  80,
		height: 24,
	}
}

// Init starts the spinner and the status poll.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages for the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.cancelled && !m.done {
				m.cancelled = true
				if m.cancel != nil {
					m.cancel()
				}
			}
		}
		return m, nil

	case buildingMsg:
		m.phase = phaseBuilding
		return m, nil

	case calculatingMsg:
		m.phase = phaseCalculating
		m.status = msg.status
		return m, nil

	case finishedMsg:
		m.phase = phaseFinished
		m.status = msg.status
		return m, nil

	case errorMsg:
		var ie *manifest.IntegrityError
		if errors.As(msg.err, &ie) {
			m.warnings = append(m.warnings, msg.err.Error())
			return m, nil
		}
		m.phase = phaseFailed
		m.err = msg.err
		return m, nil

	case doneMsg:
		m.done = true
		if m.source != nil {
			m.status = m.source()
		}
		if msg.err != nil && m.err == nil && !errors.Is(msg.err, context.Canceled) {
			var ie *manifest.IntegrityError
			if !errors.As(msg.err, &ie) {
				m.phase = phaseFailed
				m.err = msg.err
			}
		}
		return m, tea.Quit

	case tickMsg:
		if m.done {
			return m, nil
		}
		if m.source != nil && m.phase >= phaseBuilding {
			m.status = m.source()
		}
		return m, m.tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the model.
func (m Model) View() string {
	contentWidth := max(m.width-4, 40)

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(m.renderHeader(contentWidth))
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n\n")

	b.WriteString("  ")
	b.WriteString(m.renderPhase())
	b.WriteString("\n\n")

	m.bar.Width = max(contentWidth-12, 10)
	b.WriteString("  ")
	b.WriteString(m.bar.ViewAs(m.status.Percent()))
	b.WriteString(fmt.Sprintf("  %d.%02d%%", m.status.PercentDoneBp/100, m.status.PercentDoneBp%100))
	b.WriteString("\n\n")

	b.WriteString(m.renderStats())

	for _, w := range m.warnings {
		b.WriteString("\n")
		b.WriteString(warningTextStyle.Render("  Warning: " + w))
	}
	b.WriteString("\n")

	return outerBoxStyle.Width(max(m.width-2, 42)).Render(b.String())
}

func (m Model) renderHeader(width int) string {
	title := titleStyle.Render("  " + m.opts.Title)
	hint := mutedTextStyle.Render("[q to stop]")

	spacing := max(width-lipgloss.Width(title)-lipgloss.Width(hint), 1)
	return title + strings.Repeat(" ", spacing) + hint
}

func (m Model) renderPhase() string {
	switch {
	case m.phase == phaseFailed:
		return errorTextStyle.Render(fmt.Sprintf("Error: %v", m.err))
	case m.cancelled:
		return warningTextStyle.Render("Stopping, waiting for files in progress...")
	case m.phase == phaseFinished:
		if m.status.DoneKO > 0 {
			return errorTextStyle.Render(fmt.Sprintf("Finished with %d failures", m.status.DoneKO))
		}
		return successTextStyle.Render("Finished")
	case m.phase == phaseCalculating:
		return fmt.Sprintf("%s Checksumming with %d workers", m.spinner.View(), m.opts.Workers)
	case m.phase == phaseBuilding:
		return fmt.Sprintf("%s Building file tree", m.spinner.View())
	default:
		return fmt.Sprintf("%s Starting", m.spinner.View())
	}
}

func (m Model) renderStats() string {
	s := m.status
	rows := [][2]string{
		{"Files", fmt.Sprintf("%d of %d", s.Done(), s.TotalFiles)},
		{"Data", fmt.Sprintf("%s of %s", types.FormatSize(s.ProcessedBytes), types.FormatSize(s.TotalBytes))},
		{"OK", fmt.Sprintf("%d", s.DoneOK)},
		{"Failed", fmt.Sprintf("%d (%d missing)", s.DoneKO, s.DoneMissing)},
		{"Speed", types.FormatSpeed(s.BytesPerSecond)},
		{"ETA", types.FormatSeconds(s.SecondsRemaining)},
		{"Elapsed", types.FormatSeconds(s.ElapsedSeconds)},
	}

	var b strings.Builder
	for _, row := range rows {
		b.WriteString("  ")
		b.WriteString(statLabelStyle.Render(row[0]))
		b.WriteString(statValueStyle.Render(row[1]))
		b.WriteString("\n")
	}
	return b.String()
}
