// Package ui renders a running build in the terminal.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"mach/internal/buildpipeline"
)

// tail is how many of the latest assets the view lists.
const tail = 8

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	busyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

type stageRow struct {
	status  buildpipeline.Status
	elapsed time.Duration
}

// buildModel shows one row per pipeline stage, the assets discovered so
// far and the outputs written.
type buildModel struct {
	title    string
	events   <-chan buildpipeline.Event
	spin     spinner.Model
	bar      progress.Model
	stages   map[buildpipeline.Stage]stageRow
	assets   []string
	seen     map[string]bool
	outputs  int
	err      error
	width    int
	finished bool
}

type (
	eventMsg  buildpipeline.Event
	closedMsg struct{}
)

// NewProgressModel returns a Bubble Tea model fed by events. The program
// quits once the channel is closed.
func NewProgressModel(title string, events <-chan buildpipeline.Event) tea.Model {
	spin := spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(busyStyle))
	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = 60
	return &buildModel{
		title:  title,
		events: events,
		spin:   spin,
		bar:    bar,
		stages: make(map[buildpipeline.Stage]stageRow, len(buildpipeline.Stages)),
		seen:   make(map[string]bool),
		width:  80,
	}
}

func (m *buildModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.next())
}

// next waits for the following pipeline event.
func (m *buildModel) next() tea.Cmd {
	return func() tea.Msg {
		if ev, ok := <-m.events; ok {
			return eventMsg(ev)
		}
		return closedMsg{}
	}
}

func (m *buildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		return m, tea.Batch(m.record(buildpipeline.Event(msg)), m.next())
	case closedMsg:
		m.finished = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.width = max(msg.Width, 20)
		m.bar.Width = min(m.width-4, 60)
	case spinner.TickMsg:
		if !m.finished {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			return m, cmd
		}
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

// record folds ev into the model and returns the bar animation, if any.
func (m *buildModel) record(ev buildpipeline.Event) tea.Cmd {
	if ev.Err != nil && m.err == nil {
		m.err = ev.Err
	}
	if ev.File != "" {
		switch ev.Stage {
		case buildpipeline.StagePackage:
			m.outputs++
		default:
			if !m.seen[ev.File] {
				m.seen[ev.File] = true
				m.assets = append(m.assets, ev.File)
			}
		}
		return nil
	}
	m.stages[ev.Stage] = stageRow{status: ev.Status, elapsed: ev.Elapsed}
	return m.bar.SetPercent(m.fraction())
}

// fraction counts a finished stage as a whole step and a running one as half.
func (m *buildModel) fraction() float64 {
	var steps float64
	for _, s := range buildpipeline.Stages {
		switch m.stages[s].status {
		case buildpipeline.StatusDone:
			steps++
		case buildpipeline.StatusWorking:
			steps += 0.5
		}
	}
	return steps / float64(len(buildpipeline.Stages))
}

func (m *buildModel) View() string {
	var b strings.Builder
	switch {
	case m.err != nil:
		b.WriteString(errStyle.Render("failed: " + m.title))
	case m.finished:
		b.WriteString(okStyle.Render("built: " + m.title))
	default:
		b.WriteString(m.spin.View() + " " + titleStyle.Render(m.title))
	}
	fmt.Fprintf(&b, "  %s\n\n", dimStyle.Render(fmt.Sprintf("%d assets, %d outputs", len(m.assets), m.outputs)))

	for _, s := range buildpipeline.Stages {
		row := m.stages[s]
		fmt.Fprintf(&b, "  %-10s %s", s, statusCell(row.status))
		if row.elapsed > 0 {
			fmt.Fprintf(&b, " %s", dimStyle.Render(fmt.Sprintf("%.1f ms", float64(row.elapsed.Microseconds())/1000)))
		}
		b.WriteByte('\n')
	}

	if len(m.assets) > 0 {
		b.WriteByte('\n')
		from := max(len(m.assets)-tail, 0)
		for _, path := range m.assets[from:] {
			b.WriteString("  " + dimStyle.Render(truncate(path, m.width-4)) + "\n")
		}
	}
	if m.err != nil {
		fmt.Fprintf(&b, "\n  %s\n", errStyle.Render(truncate(m.err.Error(), m.width-4)))
	}

	b.WriteByte('\n')
	if m.finished && m.err == nil {
		b.WriteString(m.bar.ViewAs(1))
	} else {
		b.WriteString(m.bar.View())
	}
	b.WriteByte('\n')
	return b.String()
}

func statusCell(s buildpipeline.Status) string {
	cell := fmt.Sprintf("%-7s", s)
	switch s {
	case buildpipeline.StatusDone:
		return okStyle.Render(cell)
	case buildpipeline.StatusWorking:
		return busyStyle.Render(cell)
	case buildpipeline.StatusError:
		return errStyle.Render(cell)
	case "":
		return dimStyle.Render(fmt.Sprintf("%-7s", "-"))
	}
	return cell
}

// truncate shortens value to width terminal cells, keeping the end of the
// path, which is the part that tells files apart.
func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	runes := []rune(value)
	for i := range runes {
		if rest := string(runes[i:]); runewidth.StringWidth(rest) <= width-3 {
			return "..." + rest
		}
	}
	return "..."
}
