// Package tui provides the terminal user interface for canopy mission runs.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/skalene/canopy/internal/engine"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cancelledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	queuedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	footerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// EngineEventMsg wraps an engine event for the TUI.
type EngineEventMsg struct {
	Event engine.Event
}

// MissionDoneMsg signals that the mission run has completed.
type MissionDoneMsg struct {
	Success bool
	Message string
}

// taskRow is one line of mission progress.
type taskRow struct {
	id       string
	worker   string
	status   string
	message  string
	duration time.Duration
}

// Model is the bubbletea model for a mission run.
type Model struct {
	spinner  spinner.Model
	rows     map[string]*taskRow
	order    []string
	warnings []string
	wave     int
	width    int

	objective string
	done      bool
	success   bool
	finalMsg  string
	quitting  bool
}

// New creates a TUI model for the given mission objective.
func New(objective string) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = runningStyle
	return &Model{
		spinner:   sp,
		rows:      make(map[string]*taskRow),
		objective: objective,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case EngineEventMsg:
		m.applyEvent(msg.Event)

	case MissionDoneMsg:
		m.done = true
		m.success = msg.Success
		m.finalMsg = msg.Message

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// applyEvent folds one engine event into the display state.
func (m *Model) applyEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventWaveStarted:
		m.wave = ev.Wave + 1
	case engine.EventCycleFallback:
		m.warnings = append(m.warnings, ev.Message)
	case engine.EventTaskStarted, engine.EventTaskQueued, engine.EventTaskCompleted,
		engine.EventTaskFailed, engine.EventTaskCancelled:
		row, ok := m.rows[ev.TaskID]
		if !ok {
			row = &taskRow{id: ev.TaskID, worker: ev.WorkerID}
			m.rows[ev.TaskID] = row
			m.order = append(m.order, ev.TaskID)
		}
		row.status = statusForEvent(ev.Type)
		row.duration = ev.Duration
		if ev.Error != nil {
			row.message = ev.Error.Error()
		} else if ev.Message != "" {
			row.message = ev.Message
		}
	}
}

func statusForEvent(t engine.EventType) string {
	switch t {
	case engine.EventTaskStarted:
		return "running"
	case engine.EventTaskQueued:
		return "queued"
	case engine.EventTaskCompleted:
		return "completed"
	case engine.EventTaskFailed:
		return "failed"
	case engine.EventTaskCancelled:
		return "cancelled"
	default:
		return string(t)
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("canopy"))
	b.WriteString("  ")
	b.WriteString(m.objective)
	b.WriteString("\n\n")

	if !m.done {
		fmt.Fprintf(&b, "%s wave %d\n\n", m.spinner.View(), m.wave)
	}

	for _, id := range m.sortedIDs() {
		row := m.rows[id]
		line := fmt.Sprintf("%-12s %-10s", row.worker, row.status)
		if row.duration > 0 {
			line += fmt.Sprintf(" %s", row.duration.Round(time.Millisecond))
		}
		if row.status == "failed" && row.message != "" {
			line += "  " + row.message
		}
		b.WriteString(styleForStatus(row.status).Render(line))
		b.WriteString("\n")
	}

	for _, w := range m.warnings {
		b.WriteString(warnStyle.Render("! " + w))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done {
		if m.success {
			b.WriteString(completedStyle.Render("mission complete"))
		} else {
			b.WriteString(failedStyle.Render("mission failed: " + m.finalMsg))
		}
		b.WriteString(footerStyle.Render("  press q to exit"))
	} else {
		b.WriteString(footerStyle.Render("q to abort display"))
	}
	b.WriteString("\n")
	return b.String()
}

// sortedIDs groups rows by worker name, first-seen order breaking ties.
func (m *Model) sortedIDs() []string {
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	sort.SliceStable(ids, func(i, j int) bool {
		return m.rows[ids[i]].worker < m.rows[ids[j]].worker
	})
	return ids
}

func styleForStatus(status string) lipgloss.Style {
	switch status {
	case "running":
		return runningStyle
	case "completed":
		return completedStyle
	case "failed":
		return failedStyle
	case "cancelled":
		return cancelledStyle
	case "queued":
		return queuedStyle
	default:
		return footerStyle
	}
}

// NewProgram creates a bubbletea program around a mission model.
func NewProgram(objective string) (*tea.Program, *Model) {
	model := New(objective)
	program := tea.NewProgram(model, tea.WithAltScreen())
	return program, model
}

// ForwardEvents converts engine events to TUI messages until the
// engine closes its channel.
func ForwardEvents(program *tea.Program, events <-chan engine.Event) {
	for ev := range events {
		program.Send(EngineEventMsg{Event: ev})
	}
}
