// Package tui renders a live quest run in the terminal from trace events.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/quest/pkg/kernel/engine"
	"github.com/ormasoftchile/quest/pkg/kernel/schema"
	"github.com/ormasoftchile/quest/pkg/kernel/trace"
)

const logLines = 8

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	currentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("40"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
)

// MilestoneState tracks one milestone flag in the TUI.
type MilestoneState struct {
	ID     string
	Title  string
	Raised bool
}

// Model is the Bubble Tea model for a quest run.
type Model struct {
	name       string
	milestones []MilestoneState
	branch     string
	reason     string
	location   string
	progress   float64
	iteration  int
	restarts   int
	log        []string
	status     string // idle, running, completed, failed, stopped, exhausted
	failure    string
	err        error

	bar     progress.Model
	spinner spinner.Model
	cancel  context.CancelFunc
	start   tea.Cmd
}

// NewModel creates a TUI model from a procedure document. cancel stops the
// run when the user quits.
func NewModel(doc *schema.Procedure, cancel context.CancelFunc) Model {
	ms := make([]MilestoneState, 0, len(doc.Milestones))
	for _, m := range doc.Milestones {
		ms = append(ms, MilestoneState{ID: m.ID, Title: m.Title})
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	if cancel == nil {
		cancel = func() {}
	}
	return Model{
		name:       doc.Meta.Name,
		milestones: ms,
		status:     "idle",
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner:    sp,
		cancel:     cancel,
	}
}

// --- Messages ---

// EventMsg delivers a trace event to the TUI.
type EventMsg struct {
	Event trace.Event
}

// doneMsg signals run completion.
type doneMsg struct {
	Report *engine.Report
	Err    error
}

// Attach forwards every event emitted on tw to p.
func Attach(tw *trace.Writer, p *tea.Program) {
	tw.Subscribe(func(e trace.Event) { p.Send(EventMsg{Event: e}) })
}

// StartRun runs fn in the background and reports its result to the model.
func StartRun(ctx context.Context, fn func(context.Context) (*engine.Report, error)) tea.Cmd {
	return func() tea.Msg {
		report, err := fn(ctx)
		return doneMsg{Report: report, Err: err}
	}
}

// WithStart sets the command launched by Init, usually StartRun.
func (m Model) WithStart(cmd tea.Cmd) Model {
	m.start = cmd
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.start == nil {
		return m.spinner.Tick
	}
	return tea.Batch(m.spinner.Tick, m.start)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		if w := msg.Width - 12; w > 10 {
			m.bar.Width = min(w, 60)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventMsg:
		m.applyTraceEvent(msg.Event)

	case doneMsg:
		m.err = msg.Err
		if msg.Report != nil {
			m.status = msg.Report.Status
			m.failure = msg.Report.LastFailure
			m.setProgress(msg.Report.Progress)
		} else if msg.Err != nil {
			m.status = engine.StatusFailed
		}
	}
	return m, nil
}

// applyTraceEvent folds one trace event into the model.
func (m *Model) applyTraceEvent(evt trace.Event) {
	switch evt.Type {
	case trace.EventRunStart:
		m.status = "running"
		m.branch = ""
		// A restarted run re-derives its flags from live state.
		for i := range m.milestones {
			m.milestones[i].Raised = false
		}
	case trace.EventIterationStart:
		m.iteration++
	case trace.EventStateSynced:
		m.location, _ = evt.Data["location"].(string)
		m.setProgress(number(evt.Data["progress"]))
		for _, id := range stringList(evt.Data["raised"]) {
			m.raise(id)
		}
	case trace.EventDecision:
		m.branch, _ = evt.Data["branch"].(string)
		m.reason, _ = evt.Data["reason"].(string)
	case trace.EventMilestone:
		id, _ := evt.Data["milestone"].(string)
		m.raise(id)
		m.setProgress(number(evt.Data["progress"]))
		m.addLog(doneStyle.Render("★ reached " + id))
	case trace.EventStepComplete:
		id, _ := evt.Data["step_id"].(string)
		status, _ := evt.Data["status"].(string)
		line := fmt.Sprintf("%s %s", statusIcon(status), id)
		if reason, _ := evt.Data["reason"].(string); reason != "" {
			line += dimStyle.Render("  " + reason)
		}
		m.addLog(line)
	case trace.EventBackoff:
		delay, _ := evt.Data["delay"].(string)
		m.addLog(dimStyle.Render("… backoff " + delay))
	case trace.EventRestart:
		m.restarts++
		reason, _ := evt.Data["reason"].(string)
		m.addLog(failStyle.Render("↺ restart: " + reason))
	case trace.EventRunComplete:
		m.status, _ = evt.Data["status"].(string)
		m.failure, _ = evt.Data["failure"].(string)
		m.setProgress(number(evt.Data["progress"]))
	}
}

func (m *Model) raise(id string) {
	for i := range m.milestones {
		if m.milestones[i].ID == id {
			m.milestones[i].Raised = true
		}
	}
}

// setProgress keeps the displayed estimate monotone within a run.
func (m *Model) setProgress(p float64) {
	if p > m.progress {
		m.progress = p
	}
}

func (m *Model) addLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > logLines {
		m.log = m.log[len(m.log)-logLines:]
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("  quest: " + m.name))
	b.WriteString("\n\n")

	for _, ms := range m.milestones {
		title := ms.Title
		if title == "" {
			title = ms.ID
		}
		switch {
		case ms.Raised:
			b.WriteString(doneStyle.Render("  ✓ " + title))
		case ms.ID == m.branch:
			b.WriteString(currentStyle.Render("  ▸ " + title))
		default:
			b.WriteString(dimStyle.Render("  ○ " + title))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n  " + m.bar.ViewAs(m.progress/100) + "\n")
	where := fmt.Sprintf("  iteration %d", m.iteration)
	if m.location != "" {
		where += "  at " + m.location
	}
	if m.branch != "" {
		where += fmt.Sprintf("  branch %s (%s)", m.branch, m.reason)
	}
	if m.restarts > 0 {
		where += fmt.Sprintf("  restarts %d", m.restarts)
	}
	b.WriteString(dimStyle.Render(where) + "\n\n")

	for _, l := range m.log {
		b.WriteString("  " + l + "\n")
	}
	b.WriteString("\n")

	switch m.status {
	case "idle":
		b.WriteString(dimStyle.Render("  Ready"))
	case "running":
		b.WriteString("  " + m.spinner.View() + " running")
	case engine.StatusCompleted:
		b.WriteString(doneStyle.Render("  ✓ quest complete"))
	case engine.StatusFailed:
		msg := m.failure
		if m.err != nil {
			msg = m.err.Error()
		}
		b.WriteString(failStyle.Render("  ✗ failed: " + msg))
	default:
		b.WriteString(dimStyle.Render("  ■ " + m.status))
	}

	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("  q: quit"))
	return b.String()
}

func statusIcon(status string) string {
	switch status {
	case string(trace.StatusSuccess):
		return "✓"
	case string(trace.StatusFailed):
		return "✗"
	case string(trace.StatusInProgress):
		return "◉"
	case string(trace.StatusComplete):
		return "★"
	default:
		return "↻"
	}
}

// number reads a numeric trace field, which is float64 after a JSON round
// trip and may be any numeric type when delivered in-process.
func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, x := range l {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Replay folds a recorded trace into a model, for post-mortem viewing.
func Replay(doc *schema.Procedure, events []trace.Event) Model {
	m := NewModel(doc, nil)
	for _, e := range events {
		m.applyTraceEvent(e)
	}
	return m
}
