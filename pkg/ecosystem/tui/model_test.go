package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ormasoftchile/quest/pkg/kernel/engine"
	"github.com/ormasoftchile/quest/pkg/kernel/schema"
	"github.com/ormasoftchile/quest/pkg/kernel/trace"
)

func doc() *schema.Procedure {
	return &schema.Procedure{
		Meta: schema.Meta{Name: "test-quest"},
		Milestones: []schema.Milestone{
			{ID: "intro", Title: "Talk"},
			{ID: "ore", Title: "Mine"},
			{ID: "sword"},
		},
	}
}

func TestModel_InitFromProcedure(t *testing.T) {
	m := NewModel(doc(), nil)
	if len(m.milestones) != 3 {
		t.Fatalf("expected 3 milestones, got %d", len(m.milestones))
	}
	if m.status != "idle" {
		t.Errorf("status = %q, want idle", m.status)
	}
	if !strings.Contains(m.View(), "test-quest") {
		t.Error("view should show the procedure name")
	}
}

func TestModel_TracksFlagsAndProgress(t *testing.T) {
	m := NewModel(doc(), nil)

	m.applyTraceEvent(trace.Event{Type: trace.EventRunStart, Data: map[string]any{"procedure": "test-quest"}})
	if m.status != "running" {
		t.Errorf("status = %q, want running", m.status)
	}
	// in-process delivery carries native types
	m.applyTraceEvent(trace.Event{Type: trace.EventStateSynced, Data: map[string]any{
		"location": "mine", "progress": 33.3, "raised": []string{"intro"},
	}})
	// decoded traces carry []any
	m.applyTraceEvent(trace.Event{Type: trace.EventMilestone, Data: map[string]any{
		"milestone": "ore", "progress": 66.6,
	}})
	m.applyTraceEvent(trace.Event{Type: trace.EventStateSynced, Data: map[string]any{
		"location": "forge", "progress": 10.0, "raised": []any{"ore"},
	}})

	if !m.milestones[0].Raised || !m.milestones[1].Raised || m.milestones[2].Raised {
		t.Errorf("milestones = %+v", m.milestones)
	}
	if m.progress != 66.6 {
		t.Errorf("progress = %v, want monotone 66.6", m.progress)
	}
	if m.location != "forge" {
		t.Errorf("location = %q", m.location)
	}
}

func TestModel_RestartClearsFlags(t *testing.T) {
	m := NewModel(doc(), nil)
	m.applyTraceEvent(trace.Event{Type: trace.EventMilestone, Data: map[string]any{"milestone": "intro"}})
	m.applyTraceEvent(trace.Event{Type: trace.EventRestart, Data: map[string]any{"attempt": 1, "reason": "sealed"}})
	m.applyTraceEvent(trace.Event{Type: trace.EventRunStart})
	if m.milestones[0].Raised {
		t.Error("restart should re-derive flags")
	}
	if m.restarts != 1 || !strings.Contains(strings.Join(m.log, "\n"), "sealed") {
		t.Errorf("restarts = %d, log = %v", m.restarts, m.log)
	}
}

func TestModel_LogIsBounded(t *testing.T) {
	m := NewModel(doc(), nil)
	for i := 0; i < 20; i++ {
		m.applyTraceEvent(trace.Event{Type: trace.EventStepComplete, Data: map[string]any{"step_id": "s", "status": "retry"}})
	}
	if len(m.log) != logLines {
		t.Errorf("log = %d lines, want %d", len(m.log), logLines)
	}
}

func TestModel_DoneAndQuit(t *testing.T) {
	cancelled := false
	m := NewModel(doc(), func() { cancelled = true })

	next, _ := m.Update(doneMsg{Report: &engine.Report{Status: engine.StatusFailed, LastFailure: "the lair is sealed", Progress: 50}})
	m = next.(Model)
	if !strings.Contains(m.View(), "the lair is sealed") {
		t.Errorf("view should show the failure:\n%s", m.View())
	}

	next, _ = m.Update(doneMsg{Err: errors.New("boom")})
	if next.(Model).status != engine.StatusFailed {
		t.Error("an error without report should mark the run failed")
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !cancelled || cmd == nil {
		t.Error("q should cancel the run and quit")
	}
}

func TestReplay(t *testing.T) {
	events := []trace.Event{
		{Type: trace.EventRunStart},
		{Type: trace.EventMilestone, Data: map[string]any{"milestone": "intro", "progress": 25.0}},
		{Type: trace.EventRunComplete, Data: map[string]any{"status": "completed", "progress": 100.0}},
	}
	m := Replay(doc(), events)
	if m.status != engine.StatusCompleted || m.progress != 100 {
		t.Errorf("status = %s progress = %v", m.status, m.progress)
	}
}
