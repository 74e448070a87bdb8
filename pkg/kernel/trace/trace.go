// Package trace implements the engine's append-only JSONL event stream.
package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType enumerates all trace event types.
type EventType string

const (
	EventRunStart       EventType = "run_start"
	EventRunComplete    EventType = "run_complete"
	EventIterationStart EventType = "iteration_start"
	EventStateSynced    EventType = "state_synced"
	EventDecision       EventType = "decision"
	EventStepStart      EventType = "step_start"
	EventStepComplete   EventType = "step_complete"
	EventMilestone      EventType = "milestone_reached"
	EventBackoff        EventType = "backoff"
	EventRestart        EventType = "restart"
)

// Status is the trace rendering of a step outcome.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusRetry      Status = "retry"
	StatusInProgress Status = "in_progress"
	StatusFailed     Status = "failed"
	StatusComplete   Status = "complete"
)

// Event is a single trace event written to the JSONL stream.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// Writer writes trace events to an append-only JSONL stream. Optional sinks
// receive a copy of each event (the TUI subscribes this way).
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	runID  string
	enc    *json.Encoder
	sinks  []func(Event)
}

// NewWriter creates a trace writer that writes to w. w may be nil when only
// sinks are wanted.
func NewWriter(w io.Writer, runID string) *Writer {
	tw := &Writer{w: w, runID: runID}
	if w != nil {
		tw.enc = json.NewEncoder(w)
	}
	return tw
}

// NewFileWriter creates a trace writer that appends to a JSONL file,
// creating its directory. Events are also copied to each tee writer.
func NewFileWriter(path, runID string, tee ...io.Writer) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	var w io.Writer = f
	if len(tee) > 0 {
		w = io.MultiWriter(append([]io.Writer{f}, tee...)...)
	}
	tw := NewWriter(w, runID)
	tw.closer = f
	return tw, nil
}

// RunID returns the run identifier stamped on every event.
func (tw *Writer) RunID() string { return tw.runID }

// Subscribe registers fn to receive every subsequent event.
func (tw *Writer) Subscribe(fn func(Event)) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.sinks = append(tw.sinks, fn)
}

// Close closes the underlying file if the writer owns one.
func (tw *Writer) Close() error {
	if tw.closer == nil {
		return nil
	}
	return tw.closer.Close()
}

// Emit writes a single trace event.
func (tw *Writer) Emit(eventType EventType, data map[string]any) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	evt := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     tw.runID,
		Data:      data,
	}
	for _, sink := range tw.sinks {
		sink(evt)
	}
	if tw.enc == nil {
		return nil
	}
	return tw.enc.Encode(evt)
}

// EmitRunStart emits a run_start event.
func (tw *Writer) EmitRunStart(procedure string, milestones []string, capabilities map[string]bool) error {
	data := map[string]any{
		"procedure":  procedure,
		"milestones": milestones,
	}
	if capabilities != nil {
		data["capabilities"] = capabilities
	}
	return tw.Emit(EventRunStart, data)
}

// EmitRunComplete emits a run_complete event.
func (tw *Writer) EmitRunComplete(status string, progress float64, iterations int, duration time.Duration, failure string) error {
	data := map[string]any{
		"status":     status,
		"progress":   progress,
		"iterations": iterations,
		"duration":   duration.String(),
	}
	if failure != "" {
		data["failure"] = failure
	}
	return tw.Emit(EventRunComplete, data)
}

// EmitIterationStart emits an iteration_start event.
func (tw *Writer) EmitIterationStart(iteration int) error {
	return tw.Emit(EventIterationStart, map[string]any{"iteration": iteration})
}

// EmitStateSynced emits a state_synced event listing newly raised flags.
func (tw *Writer) EmitStateSynced(raised []string, location string, progress float64) error {
	data := map[string]any{
		"location": location,
		"progress": progress,
	}
	if len(raised) > 0 {
		data["raised"] = raised
	}
	return tw.Emit(EventStateSynced, data)
}

// EmitDecision emits a decision event.
func (tw *Writer) EmitDecision(key, reason string) error {
	return tw.Emit(EventDecision, map[string]any{
		"branch": key,
		"reason": reason,
	})
}

// EmitStepStart emits a step_start event.
func (tw *Writer) EmitStepStart(stepID, kind string) error {
	return tw.Emit(EventStepStart, map[string]any{
		"step_id": stepID,
		"kind":    kind,
	})
}

// EmitStepComplete emits a step_complete event.
func (tw *Writer) EmitStepComplete(stepID string, status Status, reason string, duration time.Duration) error {
	data := map[string]any{
		"step_id":  stepID,
		"status":   string(status),
		"duration": duration.String(),
	}
	if reason != "" {
		data["reason"] = reason
	}
	return tw.Emit(EventStepComplete, data)
}

// EmitMilestone emits a milestone_reached event.
func (tw *Writer) EmitMilestone(id string, progress float64) error {
	return tw.Emit(EventMilestone, map[string]any{
		"milestone": id,
		"progress":  progress,
	})
}

// EmitBackoff emits a backoff event.
func (tw *Writer) EmitBackoff(delay time.Duration, outcome string) error {
	return tw.Emit(EventBackoff, map[string]any{
		"delay":   delay.String(),
		"outcome": outcome,
	})
}

// EmitRestart emits a restart event.
func (tw *Writer) EmitRestart(attempt int, reason string) error {
	return tw.Emit(EventRestart, map[string]any{
		"attempt": attempt,
		"reason":  reason,
	})
}
