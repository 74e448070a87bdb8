package engine

import (
	"sync"
	"time"

	"github.com/ormasoftchile/quest/pkg/kernel/procedure"
	"github.com/ormasoftchile/quest/pkg/kernel/step"
	"github.com/ormasoftchile/quest/pkg/kernel/trace"
	"github.com/ormasoftchile/quest/pkg/kernel/world"
)

// traceObserver turns step and procedure callbacks into trace events.
type traceObserver struct {
	trace  *trace.Writer
	target Target

	mu      sync.Mutex
	started map[string][]time.Time
}

func (o *traceObserver) StepStarted(s step.Step) {
	o.mu.Lock()
	if o.started == nil {
		o.started = make(map[string][]time.Time)
	}
	o.started[s.ID()] = append(o.started[s.ID()], time.Now())
	o.mu.Unlock()
	o.trace.EmitStepStart(s.ID(), KindOf(s))
}

func (o *traceObserver) StepFinished(s step.Step, out step.Outcome) {
	var elapsed time.Duration
	o.mu.Lock()
	if stack := o.started[s.ID()]; len(stack) > 0 {
		elapsed = time.Since(stack[len(stack)-1])
		o.started[s.ID()] = stack[:len(stack)-1]
	}
	o.mu.Unlock()
	reason := out.Reason
	if out.IsSuccess() && out.Hint != nil {
		reason = "hint:" + out.Hint.ID()
	}
	o.trace.EmitStepComplete(s.ID(), StatusOf(out), reason, elapsed)
}

func (o *traceObserver) Synced(raised []string, snap world.Snapshot) {
	o.trace.EmitStateSynced(raised, snap.Location, o.target.ProgressEstimate())
}

func (o *traceObserver) Decided(sel procedure.Selection) {
	o.trace.EmitDecision(sel.Key, string(sel.Reason))
}

func (o *traceObserver) Reached(id string) {
	o.trace.EmitMilestone(id, o.target.ProgressEstimate())
}

// StatusOf maps an outcome to its trace status.
func StatusOf(out step.Outcome) trace.Status {
	switch out.Kind {
	case step.KindSuccess:
		return trace.StatusSuccess
	case step.KindRetry:
		return trace.StatusRetry
	case step.KindInProgress:
		return trace.StatusInProgress
	case step.KindComplete:
		return trace.StatusComplete
	default:
		return trace.StatusFailed
	}
}

// KindOf names the concrete kind of s for display.
func KindOf(s step.Step) string {
	switch s.(type) {
	case *procedure.Procedure:
		return "procedure"
	case *step.Decision:
		return "decision"
	case *step.Chain:
		return "chain"
	case *step.Action:
		return "action"
	default:
		return "step"
	}
}
