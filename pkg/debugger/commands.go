package debugger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ormasoftchile/quest/pkg/kernel/step"
	"github.com/ormasoftchile/quest/pkg/kernel/world"
)

const defaultContinueLimit = 100

// handleNext runs one driver iteration and reports the outcome.
func (d *Debugger) handleNext(ctx context.Context) step.Outcome {
	if d.proc.IsComplete() {
		fmt.Fprintf(d.output, "Quest already complete.\n")
		return step.Complete()
	}

	out := d.driver.Step(ctx)
	e := entry{
		iteration: d.driver.Iterations(),
		branch:    d.proc.LastSelection().Key,
		outcome:   out,
		progress:  d.proc.ProgressEstimate(),
	}
	d.history = append(d.history, e)

	sel := d.proc.LastSelection()
	fmt.Fprintf(d.output, "  [%d] branch %s (%s)\n", e.iteration, sel.Key, sel.Reason)
	fmt.Fprintf(d.output, "      %s %s  %.1f%%\n", outcomeIcon(out), out, e.progress)
	return out
}

// handleContinue iterates until a terminal outcome or the limit.
func (d *Debugger) handleContinue(ctx context.Context, parts []string) {
	limit := defaultContinueLimit
	if len(parts) > 1 {
		n, err := strconv.Atoi(parts[1])
		if err != nil || n <= 0 {
			fmt.Fprintf(d.output, "Usage: continue [max-iterations]\n")
			return
		}
		limit = n
	}
	for i := 0; i < limit; i++ {
		if ctx.Err() != nil {
			fmt.Fprintf(d.output, "Stopped.\n")
			return
		}
		out := d.handleNext(ctx)
		switch out.Kind {
		case step.KindComplete:
			fmt.Fprintf(d.output, "Quest complete.\n")
			return
		case step.KindFailed:
			fmt.Fprintf(d.output, "Halted on failure.\n")
			return
		}
		if d.proc.IsComplete() {
			fmt.Fprintf(d.output, "Quest complete.\n")
			return
		}
	}
	fmt.Fprintf(d.output, "Paused after %d iterations.\n", limit)
}

// handleFlags lists milestones and their flags.
func (d *Debugger) handleFlags() {
	for _, m := range d.proc.Milestones() {
		mark := "·"
		if m.Raised {
			mark = "✓"
		}
		fmt.Fprintf(d.output, "  %s %-12s %s\n", mark, m.ID, m.Title)
	}
	fmt.Fprintf(d.output, "  progress %.1f%%\n", d.proc.ProgressEstimate())
}

// handleSnapshot reads and prints the current world state.
func (d *Debugger) handleSnapshot(ctx context.Context) {
	snap, err := d.client.Snapshot(ctx)
	if err != nil {
		fmt.Fprintf(d.output, "  Error: %v\n", err)
		return
	}
	data, _ := json.MarshalIndent(snap, "  ", "  ")
	fmt.Fprintf(d.output, "  %s\n", data)
}

// handleMark raises a milestone by hand.
func (d *Debugger) handleMark(parts []string) {
	if len(parts) < 2 {
		fmt.Fprintf(d.output, "Usage: mark <milestone>\n")
		return
	}
	id := parts[1]
	if d.proc.Mark(id) {
		fmt.Fprintf(d.output, "  Raised %s (with predecessors %v)\n", id, d.proc.Predecessors(id))
		return
	}
	if d.proc.IsSet(id) {
		fmt.Fprintf(d.output, "  %s is already raised\n", id)
		return
	}
	fmt.Fprintf(d.output, "  Unknown milestone %q\n", id)
}

// handleAttempt sends one operation to the world outside the procedure.
func (d *Debugger) handleAttempt(ctx context.Context, parts []string) {
	if len(parts) < 2 {
		fmt.Fprintf(d.output, "Usage: attempt <kind> [target]\n")
		return
	}
	op := world.Operation{Kind: parts[1]}
	if len(parts) > 2 {
		op.Target = parts[2]
	}
	if d.client.Attempt(ctx, op) {
		fmt.Fprintf(d.output, "  %s accepted\n", op)
		return
	}
	if err := d.client.LastError(); err != nil {
		fmt.Fprintf(d.output, "  %s not accepted: %v\n", op, err)
		return
	}
	fmt.Fprintf(d.output, "  %s not accepted\n", op)
}

// handleHistory shows outcomes of past iterations.
func (d *Debugger) handleHistory() {
	if len(d.history) == 0 {
		fmt.Fprintf(d.output, "No iterations executed yet.\n")
		return
	}
	for _, e := range d.history {
		fmt.Fprintf(d.output, "  %s [%d] %-10s %s  %.1f%%\n",
			outcomeIcon(e.outcome), e.iteration, e.branch, e.outcome, e.progress)
	}
}

// handleDump outputs procedure state as JSON.
func (d *Debugger) handleDump() {
	state := struct {
		Procedure  string          `json:"procedure"`
		Iterations int             `json:"iterations"`
		Progress   float64         `json:"progress"`
		Complete   bool            `json:"complete"`
		Branch     string          `json:"branch,omitempty"`
		Flags      map[string]bool `json:"flags"`
		Snapshot   world.Snapshot  `json:"last_snapshot"`
	}{
		Procedure:  d.proc.ID(),
		Iterations: d.driver.Iterations(),
		Progress:   d.proc.ProgressEstimate(),
		Complete:   d.proc.IsComplete(),
		Branch:     d.proc.LastSelection().Key,
		Flags:      d.proc.Flags(),
		Snapshot:   d.proc.LastSnapshot(),
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		fmt.Fprintf(d.output, "  Error marshaling state: %v\n", err)
		return
	}
	fmt.Fprintln(d.output, string(data))
}

// handleHelp displays available commands.
func (d *Debugger) handleHelp() {
	fmt.Fprintln(d.output, "Available commands:")
	fmt.Fprintln(d.output, "  next (n)             Run one iteration")
	fmt.Fprintln(d.output, "  continue (c) [N]     Run until complete, failed, or N iterations")
	fmt.Fprintln(d.output, "  flags (f)            Show milestone flags")
	fmt.Fprintln(d.output, "  snapshot (s)         Show current world state")
	fmt.Fprintln(d.output, "  mark <id>            Raise a milestone by hand")
	fmt.Fprintln(d.output, "  attempt <kind> [t]   Send one operation to the world")
	fmt.Fprintln(d.output, "  history (h)          Show past iterations")
	fmt.Fprintln(d.output, "  dump                 Output procedure state as JSON")
	fmt.Fprintln(d.output, "  help (?)             Show this help")
	fmt.Fprintln(d.output, "  quit (q)             Exit debugger")
}

func outcomeIcon(out step.Outcome) string {
	switch out.Kind {
	case step.KindSuccess:
		return "✓"
	case step.KindComplete:
		return "★"
	case step.KindFailed:
		return "✗"
	case step.KindInProgress:
		return "…"
	default:
		return "↻"
	}
}
