// Package engine implements the driver loop that repeatedly executes a
// procedure's root step until it completes, fails structurally, runs out of
// iterations, or is stopped.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ormasoftchile/quest/pkg/kernel/procedure"
	"github.com/ormasoftchile/quest/pkg/kernel/step"
	"github.com/ormasoftchile/quest/pkg/kernel/trace"
)

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusStopped   = "stopped"
	StatusExhausted = "exhausted"
)

// Target is what the driver executes: a root step that also reports
// progress and completion.
type Target interface {
	step.Step
	ProgressEstimate() float64
	IsComplete() bool
}

// observable targets accept procedure-level observers.
type observable interface {
	Observe(procedure.Observer)
}

// Config configures a Driver.
type Config struct {
	RunID string
	// MinDelay is the first backoff interval after a pending outcome.
	MinDelay time.Duration
	// MaxDelay caps the backoff interval.
	MaxDelay time.Duration
	// MaxIterations bounds the loop. Zero means unbounded.
	MaxIterations int
	Trace         *trace.Writer
	// Capabilities is recorded on run_start when set.
	Capabilities map[string]bool
	Stdout        io.Writer // progress lines; defaults to os.Stdout
	Quiet         bool
	// Sleep waits between iterations. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration)
}

// Report is the final state of a run.
type Report struct {
	Status      string
	LastFailure string
	Progress    float64
	Iterations  int
	Duration    time.Duration
	LastOutcome step.Outcome
}

// Driver owns the outer control loop. One Driver executes one Target; it is
// not safe for concurrent use.
type Driver struct {
	cfg     Config
	target  Target
	backoff *backoff.ExponentialBackOff
	trace   *trace.Writer
	obs     *traceObserver

	iterations int
	last       step.Outcome
}

// New creates a driver for target.
func New(target Target, cfg Config) *Driver {
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 250 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay * 20
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Quiet {
		cfg.Stdout = io.Discard
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.MinDelay
	b.MaxInterval = cfg.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()

	d := &Driver{
		cfg:     cfg,
		target:  target,
		backoff: b,
		trace:   cfg.Trace,
	}
	if d.trace != nil {
		d.obs = &traceObserver{trace: d.trace, target: target}
		if o, ok := target.(observable); ok {
			o.Observe(d.obs)
		}
	}
	return d
}

// Iterations returns the number of root executions so far.
func (d *Driver) Iterations() int { return d.iterations }

// Last returns the most recent root outcome.
func (d *Driver) Last() step.Outcome { return d.last }

// Step runs exactly one iteration: one execution of the root step.
func (d *Driver) Step(ctx context.Context) step.Outcome {
	d.iterations++
	if d.trace != nil {
		d.trace.EmitIterationStart(d.iterations)
		ctx = step.WithObserver(ctx, d.obs)
	}

	out := step.Run(ctx, d.target)
	if err := out.Validate(); err != nil {
		out = step.Failedf("invalid outcome from %s: %v", d.target.ID(), err)
	}
	d.last = out
	return out
}

// Run loops until the target completes, fails, exhausts MaxIterations, or
// ctx is cancelled. Cancellation is observed between iterations only.
func (d *Driver) Run(ctx context.Context) *Report {
	start := time.Now()
	report := &Report{}

	if d.trace != nil {
		var milestones []string
		if p, ok := d.target.(*procedure.Procedure); ok {
			for _, m := range p.Milestones() {
				milestones = append(milestones, m.ID)
			}
		}
		d.trace.EmitRunStart(d.target.ID(), milestones, d.cfg.Capabilities)
	}

	for {
		if ctx.Err() != nil {
			report.Status = StatusStopped
			break
		}
		if d.cfg.MaxIterations > 0 && d.iterations >= d.cfg.MaxIterations {
			report.Status = StatusExhausted
			break
		}

		out := d.Step(ctx)
		fmt.Fprintf(d.cfg.Stdout, "  [%3d] %-40s %5.1f%%\n", d.iterations, out.String(), d.target.ProgressEstimate())

		if out.Kind == step.KindComplete || d.target.IsComplete() {
			report.Status = StatusCompleted
			break
		}
		if out.Kind == step.KindFailed {
			report.Status = StatusFailed
			report.LastFailure = out.Reason
			break
		}

		delay := d.delay(out)
		if delay > 0 {
			if d.trace != nil {
				d.trace.EmitBackoff(delay, string(out.Kind))
			}
			d.cfg.Sleep(ctx, delay)
		}
	}

	report.Iterations = d.iterations
	report.LastOutcome = d.last
	report.Progress = d.target.ProgressEstimate()
	report.Duration = time.Since(start)

	if d.trace != nil {
		d.trace.EmitRunComplete(report.Status, report.Progress, report.Iterations, report.Duration, report.LastFailure)
	}
	return report
}

// delay returns the wait before the next iteration. Success resets the
// backoff and loops immediately; Retry and InProgress back off alike.
func (d *Driver) delay(out step.Outcome) time.Duration {
	if out.IsSuccess() {
		d.backoff.Reset()
		return 0
	}
	next := d.backoff.NextBackOff()
	if next == backoff.Stop {
		return d.cfg.MaxDelay
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
