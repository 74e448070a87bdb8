package engine

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Factory builds a fresh Target. A restarted target re-derives its flags
// from live state; nothing from the previous instance carries over.
type Factory func() (Target, error)

// Supervisor restarts a run from scratch after structural failures.
type Supervisor struct {
	Factory Factory
	// Restarts is the number of rebuilds allowed after the first run.
	Restarts int
	Config   Config
	Stdout   io.Writer
}

// Run executes the target, rebuilding it after each failed run until it
// completes, is stopped, exhausts its iterations, or restarts run out.
// The returned report is the last run's, with Iterations and Duration
// accumulated across runs.
func (s *Supervisor) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	total := 0
	var report *Report
	for attempt := 0; ; attempt++ {
		target, err := s.Factory()
		if err != nil {
			return nil, fmt.Errorf("build target (attempt %d): %w", attempt+1, err)
		}
		if attempt > 0 {
			if s.Config.Trace != nil {
				s.Config.Trace.EmitRestart(attempt, report.LastFailure)
			}
			if s.Stdout != nil {
				fmt.Fprintf(s.Stdout, "  restarting (%d/%d) after: %s\n", attempt, s.Restarts, report.LastFailure)
			}
		}

		report = New(target, s.Config).Run(ctx)
		total += report.Iterations
		if report.Status != StatusFailed || attempt >= s.Restarts {
			break
		}
	}
	report.Iterations = total
	report.Duration = time.Since(start)
	return report, nil
}
