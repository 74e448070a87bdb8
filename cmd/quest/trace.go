package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/quest/pkg/ecosystem/tui"
	"github.com/ormasoftchile/quest/pkg/kernel/schema"
	"github.com/ormasoftchile/quest/pkg/kernel/trace"
)

var traceProcedure string

// runSummary condenses the events of one run id.
type runSummary struct {
	RunID      string
	Procedure  string
	Status     string
	Failure    string
	Progress   float64
	Iterations int
	Restarts   int
	Milestones []string
	Branches   map[string]int
	Failures   int
}

func summarize(events []trace.Event) []*runSummary {
	var runs []*runSummary
	byID := map[string]*runSummary{}
	for _, e := range events {
		r, ok := byID[e.RunID]
		if !ok {
			r = &runSummary{RunID: e.RunID, Branches: map[string]int{}}
			byID[e.RunID] = r
			runs = append(runs, r)
		}
		switch e.Type {
		case trace.EventRunStart:
			r.Procedure, _ = e.Data["procedure"].(string)
		case trace.EventIterationStart:
			r.Iterations++
		case trace.EventDecision:
			if b, _ := e.Data["branch"].(string); b != "" {
				r.Branches[b]++
			}
		case trace.EventMilestone:
			if id, _ := e.Data["milestone"].(string); id != "" {
				r.Milestones = append(r.Milestones, id)
			}
		case trace.EventStepComplete:
			if s, _ := e.Data["status"].(string); s == string(trace.StatusFailed) {
				r.Failures++
			}
		case trace.EventRestart:
			r.Restarts++
		case trace.EventRunComplete:
			r.Status, _ = e.Data["status"].(string)
			r.Failure, _ = e.Data["failure"].(string)
			if p, ok := e.Data["progress"].(float64); ok {
				r.Progress = p
			}
		}
	}
	return runs
}

func printSummaries(w io.Writer, runs []*runSummary) {
	for _, r := range runs {
		status := r.Status
		if status == "" {
			status = "incomplete"
		}
		fmt.Fprintf(w, "\n  run %s  %s\n", r.RunID, r.Procedure)
		fmt.Fprintf(w, "    status     %s  %.1f%%\n", status, r.Progress)
		fmt.Fprintf(w, "    iterations %d  restarts %d  failed steps %d\n", r.Iterations, r.Restarts, r.Failures)
		if len(r.Milestones) > 0 {
			fmt.Fprintf(w, "    reached    %s\n", strings.Join(r.Milestones, " → "))
		}
		if r.Failure != "" {
			fmt.Fprintf(w, "    reason     %s\n", r.Failure)
		}
	}
}

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Trace file operations",
}

var traceShowCmd = &cobra.Command{
	Use:   "show [trace.jsonl]",
	Short: "Summarize the runs recorded in a trace file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := trace.ReadFile(args[0])
		if err != nil {
			return err
		}
		if traceProcedure != "" {
			doc, err := schema.LoadFile(traceProcedure)
			if err != nil {
				return err
			}
			fmt.Println(tui.Replay(doc, events).View())
			return nil
		}
		printSummaries(os.Stdout, summarize(events))
		return nil
	},
}

func init() {
	traceShowCmd.Flags().StringVar(&traceProcedure, "procedure", "", "Render the final run state against this procedure")
	traceCmd.AddCommand(traceShowCmd)
	rootCmd.AddCommand(traceCmd)
}
