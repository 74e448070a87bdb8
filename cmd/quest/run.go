package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/quest/pkg/debugger"
	"github.com/ormasoftchile/quest/pkg/ecosystem/recorder"
	"github.com/ormasoftchile/quest/pkg/ecosystem/tui"
	"github.com/ormasoftchile/quest/pkg/kernel/engine"
	"github.com/ormasoftchile/quest/pkg/kernel/world"
	"github.com/ormasoftchile/quest/pkg/session"
)

// flags shared by run, debug, and tui
var (
	runWorld         string
	runBridge        string
	runID            string
	runMaxIterations int
	runRestarts      int
	runJSON          bool
	runNoTrace       bool
	runRecord        string
	runRedact        []string
)

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runWorld, "world", "", "Simulate this world/v0 file (overrides quest.yaml)")
	cmd.Flags().StringVar(&runBridge, "bridge", "", "Bridge base URL (overrides quest.yaml)")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run identifier (default: random UUID)")
	cmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Iteration bound (overrides quest.yaml)")
	cmd.Flags().BoolVar(&runNoTrace, "no-trace", false, "Do not write a trace file")
}

func openSession(path string, quiet bool) (*session.Session, error) {
	return openSessionWith(path, quiet, nil)
}

func openSessionWith(path string, quiet bool, wrap func(world.Adapter) world.Adapter) (*session.Session, error) {
	opts := session.Options{
		WrapAdapter:   wrap,
		Sim:           runWorld,
		Bridge:        runBridge,
		RunID:         runID,
		MaxIterations: runMaxIterations,
		Restarts:      runRestarts,
		NoTraceFile:   runNoTrace,
		Quiet:         quiet,
	}
	if runJSON {
		opts.TraceOut = os.Stdout
		opts.Quiet = true
	}
	return session.Open(path, opts)
}

// signalContext is cancelled on SIGINT/SIGTERM. The driver observes it
// between iterations.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run [procedure.yaml]",
	Short: "Run a procedure until it completes, fails, or is stopped",
	Long: `Run a quest procedure against the configured world.

Every iteration reads a fresh snapshot, forward-fills milestone flags, and
executes the selected branch. Interrupting (Ctrl+C) stops the run between
iterations; running it again resumes from the observed state.

Exit codes:
  0  completed
  1  failed, exhausted, or stopped`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	var rec *recorder.Recorder
	var wrap func(world.Adapter) world.Adapter
	if runRecord != "" {
		wrap = func(a world.Adapter) world.Adapter {
			rec = recorder.New(a)
			rec.SetSecrets(runRedact)
			return rec
		}
	}
	s, err := openSessionWith(args[0], false, wrap)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signalContext()
	defer stop()

	if !runJSON {
		fmt.Printf("  %s  run %s\n", s.Doc.Meta.Name, s.RunID)
	}
	report, err := s.Run(ctx)
	if err != nil {
		return err
	}
	if !runJSON {
		printReport(report)
		if s.TracePath != "" {
			fmt.Printf("  trace: %s\n", s.TracePath)
		}
	}
	if rec != nil {
		sc := rec.Scenario(fmt.Sprintf("recorded run %s", s.RunID), s.WorldPath)
		sc.ExpectedStatus = report.Status
		path, err := recorder.Save(runRecord, sc)
		if err != nil {
			return err
		}
		if !runJSON {
			fmt.Printf("  scenario: %s (%d operations)\n", path, len(sc.Setup))
		}
	}
	if report.Status != engine.StatusCompleted {
		return fmt.Errorf("run %s", report.Status)
	}
	return nil
}

func printReport(r *engine.Report) {
	icon := "✓"
	if r.Status != engine.StatusCompleted {
		icon = "✗"
	}
	fmt.Printf("\n  %s %s  %.1f%%  %d iterations  %s\n", icon, r.Status, r.Progress, r.Iterations, r.Duration.Round(time.Millisecond))
	if r.LastFailure != "" {
		fmt.Printf("    reason: %s\n", r.LastFailure)
	}
}

// --- debug ---

var debugCmd = &cobra.Command{
	Use:   "debug [procedure.yaml]",
	Short: "Step through a procedure interactively",
	Args:  cobra.ExactArgs(1),
	RunE:  runDebug,
}

func runDebug(cmd *cobra.Command, args []string) error {
	s, err := openSession(args[0], true)
	if err != nil {
		return err
	}
	defer s.Close()

	proc, err := s.Compile()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	return debugger.New(proc, s.Client, s.EngineConfig()).Run(ctx)
}

// --- tui ---

var tuiCmd = &cobra.Command{
	Use:   "tui [procedure.yaml]",
	Short: "Run a procedure with a live terminal view",
	Args:  cobra.ExactArgs(1),
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	runJSON = false
	s, err := openSession(args[0], true)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := tui.NewModel(s.Doc, cancel).WithStart(tui.StartRun(ctx, s.Run))
	p := tea.NewProgram(model, tea.WithAltScreen())
	tui.Attach(s.Trace, p)

	final, err := p.Run()
	if err != nil {
		return err
	}
	fmt.Println(final.View())
	return nil
}

func init() {
	for _, c := range []*cobra.Command{runCmd, debugCmd, tuiCmd} {
		addRunFlags(c)
	}
	runCmd.Flags().IntVar(&runRestarts, "restarts", 0, "Rebuilds allowed after a structural failure (overrides quest.yaml)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Stream trace events as JSONL to stdout")
	runCmd.Flags().StringVar(&runRecord, "record", "", "Write accepted world operations as a test scenario into this directory")
	runCmd.Flags().StringSliceVar(&runRedact, "redact", nil, "Env vars whose values are redacted from recorded operations")
	tuiCmd.Flags().IntVar(&runRestarts, "restarts", 0, "Rebuilds allowed after a structural failure (overrides quest.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(tuiCmd)
}
