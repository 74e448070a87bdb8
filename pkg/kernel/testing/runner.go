package testing

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ormasoftchile/quest/pkg/kernel/build"
	"github.com/ormasoftchile/quest/pkg/kernel/engine"
	"github.com/ormasoftchile/quest/pkg/kernel/schema"
	"github.com/ormasoftchile/quest/pkg/kernel/trace"
	"github.com/ormasoftchile/quest/pkg/kernel/validate"
	"github.com/ormasoftchile/quest/pkg/kernel/world"
	"github.com/ormasoftchile/quest/pkg/kernel/world/sim"
)

// DefaultMaxIterations bounds scenarios that do not set max_iterations.
const DefaultMaxIterations = 200

// TestResult is the result of running one scenario.
type TestResult struct {
	ProcedureName string            `json:"procedure_name"`
	ScenarioName  string            `json:"scenario_name"`
	Status        string            `json:"status"` // passed, failed, error
	DurationMs    int64             `json:"duration_ms"`
	Iterations    int               `json:"iterations"`
	Assertions    []AssertionResult `json:"assertions,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// TestSummary aggregates counts across scenarios.
type TestSummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Errors int `json:"errors"`
}

// TestOutput is the top-level output of a test run.
type TestOutput struct {
	Procedure string       `json:"procedure"`
	Scenarios []TestResult `json:"scenarios"`
	Summary   TestSummary  `json:"summary"`
}

// Runner executes scenario-based tests against a procedure.
type Runner struct {
	Timeout  time.Duration
	FailFast bool
	// Trace, when set, receives every scenario's trace events.
	Trace io.Writer
}

// ScenarioInfo describes a discovered scenario directory.
type ScenarioInfo struct {
	Name string
	Dir  string
}

// DiscoverScenarios finds scenario directories for a procedure.
// Convention: scenarios are in a sibling `scenarios/<procedure-file>/`
// directory, each subdirectory containing a `scenario.yaml`.
func DiscoverScenarios(procedurePath string) ([]ScenarioInfo, error) {
	scenariosDir := scenariosRoot(procedurePath)
	entries, err := os.ReadDir(scenariosDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read scenarios dir: %w", err)
	}

	var scenarios []ScenarioInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		scenarioFile := filepath.Join(scenariosDir, entry.Name(), "scenario.yaml")
		if _, err := os.Stat(scenarioFile); err == nil {
			scenarios = append(scenarios, ScenarioInfo{
				Name: entry.Name(),
				Dir:  filepath.Join(scenariosDir, entry.Name()),
			})
		}
	}
	return scenarios, nil
}

func scenariosRoot(procedurePath string) string {
	dir := filepath.Dir(procedurePath)
	base := strings.TrimSuffix(filepath.Base(procedurePath), filepath.Ext(procedurePath))
	return filepath.Join(dir, "scenarios", base)
}

// RunAll discovers and runs all scenarios for a procedure.
func (r *Runner) RunAll(procedurePath string) (*TestOutput, error) {
	scenarios, err := DiscoverScenarios(procedurePath)
	if err != nil {
		return nil, err
	}
	doc, err := loadValid(procedurePath)
	if err != nil {
		return nil, err
	}

	output := &TestOutput{Procedure: doc.Meta.Name}
	for _, si := range scenarios {
		result := r.runScenario(doc, si)
		output.Scenarios = append(output.Scenarios, result)

		switch result.Status {
		case "passed":
			output.Summary.Passed++
		case "failed":
			output.Summary.Failed++
		case "error":
			output.Summary.Errors++
		}
		output.Summary.Total++

		if r.FailFast && result.Status != "passed" {
			break
		}
	}
	return output, nil
}

// RunScenario runs a single named scenario.
func (r *Runner) RunScenario(procedurePath, scenarioName string) (*TestResult, error) {
	doc, err := loadValid(procedurePath)
	if err != nil {
		return nil, err
	}
	si := ScenarioInfo{Name: scenarioName, Dir: filepath.Join(scenariosRoot(procedurePath), scenarioName)}
	result := r.runScenario(doc, si)
	return &result, nil
}

func loadValid(path string) (*schema.Procedure, error) {
	doc, errs := validate.ValidateFile(path)
	if validate.HasErrors(errs) {
		return nil, fmt.Errorf("procedure validation failed: %s", validate.Errors(errs)[0])
	}
	return doc, nil
}

// runScenario executes a single scenario and evaluates its assertions.
func (r *Runner) runScenario(doc *schema.Procedure, si ScenarioInfo) TestResult {
	start := time.Now()
	result := TestResult{ProcedureName: doc.Meta.Name, ScenarioName: si.Name}
	fail := func(format string, args ...any) TestResult {
		result.Status = "error"
		result.Error = fmt.Sprintf(format, args...)
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}

	sc, err := LoadScenario(filepath.Join(si.Dir, "scenario.yaml"))
	if err != nil {
		return fail("load scenario: %s", err)
	}
	worldPath := sc.World
	if worldPath == "" {
		worldPath = "world.yaml"
	}
	if !filepath.IsAbs(worldPath) {
		worldPath = filepath.Join(si.Dir, worldPath)
	}
	wdoc, errs := validate.ValidateWorldFile(worldPath)
	if validate.HasErrors(errs) {
		return fail("world: %s", validate.Errors(errs)[0])
	}

	run, err := r.Execute(doc, wdoc, sc, "test-"+si.Name)
	if err != nil {
		return fail("%s", err)
	}

	result.Assertions = Evaluate(sc, run)
	result.Status = "passed"
	if HasFailures(result.Assertions) {
		result.Status = "failed"
	}
	result.Iterations = run.Iterations
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

// setupAttempts bounds retries of one setup operation, so gates with
// injected failures can be replayed from a recorded run.
const setupAttempts = 5

func applySetup(ctx context.Context, w *sim.World, op world.Operation) error {
	var err error
	for range setupAttempts {
		var ok bool
		ok, err = w.Attempt(ctx, op)
		w.Settle()
		if ok {
			return nil
		}
	}
	if err == nil {
		err = fmt.Errorf("refused %d times", setupAttempts)
	}
	return err
}

// Execute runs doc against a fresh simulation of wdoc. Backoff waits are
// skipped: simulated time only advances through snapshots.
func (r *Runner) Execute(doc *schema.Procedure, wdoc *schema.World, sc *Scenario, runID string) (*RunResult, error) {
	w, err := sim.New(wdoc)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	for i, op := range sc.Setup {
		if err := applySetup(ctx, w, op); err != nil {
			return nil, fmt.Errorf("setup[%d] %s rejected: %v", i, op, err)
		}
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	client := world.Bind(w)
	tw := trace.NewWriter(r.Trace, runID)
	var visited []string
	tw.Subscribe(func(e trace.Event) {
		if e.Type == trace.EventStepStart {
			if id, ok := e.Data["step_id"].(string); ok {
				visited = append(visited, id)
			}
		}
	})

	maxIter := sc.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	cfg := engine.Config{
		RunID:         runID,
		MaxIterations: maxIter,
		Trace:         tw,
		Quiet:         true,
		Sleep:         func(context.Context, time.Duration) {},
	}

	var last engine.Target
	sup := &engine.Supervisor{
		Restarts: sc.Restarts,
		Config:   cfg,
		Factory: func() (engine.Target, error) {
			p, err := build.Compile(doc, client)
			if err != nil {
				return nil, err
			}
			last = p
			return p, nil
		},
	}
	report, err := sup.Run(ctx)
	if err != nil {
		return nil, err
	}

	run := &RunResult{
		Status:       report.Status,
		Reason:       report.LastFailure,
		VisitedSteps: visited,
		Progress:     report.Progress,
		Iterations:   report.Iterations,
		Flags:        map[string]bool{},
	}
	if f, ok := last.(interface{ Flags() map[string]bool }); ok {
		run.Flags = f.Flags()
	}
	return run, nil
}
