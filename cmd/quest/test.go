package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	ktesting "github.com/ormasoftchile/quest/pkg/kernel/testing"
)

var (
	testScenario string
	testJSON     bool
	testFailFast bool
	testTimeout  string
	testTrace    string
)

var testCmd = &cobra.Command{
	Use:   "test [procedure.yaml...]",
	Short: "Run scenario tests for procedures",
	Long: `Discover scenarios for each procedure, run them against a simulated world,
and check the scenario's expectations.

Scenarios are discovered by convention at:
  {procedure-dir}/scenarios/{procedure-name}/*/scenario.yaml

Exit codes:
  0  all scenarios passed
  1  at least one scenario failed
  2  procedure validation failed (no tests ran)`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTest,
}

func runTest(cmd *cobra.Command, args []string) error {
	timeout, err := time.ParseDuration(testTimeout)
	if err != nil {
		return fmt.Errorf("invalid --timeout %q: %w", testTimeout, err)
	}
	runner := &ktesting.Runner{Timeout: timeout, FailFast: testFailFast}
	if testTrace != "" {
		f, err := os.Create(testTrace)
		if err != nil {
			return fmt.Errorf("open trace: %w", err)
		}
		defer f.Close()
		runner.Trace = f
	}

	allPassed := true
	hasValidationError := false
	for _, path := range args {
		var output *ktesting.TestOutput
		if testScenario != "" {
			output, err = runOneScenario(runner, path, testScenario)
		} else {
			output, err = runner.RunAll(path)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "  ✗ %s: %v\n", path, err)
			hasValidationError = true
			continue
		}

		if testJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.Encode(output)
		} else {
			printTestOutput(os.Stdout, output)
		}
		if output.Summary.Failed > 0 || output.Summary.Errors > 0 {
			allPassed = false
			if testFailFast {
				break
			}
		}
	}

	if hasValidationError {
		os.Exit(2)
	}
	if !allPassed {
		os.Exit(1)
	}
	return nil
}

func runOneScenario(r *ktesting.Runner, path, name string) (*ktesting.TestOutput, error) {
	result, err := r.RunScenario(path, name)
	if err != nil {
		return nil, err
	}
	out := &ktesting.TestOutput{
		Procedure: result.ProcedureName,
		Scenarios: []ktesting.TestResult{*result},
		Summary:   ktesting.TestSummary{Total: 1},
	}
	switch result.Status {
	case "passed":
		out.Summary.Passed = 1
	case "failed":
		out.Summary.Failed = 1
	default:
		out.Summary.Errors = 1
	}
	return out, nil
}

func printTestOutput(w io.Writer, output *ktesting.TestOutput) {
	fmt.Fprintf(w, "\n  %s\n", output.Procedure)
	for _, s := range output.Scenarios {
		switch s.Status {
		case "passed":
			fmt.Fprintf(w, "    ✓ %-30s %3d iterations  %dms\n", s.ScenarioName, s.Iterations, s.DurationMs)
		case "failed":
			fmt.Fprintf(w, "    ✗ %-30s %3d iterations  %dms\n", s.ScenarioName, s.Iterations, s.DurationMs)
			for _, a := range s.Assertions {
				if !a.Passed {
					fmt.Fprintf(w, "        %s: %s\n", a.Type, a.Message)
				}
			}
		case "error":
			fmt.Fprintf(w, "    ✗ %-30s ERROR: %s\n", s.ScenarioName, s.Error)
		}
	}
	fmt.Fprintf(w, "\n  %d scenarios, %d passed, %d failed\n",
		output.Summary.Total, output.Summary.Passed, output.Summary.Failed)
	if output.Summary.Errors > 0 {
		fmt.Fprintf(w, "  %d errors\n", output.Summary.Errors)
	}
}

func init() {
	testCmd.Flags().StringVar(&testScenario, "scenario", "", "Run only the named scenario (default: all)")
	testCmd.Flags().BoolVar(&testJSON, "json", false, "Output results as structured JSON")
	testCmd.Flags().BoolVar(&testFailFast, "fail-fast", false, "Stop after first failure")
	testCmd.Flags().StringVar(&testTimeout, "timeout", "30s", "Per-scenario timeout (e.g. 30s, 1m)")
	testCmd.Flags().StringVar(&testTrace, "trace", "", "Write every scenario's trace events to this JSONL file")
	rootCmd.AddCommand(testCmd)
}
