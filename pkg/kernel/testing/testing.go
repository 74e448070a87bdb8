// Package testing implements the quest/v0 scenario-based test harness.
// A scenario runs a procedure against a simulated world and evaluates
// assertions on the final status, visited steps, flags, and progress.
package testing

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/quest/pkg/kernel/world"
)

// Scenario declares the world a procedure runs against and what to assert
// about the run. All assertion fields are optional.
type Scenario struct {
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// World is a world/v0 file relative to the scenario directory.
	// Defaults to world.yaml.
	World string `yaml:"world,omitempty" json:"world,omitempty"`
	// Setup operations are applied directly to the world before the run,
	// modelling progress made by an earlier process.
	Setup         []world.Operation `yaml:"setup,omitempty"          json:"setup,omitempty"`
	MaxIterations int               `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	Restarts      int               `yaml:"restarts,omitempty"       json:"restarts,omitempty"`

	ExpectedStatus string          `yaml:"expected_status,omitempty" json:"expected_status,omitempty"` // completed, failed, stopped, exhausted
	ExpectedReason string          `yaml:"expected_reason,omitempty" json:"expected_reason,omitempty"`
	MustReach      []string        `yaml:"must_reach,omitempty"      json:"must_reach,omitempty"`     // step IDs that must be visited
	MustNotReach   []string        `yaml:"must_not_reach,omitempty"  json:"must_not_reach,omitempty"` // step IDs that must NOT be visited
	ExpectedFlags  map[string]bool `yaml:"expected_flags,omitempty"  json:"expected_flags,omitempty"`
	MinProgress    float64         `yaml:"min_progress,omitempty"    json:"min_progress,omitempty"`
	Tags           []string        `yaml:"tags,omitempty"            json:"tags,omitempty"`
}

// LoadScenario loads a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	return &s, nil
}

// ---------------------------------------------------------------------------
// Run Result (input to assertion evaluation)
// ---------------------------------------------------------------------------

// RunResult captures execution data for assertion evaluation.
type RunResult struct {
	Status       string
	Reason       string
	VisitedSteps []string // ordered step IDs, repeats included
	Flags        map[string]bool
	Progress     float64
	Iterations   int
}

// ---------------------------------------------------------------------------
// Assertion Evaluation
// ---------------------------------------------------------------------------

// AssertionResult is the result of a single assertion.
type AssertionResult struct {
	Type     string `json:"type"` // expected_status, must_reach, expected_flag, ...
	Key      string `json:"key,omitempty"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
}

// Evaluate runs all assertions from a Scenario against a RunResult.
func Evaluate(sc *Scenario, run *RunResult) []AssertionResult {
	var results []AssertionResult

	if sc.ExpectedStatus != "" {
		results = append(results, AssertionResult{
			Type:     "expected_status",
			Expected: sc.ExpectedStatus,
			Actual:   run.Status,
			Passed:   run.Status == sc.ExpectedStatus,
			Message:  fmt.Sprintf("status: expected %q, got %q", sc.ExpectedStatus, run.Status),
		})
	}

	if sc.ExpectedReason != "" {
		results = append(results, AssertionResult{
			Type:     "expected_reason",
			Expected: sc.ExpectedReason,
			Actual:   run.Reason,
			Passed:   run.Reason == sc.ExpectedReason,
			Message:  fmt.Sprintf("reason: expected %q, got %q", sc.ExpectedReason, run.Reason),
		})
	}

	visitedSet := make(map[string]bool, len(run.VisitedSteps))
	for _, s := range run.VisitedSteps {
		visitedSet[s] = true
	}

	for _, stepID := range sc.MustReach {
		passed := visitedSet[stepID]
		results = append(results, AssertionResult{
			Type:     "must_reach",
			Key:      stepID,
			Expected: "visited",
			Actual:   boolToVisited(passed),
			Passed:   passed,
			Message:  fmt.Sprintf("must_reach %q: %s", stepID, boolToVisited(passed)),
		})
	}

	for _, stepID := range sc.MustNotReach {
		visited := visitedSet[stepID]
		results = append(results, AssertionResult{
			Type:     "must_not_reach",
			Key:      stepID,
			Expected: "not visited",
			Actual:   boolToVisited(visited),
			Passed:   !visited,
			Message:  fmt.Sprintf("must_not_reach %q: %s", stepID, boolToVisited(visited)),
		})
	}

	flagNames := make([]string, 0, len(sc.ExpectedFlags))
	for name := range sc.ExpectedFlags {
		flagNames = append(flagNames, name)
	}
	sort.Strings(flagNames)
	for _, name := range flagNames {
		want, got := sc.ExpectedFlags[name], run.Flags[name]
		results = append(results, AssertionResult{
			Type:     "expected_flag",
			Key:      name,
			Expected: fmt.Sprint(want),
			Actual:   fmt.Sprint(got),
			Passed:   want == got,
			Message:  fmt.Sprintf("flag %q: expected %v, got %v", name, want, got),
		})
	}

	if sc.MinProgress > 0 {
		results = append(results, AssertionResult{
			Type:     "min_progress",
			Expected: fmt.Sprintf(">= %.1f", sc.MinProgress),
			Actual:   fmt.Sprintf("%.1f", run.Progress),
			Passed:   run.Progress >= sc.MinProgress,
			Message:  fmt.Sprintf("progress: expected at least %.1f, got %.1f", sc.MinProgress, run.Progress),
		})
	}

	return results
}

// HasFailures returns true if any assertion failed.
func HasFailures(results []AssertionResult) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

func boolToVisited(b bool) string {
	if b {
		return "visited"
	}
	return "not visited"
}
