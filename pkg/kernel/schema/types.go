// Package schema defines the quest/v0 procedure and world/v0 document types.
package schema

import (
	"fmt"
	"time"
)

// API versions.
const (
	APIVersionProcedure = "quest/v0"
	APIVersionWorld     = "world/v0"
)

// ---------------------------------------------------------------------------
// Procedure
// ---------------------------------------------------------------------------

// Procedure is the top-level quest/v0 document.
type Procedure struct {
	APIVersion string      `yaml:"apiVersion" json:"apiVersion" jsonschema:"enum=quest/v0"`
	Meta       Meta        `yaml:"meta"       json:"meta"`
	Milestones []Milestone `yaml:"milestones" json:"milestones" jsonschema:"minItems=1"`
	// Terminal is an expression that holds once the goal is satisfied.
	Terminal string    `yaml:"terminal,omitempty"  json:"terminal,omitempty"`
	FastPath *FastPath `yaml:"fast_path,omitempty" json:"fast_path,omitempty"`
	Default  *Default  `yaml:"default,omitempty"   json:"default,omitempty"`
}

// Meta contains procedure metadata.
type Meta struct {
	Name        string `yaml:"name"                  json:"name" jsonschema:"pattern=^[a-z0-9][a-z0-9_-]*$"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string `yaml:"version,omitempty"     json:"version,omitempty"`
}

// Milestone is one ordered, forward-only progress fact.
type Milestone struct {
	ID       string `yaml:"id"                 json:"id" jsonschema:"pattern=^[a-zA-Z][a-zA-Z0-9_-]*$"`
	Title    string `yaml:"title,omitempty"    json:"title,omitempty"`
	Evidence string `yaml:"evidence,omitempty" json:"evidence,omitempty"`
	// After lists logical predecessors. Absent means the previous milestone;
	// an explicit empty list means none.
	After  []string `yaml:"after,omitempty"  json:"after,omitempty"`
	Weight int      `yaml:"weight,omitempty" json:"weight,omitempty" jsonschema:"minimum=0"`
	Steps  []Step   `yaml:"steps,omitempty"  json:"steps,omitempty"`
}

// FastPath jumps to late-stage milestones when every required flag holds.
type FastPath struct {
	Requires []string `yaml:"requires" json:"requires" jsonschema:"minItems=1"`
	Stages   []string `yaml:"stages"   json:"stages"   jsonschema:"minItems=1"`
}

// Default is the fallback branch.
type Default struct {
	Steps []Step `yaml:"steps" json:"steps" jsonschema:"minItems=1"`
}

// ---------------------------------------------------------------------------
// Step
// ---------------------------------------------------------------------------

// StepKind classifies a document step.
type StepKind string

const (
	StepAction StepKind = "action"
	StepBranch StepKind = "branch"
)

// Step is an action (op or stages) or a branch step (branches).
type Step struct {
	ID         string   `yaml:"id"                    json:"id" jsonschema:"pattern=^[a-zA-Z][a-zA-Z0-9_.-]*$"`
	Title      string   `yaml:"title,omitempty"       json:"title,omitempty"`
	Op         *Op      `yaml:"op,omitempty"          json:"op,omitempty"`
	Stages     []Op     `yaml:"stages,omitempty"      json:"stages,omitempty"`
	Branches   []Branch `yaml:"branches,omitempty"    json:"branches,omitempty"`
	SkipWhen   string   `yaml:"skip_when,omitempty"   json:"skip_when,omitempty"`
	WaitFor    string   `yaml:"wait_for,omitempty"    json:"wait_for,omitempty"`
	Timeout    string   `yaml:"timeout,omitempty"     json:"timeout,omitempty"`
	FailWhen   string   `yaml:"fail_when,omitempty"   json:"fail_when,omitempty"`
	FailReason string   `yaml:"fail_reason,omitempty" json:"fail_reason,omitempty"`
}

// Kind reports the step kind. Steps with branches are branch steps.
func (s Step) Kind() StepKind {
	if len(s.Branches) > 0 {
		return StepBranch
	}
	return StepAction
}

// Operations returns the ordered operations of an action step.
func (s Step) Operations() []Op {
	if s.Op != nil {
		return append([]Op{*s.Op}, s.Stages...)
	}
	return s.Stages
}

// TimeoutDuration parses Timeout. Empty yields zero.
func (s Step) TimeoutDuration() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("step %s: timeout: %w", s.ID, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("step %s: timeout must not be negative", s.ID)
	}
	return d, nil
}

// Op is one external operation.
type Op struct {
	Kind   string            `yaml:"kind"             json:"kind" jsonschema:"minLength=1"`
	Target string            `yaml:"target,omitempty" json:"target,omitempty"`
	Args   map[string]string `yaml:"args,omitempty"   json:"args,omitempty"`
}

// Branch is one guarded alternative of a branch step. An empty When is the
// fallback.
type Branch struct {
	When  string `yaml:"when,omitempty" json:"when,omitempty"`
	Steps []Step `yaml:"steps"          json:"steps" jsonschema:"minItems=1"`
}

// WalkSteps calls fn for every step in the document, depth first, with a
// JSON-path-like location.
func (p *Procedure) WalkSteps(fn func(path string, s *Step)) {
	for i := range p.Milestones {
		walk(fmt.Sprintf("milestones[%d].steps", i), p.Milestones[i].Steps, fn)
	}
	if p.Default != nil {
		walk("default.steps", p.Default.Steps, fn)
	}
}

func walk(prefix string, steps []Step, fn func(string, *Step)) {
	for i := range steps {
		path := fmt.Sprintf("%s[%d]", prefix, i)
		fn(path, &steps[i])
		for j := range steps[i].Branches {
			walk(fmt.Sprintf("%s.branches[%d].steps", path, j), steps[i].Branches[j].Steps, fn)
		}
	}
}

// MilestoneIDs returns milestone ids in declared order.
func (p *Procedure) MilestoneIDs() []string {
	ids := make([]string, len(p.Milestones))
	for i, m := range p.Milestones {
		ids[i] = m.ID
	}
	return ids
}
