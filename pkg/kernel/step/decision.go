package step

import (
	"context"
	"sort"
)

// DecideFunc selects a branch key. It is called on every execution and must
// not rely on anything it returned before.
type DecideFunc func(ctx context.Context) (string, error)

// DecisionMode controls what a Decision does with the selected child.
type DecisionMode int

const (
	// Delegate executes the selected child and returns its Outcome.
	Delegate DecisionMode = iota
	// Select returns Success with the child as hint without running it.
	Select
)

// Decision performs no external operation: it picks a child step by key.
type Decision struct {
	Info
	decide   DecideFunc
	branches map[string]Step
	fallback Step
	mode     DecisionMode
}

// DecisionOption configures a Decision.
type DecisionOption func(*Decision)

// WithMode sets the decision mode (Delegate by default).
func WithMode(m DecisionMode) DecisionOption {
	return func(d *Decision) { d.mode = m }
}

// NewDecision builds a decision with an empty branch table.
func NewDecision(id, description string, decide DecideFunc, opts ...DecisionOption) *Decision {
	d := &Decision{
		Info:     NewInfo(id, description),
		decide:   decide,
		branches: make(map[string]Step),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Branch maps key to child. A later call for the same key replaces it.
func (d *Decision) Branch(key string, child Step) *Decision {
	d.branches[key] = child
	return d
}

// Default sets the child used when a key has no mapping.
func (d *Decision) Default(child Step) *Decision {
	d.fallback = child
	return d
}

// Lookup returns the child for key, falling back to the default.
func (d *Decision) Lookup(key string) (Step, bool) {
	if child, ok := d.branches[key]; ok {
		return child, true
	}
	if d.fallback != nil {
		return d.fallback, true
	}
	return nil, false
}

// Keys returns the mapped branch keys, sorted.
func (d *Decision) Keys() []string {
	keys := make([]string, 0, len(d.branches))
	for k := range d.branches {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Execute implements Step.
func (d *Decision) Execute(ctx context.Context) Outcome {
	key, err := d.decide(ctx)
	if err != nil {
		return Classify(err)
	}
	child, ok := d.Lookup(key)
	if !ok {
		return Failedf("decision %s: no branch for key %q and no default", d.ID(), key)
	}
	if d.mode == Select {
		return Success(child)
	}
	return Run(ctx, child)
}
