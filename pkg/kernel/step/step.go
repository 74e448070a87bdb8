package step

import "context"

// Step is one node of a procedure tree. Steps hold no knowledge of their
// position in the tree, so any step may be entered from a cold start.
type Step interface {
	// ID is a stable identifier.
	ID() string
	// Description is a human-readable summary.
	Description() string
	// ShouldSkip reports whether the goal of the step is already satisfied.
	ShouldSkip(ctx context.Context) bool
	// Execute runs the step once.
	Execute(ctx context.Context) Outcome
}

// Info carries the identity shared by the concrete step kinds.
type Info struct {
	id          string
	description string
}

// NewInfo builds step identity.
func NewInfo(id, description string) Info {
	return Info{id: id, description: description}
}

// ID implements Step.ID.
func (i Info) ID() string { return i.id }

// Description implements Step.Description. Falls back to the id.
func (i Info) Description() string {
	if i.description == "" {
		return i.id
	}
	return i.description
}

// ShouldSkip is the default precondition: never skip.
func (Info) ShouldSkip(context.Context) bool { return false }

// Observer is notified around each step execution. The engine uses it to
// write trace events; it must not influence control flow.
type Observer interface {
	StepStarted(s Step)
	StepFinished(s Step, out Outcome)
}

type observerKey struct{}

// WithObserver attaches an Observer to ctx.
func WithObserver(ctx context.Context, obs Observer) context.Context {
	return context.WithValue(ctx, observerKey{}, obs)
}

// Run executes s and reports it to the Observer attached to ctx, if any.
// Composite steps call children through Run so every node is observed.
func Run(ctx context.Context, s Step) Outcome {
	obs, _ := ctx.Value(observerKey{}).(Observer)
	if obs != nil {
		obs.StepStarted(s)
	}
	out := s.Execute(ctx)
	if obs != nil {
		obs.StepFinished(s, out)
	}
	return out
}

// Func adapts a plain function into a Step. Useful for built-in branch
// targets (terminal, idle) and tests.
type Func struct {
	Info
	fn func(ctx context.Context) Outcome
}

// NewFunc wraps fn as a Step.
func NewFunc(id, description string, fn func(ctx context.Context) Outcome) *Func {
	return &Func{Info: NewInfo(id, description), fn: fn}
}

// Execute implements Step.
func (f *Func) Execute(ctx context.Context) Outcome {
	return f.fn(ctx)
}
