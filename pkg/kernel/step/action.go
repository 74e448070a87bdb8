package step

import "context"

// PerformFunc performs one external operation. true means the operation was
// accepted.
type PerformFunc func(ctx context.Context) bool

// CheckFunc inspects external state.
type CheckFunc func(ctx context.Context) bool

// confirmRechecks is how many times an unconfirmed stage is re-checked
// before its operation is performed again.
const confirmRechecks = 3

// Stage is one ordered sub-operation of an Action.
type Stage struct {
	Name    string
	Perform PerformFunc
	// Confirm, when set, must observe the effect of Perform. A false result
	// leaves the stage pending and the action reports InProgress until the
	// effect shows up or the re-checks run out.
	Confirm CheckFunc
}

// Action performs concrete operations against the external system. A plain
// action has one stage; a staged action runs its stages strictly in order,
// as many as succeed in one call, and keeps its cursor across calls so a
// retry resumes at the failed stage.
type Action struct {
	Info
	stages       []Stage
	skip         CheckFunc
	precondition func(ctx context.Context) error
	diagnose     func() error

	cursor   int
	awaiting bool
	rechecks int
	attempts int
}

// ActionOption configures an Action.
type ActionOption func(*Action)

// SkipWhen installs the idempotence check evaluated before any side effect.
func SkipWhen(fn CheckFunc) ActionOption {
	return func(a *Action) { a.skip = fn }
}

// ConfirmWith sets the Confirm check of a single-stage action.
func ConfirmWith(fn CheckFunc) ActionOption {
	return func(a *Action) {
		if len(a.stages) > 0 {
			a.stages[len(a.stages)-1].Confirm = fn
		}
	}
}

// Require installs a precondition. A StructuralError fails the action;
// any other error makes it retry.
func Require(fn func(ctx context.Context) error) ActionOption {
	return func(a *Action) { a.precondition = fn }
}

// DiagnoseWith installs a lookup for why Perform was not accepted. A
// StructuralError fails the action; other errors annotate the retry.
func DiagnoseWith(fn func() error) ActionOption {
	return func(a *Action) { a.diagnose = fn }
}

// NewAction builds a single-stage action.
func NewAction(id, description string, perform PerformFunc, opts ...ActionOption) *Action {
	return NewStaged(id, description, []Stage{{Name: id, Perform: perform}}, opts...)
}

// NewStaged builds a multi-stage action.
func NewStaged(id, description string, stages []Stage, opts ...ActionOption) *Action {
	a := &Action{
		Info:   NewInfo(id, description),
		stages: append([]Stage(nil), stages...),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ShouldSkip implements Step.
func (a *Action) ShouldSkip(ctx context.Context) bool {
	return a.skip != nil && a.skip(ctx)
}

// Execute implements Step.
func (a *Action) Execute(ctx context.Context) Outcome {
	if a.ShouldSkip(ctx) {
		a.Reset()
		return Success(a)
	}
	if a.precondition != nil {
		if err := a.precondition(ctx); err != nil {
			return Classify(err)
		}
	}

	for a.cursor < len(a.stages) {
		st := a.stages[a.cursor]

		if a.awaiting {
			if st.Confirm(ctx) {
				a.advance()
				continue
			}
			if a.rechecks < confirmRechecks {
				a.rechecks++
				return InProgressf("%s: still waiting for %s (check %d of %d)", a.ID(), st.Name, a.rechecks, confirmRechecks)
			}
			a.awaiting = false
			a.rechecks = 0
		}

		a.attempts++
		if !st.Perform(ctx) {
			if err := a.why(); err != nil {
				if IsStructural(err) {
					return Classify(err)
				}
				return Retryf("%s: %s not accepted (attempt %d): %v", a.ID(), st.Name, a.attempts, err)
			}
			return Retryf("%s: %s not accepted (attempt %d)", a.ID(), st.Name, a.attempts)
		}
		if st.Confirm != nil && !st.Confirm(ctx) {
			a.awaiting = true
			return InProgressf("%s: waiting for %s to take effect", a.ID(), st.Name)
		}
		a.advance()
	}

	a.Reset()
	return Success(a)
}

func (a *Action) why() error {
	if a.diagnose == nil {
		return nil
	}
	return a.diagnose()
}

func (a *Action) advance() {
	a.cursor++
	a.attempts = 0
	a.awaiting = false
	a.rechecks = 0
}

// Reset clears sub-stage state.
func (a *Action) Reset() {
	a.cursor = 0
	a.awaiting = false
	a.rechecks = 0
	a.attempts = 0
}

// Stage returns the index of the next stage to run.
func (a *Action) Stage() int { return a.cursor }

// Stages returns the number of stages.
func (a *Action) Stages() int { return len(a.stages) }
