// Package procedure implements the root of one automation: an ordered set of
// milestones whose forward-only flags are re-derived from live external state
// before every decision, and the branch selection that turns those flags into
// the next step to run.
package procedure

import (
	"context"
	"fmt"

	"github.com/ormasoftchile/quest/pkg/kernel/step"
	"github.com/ormasoftchile/quest/pkg/kernel/world"
)

// Reserved branch keys.
const (
	TerminalKey = "complete"
	DefaultKey  = "default"
)

// Evidence reports whether a snapshot is sufficient proof of a milestone.
// It must be conservative: ambiguous signals return false.
type Evidence func(world.Snapshot) bool

// Milestone is one named, one-way progress fact.
type Milestone struct {
	ID    string
	Title string
	// Evidence forward-fills the flag from a snapshot. nil means the milestone
	// can only be reached by running its branch.
	Evidence Evidence
	// After lists logical predecessors. nil means the previous milestone in
	// declared order; an empty non-nil slice means none.
	After []string
	// Weight contributes to the progress estimate. Zero counts as one.
	Weight int
	// Branch is the work that reaches the milestone. Success raises the flag.
	Branch step.Step
}

// FastPath jumps to late-stage milestones once all Requires are raised.
type FastPath struct {
	Requires []string
	Stages   []string
}

// SnapshotFunc reads the external state.
type SnapshotFunc func(ctx context.Context) (world.Snapshot, error)

// Config describes a procedure.
type Config struct {
	Name        string
	Description string
	Milestones  []Milestone
	// Terminal reports that the procedure goal is satisfied externally.
	Terminal Evidence
	FastPath *FastPath
	// Default runs when no other branch is selected. nil installs a step
	// reporting InProgress while waiting for external progress.
	Default  step.Step
	Snapshot SnapshotFunc
}

// Reason explains why a branch was selected.
type Reason string

const (
	ReasonTerminal  Reason = "terminal"
	ReasonFastPath  Reason = "fast_path"
	ReasonMilestone Reason = "milestone"
	ReasonDefault   Reason = "default"
)

// Selection is the result of one branch selection.
type Selection struct {
	Key    string
	Reason Reason
}

// Observer receives procedure-level events. Implementations must not feed
// back into selection.
type Observer interface {
	Synced(raised []string, snap world.Snapshot)
	Decided(sel Selection)
	Reached(milestoneID string)
}

// Procedure is the root Step of one automation. It owns the flag set, the
// branch table, and the completion state. It is not safe for concurrent use:
// exactly one driver executes it.
type Procedure struct {
	name        string
	description string
	milestones  []Milestone
	index       map[string]int
	preds       map[string][]string
	flags       *Flags
	terminal    Evidence
	fastPath    *FastPath
	snapshot    SnapshotFunc
	root        *step.Decision
	observer    Observer

	complete bool
	progress float64
	last     Selection
	lastSnap world.Snapshot
}

// New validates cfg and builds the step tree.
func New(cfg Config) (*Procedure, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("procedure: name is required")
	}
	if cfg.Snapshot == nil {
		return nil, fmt.Errorf("procedure %s: snapshot source is required", cfg.Name)
	}

	p := &Procedure{
		name:        cfg.Name,
		description: cfg.Description,
		milestones:  append([]Milestone(nil), cfg.Milestones...),
		index:       make(map[string]int, len(cfg.Milestones)),
		terminal:    cfg.Terminal,
		fastPath:    cfg.FastPath,
		snapshot:    cfg.Snapshot,
	}

	ids := make([]string, 0, len(p.milestones))
	for i, m := range p.milestones {
		switch {
		case m.ID == "":
			return nil, fmt.Errorf("procedure %s: milestone %d has no id", p.name, i)
		case m.ID == TerminalKey || m.ID == DefaultKey:
			return nil, fmt.Errorf("procedure %s: milestone id %q is reserved", p.name, m.ID)
		}
		if _, dup := p.index[m.ID]; dup {
			return nil, fmt.Errorf("procedure %s: duplicate milestone %q", p.name, m.ID)
		}
		p.index[m.ID] = i
		ids = append(ids, m.ID)
	}

	preds, err := predecessorClosure(p.milestones, p.index)
	if err != nil {
		return nil, fmt.Errorf("procedure %s: %w", p.name, err)
	}
	p.preds = preds

	if fp := p.fastPath; fp != nil {
		for _, id := range append(append([]string(nil), fp.Requires...), fp.Stages...) {
			if _, ok := p.index[id]; !ok {
				return nil, fmt.Errorf("procedure %s: fast path references unknown milestone %q", p.name, id)
			}
		}
	}

	p.flags = newFlags(ids)
	p.root = p.buildRoot(cfg.Default)
	return p, nil
}

// predecessorClosure resolves each milestone's transitive logical
// predecessors. Predecessors must be declared earlier, which rules out cycles.
func predecessorClosure(ms []Milestone, index map[string]int) (map[string][]string, error) {
	direct := make(map[string][]string, len(ms))
	for i, m := range ms {
		if m.After == nil {
			if i > 0 {
				direct[m.ID] = []string{ms[i-1].ID}
			}
			continue
		}
		for _, dep := range m.After {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("milestone %q: unknown predecessor %q", m.ID, dep)
			}
			if j >= i {
				return nil, fmt.Errorf("milestone %q: predecessor %q must be declared earlier", m.ID, dep)
			}
		}
		direct[m.ID] = append([]string(nil), m.After...)
	}

	closure := make(map[string][]string, len(ms))
	for _, m := range ms {
		seen := map[string]bool{}
		var walk func(id string)
		walk = func(id string) {
			for _, dep := range direct[id] {
				if !seen[dep] {
					seen[dep] = true
					walk(dep)
				}
			}
		}
		walk(m.ID)
		var out []string
		for _, other := range ms {
			if seen[other.ID] {
				out = append(out, other.ID)
			}
		}
		closure[m.ID] = out
	}
	return closure, nil
}

func (p *Procedure) buildRoot(fallback step.Step) *step.Decision {
	root := step.NewDecision(p.name, p.description, p.Decide)
	for _, m := range p.milestones {
		root.Branch(m.ID, &milestoneBranch{proc: p, milestone: m})
	}
	root.Branch(TerminalKey, step.NewFunc(TerminalKey, "procedure goal reached", func(context.Context) step.Outcome {
		return step.Complete()
	}))
	if fallback == nil {
		fallback = step.NewFunc(DefaultKey, "wait for external progress", func(context.Context) step.Outcome {
			return step.InProgressf("%s: waiting for external progress", p.name)
		})
	}
	root.Branch(DefaultKey, fallback)
	root.Default(fallback)
	return root
}

// Observe installs an observer.
func (p *Procedure) Observe(obs Observer) { p.observer = obs }

// ID implements step.Step.
func (p *Procedure) ID() string { return p.name }

// Description implements step.Step.
func (p *Procedure) Description() string {
	if p.description == "" {
		return p.name
	}
	return p.description
}

// ShouldSkip implements step.Step. A procedure never skips itself; completion
// is handled by the terminal branch.
func (p *Procedure) ShouldSkip(context.Context) bool { return false }

// Execute implements step.Step by running the root decision.
func (p *Procedure) Execute(ctx context.Context) step.Outcome {
	return p.root.Execute(ctx)
}

// Root returns the root decision step.
func (p *Procedure) Root() *step.Decision { return p.root }

// Decide reads a fresh snapshot, forward-fills flags from it, then selects a
// branch key. It is the root decision's DecideFunc.
func (p *Procedure) Decide(ctx context.Context) (string, error) {
	snap, err := p.snapshot(ctx)
	if err != nil {
		return "", err
	}
	raised := p.Sync(snap)
	if p.observer != nil {
		p.observer.Synced(raised, snap)
	}
	sel := p.Select(snap)
	if p.observer != nil {
		p.observer.Decided(sel)
	}
	return sel.Key, nil
}

// Sync forward-fills flags: flag[i] := flag[i] OR evidence(i, snap). A
// milestone proven by evidence also raises its logical predecessors. Returns
// the ids newly raised, in declared order.
func (p *Procedure) Sync(snap world.Snapshot) []string {
	p.lastSnap = snap
	proven := make(map[string]bool)
	for _, m := range p.milestones {
		if p.flags.IsSet(m.ID) || m.Evidence == nil || !m.Evidence(snap) {
			continue
		}
		proven[m.ID] = true
		for _, dep := range p.preds[m.ID] {
			proven[dep] = true
		}
	}

	var raised []string
	for _, m := range p.milestones {
		if proven[m.ID] && p.flags.Set(m.ID) {
			raised = append(raised, m.ID)
		}
	}
	p.updateProgress()
	return raised
}

// Select chooses the branch for the current flags and snap:
//  1. terminal goal satisfied (or already recorded) → terminal key
//  2. fast path prerequisites all raised → first unmet late stage
//  3. first unmet milestone in declared order
//  4. default key
func (p *Procedure) Select(snap world.Snapshot) Selection {
	sel := p.selectKey(snap)
	p.last = sel
	return sel
}

func (p *Procedure) selectKey(snap world.Snapshot) Selection {
	if p.complete || (p.terminal != nil && p.terminal(snap)) {
		p.complete = true
		p.updateProgress()
		return Selection{Key: TerminalKey, Reason: ReasonTerminal}
	}
	if fp := p.fastPath; fp != nil && len(fp.Requires) > 0 && p.flags.AllSet(fp.Requires...) {
		for _, id := range fp.Stages {
			if !p.flags.IsSet(id) {
				return Selection{Key: id, Reason: ReasonFastPath}
			}
		}
	}
	for _, m := range p.milestones {
		if !p.flags.IsSet(m.ID) {
			return Selection{Key: m.ID, Reason: ReasonMilestone}
		}
	}
	return Selection{Key: DefaultKey, Reason: ReasonDefault}
}

// Mark raises a milestone and its logical predecessors. Unknown ids are
// ignored. Returns true if anything was newly raised.
func (p *Procedure) Mark(id string) bool {
	if _, ok := p.index[id]; !ok {
		return false
	}
	changed := false
	for _, dep := range p.preds[id] {
		if p.flags.Set(dep) {
			changed = true
		}
	}
	if p.flags.Set(id) {
		changed = true
	}
	p.updateProgress()
	return changed
}

func (p *Procedure) updateProgress() {
	if est := p.estimate(); est > p.progress {
		p.progress = est
	}
}

func (p *Procedure) estimate() float64 {
	if p.complete {
		return 100
	}
	total, done := 0, 0
	for _, m := range p.milestones {
		w := m.Weight
		if w <= 0 {
			w = 1
		}
		total += w
		if p.flags.IsSet(m.ID) {
			done += w
		}
	}
	if total == 0 {
		return 0
	}
	return 100 * float64(done) / float64(total)
}

// ProgressEstimate returns a non-decreasing best-effort percentage.
func (p *Procedure) ProgressEstimate() float64 { return p.progress }

// IsComplete reports whether the terminal goal has been observed.
func (p *Procedure) IsComplete() bool { return p.complete }

// IsSet reports whether a milestone flag is raised.
func (p *Procedure) IsSet(id string) bool { return p.flags.IsSet(id) }

// Flags returns a copy of the flag values.
func (p *Procedure) Flags() map[string]bool { return p.flags.Values() }

// Raised returns raised milestone ids in declared order.
func (p *Procedure) Raised() []string { return p.flags.Raised() }

// LastSelection returns the most recent selection, for diagnostics only.
func (p *Procedure) LastSelection() Selection { return p.last }

// LastSnapshot returns the snapshot of the most recent sync.
func (p *Procedure) LastSnapshot() world.Snapshot { return p.lastSnap }

// Predecessors returns the transitive logical predecessors of id.
func (p *Procedure) Predecessors(id string) []string {
	return append([]string(nil), p.preds[id]...)
}

// MilestoneStatus is a read-only view of one milestone.
type MilestoneStatus struct {
	ID     string
	Title  string
	Raised bool
}

// Milestones returns milestone status in declared order.
func (p *Procedure) Milestones() []MilestoneStatus {
	out := make([]MilestoneStatus, 0, len(p.milestones))
	for _, m := range p.milestones {
		out = append(out, MilestoneStatus{ID: m.ID, Title: m.Title, Raised: p.flags.IsSet(m.ID)})
	}
	return out
}

// milestoneBranch runs a milestone's work and raises its flag on success.
type milestoneBranch struct {
	proc      *Procedure
	milestone Milestone
}

func (b *milestoneBranch) ID() string { return b.milestone.ID }

func (b *milestoneBranch) Description() string {
	if b.milestone.Title != "" {
		return b.milestone.Title
	}
	return b.milestone.ID
}

func (b *milestoneBranch) ShouldSkip(ctx context.Context) bool {
	return b.proc.flags.IsSet(b.milestone.ID)
}

func (b *milestoneBranch) Execute(ctx context.Context) step.Outcome {
	if b.milestone.Branch == nil {
		return step.InProgressf("waiting for evidence of %s", b.milestone.ID)
	}
	out := step.Run(ctx, b.milestone.Branch)
	if out.IsSuccess() && b.proc.Mark(b.milestone.ID) && b.proc.observer != nil {
		b.proc.observer.Reached(b.milestone.ID)
	}
	return out
}
