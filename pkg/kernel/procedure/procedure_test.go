package procedure

import (
	"context"
	"errors"
	"testing"

	"github.com/ormasoftchile/quest/pkg/kernel/step"
	"github.com/ormasoftchile/quest/pkg/kernel/world"
)

// snapSource returns whatever *cur points at.
func snapSource(cur *world.Snapshot) SnapshotFunc {
	return func(context.Context) (world.Snapshot, error) { return *cur, nil }
}

type countingAction struct {
	*step.Action
	calls int
}

func newCounting(id string) *countingAction {
	c := &countingAction{}
	c.Action = step.NewAction(id, "", func(context.Context) bool {
		c.calls++
		return true
	})
	return c
}

// fourStage builds milestones [start, stepA, stepB, finish]; being in the
// "tower" zone is only possible after stepA and stepB.
func fourStage(t *testing.T, cur *world.Snapshot) (*Procedure, map[string]*countingAction) {
	t.Helper()
	actions := map[string]*countingAction{}
	var ms []Milestone
	for _, id := range []string{"start", "stepA", "stepB", "finish"} {
		a := newCounting(id)
		actions[id] = a
		ms = append(ms, Milestone{ID: id, Branch: a})
	}
	ms[2].Evidence = func(s world.Snapshot) bool { return s.In("tower") }
	p, err := New(Config{
		Name:       "four-stage",
		Milestones: ms,
		Terminal:   func(s world.Snapshot) bool { return s.Counter("done") > 0 },
		Snapshot:   snapSource(cur),
	})
	if err != nil {
		t.Fatal(err)
	}
	return p, actions
}

func TestProcedure_Scenario_SkipsProvenMilestones(t *testing.T) {
	cur := world.Snapshot{Location: "village"}
	p, actions := fourStage(t, &cur)
	ctx := context.Background()

	if key, _ := p.Decide(ctx); key != "start" {
		t.Fatalf("first decide = %q, want start", key)
	}
	if out := p.Execute(ctx); !out.IsSuccess() {
		t.Fatalf("execute start = %s", out)
	}
	if !p.IsSet("start") {
		t.Fatal("start flag not raised after its branch succeeded")
	}
	if key, _ := p.Decide(ctx); key != "stepA" {
		t.Fatalf("second decide = %q, want stepA", key)
	}

	cur = world.Snapshot{Location: "tower"}
	if key, _ := p.Decide(ctx); key != "finish" {
		t.Fatalf("decide in tower = %q, want finish", key)
	}
	if !p.IsSet("stepA") || !p.IsSet("stepB") {
		t.Error("stepA and stepB should be forward-filled together")
	}
	if actions["stepA"].calls != 0 || actions["stepB"].calls != 0 {
		t.Error("proven milestones must not be re-executed")
	}
}

func TestProcedure_FlagsNeverCleared(t *testing.T) {
	cur := world.Snapshot{Location: "tower"}
	p, _ := fourStage(t, &cur)
	p.Sync(cur)
	before := p.Flags()

	for _, loc := range []string{"village", "", "cave", "tower", "village"} {
		p.Sync(world.Snapshot{Location: loc})
		for id, was := range before {
			if was && !p.IsSet(id) {
				t.Fatalf("flag %s cleared after snapshot %q", id, loc)
			}
		}
	}
}

func TestProcedure_SelectDeterministic(t *testing.T) {
	cur := world.Snapshot{Location: "village"}
	p, _ := fourStage(t, &cur)
	p.Mark("start")
	first := p.Select(cur)
	for i := 0; i < 10; i++ {
		if got := p.Select(cur); got != first {
			t.Fatalf("call %d: %+v, want %+v", i, got, first)
		}
	}
}

func TestProcedure_TerminalIdempotent(t *testing.T) {
	cur := world.Snapshot{Counters: map[string]int{"done": 1}}
	p, actions := fourStage(t, &cur)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if out := p.Execute(ctx); out.Kind != step.KindComplete {
			t.Fatalf("call %d = %s, want complete", i, out)
		}
	}
	// Terminal stays recorded even if the external signal disappears.
	cur = world.Snapshot{}
	if out := p.Execute(ctx); out.Kind != step.KindComplete {
		t.Fatalf("after signal loss = %s, want complete", out)
	}
	for id, a := range actions {
		if a.calls != 0 {
			t.Errorf("action %s ran %d times after completion", id, a.calls)
		}
	}
	if !p.IsComplete() || p.ProgressEstimate() != 100 {
		t.Errorf("complete=%v progress=%v", p.IsComplete(), p.ProgressEstimate())
	}
}

func TestProcedure_FastPathSelectsLateStage(t *testing.T) {
	cur := world.Snapshot{}
	ms := []Milestone{
		{ID: "intro"},
		{ID: "gather"},
		{ID: "forge", Evidence: func(s world.Snapshot) bool { return s.In("summit") }},
		{ID: "climb", After: []string{}},
		{ID: "slay"},
	}
	p, err := New(Config{
		Name:       "dragon",
		Milestones: ms,
		FastPath:   &FastPath{Requires: []string{"intro", "gather", "forge"}, Stages: []string{"slay"}},
		Snapshot:   snapSource(&cur),
	})
	if err != nil {
		t.Fatal(err)
	}

	if sel := p.Select(cur); sel.Key != "intro" || sel.Reason != ReasonMilestone {
		t.Fatalf("cold select = %+v", sel)
	}
	cur = world.Snapshot{Location: "summit"}
	p.Sync(cur)
	sel := p.Select(cur)
	if sel.Key != "slay" || sel.Reason != ReasonFastPath {
		t.Fatalf("select after summit = %+v, want slay via fast path", sel)
	}
	if p.IsSet("climb") {
		t.Error("climb has no predecessors in common with forge and must not be asserted")
	}
}

func TestProcedure_DefaultWhenAllRaised(t *testing.T) {
	cur := world.Snapshot{}
	p, _ := fourStage(t, &cur)
	for _, id := range []string{"start", "stepA", "stepB", "finish"} {
		p.Mark(id)
	}
	sel := p.Select(cur)
	if sel.Key != DefaultKey || sel.Reason != ReasonDefault {
		t.Fatalf("select = %+v, want default", sel)
	}
	if out := p.Execute(context.Background()); out.Kind != step.KindInProgress {
		t.Errorf("built-in default = %s, want in_progress", out)
	}
}

func TestProcedure_ExplicitPredecessors(t *testing.T) {
	cur := world.Snapshot{}
	p, err := New(Config{
		Name: "branching",
		Milestones: []Milestone{
			{ID: "a"},
			{ID: "b", After: []string{}},
			{ID: "c", After: []string{"a"}},
			{ID: "d", After: []string{"c"}, Evidence: func(s world.Snapshot) bool { return s.Has("crown") }},
		},
		Snapshot: snapSource(&cur),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Predecessors("d"); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("Predecessors(d) = %v, want [a c]", got)
	}
	raised := p.Sync(world.Snapshot{Items: map[string]int{"crown": 1}})
	if len(raised) != 3 {
		t.Fatalf("raised = %v, want [a c d]", raised)
	}
	if p.IsSet("b") {
		t.Error("b is not a predecessor of d")
	}
}

func TestProcedure_ProgressMonotonic(t *testing.T) {
	cur := world.Snapshot{}
	p, _ := fourStage(t, &cur)
	last := p.ProgressEstimate()
	for _, id := range []string{"start", "stepB", "finish"} {
		p.Mark(id)
		got := p.ProgressEstimate()
		if got < last {
			t.Fatalf("progress decreased: %v → %v", last, got)
		}
		last = got
	}
	if last != 100 {
		t.Errorf("all milestones raised: progress = %v, want 100", last)
	}
}

func TestProcedure_SnapshotErrorRetries(t *testing.T) {
	p, err := New(Config{
		Name:       "flaky",
		Milestones: []Milestone{{ID: "only"}},
		Snapshot: func(context.Context) (world.Snapshot, error) {
			return world.Snapshot{}, errors.New("bridge offline")
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out := p.Execute(context.Background()); out.Kind != step.KindRetry {
		t.Errorf("outcome = %s, want retry", out)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	src := snapSource(&world.Snapshot{})
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no name", Config{Snapshot: src}},
		{"no snapshot", Config{Name: "x"}},
		{"reserved id", Config{Name: "x", Snapshot: src, Milestones: []Milestone{{ID: TerminalKey}}}},
		{"duplicate", Config{Name: "x", Snapshot: src, Milestones: []Milestone{{ID: "a"}, {ID: "a"}}}},
		{"forward predecessor", Config{Name: "x", Snapshot: src, Milestones: []Milestone{{ID: "a", After: []string{"b"}}, {ID: "b"}}}},
		{"unknown fast path", Config{Name: "x", Snapshot: src, Milestones: []Milestone{{ID: "a"}}, FastPath: &FastPath{Requires: []string{"a"}, Stages: []string{"zz"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

type recordingObserver struct {
	raised  [][]string
	decided []Selection
	reached []string
}

func (r *recordingObserver) Synced(raised []string, _ world.Snapshot) { r.raised = append(r.raised, raised) }
func (r *recordingObserver) Decided(sel Selection)                   { r.decided = append(r.decided, sel) }
func (r *recordingObserver) Reached(id string)                       { r.reached = append(r.reached, id) }

func TestProcedure_ObserverSeesDecisionsAndMilestones(t *testing.T) {
	cur := world.Snapshot{}
	p, _ := fourStage(t, &cur)
	obs := &recordingObserver{}
	p.Observe(obs)

	p.Execute(context.Background())
	if len(obs.decided) != 1 || obs.decided[0].Key != "start" {
		t.Fatalf("decided = %+v", obs.decided)
	}
	if len(obs.reached) != 1 || obs.reached[0] != "start" {
		t.Fatalf("reached = %v", obs.reached)
	}
}
