package step

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestAction_SkipPerformsNothing(t *testing.T) {
	calls := 0
	a := NewAction("open", "open the gate", func(context.Context) bool {
		calls++
		return true
	}, SkipWhen(func(context.Context) bool { return true }))

	for i := 0; i < 3; i++ {
		out := a.Execute(context.Background())
		if !out.IsSuccess() {
			t.Fatalf("call %d: outcome = %s, want success", i, out)
		}
	}
	if calls != 0 {
		t.Errorf("perform called %d times, want 0", calls)
	}
}

func TestAction_FalseMapsToRetry(t *testing.T) {
	ok := false
	a := NewAction("talk", "", func(context.Context) bool { return ok })

	if out := a.Execute(context.Background()); out.Kind != KindRetry {
		t.Fatalf("outcome = %s, want retry", out)
	}
	ok = true
	out := a.Execute(context.Background())
	if !out.IsSuccess() {
		t.Fatalf("outcome = %s, want success", out)
	}
	if out.Hint != a {
		t.Error("success hint should be the action itself")
	}
}

func TestAction_StructuralPreconditionFails(t *testing.T) {
	calls := 0
	a := NewAction("craft", "", func(context.Context) bool {
		calls++
		return true
	}, Require(func(context.Context) error {
		return Structural("recipe requires an unobtainable item")
	}))

	out := a.Execute(context.Background())
	if out.Kind != KindFailed {
		t.Fatalf("outcome = %s, want failed", out)
	}
	if calls != 0 {
		t.Error("perform must not run when the precondition fails")
	}
}

func TestAction_UnconfirmedEffectIsInProgress(t *testing.T) {
	performed := 0
	visible := false
	a := NewAction("pull-lever", "", func(context.Context) bool {
		performed++
		return true
	}, ConfirmWith(func(context.Context) bool { return visible }))

	if out := a.Execute(context.Background()); out.Kind != KindInProgress {
		t.Fatalf("outcome = %s, want in_progress", out)
	}
	visible = true
	if out := a.Execute(context.Background()); !out.IsSuccess() {
		t.Fatalf("outcome = %s, want success", out)
	}
	if performed != 1 {
		t.Errorf("perform called %d times, want 1 (effect confirmed on re-entry)", performed)
	}
}

func TestAction_StagesResumeAtFailedStage(t *testing.T) {
	var log []string
	failB := true
	stage := func(name string, ok func() bool) Stage {
		return Stage{Name: name, Perform: func(context.Context) bool {
			log = append(log, name)
			return ok()
		}}
	}
	a := NewStaged("combine", "use A, B, C in order", []Stage{
		stage("A", func() bool { return true }),
		stage("B", func() bool { return !failB }),
		stage("C", func() bool { return true }),
	})

	if out := a.Execute(context.Background()); out.Kind != KindRetry {
		t.Fatalf("first call = %s, want retry", out)
	}
	if a.Stage() != 1 {
		t.Fatalf("cursor = %d, want 1", a.Stage())
	}
	failB = false
	if out := a.Execute(context.Background()); !out.IsSuccess() {
		t.Fatalf("second call = %s, want success", out)
	}
	want := []string{"A", "B", "B", "C"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log = %v, want %v", log, want)
		}
	}
	if a.Stage() != 0 {
		t.Errorf("cursor after completion = %d, want 0", a.Stage())
	}
}

func TestAction_SucceedingStagesRunInOneCall(t *testing.T) {
	var log []string
	stage := func(name string) Stage {
		return Stage{Name: name, Perform: func(context.Context) bool {
			log = append(log, name)
			return true
		}}
	}
	a := NewStaged("forge", "", []Stage{stage("heat"), stage("hammer"), stage("quench")})

	if out := a.Execute(context.Background()); !out.IsSuccess() {
		t.Fatalf("outcome = %s, want success", out)
	}
	if strings.Join(log, ",") != "heat,hammer,quench" {
		t.Errorf("log = %v", log)
	}
	if a.Stage() != 0 {
		t.Errorf("cursor = %d, want 0", a.Stage())
	}
}

func TestAction_UnconfirmedStageRecheckedBeforeRepeat(t *testing.T) {
	performed := 0
	a := NewAction("ring-bell", "", func(context.Context) bool {
		performed++
		return true
	}, ConfirmWith(func(context.Context) bool { return false }))

	ctx := context.Background()
	for i := 0; i <= confirmRechecks; i++ {
		if out := a.Execute(ctx); out.Kind != KindInProgress {
			t.Fatalf("call %d: outcome = %s, want in_progress", i, out)
		}
	}
	if performed != 1 {
		t.Fatalf("performed %d times while re-checking, want 1", performed)
	}

	if out := a.Execute(ctx); out.Kind != KindInProgress {
		t.Fatalf("outcome after re-checks = %s, want in_progress", out)
	}
	if performed != 2 {
		t.Errorf("performed %d times, want a second attempt once re-checks ran out", performed)
	}
}

func TestAction_DiagnoseStructuralFails(t *testing.T) {
	var last error
	a := NewAction("unlock", "", func(context.Context) bool {
		last = Structural("key is unobtainable")
		return false
	}, DiagnoseWith(func() error { return last }))

	out := a.Execute(context.Background())
	if out.Kind != KindFailed || !strings.Contains(out.Reason, "unobtainable") {
		t.Fatalf("outcome = %s, want failed with reason", out)
	}
}

func TestAction_DiagnoseTransientRetries(t *testing.T) {
	a := NewAction("unlock", "", func(context.Context) bool { return false },
		DiagnoseWith(func() error { return errors.New("gate busy") }))

	out := a.Execute(context.Background())
	if out.Kind != KindRetry || !strings.Contains(out.Reason, "gate busy") {
		t.Fatalf("outcome = %s, want retry annotated with cause", out)
	}
}
