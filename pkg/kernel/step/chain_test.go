package step

import (
	"context"
	"testing"
)

type recorder struct {
	started  []string
	finished []Outcome
}

func (r *recorder) StepStarted(s Step)                 { r.started = append(r.started, s.ID()) }
func (r *recorder) StepFinished(s Step, out Outcome) { r.finished = append(r.finished, out) }

func TestChain_ResumesAtRetriedStep(t *testing.T) {
	bCalls := 0
	a := constStep("A", Success(nil))
	b := NewFunc("B", "", func(context.Context) Outcome {
		bCalls++
		if bCalls == 1 {
			return Retry()
		}
		return Success(nil)
	})
	c := constStep("C", Success(nil))
	chain := NewChain("abc", "", a, b, c)

	rec := &recorder{}
	ctx := WithObserver(context.Background(), rec)

	if out := chain.Execute(ctx); out.Kind != KindRetry {
		t.Fatalf("call 1 = %s, want retry", out)
	}
	if chain.Cursor() != 1 {
		t.Fatalf("cursor after call 1 = %d, want 1", chain.Cursor())
	}
	if out := chain.Execute(ctx); !out.IsSuccess() {
		t.Fatalf("call 2 = %s, want success", out)
	}
	if chain.Cursor() != 0 {
		t.Errorf("cursor after completion = %d, want 0", chain.Cursor())
	}

	want := []string{"A", "B", "B", "C"}
	if len(rec.started) != len(want) {
		t.Fatalf("started = %v, want %v", rec.started, want)
	}
	for i := range want {
		if rec.started[i] != want[i] {
			t.Fatalf("started = %v, want %v", rec.started, want)
		}
	}
}

func TestChain_PropagatesFailureUnchanged(t *testing.T) {
	chain := NewChain("c", "",
		constStep("ok", Success(nil)),
		constStep("boom", Failed("door sealed")),
		constStep("never", Success(nil)),
	)
	out := chain.Execute(context.Background())
	if out.Kind != KindFailed || out.Reason != "door sealed" {
		t.Fatalf("outcome = %s", out)
	}
	if chain.Cursor() != 1 {
		t.Errorf("cursor = %d, want 1", chain.Cursor())
	}
}

func TestChain_ReusableAfterCompletion(t *testing.T) {
	n := 0
	counter := NewFunc("n", "", func(context.Context) Outcome { n++; return Success(nil) })
	chain := NewChain("c", "", counter, counter)
	chain.Execute(context.Background())
	chain.Execute(context.Background())
	if n != 4 {
		t.Errorf("steps ran %d times, want 4", n)
	}
}

func TestChain_Empty(t *testing.T) {
	if out := NewChain("empty", "").Execute(context.Background()); !out.IsSuccess() {
		t.Errorf("empty chain = %s", out)
	}
}
