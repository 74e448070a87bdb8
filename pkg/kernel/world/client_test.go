package world

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeAdapter struct {
	snap      Snapshot
	snapErr   error
	accept    bool
	attempts  []Operation
	probes    int
	panicking bool
	caps      map[Capability]bool
}

func (f *fakeAdapter) Snapshot(context.Context) (Snapshot, error) {
	if f.panicking {
		panic("bridge exploded")
	}
	return f.snap, f.snapErr
}

func (f *fakeAdapter) Attempt(_ context.Context, op Operation) (bool, error) {
	if f.panicking {
		panic("bridge exploded")
	}
	f.attempts = append(f.attempts, op)
	return f.accept, nil
}

func (f *fakeAdapter) Supports(c Capability) bool {
	f.probes++
	return f.caps[c]
}

type waitingAdapter struct {
	fakeAdapter
	waits int
}

func (w *waitingAdapter) WaitUntil(_ context.Context, pred func(Snapshot) bool, _ time.Duration) (bool, error) {
	w.waits++
	return pred(w.snap), nil
}

func TestBind_ProbesCapabilitiesOnce(t *testing.T) {
	f := &fakeAdapter{caps: map[Capability]bool{CapCounters: true, CapWait: true}}
	c := Bind(f)
	probes := f.probes
	for i := 0; i < 10; i++ {
		c.Supports(CapCounters)
	}
	if f.probes != probes {
		t.Errorf("Supports re-probed the adapter: %d → %d", probes, f.probes)
	}
	if !c.Supports(CapCounters) {
		t.Error("counters should be supported")
	}
	if c.Supports(CapWait) {
		t.Error("wait claimed without implementing Waiter must be disabled")
	}
}

func TestClient_PanicsBecomeErrors(t *testing.T) {
	c := Bind(&fakeAdapter{panicking: true})
	if _, err := c.Snapshot(context.Background()); err == nil {
		t.Error("expected snapshot error from panicking adapter")
	}
	if c.Attempt(context.Background(), Operation{Kind: "talk"}) {
		t.Error("panicking attempt reported success")
	}
	if c.LastError() == nil {
		t.Error("LastError should record the panic")
	}
}

func TestClient_SnapshotErrorWrapped(t *testing.T) {
	base := errors.New("timeout")
	c := Bind(&fakeAdapter{snapErr: base})
	_, err := c.Snapshot(context.Background())
	if !errors.Is(err, base) {
		t.Errorf("err = %v, want wrapping %v", err, base)
	}
}

func TestClient_AttemptPaces(t *testing.T) {
	var slept []time.Duration
	p := NewPacer(10*time.Millisecond, 10*time.Millisecond)
	p.Sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }
	f := &fakeAdapter{accept: true}
	c := Bind(f, WithPacer(p))

	if !c.Attempt(context.Background(), Operation{Kind: "move", Target: "gate"}) {
		t.Fatal("attempt rejected")
	}
	if len(slept) != 1 || slept[0] != 10*time.Millisecond {
		t.Errorf("slept = %v", slept)
	}
	if len(f.attempts) != 1 || f.attempts[0].String() != "move:gate" {
		t.Errorf("attempts = %v", f.attempts)
	}
}

func TestClient_WaitUsesNativeWaiter(t *testing.T) {
	w := &waitingAdapter{fakeAdapter: fakeAdapter{
		snap: Snapshot{Location: "harbor"},
		caps: map[Capability]bool{CapWait: true},
	}}
	c := Bind(w)
	ok := c.WaitUntil(context.Background(), func(s Snapshot) bool { return s.In("harbor") }, time.Second)
	if !ok || w.waits != 1 {
		t.Errorf("ok=%v waits=%d", ok, w.waits)
	}
}

type panickingWaiter struct {
	fakeAdapter
}

func (w *panickingWaiter) WaitUntil(context.Context, func(Snapshot) bool, time.Duration) (bool, error) {
	panic("bridge dropped")
}

func TestClient_WaitPanicBecomesError(t *testing.T) {
	c := Bind(&panickingWaiter{fakeAdapter{caps: map[Capability]bool{CapWait: true}}})
	if !c.Supports(CapWait) {
		t.Fatal("native wait should be bound")
	}
	if c.WaitUntil(context.Background(), func(Snapshot) bool { return true }, time.Second) {
		t.Error("panicking wait reported the predicate as met")
	}
	if err := c.LastError(); err == nil || !strings.Contains(err.Error(), "bridge dropped") {
		t.Errorf("LastError = %v, want the recovered panic", err)
	}
}

func TestClient_WaitPollsAndTimesOut(t *testing.T) {
	c := Bind(&fakeAdapter{snap: Snapshot{Location: "field"}}, WithPollInterval(5*time.Millisecond))
	start := time.Now()
	ok := c.WaitUntil(context.Background(), func(s Snapshot) bool { return s.In("castle") }, 30*time.Millisecond)
	if ok {
		t.Fatal("predicate should never hold")
	}
	if time.Since(start) > time.Second {
		t.Error("wait was not bounded by its timeout")
	}
}

func TestClient_ResetUnsupported(t *testing.T) {
	c := Bind(&fakeAdapter{})
	if err := c.Reset(context.Background()); err == nil {
		t.Error("expected error resetting an adapter without Resetter")
	}
}

func TestPacer_NextWithinRange(t *testing.T) {
	p := NewPacer(20*time.Millisecond, 40*time.Millisecond)
	for i := 0; i < 200; i++ {
		d := p.Next()
		if d < p.Min || d > p.Max {
			t.Fatalf("Next() = %v outside [%v, %v]", d, p.Min, p.Max)
		}
	}
	if got := NewPacer(time.Second, 0).Max; got != time.Second {
		t.Errorf("max below min should be raised, got %v", got)
	}
}

func TestSnapshot_Helpers(t *testing.T) {
	s := Snapshot{
		Location: "mine",
		Position: Position{X: 3, Y: 4},
		Items:    map[string]int{"pickaxe": 1, "ore": 0, "coal": 3},
		Counters: map[string]int{"quest": 2},
	}
	if !s.Has("pickaxe") || s.Has("ore") {
		t.Error("Has mismatch")
	}
	if s.Count("coal") != 3 || s.Counter("quest") != 2 || s.Counter("missing") != 0 {
		t.Error("Count/Counter mismatch")
	}
	if got := s.Position.Distance(Position{}); got != 5 {
		t.Errorf("Distance = %v, want 5", got)
	}
	names := s.ItemNames()
	if len(names) != 2 || names[0] != "coal" || names[1] != "pickaxe" {
		t.Errorf("ItemNames = %v", names)
	}
}
