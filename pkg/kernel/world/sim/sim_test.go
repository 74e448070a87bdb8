package sim

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/quest/pkg/kernel/schema"
	"github.com/ormasoftchile/quest/pkg/kernel/step"
	"github.com/ormasoftchile/quest/pkg/kernel/world"
)

const valleyYAML = `
apiVersion: world/v0
name: valley
start:
  location: village
  items: {coin: 2}
zones:
  - {name: village}
  - {name: forest, x: 3, y: 4}
  - {name: tower, x: 10}
moves:
  - {from: village, to: forest, both: true}
  - {from: forest, to: tower, requires: {key: 1}, fail_first: 1}
interactions:
  - kind: talk
    target: elder
    at: village
    grants: {key: 1}
    adjust: {elder_talks: 1}
    once: true
  - kind: buy
    target: bread
    at: village
    consumes: {coin: 1}
    grants: {bread: 1}
  - kind: use
    target: lever
    at: tower
    adjust: {gate_open: 1}
    busy_for: 2
  - kind: use
    target: portal
    structural: portal is sealed forever
`

func newValley(t *testing.T) *World {
	t.Helper()
	doc, err := schema.LoadWorld(strings.NewReader(valleyYAML))
	if err != nil {
		t.Fatal(err)
	}
	w, err := New(doc)
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func op(kind, target string) world.Operation { return world.Operation{Kind: kind, Target: target} }

func snap(t *testing.T, w *World) world.Snapshot {
	t.Helper()
	s, err := w.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestWorld_GatedMoveNeedsItemThenFailsOnce(t *testing.T) {
	w := newValley(t)
	ctx := context.Background()

	if ok, err := w.Attempt(ctx, op("move", "forest")); !ok || err != nil {
		t.Fatalf("move forest = %v, %v", ok, err)
	}
	ok, err := w.Attempt(ctx, op("move", "tower"))
	if ok || err == nil || !strings.Contains(err.Error(), "key x1") {
		t.Fatalf("move tower without key = %v, %v", ok, err)
	}
	if step.IsStructural(err) {
		t.Error("missing item should be transient")
	}

	// back to the village (reverse of a two-way move) to get the key
	w.Attempt(ctx, op("move", "village"))
	if ok, _ := w.Attempt(ctx, op("talk", "elder")); !ok {
		t.Fatal("talk elder rejected")
	}
	w.Attempt(ctx, op("move", "forest"))

	if ok, err := w.Attempt(ctx, op("move", "tower")); ok || !strings.Contains(err.Error(), "busy") {
		t.Fatalf("first gated move should hit injected failure, got %v, %v", ok, err)
	}
	if ok, err := w.Attempt(ctx, op("move", "tower")); !ok {
		t.Fatalf("second gated move = %v, %v", ok, err)
	}
	s := snap(t, w)
	if s.Location != "tower" || s.Position.X != 10 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestWorld_OnceAndConsumes(t *testing.T) {
	w := newValley(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		w.Attempt(ctx, op("talk", "elder"))
	}
	s := snap(t, w)
	if s.Count("key") != 1 || s.Counter("elder_talks") != 1 {
		t.Errorf("once interaction applied repeatedly: %+v", s)
	}

	w.Attempt(ctx, op("buy", "bread"))
	w.Attempt(ctx, op("buy", "bread"))
	ok, err := w.Attempt(ctx, op("buy", "bread"))
	if ok || err == nil {
		t.Fatal("third purchase should fail without coins")
	}
	s = snap(t, w)
	if s.Count("bread") != 2 || s.Has("coin") {
		t.Errorf("after purchases: %+v", s.Items)
	}
}

func TestWorld_InjectedFailureSkipsUnaffordableAttempts(t *testing.T) {
	doc, _ := schema.LoadWorld(strings.NewReader(valleyYAML))
	doc.Interactions = append(doc.Interactions,
		schema.Interaction{Kind: "mint", Target: "coin", At: "village", Grants: map[string]int{"coin": 1}},
		schema.Interaction{Kind: "buy", Target: "sword", At: "village",
			Gate: schema.Gate{FailFirst: 1}, Consumes: map[string]int{"coin": 3}},
	)
	w, err := New(doc)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	ok, err := w.Attempt(ctx, op("buy", "sword"))
	if ok || err == nil || !strings.Contains(err.Error(), "needs 3 coin") {
		t.Fatalf("unaffordable purchase: ok=%v err=%v", ok, err)
	}
	w.Attempt(ctx, op("mint", "coin"))

	ok, err = w.Attempt(ctx, op("buy", "sword"))
	if ok || err == nil || !strings.Contains(err.Error(), "injected") {
		t.Fatalf("first affordable purchase: ok=%v err=%v, want the injected failure", ok, err)
	}
	if ok, err := w.Attempt(ctx, op("buy", "sword")); !ok {
		t.Fatalf("second affordable purchase rejected: %v", err)
	}
	if s := snap(t, w); s.Has("coin") {
		t.Errorf("coins left after purchase: %v", s.Items)
	}
}

func TestWorld_BusyForDelaysEffect(t *testing.T) {
	doc, _ := schema.LoadWorld(strings.NewReader(valleyYAML))
	doc.Start.Location = "tower"
	w, err := New(doc)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if ok, _ := w.Attempt(ctx, op("use", "lever")); !ok {
		t.Fatal("lever rejected")
	}
	if snap(t, w).Counter("gate_open") != 0 {
		t.Error("effect visible after one tick, want two")
	}
	if snap(t, w).Counter("gate_open") != 1 {
		t.Error("effect not visible after two ticks")
	}
}

func TestWorld_WaitUntilAdvancesTicks(t *testing.T) {
	doc, _ := schema.LoadWorld(strings.NewReader(valleyYAML))
	doc.Start.Location = "tower"
	w, _ := New(doc)
	ctx := context.Background()
	w.Attempt(ctx, op("use", "lever"))

	opened := func(s world.Snapshot) bool { return s.Counter("gate_open") > 0 }
	met, err := w.WaitUntil(ctx, opened, time.Second)
	if err != nil || !met {
		t.Fatalf("WaitUntil = %v, %v", met, err)
	}
	met, _ = w.WaitUntil(ctx, func(s world.Snapshot) bool { return s.Has("crown") }, time.Second)
	if met {
		t.Error("WaitUntil should give up once nothing is pending")
	}
}

func TestWorld_StructuralAndUnknown(t *testing.T) {
	w := newValley(t)
	ctx := context.Background()

	if _, err := w.Attempt(ctx, op("use", "portal")); !step.IsStructural(err) {
		t.Errorf("sealed portal err = %v, want structural", err)
	}
	if _, err := w.Attempt(ctx, op("dance", "floor")); !step.IsStructural(err) {
		t.Errorf("unknown interaction err = %v, want structural", err)
	}
	if _, err := w.Attempt(ctx, op("move", "moon")); !step.IsStructural(err) {
		t.Errorf("unknown zone err = %v, want structural", err)
	}
	_, err := w.Attempt(ctx, op("use", "lever"))
	if err == nil || step.IsStructural(err) {
		t.Errorf("lever from the village err = %v, want transient", err)
	}
	if w.Attempts("use", "portal") != 1 || len(w.History()) != 4 {
		t.Errorf("history = %v", w.History())
	}
}

func TestWorld_Reset(t *testing.T) {
	w := newValley(t)
	ctx := context.Background()
	w.Attempt(ctx, op("talk", "elder"))
	w.Attempt(ctx, op("move", "forest"))
	if err := w.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	s := snap(t, w)
	if s.Location != "village" || s.Has("key") || s.Count("coin") != 2 {
		t.Errorf("after reset: %+v", s)
	}
	if len(w.History()) != 0 {
		t.Error("history not cleared")
	}
}

func TestNew_RejectsUnknownStart(t *testing.T) {
	doc, _ := schema.LoadWorld(strings.NewReader(valleyYAML))
	doc.Start.Location = "moon"
	if _, err := New(doc); err == nil {
		t.Error("expected error for unknown start zone")
	}
}

func TestBind_ProbesNativeCapabilities(t *testing.T) {
	c := world.Bind(newValley(t))
	for _, capability := range world.KnownCapabilities {
		if !c.Supports(capability) {
			t.Errorf("capability %s not detected", capability)
		}
	}
}

func TestWorld_Settle(t *testing.T) {
	doc, _ := schema.LoadWorld(strings.NewReader(valleyYAML))
	doc.Start.Location = "tower"
	w, _ := New(doc)
	w.Attempt(context.Background(), op("use", "lever"))
	w.Settle()
	if w.busy() {
		t.Error("pending effects remain after Settle")
	}
	if w.counters["gate_open"] != 1 {
		t.Errorf("gate_open = %d", w.counters["gate_open"])
	}
}
