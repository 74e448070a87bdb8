// Package sim implements an in-memory world for tests, demos, and the HTTP
// bridge. Zones are joined by optionally gated moves; interactions consume
// and grant items, adjust counters, and may relocate the player. Faults are
// injected per operation: the first N attempts can fail transiently, effects
// can take N snapshots to become visible, and an operation can be marked
// structurally impossible.
package sim

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ormasoftchile/quest/pkg/kernel/schema"
	"github.com/ormasoftchile/quest/pkg/kernel/step"
	"github.com/ormasoftchile/quest/pkg/kernel/world"
)

// World is a simulated external system. It is safe for concurrent use; the
// bridge serves it to several clients at once.
type World struct {
	mu  sync.Mutex
	doc *schema.World

	location string
	items    map[string]int
	counters map[string]int
	attempts map[string]int
	spent    map[string]bool
	pending  []effect
	history  []world.Operation
}

// effect is a delayed state change.
type effect struct {
	ticks int
	apply func()
}

// New builds a world from a world/v0 document.
func New(doc *schema.World) (*World, error) {
	if _, ok := doc.Zone(doc.Start.Location); !ok {
		return nil, fmt.Errorf("world %s: start location %q is not a zone", doc.Name, doc.Start.Location)
	}
	w := &World{doc: doc}
	w.restore()
	return w, nil
}

// Load reads a world/v0 file.
func Load(path string) (*World, error) {
	doc, err := schema.LoadWorldFile(path)
	if err != nil {
		return nil, err
	}
	return New(doc)
}

// Name returns the world name.
func (w *World) Name() string { return w.doc.Name }

func (w *World) restore() {
	w.location = w.doc.Start.Location
	w.items = maps.Clone(w.doc.Start.Items)
	if w.items == nil {
		w.items = map[string]int{}
	}
	w.counters = maps.Clone(w.doc.Start.Counters)
	if w.counters == nil {
		w.counters = map[string]int{}
	}
	w.attempts = map[string]int{}
	w.spent = map[string]bool{}
	w.pending = nil
	w.history = nil
}

// Supports implements world.Adapter. The simulation supports everything.
func (w *World) Supports(world.Capability) bool { return true }

// Snapshot implements world.Adapter. Each call advances delayed effects by
// one tick before reading state.
func (w *World) Snapshot(context.Context) (world.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tick()
	return w.snapshot(), nil
}

func (w *World) tick() {
	var remaining []effect
	for _, e := range w.pending {
		e.ticks--
		if e.ticks <= 0 {
			e.apply()
			continue
		}
		remaining = append(remaining, e)
	}
	w.pending = remaining
}

func (w *World) snapshot() world.Snapshot {
	z, _ := w.doc.Zone(w.location)
	items := map[string]int{}
	for k, v := range w.items {
		if v > 0 {
			items[k] = v
		}
	}
	return world.Snapshot{
		Location: w.location,
		Position: world.Position{X: z.X, Y: z.Y, Z: z.Z},
		Items:    items,
		Counters: maps.Clone(w.counters),
		Taken:    time.Now(),
	}
}

// Attempt implements world.Adapter.
func (w *World) Attempt(_ context.Context, op world.Operation) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.history = append(w.history, op)

	if op.Kind == "move" {
		return w.move(op)
	}
	return w.interact(op)
}

func (w *World) move(op world.Operation) (bool, error) {
	if _, ok := w.doc.Zone(op.Target); !ok {
		return false, step.Structuralf("no zone %q in world %s", op.Target, w.doc.Name)
	}
	if w.location == op.Target {
		return true, nil
	}
	for _, m := range w.doc.Moves {
		forward := m.From == w.location && m.To == op.Target
		reverse := m.Both && m.To == w.location && m.From == op.Target
		if !forward && !reverse {
			continue
		}
		key := "move:" + m.From + ">" + m.To
		if ok, err := w.pass(key, m.Gate, nil); !ok {
			return false, err
		}
		target := op.Target
		w.schedule(m.BusyFor, func() { w.location = target })
		return true, nil
	}
	return false, fmt.Errorf("no route from %s to %s", w.location, op.Target)
}

func (w *World) interact(op world.Operation) (bool, error) {
	var in *schema.Interaction
	known := false
	for i := range w.doc.Interactions {
		c := &w.doc.Interactions[i]
		if c.Kind != op.Kind || c.Target != op.Target {
			continue
		}
		known = true
		if c.At == "" || c.At == w.location {
			in = c
			break
		}
	}
	if in == nil {
		if known {
			return false, fmt.Errorf("%s is not reachable from %s", op, w.location)
		}
		return false, step.Structuralf("world %s has no interaction %s", w.doc.Name, op)
	}

	key := op.String() + "@" + in.At
	if in.Once && w.spent[key] {
		return true, nil
	}
	if ok, err := w.pass(key, in.Gate, in.Consumes); !ok {
		return false, err
	}

	for item, n := range in.Consumes {
		w.items[item] -= n
	}
	if in.Once {
		w.spent[key] = true
	}
	w.schedule(in.BusyFor, func() {
		for item, n := range in.Grants {
			w.items[item] += n
		}
		for name, d := range in.Adjust {
			w.counters[name] += d
		}
		if in.Relocate != "" {
			w.location = in.Relocate
		}
	})
	return true, nil
}

// pass checks a gate and the items an interaction consumes. Both are checked
// before fail_first counts an attempt, so injected failures only hit
// attempts that would otherwise work.
func (w *World) pass(key string, g schema.Gate, consumes map[string]int) (bool, error) {
	if g.Structural != "" {
		return false, step.Structural(g.Structural)
	}
	var missing []string
	for item, n := range g.Requires {
		if w.items[item] < n {
			missing = append(missing, fmt.Sprintf("%s x%d", item, n))
		}
	}
	for name, min := range g.Counters {
		if w.counters[name] < min {
			missing = append(missing, fmt.Sprintf("%s>=%d", name, min))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return false, fmt.Errorf("%s requires %s", key, strings.Join(missing, ", "))
	}
	for item, n := range consumes {
		if w.items[item] < n {
			return false, fmt.Errorf("%s needs %d %s, have %d", key, n, item, w.items[item])
		}
	}
	w.attempts[key]++
	if w.attempts[key] <= g.FailFirst {
		return false, fmt.Errorf("%s busy (attempt %d of %d injected failures)", key, w.attempts[key], g.FailFirst)
	}
	return true, nil
}

func (w *World) schedule(ticks int, apply func()) {
	if ticks <= 0 {
		apply()
		return
	}
	w.pending = append(w.pending, effect{ticks: ticks, apply: apply})
}

// WaitUntil implements world.Waiter. Simulated time advances one tick per
// snapshot, so the wait ends as soon as no effect is pending.
func (w *World) WaitUntil(ctx context.Context, pred func(world.Snapshot) bool, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		snap, err := w.Snapshot(ctx)
		if err != nil {
			return false, err
		}
		if pred(snap) {
			return true, nil
		}
		if !w.busy() || ctx.Err() != nil || time.Now().After(deadline) {
			return false, nil
		}
	}
}

func (w *World) busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending) > 0
}

// Settle applies every pending effect immediately.
func (w *World) Settle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for len(w.pending) > 0 {
		w.tick()
	}
}

// Reset implements world.Resetter.
func (w *World) Reset(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.restore()
	return nil
}

// History returns every attempted operation in order.
func (w *World) History() []world.Operation {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]world.Operation(nil), w.history...)
}

// Attempts counts attempted operations matching kind and target.
func (w *World) Attempts(kind, target string) int {
	n := 0
	for _, op := range w.History() {
		if op.Kind == kind && op.Target == target {
			n++
		}
	}
	return n
}

var (
	_ world.Adapter  = (*World)(nil)
	_ world.Waiter   = (*World)(nil)
	_ world.Resetter = (*World)(nil)
)
