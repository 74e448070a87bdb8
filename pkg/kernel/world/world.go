// Package world defines the narrow contract the engine consumes from the
// external system: state snapshots, single operations, bounded waits, and
// optional capabilities.
package world

import (
	"context"
	"math"
	"sort"
	"time"
)

// Position is a point in world space.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Distance returns the euclidean distance between p and q.
func (p Position) Distance(q Position) float64 {
	dx, dy, dz := p.X-q.X, p.Y-q.Y, p.Z-q.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Snapshot is the observable external state at one instant.
type Snapshot struct {
	// Location is the location class (zone) the agent is in.
	Location string         `json:"location"`
	Position Position       `json:"position"`
	Items    map[string]int `json:"items,omitempty"`
	// Counters are opaque progress counters reported by the external system.
	Counters map[string]int `json:"counters,omitempty"`
	Taken    time.Time      `json:"taken"`
}

// Has reports whether at least one of item is held.
func (s Snapshot) Has(item string) bool { return s.Items[item] > 0 }

// Count returns how many of item are held.
func (s Snapshot) Count(item string) int { return s.Items[item] }

// Counter returns a progress counter, zero when unreported.
func (s Snapshot) Counter(name string) int { return s.Counters[name] }

// In reports whether the agent is in one of the given locations.
func (s Snapshot) In(locations ...string) bool {
	for _, l := range locations {
		if s.Location == l {
			return true
		}
	}
	return false
}

// ItemNames returns held item names, sorted.
func (s Snapshot) ItemNames() []string {
	names := make([]string, 0, len(s.Items))
	for n, c := range s.Items {
		if c > 0 {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// Operation is one atomic request to the external system.
type Operation struct {
	Kind   string         `json:"kind"             yaml:"kind"`
	Target string         `json:"target,omitempty" yaml:"target,omitempty"`
	Args   map[string]any `json:"args,omitempty"   yaml:"args,omitempty"`
}

func (o Operation) String() string {
	if o.Target == "" {
		return o.Kind
	}
	return o.Kind + ":" + o.Target
}

// Capability names an optional adapter feature.
type Capability string

const (
	// CapWait means the adapter implements Waiter natively.
	CapWait Capability = "wait"
	// CapPosition means snapshots carry meaningful coordinates.
	CapPosition Capability = "position"
	// CapCounters means snapshots carry progress counters.
	CapCounters Capability = "counters"
	// CapReset means the adapter implements Resetter.
	CapReset Capability = "reset"
)

// KnownCapabilities lists every capability probed at bind time.
var KnownCapabilities = []Capability{CapWait, CapPosition, CapCounters, CapReset}

// Adapter is implemented by every external-system binding.
type Adapter interface {
	// Snapshot returns the current observable state.
	Snapshot(ctx context.Context) (Snapshot, error)
	// Attempt performs op. true means accepted with at most one observable
	// effect. An error is a failure to talk to the system, not a refusal.
	Attempt(ctx context.Context, op Operation) (bool, error)
	// Supports reports whether an optional capability is present.
	Supports(c Capability) bool
}

// Waiter is implemented by adapters that can block until a predicate holds
// more efficiently than snapshot polling.
type Waiter interface {
	WaitUntil(ctx context.Context, pred func(Snapshot) bool, timeout time.Duration) (bool, error)
}

// Resetter is implemented by adapters that can restore their initial state.
type Resetter interface {
	Reset(ctx context.Context) error
}
