package schema

// World is a world/v0 document describing a simulated external system.
type World struct {
	APIVersion   string        `yaml:"apiVersion"             json:"apiVersion" jsonschema:"enum=world/v0"`
	Name         string        `yaml:"name"                   json:"name" jsonschema:"minLength=1"`
	Start        State         `yaml:"start"                  json:"start"`
	Zones        []Zone        `yaml:"zones"                  json:"zones" jsonschema:"minItems=1"`
	Moves        []Move        `yaml:"moves,omitempty"        json:"moves,omitempty"`
	Interactions []Interaction `yaml:"interactions,omitempty" json:"interactions,omitempty"`
}

// State is the initial world state.
type State struct {
	Location string         `yaml:"location"           json:"location" jsonschema:"minLength=1"`
	Items    map[string]int `yaml:"items,omitempty"    json:"items,omitempty"`
	Counters map[string]int `yaml:"counters,omitempty" json:"counters,omitempty"`
}

// Zone is a named location with a fixed position.
type Zone struct {
	Name string  `yaml:"name"        json:"name" jsonschema:"minLength=1"`
	X    float64 `yaml:"x,omitempty" json:"x,omitempty"`
	Y    float64 `yaml:"y,omitempty" json:"y,omitempty"`
	Z    float64 `yaml:"z,omitempty" json:"z,omitempty"`
}

// Move is a transition between zones, optionally gated.
type Move struct {
	From string `yaml:"from" json:"from" jsonschema:"minLength=1"`
	To   string `yaml:"to"   json:"to"   jsonschema:"minLength=1"`
	// Both allows the reverse move with the same gate.
	Both bool `yaml:"both,omitempty" json:"both,omitempty"`
	Gate `yaml:",inline"`
}

// Interaction is an operation on a target: talk, use, take, craft, ...
type Interaction struct {
	Kind   string `yaml:"kind"         json:"kind" jsonschema:"minLength=1"`
	Target string `yaml:"target"       json:"target"`
	At     string `yaml:"at,omitempty" json:"at,omitempty"`
	Gate   `yaml:",inline"`
	// Consumes removes items on success.
	Consumes map[string]int `yaml:"consumes,omitempty" json:"consumes,omitempty"`
	Grants   map[string]int `yaml:"grants,omitempty"   json:"grants,omitempty"`
	// Adjust adds deltas to counters on success.
	Adjust   map[string]int `yaml:"adjust,omitempty"   json:"adjust,omitempty"`
	Relocate string         `yaml:"relocate,omitempty" json:"relocate,omitempty"`
	// Once makes repeated successful attempts no-ops.
	Once bool `yaml:"once,omitempty" json:"once,omitempty"`
}

// Gate holds requirements and fault injection shared by moves and
// interactions.
type Gate struct {
	Requires map[string]int `yaml:"requires,omitempty" json:"requires,omitempty"`
	// Counters are minimum counter values.
	Counters map[string]int `yaml:"counters,omitempty" json:"counters,omitempty"`
	// FailFirst makes the first N attempts fail transiently.
	FailFirst int `yaml:"fail_first,omitempty" json:"fail_first,omitempty" jsonschema:"minimum=0"`
	// BusyFor delays visible effects by N snapshots.
	BusyFor int `yaml:"busy_for,omitempty" json:"busy_for,omitempty" jsonschema:"minimum=0"`
	// Structural makes every attempt fail with a non-recoverable reason.
	Structural string `yaml:"structural,omitempty" json:"structural,omitempty"`
}

// Zone returns the named zone.
func (w *World) Zone(name string) (Zone, bool) {
	for _, z := range w.Zones {
		if z.Name == name {
			return z, true
		}
	}
	return Zone{}, false
}
