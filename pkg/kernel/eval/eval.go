// Package eval compiles expr-lang conditions evaluated against a world
// snapshot. Conditions drive milestone evidence, skip checks, waits, and
// structural failure checks in procedure documents.
//
// Available names:
//
//	location            current location class
//	x, y, z             current position
//	items, counters     raw maps (missing keys are nil; prefer the helpers)
//	has("item")         at least one held
//	count("item")       number held
//	counter("name")     progress counter, 0 when unreported
//	at("a", "b", ...)   location is one of the arguments
//	near(x, y, z, r)    within r of the point
package eval

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	"github.com/ormasoftchile/quest/pkg/kernel/world"
)

// Condition is a compiled boolean expression.
type Condition struct {
	source  string
	program *vm.Program
}

// Compile parses src. Compilation type-checks against the snapshot
// environment, so unknown names and non-boolean results fail here.
func Compile(src string) (*Condition, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("empty condition")
	}
	program, err := expr.Compile(src, expr.Env(Env(world.Snapshot{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", src, err)
	}
	return &Condition{source: src, program: program}, nil
}

// MustCompile is Compile that panics on error. Intended for tests and
// package-level conditions.
func MustCompile(src string) *Condition {
	c, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return c
}

// Source returns the original expression.
func (c *Condition) Source() string { return c.source }

// Eval runs the condition against s.
func (c *Condition) Eval(s world.Snapshot) (bool, error) {
	out, err := expr.Run(c.program, Env(s))
	if err != nil {
		return false, fmt.Errorf("eval condition %q: %w", c.source, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return bool (got %T)", c.source, out)
	}
	return b, nil
}

// Holds is Eval with errors reported as false. An expression that cannot be
// evaluated is never evidence of anything.
func (c *Condition) Holds(s world.Snapshot) bool {
	ok, err := c.Eval(s)
	return err == nil && ok
}

// Env builds the expression environment for s.
func Env(s world.Snapshot) map[string]any {
	items := s.Items
	if items == nil {
		items = map[string]int{}
	}
	counters := s.Counters
	if counters == nil {
		counters = map[string]int{}
	}
	return map[string]any{
		"location": s.Location,
		"x":        s.Position.X,
		"y":        s.Position.Y,
		"z":        s.Position.Z,
		"items":    items,
		"counters": counters,
		"has":      func(item string) bool { return s.Has(item) },
		"count":    func(item string) int { return s.Count(item) },
		"counter":  func(name string) int { return s.Counter(name) },
		"at":       func(locations ...string) bool { return s.In(locations...) },
		"near": func(x, y, z, r any) bool {
			return s.Position.Distance(world.Position{X: toFloat(x), Y: toFloat(y), Z: toFloat(z)}) <= toFloat(r)
		},
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// positional names read where the agent is rather than what it has done.
var positional = map[string]bool{"location": true, "x": true, "y": true, "z": true, "at": true, "near": true}

type nameVisitor struct{ found bool }

func (v *nameVisitor) Visit(node *ast.Node) {
	if id, ok := (*node).(*ast.IdentifierNode); ok && positional[id.Value] {
		v.found = true
	}
}

// IsPositional reports whether src reads the agent's location or
// coordinates. Unparseable sources report false.
func IsPositional(src string) bool {
	tree, err := parser.Parse(src)
	if err != nil {
		return false
	}
	v := &nameVisitor{}
	ast.Walk(&tree.Node, v)
	return v.found
}
