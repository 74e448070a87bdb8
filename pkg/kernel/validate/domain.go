package validate

import (
	"fmt"
	"strings"

	"github.com/ormasoftchile/quest/pkg/kernel/eval"
	"github.com/ormasoftchile/quest/pkg/kernel/procedure"
	"github.com/ormasoftchile/quest/pkg/kernel/schema"
)

// validateDomain runs quest/v0 domain-level validation rules.
func validateDomain(p *schema.Procedure) []*ValidationError {
	var errs []*ValidationError

	// D1: apiVersion must be quest/v0
	if p.APIVersion != schema.APIVersionProcedure {
		errs = append(errs, errorf("domain", "apiVersion", "expected %q, got %q", schema.APIVersionProcedure, p.APIVersion))
	}

	// D2: milestone ids unique and not reserved; predecessors declared earlier
	declared := map[string]int{}
	for i, m := range p.Milestones {
		path := fmt.Sprintf("milestones[%d]", i)
		switch {
		case m.ID == procedure.TerminalKey || m.ID == procedure.DefaultKey:
			errs = append(errs, errorf("domain", path+".id", "milestone id %q is reserved", m.ID))
		case declared[m.ID] > 0:
			errs = append(errs, errorf("domain", path+".id", "duplicate milestone id %q", m.ID))
		}
		for j, after := range m.After {
			if _, ok := declared[after]; !ok {
				errs = append(errs, errorf("domain", fmt.Sprintf("%s.after[%d]", path, j),
					"predecessor %q must be a milestone declared before %q", after, m.ID))
			}
		}
		declared[m.ID] = i + 1

		// D3: a milestone with neither steps nor evidence can only be reached
		// through the fast path or never
		if len(m.Steps) == 0 && m.Evidence == "" {
			errs = append(errs, warningf("domain", path, "milestone %q has no steps and no evidence", m.ID))
		}

		// D3b: a location proves only the gates on the way there, so
		// positional evidence must name its predecessors
		if i > 0 && m.After == nil && m.Evidence != "" && eval.IsPositional(m.Evidence) {
			errs = append(errs, warningf("domain", path+".after",
				"milestone %q uses positional evidence with the implicit predecessor %q; declare after with the milestones its location proves",
				m.ID, p.Milestones[i-1].ID))
		}
	}

	// D4: fast path references
	if fp := p.FastPath; fp != nil {
		for i, id := range fp.Requires {
			if declared[id] == 0 {
				errs = append(errs, errorf("domain", fmt.Sprintf("fast_path.requires[%d]", i), "unknown milestone %q", id))
			}
		}
		for i, id := range fp.Stages {
			if declared[id] == 0 {
				errs = append(errs, errorf("domain", fmt.Sprintf("fast_path.stages[%d]", i), "unknown milestone %q", id))
			}
		}
	}

	// D5: expressions compile against the snapshot environment
	errs = append(errs, checkExpr("terminal", p.Terminal)...)
	for i, m := range p.Milestones {
		errs = append(errs, checkExpr(fmt.Sprintf("milestones[%d].evidence", i), m.Evidence)...)
	}

	// D6: step ids unique across the document
	ids := map[string]string{} // id → path
	p.WalkSteps(func(path string, s *schema.Step) {
		if prev, ok := ids[s.ID]; ok {
			errs = append(errs, errorf("domain", path+".id", "duplicate step ID %q (first at %s)", s.ID, prev))
			return
		}
		ids[s.ID] = path
	})

	// D7: step shape
	p.WalkSteps(func(path string, s *schema.Step) {
		errs = append(errs, validateStep(path, s)...)
	})

	return errs
}

func validateStep(path string, s *schema.Step) []*ValidationError {
	var errs []*ValidationError
	ops := s.Operations()

	switch s.Kind() {
	case schema.StepBranch:
		if len(ops) > 0 {
			errs = append(errs, errorf("domain", path, "branch step %q cannot also declare op or stages", s.ID))
		}
		if s.WaitFor != "" || s.Timeout != "" {
			errs = append(errs, errorf("domain", path, "branch step %q cannot declare wait_for or timeout", s.ID))
		}
		for i, b := range s.Branches {
			bp := fmt.Sprintf("%s.branches[%d]", path, i)
			if b.When == "" && i != len(s.Branches)-1 {
				errs = append(errs, errorf("domain", bp+".when", "fallback branch (no 'when') must be last"))
			}
			errs = append(errs, checkExpr(bp+".when", b.When)...)
		}
	default:
		if len(ops) == 0 {
			errs = append(errs, errorf("domain", path, "action step %q requires 'op' or 'stages'", s.ID))
		}
	}

	if _, err := s.TimeoutDuration(); err != nil {
		errs = append(errs, errorf("domain", path+".timeout", "%s", err))
	}
	if s.Timeout != "" && s.WaitFor == "" {
		errs = append(errs, warningf("domain", path+".timeout", "timeout has no effect without wait_for"))
	}
	if s.FailReason != "" && s.FailWhen == "" {
		errs = append(errs, warningf("domain", path+".fail_reason", "fail_reason has no effect without fail_when"))
	}
	errs = append(errs, checkExpr(path+".skip_when", s.SkipWhen)...)
	errs = append(errs, checkExpr(path+".wait_for", s.WaitFor)...)
	errs = append(errs, checkExpr(path+".fail_when", s.FailWhen)...)
	return errs
}

func checkExpr(path, src string) []*ValidationError {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	if _, err := eval.Compile(src); err != nil {
		return []*ValidationError{errorf("domain", path, "invalid expression: %s", err)}
	}
	return nil
}

// validateWorldDomain runs world/v0 domain-level validation rules.
func validateWorldDomain(w *schema.World) []*ValidationError {
	var errs []*ValidationError

	if w.APIVersion != schema.APIVersionWorld {
		errs = append(errs, errorf("domain", "apiVersion", "expected %q, got %q", schema.APIVersionWorld, w.APIVersion))
	}

	zones := map[string]bool{}
	for i, z := range w.Zones {
		if zones[z.Name] {
			errs = append(errs, errorf("domain", fmt.Sprintf("zones[%d].name", i), "duplicate zone %q", z.Name))
		}
		zones[z.Name] = true
	}
	zoneRef := func(path, name string) {
		if name != "" && !zones[name] {
			errs = append(errs, errorf("domain", path, "unknown zone %q", name))
		}
	}

	zoneRef("start.location", w.Start.Location)
	for i, m := range w.Moves {
		path := fmt.Sprintf("moves[%d]", i)
		zoneRef(path+".from", m.From)
		zoneRef(path+".to", m.To)
		if m.From == m.To {
			errs = append(errs, warningf("domain", path, "move from %q to itself", m.From))
		}
	}

	seen := map[string]string{}
	for i, in := range w.Interactions {
		path := fmt.Sprintf("interactions[%d]", i)
		zoneRef(path+".at", in.At)
		zoneRef(path+".relocate", in.Relocate)
		key := in.Kind + ":" + in.Target + "@" + in.At
		if prev, ok := seen[key]; ok {
			errs = append(errs, errorf("domain", path, "interaction %s duplicates %s", key, prev))
		}
		seen[key] = path
		for item, n := range in.Consumes {
			if n < 0 {
				errs = append(errs, errorf("domain", path+".consumes."+item, "negative amount %d", n))
			}
		}
		for item, n := range in.Grants {
			if n < 0 {
				errs = append(errs, errorf("domain", path+".grants."+item, "negative amount %d", n))
			}
		}
	}
	return errs
}
