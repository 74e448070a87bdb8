// Package build compiles a quest/v0 document into a live procedure bound to
// a world client.
package build

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ormasoftchile/quest/pkg/kernel/eval"
	"github.com/ormasoftchile/quest/pkg/kernel/procedure"
	"github.com/ormasoftchile/quest/pkg/kernel/schema"
	"github.com/ormasoftchile/quest/pkg/kernel/step"
	"github.com/ormasoftchile/quest/pkg/kernel/world"
)

// Compile builds the step tree for doc. Every expression is compiled up
// front; the returned procedure never parses anything at run time.
func Compile(doc *schema.Procedure, c *world.Client) (*procedure.Procedure, error) {
	b := &builder{client: c}

	cfg := procedure.Config{
		Name:        doc.Meta.Name,
		Description: doc.Meta.Description,
		Snapshot:    c.Snapshot,
	}

	var err error
	if cfg.Terminal, err = b.evidence("terminal", doc.Terminal); err != nil {
		return nil, err
	}
	for i, m := range doc.Milestones {
		path := fmt.Sprintf("milestones[%d]", i)
		ev, err := b.evidence(path+".evidence", m.Evidence)
		if err != nil {
			return nil, err
		}
		branch, err := b.sequence(m.ID, m.Title, path+".steps", m.Steps)
		if err != nil {
			return nil, err
		}
		cfg.Milestones = append(cfg.Milestones, procedure.Milestone{
			ID:       m.ID,
			Title:    m.Title,
			Evidence: ev,
			After:    m.After,
			Weight:   m.Weight,
			Branch:   branch,
		})
	}
	if fp := doc.FastPath; fp != nil {
		cfg.FastPath = &procedure.FastPath{Requires: fp.Requires, Stages: fp.Stages}
	}
	if doc.Default != nil {
		if cfg.Default, err = b.sequence(procedure.DefaultKey, "fallback", "default.steps", doc.Default.Steps); err != nil {
			return nil, err
		}
	}

	p, err := procedure.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", doc.Meta.Name, err)
	}
	return p, nil
}

type builder struct {
	client *world.Client
}

func (b *builder) condition(path, src string) (*eval.Condition, error) {
	if src == "" {
		return nil, nil
	}
	cond, err := eval.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cond, nil
}

func (b *builder) evidence(path, src string) (procedure.Evidence, error) {
	cond, err := b.condition(path, src)
	if err != nil || cond == nil {
		return nil, err
	}
	return cond.Holds, nil
}

// holds reads a fresh snapshot and evaluates cond. Snapshot errors count as
// false.
func (b *builder) holds(ctx context.Context, cond *eval.Condition) bool {
	snap, err := b.client.Snapshot(ctx)
	return err == nil && cond.Holds(snap)
}

// sequence compiles steps into a single step: nil for none, the step itself
// for one, a chain otherwise.
func (b *builder) sequence(id, title, path string, steps []schema.Step) (step.Step, error) {
	var compiled []step.Step
	for i := range steps {
		s, err := b.step(fmt.Sprintf("%s[%d]", path, i), &steps[i])
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, s)
	}
	switch len(compiled) {
	case 0:
		return nil, nil
	case 1:
		return compiled[0], nil
	default:
		return step.NewChain(id, title, compiled...), nil
	}
}

func (b *builder) step(path string, s *schema.Step) (step.Step, error) {
	if s.Kind() == schema.StepBranch {
		return b.branch(path, s)
	}
	return b.action(path, s)
}

func (b *builder) action(path string, s *schema.Step) (step.Step, error) {
	ops := s.Operations()
	if len(ops) == 0 {
		return nil, fmt.Errorf("%s: action %q has no operations", path, s.ID)
	}
	timeout, err := s.TimeoutDuration()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	stages := make([]step.Stage, len(ops))
	for i, op := range ops {
		operation := toOperation(op)
		stages[i] = step.Stage{
			Name:    operation.String(),
			Perform: func(ctx context.Context) bool { return b.client.Attempt(ctx, operation) },
		}
	}
	opts := []step.ActionOption{step.DiagnoseWith(b.client.LastError)}

	if skip, err := b.condition(path+".skip_when", s.SkipWhen); err != nil {
		return nil, err
	} else if skip != nil {
		opts = append(opts, step.SkipWhen(func(ctx context.Context) bool { return b.holds(ctx, skip) }))
	}

	if wait, err := b.condition(path+".wait_for", s.WaitFor); err != nil {
		return nil, err
	} else if wait != nil {
		opts = append(opts, step.ConfirmWith(func(ctx context.Context) bool {
			return b.client.WaitUntil(ctx, wait.Holds, timeout)
		}))
	}

	if fail, err := b.condition(path+".fail_when", s.FailWhen); err != nil {
		return nil, err
	} else if fail != nil {
		reason := s.FailReason
		if reason == "" {
			reason = fmt.Sprintf("%s: %s", s.ID, fail.Source())
		}
		opts = append(opts, step.Require(func(ctx context.Context) error {
			snap, err := b.client.Snapshot(ctx)
			if err != nil {
				return err
			}
			if fail.Holds(snap) {
				return step.Structural(reason)
			}
			return nil
		}))
	}

	return step.NewStaged(s.ID, s.Title, stages, opts...), nil
}

func (b *builder) branch(path string, s *schema.Step) (step.Step, error) {
	type guarded struct {
		key  string
		cond *eval.Condition
	}
	var guards []guarded
	children := map[string]step.Step{}
	var fallback step.Step

	for i, br := range s.Branches {
		bp := fmt.Sprintf("%s.branches[%d]", path, i)
		key := strconv.Itoa(i)
		child, err := b.sequence(s.ID+"."+key, br.When, bp+".steps", br.Steps)
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, fmt.Errorf("%s: branch has no steps", bp)
		}
		if br.When == "" {
			fallback = child
			continue
		}
		cond, err := b.condition(bp+".when", br.When)
		if err != nil {
			return nil, err
		}
		guards = append(guards, guarded{key: key, cond: cond})
		children[key] = child
	}

	decide := func(ctx context.Context) (string, error) {
		snap, err := b.client.Snapshot(ctx)
		if err != nil {
			return "", err
		}
		for _, g := range guards {
			if g.cond.Holds(snap) {
				return g.key, nil
			}
		}
		if fallback != nil {
			return "fallback", nil
		}
		return "", fmt.Errorf("%s: no branch matches yet", s.ID)
	}

	d := step.NewDecision(s.ID, s.Title, decide)
	for key, child := range children {
		d.Branch(key, child)
	}
	if fallback != nil {
		d.Default(fallback)
	}
	return d, nil
}

func toOperation(op schema.Op) world.Operation {
	o := world.Operation{Kind: op.Kind, Target: op.Target}
	if len(op.Args) > 0 {
		o.Args = make(map[string]any, len(op.Args))
		for k, v := range op.Args {
			o.Args[k] = v
		}
	}
	return o
}
