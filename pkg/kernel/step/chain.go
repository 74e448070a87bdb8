package step

import "context"

// Chain runs its steps in declared order. The cursor belongs to the chain
// instance: a step that does not succeed is retried on the next call instead
// of restarting from the first step.
type Chain struct {
	Info
	steps  []Step
	cursor int
}

// NewChain builds a chain over steps.
func NewChain(id, description string, steps ...Step) *Chain {
	return &Chain{
		Info:  NewInfo(id, description),
		steps: append([]Step(nil), steps...),
	}
}

// Execute drains as many steps as succeed. Any other outcome is returned
// unchanged and the cursor stays on the step that produced it. After the
// last step the cursor rewinds so the chain can run again.
func (c *Chain) Execute(ctx context.Context) Outcome {
	for c.cursor < len(c.steps) {
		out := Run(ctx, c.steps[c.cursor])
		if !out.IsSuccess() {
			return out
		}
		c.cursor++
	}
	c.cursor = 0
	return Success(c)
}

// Cursor returns the index of the next step to run.
func (c *Chain) Cursor() int { return c.cursor }

// Len returns the number of steps.
func (c *Chain) Len() int { return len(c.steps) }

// Reset rewinds the cursor.
func (c *Chain) Reset() { c.cursor = 0 }
