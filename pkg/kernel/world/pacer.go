package world

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacer inserts a randomized delay in [Min, Max] so operations are not issued
// faster than the external system registers them.
type Pacer struct {
	Min time.Duration
	Max time.Duration
	// Sleep is replaceable in tests. Defaults to a context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration)
}

// NewPacer returns a pacer for the given range. Max below Min is raised to Min.
func NewPacer(min, max time.Duration) *Pacer {
	if max < min {
		max = min
	}
	return &Pacer{Min: min, Max: max}
}

// Next returns the next delay.
func (p *Pacer) Next() time.Duration {
	if p.Max <= p.Min {
		return p.Min
	}
	return p.Min + time.Duration(rand.Int64N(int64(p.Max-p.Min)+1))
}

// Pause sleeps for Next(), returning early if ctx is done.
func (p *Pacer) Pause(ctx context.Context) {
	d := p.Next()
	if d <= 0 {
		return
	}
	if p.Sleep != nil {
		p.Sleep(ctx, d)
		return
	}
	Sleep(ctx, d)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
