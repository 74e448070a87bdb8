package world

import (
	"context"
	"fmt"
	"time"
)

// Client is the engine-side handle on an Adapter. Capabilities are resolved
// once in Bind. Adapter errors and panics stop here: callers get booleans
// for operations and plain errors for snapshots.
type Client struct {
	adapter      Adapter
	caps         map[Capability]bool
	pacer        *Pacer
	pollInterval time.Duration
	waitTimeout  time.Duration
	lastErr      error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithPacer installs the delay used before each Attempt.
func WithPacer(p *Pacer) ClientOption {
	return func(c *Client) { c.pacer = p }
}

// WithPollInterval sets the snapshot polling interval used by WaitUntil.
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithWaitTimeout sets the timeout used when a caller passes zero.
func WithWaitTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.waitTimeout = d
		}
	}
}

// Bind wraps a and probes its capabilities.
func Bind(a Adapter, opts ...ClientOption) *Client {
	c := &Client{
		adapter:      a,
		caps:         make(map[Capability]bool),
		pollInterval: 100 * time.Millisecond,
		waitTimeout:  5 * time.Second,
	}
	for _, capability := range KnownCapabilities {
		c.caps[capability] = probe(a, capability)
	}
	if _, ok := a.(Waiter); !ok {
		c.caps[CapWait] = false
	}
	if _, ok := a.(Resetter); !ok {
		c.caps[CapReset] = false
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func probe(a Adapter, capability Capability) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return a.Supports(capability)
}

// Adapter returns the wrapped adapter.
func (c *Client) Adapter() Adapter { return c.adapter }

// Supports reports a capability resolved at bind time.
func (c *Client) Supports(capability Capability) bool { return c.caps[capability] }

// Capabilities returns the resolved capability set.
func (c *Client) Capabilities() map[Capability]bool {
	out := make(map[Capability]bool, len(c.caps))
	for k, v := range c.caps {
		out[k] = v
	}
	return out
}

// LastError returns the most recent adapter error swallowed by Attempt or
// WaitUntil.
func (c *Client) LastError() error { return c.lastErr }

// Snapshot queries the adapter. Panics are converted into errors.
func (c *Client) Snapshot(ctx context.Context) (snap Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("snapshot: adapter panic: %v", r)
		}
	}()
	snap, err = c.adapter.Snapshot(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	if snap.Taken.IsZero() {
		snap.Taken = time.Now()
	}
	return snap, nil
}

// Attempt paces, then performs op. Any adapter error counts as not accepted
// and is kept in LastError.
func (c *Client) Attempt(ctx context.Context, op Operation) (ok bool) {
	if c.pacer != nil {
		c.pacer.Pause(ctx)
	}
	defer func() {
		if r := recover(); r != nil {
			c.lastErr = fmt.Errorf("attempt %s: adapter panic: %v", op, r)
			ok = false
		}
	}()
	accepted, err := c.adapter.Attempt(ctx, op)
	if err != nil {
		c.lastErr = fmt.Errorf("attempt %s: %w", op, err)
		return false
	}
	c.lastErr = nil
	return accepted
}

// WaitUntil blocks until pred holds, timeout elapses, or ctx is done. A zero
// timeout uses the client default.
func (c *Client) WaitUntil(ctx context.Context, pred func(Snapshot) bool, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = c.waitTimeout
	}
	if c.caps[CapWait] {
		if w, ok := c.adapter.(Waiter); ok {
			return c.wait(ctx, w, pred, timeout)
		}
	}
	return c.poll(ctx, pred, timeout)
}

func (c *Client) wait(ctx context.Context, w Waiter, pred func(Snapshot) bool, timeout time.Duration) (met bool) {
	defer func() {
		if r := recover(); r != nil {
			c.lastErr = fmt.Errorf("wait: adapter panic: %v", r)
			met = false
		}
	}()
	met, err := w.WaitUntil(ctx, pred, timeout)
	if err != nil {
		c.lastErr = fmt.Errorf("wait: %w", err)
		return false
	}
	return met
}

func (c *Client) poll(ctx context.Context, pred func(Snapshot) bool, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		snap, err := c.Snapshot(ctx)
		if err == nil && pred(snap) {
			return true
		}
		if err != nil {
			c.lastErr = err
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
		}
	}
}

// Reset restores the adapter's initial state when it supports it.
func (c *Client) Reset(ctx context.Context) error {
	r, ok := c.adapter.(Resetter)
	if !ok || !c.caps[CapReset] {
		return fmt.Errorf("reset: adapter does not support %q", CapReset)
	}
	return r.Reset(ctx)
}
