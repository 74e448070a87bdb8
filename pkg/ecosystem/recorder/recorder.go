// Package recorder captures the operations a live run sends to its world so
// the reached state can be replayed as a scenario's setup.
package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	ktesting "github.com/ormasoftchile/quest/pkg/kernel/testing"
	"github.com/ormasoftchile/quest/pkg/kernel/world"
)

// Recorder wraps an Adapter and records every accepted operation.
type Recorder struct {
	inner world.Adapter

	mu       sync.Mutex
	accepted []world.Operation
	rejected int
	secrets  []string // env var names whose values are redacted
}

// New creates a recording wrapper around an existing adapter.
func New(inner world.Adapter) *Recorder {
	return &Recorder{inner: inner}
}

// SetSecrets configures env var names whose values are redacted from
// recorded operation arguments.
func (r *Recorder) SetSecrets(envVars []string) {
	r.secrets = envVars
}

// Snapshot implements world.Adapter.
func (r *Recorder) Snapshot(ctx context.Context) (world.Snapshot, error) {
	return r.inner.Snapshot(ctx)
}

// Supports implements world.Adapter. Optional interfaces the inner adapter
// lacks are reported as unsupported.
func (r *Recorder) Supports(c world.Capability) bool {
	switch c {
	case world.CapWait:
		if _, ok := r.inner.(world.Waiter); !ok {
			return false
		}
	case world.CapReset:
		if _, ok := r.inner.(world.Resetter); !ok {
			return false
		}
	}
	return r.inner.Supports(c)
}

// Attempt delegates to the inner adapter and records accepted operations.
func (r *Recorder) Attempt(ctx context.Context, op world.Operation) (bool, error) {
	ok, err := r.inner.Attempt(ctx, op)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil || !ok {
		r.rejected++
		return ok, err
	}
	r.accepted = append(r.accepted, r.redact(op))
	return true, nil
}

// WaitUntil implements world.Waiter when the inner adapter does.
func (r *Recorder) WaitUntil(ctx context.Context, pred func(world.Snapshot) bool, timeout time.Duration) (bool, error) {
	w, ok := r.inner.(world.Waiter)
	if !ok {
		return false, fmt.Errorf("recorder: inner adapter cannot wait")
	}
	return w.WaitUntil(ctx, pred, timeout)
}

// Reset implements world.Resetter when the inner adapter does. Recorded
// operations are discarded with the state they produced.
func (r *Recorder) Reset(ctx context.Context) error {
	rs, ok := r.inner.(world.Resetter)
	if !ok {
		return fmt.Errorf("recorder: inner adapter cannot reset")
	}
	if err := rs.Reset(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	r.accepted, r.rejected = nil, 0
	r.mu.Unlock()
	return nil
}

// Operations returns the accepted operations in order.
func (r *Recorder) Operations() []world.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]world.Operation(nil), r.accepted...)
}

// Rejected returns how many attempts were refused or errored.
func (r *Recorder) Rejected() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rejected
}

// Scenario builds a scenario that replays the recorded operations as setup.
// worldPath is stored as given; the test runner resolves it against the
// scenario directory.
func (r *Recorder) Scenario(description, worldPath string) *ktesting.Scenario {
	return &ktesting.Scenario{
		Description:    description,
		World:          worldPath,
		Setup:          r.Operations(),
		ExpectedStatus: "completed",
		Tags:           []string{"recorded"},
	}
}

// Save writes sc as dir/scenario.yaml.
func Save(dir string, sc *ktesting.Scenario) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scenario dir: %w", err)
	}
	data, err := yaml.Marshal(sc)
	if err != nil {
		return "", fmt.Errorf("marshal scenario: %w", err)
	}
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// redact replaces secret values in string arguments with <REDACTED>.
func (r *Recorder) redact(op world.Operation) world.Operation {
	if len(op.Args) == 0 || len(r.secrets) == 0 {
		return op
	}
	args := make(map[string]any, len(op.Args))
	for k, v := range op.Args {
		if s, ok := v.(string); ok {
			for _, envVar := range r.secrets {
				if val := os.Getenv(envVar); val != "" {
					s = strings.ReplaceAll(s, val, "<REDACTED>")
				}
			}
			v = s
		}
		args[k] = v
	}
	op.Args = args
	return op
}

var (
	_ world.Adapter  = (*Recorder)(nil)
	_ world.Waiter   = (*Recorder)(nil)
	_ world.Resetter = (*Recorder)(nil)
)
