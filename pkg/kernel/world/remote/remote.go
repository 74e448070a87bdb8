// Package remote implements a world.Adapter that talks to a bridge over HTTP.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"

	"github.com/ormasoftchile/quest/pkg/kernel/step"
	"github.com/ormasoftchile/quest/pkg/kernel/world"
	"github.com/ormasoftchile/quest/pkg/kernel/world/bridge"
)

// Config configures the HTTP client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration
}

// Adapter is a world.Adapter backed by a bridge.
type Adapter struct {
	client *resty.Client

	capsOnce sync.Once
	caps     map[string]bool
	capsErr  error
}

// New creates an adapter for the bridge at cfg.BaseURL.
func New(cfg Config) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 100 * time.Millisecond
	}
	return &Adapter{
		client: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetRetryCount(cfg.MaxRetries).
			SetRetryWaitTime(cfg.RetryWait),
	}
}

// Supports implements world.Adapter. The capability set is fetched once;
// an unreachable bridge supports nothing.
func (a *Adapter) Supports(c world.Capability) bool {
	a.capsOnce.Do(func() {
		var out bridge.CapabilitiesResponse
		resp, err := a.client.R().SetResult(&out).Get(bridge.PathCapabilities)
		if err != nil {
			a.capsErr = fmt.Errorf("fetch capabilities: %w", err)
			return
		}
		if resp.IsError() {
			a.capsErr = fmt.Errorf("fetch capabilities: %s", resp.Status())
			return
		}
		a.caps = out.Capabilities
	})
	return a.caps[string(c)]
}

// CapabilitiesError reports why capability discovery failed, if it did.
func (a *Adapter) CapabilitiesError() error { return a.capsErr }

// Snapshot implements world.Adapter. The payload is parsed leniently:
// missing sections read as empty, numbers are truncated to integers.
func (a *Adapter) Snapshot(ctx context.Context) (world.Snapshot, error) {
	resp, err := a.client.R().SetContext(ctx).Get(bridge.PathSnapshot)
	if err != nil {
		return world.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	if resp.IsError() {
		return world.Snapshot{}, fmt.Errorf("get snapshot: %s: %s", resp.Status(), message(resp.Body()))
	}
	return ParseSnapshot(resp.Body())
}

// ParseSnapshot decodes a snapshot payload.
func ParseSnapshot(body []byte) (world.Snapshot, error) {
	doc, err := gabs.ParseJSON(body)
	if err != nil {
		return world.Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}
	loc, ok := doc.Path("location").Data().(string)
	if !ok {
		return world.Snapshot{}, errors.New("parse snapshot: missing location")
	}
	snap := world.Snapshot{
		Location: loc,
		Position: world.Position{
			X: number(doc.Path("position.x")),
			Y: number(doc.Path("position.y")),
			Z: number(doc.Path("position.z")),
		},
		Items:    counts(doc.S("items")),
		Counters: counts(doc.S("counters")),
	}
	if taken, ok := doc.Path("taken").Data().(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, taken); err == nil {
			snap.Taken = t
		}
	}
	return snap, nil
}

func number(c *gabs.Container) float64 {
	if f, ok := c.Data().(float64); ok {
		return f
	}
	return 0
}

func counts(c *gabs.Container) map[string]int {
	out := map[string]int{}
	for k, v := range c.ChildrenMap() {
		out[k] = int(number(v))
	}
	return out
}

func message(body []byte) string {
	doc, err := gabs.ParseJSON(body)
	if err != nil {
		return string(body)
	}
	if m, ok := doc.Path("message").Data().(string); ok {
		return m
	}
	return doc.String()
}

// Attempt implements world.Adapter. Structural rejections from the bridge
// come back as step.StructuralError.
func (a *Adapter) Attempt(ctx context.Context, op world.Operation) (bool, error) {
	var out bridge.AttemptResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(op).
		SetResult(&out).
		Post(bridge.PathAttempt)
	if err != nil {
		return false, fmt.Errorf("attempt %s: %w", op, err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("attempt %s: %s: %s", op, resp.Status(), message(resp.Body()))
	}
	switch {
	case out.Structural:
		return false, step.Structural(out.Error)
	case out.Error != "":
		return false, errors.New(out.Error)
	}
	return out.OK, nil
}

// Reset implements world.Resetter.
func (a *Adapter) Reset(ctx context.Context) error {
	resp, err := a.client.R().SetContext(ctx).Post(bridge.PathReset)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if resp.StatusCode() != http.StatusNoContent && resp.IsError() {
		return fmt.Errorf("reset: %s: %s", resp.Status(), message(resp.Body()))
	}
	return nil
}

var (
	_ world.Adapter  = (*Adapter)(nil)
	_ world.Resetter = (*Adapter)(nil)
)
