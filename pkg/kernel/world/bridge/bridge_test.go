package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ormasoftchile/quest/pkg/kernel/step"
	"github.com/ormasoftchile/quest/pkg/kernel/world"
)

// plainAdapter implements only world.Adapter.
type plainAdapter struct {
	err error
}

func (p *plainAdapter) Snapshot(context.Context) (world.Snapshot, error) {
	return world.Snapshot{Location: "hall"}, nil
}

func (p *plainAdapter) Attempt(context.Context, world.Operation) (bool, error) {
	return p.err == nil, p.err
}

func (p *plainAdapter) Supports(world.Capability) bool { return true }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_CapabilitiesHideMissingInterfaces(t *testing.T) {
	h := New(&plainAdapter{}, nil).Handler()
	rec := do(t, h, http.MethodGet, PathCapabilities, "")
	var out CapabilitiesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Capabilities["wait"] || out.Capabilities["reset"] {
		t.Errorf("capabilities = %v", out.Capabilities)
	}
	if !out.Capabilities["counters"] {
		t.Error("counters should pass through")
	}
}

func TestServer_AttemptReportsStructural(t *testing.T) {
	h := New(&plainAdapter{err: step.Structural("bridge is out")}, nil).Handler()
	rec := do(t, h, http.MethodPost, PathAttempt, `{"kind":"cross","target":"river"}`)
	var out AttemptResponse
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.OK || !out.Structural || out.Error != "bridge is out" {
		t.Errorf("response = %+v", out)
	}

	h = New(&plainAdapter{err: errors.New("slippery")}, nil).Handler()
	rec = do(t, h, http.MethodPost, PathAttempt, `{"kind":"cross"}`)
	out = AttemptResponse{}
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.OK || out.Structural || out.Error != "slippery" {
		t.Errorf("response = %+v", out)
	}
}

func TestServer_AttemptRejectsBadBody(t *testing.T) {
	h := New(&plainAdapter{}, nil).Handler()
	if rec := do(t, h, http.MethodPost, PathAttempt, `{`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, PathAttempt, `{"target":"x"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing kind status = %d", rec.Code)
	}
}

func TestServer_ResetUnsupported(t *testing.T) {
	h := New(&plainAdapter{}, nil).Handler()
	if rec := do(t, h, http.MethodPost, PathReset, ""); rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestServer_RequestIDAndLog(t *testing.T) {
	var log bytes.Buffer
	h := New(&plainAdapter{}, &log).Handler()

	rec := do(t, h, http.MethodGet, PathSnapshot, "")
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Error("missing generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, PathSnapshot, nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get(HeaderRequestID) != "abc-123" {
		t.Errorf("request id = %q", rec.Header().Get(HeaderRequestID))
	}
	if !strings.Contains(log.String(), "abc-123 GET /v0/snapshot 200") {
		t.Errorf("log = %q", log.String())
	}
}
