// Package bridge serves a world.Adapter over HTTP so a driver in another
// process can use it through the remote adapter.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ormasoftchile/quest/pkg/kernel/step"
	"github.com/ormasoftchile/quest/pkg/kernel/world"
)

// Routes.
const (
	PathCapabilities = "/v0/capabilities"
	PathSnapshot     = "/v0/snapshot"
	PathAttempt      = "/v0/attempt"
	PathReset        = "/v0/reset"

	HeaderRequestID = "X-Request-ID"
)

// CapabilitiesResponse is the body of GET /v0/capabilities.
type CapabilitiesResponse struct {
	Capabilities map[string]bool `json:"capabilities"`
}

// AttemptRequest is the body of POST /v0/attempt.
type AttemptRequest = world.Operation

// AttemptResponse is the body returned by POST /v0/attempt.
type AttemptResponse struct {
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	Structural bool   `json:"structural,omitempty"`
}

// Server exposes one adapter.
type Server struct {
	adapter world.Adapter
	engine  *gin.Engine
	out     io.Writer
}

// New builds a server for a. Request lines are written to out when it is
// non-nil.
func New(a world.Adapter, out io.Writer) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{adapter: a, engine: gin.New(), out: out}
	s.engine.Use(gin.Recovery(), s.requestID())

	s.engine.GET(PathCapabilities, s.capabilities)
	s.engine.GET(PathSnapshot, s.snapshot)
	s.engine.POST(PathAttempt, s.attempt)
	s.engine.POST(PathReset, s.reset)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown bridge: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve bridge: %w", err)
	}
}

// requestID tags every request with a correlation id, reusing the caller's
// when present.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Header(HeaderRequestID, id)
		start := time.Now()
		c.Next()
		if s.out != nil {
			fmt.Fprintf(s.out, "%s %s %s %d %s\n", id, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Microsecond))
		}
	}
}

func (s *Server) capabilities(c *gin.Context) {
	caps := map[string]bool{}
	for _, capability := range world.KnownCapabilities {
		caps[string(capability)] = s.adapter.Supports(capability)
	}
	// Waiting and resetting only cross the wire when the bridge can do them.
	if _, ok := s.adapter.(world.Waiter); !ok {
		caps[string(world.CapWait)] = false
	}
	if _, ok := s.adapter.(world.Resetter); !ok {
		caps[string(world.CapReset)] = false
	}
	c.JSON(http.StatusOK, CapabilitiesResponse{Capabilities: caps})
}

func (s *Server) snapshot(c *gin.Context) {
	snap, err := s.adapter.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) attempt(c *gin.Context) {
	var op AttemptRequest
	if err := c.ShouldBindJSON(&op); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Wrong request body format"})
		return
	}
	if op.Kind == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "operation kind is required"})
		return
	}
	ok, err := s.adapter.Attempt(c.Request.Context(), op)
	resp := AttemptResponse{OK: ok && err == nil}
	if err != nil {
		resp.Error = err.Error()
		resp.Structural = step.IsStructural(err)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) reset(c *gin.Context) {
	r, ok := s.adapter.(world.Resetter)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"message": "adapter cannot reset"})
		return
	}
	if err := r.Reset(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
