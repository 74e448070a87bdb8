// Package session wires a validated quest document, its configured world,
// and a trace writer into a runnable unit shared by the CLI, the MCP server,
// the TUI, and the debugger.
package session

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ormasoftchile/quest/pkg/config"
	"github.com/ormasoftchile/quest/pkg/kernel/build"
	"github.com/ormasoftchile/quest/pkg/kernel/engine"
	"github.com/ormasoftchile/quest/pkg/kernel/procedure"
	"github.com/ormasoftchile/quest/pkg/kernel/schema"
	"github.com/ormasoftchile/quest/pkg/kernel/trace"
	"github.com/ormasoftchile/quest/pkg/kernel/validate"
	"github.com/ormasoftchile/quest/pkg/kernel/world"
	"github.com/ormasoftchile/quest/pkg/kernel/world/sim"
)

// Options configures Open.
type Options struct {
	// Config is the project configuration. nil discovers quest.yaml from the
	// procedure's directory.
	Config *config.Config
	// Sim and Bridge override config.World when set.
	Sim    string
	Bridge string
	RunID  string
	// TraceOut receives trace events in addition to the configured trace file.
	TraceOut io.Writer
	// NoTraceFile disables the trace file under trace.dir.
	NoTraceFile bool
	Stdout      io.Writer
	Quiet       bool
	// MaxIterations and Restarts override the driver section when positive.
	MaxIterations int
	Restarts      int
	// WrapAdapter, when set, wraps the opened world before it is bound.
	WrapAdapter func(world.Adapter) world.Adapter
}

// Session is one bound procedure run.
type Session struct {
	Doc       *schema.Procedure
	Config    *config.Config
	Adapter   world.Adapter
	Client    *world.Client
	Trace     *trace.Writer
	RunID     string
	TracePath string
	// WorldPath is the absolute simulator file, empty for bridge worlds.
	WorldPath string

	opts   Options
	sim    bool
	last   *procedure.Procedure
}

// Open validates path, connects to the world, and opens the trace. The
// simulator's clock advances per snapshot, so sim sessions neither pace
// attempts nor sleep between iterations.
func Open(path string, opts Options) (*Session, error) {
	doc, errs := validate.ValidateFile(path)
	if validate.HasErrors(errs) {
		return nil, fmt.Errorf("%s is invalid: %v", path, validate.Errors(errs)[0])
	}

	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Discover(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	wc := cfg.World
	switch {
	case opts.Sim != "":
		abs, err := filepath.Abs(opts.Sim)
		if err != nil {
			return nil, err
		}
		wc = config.WorldConfig{Sim: abs}
	case opts.Bridge != "":
		wc.Sim, wc.Bridge = "", opts.Bridge
	}
	bound := *cfg
	bound.World = wc

	adapter, err := bound.OpenWorld()
	if err != nil {
		return nil, err
	}

	_, isSim := adapter.(*sim.World)
	if opts.WrapAdapter != nil {
		adapter = opts.WrapAdapter(adapter)
	}
	clientOpts := cfg.ClientOptions()
	if isSim {
		clientOpts = append(clientOpts, world.WithPacer(nil))
	}
	s := &Session{
		Doc:     doc,
		Config:  cfg,
		Adapter: adapter,
		Client:  world.Bind(adapter, clientOpts...),
		RunID:   opts.RunID,
		opts:    opts,
		sim:     isSim,
	}
	if isSim {
		s.WorldPath = bound.Path(wc.Sim)
	}
	if s.RunID == "" {
		s.RunID = uuid.NewString()
	}
	if err := s.openTrace(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) openTrace() error {
	if path := s.Config.TracePath(s.RunID); path != "" && !s.opts.NoTraceFile {
		var tee []io.Writer
		if s.opts.TraceOut != nil {
			tee = append(tee, s.opts.TraceOut)
		}
		tw, err := trace.NewFileWriter(path, s.RunID, tee...)
		if err != nil {
			return err
		}
		s.Trace = tw
		s.TracePath = path
		return nil
	}
	s.Trace = trace.NewWriter(s.opts.TraceOut, s.RunID)
	return nil
}

// Compile builds a fresh procedure bound to the session's client.
func (s *Session) Compile() (*procedure.Procedure, error) {
	p, err := build.Compile(s.Doc, s.Client)
	if err != nil {
		return nil, err
	}
	s.last = p
	return p, nil
}

// Last returns the most recently compiled procedure.
func (s *Session) Last() *procedure.Procedure { return s.last }

// EngineConfig returns the driver configuration for this session.
func (s *Session) EngineConfig() engine.Config {
	cfg := s.Config.Engine(s.RunID)
	if s.opts.MaxIterations > 0 {
		cfg.MaxIterations = s.opts.MaxIterations
	}
	cfg.Trace = s.Trace
	cfg.Stdout = s.opts.Stdout
	cfg.Quiet = s.opts.Quiet
	cfg.Capabilities = make(map[string]bool)
	for c, ok := range s.Client.Capabilities() {
		cfg.Capabilities[string(c)] = ok
	}
	if s.sim {
		cfg.Sleep = func(context.Context, time.Duration) {}
	}
	return cfg
}

// Run executes the procedure under a supervisor.
func (s *Session) Run(ctx context.Context) (*engine.Report, error) {
	restarts := s.Config.Driver.Restarts
	if s.opts.Restarts > 0 {
		restarts = s.opts.Restarts
	}
	sup := &engine.Supervisor{
		Restarts: restarts,
		Config:   s.EngineConfig(),
		Stdout:   s.opts.Stdout,
		Factory: func() (engine.Target, error) {
			return s.Compile()
		},
	}
	if s.opts.Quiet {
		sup.Stdout = nil
	}
	return sup.Run(ctx)
}

// Close closes the trace file.
func (s *Session) Close() error {
	if s.Trace == nil {
		return nil
	}
	return s.Trace.Close()
}
