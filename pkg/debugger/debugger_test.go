package debugger

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ormasoftchile/quest/pkg/kernel/build"
	"github.com/ormasoftchile/quest/pkg/kernel/engine"
	"github.com/ormasoftchile/quest/pkg/kernel/schema"
	"github.com/ormasoftchile/quest/pkg/kernel/world"
	"github.com/ormasoftchile/quest/pkg/kernel/world/sim"
)

const questDir = "../../testdata/quests"

func newDebugger(t *testing.T) (*Debugger, *bytes.Buffer) {
	t.Helper()
	doc, err := schema.LoadFile(filepath.Join(questDir, "dragon.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	w, err := sim.Load(filepath.Join(questDir, "worlds", "valley.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	client := world.Bind(w)
	proc, err := build.Compile(doc, client)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	d := New(proc, client, engine.Config{RunID: "dbg"})
	d.SetOutput(&buf)
	return d, &buf
}

// TestDebuggerCommandHelp verifies help output lists all commands.
func TestDebuggerCommandHelp(t *testing.T) {
	var buf bytes.Buffer
	d := &Debugger{output: &buf}
	d.handleHelp()
	out := buf.String()
	for _, cmd := range []string{"next", "continue", "flags", "snapshot", "mark", "attempt", "history", "dump", "help", "quit"} {
		if !strings.Contains(out, cmd) {
			t.Errorf("help output missing command %q", cmd)
		}
	}
}

func TestDebuggerNextSelectsFirstMilestone(t *testing.T) {
	d, buf := newDebugger(t)
	if p := d.buildPrompt(); !strings.Contains(p, "start") {
		t.Errorf("initial prompt = %q", p)
	}
	d.Exec(context.Background(), "next")
	if !strings.Contains(buf.String(), "branch intro") {
		t.Errorf("next output = %s", buf.String())
	}
	if p := d.buildPrompt(); !strings.Contains(p, "intro") {
		t.Errorf("prompt after next = %q", p)
	}
	if len(d.history) != 1 {
		t.Errorf("history = %d entries", len(d.history))
	}
}

func TestDebuggerContinueToCompletion(t *testing.T) {
	d, buf := newDebugger(t)
	d.Exec(context.Background(), "continue 200")
	if !strings.Contains(buf.String(), "Quest complete.") {
		t.Fatalf("continue output:\n%s", buf.String())
	}
	if d.buildPrompt() != "quest[done]> " {
		t.Errorf("prompt = %q", d.buildPrompt())
	}

	buf.Reset()
	d.Exec(context.Background(), "flags")
	if !strings.Contains(buf.String(), "progress 100.0%") {
		t.Errorf("flags after completion:\n%s", buf.String())
	}
}

func TestDebuggerMarkRaisesPredecessors(t *testing.T) {
	d, buf := newDebugger(t)
	d.Exec(context.Background(), "mark ore")
	if !d.proc.IsSet("intro") || !d.proc.IsSet("ore") {
		t.Errorf("flags = %v", d.proc.Flags())
	}
	buf.Reset()
	d.Exec(context.Background(), "mark ore")
	if !strings.Contains(buf.String(), "already raised") {
		t.Errorf("second mark = %s", buf.String())
	}
	buf.Reset()
	d.Exec(context.Background(), "mark nope")
	if !strings.Contains(buf.String(), "Unknown milestone") {
		t.Errorf("unknown mark = %s", buf.String())
	}
}

func TestDebuggerAttempt(t *testing.T) {
	d, buf := newDebugger(t)
	d.Exec(context.Background(), "attempt move forest")
	if !strings.Contains(buf.String(), "move:forest accepted") {
		t.Errorf("attempt output = %s", buf.String())
	}
	buf.Reset()
	d.Exec(context.Background(), "attempt move nowhere")
	if !strings.Contains(buf.String(), "not accepted") {
		t.Errorf("attempt output = %s", buf.String())
	}
}

func TestDebuggerQuitAndUnknown(t *testing.T) {
	d, buf := newDebugger(t)
	if d.Exec(context.Background(), "frobnicate") {
		t.Error("unknown command should not quit")
	}
	if !strings.Contains(buf.String(), "Unknown command") {
		t.Errorf("output = %s", buf.String())
	}
	if !d.Exec(context.Background(), "q") {
		t.Error("q should quit")
	}
	if d.Exec(context.Background(), "   ") {
		t.Error("blank line should not quit")
	}
}

func TestDebuggerHistoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	d := &Debugger{output: &buf}
	d.handleHistory()
	if !strings.Contains(buf.String(), "No iterations") {
		t.Errorf("got %q", buf.String())
	}
}
