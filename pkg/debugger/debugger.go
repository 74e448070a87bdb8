// Package debugger implements the interactive REPL debugger for quests.
package debugger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/quest/pkg/kernel/engine"
	"github.com/ormasoftchile/quest/pkg/kernel/procedure"
	"github.com/ormasoftchile/quest/pkg/kernel/step"
	"github.com/ormasoftchile/quest/pkg/kernel/world"
)

// Debugger steps a procedure one driver iteration at a time.
type Debugger struct {
	proc    *procedure.Procedure
	client  *world.Client
	driver  *engine.Driver
	output  io.Writer
	rl      *readline.Instance
	history []entry
}

type entry struct {
	iteration int
	branch    string
	outcome   step.Outcome
	progress  float64
}

// New creates a debugger for proc. cfg configures the underlying driver;
// its delays are ignored since the user paces iterations.
func New(proc *procedure.Procedure, client *world.Client, cfg engine.Config) *Debugger {
	cfg.Quiet = true
	return &Debugger{
		proc:   proc,
		client: client,
		driver: engine.New(proc, cfg),
		output: os.Stdout,
	}
}

// SetOutput redirects debugger output.
func (d *Debugger) SetOutput(w io.Writer) { d.output = w }

// Run starts the interactive REPL loop.
func (d *Debugger) Run(ctx context.Context) error {
	commands := []string{"next", "continue", "flags", "snapshot", "mark",
		"attempt", "history", "dump", "help", "quit"}

	completer := readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          d.buildPrompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	d.rl = rl
	defer rl.Close()

	fmt.Fprintf(d.output, "quest debugger: %s, %d milestones\n", d.proc.ID(), len(d.proc.Milestones()))
	fmt.Fprintf(d.output, "Type 'help' for available commands, 'next' to run one iteration.\n\n")

	for {
		rl.SetPrompt(d.buildPrompt())
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}
		if quit := d.Exec(ctx, line); quit {
			return nil
		}
	}
}

// Exec runs one command line. It returns true when the session should end.
func (d *Debugger) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}

	switch parts[0] {
	case "next", "n":
		d.handleNext(ctx)
	case "continue", "c":
		d.handleContinue(ctx, parts)
	case "flags", "f":
		d.handleFlags()
	case "snapshot", "s":
		d.handleSnapshot(ctx)
	case "mark":
		d.handleMark(parts)
	case "attempt", "a":
		d.handleAttempt(ctx, parts)
	case "history", "h":
		d.handleHistory()
	case "dump":
		d.handleDump()
	case "help", "?":
		d.handleHelp()
	case "quit", "q":
		fmt.Fprintf(d.output, "Exiting debugger.\n")
		return true
	default:
		fmt.Fprintf(d.output, "Unknown command: %q. Type 'help' for available commands.\n", parts[0])
	}
	return false
}

// buildPrompt creates the prompt string: quest[42% | branch]>
func (d *Debugger) buildPrompt() string {
	if d.proc.IsComplete() {
		return "quest[done]> "
	}
	branch := d.proc.LastSelection().Key
	if branch == "" {
		branch = "start"
	}
	return fmt.Sprintf("quest[%.0f%% | %s]> ", d.proc.ProgressEstimate(), branch)
}
