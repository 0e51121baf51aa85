package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"dayai/internal/cli"
	"dayai/internal/dispatch"
	"dayai/pkg/auth"
	"dayai/pkg/logging"
)

// commandTimeout bounds a single command so a hung tool call cannot wedge
// the shell.
const commandTimeout = 2 * time.Minute

// errExit ends the loop without reporting an error.
var errExit = errors.New("exit")

// Backend is what the shell drives. *app.Application satisfies it.
type Backend interface {
	Catalogue() []dispatch.ToolSpec
	Call(ctx context.Context, name string, args map[string]any) dispatch.Result
	Status() (*auth.StatusResponse, error)
}

// Config configures a REPL.
type Config struct {
	// HistoryFile persists input across sessions. Empty disables history.
	HistoryFile string
	Prompt      string
	// Stdin and Stdout default to the process streams.
	Stdin  io.ReadCloser
	Stdout io.Writer
}

// REPL is an interactive shell over the tool dispatcher.
type REPL struct {
	backend  Backend
	cfg      Config
	commands map[string]*command
	order    []string

	mu  sync.Mutex
	out io.Writer
}

// New creates a shell. Nothing touches the terminal until Run.
func New(backend Backend, cfg Config) *REPL {
	if cfg.Prompt == "" {
		cfg.Prompt = "dayai> "
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	r := &REPL{
		backend: backend,
		cfg:     cfg,
		out:     cfg.Stdout,
	}
	r.registerCommands()
	return r
}

// Run reads commands until exit, EOF or ctx is cancelled.
func (r *REPL) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:              r.cfg.Prompt,
		HistoryFile:         r.cfg.HistoryFile,
		AutoComplete:        r.completer(),
		InterruptPrompt:     "^C",
		EOFPrompt:           "exit",
		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
		Stdin:               r.cfg.Stdin,
		Stdout:              r.cfg.Stdout,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	r.mu.Lock()
	r.out = rl.Stdout()
	r.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { rl.Close() })
	defer stop()

	fmt.Fprintf(r.writer(), "%d tools available. Type 'help' for commands, TAB completes tool names.\n", len(r.backend.Catalogue()))

	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("readline error: %w", err)
		}

		if err := r.Execute(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			fmt.Fprintf(r.writer(), "Error: %v\n", err)
		}
	}
}

// Execute runs a single input line.
func (r *REPL) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	name, rest, _ := strings.Cut(line, " ")
	cmd, ok := r.lookup(strings.ToLower(name))
	if !ok {
		return fmt.Errorf("unknown command: %s. Type 'help' for available commands", name)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return cmd.run(cmdCtx, strings.TrimSpace(rest))
}

// Notify prints an out-of-band message without corrupting the prompt.
func (r *REPL) Notify(format string, args ...any) {
	fmt.Fprintf(r.writer(), format+"\n", args...)
	logging.Debug("REPL", format, args...)
}

func (r *REPL) writer() io.Writer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out
}

func (r *REPL) printer() *cli.Printer {
	return cli.NewPrinter(r.writer(), cli.OutputFormatTable)
}

func (r *REPL) lookup(name string) (*command, bool) {
	if cmd, ok := r.commands[name]; ok {
		return cmd, true
	}
	for _, cmd := range r.commands {
		for _, alias := range cmd.aliases {
			if alias == name {
				return cmd, true
			}
		}
	}
	return nil, false
}

// toolNames is evaluated on every TAB so completion follows reconnects.
func (r *REPL) toolNames(string) []string {
	specs := r.backend.Catalogue()
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name
	}
	sort.Strings(names)
	return names
}

func (r *REPL) completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(r.order))
	for _, name := range r.order {
		if name == "call" {
			items = append(items, readline.PcItem(name, readline.PcItemDynamic(r.toolNames)))
			continue
		}
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

func filterInput(r rune) (rune, bool) {
	if r == readline.CharCtrlZ {
		return r, false
	}
	return r, true
}
