package repl

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	pkgstrings "dayai/pkg/strings"
)

type command struct {
	usage       string
	description string
	aliases     []string
	run         func(ctx context.Context, args string) error
}

func (r *REPL) registerCommands() {
	r.commands = map[string]*command{
		"help": {
			usage:       "help",
			description: "Show available commands",
			aliases:     []string{"?"},
			run:         r.runHelp,
		},
		"tools": {
			usage:       "tools [filter]",
			description: "List local and remote tools",
			aliases:     []string{"ls"},
			run:         r.runTools,
		},
		"call": {
			usage:       "call <tool> [json | key=value ...]",
			description: "Call a tool",
			run:         r.runCall,
		},
		"status": {
			usage:       "status",
			description: "Show per-server authentication state",
			run:         r.runStatus,
		},
		"exit": {
			usage:       "exit",
			description: "Leave the shell",
			aliases:     []string{"quit"},
			run:         func(context.Context, string) error { return errExit },
		},
	}
	r.order = []string{"help", "tools", "call", "status", "exit"}
}

func (r *REPL) runHelp(context.Context, string) error {
	w := r.writer()
	fmt.Fprintln(w, "Commands:")
	for _, name := range r.order {
		cmd := r.commands[name]
		fmt.Fprintf(w, "  %-36s %s\n", cmd.usage, cmd.description)
	}
	return nil
}

func (r *REPL) runTools(_ context.Context, filter string) error {
	specs := r.backend.Catalogue()
	if filter != "" {
		kept := specs[:0:0]
		for _, spec := range specs {
			if strings.Contains(strings.ToLower(spec.Name), strings.ToLower(filter)) {
				kept = append(kept, spec)
			}
		}
		specs = kept
	}
	return r.printer().Tools(specs)
}

func (r *REPL) runCall(ctx context.Context, input string) error {
	name, rest, _ := strings.Cut(input, " ")
	if name == "" {
		return fmt.Errorf("usage: %s", r.commands["call"].usage)
	}

	args, err := parseCallArgs(strings.TrimSpace(rest))
	if err != nil {
		return err
	}

	return r.printer().Result(r.backend.Call(ctx, name, args))
}

func (r *REPL) runStatus(context.Context, string) error {
	resp, err := r.backend.Status()
	if err != nil {
		return err
	}
	return r.printer().Status(resp)
}

// parseCallArgs accepts either a JSON object or key=value pairs. Values of
// key=value pairs are decoded as JSON when they parse, so limit=5 is a
// number and tags=["a"] an array; anything else is a string.
func parseCallArgs(input string) (map[string]any, error) {
	args := map[string]any{}
	if input == "" {
		return args, nil
	}

	if strings.HasPrefix(input, "{") {
		if err := json.Unmarshal([]byte(input), &args); err != nil {
			return nil, fmt.Errorf("invalid JSON arguments: %w", err)
		}
		return args, nil
	}

	for _, field := range splitFields(input) {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q, expected key=value", pkgstrings.Truncate(field, 40))
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			args[key] = decoded
		} else {
			args[key] = value
		}
	}
	return args, nil
}

// splitFields splits on spaces outside single or double quotes and strips
// the quotes, so title="Q3 plan" is one field.
func splitFields(s string) []string {
	var (
		fields []string
		cur    strings.Builder
		quote  rune
	)
	for _, c := range s {
		switch {
		case quote != 0 && c == quote:
			quote = 0
		case quote == 0 && (c == '"' || c == '\''):
			quote = c
		case quote == 0 && c == ' ':
			if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(c)
		}
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields
}
