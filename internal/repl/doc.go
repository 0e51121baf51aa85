// Package repl implements "dayai repl", a readline shell over the tool
// dispatcher.
//
// Commands are help, tools [filter], call <tool> [args], status and exit.
// Arguments to call are either a JSON object or key=value pairs:
//
//	call mcp__day-ai__search {"query": "Acme"}
//	call create_note title="Q3 plan" content="Renewal in May"
//
// TAB after "call " completes tool names from the live catalogue, so tools
// that appear after a credential sync are offered without restarting.
package repl
