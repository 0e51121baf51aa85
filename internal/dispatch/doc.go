// Package dispatch routes tool invocations by name.
//
// Names of the form mcp__<serverID>__<tool> go to the MCP session manager;
// all other names are looked up among local tools (the note tools). The
// catalogue returned by Catalogue is what a conversational agent is offered.
package dispatch
