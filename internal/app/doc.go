// Package app wires the dayai core and exposes the operations the CLI is a
// thin layer over.
//
// # Bootstrap
//
// NewApplication loads config.yaml (see package config), initializes
// logging, and builds the Services in dependency order:
//
//  1. the OAuth client (pkg/oauth) shared by registration, flows and refresh
//  2. the state store holding registrations, tokens and connected flags
//  3. the flow coordinator and the token refresher
//  4. the MCP session manager, which persists refreshed tokens through the
//     state store before a retried call proceeds
//  5. the note store and the tool dispatcher
//
// # Operations
//
//   - Login: register a client once per server (or again with Reregister),
//     run the browser flow, store the tokens, connect and list tools.
//   - Logout: revoke both tokens best effort, close the session, clear the
//     tokens while keeping the registration.
//   - Reconnect: the startup pass. Every server stored as connected is
//     refreshed if stale and reconnected; failures mark it disconnected and
//     the pass moves on.
//   - Status, Catalogue, Call: read-only views and tool execution.
//
// StartWatching keeps a long-running process (the REPL) in sync with logins
// and logouts performed by other dayai processes.
package app
