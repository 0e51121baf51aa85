// Package auth provides the authentication status types reported by
// `dayai status` and the REPL.
package auth
