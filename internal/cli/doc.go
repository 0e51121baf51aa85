// Package cli holds the presentation layer shared by the dayai commands and
// the REPL.
//
// Printer renders status, tool catalogues, tool results and notes either as
// tables or as indented JSON. Status and note listings use go-pretty tables;
// the tool catalogue uses PlainTableWriter so it can be piped to grep or awk.
//
// ExitCode maps errors to the process exit status:
//
//	0  success
//	1  any other failure
//	2  authentication required (no session, rejected refresh, repeated 401)
//	3  authorization flow failed (denied, CSRF, timeout, exchange, registration)
package cli
