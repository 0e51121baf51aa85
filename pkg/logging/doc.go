// Package logging provides the structured logger shared by every dayai
// package.
//
// It wraps log/slog with a text handler and a small set of package level
// helpers that always attach a "subsystem" attribute:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//	logging.Info("Coordinator", "Waiting for authorization callback on %s", addr)
//	logging.Error("Manager", err, "Failed to reconnect %s", serverID)
//
// Security relevant events (CSRF mismatches, token refreshes, revocations)
// go through Audit, which prefixes the message with SECURITY_AUDIT. Token
// values are never logged; log lengths or presence instead.
//
// Logging calls made before InitForCLI are dropped.
package logging
