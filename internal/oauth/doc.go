// Package oauth runs the interactive side of OAuth for dayai.
//
// A Coordinator drives one authorization-code flow with PKCE at a time:
//
//	Idle -> AwaitingRedirect -> ExchangingCode -> Completed
//	                 \                  \
//	                  +------------------+-> Failed
//
// The browser is redirected to a CallbackServer bound to the loopback
// interface (127.0.0.1:31338/callback by default). The callback is only
// accepted when its state matches the flow; mismatches are audit-logged and
// never exchanged. Every exit path stops the listener, so the port is free
// for the next flow as soon as Run returns.
//
// A Refresher performs refresh grants and hands the result to a PersistFunc
// before returning, and revokes tokens on logout on a best-effort basis.
package oauth
