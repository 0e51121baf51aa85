// Package mcpclient manages authenticated MCP sessions.
//
// A Manager keeps at most one streamable-HTTP session per server ID, each
// opened with "Authorization: Bearer <access token>". Tools are exposed to
// the rest of dayai under namespaced names:
//
//	mcp__<serverID>__<tool>
//
// The server ID ends at the first "__", so tool names may contain it
// (mcp__day-ai__get__context names the tool get__context).
//
// # Token handling
//
// Before a tool call the access token is checked against its expiry. A token
// within oauth.TokenRefreshThreshold of expiring is refreshed and the
// session reopened first. If the server still answers 401, the token is
// refreshed once more and the call retried exactly once; a second rejection
// is returned as *AuthFailureError with Retried set.
//
// Refreshes of the same server are coalesced with singleflight and limited by
// a token bucket, so concurrent callers that all notice a stale token cause a
// single refresh grant. Refreshed tokens go to Options.Persist before the
// call proceeds.
package mcpclient
