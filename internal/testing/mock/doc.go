// Package mock provides in-process fakes of the Day AI backend for tests.
//
// OAuthServer implements dynamic client registration, an auto-approving
// authorize endpoint, the authorization_code and refresh_token grants with
// S256 PKCE verification, and token revocation, on the same paths the real
// service uses (/api/oauth/register, /integrations/authorize, /api/oauth,
// /api/oauth/revoke). Every endpoint counts its calls and has a failure
// switch.
//
// ProtectedMCPServer serves an mcp-go streamable-HTTP server at /api/mcp
// behind a bearer token check. It validates tokens against an OAuthServer,
// counts tools/call attempts, and can be told to reject the next calls with
// 401 and a WWW-Authenticate challenge.
//
// MockClock lets tests move time forward to make tokens stale or expired.
package mock
