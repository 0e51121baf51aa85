// Package config loads dayai configuration and persists per-server
// credentials.
//
// # Configuration
//
// LoadConfig reads config.yaml from the configuration directory
// (~/.config/dayai, or $DAYAI_CONFIG_DIR) over built-in defaults for the Day
// AI server. A missing file is fine. Environment variables override the file:
//
//	DAYAI_LOG_LEVEL      debug | info | warn | error
//	DAYAI_CALLBACK_PORT  loopback port of the OAuth redirect listener
//	DAYAI_BASE_URL       rebases every endpoint of the day-ai server
//
// Servers that set only baseUrl get the Day AI endpoint layout
// (/api/mcp, /integrations/authorize, /api/oauth, /api/oauth/register,
// /api/oauth/revoke). Servers that set issuer get missing OAuth endpoints
// from the issuer's RFC 8414 metadata at login time.
//
// # State
//
// StateStore keeps client registrations, tokens and the connected flag of
// every server in state.json (mode 0600, directory 0700). Writes go through
// a temp file and rename. StateWatcher notices edits made by another dayai
// process so a running REPL can pick up fresh credentials.
package config
