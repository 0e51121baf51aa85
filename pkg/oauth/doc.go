// Package oauth provides the OAuth 2.1 public-client protocol pieces used by
// dayai: PKCE and state generation, dynamic client registration (RFC 7591),
// authorization URLs, code exchange, refresh, revocation (RFC 7009), server
// metadata discovery (RFC 8414) and WWW-Authenticate parsing.
//
// It holds no state besides a metadata cache. Running the browser flow and
// owning tokens is done by internal/oauth; connection handling by
// internal/mcpclient.
//
//	c := oauth.NewClient(oauth.WithHTTPClient(httpClient))
//	reg, err := c.Register(ctx, registrationURL, redirectURI, "Day AI SDK", scopes)
//	tokens, err := c.ExchangeCode(ctx, oauth.ExchangeRequest{...})
//
// # Errors
//
// Failures are typed so callers can decide between retrying, asking the user
// to log in again, or aborting: RegistrationError, AuthorizationError,
// CsrfError, FlowTimeoutError, PortInUseError, TokenExchangeError and
// RefreshError. RefreshError.Terminal distinguishes failures that need a
// new authorization from transient ones.
package oauth
