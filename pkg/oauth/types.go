package oauth

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// TokenRefreshThreshold is how long before expiry a token is considered
// stale and gets refreshed proactively.
const TokenRefreshThreshold = 5 * time.Minute

// Grant and response types sent during dynamic client registration.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	ResponseTypeCode           = "code"
	TokenEndpointAuthNone      = "none"
)

// ClientRegistration is the result of dynamic client registration. It is
// created once per server and installation and must be persisted by the
// caller.
type ClientRegistration struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// TokenSet is the access/refresh token pair for one server identity.
//
// A zero ExpiresAt means the server did not report a lifetime; such tokens
// are never treated as proactively stale.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	TokenType    string    `json:"token_type,omitempty"`
}

// IsStale reports whether the token is within TokenRefreshThreshold of its
// expiry at now. Tokens without an expiry are never stale.
func (t *TokenSet) IsStale(now time.Time) bool {
	if t == nil || t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(TokenRefreshThreshold).Before(t.ExpiresAt)
}

// IsExpired reports whether the token's expiry has passed at now.
func (t *TokenSet) IsExpired(now time.Time) bool {
	if t == nil || t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(t.ExpiresAt)
}

// CanRefresh reports whether a refresh grant can be attempted.
func (t *TokenSet) CanRefresh() bool {
	return t != nil && t.RefreshToken != ""
}

// Clone returns a copy that can be mutated without affecting t.
func (t *TokenSet) Clone() *TokenSet {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// AuthorizationHeader returns the value for the Authorization header.
func (t *TokenSet) AuthorizationHeader() string {
	typ := t.TokenType
	if typ == "" || strings.EqualFold(typ, "bearer") {
		typ = "Bearer"
	}
	return typ + " " + t.AccessToken
}

// tokenSetFromOAuth2 converts a token response received at now.
func tokenSetFromOAuth2(tok *oauth2.Token, now time.Time) *TokenSet {
	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		TokenType:    tok.Type(),
	}
	if tok.ExpiresIn > 0 {
		ts.ExpiresAt = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return ts
}

// PKCEChallenge contains the PKCE code verifier and challenge.
type PKCEChallenge struct {
	CodeVerifier        string `json:"code_verifier"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
}

// AuthorizationState is the ephemeral state of one authorization-code
// flow. It is never persisted.
type AuthorizationState struct {
	CodeVerifier  string
	CodeChallenge string
	State         string
	RedirectURI   string
	ExpiresAt     time.Time
}

// NewAuthorizationState generates a fresh verifier, challenge and state
// for a flow that must complete before now+ttl.
func NewAuthorizationState(redirectURI string, now time.Time, ttl time.Duration) (*AuthorizationState, error) {
	pkce, err := GeneratePKCE()
	if err != nil {
		return nil, err
	}
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}
	return &AuthorizationState{
		CodeVerifier:  pkce.CodeVerifier,
		CodeChallenge: pkce.CodeChallenge,
		State:         state,
		RedirectURI:   redirectURI,
		ExpiresAt:     now.Add(ttl),
	}, nil
}

// ClientMetadata is the RFC 7591 registration request body.
type ClientMetadata struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	Scope                   string   `json:"scope,omitempty"`
}

// Metadata represents OAuth 2.0 Authorization Server Metadata as defined in RFC 8414.
type Metadata struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	RegistrationEndpoint          string   `json:"registration_endpoint,omitempty"`
	RevocationEndpoint            string   `json:"revocation_endpoint,omitempty"`
	ScopesSupported               []string `json:"scopes_supported,omitempty"`
	GrantTypesSupported           []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// SupportsPKCE returns true if the server supports S256 PKCE. Servers that
// do not advertise any method are assumed to (OAuth 2.1 requirement).
func (m *Metadata) SupportsPKCE() bool {
	if len(m.CodeChallengeMethodsSupported) == 0 {
		return true
	}
	return slices.Contains(m.CodeChallengeMethodsSupported, CodeChallengeMethodS256)
}

// AuthChallenge represents parsed information from a WWW-Authenticate header.
type AuthChallenge struct {
	Scheme              string
	Realm               string
	ResourceMetadataURL string
	Scope               string
	Error               string
	ErrorDescription    string
}

// InvalidToken reports whether the challenge says the presented token was
// rejected (RFC 6750 error=invalid_token).
func (c *AuthChallenge) InvalidToken() bool {
	return c != nil && c.Error == "invalid_token"
}
