package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultMetadataCacheTTL is the default TTL for cached OAuth metadata.
	DefaultMetadataCacheTTL = 30 * time.Minute

	// maxErrorBody caps how much of an error response is kept for messages.
	maxErrorBody = 4096
)

type metadataCacheEntry struct {
	metadata  *Metadata
	fetchedAt time.Time
}

// Client handles the OAuth 2.1 protocol operations of a public client:
// metadata discovery, dynamic registration, authorization URLs, code
// exchange, refresh and revocation.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	metadataMu    sync.RWMutex
	metadataCache map[string]*metadataCacheEntry
	metadataTTL   time.Duration
	metadataGroup singleflight.Group
}

// ClientOption configures the OAuth client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetadataCacheTTL sets the metadata cache TTL.
func WithMetadataCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.metadataTTL = ttl
	}
}

// WithClock sets the time source used to turn expires_in into an absolute
// expiry.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new OAuth client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: DefaultHTTPTimeout},
		logger:        slog.Default(),
		metadataCache: make(map[string]*metadataCacheEntry),
		metadataTTL:   DefaultMetadataCacheTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient returns the HTTP client used for all requests.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// DiscoverMetadata fetches OAuth metadata from the issuer's well-known endpoint.
// It tries RFC 8414 (/.well-known/oauth-authorization-server) first,
// then falls back to OpenID Connect (/.well-known/openid-configuration).
//
// Results are cached with a TTL, and concurrent lookups for the same issuer
// share one request.
func (c *Client) DiscoverMetadata(ctx context.Context, issuer string) (*Metadata, error) {
	issuer = strings.TrimSuffix(issuer, "/")

	if m := c.cachedMetadata(issuer); m != nil {
		return m, nil
	}

	result, err, _ := c.metadataGroup.Do(issuer, func() (interface{}, error) {
		if m := c.cachedMetadata(issuer); m != nil {
			return m, nil
		}
		return c.doDiscoverMetadata(ctx, issuer)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Metadata), nil
}

func (c *Client) cachedMetadata(issuer string) *Metadata {
	c.metadataMu.RLock()
	defer c.metadataMu.RUnlock()
	if entry, ok := c.metadataCache[issuer]; ok && time.Since(entry.fetchedAt) < c.metadataTTL {
		return entry.metadata
	}
	return nil
}

func (c *Client) doDiscoverMetadata(ctx context.Context, issuer string) (*Metadata, error) {
	var lastErr error
	for _, path := range []string{"/.well-known/oauth-authorization-server", "/.well-known/openid-configuration"} {
		metadata, err := c.fetchMetadata(ctx, issuer+path)
		if err == nil {
			c.metadataMu.Lock()
			c.metadataCache[issuer] = &metadataCacheEntry{metadata: metadata, fetchedAt: time.Now()}
			c.metadataMu.Unlock()

			c.logger.Debug("Cached OAuth metadata",
				"issuer", issuer,
				"authorization_endpoint", metadata.AuthorizationEndpoint,
				"token_endpoint", metadata.TokenEndpoint)
			return metadata, nil
		}
		c.logger.Debug("Metadata fetch failed", "url", issuer+path, "error", err)
		lastErr = err
	}
	return nil, fmt.Errorf("failed to discover OAuth metadata for %s: %w", issuer, lastErr)
}

func (c *Client) fetchMetadata(ctx context.Context, metadataURL string) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata request failed with status %d", resp.StatusCode)
	}

	var metadata Metadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &metadata, nil
}

// ClearMetadataCache clears the metadata cache.
func (c *Client) ClearMetadataCache() {
	c.metadataMu.Lock()
	c.metadataCache = make(map[string]*metadataCacheEntry)
	c.metadataMu.Unlock()
}

// Register performs RFC 7591 dynamic client registration for a public
// client using the authorization code and refresh token grants.
//
// The returned registration must be persisted by the caller; registering on
// every run would create unbounded client identities on the server.
func (c *Client) Register(ctx context.Context, registrationEndpoint, redirectURI, clientName string, scopes []string) (*ClientRegistration, error) {
	body, err := json.Marshal(ClientMetadata{
		ClientName:              clientName,
		RedirectURIs:            []string{redirectURI},
		GrantTypes:              []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken},
		ResponseTypes:           []string{ResponseTypeCode},
		TokenEndpointAuthMethod: TokenEndpointAuthNone,
		Scope:                   strings.Join(scopes, " "),
	})
	if err != nil {
		return nil, &RegistrationError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &RegistrationError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RegistrationError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &RegistrationError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RegistrationError{StatusCode: resp.StatusCode, Body: truncate(respBody)}
	}

	var reg ClientRegistration
	if err := json.Unmarshal(respBody, &reg); err != nil {
		return nil, &RegistrationError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse registration response: %w", err)}
	}
	if reg.ClientID == "" {
		return nil, &RegistrationError{StatusCode: resp.StatusCode, Body: truncate(respBody), Err: errors.New("response has no client_id")}
	}

	c.logger.Debug("Registered OAuth client", "endpoint", registrationEndpoint, "has_secret", reg.ClientSecret != "")
	return &reg, nil
}

// AuthCodeRequest describes one authorization URL.
type AuthCodeRequest struct {
	AuthEndpoint string
	ClientID     string
	Scopes       []string
	State        *AuthorizationState
}

// BuildAuthorizationURL constructs the authorize URL with response_type=code,
// the space joined scopes, state, and the S256 code challenge.
func (c *Client) BuildAuthorizationURL(r AuthCodeRequest) (string, error) {
	if r.State == nil {
		return "", errors.New("authorization state is required")
	}
	if _, err := url.Parse(r.AuthEndpoint); err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	cfg := &oauth2.Config{
		ClientID:    r.ClientID,
		RedirectURL: r.State.RedirectURI,
		Scopes:      r.Scopes,
		Endpoint:    oauth2.Endpoint{AuthURL: r.AuthEndpoint},
	}
	return cfg.AuthCodeURL(r.State.State, oauth2.S256ChallengeOption(r.State.CodeVerifier)), nil
}

// ExchangeRequest holds the parameters of an authorization code grant.
type ExchangeRequest struct {
	TokenEndpoint string
	Registration  ClientRegistration
	Code          string
	RedirectURI   string
	CodeVerifier  string
}

// ExchangeCode exchanges an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, r ExchangeRequest) (*TokenSet, error) {
	cfg := c.tokenConfig(r.TokenEndpoint, r.Registration)
	cfg.RedirectURL = r.RedirectURI

	tok, err := cfg.Exchange(c.withHTTPClient(ctx), r.Code, oauth2.VerifierOption(r.CodeVerifier))
	if err != nil {
		exErr := &TokenExchangeError{Err: err}
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			exErr.ErrorCode = rErr.ErrorCode
			exErr.Description = rErr.ErrorDescription
			if rErr.Response != nil {
				exErr.StatusCode = rErr.Response.StatusCode
			}
			c.logger.Debug("Token exchange failed", "status", exErr.StatusCode, "body", truncate(rErr.Body))
		}
		return nil, exErr
	}
	return tokenSetFromOAuth2(tok, c.now()), nil
}

// RefreshToken performs a refresh grant. The returned TokenSet keeps the
// given refresh token when the server does not rotate it.
func (c *Client) RefreshToken(ctx context.Context, tokenEndpoint string, reg ClientRegistration, refreshToken string) (*TokenSet, error) {
	if refreshToken == "" {
		return nil, &RefreshError{Reason: RefreshNoToken}
	}

	cfg := c.tokenConfig(tokenEndpoint, reg)
	tok, err := cfg.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			refreshErr := &RefreshError{Reason: RefreshRejected, ErrorCode: rErr.ErrorCode, Err: err}
			if rErr.Response != nil {
				refreshErr.StatusCode = rErr.Response.StatusCode
			}
			c.logger.Debug("Token refresh rejected", "status", refreshErr.StatusCode, "body", truncate(rErr.Body))
			return nil, refreshErr
		}
		if ctx.Err() != nil {
			return nil, &RefreshError{Reason: RefreshUnavailable, Err: ctx.Err()}
		}
		var netErr *url.Error
		if errors.As(err, &netErr) {
			return nil, &RefreshError{Reason: RefreshUnavailable, Err: err}
		}
		// a 2xx response without a usable token
		return nil, &RefreshError{Reason: RefreshRejected, Err: err}
	}

	ts := tokenSetFromOAuth2(tok, c.now())
	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	return ts, nil
}

// Revoke asks the revocation endpoint (RFC 7009) to invalidate token.
// tokenTypeHint is "access_token" or "refresh_token".
func (c *Client) Revoke(ctx context.Context, revocationEndpoint, clientID, token, tokenTypeHint string) error {
	data := url.Values{
		"client_id":       {clientID},
		"token":           {token},
		"token_type_hint": {tokenTypeHint},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revocationEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revocation request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("revocation failed with status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) tokenConfig(tokenEndpoint string, reg ClientRegistration) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     reg.ClientID,
		ClientSecret: reg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}
