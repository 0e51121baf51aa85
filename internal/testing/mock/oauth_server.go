package mock

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// OAuthServerConfig configures the mock authorization server.
type OAuthServerConfig struct {
	// TokenLifetime is reported as expires_in. Defaults to one hour.
	TokenLifetime time.Duration

	// OmitExpiresIn leaves expires_in out of token responses.
	OmitExpiresIn bool

	// KeepRefreshToken answers refresh grants without a new refresh token.
	KeepRefreshToken bool

	// Clock drives token expiry. Defaults to RealClock.
	Clock Clock
}

// TokenResponse is the token endpoint response body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

type authCodeEntry struct {
	clientID      string
	redirectURI   string
	scope         string
	codeChallenge string
}

type issuedToken struct {
	clientID     string
	scope        string
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// OAuthServer is an httptest-backed authorization server implementing
// dynamic registration, the authorize redirect (auto-approved), the code
// and refresh grants with PKCE, and revocation. Every endpoint counts its
// calls so tests can assert on network traffic.
type OAuthServer struct {
	config OAuthServerConfig
	server *httptest.Server
	clock  Clock

	mu        sync.Mutex
	clients   map[string]string // client_id -> redirect_uri
	authCodes map[string]*authCodeEntry
	access    map[string]*issuedToken
	refresh   map[string]*issuedToken
	revoked   []string

	MetadataCalls  atomic.Int32
	RegisterCalls  atomic.Int32
	AuthorizeCalls atomic.Int32
	ExchangeCalls  atomic.Int32
	RefreshCalls   atomic.Int32
	RevokeCalls    atomic.Int32

	// Failure switches, settable at any time.
	FailRegistration atomic.Bool
	DenyAuthorize    atomic.Bool
	FailExchange     atomic.Bool
	FailRefresh      atomic.Bool
	FailRevoke       atomic.Bool
}

// NewOAuthServer starts a mock authorization server. Close it when done.
func NewOAuthServer(config OAuthServerConfig) *OAuthServer {
	if config.TokenLifetime == 0 {
		config.TokenLifetime = time.Hour
	}
	clock := config.Clock
	if clock == nil {
		clock = RealClock{}
	}

	s := &OAuthServer{
		config:    config,
		clock:     clock,
		clients:   make(map[string]string),
		authCodes: make(map[string]*authCodeEntry),
		access:    make(map[string]*issuedToken),
		refresh:   make(map[string]*issuedToken),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", s.handleMetadata)
	mux.HandleFunc("/api/oauth/register", s.handleRegister)
	mux.HandleFunc("/integrations/authorize", s.handleAuthorize)
	mux.HandleFunc("/api/oauth", s.handleToken)
	mux.HandleFunc("/api/oauth/revoke", s.handleRevoke)
	s.server = httptest.NewServer(mux)
	return s
}

// Close shuts the server down.
func (s *OAuthServer) Close() { s.server.Close() }

// URL is the issuer base URL.
func (s *OAuthServer) URL() string { return s.server.URL }

func (s *OAuthServer) RegistrationURL() string { return s.server.URL + "/api/oauth/register" }
func (s *OAuthServer) AuthorizeURL() string    { return s.server.URL + "/integrations/authorize" }
func (s *OAuthServer) TokenURL() string        { return s.server.URL + "/api/oauth" }
func (s *OAuthServer) RevocationURL() string   { return s.server.URL + "/api/oauth/revoke" }

// ValidateToken reports whether accessToken was issued, not revoked and
// not expired.
func (s *OAuthServer) ValidateToken(accessToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.access[accessToken]
	return ok && s.clock.Now().Before(tok.expiresAt)
}

// IssueTokens issues a token pair without going through the redirect,
// for tests that start from an already authorized state.
func (s *OAuthServer) IssueTokens(clientID, scope string) TokenResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(clientID, scope, "")
}

// ExpireAccessToken invalidates accessToken on the server side only, as
// happens when a server revokes sessions before the advertised expiry.
func (s *OAuthServer) ExpireAccessToken(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.access, accessToken)
}

// Revoked returns the tokens revoked so far, in order.
func (s *OAuthServer) Revoked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.revoked...)
}

// issueLocked mints a token pair. A non-empty keepRefresh is reused as the
// refresh token. s.mu must be held.
func (s *OAuthServer) issueLocked(clientID, scope, keepRefresh string) TokenResponse {
	tok := &issuedToken{
		clientID:     clientID,
		scope:        scope,
		accessToken:  "at_" + randomToken(),
		refreshToken: keepRefresh,
		expiresAt:    s.clock.Now().Add(s.config.TokenLifetime),
	}
	if tok.refreshToken == "" {
		tok.refreshToken = "rt_" + randomToken()
	}
	s.access[tok.accessToken] = tok
	s.refresh[tok.refreshToken] = tok

	resp := TokenResponse{
		AccessToken:  tok.accessToken,
		RefreshToken: tok.refreshToken,
		TokenType:    "bearer",
		Scope:        scope,
	}
	if keepRefresh != "" {
		resp.RefreshToken = ""
	}
	if !s.config.OmitExpiresIn {
		resp.ExpiresIn = int(s.config.TokenLifetime.Seconds())
	}
	return resp
}

func (s *OAuthServer) handleMetadata(w http.ResponseWriter, r *http.Request) {
	s.MetadataCalls.Add(1)
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                           s.server.URL,
		"authorization_endpoint":           s.AuthorizeURL(),
		"token_endpoint":                   s.TokenURL(),
		"registration_endpoint":            s.RegistrationURL(),
		"revocation_endpoint":              s.RevocationURL(),
		"response_types_supported":         []string{"code"},
		"grant_types_supported":            []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported": []string{"S256"},
	})
}

func (s *OAuthServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.RegisterCalls.Add(1)
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.FailRegistration.Load() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_client_metadata",
			"error_description": "registration disabled",
		})
		return
	}

	var body struct {
		ClientName   string   `json:"client_name"`
		RedirectURIs []string `json:"redirect_uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.RedirectURIs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_redirect_uri"})
		return
	}

	clientID := "client_" + randomToken()[:16]
	s.mu.Lock()
	s.clients[clientID] = body.RedirectURIs[0]
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"client_id":                  clientID,
		"client_name":                body.ClientName,
		"redirect_uris":              body.RedirectURIs,
		"token_endpoint_auth_method": "none",
	})
}

// handleAuthorize approves every valid request immediately by redirecting
// back to the registered redirect URI.
func (s *OAuthServer) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	s.AuthorizeCalls.Add(1)
	q := r.URL.Query()

	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")

	s.mu.Lock()
	registered, known := s.clients[clientID]
	s.mu.Unlock()

	if !known || registered != redirectURI {
		http.Error(w, "unknown client or redirect_uri", http.StatusBadRequest)
		return
	}
	if q.Get("response_type") != "code" || q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}

	target, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	params := target.Query()
	params.Set("state", q.Get("state"))

	if s.DenyAuthorize.Load() {
		params.Set("error", "access_denied")
		params.Set("error_description", "The user denied access")
	} else {
		code := "code_" + randomToken()
		s.mu.Lock()
		s.authCodes[code] = &authCodeEntry{
			clientID:      clientID,
			redirectURI:   redirectURI,
			scope:         q.Get("scope"),
			codeChallenge: q.Get("code_challenge"),
		}
		s.mu.Unlock()
		params.Set("code", code)
	}

	target.RawQuery = params.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (s *OAuthServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		tokenError(w, "invalid_request", "malformed form body")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		s.handleCodeGrant(w, r)
	case "refresh_token":
		s.handleRefreshGrant(w, r)
	default:
		tokenError(w, "unsupported_grant_type", "")
	}
}

func (s *OAuthServer) handleCodeGrant(w http.ResponseWriter, r *http.Request) {
	s.ExchangeCalls.Add(1)
	if s.FailExchange.Load() {
		tokenError(w, "invalid_grant", "authorization code is invalid")
		return
	}

	code := r.PostForm.Get("code")
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.authCodes[code]
	if !ok {
		tokenError(w, "invalid_grant", "authorization code not found")
		return
	}
	delete(s.authCodes, code)

	if entry.clientID != r.PostForm.Get("client_id") || entry.redirectURI != r.PostForm.Get("redirect_uri") {
		tokenError(w, "invalid_grant", "client or redirect_uri mismatch")
		return
	}
	if !verifyS256(entry.codeChallenge, r.PostForm.Get("code_verifier")) {
		tokenError(w, "invalid_grant", "code_verifier verification failed")
		return
	}

	writeJSON(w, http.StatusOK, s.issueLocked(entry.clientID, entry.scope, ""))
}

func (s *OAuthServer) handleRefreshGrant(w http.ResponseWriter, r *http.Request) {
	s.RefreshCalls.Add(1)
	if s.FailRefresh.Load() {
		tokenError(w, "invalid_grant", "refresh token expired")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.refresh[r.PostForm.Get("refresh_token")]
	if !ok || old.clientID != r.PostForm.Get("client_id") {
		tokenError(w, "invalid_grant", "refresh token not found")
		return
	}
	delete(s.access, old.accessToken)

	keep := ""
	if s.config.KeepRefreshToken {
		keep = old.refreshToken
	} else {
		delete(s.refresh, old.refreshToken)
	}
	writeJSON(w, http.StatusOK, s.issueLocked(old.clientID, old.scope, keep))
}

func (s *OAuthServer) handleRevoke(w http.ResponseWriter, r *http.Request) {
	s.RevokeCalls.Add(1)
	if s.FailRevoke.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	token := r.PostForm.Get("token")
	s.mu.Lock()
	if tok, ok := s.access[token]; ok {
		delete(s.access, tok.accessToken)
	}
	if tok, ok := s.refresh[token]; ok {
		delete(s.refresh, tok.refreshToken)
	}
	s.revoked = append(s.revoked, token)
	s.mu.Unlock()

	// RFC 7009: unknown tokens are not an error
	w.WriteHeader(http.StatusOK)
}

func verifyS256(challenge, verifier string) bool {
	if verifier == "" {
		return false
	}
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:]) == challenge
}

func tokenError(w http.ResponseWriter, code, description string) {
	body := map[string]string{"error": code}
	if description != "" {
		body["error_description"] = description
	}
	writeJSON(w, http.StatusBadRequest, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func randomToken() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// ExtractBearerToken returns the token of a "Bearer <token>" header value,
// or "" for any other scheme.
func ExtractBearerToken(authHeader string) string {
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
