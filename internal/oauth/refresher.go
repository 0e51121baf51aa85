package oauth

import (
	"context"
	"fmt"

	"dayai/internal/instrumentation"
	"dayai/pkg/logging"
	"dayai/pkg/oauth"
)

// PersistFunc stores refreshed tokens for a server. It is called before
// Refresh returns.
type PersistFunc func(ctx context.Context, serverID string, tokens *oauth.TokenSet) error

// RefreshRequest identifies the tokens to refresh and where.
type RefreshRequest struct {
	ServerID      string
	TokenEndpoint string
	Registration  oauth.ClientRegistration
	Tokens        *oauth.TokenSet
}

// RevokeRequest identifies the tokens to revoke and where.
type RevokeRequest struct {
	ServerID           string
	RevocationEndpoint string
	ClientID           string
	Tokens             *oauth.TokenSet
}

// Refresher runs refresh grants and persists the result.
type Refresher struct {
	client  *oauth.Client
	persist PersistFunc
	metrics *instrumentation.Metrics
}

// NewRefresher creates a Refresher. persist and metrics may be nil.
func NewRefresher(client *oauth.Client, persist PersistFunc, metrics *instrumentation.Metrics) *Refresher {
	if client == nil {
		client = oauth.NewClient()
	}
	return &Refresher{client: client, persist: persist, metrics: metrics}
}

// Refresh exchanges the refresh token for a new token set. Without a refresh
// token it fails with RefreshNoToken and makes no request. When persisting
// fails the new tokens are returned together with the error, since the old
// refresh token may already be invalidated by rotation.
func (r *Refresher) Refresh(ctx context.Context, req RefreshRequest) (*oauth.TokenSet, error) {
	if req.Tokens == nil || !req.Tokens.CanRefresh() {
		err := &oauth.RefreshError{Reason: oauth.RefreshNoToken}
		r.metrics.RecordRefresh(ctx, req.ServerID, false, err)
		return nil, err
	}

	updated, err := r.client.RefreshToken(ctx, req.TokenEndpoint, req.Registration, req.Tokens.RefreshToken)
	if err != nil {
		r.metrics.RecordRefresh(ctx, req.ServerID, false, err)
		logging.Warn("TokenRefresher", "Token refresh for %s failed: %v", req.ServerID, err)
		return nil, err
	}

	rotated := updated.RefreshToken != req.Tokens.RefreshToken
	r.metrics.RecordRefresh(ctx, req.ServerID, rotated, nil)
	logging.Audit("token_refreshed",
		"server", req.ServerID,
		"refresh_token_rotated", rotated,
		"expires_at", updated.ExpiresAt)

	if r.persist != nil {
		if err := r.persist(ctx, req.ServerID, updated); err != nil {
			return updated, fmt.Errorf("failed to persist refreshed tokens for %s: %w", req.ServerID, err)
		}
	}
	return updated, nil
}

// Revoke invalidates the refresh token and then the access token. Failures
// are logged and otherwise ignored.
func (r *Refresher) Revoke(ctx context.Context, req RevokeRequest) {
	if req.Tokens == nil || req.RevocationEndpoint == "" {
		return
	}
	if req.Tokens.RefreshToken != "" {
		logging.BestEffort("TokenRefresher", "refresh token revocation", func() error {
			return r.client.Revoke(ctx, req.RevocationEndpoint, req.ClientID, req.Tokens.RefreshToken, "refresh_token")
		})
	}
	if req.Tokens.AccessToken != "" {
		logging.BestEffort("TokenRefresher", "access token revocation", func() error {
			return r.client.Revoke(ctx, req.RevocationEndpoint, req.ClientID, req.Tokens.AccessToken, "access_token")
		})
	}
	logging.Audit("tokens_revoked", "server", req.ServerID)
}
