package oauth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayai/internal/testing/mock"
	"dayai/pkg/oauth"
)

func issued(srv *mock.OAuthServer, clientID string) *oauth.TokenSet {
	resp := srv.IssueTokens(clientID, "assistant:*:use")
	return &oauth.TokenSet{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken, TokenType: resp.TokenType}
}

func TestRefresher_Refresh(t *testing.T) {
	t.Run("persists before returning", func(t *testing.T) {
		srv := mock.NewOAuthServer(mock.OAuthServerConfig{})
		defer srv.Close()

		var persisted *oauth.TokenSet
		r := NewRefresher(nil, func(ctx context.Context, serverID string, tokens *oauth.TokenSet) error {
			assert.Equal(t, "day-ai", serverID)
			persisted = tokens.Clone()
			return nil
		}, nil)

		old := issued(srv, "client-1")
		updated, err := r.Refresh(context.Background(), RefreshRequest{
			ServerID:      "day-ai",
			TokenEndpoint: srv.TokenURL(),
			Registration:  oauth.ClientRegistration{ClientID: "client-1"},
			Tokens:        old,
		})
		require.NoError(t, err)

		require.NotNil(t, persisted)
		assert.Equal(t, updated.AccessToken, persisted.AccessToken)
		assert.NotEqual(t, old.AccessToken, updated.AccessToken)
		assert.NotEqual(t, old.RefreshToken, updated.RefreshToken)
		assert.False(t, updated.ExpiresAt.IsZero())
		assert.Equal(t, int32(1), srv.RefreshCalls.Load())
	})

	t.Run("retains refresh token the server does not rotate", func(t *testing.T) {
		srv := mock.NewOAuthServer(mock.OAuthServerConfig{KeepRefreshToken: true, OmitExpiresIn: true})
		defer srv.Close()

		r := NewRefresher(nil, nil, nil)
		old := issued(srv, "client-1")
		updated, err := r.Refresh(context.Background(), RefreshRequest{
			TokenEndpoint: srv.TokenURL(),
			Registration:  oauth.ClientRegistration{ClientID: "client-1"},
			Tokens:        old,
		})
		require.NoError(t, err)
		assert.Equal(t, old.RefreshToken, updated.RefreshToken)
		assert.True(t, updated.ExpiresAt.IsZero(), "no expires_in means unknown expiry")
	})

	t.Run("no refresh token makes no request", func(t *testing.T) {
		srv := mock.NewOAuthServer(mock.OAuthServerConfig{})
		defer srv.Close()

		r := NewRefresher(nil, nil, nil)
		_, err := r.Refresh(context.Background(), RefreshRequest{
			TokenEndpoint: srv.TokenURL(),
			Tokens:        &oauth.TokenSet{AccessToken: "a"},
		})

		var rErr *oauth.RefreshError
		require.ErrorAs(t, err, &rErr)
		assert.Equal(t, oauth.RefreshNoToken, rErr.Reason)
		assert.Equal(t, int32(0), srv.RefreshCalls.Load())
	})

	t.Run("rejected refresh is terminal", func(t *testing.T) {
		srv := mock.NewOAuthServer(mock.OAuthServerConfig{})
		defer srv.Close()
		srv.FailRefresh.Store(true)

		persistCalls := 0
		r := NewRefresher(nil, func(context.Context, string, *oauth.TokenSet) error {
			persistCalls++
			return nil
		}, nil)
		_, err := r.Refresh(context.Background(), RefreshRequest{
			TokenEndpoint: srv.TokenURL(),
			Registration:  oauth.ClientRegistration{ClientID: "client-1"},
			Tokens:        issued(srv, "client-1"),
		})

		var rErr *oauth.RefreshError
		require.ErrorAs(t, err, &rErr)
		assert.Equal(t, oauth.RefreshRejected, rErr.Reason)
		assert.Equal(t, 400, rErr.StatusCode)
		assert.True(t, oauth.IsTerminalRefresh(err))
		assert.Zero(t, persistCalls)
	})

	t.Run("persist failure still returns tokens", func(t *testing.T) {
		srv := mock.NewOAuthServer(mock.OAuthServerConfig{})
		defer srv.Close()

		diskFull := errors.New("disk full")
		r := NewRefresher(nil, func(context.Context, string, *oauth.TokenSet) error { return diskFull }, nil)
		updated, err := r.Refresh(context.Background(), RefreshRequest{
			ServerID:      "day-ai",
			TokenEndpoint: srv.TokenURL(),
			Registration:  oauth.ClientRegistration{ClientID: "client-1"},
			Tokens:        issued(srv, "client-1"),
		})
		assert.ErrorIs(t, err, diskFull)
		require.NotNil(t, updated)
		assert.True(t, srv.ValidateToken(updated.AccessToken))
	})
}

func TestRefresher_Revoke(t *testing.T) {
	t.Run("revokes refresh then access token", func(t *testing.T) {
		srv := mock.NewOAuthServer(mock.OAuthServerConfig{})
		defer srv.Close()

		tokens := issued(srv, "client-1")
		NewRefresher(nil, nil, nil).Revoke(context.Background(), RevokeRequest{
			ServerID:           "day-ai",
			RevocationEndpoint: srv.RevocationURL(),
			ClientID:           "client-1",
			Tokens:             tokens,
		})

		assert.Equal(t, []string{tokens.RefreshToken, tokens.AccessToken}, srv.Revoked())
		assert.False(t, srv.ValidateToken(tokens.AccessToken))
	})

	t.Run("failures are swallowed", func(t *testing.T) {
		srv := mock.NewOAuthServer(mock.OAuthServerConfig{})
		defer srv.Close()
		srv.FailRevoke.Store(true)

		NewRefresher(nil, nil, nil).Revoke(context.Background(), RevokeRequest{
			RevocationEndpoint: srv.RevocationURL(),
			ClientID:           "client-1",
			Tokens:             &oauth.TokenSet{AccessToken: "a", RefreshToken: "r"},
		})
		assert.Equal(t, int32(2), srv.RevokeCalls.Load())
	})

	t.Run("nothing to revoke", func(t *testing.T) {
		srv := mock.NewOAuthServer(mock.OAuthServerConfig{})
		defer srv.Close()

		r := NewRefresher(nil, nil, nil)
		r.Revoke(context.Background(), RevokeRequest{RevocationEndpoint: srv.RevocationURL()})
		r.Revoke(context.Background(), RevokeRequest{Tokens: &oauth.TokenSet{AccessToken: "a"}})
		assert.Equal(t, int32(0), srv.RevokeCalls.Load())
	})
}
