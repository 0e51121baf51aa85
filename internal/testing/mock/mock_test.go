package mock

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())

	assert.False(t, NewMockClock(time.Time{}).Now().IsZero())

	expiry := start.Add(time.Hour)
	c.ExpirePast(expiry)
	assert.True(t, c.Now().After(expiry))

	c.StaleBy(expiry, 5*time.Minute)
	assert.Equal(t, start.Add(55*time.Minute), c.Now())
}

func TestOAuthServer_RefreshRotation(t *testing.T) {
	t.Run("rotates refresh tokens by default", func(t *testing.T) {
		s := NewOAuthServer(OAuthServerConfig{})
		defer s.Close()

		issued := s.IssueTokens("client-1", "assistant:*:use")
		resp, err := http.PostForm(s.TokenURL(), url.Values{
			"grant_type":    {"refresh_token"},
			"client_id":     {"client-1"},
			"refresh_token": {issued.RefreshToken},
		})
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.False(t, s.ValidateToken(issued.AccessToken), "old access token must be invalidated")
		assert.Equal(t, int32(1), s.RefreshCalls.Load())
	})

	t.Run("rejects refresh when switched to fail", func(t *testing.T) {
		s := NewOAuthServer(OAuthServerConfig{})
		defer s.Close()
		s.FailRefresh.Store(true)

		issued := s.IssueTokens("client-1", "")
		resp, err := http.PostForm(s.TokenURL(), url.Values{
			"grant_type":    {"refresh_token"},
			"client_id":     {"client-1"},
			"refresh_token": {issued.RefreshToken},
		})
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestOAuthServer_TokenExpiry(t *testing.T) {
	clock := NewMockClock(time.Time{})
	s := NewOAuthServer(OAuthServerConfig{Clock: clock, TokenLifetime: time.Minute})
	defer s.Close()

	issued := s.IssueTokens("client-1", "")
	assert.True(t, s.ValidateToken(issued.AccessToken))

	clock.Advance(time.Minute)
	assert.False(t, s.ValidateToken(issued.AccessToken))
}

func TestProtectedMCPServer(t *testing.T) {
	s := NewProtectedMCPServer(ProtectedMCPServerConfig{
		StaticToken: "good",
		Tools:       []server.ServerTool{TextTool("search", "Search the CRM", `{"hits":1}`)},
	})
	defer s.Close()

	connect := func(t *testing.T, token string) (*client.Client, error) {
		t.Helper()
		c, err := client.NewStreamableHttpClient(s.Endpoint(),
			transport.WithHTTPHeaders(map[string]string{"Authorization": "Bearer " + token}))
		require.NoError(t, err)

		_, err = c.Initialize(context.Background(), mcp.InitializeRequest{
			Params: mcp.InitializeParams{
				ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
				ClientInfo:      mcp.Implementation{Name: "mock-test", Version: "0.0.0"},
			},
		})
		return c, err
	}

	t.Run("serves tools with a valid token", func(t *testing.T) {
		c, err := connect(t, "good")
		require.NoError(t, err)
		defer c.Close()

		result, err := c.CallTool(context.Background(), mcp.CallToolRequest{
			Params: mcp.CallToolParams{Name: "search", Arguments: map[string]any{"query": "acme"}},
		})
		require.NoError(t, err)
		require.Len(t, result.Content, 1)

		text, ok := mcp.AsTextContent(result.Content[0])
		require.True(t, ok)
		assert.Equal(t, `{"hits":1}`, text.Text)
		assert.Equal(t, int32(1), s.ToolCallAttempts.Load())
	})

	t.Run("rejects a forced call with 401", func(t *testing.T) {
		c, err := connect(t, "good")
		require.NoError(t, err)
		defer c.Close()

		before := s.Unauthorized.Load()
		s.Reject401.Store(1)
		_, err = c.CallTool(context.Background(), mcp.CallToolRequest{
			Params: mcp.CallToolParams{Name: "search"},
		})
		assert.Error(t, err)
		assert.Equal(t, before+1, s.Unauthorized.Load())
		assert.Equal(t, int32(0), s.Reject401.Load())
	})
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"", ""},
		{"Bearer", ""},
	}
	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.header, " ", "_"), func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractBearerToken(tt.header))
		})
	}
}
