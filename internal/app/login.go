package app

import (
	"context"
	"fmt"

	"dayai/internal/config"
	"dayai/internal/mcpclient"
	authflow "dayai/internal/oauth"
	"dayai/pkg/logging"
	"dayai/pkg/oauth"
)

// LoginOptions selects the server and registration behavior of Login.
type LoginOptions struct {
	// ServerID defaults to the first configured server.
	ServerID string
	// Reregister discards a stored client registration.
	Reregister bool
}

// LoginResult describes a completed login.
type LoginResult struct {
	ServerID   string
	Registered bool // a new client registration was created
	Tools      []mcpclient.ToolInfo
}

// Login registers a client if needed, runs the browser authorization flow,
// stores the tokens and connects the MCP session.
func (a *Application) Login(ctx context.Context, opts LoginOptions) (*LoginResult, error) {
	server, err := a.server(opts.ServerID)
	if err != nil {
		return nil, err
	}
	server, err = a.resolveEndpoints(ctx, server)
	if err != nil {
		return nil, err
	}

	reg, registered, err := a.ensureRegistration(ctx, server, opts.Reregister)
	if err != nil {
		return nil, err
	}

	tokens, err := a.services.Coordinator.Run(ctx, authflow.FlowRequest{
		ServerID:      server.ID,
		ServerName:    server.DisplayName(),
		AuthEndpoint:  server.AuthEndpoint,
		TokenEndpoint: server.TokenEndpoint,
		Registration:  *reg,
		Scopes:        server.Scopes,
	})
	if err != nil {
		return nil, err
	}

	if err := a.services.State.PutServer(&config.ServerState{
		ServerID:     server.ID,
		EndpointURL:  server.MCPEndpoint,
		Registration: reg,
		Tokens:       tokens,
	}); err != nil {
		return nil, fmt.Errorf("failed to store tokens for %s: %w", server.ID, err)
	}

	tools, err := a.connect(ctx, server, reg, tokens)
	if err != nil {
		return nil, err
	}
	logging.Info("Login", "Connected to %s with %d tools", server.ID, len(tools))

	return &LoginResult{ServerID: server.ID, Registered: registered, Tools: tools}, nil
}

// ensureRegistration returns the stored registration or registers a new
// client for the coordinator's redirect URI.
func (a *Application) ensureRegistration(ctx context.Context, server config.ServerConfig, force bool) (*oauth.ClientRegistration, bool, error) {
	stored, ok, err := a.services.State.Server(server.ID)
	if err != nil {
		return nil, false, err
	}
	if ok && stored.Registration != nil && stored.Registration.ClientID != "" && !force {
		logging.Debug("Login", "Reusing client registration for %s", server.ID)
		return stored.Registration, false, nil
	}

	if server.RegistrationEndpoint == "" {
		return nil, false, &oauth.RegistrationError{
			Err: fmt.Errorf("server %s has no registration endpoint and no stored client", server.ID),
		}
	}

	reg, err := a.services.OAuth.Register(ctx,
		server.RegistrationEndpoint,
		a.services.Coordinator.RedirectURI(),
		a.services.Settings.ClientName,
		server.Scopes)
	if err != nil {
		return nil, false, err
	}
	if err := a.services.State.SetRegistration(server.ID, server.MCPEndpoint, reg); err != nil {
		return nil, false, fmt.Errorf("failed to store client registration for %s: %w", server.ID, err)
	}
	logging.Audit("client_registered", "server", server.ID)
	return reg, true, nil
}

// resolveEndpoints fills OAuth endpoints from the issuer's metadata when the
// server configures an issuer.
func (a *Application) resolveEndpoints(ctx context.Context, server config.ServerConfig) (config.ServerConfig, error) {
	if server.Issuer == "" {
		return server, nil
	}
	if server.AuthEndpoint != "" && server.TokenEndpoint != "" && server.RegistrationEndpoint != "" && server.RevocationEndpoint != "" {
		return server, nil
	}

	meta, err := a.services.OAuth.DiscoverMetadata(ctx, server.Issuer)
	if err != nil {
		return server, fmt.Errorf("failed to discover OAuth endpoints for %s: %w", server.ID, err)
	}
	fill := func(field *string, value string) {
		if *field == "" {
			*field = value
		}
	}
	fill(&server.AuthEndpoint, meta.AuthorizationEndpoint)
	fill(&server.TokenEndpoint, meta.TokenEndpoint)
	fill(&server.RegistrationEndpoint, meta.RegistrationEndpoint)
	fill(&server.RevocationEndpoint, meta.RevocationEndpoint)
	if !meta.SupportsPKCE() {
		logging.Warn("Login", "Issuer %s does not advertise S256 PKCE support", server.Issuer)
	}
	return server, nil
}

// connect opens the MCP session and records the outcome in the state file.
func (a *Application) connect(ctx context.Context, server config.ServerConfig, reg *oauth.ClientRegistration, tokens *oauth.TokenSet) ([]mcpclient.ToolInfo, error) {
	tools, err := a.services.Manager.Connect(ctx, mcpclient.ConnectRequest{
		ServerID:      server.ID,
		EndpointURL:   server.MCPEndpoint,
		TokenEndpoint: server.TokenEndpoint,
		Registration:  *reg,
		Tokens:        tokens,
	})
	if err != nil {
		logging.BestEffort("App", "mark server disconnected", func() error {
			return a.services.State.SetConnected(server.ID, false)
		})
		return nil, err
	}
	if err := a.services.State.SetConnected(server.ID, true); err != nil {
		logging.Warn("App", "Failed to record connection to %s: %v", server.ID, err)
	}
	return tools, nil
}

// Logout revokes the stored tokens (best effort), closes the session and
// clears the tokens from the state file. The client registration is kept.
func (a *Application) Logout(ctx context.Context, serverID string) error {
	server, err := a.server(serverID)
	if err != nil {
		return err
	}
	server, err = a.resolveEndpoints(ctx, server)
	if err != nil {
		logging.Warn("Logout", "Continuing without endpoint discovery: %v", err)
	}

	stored, ok, err := a.services.State.Server(server.ID)
	if err != nil {
		return err
	}

	tokens := a.services.Manager.Tokens(server.ID)
	if tokens == nil && ok {
		tokens = stored.Tokens
	}
	if ok && stored.Registration != nil {
		a.services.Refresher.Revoke(ctx, authflow.RevokeRequest{
			ServerID:           server.ID,
			RevocationEndpoint: server.RevocationEndpoint,
			ClientID:           stored.Registration.ClientID,
			Tokens:             tokens,
		})
	}

	a.services.Manager.Disconnect(server.ID)
	if err := a.services.State.ClearTokens(server.ID); err != nil {
		return fmt.Errorf("failed to clear tokens for %s: %w", server.ID, err)
	}
	logging.Info("Logout", "Logged out of %s", server.ID)
	return nil
}
