package app

import (
	"context"

	"dayai/internal/dispatch"
	"dayai/internal/mcpclient"
	"dayai/pkg/auth"
)

// Status reports every configured server, combining the state file with
// the live sessions.
func (a *Application) Status() (*auth.StatusResponse, error) {
	state, err := a.services.State.Load()
	if err != nil {
		return nil, err
	}

	resp := &auth.StatusResponse{Servers: []auth.ServerAuthStatus{}}
	for _, server := range a.services.Settings.Servers {
		st := auth.ServerAuthStatus{
			ServerID: server.ID,
			Name:     server.DisplayName(),
			Endpoint: server.MCPEndpoint,
			Status:   auth.StatusAuthRequired,
		}

		stored := state.Servers[server.ID]
		if stored != nil {
			st.Registered = stored.Registration != nil
		}

		tokens := a.services.Manager.Tokens(server.ID)
		if tokens == nil && stored != nil {
			tokens = stored.Tokens
		}

		sessionState := a.services.Manager.State(server.ID)
		if sessionState != mcpclient.StateDisconnected {
			st.Session = sessionState.String()
		}
		if tools, err := a.services.Manager.ListTools(server.ID); err == nil {
			st.Tools = len(tools)
		}

		if tokens != nil {
			st.ExpiresAt = tokens.ExpiresAt
			st.CanRefresh = tokens.CanRefresh()

			switch {
			case tokens.IsExpired(a.now()) && !tokens.CanRefresh():
				st.Status = auth.StatusExpired
			case sessionState == mcpclient.StateFailed:
				st.Status = auth.StatusError
				st.Error = "session failed; run dayai login"
			case sessionState == mcpclient.StateDisconnected:
				st.Status = auth.StatusDisconnected
			default:
				st.Status = auth.StatusConnected
			}
		}
		resp.Servers = append(resp.Servers, st)
	}
	return resp, nil
}

// Catalogue returns the tools available to a caller: local note tools and
// the tools of every connected server.
func (a *Application) Catalogue() []dispatch.ToolSpec {
	return a.services.Dispatcher.Catalogue()
}

// Call runs a tool by its dispatcher name.
func (a *Application) Call(ctx context.Context, name string, args map[string]any) dispatch.Result {
	return a.services.Dispatcher.Execute(ctx, dispatch.Call{Name: name, Arguments: args})
}
