package app

import (
	"context"
	"errors"
	"time"

	"dayai/internal/config"
	authflow "dayai/internal/oauth"
	"dayai/pkg/logging"
	"dayai/pkg/oauth"
)

// ReconnectResult is the outcome of reconnecting one stored server.
type ReconnectResult struct {
	ServerID  string
	Refreshed bool
	Tools     int
	Err       error
}

// Reconnect restores the sessions of every server the state file marks as
// connected. Stale tokens are refreshed first. A server that cannot be
// reconnected is marked disconnected and the pass continues.
func (a *Application) Reconnect(ctx context.Context) []ReconnectResult {
	state, err := a.services.State.Load()
	if err != nil {
		logging.Error("Reconnect", err, "Failed to load state")
		return nil
	}

	var results []ReconnectResult
	for _, id := range state.ServerIDs() {
		stored := state.Servers[id]
		if !stored.Connected {
			continue
		}
		res := a.reconnectOne(ctx, stored)
		if res.Err != nil {
			logging.Warn("Reconnect", "Could not reconnect %s: %v", id, res.Err)
			logging.BestEffort("Reconnect", "mark server disconnected", func() error {
				return a.services.State.SetConnected(id, false)
			})
		}
		results = append(results, res)
	}
	return results
}

func (a *Application) reconnectOne(ctx context.Context, stored *config.ServerState) ReconnectResult {
	res := ReconnectResult{ServerID: stored.ServerID}

	server, err := a.server(stored.ServerID)
	if err != nil {
		res.Err = err
		return res
	}
	server, err = a.resolveEndpoints(ctx, server)
	if err != nil {
		res.Err = err
		return res
	}
	if stored.Registration == nil || stored.Tokens == nil {
		res.Err = &oauth.RefreshError{Reason: oauth.RefreshNoToken}
		return res
	}

	tokens := stored.Tokens
	if tokens.IsStale(a.now()) {
		if !tokens.CanRefresh() {
			if tokens.IsExpired(a.now()) {
				res.Err = &oauth.RefreshError{Reason: oauth.RefreshNoToken}
				return res
			}
		} else {
			refreshed, err := a.services.Refresher.Refresh(ctx, authflow.RefreshRequest{
				ServerID:      server.ID,
				TokenEndpoint: server.TokenEndpoint,
				Registration:  *stored.Registration,
				Tokens:        tokens,
			})
			if refreshed == nil {
				res.Err = err
				return res
			}
			if err != nil {
				logging.Warn("Reconnect", "%v", err)
			}
			tokens = refreshed
			res.Refreshed = true
		}
	}

	tools, err := a.connect(ctx, server, stored.Registration, tokens)
	if err != nil {
		res.Err = err
		return res
	}
	res.Tools = len(tools)
	return res
}

// syncFromState reconnects servers whose stored access token differs from
// the one the live session uses, such as after a login in another process.
func (a *Application) syncFromState(ctx context.Context) {
	state, err := a.services.State.Load()
	if err != nil {
		logging.Warn("StateSync", "Failed to reload state: %v", err)
		return
	}
	for _, id := range state.ServerIDs() {
		stored := state.Servers[id]
		live := a.services.Manager.Tokens(id)

		switch {
		case stored.Tokens == nil && live != nil:
			logging.Info("StateSync", "Credentials for %s were removed, closing session", id)
			a.services.Manager.Disconnect(id)
		case stored.Tokens != nil && stored.Connected && (live == nil || live.AccessToken != stored.Tokens.AccessToken):
			logging.Info("StateSync", "Credentials for %s changed, reconnecting", id)
			if res := a.reconnectOne(ctx, stored); res.Err != nil && !errors.Is(res.Err, context.Canceled) {
				logging.Warn("StateSync", "Could not reconnect %s: %v", id, res.Err)
			}
		}
	}
}

// StartWatching reloads credentials when another process rewrites the
// state file. onSync, if set, runs after every reload.
func (a *Application) StartWatching(ctx context.Context, onSync func()) error {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()

	if a.watcher != nil {
		return nil
	}
	a.watcher = config.NewStateWatcher(config.StateWatcherConfig{
		Path: a.services.State.Path(),
		OnChange: func() {
			a.syncFromState(ctx)
			if onSync != nil {
				onSync()
			}
		},
	})
	return a.watcher.Start()
}

// StopWatching stops the state watcher, if running.
func (a *Application) StopWatching() {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()

	if a.watcher != nil {
		a.watcher.Stop()
		a.watcher = nil
	}
}

func (a *Application) now() time.Time {
	if a.config.Clock != nil {
		return a.config.Clock.Now()
	}
	return time.Now()
}

