package app

import (
	"github.com/mark3labs/mcp-go/mcp"

	"dayai/internal/config"
	"dayai/internal/dispatch"
	"dayai/internal/instrumentation"
	"dayai/internal/mcpclient"
	"dayai/internal/notes"
	authflow "dayai/internal/oauth"
	"dayai/pkg/logging"
	"dayai/pkg/oauth"
)

// Services holds the components shared by every command.
//
// Dependencies are created leaf first: the OAuth client, the state store,
// the flow coordinator and refresher built on them, the session manager
// that persists refreshed tokens through the state store, and finally the
// dispatcher that fronts the manager and the local note tools.
type Services struct {
	Settings config.Config

	OAuth       *oauth.Client
	State       *config.StateStore
	Coordinator *authflow.Coordinator
	Refresher   *authflow.Refresher
	Manager     *mcpclient.Manager
	Notes       *notes.Store
	Dispatcher  *dispatch.Dispatcher
	Metrics     *instrumentation.Metrics
}

// InitializeServices wires the components for settings loaded from
// configPath.
func InitializeServices(cfg *Config, settings config.Config, configPath string) (*Services, error) {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = instrumentation.NewNoop()
	}

	var clientOpts []oauth.ClientOption
	if cfg.HTTPClient != nil {
		clientOpts = append(clientOpts, oauth.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Clock != nil {
		clientOpts = append(clientOpts, oauth.WithClock(cfg.Clock.Now))
	}
	oauthClient := oauth.NewClient(clientOpts...)

	state := config.NewStateStore(config.StatePath(configPath))

	opener := cfg.OpenBrowser
	if cfg.NoBrowser {
		opener = authflow.NoBrowser
	}
	coordinator := authflow.NewCoordinator(authflow.CoordinatorConfig{
		Client:      oauthClient,
		Host:        settings.Callback.Host,
		Port:        settings.Callback.Port,
		Path:        settings.Callback.Path,
		Timeout:     settings.Callback.Timeout,
		OpenBrowser: opener,
		OnAuthURL:   cfg.OnAuthURL,
		Clock:       cfg.Clock,
		Metrics:     metrics,
		AppName:     "dayai",
	})

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	manager := mcpclient.NewManager(mcpclient.Options{
		HTTPClient:    cfg.HTTPClient,
		Clock:         cfg.Clock,
		Persist:       state.PersistTokens,
		ClientFactory: cfg.ClientFactory,
		Metrics:       metrics,
		ClientInfo:    mcp.Implementation{Name: "dayai", Version: version},
	})

	noteStore := notes.NewStore(settings.NotesFile)

	logging.Debug("Services", "State file %s, notes file %s", state.Path(), noteStore.Path())

	return &Services{
		Settings:    settings,
		OAuth:       oauthClient,
		State:       state,
		Coordinator: coordinator,
		Refresher:   authflow.NewRefresher(oauthClient, state.PersistTokens, metrics),
		Manager:     manager,
		Notes:       noteStore,
		Dispatcher:  dispatch.New(manager, notes.Tools(noteStore)...),
		Metrics:     metrics,
	}, nil
}
