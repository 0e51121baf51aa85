package app

import (
	"fmt"
	"io"
	"os"
	"sync"

	"dayai/internal/config"
	"dayai/pkg/logging"
)

// Application is the shared core every dayai command runs on. It owns the
// loaded settings, the persisted state and the live MCP sessions.
//
// Example usage:
//
//	application, err := app.NewApplication(app.NewConfig(false, ""))
//	if err != nil {
//	    return err
//	}
//	defer application.Close()
//	application.Reconnect(ctx)
type Application struct {
	config     *Config
	configPath string
	services   *Services

	watchMu sync.Mutex
	watcher *config.StateWatcher
}

// NewApplication loads configuration, initializes logging and wires all
// services. Nothing touches the network until a command does.
func NewApplication(cfg *Config) (*Application, error) {
	configPath := cfg.ConfigPath
	if configPath == "" {
		var err error
		configPath, err = config.GetDefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	var settings config.Config
	if cfg.Settings != nil {
		settings = *cfg.Settings
	} else {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load dayai configuration from %s: %w", configPath, err)
		}
		settings = loaded
	}

	initLogging(cfg, settings)

	services, err := InitializeServices(cfg, settings, configPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:     cfg,
		configPath: configPath,
		services:   services,
	}, nil
}

func initLogging(cfg *Config, settings config.Config) {
	level, _ := logging.ParseLevel(settings.LogLevel)
	if cfg.Debug {
		level = logging.LevelDebug
	}

	var out io.Writer = os.Stderr
	if cfg.LogOutput != nil {
		out = cfg.LogOutput
	}
	if cfg.Silent {
		out = io.Discard
	}
	logging.InitForCLI(level, out)
}

// Services exposes the wired components.
func (a *Application) Services() *Services { return a.services }

// Settings returns the effective configuration.
func (a *Application) Settings() config.Config { return a.services.Settings }

// ConfigPath returns the configuration directory in use.
func (a *Application) ConfigPath() string { return a.configPath }

// Close stops the state watcher and closes every MCP session.
func (a *Application) Close() {
	a.StopWatching()
	a.services.Manager.DisconnectAll()
}

// server resolves a server ID, falling back to the first configured server
// when id is empty.
func (a *Application) server(id string) (config.ServerConfig, error) {
	if id == "" {
		if s, ok := a.services.Settings.DefaultServer(); ok {
			return s, nil
		}
		return config.ServerConfig{}, fmt.Errorf("no servers configured")
	}
	if s, ok := a.services.Settings.Server(id); ok {
		return s, nil
	}
	return config.ServerConfig{}, &UnknownServerError{ServerID: id}
}

// UnknownServerError is returned for a server ID missing from the
// configuration.
type UnknownServerError struct {
	ServerID string
}

func (e *UnknownServerError) Error() string {
	return fmt.Sprintf("server %q is not configured", e.ServerID)
}
