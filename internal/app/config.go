package app

import (
	"io"
	"net/http"

	"dayai/internal/config"
	"dayai/internal/instrumentation"
	authflow "dayai/internal/oauth"
	"dayai/internal/mcpclient"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of the configured level.
	Debug bool

	// Silent discards all log output.
	Silent bool

	// ConfigPath is the configuration directory. Empty means
	// config.GetDefaultConfigPath().
	ConfigPath string

	// NoBrowser prints the authorization URL instead of opening a browser.
	NoBrowser bool

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer

	// Settings, when set, is used instead of loading config.yaml.
	Settings *config.Config

	// OnAuthURL is called with the authorization URL of every login.
	OnAuthURL func(url string)

	// Overrides used by tests and embedders.
	HTTPClient    *http.Client
	Clock         authflow.Clock
	OpenBrowser   authflow.BrowserOpener
	ClientFactory mcpclient.ClientFactory
	Metrics       *instrumentation.Metrics
	Version       string
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
	}
}
