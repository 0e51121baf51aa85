package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dayai/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/dayai"
	configFileName = "config.yaml"
	stateFileName  = "state.json"
	notesFileName  = "notes.json"
)

// Environment variables that override the config file.
const (
	EnvConfigDir    = "DAYAI_CONFIG_DIR"
	EnvLogLevel     = "DAYAI_LOG_LEVEL"
	EnvCallbackPort = "DAYAI_CALLBACK_PORT"
	EnvBaseURL      = "DAYAI_BASE_URL"
)

// osUserHomeDir is swapped in tests.
var osUserHomeDir = os.UserHomeDir

// GetDefaultConfigPath returns $DAYAI_CONFIG_DIR, or ~/.config/dayai.
func GetDefaultConfigPath() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// StatePath returns the location of the persisted credential state.
func StatePath(configPath string) string {
	return filepath.Join(configPath, stateFileName)
}

// LoadConfig loads config.yaml from configPath over the defaults, applies
// environment overrides and validates the result. A missing file is not an
// error.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, ConfigurationError{
			FilePath:  configFilePath,
			ErrorType: ErrorTypeIO,
			Message:   err.Error(),
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, newParseError(configFilePath, err)
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	if err := applyEnvOverrides(&config); err != nil {
		return Config{}, err
	}
	normalize(&config, configPath)

	if err := config.Validate(); err != nil {
		return Config{}, ConfigurationError{
			FilePath:    configFilePath,
			ErrorType:   ErrorTypeValidation,
			Message:     err.Error(),
			Suggestions: []string{"Remove the invalid entries to fall back to the defaults"},
		}
	}
	return config, nil
}

func applyEnvOverrides(config *Config) error {
	if level := os.Getenv(EnvLogLevel); level != "" {
		config.LogLevel = level
	}

	if raw := os.Getenv(EnvCallbackPort); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return ConfigurationError{
				ErrorType: ErrorTypeEnvironment,
				Message:   fmt.Sprintf("%s=%q is not a port number", EnvCallbackPort, raw),
			}
		}
		config.Callback.Port = port
	}

	if baseURL := os.Getenv(EnvBaseURL); baseURL != "" {
		for i := range config.Servers {
			if config.Servers[i].ID == DefaultServerID {
				config.Servers[i].rebase(baseURL)
				logging.Info("ConfigLoader", "Using %s for %s", baseURL, DefaultServerID)
			}
		}
	}
	return nil
}

// normalize fills derived values that depend on the whole config.
func normalize(config *Config, configPath string) {
	if config.ClientName == "" {
		config.ClientName = DefaultClientName
	}
	if config.Callback.Host == "" {
		config.Callback.Host = DefaultCallbackHost
	}
	if config.Callback.Path == "" {
		config.Callback.Path = DefaultCallbackPath
	}
	if config.Callback.Timeout == 0 {
		config.Callback.Timeout = DefaultCallbackTimeout
	}

	for i := range config.Servers {
		s := &config.Servers[i]
		s.deriveEndpoints()
		if len(s.Scopes) == 0 {
			s.Scopes = append([]string(nil), DefaultScopes...)
		}
	}

	switch {
	case config.NotesFile == "":
		config.NotesFile = filepath.Join(configPath, notesFileName)
	case strings.HasPrefix(config.NotesFile, "~/"):
		if home, err := osUserHomeDir(); err == nil {
			config.NotesFile = filepath.Join(home, config.NotesFile[2:])
		}
	}
}
