package config

import (
	"fmt"
	"net/url"
	"strings"

	"dayai/pkg/logging"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// Validate checks the port range, the log level, and that every server has
// a unique ID and absolute endpoints.
func (c Config) Validate() error {
	var errs ValidationErrors

	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		errs.Add("logLevel", "must be one of: debug, info, warn, error", c.LogLevel)
	}

	// Port 0 asks the OS for an ephemeral port.
	if c.Callback.Port < 0 || c.Callback.Port > 65535 {
		errs.Add("callback.port", "must be between 0 and 65535", c.Callback.Port)
	}
	if c.Callback.Path != "" && !strings.HasPrefix(c.Callback.Path, "/") {
		errs.Add("callback.path", "must start with /", c.Callback.Path)
	}
	if c.Callback.Timeout < 0 {
		errs.Add("callback.timeout", "must not be negative", c.Callback.Timeout)
	}

	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		prefix := fmt.Sprintf("servers[%d]", i)
		if strings.TrimSpace(s.ID) == "" {
			errs.Add(prefix+".id", "is required")
			continue
		}
		if strings.Contains(s.ID, "__") {
			errs.Add(prefix+".id", "must not contain \"__\"", s.ID)
		}
		if seen[s.ID] {
			errs.Add(prefix+".id", "is duplicated", s.ID)
		}
		seen[s.ID] = true

		if s.Issuer != "" {
			validateURL(&errs, prefix+".issuer", s.Issuer)
		}
		endpoints := []struct {
			field, value string
			required     bool
		}{
			{"mcpEndpoint", s.MCPEndpoint, true},
			{"authEndpoint", s.AuthEndpoint, s.Issuer == ""},
			{"tokenEndpoint", s.TokenEndpoint, s.Issuer == ""},
			{"registrationEndpoint", s.RegistrationEndpoint, false},
			{"revocationEndpoint", s.RevocationEndpoint, false},
		}
		for _, e := range endpoints {
			if e.value == "" {
				if e.required {
					errs.Add(prefix+"."+e.field, "is required (or set baseUrl)")
				}
				continue
			}
			validateURL(&errs, prefix+"."+e.field, e.value)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateURL(errs *ValidationErrors, field, value string) {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		errs.Add(field, "must be an absolute http(s) URL", value)
	}
}
