package oauth

import (
	"errors"
	"fmt"
	"time"
)

// ErrFlowInProgress is returned when an authorization flow is started while
// another one still owns the callback listener.
var ErrFlowInProgress = errors.New("an authorization flow is already in progress")

// RegistrationError is returned when the registration endpoint rejects a
// dynamic client registration request.
type RegistrationError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RegistrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("client registration failed: %v", e.Err)
	}
	return fmt.Sprintf("client registration failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// AuthorizationError is returned when the authorization server redirects
// back with an error parameter, e.g. because the user denied consent, or
// when the callback carries no code.
type AuthorizationError struct {
	Code        string
	Description string
}

func (e *AuthorizationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed: %s: %s", e.Code, e.Description)
	}
	return "authorization failed: " + e.Code
}

// CsrfError is returned when the state parameter of a callback does not
// match the state of the running flow. The flow is aborted without
// exchanging the code.
type CsrfError struct{}

func (e *CsrfError) Error() string {
	return "authorization callback state mismatch: possible CSRF attack"
}

// FlowTimeoutError is returned when no valid callback arrives in time.
type FlowTimeoutError struct {
	After time.Duration
}

func (e *FlowTimeoutError) Error() string {
	return fmt.Sprintf("authorization flow timed out after %s", e.After)
}

// PortInUseError is returned when the callback listener cannot bind its
// fixed address.
type PortInUseError struct {
	Addr string
	Err  error
}

func (e *PortInUseError) Error() string {
	return fmt.Sprintf("callback address %s is unavailable (another login may be running): %v", e.Addr, e.Err)
}

func (e *PortInUseError) Unwrap() error { return e.Err }

// TokenExchangeError is returned when the token endpoint rejects an
// authorization code exchange.
type TokenExchangeError struct {
	StatusCode  int
	ErrorCode   string
	Description string
	Err         error
}

func (e *TokenExchangeError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	}
	if e.ErrorCode != "" {
		return fmt.Sprintf("token exchange failed with status %d: %s %s", e.StatusCode, e.ErrorCode, e.Description)
	}
	return fmt.Sprintf("token exchange failed with status %d", e.StatusCode)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// RefreshReason classifies a refresh failure.
type RefreshReason int

const (
	// RefreshNoToken means there is no refresh token; the user has to
	// authorize again.
	RefreshNoToken RefreshReason = iota
	// RefreshRejected means the token endpoint refused the refresh token.
	RefreshRejected
	// RefreshUnavailable means the token endpoint could not be reached.
	// Unlike the other reasons it is not terminal.
	RefreshUnavailable
)

func (r RefreshReason) String() string {
	switch r {
	case RefreshNoToken:
		return "no_refresh_token"
	case RefreshRejected:
		return "rejected"
	case RefreshUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// RefreshError is returned when a refresh grant cannot be completed.
type RefreshError struct {
	Reason     RefreshReason
	StatusCode int
	ErrorCode  string
	Err        error
}

func (e *RefreshError) Error() string {
	switch e.Reason {
	case RefreshNoToken:
		return "token refresh failed: no refresh token available, re-authorization required"
	case RefreshRejected:
		if e.StatusCode != 0 {
			return fmt.Sprintf("token refresh rejected with status %d %s", e.StatusCode, e.ErrorCode)
		}
		return fmt.Sprintf("token refresh rejected: %v", e.Err)
	default:
		return fmt.Sprintf("token refresh failed: %v", e.Err)
	}
}

func (e *RefreshError) Unwrap() error { return e.Err }

// Terminal reports whether the failure requires a new authorization.
func (e *RefreshError) Terminal() bool {
	return e.Reason == RefreshNoToken || e.Reason == RefreshRejected
}

// IsTerminalRefresh reports whether err contains a RefreshError that
// cannot be recovered without authorizing again.
func IsTerminalRefresh(err error) bool {
	var rErr *RefreshError
	return errors.As(err, &rErr) && rErr.Terminal()
}

// IsFlowFailure reports whether err ended an authorization flow:
// authorization denied, CSRF, timeout, or a rejected code exchange.
func IsFlowFailure(err error) bool {
	var (
		authErr     *AuthorizationError
		csrfErr     *CsrfError
		timeoutErr  *FlowTimeoutError
		exchangeErr *TokenExchangeError
		portErr     *PortInUseError
	)
	return errors.As(err, &authErr) ||
		errors.As(err, &csrfErr) ||
		errors.As(err, &timeoutErr) ||
		errors.As(err, &exchangeErr) ||
		errors.As(err, &portErr) ||
		errors.Is(err, ErrFlowInProgress)
}
