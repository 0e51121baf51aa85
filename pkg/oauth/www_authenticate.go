package oauth

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// authParamPattern matches key="quoted value" and key=token pairs.
var authParamPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_-]*)\s*=\s*(?:"([^"]*)"|([^\s,]+))`)

// ParseWWWAuthenticate parses a WWW-Authenticate header value such as
//
//	Bearer realm="day.ai", error="invalid_token", error_description="expired"
//
// Only the first challenge is considered.
func ParseWWWAuthenticate(header string) (*AuthChallenge, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("empty WWW-Authenticate header")
	}

	scheme, params, _ := strings.Cut(header, " ")
	challenge := &AuthChallenge{Scheme: scheme}

	for _, m := range authParamPattern.FindAllStringSubmatch(params, -1) {
		value := m[2]
		if value == "" {
			value = m[3]
		}
		switch strings.ToLower(m[1]) {
		case "realm":
			challenge.Realm = value
		case "resource_metadata":
			challenge.ResourceMetadataURL = value
		case "scope":
			challenge.Scope = value
		case "error":
			challenge.Error = value
		case "error_description":
			challenge.ErrorDescription = value
		}
	}
	return challenge, nil
}

// ParseWWWAuthenticateFromResponse extracts the challenge of a 401 response.
// It returns nil when the response is not a 401 or carries no parseable header.
func ParseWWWAuthenticateFromResponse(resp *http.Response) *AuthChallenge {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return nil
	}
	challenge, err := ParseWWWAuthenticate(resp.Header.Get("WWW-Authenticate"))
	if err != nil {
		return nil
	}
	return challenge
}
