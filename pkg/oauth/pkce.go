package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

// CodeChallengeMethodS256 is the only PKCE method supported. The plain
// method is deliberately absent.
const CodeChallengeMethodS256 = "S256"

// stateBytes is the number of random bytes for the OAuth state parameter.
// 32 bytes encodes to 43 base64url characters.
const stateBytes = 32

// GenerateVerifier returns a new PKCE code verifier: 32 random bytes,
// base64url encoded without padding.
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// ChallengeFromVerifier derives the S256 code challenge for a verifier.
// The result is deterministic for a given verifier.
func ChallengeFromVerifier(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// GeneratePKCE generates a new verifier and its S256 challenge.
func GeneratePKCE() (*PKCEChallenge, error) {
	verifier := GenerateVerifier()
	if verifier == "" {
		return nil, fmt.Errorf("failed to generate PKCE verifier")
	}
	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       ChallengeFromVerifier(verifier),
		CodeChallengeMethod: CodeChallengeMethodS256,
	}, nil
}

// GenerateState generates a random state parameter used only to correlate
// the authorization callback with the flow that started it.
func GenerateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
