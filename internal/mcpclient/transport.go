package mcpclient

import (
	"io"
	"net/http"

	"dayai/pkg/oauth"
)

// statusTransport turns 401 responses into *HTTPStatusError. Without it the
// streamable-HTTP client reads the body of a rejected request as JSON-RPC.
type statusTransport struct {
	base http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	challenge := oauth.ParseWWWAuthenticateFromResponse(resp)
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Challenge: challenge}
}

// wrapHTTPClient returns a copy of hc whose transport reports 401s as
// errors. hc itself is left unchanged.
func wrapHTTPClient(hc *http.Client) *http.Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *hc
	wrapped.Transport = &statusTransport{base: base}
	return &wrapped
}
