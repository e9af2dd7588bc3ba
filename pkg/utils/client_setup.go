package utils

import (
	"net/http"
	"time"
)

const DefaultTimeout = 15 * time.Second

type bearerTokenTransport struct {
	base  http.RoundTripper
	token string
}

func (t *bearerTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return t.base.RoundTrip(req)
}

type basicAuthTransport struct {
	base     http.RoundTripper
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(req)
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}

func withTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultTimeout
	}
	return timeout
}

func NewHTTPClientWithBearerToken(token string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: withTimeout(timeout),
		Transport: &bearerTokenTransport{
			base:  http.DefaultTransport,
			token: token,
		},
	}
}

// NewHTTPClientWithBasicAuth returns a client that signs every request with
// the WooCommerce consumer key and secret.
func NewHTTPClientWithBasicAuth(key, secret string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: withTimeout(timeout),
		Transport: &basicAuthTransport{
			base:     http.DefaultTransport,
			username: key,
			password: secret,
		},
	}
}

func NewHTTPClientWithUserAgent(userAgent string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: withTimeout(timeout),
		Transport: &userAgentTransport{
			base:      http.DefaultTransport,
			userAgent: userAgent,
		},
	}
}
