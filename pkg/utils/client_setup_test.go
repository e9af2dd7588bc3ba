package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportsSetHeaders(t *testing.T) {
	t.Parallel()

	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	do := func(c *http.Client) {
		resp, err := c.Get(srv.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	do(NewHTTPClientWithBasicAuth("ck_1", "cs_2", time.Second))
	req := &http.Request{Header: got}
	user, pass, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "ck_1", user)
	assert.Equal(t, "cs_2", pass)

	do(NewHTTPClientWithBearerToken("tvly-abc", time.Second))
	assert.Equal(t, "Bearer tvly-abc", got.Get("Authorization"))

	do(NewHTTPClientWithUserAgent("Mozilla/5.0", time.Second))
	assert.Equal(t, "Mozilla/5.0", got.Get("User-Agent"))
}

func TestDefaultTimeout(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultTimeout, NewHTTPClientWithBasicAuth("k", "s", 0).Timeout)
	assert.Equal(t, 3*time.Second, NewHTTPClientWithUserAgent("x", 3*time.Second).Timeout)
}
