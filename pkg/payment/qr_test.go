package payment

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/khanhduypunnd/muse-mcp/pkg/models"
)

func pageServer(t *testing.T, status int, page string) (*httptest.Server, *string) {
	t.Helper()
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, page)
	}))
	t.Cleanup(srv.Close)
	return srv, &ua
}

func TestLocateQRContainer(t *testing.T) {
	t.Parallel()

	srv, ua := pageServer(t, http.StatusOK, `<html><body>
		<img src="https://cdn.example/qr-banner.png">
		<div id="qrcode"><span><img src="https://museperfume.vn/wp-json/bck/qr?order=42"></span></div>
	</body></html>`)

	src, err := NewScraper().LocateQR(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://museperfume.vn/wp-json/bck/qr?order=42", src)
	assert.Equal(t, BrowserUserAgent, *ua)
}

func TestLocateQRFallbackScan(t *testing.T) {
	t.Parallel()

	srv, _ := pageServer(t, http.StatusOK, `<html><body>
		<div id="qrcode"><img alt="no source"></div>
		<img src="/logo.png">
		<img src="https://cdn.example/momo-pay.png">
		<img src="https://cdn.example/qr.png">
	</body></html>`)

	src, err := NewScraper().LocateQR(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/momo-pay.png", src)
}

func TestLocateQRNotFound(t *testing.T) {
	t.Parallel()

	srv, _ := pageServer(t, http.StatusOK, `<html><body><img src="/logo.png"><p>Thanks</p></body></html>`)

	for i := 0; i < 2; i++ {
		_, err := NewScraper().LocateQR(context.Background(), srv.URL)
		assert.ErrorIs(t, err, models.ErrHeuristicExhausted)
	}
}

func TestLocateQRBadStatus(t *testing.T) {
	t.Parallel()

	srv, _ := pageServer(t, http.StatusForbidden, "blocked")

	_, err := NewScraper().LocateQR(context.Background(), srv.URL)
	var e *models.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, models.KindUpstream, e.Kind)
	assert.Equal(t, http.StatusForbidden, e.StatusCode)
}

func TestLocateQRTransportError(t *testing.T) {
	t.Parallel()

	_, err := NewScraper().LocateQR(context.Background(), "http://127.0.0.1:1/unreachable")
	assert.ErrorIs(t, err, models.ErrTransport)

	_, err = NewScraper().LocateQR(context.Background(), "::not a url")
	assert.ErrorIs(t, err, models.ErrTransport)
}

func TestFindQRImageCustomHints(t *testing.T) {
	t.Parallel()

	doc, err := html.Parse(strings.NewReader(`<img src="/a.png"><img src="/vnpay/code.png">`))
	require.NoError(t, err)

	_, ok := FindQRImage(doc, DefaultSourceHints)
	assert.False(t, ok)

	src, ok := FindQRImage(doc, []string{"vnpay"})
	require.True(t, ok)
	assert.Equal(t, "/vnpay/code.png", src)
}
