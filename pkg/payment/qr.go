// Package payment extracts the MoMo QR image from a WooCommerce payment page.
//
// The extraction depends on the markup of a third-party payment plugin and
// is best effort: a page redesign may turn hits into HeuristicExhausted.
package payment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"github.com/khanhduypunnd/muse-mcp/pkg/models"
	"github.com/khanhduypunnd/muse-mcp/pkg/utils"
)

// BrowserUserAgent keeps trivial bot filters from rejecting the fetch.
const BrowserUserAgent = "Mozilla/5.0"

// QRContainerID is the id of the element the MoMo plugin renders the QR into.
const QRContainerID = "qrcode"

// DefaultSourceHints are substrings of image URLs that look like payment QR assets.
var DefaultSourceHints = []string{"/wp-json/bck/", "momo", "qr"}

// QRLocator finds the QR image URL on a payment page.
type QRLocator interface {
	LocateQR(ctx context.Context, pageURL string) (string, error)
}

// Scraper is the HTML-scraping QRLocator.
type Scraper struct {
	HTTPClient  *http.Client
	SourceHints []string
}

type Option func(*Scraper)

func WithHTTPClient(h *http.Client) Option {
	return func(s *Scraper) {
		if h != nil {
			s.HTTPClient = h
		}
	}
}

func NewScraper(opts ...Option) *Scraper {
	s := &Scraper{
		HTTPClient:  utils.NewHTTPClientWithUserAgent(BrowserUserAgent, utils.DefaultTimeout),
		SourceHints: DefaultSourceHints,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

var _ QRLocator = (*Scraper)(nil)

// LocateQR fetches pageURL and returns the src of the QR image.
func (s *Scraper) LocateQR(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", models.Transport(models.StagePaymentPage, err)
	}
	req.Header.Set("User-Agent", BrowserUserAgent)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return "", models.Transport(models.StagePaymentPage, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", models.Upstream(models.StagePaymentPage, resp.StatusCode, "", nil)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", models.Transport(models.StagePaymentPage, fmt.Errorf("parse page: %w", err))
	}

	if src, ok := FindQRImage(doc, s.SourceHints); ok {
		return src, nil
	}
	return "", models.HeuristicExhausted(models.StagePaymentPage, "no QR code found on payment page")
}

// FindQRImage applies the two-tier heuristic to a parsed page: an <img>
// inside the first <div id="qrcode">, else the first <img> whose src
// contains one of hints.
func FindQRImage(doc *html.Node, hints []string) (string, bool) {
	if container := findFirst(doc, func(n *html.Node) bool {
		return isElement(n, "div") && attr(n, "id") == QRContainerID
	}); container != nil {
		if img := findFirst(container, func(n *html.Node) bool { return isElement(n, "img") }); img != nil {
			if src := attr(img, "src"); src != "" {
				return src, true
			}
		}
	}

	var found string
	walk(doc, func(n *html.Node) bool {
		if !isElement(n, "img") {
			return true
		}
		src := attr(n, "src")
		for _, hint := range hints {
			if strings.Contains(src, hint) {
				found = src
				return false
			}
		}
		return true
	})
	return found, found != ""
}

// walk visits n and its descendants in document order until visit returns false.
func walk(n *html.Node, visit func(*html.Node) bool) bool {
	if !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit) {
			return false
		}
	}
	return true
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	var hit *html.Node
	walk(n, func(c *html.Node) bool {
		if c != n && match(c) {
			hit = c
			return false
		}
		return true
	})
	return hit
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
