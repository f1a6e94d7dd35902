package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrNoTitle is returned when the page has no usable title
var ErrNoTitle = errors.New("no title found")

const maxBodySize = 2 * 1024 * 1024

// Fetcher resolves page titles over HTTP
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// New creates a Fetcher whose requests time out after timeout
func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: "bookmarks/1.0 (title-resolver)",
	}
}

// NewWithClient creates a Fetcher using the given HTTP client
func NewWithClient(client *http.Client) *Fetcher {
	return &Fetcher{client: client, userAgent: "bookmarks/1.0 (title-resolver)"}
}

// Title fetches rawURL and returns the text of its <title> element
func (f *Fetcher) Title(ctx context.Context, rawURL string) (string, error) {
	// Validate URL
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" {
		u, err = url.Parse("https://" + strings.TrimSpace(rawURL))
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	title, err := ExtractTitle(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", err
	}
	return title, nil
}

// ExtractTitle parses an HTML document and returns its first non-empty
// <title>, with whitespace collapsed. Pages without one fall back to their
// og:title metadata.
func ExtractTitle(r io.Reader) (string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	var title string
	doc.Find("title").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		// <title> inside inline SVG is not the page title
		if s.ParentsFiltered("svg").Length() > 0 {
			return true
		}
		title = collapse(s.Text())
		return title == ""
	})
	if title != "" {
		return title, nil
	}

	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if title = collapse(og); title != "" {
			return title, nil
		}
	}
	return "", ErrNoTitle
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
