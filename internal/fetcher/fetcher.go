// Package fetcher retrieves web pages and prepares them for the crawl
// engine and content generation: raw HTML, cleaned HTML with chrome
// stripped, or a markdown rendering.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/loreforge/loreforge/internal/platform/logger"
)

// Format selects the output representation of a fetched page.
type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

var (
	// ErrBadStatus indicates a non-2xx response.
	ErrBadStatus = errors.New("fetch returned non-success status")

	// ErrNotHTML indicates the response body was not an HTML document.
	ErrNotHTML = errors.New("fetch returned non-HTML content")
)

// Options controls how a fetched page is post-processed.
type Options struct {
	Format Format

	// Clean strips navigation, scripts, forms and other page chrome,
	// keeping the main content region when one can be identified.
	Clean bool
}

// Fetcher retrieves page content.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts Options) (string, error)
}

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "loreforge/1.0 (+https://github.com/loreforge/loreforge)"
	maxBodyBytes   = 10 << 20
)

// HTTPFetcher implements Fetcher over net/http.
type HTTPFetcher struct {
	client *http.Client
	logger *slog.Logger
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher with a shared HTTP client.
func NewHTTPFetcher(log *slog.Logger) *HTTPFetcher {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: defaultTimeout},
		logger: log.With(slog.String("component", "fetcher")),
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, opts Options) (string, error) {
	log := logger.FromContextOrDefault(ctx, f.logger)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %s returned %d", ErrBadStatus, url, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "text/html") {
		return "", fmt.Errorf("%w: %s is %s", ErrNotHTML, url, contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	html := string(body)

	log.Debug("fetched page",
		slog.String("url", url),
		slog.Int("bytes", len(html)))

	return Transform(html, opts)
}

// Transform applies the requested cleaning and format conversion to an
// HTML document. Split out from Fetch so already-cached content can be
// re-processed without a network round trip.
func Transform(html string, opts Options) (string, error) {
	if opts.Clean {
		cleaned, err := CleanHTML(html)
		if err != nil {
			return "", err
		}
		html = cleaned
	}
	if opts.Format == FormatMarkdown {
		markdown, err := htmltomarkdown.ConvertString(html)
		if err != nil {
			return "", fmt.Errorf("failed to convert to markdown: %w", err)
		}
		return strings.TrimSpace(markdown), nil
	}
	return strings.TrimSpace(html), nil
}

// mainContentSelectors are tried in order; the first selector matching
// exactly one node is taken as the page's content region.
var mainContentSelectors = []string{
	"article", "#article", ".article",
	"main", "#main", ".main",
	`[role="main"]`,
	"#content", ".content", ".post",
}

var chromeSelectors = strings.Join([]string{
	"header", "footer", "nav", `[role="navigation"]`,
	".sidebar", `[role="complementary"]`,
	".nav", ".menu", ".header", ".footer",
	".advertisement", ".ads", ".cookie-notice", ".social-share",
	".related-posts", ".comments", "#comments",
	".popup", ".modal", ".overlay", ".banner",
	".alert", ".notification", ".subscription", ".newsletter",
	".share-buttons",
	"script", "style", "noscript", "iframe",
	"button", "form", "input", "textarea", "select",
	".noprint",
}, ", ")

// CleanHTML strips page chrome from a document, preferring the main
// content region when exactly one matching container exists.
func CleanHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	target := doc.Find("body")
	if target.Length() == 0 {
		target = doc.Selection
	}
	for _, selector := range mainContentSelectors {
		if found := doc.Find(selector); found.Length() == 1 {
			target = found
			break
		}
	}

	target.Find(chromeSelectors).Remove()

	// Strip scripting and presentation attributes; hrefs survive so
	// link extraction still works on cleaned content.
	target.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, node := range sel.Nodes {
			kept := node.Attr[:0]
			for _, attr := range node.Attr {
				if strings.HasPrefix(attr.Key, "on") ||
					strings.HasPrefix(attr.Key, "aria-") ||
					strings.HasPrefix(attr.Key, "data-") ||
					strings.HasPrefix(attr.Key, "role") ||
					attr.Key == "style" || attr.Key == "target" || attr.Key == "src" {
					continue
				}
				kept = append(kept, attr)
			}
			node.Attr = kept
		}
	})

	cleaned, err := target.Html()
	if err != nil {
		return "", fmt.Errorf("failed to serialize cleaned HTML: %w", err)
	}
	return strings.TrimSpace(cleaned), nil
}
