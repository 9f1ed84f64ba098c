package fetcher

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxExtractedImages caps ExtractImageURLs output.
const maxExtractedImages = 12

// imageContainerSelectors are common content-image locations, tried in
// priority order after meta tags.
var imageContainerSelectors = []string{
	"table.infobox img",
	"article img",
	"main img",
	"#content img",
	"#main img",
}

// ExtractImageURLs pulls plausible image URLs from a raw HTML page,
// ordered by rough priority: OpenGraph/Twitter meta images first, then
// images in common content containers, then any img tag. Results are
// unique absolute URLs; data: URIs and SVGs are dropped.
func ExtractImageURLs(html, pageURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var results []string
	add := func(raw string) {
		normalized := normalizeImageURL(raw, base)
		if normalized == "" || seen[normalized] {
			return
		}
		seen[normalized] = true
		results = append(results, normalized)
	}

	for _, prop := range []string{"og:image", "twitter:image", "og:image:url"} {
		doc.Find(`meta[property="` + prop + `"], meta[name="` + prop + `"]`).Each(func(_ int, sel *goquery.Selection) {
			content, _ := sel.Attr("content")
			add(content)
		})
	}

	for _, selector := range imageContainerSelectors {
		if len(results) >= maxExtractedImages {
			break
		}
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			src, _ := sel.Attr("src")
			add(src)
		})
	}

	if len(results) < maxExtractedImages {
		doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
			src, _ := sel.Attr("src")
			add(src)
		})
	}

	if len(results) > maxExtractedImages {
		results = results[:maxExtractedImages]
	}
	return results
}

func normalizeImageURL(raw string, base *url.URL) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "data:") {
		return ""
	}
	if strings.HasSuffix(strings.ToLower(trimmed), ".svg") {
		return ""
	}
	resolved, err := base.Parse(trimmed)
	if err != nil {
		return ""
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}
