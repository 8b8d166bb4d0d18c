package fetcher

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/civicgraph/harvester/internal/crawler"
)

// BuildSnapshot parses raw HTML into the snapshot the controller consumes:
// title, visible text, and absolutized same-protocol links.
func BuildSnapshot(pageURL string, html string, fetchedAt time.Time) (crawler.PageSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return crawler.PageSnapshot{}, fmt.Errorf("parse page html: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return crawler.PageSnapshot{}, fmt.Errorf("parse page url: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	return crawler.PageSnapshot{
		URL:       pageURL,
		Title:     strings.TrimSpace(doc.Find("title").First().Text()),
		HTML:      html,
		Text:      collapseWhitespace(doc.Find("body").Text()),
		Links:     extractLinks(doc, base),
		FetchedAt: fetchedAt,
	}, nil
}

func extractLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		link := abs.String()
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
