package discovery

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// link is an internal hyperlink with its anchor label. The label
// participates in keyword classification alongside the path.
type link struct {
	URL    string
	Anchor string
}

// extractLinks pulls same-host links out of an HTML document, resolved
// against base and deduplicated by normalized URL.
func extractLinks(html string, base *url.URL) []link {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []link

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") ||
			strings.HasPrefix(href, "javascript:") {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if !strings.EqualFold(resolved.Host, base.Host) {
			return
		}

		norm := normalizeURL(resolved.String())
		if norm == "" || seen[norm] {
			return
		}
		seen[norm] = true

		links = append(links, link{
			URL:    norm,
			Anchor: strings.TrimSpace(sel.Text()),
		})
	})

	return links
}
