package complaints

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// stripMarkup extracts visible text from an HTML document, dropping
// script/style and chrome elements. On parse failure the raw input is
// returned so a fetched plain-text page still flows through.
func stripMarkup(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style, noscript, nav, header, footer, iframe").Remove()
	return doc.Text()
}

// normalizeText canonicalizes complaint text before shingling: NFKC
// fold, lowercase, whitespace collapsed to single spaces. Smart quotes,
// fullwidth forms and the like compare equal after this.
func normalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

// truncateText cuts s to at most max bytes without splitting a rune.
func truncateText(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
