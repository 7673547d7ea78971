package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/compintel/internal/model"
)

// Document pairs a discovered page with its fetched content.
type Document struct {
	Page model.DiscoveredPage
	Doc  model.RawDocument
}

// relevantCategories maps each analysis type to the page categories it
// reads, in relevance order. Pricing pages carry the most signal for
// both pricing and monetization; vision reads forward-looking pages.
func relevantCategories(typ model.AnalysisType) []model.PageCategory {
	switch typ {
	case model.AnalysisTypePricing:
		return []model.PageCategory{model.PageCategoryPricing, model.PageCategoryFeatures}
	case model.AnalysisTypeMonetization:
		return []model.PageCategory{model.PageCategoryPricing, model.PageCategoryFeatures}
	case model.AnalysisTypeVision:
		return []model.PageCategory{model.PageCategoryCareers, model.PageCategoryBlog, model.PageCategoryAbout}
	}
	return nil
}

// selectDocuments filters docs to the categories relevant for the
// analysis type, most relevant category first.
func selectDocuments(typ model.AnalysisType, docs []Document) []Document {
	var out []Document
	for _, cat := range relevantCategories(typ) {
		for _, d := range docs {
			if d.Page.Category == cat {
				out = append(out, d)
			}
		}
	}
	return out
}

// buildContext renders selected documents into the prompt context,
// each stripped to text and capped so the whole context stays within
// budget. Most relevant documents come first and survive truncation.
func buildContext(docs []Document, budget int) string {
	var sb strings.Builder
	remaining := budget
	for _, d := range docs {
		if remaining <= 0 {
			break
		}
		text := pageText(d.Doc.Content)
		header := fmt.Sprintf("--- document: %s (category: %s) ---\n", d.Doc.SourceURL, d.Page.Category)
		if len(header)+len(text) > remaining {
			if len(header) >= remaining {
				break
			}
			text = truncateRuneSafe(text, remaining-len(header))
		}
		sb.WriteString(header)
		sb.WriteString(text)
		sb.WriteString("\n\n")
		remaining -= len(header) + len(text) + 2
	}
	return sb.String()
}

// truncateRuneSafe cuts s to at most max bytes without splitting a rune.
func truncateRuneSafe(s string, max int) string {
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

// pageText strips markup from an HTML document, collapsing whitespace.
// Non-HTML content passes through unchanged.
func pageText(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return strings.Join(strings.Fields(content), " ")
	}
	doc.Find("script, style, noscript, iframe").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
