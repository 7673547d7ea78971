package discovery

import (
	"net/url"
	"strings"

	"github.com/sells-group/compintel/internal/model"
)

// categoryKeywords map URL-path and anchor-text keywords to page
// categories. Order matters: the first matching category wins, so pricing
// outranks features for ambiguous paths like /plans-and-features.
var categoryKeywords = []struct {
	category model.PageCategory
	words    []string
}{
	{model.PageCategoryPricing, []string{
		"pricing", "price", "plans", "packages", "subscription", "cost", "buy", "purchase",
	}},
	{model.PageCategoryCareers, []string{
		"careers", "jobs", "hiring", "join-us", "work-with-us", "positions",
	}},
	{model.PageCategoryFeatures, []string{
		"features", "capabilities", "product", "products", "solutions", "services", "what-we-do", "platform",
	}},
	{model.PageCategoryBlog, []string{
		"blog", "news", "press", "articles", "insights", "announcements", "updates", "stories",
	}},
	{model.PageCategoryContact, []string{
		"contact", "support", "help", "get-in-touch",
	}},
	{model.PageCategoryAbout, []string{
		"about", "company", "who-we-are", "our-story", "mission",
	}},
}

// classifyPath maps a URL path to a page category by keyword. Returns
// unknown when nothing matches.
func classifyPath(rawURL string) model.PageCategory {
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.PageCategoryUnknown
	}
	return classifyText(strings.ToLower(u.Path))
}

// classifyText matches keywords against arbitrary text (a path or an
// anchor label).
func classifyText(text string) model.PageCategory {
	text = strings.ToLower(text)
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(text, w) {
				return ck.category
			}
		}
	}
	return model.PageCategoryUnknown
}

// normalizeURL canonicalizes a URL for page-set keying: lowercased scheme
// and host, fragment dropped, trailing slash trimmed.
func normalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return strings.TrimSpace(rawURL)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}
