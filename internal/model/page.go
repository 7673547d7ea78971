package model

// PageCategory classifies a discovered page by its commercial relevance.
type PageCategory string

const (
	PageCategoryPricing  PageCategory = "pricing"
	PageCategoryFeatures PageCategory = "features"
	PageCategoryBlog     PageCategory = "blog"
	PageCategoryCareers  PageCategory = "careers"
	PageCategoryContact  PageCategory = "contact"
	PageCategoryAbout    PageCategory = "about"
	PageCategoryUnknown  PageCategory = "unknown"
)

// AllPageCategories returns all defined page categories.
func AllPageCategories() []PageCategory {
	return []PageCategory{
		PageCategoryPricing,
		PageCategoryFeatures,
		PageCategoryBlog,
		PageCategoryCareers,
		PageCategoryContact,
		PageCategoryAbout,
		PageCategoryUnknown,
	}
}

// HighValueCategories are the categories that make a discovery run usable.
// A discovery that finds none of these is flagged incomplete.
func HighValueCategories() []PageCategory {
	return []PageCategory{PageCategoryPricing, PageCategoryFeatures}
}

// DiscoveryMethod records how a page was found.
type DiscoveryMethod string

const (
	DiscoveryMethodSitemap     DiscoveryMethod = "sitemap"
	DiscoveryMethodLinkPattern DiscoveryMethod = "link-pattern"
	DiscoveryMethodManual      DiscoveryMethod = "manual-override"
)

// DiscoveredPage is a classified commercial page on the competitor's site.
// Pages are keyed by normalized URL; within one run the set only grows,
// though confidence may be revised upward.
type DiscoveredPage struct {
	URL        string          `json:"url"`
	Category   PageCategory    `json:"category"`
	Method     DiscoveryMethod `json:"method"`
	Confidence float64         `json:"confidence"`
}
