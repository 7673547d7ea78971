package model

import "time"

// ComplaintSourceType groups the external platforms complaints come from.
type ComplaintSourceType string

const (
	SourceTypeSocial     ComplaintSourceType = "social"
	SourceTypeReviewSite ComplaintSourceType = "review-site"
	SourceTypeForum      ComplaintSourceType = "forum"
)

// AllSourceTypes returns all complaint source types.
func AllSourceTypes() []ComplaintSourceType {
	return []ComplaintSourceType{SourceTypeSocial, SourceTypeReviewSite, SourceTypeForum}
}

// ComplaintCategory is the fixed taxonomy complaints are sorted into.
type ComplaintCategory string

const (
	CategoryProductGaps    ComplaintCategory = "Product Gaps"
	CategoryServiceSupport ComplaintCategory = "Service & Support"
	CategoryBilling        ComplaintCategory = "Billing & Contract"
	CategoryPerformance    ComplaintCategory = "Performance"

	// CategoryUncategorized is the fallback bucket when the model cannot
	// produce a valid category. Never returned by the model itself.
	CategoryUncategorized ComplaintCategory = "Uncategorized"
)

// Taxonomy returns the four categories the model is allowed to answer with.
func Taxonomy() []ComplaintCategory {
	return []ComplaintCategory{
		CategoryProductGaps,
		CategoryServiceSupport,
		CategoryBilling,
		CategoryPerformance,
	}
}

// ValidCategory reports whether c is one of the four taxonomy categories.
func ValidCategory(c ComplaintCategory) bool {
	for _, t := range Taxonomy() {
		if t == c {
			return true
		}
	}
	return false
}

// Complaint is one canonical customer complaint. Near-duplicate documents
// from different platforms collapse into a single Complaint; every
// contributing URL is kept in SourceURLs as provenance.
type Complaint struct {
	Text               string              `json:"text"`
	SourceType         ComplaintSourceType `json:"source_type"`
	SourceURLs         []string            `json:"source_urls"`
	FirstSeen          time.Time           `json:"first_seen"`
	Category           ComplaintCategory   `json:"category,omitempty"`
	CategoryConfidence float64             `json:"category_confidence,omitempty"`
	NeedsReview        bool                `json:"needs_review,omitempty"`
}
