package model

// AnalysisType selects which structured extraction to run.
type AnalysisType string

const (
	AnalysisTypePricing      AnalysisType = "pricing"
	AnalysisTypeMonetization AnalysisType = "monetization"
	AnalysisTypeVision       AnalysisType = "vision"
)

// AllAnalysisTypes returns the extraction types in execution order.
func AllAnalysisTypes() []AnalysisType {
	return []AnalysisType{AnalysisTypePricing, AnalysisTypeMonetization, AnalysisTypeVision}
}

// FieldOrigin marks whether an extracted field was located in source text
// or inferred by the model. Inferred fields are excluded from headline
// confidence aggregation.
type FieldOrigin string

const (
	OriginObserved FieldOrigin = "observed"
	OriginInferred FieldOrigin = "inferred"
)

// Provenance points a derived fact back to the document it came from.
type Provenance struct {
	SourceURL   string      `json:"source_url"`
	ContentHash string      `json:"content_hash,omitempty"`
	Quote       string      `json:"quote,omitempty"`
	Origin      FieldOrigin `json:"origin"`
}

// BillingAxis enumerates how a software tier is billed.
type BillingAxis string

const (
	BillingPerMonth       BillingAxis = "per_month"
	BillingPerYear        BillingAxis = "per_year"
	BillingPerUser        BillingAxis = "per_user"
	BillingPerLocation    BillingAxis = "per_location"
	BillingPerTerminal    BillingAxis = "per_terminal"
	BillingPerTransaction BillingAxis = "per_transaction"
	BillingOneTime        BillingAxis = "one_time"
)

// AllBillingAxes returns every allowed billing axis value.
func AllBillingAxes() []BillingAxis {
	return []BillingAxis{
		BillingPerMonth, BillingPerYear, BillingPerUser, BillingPerLocation,
		BillingPerTerminal, BillingPerTransaction, BillingOneTime,
	}
}

// ValidBillingAxis reports whether a is an allowed billing axis.
func ValidBillingAxis(a BillingAxis) bool {
	for _, v := range AllBillingAxes() {
		if v == a {
			return true
		}
	}
	return false
}

// HardwareItem is one hardware line in the pricing breakdown.
type HardwareItem struct {
	Name        string     `json:"name"`
	Proprietary bool       `json:"proprietary"`
	CostModel   string     `json:"cost_model"` // e.g. "purchase", "lease", "bundled"
	Price       string     `json:"price,omitempty"`
	Provenance  Provenance `json:"provenance"`
}

// SoftwareTier is one software plan in the pricing breakdown.
type SoftwareTier struct {
	Name       string      `json:"name"`
	Axis       BillingAxis `json:"axis"`
	Price      string      `json:"price"`
	HiddenFees []string    `json:"hidden_fees,omitempty"`
	Provenance Provenance  `json:"provenance"`
}

// PricingAnalysis is the structured pricing breakdown for one competitor.
type PricingAnalysis struct {
	Currency      string         `json:"currency"`
	HardwareItems []HardwareItem `json:"hardware_items"`
	SoftwareTiers []SoftwareTier `json:"software_tiers"`
	Summary       string         `json:"summary"`
}

// MonetizationSignal is one observed revenue/lock-in/expansion mechanism.
type MonetizationSignal struct {
	Kind       string     `json:"kind"`
	Detail     string     `json:"detail"`
	Provenance Provenance `json:"provenance"`
}

// MonetizationAnalysis describes how the competitor makes money.
type MonetizationAnalysis struct {
	Model           string               `json:"model"` // e.g. "subscription", "transactional", "hybrid"
	RevenueStreams  []MonetizationSignal `json:"revenue_streams"`
	LockInFactors   []MonetizationSignal `json:"lock_in_factors"`
	ExpansionLevers []MonetizationSignal `json:"expansion_levers"`
	Summary         string               `json:"summary"`
}

// RoadmapSignal is one forward-looking strategic signal.
type RoadmapSignal struct {
	Signal     string     `json:"signal"`
	Horizon    string     `json:"horizon,omitempty"` // e.g. "near-term", "long-term"
	Provenance Provenance `json:"provenance"`
}

// VisionAnalysis captures roadmap and strategic direction signals mined
// from careers, blog, and press pages.
type VisionAnalysis struct {
	RoadmapSignals  []RoadmapSignal `json:"roadmap_signals"`
	TechInvestments []RoadmapSignal `json:"tech_investments"`
	MarketExpansion []RoadmapSignal `json:"market_expansion"`
	HiringFocus     []RoadmapSignal `json:"hiring_focus"`
	Summary         string          `json:"summary"`
}
