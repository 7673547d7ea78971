package model

import "time"

// RunStatus tracks a competitor run through the pipeline state machine.
type RunStatus string

const (
	RunStatusPending     RunStatus = "pending"
	RunStatusDiscovering RunStatus = "discovering"
	RunStatusCollecting  RunStatus = "collecting"
	RunStatusExtracting  RunStatus = "extracting"
	RunStatusMerging     RunStatus = "merging"
	RunStatusComplete    RunStatus = "complete"
	RunStatusPartial     RunStatus = "partially_complete"
	RunStatusFailed      RunStatus = "failed"
)

// Run is one persisted analysis run. Result is nil until the run reaches
// a terminal status.
type Run struct {
	ID         string            `json:"id"`
	Competitor CompetitorProfile `json:"competitor"`
	Status     RunStatus         `json:"status"`
	Result     *AnalysisResult   `json:"result,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// StageFailure records one non-fatal failure surfaced in the result.
type StageFailure struct {
	Stage        string       `json:"stage"`
	AnalysisType AnalysisType `json:"analysis_type,omitempty"`
	Reason       string       `json:"reason"`
	At           time.Time    `json:"at"`
}

// AnalysisResult is the merged output of one run, handed to the
// presentation boundary. Immutable once emitted; any missing or
// low-confidence section is named in Failures rather than silently absent.
type AnalysisResult struct {
	RunID             string                `json:"run_id"`
	Competitor        CompetitorProfile     `json:"competitor"`
	Status            RunStatus             `json:"status"`
	Pages             []DiscoveredPage      `json:"pages"`
	Pricing           *PricingAnalysis      `json:"pricing,omitempty"`
	Monetization      *MonetizationAnalysis `json:"monetization,omitempty"`
	Vision            *VisionAnalysis       `json:"vision,omitempty"`
	Complaints        []Complaint           `json:"complaints"`
	CategoryBreakdown map[ComplaintCategory]int `json:"category_breakdown,omitempty"`
	OverallConfidence float64               `json:"overall_confidence"`
	Failures          []StageFailure        `json:"failures,omitempty"`
	CompletedAt       time.Time             `json:"completed_at"`
}

// HasProvenance reports whether at least one finding points back to a
// source. A result failing this check must not be emitted as a success.
func (r *AnalysisResult) HasProvenance() bool {
	for _, c := range r.Complaints {
		if len(c.SourceURLs) > 0 {
			return true
		}
	}
	if r.Pricing != nil {
		for _, h := range r.Pricing.HardwareItems {
			if h.Provenance.SourceURL != "" {
				return true
			}
		}
		for _, tier := range r.Pricing.SoftwareTiers {
			if tier.Provenance.SourceURL != "" {
				return true
			}
		}
	}
	if r.Monetization != nil {
		groups := [][]MonetizationSignal{
			r.Monetization.RevenueStreams,
			r.Monetization.LockInFactors,
			r.Monetization.ExpansionLevers,
		}
		for _, group := range groups {
			for _, s := range group {
				if s.Provenance.SourceURL != "" {
					return true
				}
			}
		}
	}
	if r.Vision != nil {
		groups := [][]RoadmapSignal{
			r.Vision.RoadmapSignals,
			r.Vision.TechInvestments,
			r.Vision.MarketExpansion,
			r.Vision.HiringFocus,
		}
		for _, group := range groups {
			for _, s := range group {
				if s.Provenance.SourceURL != "" {
					return true
				}
			}
		}
	}
	return false
}
