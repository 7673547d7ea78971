package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sells-group/compintel/internal/model"
)

// Wire types mirror the JSON the model must produce. Every line item
// carries its own quote, source URL, and confidence; validation rejects
// unknown fields so a drifting model response fails loudly instead of
// passing through half-parsed.

type wireProvenance struct {
	Quote      string  `json:"quote"`
	SourceURL  string  `json:"source_url"`
	Confidence float64 `json:"confidence"`
}

type wireHardwareItem struct {
	Name        string `json:"name"`
	Proprietary bool   `json:"proprietary"`
	CostModel   string `json:"cost_model"`
	Price       string `json:"price"`
	wireProvenance
}

type wireSoftwareTier struct {
	Name       string   `json:"name"`
	Axis       string   `json:"axis"`
	Price      string   `json:"price"`
	HiddenFees []string `json:"hidden_fees"`
	wireProvenance
}

type wirePricing struct {
	Currency      string             `json:"currency"`
	HardwareItems []wireHardwareItem `json:"hardware_items"`
	SoftwareTiers []wireSoftwareTier `json:"software_tiers"`
	Summary       string             `json:"summary"`
}

type wireSignal struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
	wireProvenance
}

type wireMonetization struct {
	Model           string       `json:"model"`
	RevenueStreams  []wireSignal `json:"revenue_streams"`
	LockInFactors   []wireSignal `json:"lock_in_factors"`
	ExpansionLevers []wireSignal `json:"expansion_levers"`
	Summary         string       `json:"summary"`
}

type wireRoadmapSignal struct {
	Signal  string `json:"signal"`
	Horizon string `json:"horizon"`
	wireProvenance
}

type wireVision struct {
	RoadmapSignals  []wireRoadmapSignal `json:"roadmap_signals"`
	TechInvestments []wireRoadmapSignal `json:"tech_investments"`
	MarketExpansion []wireRoadmapSignal `json:"market_expansion"`
	HiringFocus     []wireRoadmapSignal `json:"hiring_focus"`
	Summary         string              `json:"summary"`
}

// Schema text rendered into each prompt. Kept as literal JSON rather
// than generated so the prompt is stable and reviewable.

const pricingSchema = `{
  "currency": "<ISO currency code, e.g. USD>",
  "hardware_items": [
    {"name": "<string>", "proprietary": <bool>, "cost_model": "<purchase|lease|bundled>",
     "price": "<string, empty if not stated>",
     "quote": "<verbatim quote from the documents supporting this item>",
     "source_url": "<url of the document the quote came from>",
     "confidence": <0.0-1.0>}
  ],
  "software_tiers": [
    {"name": "<string>", "axis": "<per_month|per_year|per_user|per_location|per_terminal|per_transaction|one_time>",
     "price": "<string>", "hidden_fees": ["<string>"],
     "quote": "<verbatim quote>", "source_url": "<url>", "confidence": <0.0-1.0>}
  ],
  "summary": "<2-3 sentence pricing summary>"
}`

const monetizationSchema = `{
  "model": "<subscription|transactional|hybrid|license|other>",
  "revenue_streams": [
    {"kind": "<string>", "detail": "<string>",
     "quote": "<verbatim quote>", "source_url": "<url>", "confidence": <0.0-1.0>}
  ],
  "lock_in_factors": [
    {"kind": "<string>", "detail": "<string>",
     "quote": "<verbatim quote>", "source_url": "<url>", "confidence": <0.0-1.0>}
  ],
  "expansion_levers": [
    {"kind": "<string>", "detail": "<string>",
     "quote": "<verbatim quote>", "source_url": "<url>", "confidence": <0.0-1.0>}
  ],
  "summary": "<2-3 sentence monetization summary>"
}`

const visionSchema = `{
  "roadmap_signals": [
    {"signal": "<string>", "horizon": "<near-term|long-term|empty>",
     "quote": "<verbatim quote>", "source_url": "<url>", "confidence": <0.0-1.0>}
  ],
  "tech_investments": [
    {"signal": "<string>", "horizon": "<string or empty>",
     "quote": "<verbatim quote>", "source_url": "<url>", "confidence": <0.0-1.0>}
  ],
  "market_expansion": [
    {"signal": "<string>", "horizon": "<string or empty>",
     "quote": "<verbatim quote>", "source_url": "<url>", "confidence": <0.0-1.0>}
  ],
  "hiring_focus": [
    {"signal": "<string>", "horizon": "<string or empty>",
     "quote": "<verbatim quote>", "source_url": "<url>", "confidence": <0.0-1.0>}
  ],
  "summary": "<2-3 sentence strategy summary>"
}`

func schemaFor(typ model.AnalysisType) string {
	switch typ {
	case model.AnalysisTypePricing:
		return pricingSchema
	case model.AnalysisTypeMonetization:
		return monetizationSchema
	case model.AnalysisTypeVision:
		return visionSchema
	}
	return ""
}

// decodeStrict unmarshals cleaned JSON into v, rejecting unknown fields
// and trailing garbage.
func decodeStrict(cleaned string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid json: %v", err)
	}
	if dec.More() {
		return fmt.Errorf("trailing content after json object")
	}
	return nil
}

func validateConfidence(what string, conf float64) error {
	if conf < 0 || conf > 1 {
		return fmt.Errorf("%s: confidence %v out of [0,1]", what, conf)
	}
	return nil
}

// validatePricing checks the wire payload against the closed schema.
// The returned error message is fed back to the model on the repair pass.
func validatePricing(w *wirePricing) error {
	if w.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	for i, h := range w.HardwareItems {
		if h.Name == "" {
			return fmt.Errorf("hardware_items[%d]: name is required", i)
		}
		if err := validateConfidence(fmt.Sprintf("hardware_items[%d]", i), h.Confidence); err != nil {
			return err
		}
	}
	for i, s := range w.SoftwareTiers {
		if s.Name == "" {
			return fmt.Errorf("software_tiers[%d]: name is required", i)
		}
		if !model.ValidBillingAxis(model.BillingAxis(s.Axis)) {
			return fmt.Errorf("software_tiers[%d]: axis %q is not an allowed billing axis", i, s.Axis)
		}
		if err := validateConfidence(fmt.Sprintf("software_tiers[%d]", i), s.Confidence); err != nil {
			return err
		}
	}
	return nil
}

func validateMonetization(w *wireMonetization) error {
	if w.Model == "" {
		return fmt.Errorf("model is required")
	}
	groups := map[string][]wireSignal{
		"revenue_streams":  w.RevenueStreams,
		"lock_in_factors":  w.LockInFactors,
		"expansion_levers": w.ExpansionLevers,
	}
	for name, signals := range groups {
		for i, s := range signals {
			if s.Kind == "" {
				return fmt.Errorf("%s[%d]: kind is required", name, i)
			}
			if err := validateConfidence(fmt.Sprintf("%s[%d]", name, i), s.Confidence); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateVision(w *wireVision) error {
	groups := map[string][]wireRoadmapSignal{
		"roadmap_signals":  w.RoadmapSignals,
		"tech_investments": w.TechInvestments,
		"market_expansion": w.MarketExpansion,
		"hiring_focus":     w.HiringFocus,
	}
	for name, signals := range groups {
		for i, s := range signals {
			if s.Signal == "" {
				return fmt.Errorf("%s[%d]: signal is required", name, i)
			}
			if err := validateConfidence(fmt.Sprintf("%s[%d]", name, i), s.Confidence); err != nil {
				return err
			}
		}
	}
	return nil
}
