// Package extract runs the structured extraction stage: pricing,
// monetization, and vision analyses pulled out of discovered pages by
// the LLM against fixed JSON schemas. Responses are validated strictly;
// a failing response gets one repair pass carrying the validator's
// message, and a second failure poisons only that analysis type.
package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compintel/internal/model"
	"github.com/sells-group/compintel/pkg/anthropic"
)

// Error is a failed extraction for a single analysis type. Other types
// are unaffected; the pipeline records it and continues.
type Error struct {
	Type model.AnalysisType
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Type, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Extraction is the validated output of one analysis type. Exactly one
// of the three analysis pointers is set, matching Type.
type Extraction struct {
	Type         model.AnalysisType
	Pricing      *model.PricingAnalysis
	Monetization *model.MonetizationAnalysis
	Vision       *model.VisionAnalysis
	// Confidence aggregates per-item confidences over observed items
	// only; inferred items never raise it.
	Confidence float64
}

// Options tune the extraction engine. Zero values fall back to defaults.
type Options struct {
	Model        string
	MaxTokens    int64
	ContextBytes int
}

// DefaultOptions returns the extraction defaults.
func DefaultOptions() Options {
	return Options{
		Model:        "claude-sonnet-4-5-20250929",
		MaxTokens:    4096,
		ContextBytes: 48 * 1024,
	}
}

// Engine drives schema-constrained extraction over an LLM client.
type Engine struct {
	client anthropic.Client
	opts   Options

	mu    sync.Mutex
	usage anthropic.TokenUsage
}

// NewEngine builds an extraction engine.
func NewEngine(client anthropic.Client, opts Options) *Engine {
	def := DefaultOptions()
	if opts.Model == "" {
		opts.Model = def.Model
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.ContextBytes <= 0 {
		opts.ContextBytes = def.ContextBytes
	}
	return &Engine{client: client, opts: opts}
}

const extractSystemPrompt = `You extract structured competitive intelligence from a competitor's web pages.
Answer with a single JSON object matching the schema exactly. Do not add fields.
Every extracted item must include a verbatim quote from the documents and the source_url it came from.
If the documents do not support an item, leave its array empty rather than guessing.`

// Extract runs one analysis type over the supplied documents. The error,
// when non-nil, is a *Error for that type only.
func (e *Engine) Extract(ctx context.Context, typ model.AnalysisType, docs []Document) (*Extraction, error) {
	selected := selectDocuments(typ, docs)
	if len(selected) == 0 {
		return nil, &Error{Type: typ, Err: eris.New("no source documents in relevant categories")}
	}

	docContext := buildContext(selected, e.opts.ContextBytes)
	prompt := fmt.Sprintf("Schema:\n%s\n\nDocuments:\n%s\nExtract the %s analysis now.",
		schemaFor(typ), docContext, typ)

	messages := []anthropic.Message{{Role: "user", Content: prompt}}

	raw, parseErr := e.ask(ctx, typ, messages, selected)
	if parseErr == nil {
		return raw, nil
	}
	if ctx.Err() != nil {
		return nil, &Error{Type: typ, Err: ctx.Err()}
	}
	if parseErr.raw == "" {
		// Transport failure, nothing to repair.
		return nil, &Error{Type: typ, Err: eris.New(parseErr.reason)}
	}

	zap.L().Warn("extraction response failed validation, repairing",
		zap.String("analysis_type", string(typ)),
		zap.Error(parseErr))

	// One repair pass: feed the validator's complaint back verbatim.
	messages = append(messages,
		anthropic.Message{Role: "assistant", Content: parseErr.raw},
		anthropic.Message{Role: "user", Content: fmt.Sprintf(
			"That response was rejected: %s\nReturn the corrected JSON object only.", parseErr.reason)},
	)
	repaired, repairErr := e.ask(ctx, typ, messages, selected)
	if repairErr != nil {
		return nil, &Error{Type: typ, Err: eris.Errorf("response invalid after repair: %s", repairErr.reason)}
	}
	return repaired, nil
}

// validationError keeps the raw model output so the repair pass can echo
// it back as conversation history.
type validationError struct {
	raw    string
	reason string
}

func (v *validationError) Error() string { return v.reason }

func (e *Engine) ask(ctx context.Context, typ model.AnalysisType, messages []anthropic.Message, docs []Document) (*Extraction, *validationError) {
	temp := 0.0
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.opts.Model,
		MaxTokens:   e.opts.MaxTokens,
		System:      extractSystemPrompt,
		Temperature: &temp,
		Messages:    messages,
	})
	if err != nil {
		return nil, &validationError{reason: "llm call failed: " + err.Error()}
	}
	e.mu.Lock()
	e.usage.Add(resp.Usage)
	e.mu.Unlock()

	cleaned := cleanJSON(resp.Text)
	ext, verr := parseExtraction(typ, cleaned, docs)
	if verr != "" {
		return nil, &validationError{raw: resp.Text, reason: verr}
	}
	return ext, nil
}

// parseExtraction decodes and validates one response, then resolves
// provenance and aggregates confidence.
func parseExtraction(typ model.AnalysisType, cleaned string, docs []Document) (*Extraction, string) {
	agg := newConfidenceAggregator(docs)

	switch typ {
	case model.AnalysisTypePricing:
		var w wirePricing
		if err := decodeStrict(cleaned, &w); err != nil {
			return nil, err.Error()
		}
		if err := validatePricing(&w); err != nil {
			return nil, err.Error()
		}
		return &Extraction{Type: typ, Pricing: toPricing(&w, agg), Confidence: agg.value()}, ""

	case model.AnalysisTypeMonetization:
		var w wireMonetization
		if err := decodeStrict(cleaned, &w); err != nil {
			return nil, err.Error()
		}
		if err := validateMonetization(&w); err != nil {
			return nil, err.Error()
		}
		return &Extraction{Type: typ, Monetization: toMonetization(&w, agg), Confidence: agg.value()}, ""

	case model.AnalysisTypeVision:
		var w wireVision
		if err := decodeStrict(cleaned, &w); err != nil {
			return nil, err.Error()
		}
		if err := validateVision(&w); err != nil {
			return nil, err.Error()
		}
		return &Extraction{Type: typ, Vision: toVision(&w, agg), Confidence: agg.value()}, ""
	}
	return nil, fmt.Sprintf("unknown analysis type %q", typ)
}

// confidenceAggregator resolves quotes against source documents and
// averages confidence over observed items.
type confidenceAggregator struct {
	byURL      map[string]*model.RawDocument
	normalized map[string]string
	sum        float64
	observed   int
}

func newConfidenceAggregator(docs []Document) *confidenceAggregator {
	agg := &confidenceAggregator{
		byURL:      make(map[string]*model.RawDocument, len(docs)),
		normalized: make(map[string]string, len(docs)),
	}
	for i := range docs {
		d := &docs[i].Doc
		agg.byURL[d.SourceURL] = d
		agg.normalized[d.SourceURL] = normalizeForMatch(pageText(d.Content))
	}
	return agg
}

// resolve turns a wire provenance into a model one. A quote found in the
// named document (or failing that, any document) is observed; anything
// else is inferred and excluded from the aggregate.
func (a *confidenceAggregator) resolve(w wireProvenance) model.Provenance {
	p := model.Provenance{
		SourceURL: w.SourceURL,
		Quote:     w.Quote,
		Origin:    model.OriginInferred,
	}
	if w.Quote == "" {
		return p
	}
	needle := normalizeForMatch(w.Quote)

	if text, ok := a.normalized[w.SourceURL]; ok && strings.Contains(text, needle) {
		p.Origin = model.OriginObserved
		p.ContentHash = a.byURL[w.SourceURL].ContentHash
	} else {
		for url, text := range a.normalized {
			if strings.Contains(text, needle) {
				p.Origin = model.OriginObserved
				p.SourceURL = url
				p.ContentHash = a.byURL[url].ContentHash
				break
			}
		}
	}

	if p.Origin == model.OriginObserved {
		a.sum += w.Confidence
		a.observed++
	}
	return p
}

func (a *confidenceAggregator) value() float64 {
	if a.observed == 0 {
		return 0
	}
	return a.sum / float64(a.observed)
}

func normalizeForMatch(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func toPricing(w *wirePricing, agg *confidenceAggregator) *model.PricingAnalysis {
	out := &model.PricingAnalysis{Currency: w.Currency, Summary: w.Summary}
	for _, h := range w.HardwareItems {
		out.HardwareItems = append(out.HardwareItems, model.HardwareItem{
			Name:        h.Name,
			Proprietary: h.Proprietary,
			CostModel:   h.CostModel,
			Price:       h.Price,
			Provenance:  agg.resolve(h.wireProvenance),
		})
	}
	for _, s := range w.SoftwareTiers {
		out.SoftwareTiers = append(out.SoftwareTiers, model.SoftwareTier{
			Name:       s.Name,
			Axis:       model.BillingAxis(s.Axis),
			Price:      s.Price,
			HiddenFees: s.HiddenFees,
			Provenance: agg.resolve(s.wireProvenance),
		})
	}
	return out
}

func toMonetization(w *wireMonetization, agg *confidenceAggregator) *model.MonetizationAnalysis {
	conv := func(signals []wireSignal) []model.MonetizationSignal {
		out := make([]model.MonetizationSignal, 0, len(signals))
		for _, s := range signals {
			out = append(out, model.MonetizationSignal{
				Kind:       s.Kind,
				Detail:     s.Detail,
				Provenance: agg.resolve(s.wireProvenance),
			})
		}
		return out
	}
	return &model.MonetizationAnalysis{
		Model:           w.Model,
		RevenueStreams:  conv(w.RevenueStreams),
		LockInFactors:   conv(w.LockInFactors),
		ExpansionLevers: conv(w.ExpansionLevers),
		Summary:         w.Summary,
	}
}

func toVision(w *wireVision, agg *confidenceAggregator) *model.VisionAnalysis {
	conv := func(signals []wireRoadmapSignal) []model.RoadmapSignal {
		out := make([]model.RoadmapSignal, 0, len(signals))
		for _, s := range signals {
			out = append(out, model.RoadmapSignal{
				Signal:     s.Signal,
				Horizon:    s.Horizon,
				Provenance: agg.resolve(s.wireProvenance),
			})
		}
		return out
	}
	return &model.VisionAnalysis{
		RoadmapSignals:  conv(w.RoadmapSignals),
		TechInvestments: conv(w.TechInvestments),
		MarketExpansion: conv(w.MarketExpansion),
		HiringFocus:     conv(w.HiringFocus),
		Summary:         w.Summary,
	}
}

// LogUsage emits the accumulated token cost for this engine.
func (e *Engine) LogUsage() {
	e.mu.Lock()
	usage := e.usage
	e.mu.Unlock()
	usage.LogCost(e.opts.Model, "extract")
}

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
