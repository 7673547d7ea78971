// Package categorize sorts collected complaints into a fixed taxonomy
// using the LLM. The model's output is never trusted: it must be valid
// JSON with a category from the closed set, or the complaint falls back
// to the Uncategorized bucket. Categorization never fails a run.
package categorize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/compintel/internal/model"
	"github.com/sells-group/compintel/pkg/anthropic"
)

// SchemaViolationError means the model's response was not valid JSON or
// named a category outside the taxonomy, even after the strict retry.
type SchemaViolationError struct {
	Raw    string
	Reason string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("categorize: schema violation: %s", e.Reason)
}

// Options tune the categorizer. Zero values fall back to defaults.
type Options struct {
	Model           string
	MaxTokens       int64
	ConfidenceFloor float64
	Concurrency     int
}

// DefaultOptions returns the categorizer defaults.
func DefaultOptions() Options {
	return Options{
		Model:           "claude-haiku-4-5-20251001",
		MaxTokens:       256,
		ConfidenceFloor: 0.5,
		Concurrency:     4,
	}
}

// Categorizer assigns taxonomy categories to complaints.
type Categorizer struct {
	client anthropic.Client
	opts   Options

	mu    sync.Mutex
	usage anthropic.TokenUsage
}

// NewCategorizer builds a Categorizer over an LLM client.
func NewCategorizer(client anthropic.Client, opts Options) *Categorizer {
	def := DefaultOptions()
	if opts.Model == "" {
		opts.Model = def.Model
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.ConfidenceFloor <= 0 {
		opts.ConfidenceFloor = def.ConfidenceFloor
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	return &Categorizer{client: client, opts: opts}
}

const systemPrompt = `You categorize customer complaints about a business software competitor.
Respond with a single JSON object and nothing else:
{"category": "<category>", "confidence": <0.0-1.0>}
The category must be exactly one of: Product Gaps, Service & Support, Billing & Contract, Performance.`

const strictSystemPrompt = `Your previous answer was rejected. Respond with ONLY this JSON object, no markdown, no commentary:
{"category": "<category>", "confidence": <0.0-1.0>}
The ONLY legal category strings are these four, byte for byte:
"Product Gaps"
"Service & Support"
"Billing & Contract"
"Performance"`

// Categorize assigns one complaint to a taxonomy category with a
// confidence. An out-of-schema response gets exactly one strict retry;
// a second violation returns *SchemaViolationError.
func (c *Categorizer) Categorize(ctx context.Context, complaint model.Complaint) (model.ComplaintCategory, float64, error) {
	cat, conf, err := c.ask(ctx, systemPrompt, complaint.Text)
	if err == nil {
		return cat, conf, nil
	}

	var sv *SchemaViolationError
	if !eris.As(err, &sv) {
		return "", 0, err
	}
	zap.L().Debug("category response violated schema, retrying strict",
		zap.String("reason", sv.Reason))

	return c.ask(ctx, strictSystemPrompt, complaint.Text)
}

func (c *Categorizer) ask(ctx context.Context, system, text string) (model.ComplaintCategory, float64, error) {
	temp := 0.0
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.opts.Model,
		MaxTokens:   c.opts.MaxTokens,
		System:      system,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: "Complaint:\n" + text},
		},
	})
	if err != nil {
		return "", 0, eris.Wrap(err, "categorize: llm call")
	}
	c.mu.Lock()
	c.usage.Add(resp.Usage)
	c.mu.Unlock()

	cleaned := cleanJSON(resp.Text)
	var raw struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return "", 0, &SchemaViolationError{Raw: resp.Text, Reason: "invalid json: " + err.Error()}
	}

	cat := model.ComplaintCategory(raw.Category)
	if !model.ValidCategory(cat) {
		return "", 0, &SchemaViolationError{Raw: resp.Text, Reason: fmt.Sprintf("category %q not in taxonomy", raw.Category)}
	}
	if raw.Confidence < 0 || raw.Confidence > 1 {
		return "", 0, &SchemaViolationError{Raw: resp.Text, Reason: fmt.Sprintf("confidence %v out of range", raw.Confidence)}
	}
	return cat, raw.Confidence, nil
}

// CategorizeAll categorizes complaints with bounded concurrency and
// returns the annotated set. Individual failures fall back to
// Uncategorized with zero confidence and NeedsReview set; only context
// cancellation aborts the batch.
func (c *Categorizer) CategorizeAll(ctx context.Context, complaints []model.Complaint) ([]model.Complaint, error) {
	out := make([]model.Complaint, len(complaints))
	copy(out, complaints)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for i := range out {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			cat, conf, err := c.Categorize(gctx, out[i])
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Warn("complaint fell back to uncategorized", zap.Error(err))
				out[i].Category = model.CategoryUncategorized
				out[i].CategoryConfidence = 0
				out[i].NeedsReview = true
				return nil
			}
			out[i].Category = cat
			out[i].CategoryConfidence = conf
			out[i].NeedsReview = conf < c.opts.ConfidenceFloor
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "categorize: batch cancelled")
	}

	c.mu.Lock()
	usage := c.usage
	c.mu.Unlock()
	usage.LogCost(c.opts.Model, "categorize")
	return out, nil
}

// Breakdown counts complaints per category.
func Breakdown(complaints []model.Complaint) map[model.ComplaintCategory]int {
	out := make(map[model.ComplaintCategory]int)
	for _, c := range complaints {
		if c.Category == "" {
			continue
		}
		out[c.Category]++
	}
	return out
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
